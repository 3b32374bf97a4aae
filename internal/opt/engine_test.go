package opt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterProblem() Problem {
	// two clusters of needs and two teams based near each cluster
	stops := []Stop{
		{ID: "n1", Lat: 29.70, Lng: -95.40, ServiceSec: 300, Severity: 3},
		{ID: "n2", Lat: 29.701, Lng: -95.401, ServiceSec: 300, Severity: 2},
		{ID: "n3", Lat: 29.702, Lng: -95.399, ServiceSec: 300, Severity: 4},
		{ID: "n4", Lat: 29.90, Lng: -95.10, ServiceSec: 300, Severity: 1},
		{ID: "n5", Lat: 29.901, Lng: -95.101, ServiceSec: 300, Severity: 5},
	}
	teams := []Team{
		{ID: "team-a", Base: &[2]float64{29.70, -95.40}},
		{ID: "team-b", Base: &[2]float64{29.90, -95.10}},
	}
	return Problem{Stops: stops, Teams: teams, SpeedKph: 40}
}

func TestGreedySeedServesAllStops(t *testing.T) {
	sol, m := SolveGreedy(clusterProblem())
	require.Len(t, sol.Plans, 2)
	served := map[int]bool{}
	for _, pl := range sol.Plans {
		for _, idx := range pl.Order {
			assert.False(t, served[idx], "stop assigned twice")
			served[idx] = true
		}
	}
	assert.Len(t, served, 5)
	assert.Equal(t, 1, m.Iterations)
}

func TestSolveNeverWorseThanSeed(t *testing.T) {
	p := clusterProblem()
	seedSol, _ := SolveGreedy(p)
	sol, m := Solve(p, 42, 150*time.Millisecond)
	assert.LessOrEqual(t, sol.Cost, seedSol.Cost+1e-6)
	assert.Greater(t, m.Iterations, 0)
	assert.Equal(t, sol.Cost, m.FinalCost)
}

func TestSolveRespectsIterationLimit(t *testing.T) {
	p := clusterProblem()
	p.IterationsLimit = 10
	_, m := Solve(p, 7, time.Second)
	assert.LessOrEqual(t, m.Iterations, 10)
}

func TestCapacityKeepsHeavyStopOffSmallTeam(t *testing.T) {
	p := Problem{
		Stops: []Stop{
			{ID: "heavy", Lat: 1, Lng: 1, Load: Load{WeightKg: 900}},
		},
		Teams: []Team{
			{ID: "small", CapKg: 100},
			{ID: "big", CapKg: 1000},
		},
		SpeedKph: 40,
	}
	sol, _ := SolveGreedy(p)
	for _, pl := range sol.Plans {
		if pl.TeamID == "small" {
			assert.Empty(t, pl.Order, "heavy stop must not land on the small team")
		}
	}
}

func TestSkillMatching(t *testing.T) {
	p := Problem{
		Stops: []Stop{
			{ID: "medical", Lat: 1, Lng: 1, Skills: []string{"medic"}},
		},
		Teams: []Team{
			{ID: "logistics", Skills: []string{"driver"}},
			{ID: "medics", Skills: []string{"medic", "driver"}},
		},
		SpeedKph: 40,
	}
	sol, _ := SolveGreedy(p)
	for _, pl := range sol.Plans {
		if pl.TeamID == "logistics" {
			assert.Empty(t, pl.Order)
		}
		if pl.TeamID == "medics" {
			assert.Len(t, pl.Order, 1)
		}
	}
}

func TestSortScoredAscOrdersByScore(t *testing.T) {
	rel := []scored{{idx: 1, score: 5}, {idx: 2, score: -1}, {idx: 3, score: 2}}
	sortScoredAsc(rel)
	assert.Equal(t, []scored{{idx: 2, score: -1}, {idx: 3, score: 2}, {idx: 1, score: 5}}, rel)
}

func TestTwoOptStarPreservesStopMultiset(t *testing.T) {
	// Interleaved clusters so segment exchanges are profitable.
	p := Problem{
		Stops: []Stop{
			{ID: "a1", Lat: 29.70, Lng: -95.40},
			{ID: "b1", Lat: 29.90, Lng: -95.10},
			{ID: "a2", Lat: 29.701, Lng: -95.401},
			{ID: "b2", Lat: 29.901, Lng: -95.101},
			{ID: "a3", Lat: 29.702, Lng: -95.399},
		},
		Teams: []Team{
			{ID: "team-a", Base: &[2]float64{29.70, -95.40}},
			{ID: "team-b", Base: &[2]float64{29.90, -95.10}},
		},
		SpeedKph: 40,
	}
	sol := Solution{Plans: []MissionPlan{
		{TeamID: "team-a", Order: []int{0, 1, 4}},
		{TeamID: "team-b", Order: []int{2, 3}},
	}}
	out := twoOptStar(p, sol)
	seen := map[int]int{}
	for _, pl := range out.Plans {
		for _, idx := range pl.Order {
			seen[idx]++
		}
	}
	require.Len(t, seen, 5)
	for idx, n := range seen {
		assert.Equalf(t, 1, n, "stop %d visited %d times", idx, n)
	}
}

func TestSchedulePlanRejectsOverCapacity(t *testing.T) {
	p := Problem{
		Stops: []Stop{
			{ID: "s1", Lat: 1, Lng: 1, Load: Load{WeightKg: 6}},
			{ID: "s2", Lat: 1.001, Lng: 1, Load: Load{WeightKg: 5}},
		},
		Teams:    []Team{{ID: "t", CapKg: 10}},
		SpeedKph: 40,
	}
	_, ok := schedulePlan(p, MissionPlan{TeamID: "t", Order: []int{0, 1}}, p.Teams[0])
	assert.False(t, ok, "11kg on a 10kg team must be infeasible")
	_, ok = schedulePlan(p, MissionPlan{TeamID: "t", Order: []int{0}}, p.Teams[0])
	assert.True(t, ok)
}

func TestSchedulePlanWindowsAnchoredAtStart(t *testing.T) {
	start := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	w := Window{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)}
	p := Problem{
		Stops:    []Stop{{ID: "s", Lat: 29.70, Lng: -95.40, ServiceSec: 600, Window: &w}},
		Teams:    []Team{{ID: "t", Base: &[2]float64{29.70, -95.40}}},
		Start:    start,
		SpeedKph: 40,
	}
	tot, ok := schedulePlan(p, MissionPlan{TeamID: "t", Order: []int{0}}, p.Teams[0])
	require.True(t, ok)
	// Waits for the window to open, then serves.
	assert.InDelta(t, 3600+600, tot.travelSec, 1)

	late := Window{Start: start.Add(-2 * time.Hour), End: start.Add(-time.Hour)}
	p.Stops[0].Window = &late
	_, ok = schedulePlan(p, MissionPlan{TeamID: "t", Order: []int{0}}, p.Teams[0])
	assert.False(t, ok, "a window that closed before the plan epoch is infeasible")
}

func TestScheduleInsertsRest(t *testing.T) {
	p := Problem{
		Stops: []Stop{
			{ID: "far1", Lat: 29.0, Lng: -95.0},
			{ID: "far2", Lat: 30.0, Lng: -95.0}, // ~111 km apart
		},
		Teams:      []Team{{ID: "t"}},
		SpeedKph:   40,
		MaxWorkSec: 3600,
		RestSec:    900,
	}
	pl := MissionPlan{TeamID: "t", Order: []int{0, 1}}
	tot, ok := schedulePlan(p, pl, p.Teams[0])
	require.True(t, ok)
	assert.Equal(t, 1, tot.rests)
}

func TestImprovePath2OptUncrossesPath(t *testing.T) {
	// a deliberately crossed zig-zag: 2-opt should shorten it
	pts := []PathPoint{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 3},
		{Lat: 0.001, Lng: 1},
		{Lat: 0.001, Lng: 2},
	}
	order := []int{0, 1, 2, 3}
	improved, before, after := ImprovePath2Opt(pts, order, 5)
	assert.Less(t, after, before)
	assert.Len(t, improved, 4)
}

func TestRecordAndGetMetrics(t *testing.T) {
	RecordMetrics("t_test", "2026-03-01", "alns", Metrics{Iterations: 12, BestCost: 5})
	got := GetMetrics("t_test", "2026-03-01")
	require.Contains(t, got, "alns")
	assert.Equal(t, 12, got["alns"].Iterations)
}
