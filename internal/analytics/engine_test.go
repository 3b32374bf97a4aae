package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryKeepsFixesOrdered(t *testing.T) {
	h := NewHistory(10)
	h.Add("t1", "u1", pt(0, 0, 2*time.Minute))
	h.Add("t1", "u1", pt(0, 0, 0))
	h.Add("t1", "u1", pt(0, 0, time.Minute))
	tr := h.Snapshot("t1", "u1", time.Time{})
	require.Len(t, tr.Points, 3)
	assert.True(t, tr.Points[0].T.Before(tr.Points[1].T))
	assert.True(t, tr.Points[1].T.Before(tr.Points[2].T))
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add("t1", "u1", pt(0, 0, time.Duration(i)*time.Minute))
	}
	tr := h.Snapshot("t1", "u1", time.Time{})
	require.Len(t, tr.Points, 3)
	assert.Equal(t, t0.Add(2*time.Minute), tr.Points[0].T)
}

func TestHistoryIsolatesTenants(t *testing.T) {
	h := NewHistory(10)
	h.Add("t1", "u1", pt(0, 0, 0))
	h.Add("t2", "u1", pt(0, 0, 0))
	assert.Equal(t, []string{"u1"}, h.Units("t1"))
	assert.Empty(t, h.Snapshot("t3", "u1", time.Time{}).Points)
}

func TestEngineIngestFlagsAnomalyInline(t *testing.T) {
	e := NewEngine(Config{})
	got := e.Ingest("t1", "u1", pt(0, 0, 0))
	assert.Empty(t, got)
	got = e.Ingest("t1", "u1", pt(50000, 0, 10*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, PatternAnomaly, got[0].Type)
}

func TestEngineAnalyzeUnitRunsAllDetectors(t *testing.T) {
	e := NewEngine(Config{})
	for i := 0; i < 12; i++ {
		e.Ingest("t1", "u1", pt(float64(i%3), 0, time.Duration(i)*time.Minute))
	}
	got := e.AnalyzeUnit("t1", "u1", time.Time{})
	require.NotEmpty(t, got)
	assert.Equal(t, PatternStationary, got[0].Type)
}

func TestEngineSummarizeCounts(t *testing.T) {
	e := NewEngine(Config{})
	for i := 0; i < 12; i++ {
		e.Ingest("t1", "u1", pt(float64(i%3), 0, time.Duration(i)*time.Minute))
	}
	for i := 0; i < 10; i++ {
		e.Ingest("t1", "u2", pt(float64(i)*100, 0, time.Duration(i)*time.Minute))
	}
	s := e.Summarize("t1", time.Time{})
	assert.Equal(t, 2, s.Units)
	assert.Equal(t, 22, s.Fixes)
	assert.GreaterOrEqual(t, s.PatternCounts[PatternStationary], 1)
	assert.GreaterOrEqual(t, s.PatternCounts[PatternLinear], 1)
}

func TestSuggestRespaceFromRaggedSweep(t *testing.T) {
	e := NewEngine(Config{})
	at := time.Duration(0)
	// A cramped sweep: 20m lanes over a 400x400m box walks far more than
	// the 60m-lane plan the engine compares against.
	for lane := 0; lane < 20; lane++ {
		east := float64(lane) * 20
		for step := 0; step <= 8; step++ {
			north := float64(step) * 50
			if lane%2 == 1 {
				north = 400 - north
			}
			e.Ingest("t1", "u1", pt(north, east, at))
			at += 15 * time.Second
		}
	}
	got := e.Suggest("t1", "u1", time.Time{})
	var respace *Suggestion
	for i := range got {
		if got[i].Kind == SuggestRespaceSweep {
			respace = &got[i]
		}
	}
	require.NotNil(t, respace)
	assert.Greater(t, respace.ProjectedGain, 0.3)
}

func TestSuggestStageAnchorForLongDwell(t *testing.T) {
	e := NewEngine(Config{})
	for i := 0; i < 40; i++ {
		e.Ingest("t1", "u1", pt(float64(i%3), 0, time.Duration(i)*time.Minute))
	}
	got := e.Suggest("t1", "u1", time.Time{})
	require.NotEmpty(t, got)
	assert.Equal(t, SuggestStageAnchor, got[0].Kind)
}
