package opt

import "time"

// Window is an absolute service time window. Scheduling measures it in
// seconds from Problem.Start.
type Window struct{ Start, End time.Time }

// Load is the supply demand a stop places on a team.
type Load struct{ WeightKg, VolumeM3 float64 }

// Stop is a need-report service stop for planning purposes.
type Stop struct {
	ID         string
	Lat, Lng   float64
	ServiceSec int
	Window     *Window
	Load       Load
	Skills     []string
	Severity   int // 1..5, used as a priority weight by the cost model
}

// Team is a volunteer unit the planner can route.
type Team struct {
	ID       string
	CapKg    float64
	CapM3    float64
	Skills   []string
	Base     *[2]float64 // optional start base
	ReturnTo *[2]float64 // optional end base
}

// Problem is a complete planning instance.
type Problem struct {
	Stops      []Stop
	Teams      []Team
	Start      time.Time // plan epoch; the schedule clock starts here
	SpeedKph   float64
	Objectives map[string]float64 // weights: travelTime, distance, lateness, unserved, severity
	MaxWorkSec int                // continuous work limit before a rest is scheduled
	RestSec    int                // rest duration inserted when MaxWorkSec is exceeded

	IterationsLimit         int
	InitialTemp             float64
	Cooling                 float64
	InitialRemovalWeights   []float64 // [random, shaw]
	InitialInsertionWeights []float64 // [greedy, regret2]
}

// MissionPlan is an ordered stop visit sequence for one team.
type MissionPlan struct {
	TeamID string
	Order  []int // indices into Problem.Stops
}

// Solution is a full assignment with its cost under the problem objectives.
type Solution struct {
	Plans []MissionPlan
	Cost  float64
}

// Metrics captures solver behavior for the admin plan-metrics endpoints.
type Metrics struct {
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	Iterations            int
	Improvements          int
	AcceptedWorse         int
	BestCost              float64
	FinalCost             float64
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Snapshots             []WeightSnapshot
}

// WeightSnapshot records adaptive operator weights at an iteration.
type WeightSnapshot struct {
	Iteration int
	Removal   [2]float64
	Insertion [2]float64
}
