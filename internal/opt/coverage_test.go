package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCoverageLaneGeometry(t *testing.T) {
	// ~1.1 km x ~1.1 km box at the equator, 100 m spacing
	plan := PlanCoverage(0, 0, 0.01, 0.01, 100)
	require.NotEmpty(t, plan.Lanes)
	assert.InDelta(t, 12, len(plan.Lanes), 1, "about 12 lanes expected")

	// lanes alternate direction
	for i := 1; i < len(plan.Lanes); i++ {
		prev, cur := plan.Lanes[i-1], plan.Lanes[i]
		assert.NotEqual(t, prev.StartLat, cur.StartLat, "lane %d should reverse direction", i)
	}
	assert.Greater(t, plan.PathLenM, 0.0)
}

func TestPlanCoverageClampsSpacing(t *testing.T) {
	plan := PlanCoverage(0, 0, 0.001, 0.001, 0)
	assert.Equal(t, 1.0, plan.SpacingM)
}

func TestPlanCoverageSwappedCorners(t *testing.T) {
	a := PlanCoverage(0.01, 0.01, 0, 0, 100)
	b := PlanCoverage(0, 0, 0.01, 0.01, 100)
	assert.Equal(t, len(b.Lanes), len(a.Lanes))
}
