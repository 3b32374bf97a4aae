package analytics

import (
	"sort"
	"sync"
	"time"
)

// History keeps a bounded, time-ordered fix buffer per (tenant, unit).
type History struct {
	mu    sync.RWMutex
	max   int
	units map[string]*unitTrack // key: tenant|unit
}

type unitTrack struct {
	tenant string
	unit   string
	points []TrackPoint
}

// NewHistory creates a History bounding each unit to maxPerUnit fixes.
func NewHistory(maxPerUnit int) *History {
	if maxPerUnit <= 0 {
		maxPerUnit = 2048
	}
	return &History{max: maxPerUnit, units: map[string]*unitTrack{}}
}

func historyKey(tenant, unit string) string { return tenant + "|" + unit }

// Add inserts a fix in timestamp order and evicts the oldest fix once the
// unit's buffer exceeds the bound. Out-of-order fixes are merged by ts.
func (h *History) Add(tenant, unit string, pt TrackPoint) {
	if tenant == "" || unit == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	k := historyKey(tenant, unit)
	ut := h.units[k]
	if ut == nil {
		ut = &unitTrack{tenant: tenant, unit: unit}
		h.units[k] = ut
	}
	n := len(ut.points)
	if n == 0 || !pt.T.Before(ut.points[n-1].T) {
		ut.points = append(ut.points, pt)
	} else {
		// late fix: insert at its timestamp position
		i := sort.Search(n, func(i int) bool { return ut.points[i].T.After(pt.T) })
		ut.points = append(ut.points, TrackPoint{})
		copy(ut.points[i+1:], ut.points[i:])
		ut.points[i] = pt
	}
	if len(ut.points) > h.max {
		ut.points = ut.points[len(ut.points)-h.max:]
	}
}

// Last returns the most recent fix for a unit, if any.
func (h *History) Last(tenant, unit string) (TrackPoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ut := h.units[historyKey(tenant, unit)]
	if ut == nil || len(ut.points) == 0 {
		return TrackPoint{}, false
	}
	return ut.points[len(ut.points)-1], true
}

// Snapshot returns a copy of a unit's fixes at or after since. A zero since
// returns the full buffer.
func (h *History) Snapshot(tenant, unit string, since time.Time) Track {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tr := Track{TenantID: tenant, UnitID: unit}
	ut := h.units[historyKey(tenant, unit)]
	if ut == nil {
		return tr
	}
	pts := ut.points
	if !since.IsZero() {
		i := sort.Search(len(pts), func(i int) bool { return !pts[i].T.Before(since) })
		pts = pts[i:]
	}
	tr.Points = append([]TrackPoint(nil), pts...)
	return tr
}

// Units lists unit IDs with history for a tenant.
func (h *History) Units(tenant string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for _, ut := range h.units {
		if ut.tenant == tenant {
			out = append(out, ut.unit)
		}
	}
	sort.Strings(out)
	return out
}
