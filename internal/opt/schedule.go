package opt

import (
	"reliefops/internal/geo"
)

// cost scores a solution under the configured objectives. Unserved needs are
// penalized per hour, scaled by severity so life-threatening reports dominate.
func cost(p Problem, s Solution) float64 {
	wTravel := p.Objectives["travelTime"]
	if wTravel == 0 {
		wTravel = 1
	}
	wDist := p.Objectives["distance"]
	wLate := p.Objectives["lateness"]
	wUnserved := p.Objectives["unserved"]
	if wUnserved == 0 {
		wUnserved = 50
	}

	total := 0.0
	for ti, pl := range s.Plans {
		sch, ok := schedulePlan(p, pl, p.Teams[ti])
		total += wTravel*sch.travelSec + wDist*sch.distM + wLate*sch.lateSec
		if !ok {
			// Infeasible plans must never look cheaper than serving nobody.
			total += wUnserved * 3600 * float64(len(pl.Order))
		}
	}

	served := map[int]bool{}
	for _, pl := range s.Plans {
		for _, idx := range pl.Order {
			served[idx] = true
		}
	}
	for i := range p.Stops {
		if !served[i] {
			sev := float64(p.Stops[i].Severity)
			if sev < 1 {
				sev = 1
			}
			total += wUnserved * sev * 3600
		}
	}
	return total
}

type scheduleTotals struct {
	travelSec float64
	distM     float64
	lateSec   float64
	rests     int
}

// schedulePlan propagates arrival times along a plan, inserting rests when
// continuous work exceeds MaxWorkSec, and reports feasibility: capacity,
// skills, and time windows. The clock starts at Problem.Start.
func schedulePlan(p Problem, pl MissionPlan, t Team) (scheduleTotals, bool) {
	if !loadFeasible(p, pl.Order, t) {
		return scheduleTotals{}, false
	}
	speed := p.SpeedKph / 3.6
	var curLat, curLng float64
	if t.Base != nil {
		curLat, curLng = t.Base[0], t.Base[1]
	} else if len(pl.Order) > 0 {
		first := p.Stops[pl.Order[0]]
		curLat, curLng = first.Lat, first.Lng
	}

	var tot scheduleTotals
	clock := 0.0
	workSinceRest := 0.0
	for _, idx := range pl.Order {
		st := p.Stops[idx]
		d := geo.HaversineM(curLat, curLng, st.Lat, st.Lng)
		travel := d / speed
		if p.MaxWorkSec > 0 && int(workSinceRest+travel) > p.MaxWorkSec {
			clock += float64(p.RestSec)
			workSinceRest = 0
			tot.rests++
		}
		clock += travel
		workSinceRest += travel
		arrive := clock
		if st.Window != nil && !st.Window.Start.IsZero() {
			ws := st.Window.Start.Sub(p.Start).Seconds()
			if arrive < ws {
				arrive = ws
				clock = arrive
			}
		}
		if st.Window != nil && !st.Window.End.IsZero() {
			we := st.Window.End.Sub(p.Start).Seconds()
			if arrive > we {
				tot.travelSec = clock
				tot.distM += d
				tot.lateSec += arrive - we
				return tot, false
			}
		}
		clock += float64(st.ServiceSec)
		workSinceRest += float64(st.ServiceSec)
		tot.distM += d
		curLat, curLng = st.Lat, st.Lng
	}
	tot.travelSec = clock
	return tot, true
}

// loadFeasible checks aggregate capacity and per-stop skill coverage for a
// visit order.
func loadFeasible(p Problem, order []int, t Team) bool {
	var kg, m3 float64
	for _, i := range order {
		st := p.Stops[i]
		kg += st.Load.WeightKg
		m3 += st.Load.VolumeM3
		if len(st.Skills) > 0 && len(t.Skills) > 0 && !hasSkills(t, st.Skills) {
			return false
		}
	}
	if t.CapKg > 0 && kg > t.CapKg {
		return false
	}
	if t.CapM3 > 0 && m3 > t.CapM3 {
		return false
	}
	return true
}

func hasSkills(t Team, required []string) bool {
	missing := map[string]bool{}
	for _, s := range required {
		missing[s] = true
	}
	for _, s := range t.Skills {
		delete(missing, s)
	}
	return len(missing) == 0
}

func feasibleAdd(p Problem, pl MissionPlan, t Team, idx int) bool {
	order := make([]int, 0, len(pl.Order)+1)
	order = append(order, pl.Order...)
	order = append(order, idx)
	return loadFeasible(p, order, t)
}

func feasibleInsertAt(p Problem, pl MissionPlan, t Team, idx, pos int) bool {
	if pos < 0 || pos > len(pl.Order) || !feasibleAdd(p, pl, t, idx) {
		return false
	}
	tmp := MissionPlan{TeamID: pl.TeamID, Order: make([]int, 0, len(pl.Order)+1)}
	tmp.Order = append(tmp.Order, pl.Order[:pos]...)
	tmp.Order = append(tmp.Order, idx)
	tmp.Order = append(tmp.Order, pl.Order[pos:]...)
	_, ok := schedulePlan(p, tmp, t)
	return ok
}

func appendCost(p Problem, pl MissionPlan, idx int) float64 {
	if len(pl.Order) == 0 {
		return 0
	}
	last := p.Stops[pl.Order[len(pl.Order)-1]]
	st := p.Stops[idx]
	return geo.HaversineM(last.Lat, last.Lng, st.Lat, st.Lng)
}

// insertCost approximates the marginal cost of inserting idx at pos:
// prev->new + new->next - prev->next + service time.
func insertCost(p Problem, pl MissionPlan, t Team, idx, pos int) float64 {
	var prevLat, prevLng float64
	if pos == 0 {
		if t.Base != nil {
			prevLat, prevLng = t.Base[0], t.Base[1]
		} else if len(pl.Order) > 0 {
			s := p.Stops[pl.Order[0]]
			prevLat, prevLng = s.Lat, s.Lng
		}
	} else {
		s := p.Stops[pl.Order[pos-1]]
		prevLat, prevLng = s.Lat, s.Lng
	}
	var nextLat, nextLng float64
	if pos < len(pl.Order) {
		s := p.Stops[pl.Order[pos]]
		nextLat, nextLng = s.Lat, s.Lng
	} else {
		nextLat, nextLng = prevLat, prevLng
	}
	st := p.Stops[idx]
	add := geo.HaversineM(prevLat, prevLng, st.Lat, st.Lng) + geo.HaversineM(st.Lat, st.Lng, nextLat, nextLng)
	rem := geo.HaversineM(prevLat, prevLng, nextLat, nextLng)
	return add - rem + float64(st.ServiceSec)
}

func planDistM(p Problem, pl MissionPlan) float64 {
	if len(pl.Order) == 0 {
		return 0
	}
	cur := p.Stops[pl.Order[0]]
	curLat, curLng := cur.Lat, cur.Lng
	total := 0.0
	for _, idx := range pl.Order {
		st := p.Stops[idx]
		total += geo.HaversineM(curLat, curLng, st.Lat, st.Lng)
		curLat, curLng = st.Lat, st.Lng
	}
	return total
}
