package opt

import (
	"math"
	"math/rand"
	"time"

	"reliefops/internal/geo"
)

// Solve runs an adaptive large-neighborhood search over the problem:
// greedy seed, random/shaw removal, greedy/regret-2 reinsertion, intra- and
// inter-mission local search, simulated-annealing acceptance, and adaptive
// operator weights. Deterministic for a fixed seed and iteration limit.
func Solve(p Problem, seed int64, timeBudget time.Duration) (Solution, Metrics) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	if p.SpeedKph <= 0 {
		p.SpeedKph = 40 // disaster-area default; roads are rarely clear
	}

	curr := greedySeed(p)
	best := curr

	remW := []float64{1, 1}
	insW := []float64{1, 1}
	if len(p.InitialRemovalWeights) == 2 {
		remW = []float64{p.InitialRemovalWeights[0], p.InitialRemovalWeights[1]}
	}
	if len(p.InitialInsertionWeights) == 2 {
		insW = []float64{p.InitialInsertionWeights[0], p.InitialInsertionWeights[1]}
	}
	temp := 1.0
	if p.InitialTemp > 0 {
		temp = p.InitialTemp
	}
	cool := 0.995
	if p.Cooling > 0 && p.Cooling < 1 {
		cool = p.Cooling
	}

	m := Metrics{BestCost: best.Cost}
	deadline := time.Now().Add(timeBudget)
	const snapshotEvery = 50
	for time.Now().Before(deadline) {
		m.Iterations++
		if p.IterationsLimit > 0 && m.Iterations >= p.IterationsLimit {
			break
		}
		k := 1 + rng.Intn(3)
		rop := rouletteSelect(remW, rng)
		m.RemovalSelects[rop]++
		iop := rouletteSelect(insW, rng)
		m.InsertSelects[iop]++

		var removed []int
		switch rop {
		case 0:
			removed = randomRemoval(curr, k, rng)
		case 1:
			removed = shawRemoval(p, curr, k, rng)
		}
		curr = withoutStops(curr, removed)
		switch iop {
		case 0:
			curr = greedyInsert(p, curr, removed)
		case 1:
			curr = regretInsert(p, curr, removed)
		}

		curr = twoOptWithin(p, curr)
		curr = crossExchange(p, curr)
		curr = twoOptStar(p, curr)
		curr.Cost = cost(p, curr)

		delta := curr.Cost - best.Cost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			if curr.Cost < best.Cost {
				best = curr
				remW[rop] += 0.1
				insW[iop] += 0.1
				m.Improvements++
				m.BestCost = best.Cost
			} else {
				remW[rop] += 0.01
				insW[iop] += 0.01
				m.AcceptedWorse++
			}
		} else {
			remW[rop] = math.Max(0.01, remW[rop]*0.999)
			insW[iop] = math.Max(0.01, insW[iop]*0.999)
		}
		temp *= cool

		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{
				Iteration: m.Iterations,
				Removal:   [2]float64{remW[0], remW[1]},
				Insertion: [2]float64{insW[0], insW[1]},
			})
		}
	}
	m.FinalCost = best.Cost
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	return best, m
}

// SolveGreedy returns just the greedy seed solution, for the fast path.
func SolveGreedy(p Problem) (Solution, Metrics) {
	if p.SpeedKph <= 0 {
		p.SpeedKph = 40
	}
	sol := greedySeed(p)
	return sol, Metrics{Iterations: 1, BestCost: sol.Cost, FinalCost: sol.Cost,
		RemovalSelects: [2]int{1, 0}, InsertSelects: [2]int{1, 0},
		FinalRemovalWeights: [2]float64{1, 1}, FinalInsertionWeights: [2]float64{1, 1}}
}

func greedySeed(p Problem) Solution {
	n := len(p.Stops)
	used := make([]bool, n)
	plans := make([]MissionPlan, len(p.Teams))
	for ti := range plans {
		plans[ti] = MissionPlan{TeamID: p.Teams[ti].ID, Order: []int{}}
	}
	for assigned := 0; assigned < n; {
		progress := false
		for ti := range p.Teams {
			bestIdx, bestDelta := -1, math.MaxFloat64
			for i := 0; i < n; i++ {
				if used[i] || !feasibleAdd(p, plans[ti], p.Teams[ti], i) {
					continue
				}
				if d := appendCost(p, plans[ti], i); d < bestDelta {
					bestDelta, bestIdx = d, i
				}
			}
			if bestIdx >= 0 {
				plans[ti].Order = append(plans[ti].Order, bestIdx)
				used[bestIdx] = true
				assigned++
				progress = true
				if assigned == n {
					break
				}
			}
		}
		if !progress {
			break
		}
	}
	sol := Solution{Plans: plans}
	sol.Cost = cost(p, sol)
	return sol
}

func randomRemoval(sol Solution, k int, rng *rand.Rand) []int {
	var all []int
	for _, pl := range sol.Plans {
		all = append(all, pl.Order...)
	}
	if len(all) == 0 {
		return nil
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if k > len(all) {
		k = len(all)
	}
	return append([]int(nil), all[:k]...)
}

// shawRemoval removes k stops related to a random seed stop by geography
// and time-window overlap, so reinsertion can rebuild a coherent cluster.
func shawRemoval(p Problem, sol Solution, k int, rng *rand.Rand) []int {
	var assigned []int
	for _, pl := range sol.Plans {
		assigned = append(assigned, pl.Order...)
	}
	if len(assigned) == 0 {
		return nil
	}
	seedIdx := assigned[rng.Intn(len(assigned))]
	s0 := p.Stops[seedIdx]
	rel := make([]scored, 0, len(assigned))
	for _, idx := range assigned {
		if idx == seedIdx {
			continue
		}
		s := p.Stops[idx]
		d := geo.HaversineM(s0.Lat, s0.Lng, s.Lat, s.Lng)
		overlap := 0.0
		if s0.Window != nil && s.Window != nil {
			overlap = windowOverlapSec(*s0.Window, *s.Window)
		}
		rel = append(rel, scored{idx: idx, score: d - 1000.0*overlap})
	}
	sortScoredAsc(rel)
	removed := []int{seedIdx}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].idx)
	}
	return removed
}

type scored struct {
	idx   int
	score float64
}

func sortScoredAsc(rel []scored) {
	for i := 1; i < len(rel); i++ {
		for j := i; j > 0 && rel[j].score < rel[j-1].score; j-- {
			rel[j], rel[j-1] = rel[j-1], rel[j]
		}
	}
}

func windowOverlapSec(a, b Window) float64 {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}

func withoutStops(sol Solution, removed []int) Solution {
	if len(removed) == 0 {
		return sol
	}
	rm := map[int]bool{}
	for _, i := range removed {
		rm[i] = true
	}
	out := Solution{Plans: make([]MissionPlan, len(sol.Plans))}
	for i := range sol.Plans {
		out.Plans[i].TeamID = sol.Plans[i].TeamID
		for _, idx := range sol.Plans[i].Order {
			if !rm[idx] {
				out.Plans[i].Order = append(out.Plans[i].Order, idx)
			}
		}
	}
	return out
}

// greedyInsert places each removed stop at its cheapest feasible position.
func greedyInsert(p Problem, sol Solution, removed []int) Solution {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		bestPlan, bestPos, bestIdx := -1, -1, 0
		bestCost := math.MaxFloat64
		for ni, idx := range pending {
			for ti, pl := range sol.Plans {
				for pos := 0; pos <= len(pl.Order); pos++ {
					if !feasibleInsertAt(p, pl, p.Teams[ti], idx, pos) {
						continue
					}
					if c := insertCost(p, pl, p.Teams[ti], idx, pos); c < bestCost {
						bestCost, bestPlan, bestPos, bestIdx = c, ti, pos, ni
					}
				}
			}
		}
		if bestPlan == -1 {
			sol, pending = forceAppendShortest(sol, pending)
			continue
		}
		sol.Plans[bestPlan] = insertAt(sol.Plans[bestPlan], pending[bestIdx], bestPos)
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}
	sol.Cost = cost(p, sol)
	return sol
}

// regretInsert picks the stop with the largest regret (gap between its best
// and second-best insertion cost) first, then relocates single stops.
func regretInsert(p Problem, sol Solution, removed []int) Solution {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		chosen, chosenPlan, chosenPos := -1, -1, -1
		chosenBest := math.MaxFloat64
		chosenSecond := math.MaxFloat64
		for ni, idx := range pending {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			bp, bpos := -1, -1
			for ti, pl := range sol.Plans {
				for pos := 0; pos <= len(pl.Order); pos++ {
					if !feasibleInsertAt(p, pl, p.Teams[ti], idx, pos) {
						continue
					}
					c := insertCost(p, pl, p.Teams[ti], idx, pos)
					if c < best1 {
						best2, best1, bp, bpos = best1, c, ti, pos
					} else if c < best2 {
						best2 = c
					}
				}
			}
			if best1 == math.MaxFloat64 {
				continue
			}
			regret := best2 - best1
			if regret < 0 {
				regret = 0
			}
			if chosen == -1 || regret > (chosenSecond-chosenBest) {
				chosen, chosenPlan, chosenPos = ni, bp, bpos
				chosenBest, chosenSecond = best1, best2
			}
		}
		if chosen == -1 {
			sol, pending = forceAppendShortest(sol, pending)
			continue
		}
		sol.Plans[chosenPlan] = insertAt(sol.Plans[chosenPlan], pending[chosen], chosenPos)
		pending = append(pending[:chosen], pending[chosen+1:]...)
	}
	sol.Cost = cost(p, sol)
	return relocateWithin(p, sol)
}

// forceAppendShortest parks one unplaceable stop on the shortest plan so the
// loop always terminates; the unserved penalty in cost() keeps pressure on.
func forceAppendShortest(sol Solution, pending []int) (Solution, []int) {
	shortest := 0
	for i := range sol.Plans {
		if len(sol.Plans[i].Order) < len(sol.Plans[shortest].Order) {
			shortest = i
		}
	}
	sol.Plans[shortest].Order = append(sol.Plans[shortest].Order, pending[0])
	return sol, pending[1:]
}

func insertAt(pl MissionPlan, idx, pos int) MissionPlan {
	if pos >= len(pl.Order) {
		pl.Order = append(pl.Order, idx)
		return pl
	}
	pl.Order = append(pl.Order[:pos+1], pl.Order[pos:]...)
	pl.Order[pos] = idx
	return pl
}

func rouletteSelect(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
