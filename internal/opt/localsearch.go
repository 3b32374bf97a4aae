package opt

import "math"

// twoOptWithin reverses segments inside each plan while feasible.
func twoOptWithin(p Problem, sol Solution) Solution {
	for ti := range sol.Plans {
		pl := sol.Plans[ti]
		n := len(pl.Order)
		improved := true
		for improved {
			improved = false
			for i := 1; i < n-2; i++ {
				for k := i + 1; k < n-1; k++ {
					cand := MissionPlan{TeamID: pl.TeamID, Order: append([]int(nil), pl.Order...)}
					for a, b := i, k; a < b; a, b = a+1, b-1 {
						cand.Order[a], cand.Order[b] = cand.Order[b], cand.Order[a]
					}
					if _, ok := schedulePlan(p, cand, p.Teams[ti]); !ok {
						continue
					}
					if planDistM(p, cand)+1e-6 < planDistM(p, pl) {
						pl = cand
						improved = true
					}
				}
			}
		}
		sol.Plans[ti] = pl
	}
	sol.Cost = cost(p, sol)
	return sol
}

// crossExchange swaps single stops between pairs of plans when it shortens
// their combined distance and both stay feasible.
func crossExchange(p Problem, sol Solution) Solution {
	m := len(sol.Plans)
	if m < 2 {
		return sol
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < m; a++ {
			for b := a + 1; b < m; b++ {
				pa, pb := sol.Plans[a], sol.Plans[b]
				for i := 0; i < len(pa.Order); i++ {
					for j := 0; j < len(pb.Order); j++ {
						ca := MissionPlan{TeamID: pa.TeamID, Order: append([]int(nil), pa.Order...)}
						cb := MissionPlan{TeamID: pb.TeamID, Order: append([]int(nil), pb.Order...)}
						ca.Order[i], cb.Order[j] = cb.Order[j], ca.Order[i]
						if _, ok := schedulePlan(p, ca, p.Teams[a]); !ok {
							continue
						}
						if _, ok := schedulePlan(p, cb, p.Teams[b]); !ok {
							continue
						}
						before := planDistM(p, pa) + planDistM(p, pb)
						after := planDistM(p, ca) + planDistM(p, cb)
						if after+1e-6 < before {
							sol.Plans[a], sol.Plans[b] = ca, cb
							improved = true
						}
					}
				}
			}
		}
	}
	sol.Cost = cost(p, sol)
	return sol
}

// twoOptStar exchanges short segments (length 1..2) between plans.
func twoOptStar(p Problem, sol Solution) Solution {
	m := len(sol.Plans)
	if m < 2 {
		return sol
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < m; a++ {
			for b := a + 1; b < m; b++ {
				pa, pb := sol.Plans[a], sol.Plans[b]
				for i := 0; i < len(pa.Order); i++ {
					for j := 0; j < len(pb.Order); j++ {
						for la := 1; la <= 2 && i+la <= len(pa.Order); la++ {
							for lb := 1; lb <= 2 && j+lb <= len(pb.Order); lb++ {
								segA := append([]int(nil), pa.Order[i:i+la]...)
								segB := append([]int(nil), pb.Order[j:j+lb]...)
								ca := MissionPlan{TeamID: pa.TeamID, Order: spliceOrder(pa.Order, i, la, segB)}
								cb := MissionPlan{TeamID: pb.TeamID, Order: spliceOrder(pb.Order, j, lb, segA)}
								if _, ok := schedulePlan(p, ca, p.Teams[a]); !ok {
									continue
								}
								if _, ok := schedulePlan(p, cb, p.Teams[b]); !ok {
									continue
								}
								before := planDistM(p, pa) + planDistM(p, pb)
								after := planDistM(p, ca) + planDistM(p, cb)
								if after+1e-6 < before {
									sol.Plans[a], sol.Plans[b] = ca, cb
									improved = true
								}
							}
						}
					}
				}
			}
		}
	}
	sol.Cost = cost(p, sol)
	return sol
}

// spliceOrder replaces order[at:at+n] with seg in a fresh slice, so the
// source order is never written through a shared backing array.
func spliceOrder(order []int, at, n int, seg []int) []int {
	out := make([]int, 0, len(order)-n+len(seg))
	out = append(out, order[:at]...)
	out = append(out, seg...)
	out = append(out, order[at+n:]...)
	return out
}

// relocateWithin moves single stops to better positions inside their plan.
func relocateWithin(p Problem, sol Solution) Solution {
	improved := true
	for improved {
		improved = false
		for ti := range sol.Plans {
			pl := sol.Plans[ti]
			best := pl
			bestCost := math.MaxFloat64
			for i := 0; i < len(pl.Order); i++ {
				for j := 0; j <= len(pl.Order); j++ {
					if j == i || j == i+1 {
						continue
					}
					cand := MissionPlan{TeamID: pl.TeamID, Order: append([]int(nil), pl.Order...)}
					stop := cand.Order[i]
					cand.Order = append(cand.Order[:i], cand.Order[i+1:]...)
					at := j
					if at > len(cand.Order) {
						at = len(cand.Order)
					}
					cand.Order = append(cand.Order[:at], append([]int{stop}, cand.Order[at:]...)...)
					if _, ok := schedulePlan(p, cand, p.Teams[ti]); !ok {
						continue
					}
					trial := Solution{Plans: append([]MissionPlan(nil), sol.Plans...)}
					trial.Plans[ti] = cand
					if c := cost(p, trial); c+1e-6 < bestCost {
						best = cand
						bestCost = c
					}
				}
			}
			if bestCost+1e-6 < cost(p, Solution{Plans: sol.Plans}) {
				sol.Plans[ti] = best
				improved = true
			}
		}
	}
	sol.Cost = cost(p, sol)
	return sol
}
