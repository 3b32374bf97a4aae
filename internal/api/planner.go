package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reliefops/internal/geo"
	"reliefops/internal/model"
	"reliefops/internal/opt"
)

const (
	defaultSpeedKph   = 40.0
	defaultServiceSec = 600
	planStartHourUTC  = 8
	defaultTimeBudget = 300 * time.Millisecond
	defaultMaxWorkSec = 4 * 3600
	defaultRestSec    = 30 * 60
)

// PlanHandler handles POST /v1/dispatch/plan: turn pending need reports
// into missions, one per team, and persist them alongside solver metrics.
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var req model.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}
	if req.PlanDate == "" {
		req.PlanDate = time.Now().UTC().Format("2006-01-02")
	}

	missions, metrics, servedNeeds, err := s.plan(r.Context(), req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Plan failed", err.Error(), r.URL.Path)
		return
	}
	batchID := "plan_" + uuid.NewString()
	if len(missions) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"batchId": batchID, "missions": []model.Mission{}})
		return
	}

	if err := s.Store.SaveMissions(r.Context(), req.TenantID, missions); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save missions failed", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.MarkNeedsAssigned(r.Context(), req.TenantID, servedNeeds); err != nil {
		s.Log.Warn("mark needs assigned failed", zap.Error(err))
	}
	algo := req.Algorithm
	if algo == "" {
		algo = "alns"
	}
	if err := s.Store.SavePlanMetrics(r.Context(), req.TenantID, req.PlanDate, algo, metricsMap(metrics)); err != nil {
		s.Log.Warn("save plan metrics failed", zap.Error(err))
	}

	for _, ms := range missions {
		s.Pub.Emit(r.Context(), req.TenantID, "mission.planned", map[string]any{
			"missionId": ms.ID, "teamId": ms.TeamID, "tasks": len(ms.Tasks), "planDate": ms.PlanDate,
		})
		s.Broker.Publish(opsTopic(req.TenantID), SSEEvent{Type: "mission.planned", Data: map[string]any{"missionId": ms.ID, "teamId": ms.TeamID}})
	}
	writeJSON(w, http.StatusOK, map[string]any{"batchId": batchID, "missions": missions})
}

// plan loads the planning inputs, runs the solver, and converts the
// solution into missions with scheduled ETAs.
func (s *Server) plan(ctx context.Context, req model.PlanRequest) ([]model.Mission, opt.Metrics, []string, error) {
	needs, err := s.planNeeds(ctx, req)
	if err != nil {
		return nil, opt.Metrics{}, nil, err
	}
	teams, err := s.planTeams(ctx, req)
	if err != nil {
		return nil, opt.Metrics{}, nil, err
	}
	if len(needs) == 0 || len(teams) == 0 {
		return nil, opt.Metrics{}, nil, nil
	}

	prob := buildProblem(req, needs, teams)
	var sol opt.Solution
	var metrics opt.Metrics
	if req.Algorithm == "greedy" {
		sol, metrics = opt.SolveGreedy(prob)
	} else {
		budget := defaultTimeBudget
		if req.TimeBudgetMs > 0 {
			budget = time.Duration(req.TimeBudgetMs) * time.Millisecond
		}
		sol, metrics = opt.Solve(prob, time.Now().UnixNano(), budget)
	}

	start := planEpoch(req.PlanDate)
	missions := make([]model.Mission, 0, len(sol.Plans))
	var served []string
	for pi, pl := range sol.Plans {
		if len(pl.Order) == 0 {
			continue
		}
		ms := model.Mission{
			ID:       fmt.Sprintf("m_%s_%s_%d", req.PlanDate, pl.TeamID, pi),
			Version:  1,
			PlanDate: req.PlanDate,
			Status:   "planned",
			TeamID:   pl.TeamID,
			CostBreakdown: map[string]float64{
				"total": sol.Cost,
			},
		}
		curLat, curLng := needs[pl.Order[0]].Location.Lat, needs[pl.Order[0]].Location.Lng
		if base := teamBase(teams, pl.TeamID); base != nil {
			curLat, curLng = base.Lat, base.Lng
		}
		at := start
		for seq, idx := range pl.Order {
			n := needs[idx]
			distM := geo.HaversineM(curLat, curLng, n.Location.Lat, n.Location.Lng)
			travelSec := int(distM / (prob.SpeedKph / 3.6))
			at = at.Add(time.Duration(travelSec) * time.Second)
			svc := n.ServiceTimeSec
			if svc <= 0 {
				svc = defaultServiceSec
			}
			ms.Tasks = append(ms.Tasks, model.Task{
				ID:           fmt.Sprintf("%s_t%d", ms.ID, seq),
				Seq:          seq,
				Kind:         "service",
				NeedID:       n.ID,
				Location:     n.Location,
				DistM:        int(distM),
				TravelSec:    travelSec,
				ETAArrival:   at.Format(time.RFC3339),
				ETADeparture: at.Add(time.Duration(svc) * time.Second).Format(time.RFC3339),
				Status:       "pending",
			})
			at = at.Add(time.Duration(svc) * time.Second)
			curLat, curLng = n.Location.Lat, n.Location.Lng
			served = append(served, n.ID)
		}
		missions = append(missions, ms)
	}
	return missions, metrics, served, nil
}

func (s *Server) planNeeds(ctx context.Context, req model.PlanRequest) ([]model.NeedReport, error) {
	if len(req.IncludeNeeds) > 0 {
		out := make([]model.NeedReport, 0, len(req.IncludeNeeds))
		for _, id := range req.IncludeNeeds {
			n, err := s.Store.GetNeed(ctx, req.TenantID, id)
			if err != nil {
				return nil, fmt.Errorf("need %s: %w", id, err)
			}
			out = append(out, n)
		}
		return out, nil
	}
	var out []model.NeedReport
	cursor := ""
	for {
		page, next, err := s.Store.ListNeeds(ctx, req.TenantID, "pending", "", cursor, 500)
		if err != nil {
			return nil, err
		}
		for _, n := range page {
			if n.Location != nil {
				out = append(out, n)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}

func (s *Server) planTeams(ctx context.Context, req model.PlanRequest) ([]model.Team, error) {
	if len(req.TeamPool) > 0 {
		out := make([]model.Team, 0, len(req.TeamPool))
		for _, id := range req.TeamPool {
			t, err := s.Store.GetTeam(ctx, req.TenantID, id)
			if err != nil {
				return nil, fmt.Errorf("team %s: %w", id, err)
			}
			out = append(out, t)
		}
		return out, nil
	}
	var out []model.Team
	cursor := ""
	for {
		page, next, err := s.Store.ListTeams(ctx, req.TenantID, cursor, 500)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}

func buildProblem(req model.PlanRequest, needs []model.NeedReport, teams []model.Team) opt.Problem {
	prob := opt.Problem{
		Start:      planEpoch(req.PlanDate),
		SpeedKph:   defaultSpeedKph,
		Objectives: req.Objectives,
		MaxWorkSec: defaultMaxWorkSec,
		RestSec:    defaultRestSec,

		IterationsLimit:         req.MaxIterations,
		InitialTemp:             req.InitTemp,
		Cooling:                 req.Cooling,
		InitialRemovalWeights:   req.RemovalWeights,
		InitialInsertionWeights: req.InsertionWeights,
	}
	for _, n := range needs {
		st := opt.Stop{
			ID:         n.ID,
			Lat:        n.Location.Lat,
			Lng:        n.Location.Lng,
			ServiceSec: n.ServiceTimeSec,
			Skills:     n.RequiredSkills,
			Severity:   n.Severity,
		}
		if st.ServiceSec <= 0 {
			st.ServiceSec = defaultServiceSec
		}
		if n.Demand != nil {
			st.Load = opt.Load{WeightKg: n.Demand.WeightKg, VolumeM3: n.Demand.VolumeM3}
		}
		if n.TimeWindow != nil {
			ws, err1 := time.Parse(time.RFC3339, n.TimeWindow.Start)
			we, err2 := time.Parse(time.RFC3339, n.TimeWindow.End)
			if err1 == nil && err2 == nil {
				st.Window = &opt.Window{Start: ws, End: we}
			}
		}
		prob.Stops = append(prob.Stops, st)
	}
	for _, t := range teams {
		ot := opt.Team{ID: t.ID, CapKg: t.CapKg, CapM3: t.CapM3, Skills: t.Skills}
		if t.Base != nil {
			ot.Base = &[2]float64{t.Base.Lat, t.Base.Lng}
		}
		prob.Teams = append(prob.Teams, ot)
	}
	return prob
}

func planEpoch(planDate string) time.Time {
	d, err := time.Parse("2006-01-02", planDate)
	if err != nil {
		d = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return d.Add(planStartHourUTC * time.Hour)
}

func teamBase(teams []model.Team, id string) *model.GeoPoint {
	for _, t := range teams {
		if t.ID == id {
			return t.Base
		}
	}
	return nil
}

func metricsMap(m opt.Metrics) map[string]any {
	return map[string]any{
		"iterations":    m.Iterations,
		"improvements":  m.Improvements,
		"acceptedWorse": m.AcceptedWorse,
		"bestCost":      m.BestCost,
		"finalCost":     m.FinalCost,
		"removalSelects": map[string]int{
			"random": m.RemovalSelects[0], "shaw": m.RemovalSelects[1],
		},
		"insertSelects": map[string]int{
			"greedy": m.InsertSelects[0], "regret2": m.InsertSelects[1],
		},
		"finalRemovalWeights":   []float64{m.FinalRemovalWeights[0], m.FinalRemovalWeights[1]},
		"finalInsertionWeights": []float64{m.FinalInsertionWeights[0], m.FinalInsertionWeights[1]},
	}
}
