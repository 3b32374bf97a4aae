package store

import (
	"time"

	"reliefops/internal/model"
)

// normalizeTrigger maps field-event shorthand to policy trigger names.
func normalizeTrigger(reason string) string {
	switch reason {
	case "arrive":
		return "geofence_arrive"
	case "checkin":
		return "checkin_ack"
	}
	return reason
}

// applyAdvance runs the auto-advance policy and, when allowed, marks the
// current task done and starts the next one. The mission is mutated in
// place; callers persist it only when the result reports a change.
func applyAdvance(ms *model.Mission, req model.AdvanceRequest) (model.AdvanceResult, []model.PolicyAlert) {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)
	res := model.AdvanceResult{MissionID: ms.ID, TS: ts}
	var alerts []model.PolicyAlert

	idx := -1
	for i := range ms.Tasks {
		if ms.Tasks[i].Status != "done" {
			idx = i
			break
		}
	}
	if idx == -1 {
		return res, nil
	}

	if !req.Force && ms.AutoAdvance != nil {
		pol := ms.AutoAdvance
		if !pol.Enabled {
			return res, nil
		}
		reason := normalizeTrigger(req.Reason)
		if pol.RequireCheckin && reason != "checkin_ack" {
			alerts = append(alerts, model.PolicyAlert{Reason: "checkin required", TS: ts})
			return res, alerts
		}
		if pol.Trigger != "" && reason != "" && pol.Trigger != reason {
			return res, nil
		}
		// A task with no recorded start has no measurable dwell yet.
		if pol.MinDwellSec > 0 {
			started, err := time.Parse(time.RFC3339, ms.Tasks[idx].StartedAt)
			if err == nil && now.Sub(started) < time.Duration(pol.MinDwellSec)*time.Second {
				alerts = append(alerts, model.PolicyAlert{Reason: "min dwell not met", TS: ts})
				return res, alerts
			}
		}
	}

	ms.Tasks[idx].Status = "done"
	res.FromTaskID = ms.Tasks[idx].ID
	if idx+1 < len(ms.Tasks) {
		ms.Tasks[idx+1].Status = "en_route"
		ms.Tasks[idx+1].StartedAt = ts
		res.ToTaskID = ms.Tasks[idx+1].ID
	} else {
		ms.Status = "completed"
	}
	res.Changed = true
	ms.Version++
	return res, alerts
}
