package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reliefops/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.HTTP.MetricsPath = "/metrics"
	cfg.Analytics.MaxFixesPerUnit = 256
	cfg.Analytics.MaxSpeedKph = 160
	cfg.Analytics.IngestRatePerSec = 1000
	cfg.Analytics.IngestBurst = 1000
	cfg.Webhooks.MaxAttempts = 3
	cfg.Webhooks.PollEvery = time.Second
	return cfg
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	s, err := NewServer(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, s.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rr.Body.String())
	}
}

func TestHealthAndVersion(t *testing.T) {
	_, h := newTestServer(t)
	if rr := do(t, h, http.MethodGet, "/healthz", nil); rr.Code != 200 {
		t.Fatalf("healthz: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/version", nil); rr.Code != 200 {
		t.Fatalf("version: got %d", rr.Code)
	}
}

func TestNeedsLifecycle(t *testing.T) {
	_, h := newTestServer(t)
	body := []byte(`{"reports":[{"externalRef":"N1","category":"water","severity":3,"location":{"lat":29.76,"lng":-95.36}}]}`)
	rr := do(t, h, http.MethodPost, "/v1/needs", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("needs create: got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Created int `json:"created"`
		Skipped int `json:"skipped"`
	}
	decode(t, rr, &created)
	if created.Created != 1 {
		t.Fatalf("created = %d, want 1", created.Created)
	}

	// same externalRef dedupes
	rr = do(t, h, http.MethodPost, "/v1/needs", body)
	decode(t, rr, &created)
	if created.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", created.Skipped)
	}

	rr = do(t, h, http.MethodGet, "/v1/needs?status=pending", nil)
	if rr.Code != 200 {
		t.Fatalf("needs list: got %d", rr.Code)
	}
	var list struct {
		Items []struct {
			ID       string `json:"id"`
			Severity int    `json:"severity"`
		} `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}

	id := list.Items[0].ID
	rr = do(t, h, http.MethodGet, "/v1/needs/"+id, nil)
	if rr.Code != 200 {
		t.Fatalf("need get: got %d", rr.Code)
	}
	rr = do(t, h, http.MethodPatch, "/v1/needs/"+id, []byte(`{"status":"triaged"}`))
	if rr.Code != 200 {
		t.Fatalf("need patch: got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestNeedsRejectMissingLocation(t *testing.T) {
	_, h := newTestServer(t)
	rr := do(t, h, http.MethodPost, "/v1/needs", []byte(`{"reports":[{"category":"food","severity":2}]}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
}

func TestPlanAndAdvance(t *testing.T) {
	_, h := newTestServer(t)
	if rr := do(t, h, http.MethodPost, "/v1/teams", []byte(`{"id":"team-1","name":"Alpha","base":{"lat":29.70,"lng":-95.40}}`)); rr.Code != 200 {
		t.Fatalf("team upsert: %d", rr.Code)
	}
	needs := []byte(`{"reports":[
		{"externalRef":"P1","category":"water","severity":4,"location":{"lat":29.76,"lng":-95.36}},
		{"externalRef":"P2","category":"medical","severity":5,"location":{"lat":29.77,"lng":-95.35}}]}`)
	if rr := do(t, h, http.MethodPost, "/v1/needs", needs); rr.Code != http.StatusAccepted {
		t.Fatalf("needs create: %d", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/v1/dispatch/plan", []byte(`{"planDate":"2025-06-01","algorithm":"greedy"}`))
	if rr.Code != 200 {
		t.Fatalf("plan: %d: %s", rr.Code, rr.Body.String())
	}
	var plan struct {
		Missions []struct {
			ID    string `json:"id"`
			Tasks []struct {
				ID         string `json:"id"`
				ETAArrival string `json:"etaArrival"`
			} `json:"tasks"`
		} `json:"missions"`
	}
	decode(t, rr, &plan)
	if len(plan.Missions) == 0 {
		t.Fatal("no missions planned")
	}
	ms := plan.Missions[0]
	if len(ms.Tasks) == 0 || ms.Tasks[0].ETAArrival == "" {
		t.Fatalf("mission has no scheduled tasks: %+v", ms)
	}

	// planned needs leave the pending pool
	rr = do(t, h, http.MethodGet, "/v1/needs?status=assigned", nil)
	var assigned struct {
		Items []json.RawMessage `json:"items"`
	}
	decode(t, rr, &assigned)
	if len(assigned.Items) == 0 {
		t.Fatal("no needs marked assigned")
	}

	rr = do(t, h, http.MethodPost, "/v1/missions/"+ms.ID+"/advance", []byte(`{}`))
	if rr.Code != 200 {
		t.Fatalf("advance: %d: %s", rr.Code, rr.Body.String())
	}
	var adv struct {
		Result struct {
			Changed bool `json:"changed"`
		} `json:"result"`
	}
	decode(t, rr, &adv)
	if !adv.Result.Changed {
		t.Fatal("advance did not change the mission")
	}
}

func TestPlanRequestValidation(t *testing.T) {
	_, h := newTestServer(t)
	rr := do(t, h, http.MethodPost, "/v1/dispatch/plan", []byte(`{"algorithm":"quantum"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/v1/dispatch/plan", []byte(`{"objectives":{"teleport":1}}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
}

func TestInventoryFlow(t *testing.T) {
	_, h := newTestServer(t)

	// subscribe to low stock alerts first so the movement enqueues one
	rr := do(t, h, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"https://example.org/hook","events":["inventory.low_stock"],"secret":"s"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("subscription: %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/v1/inventory/items", []byte(`{"depotId":"d1","sku":"WTR","name":"Water","qty":10,"reorderLevel":5}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("item create: %d: %s", rr.Code, rr.Body.String())
	}
	var item struct {
		ID string `json:"id"`
	}
	decode(t, rr, &item)

	// draw down past the reorder level
	rr = do(t, h, http.MethodPost, fmt.Sprintf("/v1/inventory/items/%s/movements", item.ID), []byte(`{"delta":-6,"reason":"issue"}`))
	if rr.Code != 200 {
		t.Fatalf("movement: %d: %s", rr.Code, rr.Body.String())
	}
	var mv struct {
		Item struct {
			Qty float64 `json:"qty"`
		} `json:"item"`
	}
	decode(t, rr, &mv)
	if mv.Item.Qty != 4 {
		t.Fatalf("qty = %v, want 4", mv.Item.Qty)
	}

	// going negative is refused
	rr = do(t, h, http.MethodPost, fmt.Sprintf("/v1/inventory/items/%s/movements", item.ID), []byte(`{"delta":-5,"reason":"issue"}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", rr.Code)
	}

	// the low stock alert is queued for delivery
	rr = do(t, h, http.MethodGet, "/v1/admin/webhooks/deliveries", nil)
	if rr.Code != 200 {
		t.Fatalf("deliveries: %d", rr.Code)
	}
	var dlv struct {
		Items []map[string]any `json:"items"`
	}
	decode(t, rr, &dlv)
	if len(dlv.Items) == 0 {
		t.Fatal("no delivery enqueued for low stock alert")
	}
}

func TestGeofenceValidationAndCrossing(t *testing.T) {
	_, h := newTestServer(t)
	if rr := do(t, h, http.MethodPost, "/v1/geofences", []byte(`{"name":"x","kind":"volcano","radiusm":1}`)); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad kind: got %d, want 400", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/geofences", []byte(`{"name":"x","kind":"hazard"}`)); rr.Code != http.StatusBadRequest {
		t.Fatalf("no geometry: got %d, want 400", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/v1/geofences", []byte(`{"name":"Flood zone","kind":"hazard","radiusM":300,"center":{"lat":29.76,"lng":-95.36}}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("geofence create: %d: %s", rr.Code, rr.Body.String())
	}

	// a wildcard subscription records the enter alert
	if rr := do(t, h, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"https://example.org/hook","events":["*"],"secret":"s"}`)); rr.Code != http.StatusCreated {
		t.Fatalf("subscription: %d", rr.Code)
	}

	fixes := []byte(`{"fixes":[{"unitId":"u1","lat":29.76,"lng":-95.36,"ts":"2025-06-01T12:00:00Z"}]}`)
	if rr := do(t, h, http.MethodPost, "/v1/analytics/fixes", fixes); rr.Code != http.StatusAccepted {
		t.Fatalf("fixes: %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/v1/admin/webhooks/deliveries", nil)
	var dlv struct {
		Items []map[string]any `json:"items"`
	}
	decode(t, rr, &dlv)
	found := false
	for _, it := range dlv.Items {
		if it["eventType"] == "geofence.entered" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no geofence.entered delivery, got %v", dlv.Items)
	}
}

func TestFixIngestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Analytics.IngestRatePerSec = 1
	cfg.Analytics.IngestBurst = 1
	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	h := s.Router()

	fixes := []byte(`{"fixes":[
		{"unitId":"u1","lat":29.76,"lng":-95.36,"ts":"2025-06-01T12:00:00Z"},
		{"unitId":"u1","lat":29.76,"lng":-95.36,"ts":"2025-06-01T12:01:00Z"},
		{"unitId":"u1","lat":29.76,"lng":-95.36,"ts":"2025-06-01T12:02:00Z"}]}`)
	rr := do(t, h, http.MethodPost, "/v1/analytics/fixes", fixes)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", rr.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	// a stationary cluster: same spot for 35 minutes
	var fixes []map[string]any
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		fixes = append(fixes, map[string]any{
			"unitId": "u-stat", "lat": 29.7600, "lng": -95.3600,
			"ts": base.Add(time.Duration(i) * 5 * time.Minute).Format(time.RFC3339),
		})
	}
	body, _ := json.Marshal(map[string]any{"fixes": fixes})
	if rr := do(t, h, http.MethodPost, "/v1/analytics/fixes", body); rr.Code != http.StatusAccepted {
		t.Fatalf("fixes: %d", rr.Code)
	}

	rr := do(t, h, http.MethodGet, "/v1/analytics/units/u-stat/patterns", nil)
	if rr.Code != 200 {
		t.Fatalf("patterns: %d", rr.Code)
	}
	var pats struct {
		Patterns []struct {
			Type string `json:"type"`
		} `json:"patterns"`
	}
	decode(t, rr, &pats)
	hasStationary := false
	for _, p := range pats.Patterns {
		if p.Type == "stationary" {
			hasStationary = true
		}
	}
	if !hasStationary {
		t.Fatalf("no stationary pattern in %+v", pats.Patterns)
	}

	rr = do(t, h, http.MethodGet, "/v1/analytics/summary", nil)
	if rr.Code != 200 {
		t.Fatalf("summary: %d", rr.Code)
	}
	var sum struct {
		Units int `json:"units"`
		Fixes int `json:"fixes"`
	}
	decode(t, rr, &sum)
	if sum.Units != 1 || sum.Fixes != 8 {
		t.Fatalf("summary units=%d fixes=%d", sum.Units, sum.Fixes)
	}

	if rr := do(t, h, http.MethodGet, "/v1/analytics/units/u-stat/suggestions", nil); rr.Code != 200 {
		t.Fatalf("suggestions: %d", rr.Code)
	}
}

func TestOpsFeedIsTenantScoped(t *testing.T) {
	s, h := newTestServer(t)
	mine := s.Broker.Subscribe(opsTopic("t_demo"))
	defer s.Broker.Unsubscribe(opsTopic("t_demo"), mine)
	other := s.Broker.Subscribe(opsTopic("t_other"))
	defer s.Broker.Unsubscribe(opsTopic("t_other"), other)

	body := []byte(`{"reports":[{"category":"water","severity":3,"location":{"lat":29.76,"lng":-95.36}}]}`)
	if rr := do(t, h, http.MethodPost, "/v1/needs", body); rr.Code != http.StatusAccepted {
		t.Fatalf("needs create: got %d", rr.Code)
	}

	select {
	case evt := <-mine:
		if evt.Type != "need.created" {
			t.Fatalf("got event %q, want need.created", evt.Type)
		}
	default:
		t.Fatal("no event on the caller tenant's feed")
	}
	select {
	case evt := <-other:
		t.Fatalf("event %q leaked to another tenant's feed", evt.Type)
	default:
	}
}

func TestPatchNeedReopenRequiresAdmin(t *testing.T) {
	_, h := newTestServer(t)
	rr := do(t, h, http.MethodPost, "/v1/needs", []byte(`{"reports":[{"category":"shelter","severity":2,"location":{"lat":29.7,"lng":-95.4}}]}`))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("needs create: got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/needs", nil)
	var list struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) == 0 {
		t.Fatal("no needs listed")
	}
	id := list.Items[0].ID

	if rr = do(t, h, http.MethodPatch, "/v1/needs/"+id, []byte(`{"status":"resolved"}`)); rr.Code != 200 {
		t.Fatalf("resolve: got %d: %s", rr.Code, rr.Body.String())
	}

	// A coordinator cannot move a resolved need backwards.
	req := httptest.NewRequest(http.MethodPatch, "/v1/needs/"+id, bytes.NewReader([]byte(`{"status":"pending"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "coordinator")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("coordinator reopen: got %d, want 409", rec.Code)
	}

	// The default dev identity is admin, so the reopen goes through.
	if rr = do(t, h, http.MethodPatch, "/v1/needs/"+id, []byte(`{"status":"pending"}`)); rr.Code != 200 {
		t.Fatalf("admin reopen: got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInventoryBelowReorderFilter(t *testing.T) {
	_, h := newTestServer(t)
	if rr := do(t, h, http.MethodPost, "/v1/inventory/items", []byte(`{"depotId":"d1","sku":"WTR-1L","name":"Water","qty":3,"reorderLevel":5}`)); rr.Code != http.StatusCreated {
		t.Fatalf("create low item: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/inventory/items", []byte(`{"depotId":"d1","sku":"MRE","name":"Rations","qty":50,"reorderLevel":5}`)); rr.Code != http.StatusCreated {
		t.Fatalf("create stocked item: got %d", rr.Code)
	}

	rr := do(t, h, http.MethodGet, "/v1/inventory/items?belowReorder=true", nil)
	var list struct {
		Items []struct {
			SKU string `json:"sku"`
		} `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) != 1 || list.Items[0].SKU != "WTR-1L" {
		t.Fatalf("belowReorder items = %+v, want only WTR-1L", list.Items)
	}
}

func TestRoleEnforcement(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/teams", bytes.NewReader([]byte(`{"id":"t"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "volunteer")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/webhooks/dlq", nil)
	req.Header.Set("X-Role", "coordinator")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("admin route as coordinator: got %d, want 403", rr.Code)
	}
}
