package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"reliefops/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set. It keeps
// per-tenant id indexes so listings come back in insertion order.
type Memory struct {
	mu        sync.Mutex
	needs     map[string]model.NeedReport
	needsTen  map[string][]string
	needRefs  map[string]map[string]string // tenant -> externalRef -> need id
	teams     map[string]model.Team
	teamsTen  map[string][]string
	missions  map[string]model.Mission
	missTen   map[string][]string
	items     map[string]model.InventoryItem
	itemsTen  map[string][]string
	moves     map[string][]model.StockMovement // item id -> movements
	gfs       map[string]model.Geofence
	gfsTen    map[string][]string
	subs      map[string][]model.Subscription
	dlvs      map[string]*memDelivery
	dlvsTen   map[string][]string
	dlq       []map[string]any
	planMx    map[string]map[string][]map[string]any // tenant -> planDate -> rows
	fieldEvts map[string][]model.FieldEvent
}

func NewMemory() *Memory {
	return &Memory{
		needs:     map[string]model.NeedReport{},
		needsTen:  map[string][]string{},
		needRefs:  map[string]map[string]string{},
		teams:     map[string]model.Team{},
		teamsTen:  map[string][]string{},
		missions:  map[string]model.Mission{},
		missTen:   map[string][]string{},
		items:     map[string]model.InventoryItem{},
		itemsTen:  map[string][]string{},
		moves:     map[string][]model.StockMovement{},
		gfs:       map[string]model.Geofence{},
		gfsTen:    map[string][]string{},
		subs:      map[string][]model.Subscription{},
		dlvs:      map[string]*memDelivery{},
		dlvsTen:   map[string][]string{},
		dlq:       []map[string]any{},
		planMx:    map[string]map[string][]map[string]any{},
		fieldEvts: map[string][]model.FieldEvent{},
	}
}

// memDelivery augments WebhookDelivery with scheduling and outcome state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// cursorStart finds the index after the cursor id in an ordered id list.
func cursorStart(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

// Needs

func (m *Memory) CreateNeeds(ctx context.Context, tenantID string, needs []model.NeedReportIn) (string, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.needRefs[tenantID] == nil {
		m.needRefs[tenantID] = map[string]string{}
	}
	created, skipped := 0, 0
	for _, in := range needs {
		if in.ExternalRef != "" {
			if _, dup := m.needRefs[tenantID][in.ExternalRef]; dup {
				skipped++
				continue
			}
		}
		id := uuid.New().String()
		sev := in.Severity
		if sev < 1 {
			sev = 1
		}
		if sev > 5 {
			sev = 5
		}
		n := model.NeedReport{
			ID:             id,
			TenantID:       tenantID,
			ExternalRef:    in.ExternalRef,
			Category:       in.Category,
			Description:    in.Description,
			Severity:       sev,
			Status:         "pending",
			Location:       in.Location,
			ServiceTimeSec: in.ServiceTimeSec,
			TimeWindow:     in.TimeWindow,
			RequiredSkills: in.RequiredSkills,
			Demand:         in.Demand,
			CreatedAt:      nowRFC3339(),
		}
		m.needs[id] = n
		m.needsTen[tenantID] = append(m.needsTen[tenantID], id)
		if in.ExternalRef != "" {
			m.needRefs[tenantID][in.ExternalRef] = id
		}
		created++
	}
	return uuid.New().String(), created, skipped, nil
}

func (m *Memory) ListNeeds(ctx context.Context, tenantID, status, category, cursor string, limit int) ([]model.NeedReport, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.needsTen[tenantID]
	start := cursorStart(ids, cursor)
	limit = defaultLimit(limit)
	out := []model.NeedReport{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		n := m.needs[ids[i]]
		if status != "" && n.Status != status {
			continue
		}
		if category != "" && n.Category != category {
			continue
		}
		out = append(out, n)
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetNeed(ctx context.Context, tenantID, id string) (model.NeedReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.needs[id]
	if !ok || n.TenantID != tenantID {
		return model.NeedReport{}, ErrNotFound
	}
	return n, nil
}

func (m *Memory) PatchNeed(ctx context.Context, tenantID, id string, patch model.NeedPatch) (model.NeedReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.needs[id]
	if !ok || n.TenantID != tenantID {
		return model.NeedReport{}, ErrNotFound
	}
	if patch.Status != "" {
		if !validNeedTransition(n.Status, patch.Status, patch.AllowReopen) {
			return model.NeedReport{}, ErrInvalidTransition
		}
		n.Status = patch.Status
	}
	if patch.Severity >= 1 && patch.Severity <= 5 {
		n.Severity = patch.Severity
	}
	m.needs[id] = n
	return n, nil
}

func (m *Memory) MarkNeedsAssigned(ctx context.Context, tenantID string, needIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range needIDs {
		if n, ok := m.needs[id]; ok && n.TenantID == tenantID {
			n.Status = "assigned"
			m.needs[id] = n
		}
	}
	return nil
}

// Teams

func (m *Memory) UpsertTeam(ctx context.Context, team model.Team) (model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	if _, exists := m.teams[team.ID]; !exists {
		m.teamsTen[team.TenantID] = append(m.teamsTen[team.TenantID], team.ID)
	}
	m.teams[team.ID] = team
	return team, nil
}

func (m *Memory) ListTeams(ctx context.Context, tenantID, cursor string, limit int) ([]model.Team, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.teamsTen[tenantID]
	start := cursorStart(ids, cursor)
	limit = defaultLimit(limit)
	out := []model.Team{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.teams[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetTeam(ctx context.Context, tenantID, id string) (model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok || t.TenantID != tenantID {
		return model.Team{}, ErrNotFound
	}
	return t, nil
}

// Missions

func (m *Memory) SaveMissions(ctx context.Context, tenantID string, missions []model.Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range missions {
		ms.TenantID = tenantID
		if _, exists := m.missions[ms.ID]; !exists {
			m.missTen[tenantID] = append(m.missTen[tenantID], ms.ID)
		}
		m.missions[ms.ID] = ms
	}
	return nil
}

func (m *Memory) GetMission(ctx context.Context, tenantID, missionID string) (model.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[missionID]
	if !ok || ms.TenantID != tenantID {
		return model.Mission{}, ErrNotFound
	}
	return ms, nil
}

func (m *Memory) ListMissions(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Mission, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.missTen[tenantID]
	start := cursorStart(ids, cursor)
	limit = defaultLimit(limit)
	out := []model.Mission{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		ms := m.missions[ids[i]]
		if status != "" && ms.Status != status {
			continue
		}
		out = append(out, ms)
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) AssignMission(ctx context.Context, tenantID, missionID string, req model.AssignmentRequest) (model.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[missionID]
	if !ok || ms.TenantID != tenantID {
		return model.Mission{}, ErrNotFound
	}
	ms.TeamID = req.TeamID
	ms.Status = "assigned"
	if ms.Version == 0 {
		ms.Version = 1
	}
	m.missions[missionID] = ms
	return ms, nil
}

func (m *Memory) PatchMission(ctx context.Context, tenantID, missionID string, patch model.MissionPatch) (model.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[missionID]
	if !ok || ms.TenantID != tenantID {
		return model.Mission{}, ErrNotFound
	}
	if patch.Status != "" {
		ms.Status = patch.Status
	}
	if patch.AutoAdvance != nil {
		ms.AutoAdvance = patch.AutoAdvance
	}
	if ms.Version == 0 {
		ms.Version = 1
	} else {
		ms.Version++
	}
	m.missions[missionID] = ms
	return ms, nil
}

func (m *Memory) AdvanceMission(ctx context.Context, tenantID, missionID string, req model.AdvanceRequest) (model.AdvanceResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[missionID]
	if !ok || ms.TenantID != tenantID {
		return model.AdvanceResponse{}, ErrNotFound
	}
	res, alerts := applyAdvance(&ms, req)
	if res.Changed {
		m.missions[missionID] = ms
	}
	return model.AdvanceResponse{Result: res, Mission: ms, Alerts: alerts}, nil
}

func (m *Memory) ListActiveMissionsForUnit(ctx context.Context, tenantID, unitID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, id := range m.missTen[tenantID] {
		ms := m.missions[id]
		if ms.TeamID == unitID && ms.Status != "completed" && ms.Status != "cancelled" {
			out = append(out, id)
		}
	}
	return out, nil
}

// Field events

func (m *Memory) InsertFieldEvents(ctx context.Context, tenantID string, events []model.FieldEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fieldEvts[tenantID] = append(m.fieldEvts[tenantID], events...)
	return len(events), nil
}

// Inventory

func (m *Memory) CreateInventoryItem(ctx context.Context, tenantID string, in model.InventoryItemIn) (model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	it := model.InventoryItem{
		ID:           id,
		TenantID:     tenantID,
		DepotID:      in.DepotID,
		SKU:          in.SKU,
		Name:         in.Name,
		Category:     in.Category,
		Unit:         in.Unit,
		Qty:          in.Qty,
		ReorderLevel: in.ReorderLevel,
		UpdatedAt:    nowRFC3339(),
	}
	m.items[id] = it
	m.itemsTen[tenantID] = append(m.itemsTen[tenantID], id)
	return it, nil
}

func (m *Memory) ListInventoryItems(ctx context.Context, tenantID, depotID, category string, belowReorder bool, cursor string, limit int) ([]model.InventoryItem, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.itemsTen[tenantID]
	start := cursorStart(ids, cursor)
	limit = defaultLimit(limit)
	out := []model.InventoryItem{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		it := m.items[ids[i]]
		if depotID != "" && it.DepotID != depotID {
			continue
		}
		if category != "" && it.Category != category {
			continue
		}
		if belowReorder && (it.ReorderLevel <= 0 || it.Qty > it.ReorderLevel) {
			continue
		}
		out = append(out, it)
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetInventoryItem(ctx context.Context, tenantID, id string) (model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return model.InventoryItem{}, ErrNotFound
	}
	return it, nil
}

func (m *Memory) PatchInventoryItem(ctx context.Context, tenantID, id string, patch model.InventoryItemPatch) (model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return model.InventoryItem{}, ErrNotFound
	}
	if patch.Name != "" {
		it.Name = patch.Name
	}
	if patch.Category != "" {
		it.Category = patch.Category
	}
	if patch.ReorderLevel != nil {
		it.ReorderLevel = *patch.ReorderLevel
	}
	it.UpdatedAt = nowRFC3339()
	m.items[id] = it
	return it, nil
}

func (m *Memory) ApplyStockMovement(ctx context.Context, tenantID, itemID string, delta float64, reason, missionID, actor string) (model.InventoryItem, model.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.TenantID != tenantID {
		return model.InventoryItem{}, model.StockMovement{}, ErrNotFound
	}
	if it.Qty+delta < 0 {
		return model.InventoryItem{}, model.StockMovement{}, ErrInsufficientStock
	}
	it.Qty += delta
	it.UpdatedAt = nowRFC3339()
	m.items[itemID] = it
	mv := model.StockMovement{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		Delta:     delta,
		Reason:    reason,
		MissionID: missionID,
		Actor:     actor,
		TS:        nowRFC3339(),
	}
	m.moves[itemID] = append(m.moves[itemID], mv)
	return it, mv, nil
}

func (m *Memory) ListStockMovements(ctx context.Context, tenantID, itemID, cursor string, limit int) ([]model.StockMovement, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.TenantID != tenantID {
		return nil, "", ErrNotFound
	}
	list := m.moves[itemID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = defaultLimit(limit)
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.StockMovement(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

// Geofences

func (m *Memory) CreateGeofence(ctx context.Context, tenantID string, in model.GeofenceInput) (model.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	gf := model.Geofence{
		ID: id, TenantID: tenantID,
		Name: in.Name, Kind: in.Kind,
		RadiusM: in.RadiusM, Center: in.Center, Polygon: in.Polygon,
		Active: true,
	}
	m.gfs[id] = gf
	m.gfsTen[tenantID] = append(m.gfsTen[tenantID], id)
	return gf, nil
}

func (m *Memory) ListGeofences(ctx context.Context, tenantID, cursor string, limit int) ([]model.Geofence, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.gfsTen[tenantID]
	start := cursorStart(ids, cursor)
	limit = defaultLimit(limit)
	out := []model.Geofence{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.gfs[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetGeofence(ctx context.Context, tenantID, id string) (model.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gf, ok := m.gfs[id]
	if !ok || gf.TenantID != tenantID {
		return model.Geofence{}, ErrNotFound
	}
	return gf, nil
}

func (m *Memory) PatchGeofence(ctx context.Context, tenantID, id string, in model.GeofenceInput) (model.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gf, ok := m.gfs[id]
	if !ok || gf.TenantID != tenantID {
		return model.Geofence{}, ErrNotFound
	}
	if in.Name != "" {
		gf.Name = in.Name
	}
	if in.Kind != "" {
		gf.Kind = in.Kind
	}
	if in.RadiusM != 0 {
		gf.RadiusM = in.RadiusM
	}
	if in.Center != nil {
		gf.Center = in.Center
	}
	if in.Polygon != nil {
		gf.Polygon = in.Polygon
	}
	m.gfs[id] = gf
	return gf, nil
}

func (m *Memory) DeleteGeofence(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gf, ok := m.gfs[id]
	if !ok || gf.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.gfs, id)
	ids := m.gfsTen[tenantID]
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	m.gfsTen[tenantID] = out
	return nil
}

// Subscriptions

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = defaultLimit(limit)
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret,
			Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.dlvs[id] = d
	m.dlvsTen[tenantID] = append(m.dlvsTen[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, ids := range m.dlvsTen {
		for _, id := range ids {
			d := m.dlvs[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dlvs[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dlvs[id]
	if d == nil {
		return nil
	}
	d.Status = "failed"
	m.dlq = append(m.dlq, map[string]any{
		"id":           id,
		"tenantId":     d.TenantID,
		"eventType":    d.EventType,
		"lastError":    lastError,
		"responseCode": responseCode,
		"latencyMs":    latencyMs,
	})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.dlvsTen[tenantID] {
		d := m.dlvs[id]
		if d == nil {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		item := map[string]any{
			"id": d.ID, "eventType": d.EventType, "status": d.Status,
			"attempts": d.Attempts, "url": d.URL,
		}
		if !d.NextAttemptAt.IsZero() {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		out = append(out, item)
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dlvs[id]
	if d != nil && d.TenantID == tenantID {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, row := range m.dlq {
		if row["tenantId"] != tenantID {
			continue
		}
		if eventType != "" && row["eventType"] != eventType {
			continue
		}
		out = append(out, row)
	}
	return out, "", nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.dlq[:0]
	for _, row := range m.dlq {
		if row["id"] == id && row["tenantId"] == tenantID {
			if d := m.dlvs[id]; d != nil {
				d.Status = "pending"
				d.Attempts = 0
				d.NextAttemptAt = time.Now()
			}
			continue
		}
		kept = append(kept, row)
	}
	m.dlq = kept
	return nil
}

// Plan metrics

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planDate, algo string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planMx[tenantID] == nil {
		m.planMx[tenantID] = map[string][]map[string]any{}
	}
	items := m.planMx[tenantID][planDate]
	metrics["algo"] = algo
	found := false
	for i := range items {
		if items[i]["algo"] == algo {
			items[i] = metrics
			found = true
			break
		}
	}
	if !found {
		items = append(items, metrics)
	}
	m.planMx[tenantID][planDate] = items
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.planMx[tenantID][planDate]
	if algo == "" {
		return append([]map[string]any(nil), items...), nil
	}
	out := []map[string]any{}
	for _, it := range items {
		if it["algo"] == algo {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) MissionStats(ctx context.Context, tenantID, planDate string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	missions, tasks, distM, travelSec := 0, 0, 0, 0
	for _, id := range m.missTen[tenantID] {
		ms := m.missions[id]
		if planDate != "" && ms.PlanDate != planDate {
			continue
		}
		missions++
		tasks += len(ms.Tasks)
		for _, t := range ms.Tasks {
			distM += t.DistM
			travelSec += t.TravelSec
		}
	}
	avg := 0.0
	if missions > 0 {
		avg = float64(tasks) / float64(missions)
	}
	return map[string]any{
		"missions":        missions,
		"tasks":           tasks,
		"totalDistM":      distM,
		"totalTravelSec":  travelSec,
		"avgTasksPerPlan": avg,
	}, nil
}
