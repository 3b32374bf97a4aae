package model

// Core domain types shared by the API, store, and analytics layers.

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow bounds a service visit. Values are RFC3339 strings on the wire.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NeedReportIn is a resident-submitted request for assistance.
type NeedReportIn struct {
	ExternalRef    string         `json:"externalRef,omitempty"`
	Category       string         `json:"category"` // water, food, medical, shelter, rescue, other
	Description    string         `json:"description,omitempty"`
	Severity       int            `json:"severity"` // 1 (low) .. 5 (life threatening)
	Location       *GeoPoint      `json:"location"`
	Contact        string         `json:"contact,omitempty"`
	ServiceTimeSec int            `json:"serviceTimeSec,omitempty"`
	TimeWindow     *TimeWindow    `json:"timeWindow,omitempty"`
	RequiredSkills []string       `json:"requiredSkills,omitempty"`
	Demand         *Demand        `json:"demand,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Demand is the supply load a need consumes from a team's capacity.
type Demand struct {
	WeightKg float64 `json:"weightKg,omitempty"`
	VolumeM3 float64 `json:"volumeM3,omitempty"`
}

// NeedReport is the stored read model for a need. It carries the planning
// inputs so the dispatcher can build missions straight from a listing.
type NeedReport struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenantId"`
	ExternalRef    string      `json:"externalRef,omitempty"`
	Category       string      `json:"category"`
	Description    string      `json:"description,omitempty"`
	Severity       int         `json:"severity"`
	Status         string      `json:"status"` // pending, triaged, assigned, resolved, cancelled
	Location       *GeoPoint   `json:"location,omitempty"`
	ServiceTimeSec int         `json:"serviceTimeSec,omitempty"`
	TimeWindow     *TimeWindow `json:"timeWindow,omitempty"`
	RequiredSkills []string    `json:"requiredSkills,omitempty"`
	Demand         *Demand     `json:"demand,omitempty"`
	CreatedAt      string      `json:"createdAt,omitempty"`
}

// NeedPatch updates mutable fields of a need report. AllowReopen is set
// by the handler for admin callers; it never comes from the request body.
type NeedPatch struct {
	Status      string `json:"status,omitempty"`
	Severity    int    `json:"severity,omitempty"`
	Note        string `json:"note,omitempty"`
	AllowReopen bool   `json:"-"`
}

// PlanRequest asks the optimizer to turn open needs into missions.
type PlanRequest struct {
	TenantID         string             `json:"tenantId"`
	PlanDate         string             `json:"planDate"`
	Algorithm        string             `json:"algorithm,omitempty"` // greedy, alns
	TimeBudgetMs     int                `json:"timeBudgetMs,omitempty"`
	MaxIterations    int                `json:"maxIterations,omitempty"`
	InitTemp         float64            `json:"initTemp,omitempty"`
	Cooling          float64            `json:"cooling,omitempty"`
	RemovalWeights   []float64          `json:"removalWeights,omitempty"`
	InsertionWeights []float64          `json:"insertionWeights,omitempty"`
	TeamPool         []string           `json:"teamPool,omitempty"`
	IncludeNeeds     []string           `json:"includeNeeds,omitempty"`
	Objectives       map[string]float64 `json:"objectives,omitempty"`
	Replan           bool               `json:"replan,omitempty"`
}

// Mission is a planned sequence of tasks for one volunteer team.
type Mission struct {
	ID            string             `json:"id"`
	TenantID      string             `json:"tenantId,omitempty"`
	Version       int                `json:"version"`
	PlanDate      string             `json:"planDate,omitempty"`
	Status        string             `json:"status"` // planned, assigned, active, completed, cancelled
	TeamID        string             `json:"teamId,omitempty"`
	Tasks         []Task             `json:"tasks"`
	CostBreakdown map[string]float64 `json:"costBreakdown,omitempty"`
	AutoAdvance   *AutoAdvancePolicy `json:"autoAdvance,omitempty"`
}

// Task is one leg of a mission: travel to a need and serve it.
type Task struct {
	ID           string    `json:"id"`
	Seq          int       `json:"seq"`
	Kind         string    `json:"kind,omitempty"` // travel, service, rest
	NeedID       string    `json:"needId,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`
	DistM        int       `json:"distM,omitempty"`
	TravelSec    int       `json:"travelSec,omitempty"`
	ETAArrival   string    `json:"etaArrival,omitempty"`
	ETADeparture string    `json:"etaDeparture,omitempty"`
	StartedAt    string    `json:"startedAt,omitempty"` // set when the task goes en_route
	Status       string    `json:"status,omitempty"`    // pending, en_route, on_site, done, failed
}

// MissionPatch updates mutable mission fields.
type MissionPatch struct {
	Status      string             `json:"status,omitempty"`
	AutoAdvance *AutoAdvancePolicy `json:"autoAdvance,omitempty"`
}

// AutoAdvancePolicy controls automatic progression to the next task.
type AutoAdvancePolicy struct {
	Enabled        bool   `json:"enabled,omitempty"`
	Trigger        string `json:"trigger,omitempty"` // checkin_ack, depart, geofence_arrive
	MinDwellSec    int    `json:"minDwellSec,omitempty"`
	RequireCheckin bool   `json:"requireCheckin,omitempty"`
}

// AssignmentRequest binds a mission to a team.
type AssignmentRequest struct {
	TeamID  string `json:"teamId"`
	StartAt string `json:"startAt,omitempty"`
}

// AdvanceRequest moves a mission's task pointer forward.
type AdvanceRequest struct {
	Reason string `json:"reason,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

type AdvanceResult struct {
	MissionID  string `json:"missionId"`
	FromTaskID string `json:"fromTaskId,omitempty"`
	ToTaskID   string `json:"toTaskId,omitempty"`
	TS         string `json:"ts"`
	Changed    bool   `json:"changed"`
}

type AdvanceResponse struct {
	Result  AdvanceResult `json:"result"`
	Mission Mission       `json:"mission"`
	Alerts  []PolicyAlert `json:"alerts,omitempty"`
}

type PolicyAlert struct {
	Reason string `json:"reason"`
	TS     string `json:"ts"`
}

// FieldEvent is a volunteer-reported event from the field.
type FieldEvent struct {
	Type      string         `json:"type"` // arrive, depart, checkin, position
	UnitID    string         `json:"unitId,omitempty"`
	MissionID string         `json:"missionId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Location  *GeoPoint      `json:"location,omitempty"`
	TS        string         `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Fix is a raw positional sample from a unit's tracker.
type Fix struct {
	UnitID    string  `json:"unitId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	TS        string  `json:"ts"`
	AccuracyM float64 `json:"accuracyM,omitempty"`
}

// Team is a volunteer unit with capacity and skills.
type Team struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	Name     string    `json:"name,omitempty"`
	Skills   []string  `json:"skills,omitempty"`
	CapKg    float64   `json:"capKg,omitempty"`
	CapM3    float64   `json:"capM3,omitempty"`
	Base     *GeoPoint `json:"base,omitempty"`
}

// Inventory

type InventoryItemIn struct {
	DepotID      string  `json:"depotId"`
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	Category     string  `json:"category,omitempty"`
	Unit         string  `json:"unit,omitempty"` // each, kg, liter, box
	Qty          float64 `json:"qty"`
	ReorderLevel float64 `json:"reorderLevel,omitempty"`
}

type InventoryItem struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenantId"`
	DepotID      string  `json:"depotId"`
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	Category     string  `json:"category,omitempty"`
	Unit         string  `json:"unit,omitempty"`
	Qty          float64 `json:"qty"`
	ReorderLevel float64 `json:"reorderLevel,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

type InventoryItemPatch struct {
	Name         string   `json:"name,omitempty"`
	Category     string   `json:"category,omitempty"`
	ReorderLevel *float64 `json:"reorderLevel,omitempty"`
}

// StockMovement records a delta against an item. The movement log is
// append-only; item quantity is derived by applying deltas atomically.
type StockMovement struct {
	ID        string  `json:"id"`
	ItemID    string  `json:"itemId"`
	Delta     float64 `json:"delta"`
	Reason    string  `json:"reason"` // receipt, issue, adjust, transfer
	MissionID string  `json:"missionId,omitempty"`
	Actor     string  `json:"actor,omitempty"`
	TS        string  `json:"ts"`
}

// Geofences

type GeofenceInput struct {
	Name    string     `json:"name,omitempty"`
	Kind    string     `json:"kind,omitempty"` // hazard, staging, distribution, restricted
	RadiusM int        `json:"radiusM,omitempty"`
	Center  *GeoPoint  `json:"center,omitempty"`
	Polygon []GeoPoint `json:"polygon,omitempty"`
}

const (
	GeofenceHazard       = "hazard"
	GeofenceStaging      = "staging"
	GeofenceDistribution = "distribution"
	GeofenceRestricted   = "restricted"
)

type Geofence struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenantId"`
	Name     string     `json:"name,omitempty"`
	Kind     string     `json:"kind,omitempty"`
	RadiusM  int        `json:"radiusM,omitempty"`
	Center   *GeoPoint  `json:"center,omitempty"`
	Polygon  []GeoPoint `json:"polygon,omitempty"`
	Active   bool       `json:"active"`
}

// Webhook subscriptions

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
