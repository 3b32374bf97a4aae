package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"reliefops/internal/model"
)

// Postgres persists everything in Postgres through the pgx stdlib driver.
// Nested structures (tasks, polygons, demand) live in JSONB columns.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in name order, tracking the
// applied set in schema_migrations.
func (p *Postgres) MigrateDir(dir string) error {
	if _, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var done int
		err := p.db.QueryRow(`SELECT 1 FROM schema_migrations WHERE filename=$1`, name).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := p.db.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func fromJSON(raw []byte, dst any) {
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, dst)
	}
}

// Needs

func (p *Postgres) CreateNeeds(ctx context.Context, tenantID string, needs []model.NeedReportIn) (string, int, int, error) {
	batchID := fmt.Sprintf("batch_%d", time.Now().UnixNano())
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created, skipped := 0, 0
	for _, in := range needs {
		if in.ExternalRef != "" {
			var existing string
			err = tx.QueryRowContext(ctx, `SELECT id::text FROM needs WHERE tenant_id=$1 AND external_ref=$2`, tenantID, in.ExternalRef).Scan(&existing)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return "", 0, 0, err
			}
		}
		sev := in.Severity
		if sev < 1 {
			sev = 1
		}
		if sev > 5 {
			sev = 5
		}
		var lat, lng any
		if in.Location != nil {
			lat, lng = in.Location.Lat, in.Location.Lng
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO needs
			(id, tenant_id, external_ref, category, description, severity, status, lat, lng, service_time_sec, time_window, required_skills, demand, attrs, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,$8,$9,$10,$11,$12,$13,now())`,
			uuid.New(), tenantID, nullIfEmpty(in.ExternalRef), in.Category, nullIfEmpty(in.Description), sev,
			lat, lng, in.ServiceTimeSec, toJSON(in.TimeWindow), toJSON(in.RequiredSkills), toJSON(in.Demand), toJSON(in.Attributes))
		if err != nil {
			return "", 0, 0, err
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return "", 0, 0, err
	}
	return batchID, created, skipped, nil
}

const needCols = `id::text, COALESCE(external_ref,''), category, COALESCE(description,''), severity, status, lat, lng, service_time_sec, time_window, required_skills, demand, to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`

func scanNeed(sc interface{ Scan(...any) error }) (model.NeedReport, error) {
	var n model.NeedReport
	var lat, lng sql.NullFloat64
	var tw, skills, demand []byte
	err := sc.Scan(&n.ID, &n.ExternalRef, &n.Category, &n.Description, &n.Severity, &n.Status,
		&lat, &lng, &n.ServiceTimeSec, &tw, &skills, &demand, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	if lat.Valid && lng.Valid {
		n.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	fromJSON(tw, &n.TimeWindow)
	fromJSON(skills, &n.RequiredSkills)
	fromJSON(demand, &n.Demand)
	return n, nil
}

func (p *Postgres) ListNeeds(ctx context.Context, tenantID, status, category, cursor string, limit int) ([]model.NeedReport, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + needCols + ` FROM needs WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if category != "" {
		args = append(args, category)
		q += fmt.Sprintf(` AND category=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.NeedReport{}
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, "", err
		}
		n.TenantID = tenantID
		out = append(out, n)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetNeed(ctx context.Context, tenantID, id string) (model.NeedReport, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+needCols+` FROM needs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	n, err := scanNeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NeedReport{}, ErrNotFound
	}
	if err != nil {
		return model.NeedReport{}, err
	}
	n.TenantID = tenantID
	return n, nil
}

func (p *Postgres) PatchNeed(ctx context.Context, tenantID, id string, patch model.NeedPatch) (model.NeedReport, error) {
	if patch.Status != "" {
		cur, err := p.GetNeed(ctx, tenantID, id)
		if err != nil {
			return model.NeedReport{}, err
		}
		if !validNeedTransition(cur.Status, patch.Status, patch.AllowReopen) {
			return model.NeedReport{}, ErrInvalidTransition
		}
		if _, err := p.db.ExecContext(ctx, `UPDATE needs SET status=$1 WHERE tenant_id=$2 AND id=$3`, patch.Status, tenantID, id); err != nil {
			return model.NeedReport{}, err
		}
	}
	if patch.Severity >= 1 && patch.Severity <= 5 {
		if _, err := p.db.ExecContext(ctx, `UPDATE needs SET severity=$1 WHERE tenant_id=$2 AND id=$3`, patch.Severity, tenantID, id); err != nil {
			return model.NeedReport{}, err
		}
	}
	return p.GetNeed(ctx, tenantID, id)
}

func (p *Postgres) MarkNeedsAssigned(ctx context.Context, tenantID string, needIDs []string) error {
	for _, id := range needIDs {
		if _, err := p.db.ExecContext(ctx, `UPDATE needs SET status='assigned' WHERE tenant_id=$1 AND id=$2`, tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

// Teams

func (p *Postgres) UpsertTeam(ctx context.Context, team model.Team) (model.Team, error) {
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	var baseLat, baseLng any
	if team.Base != nil {
		baseLat, baseLng = team.Base.Lat, team.Base.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO teams (id, tenant_id, name, skills, cap_kg, cap_m3, base_lat, base_lng)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, skills=EXCLUDED.skills, cap_kg=EXCLUDED.cap_kg, cap_m3=EXCLUDED.cap_m3, base_lat=EXCLUDED.base_lat, base_lng=EXCLUDED.base_lng`,
		team.ID, team.TenantID, nullIfEmpty(team.Name), toJSON(team.Skills), team.CapKg, team.CapM3, baseLat, baseLng)
	return team, err
}

func scanTeam(sc interface{ Scan(...any) error }) (model.Team, error) {
	var t model.Team
	var skills []byte
	var baseLat, baseLng sql.NullFloat64
	err := sc.Scan(&t.ID, &t.TenantID, &t.Name, &skills, &t.CapKg, &t.CapM3, &baseLat, &baseLng)
	if err != nil {
		return t, err
	}
	fromJSON(skills, &t.Skills)
	if baseLat.Valid && baseLng.Valid {
		t.Base = &model.GeoPoint{Lat: baseLat.Float64, Lng: baseLng.Float64}
	}
	return t, nil
}

const teamCols = `id, tenant_id, COALESCE(name,''), skills, cap_kg, cap_m3, base_lat, base_lng`

func (p *Postgres) ListTeams(ctx context.Context, tenantID, cursor string, limit int) ([]model.Team, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+teamCols+` FROM teams WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+teamCols+` FROM teams WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, t)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetTeam(ctx context.Context, tenantID, id string) (model.Team, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+teamCols+` FROM teams WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Team{}, ErrNotFound
	}
	return t, err
}

// Missions

func (p *Postgres) SaveMissions(ctx context.Context, tenantID string, missions []model.Mission) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, ms := range missions {
		_, err = tx.ExecContext(ctx, `INSERT INTO missions (id, tenant_id, version, plan_date, status, team_id, tasks, cost_breakdown, auto_advance)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO UPDATE SET version=EXCLUDED.version, status=EXCLUDED.status, team_id=EXCLUDED.team_id, tasks=EXCLUDED.tasks, cost_breakdown=EXCLUDED.cost_breakdown, auto_advance=EXCLUDED.auto_advance`,
			ms.ID, tenantID, ms.Version, nullIfEmpty(ms.PlanDate), ms.Status, nullIfEmpty(ms.TeamID),
			toJSON(ms.Tasks), toJSON(ms.CostBreakdown), toJSON(ms.AutoAdvance))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const missionCols = `id, version, COALESCE(plan_date,''), status, COALESCE(team_id,''), tasks, cost_breakdown, auto_advance`

func scanMission(sc interface{ Scan(...any) error }) (model.Mission, error) {
	var ms model.Mission
	var tasks, cost, aa []byte
	err := sc.Scan(&ms.ID, &ms.Version, &ms.PlanDate, &ms.Status, &ms.TeamID, &tasks, &cost, &aa)
	if err != nil {
		return ms, err
	}
	fromJSON(tasks, &ms.Tasks)
	fromJSON(cost, &ms.CostBreakdown)
	fromJSON(aa, &ms.AutoAdvance)
	return ms, nil
}

func (p *Postgres) GetMission(ctx context.Context, tenantID, missionID string) (model.Mission, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+missionCols+` FROM missions WHERE tenant_id=$1 AND id=$2`, tenantID, missionID)
	ms, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Mission{}, ErrNotFound
	}
	ms.TenantID = tenantID
	return ms, err
}

func (p *Postgres) ListMissions(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Mission, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + missionCols + ` FROM missions WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Mission{}
	for rows.Next() {
		ms, err := scanMission(rows)
		if err != nil {
			return nil, "", err
		}
		ms.TenantID = tenantID
		out = append(out, ms)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) AssignMission(ctx context.Context, tenantID, missionID string, req model.AssignmentRequest) (model.Mission, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE missions SET team_id=$1, status='assigned', version=GREATEST(version,1) WHERE tenant_id=$2 AND id=$3`, req.TeamID, tenantID, missionID)
	if err != nil {
		return model.Mission{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Mission{}, ErrNotFound
	}
	return p.GetMission(ctx, tenantID, missionID)
}

func (p *Postgres) PatchMission(ctx context.Context, tenantID, missionID string, patch model.MissionPatch) (model.Mission, error) {
	ms, err := p.GetMission(ctx, tenantID, missionID)
	if err != nil {
		return model.Mission{}, err
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
	if err := p.SaveMissions(ctx, tenantID, []model.Mission{ms}); err != nil {
		return model.Mission{}, err
	}
	return ms, nil
}

func (p *Postgres) AdvanceMission(ctx context.Context, tenantID, missionID string, req model.AdvanceRequest) (model.AdvanceResponse, error) {
	ms, err := p.GetMission(ctx, tenantID, missionID)
	if err != nil {
		return model.AdvanceResponse{}, err
	}
	res, alerts := applyAdvance(&ms, req)
	if res.Changed {
		if err := p.SaveMissions(ctx, tenantID, []model.Mission{ms}); err != nil {
			return model.AdvanceResponse{}, err
		}
	}
	return model.AdvanceResponse{Result: res, Mission: ms, Alerts: alerts}, nil
}

func (p *Postgres) ListActiveMissionsForUnit(ctx context.Context, tenantID, unitID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM missions WHERE tenant_id=$1 AND team_id=$2 AND status NOT IN ('completed','cancelled')`, tenantID, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Field events

func (p *Postgres) InsertFieldEvents(ctx context.Context, tenantID string, events []model.FieldEvent) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	accepted := 0
	for _, e := range events {
		var lat, lng any
		if e.Location != nil {
			lat, lng = e.Location.Lat, e.Location.Lng
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO field_events (id, tenant_id, type, unit_id, mission_id, task_id, lat, lng, ts, payload)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,COALESCE($9::timestamptz, now()),$10)`,
			uuid.New(), tenantID, e.Type, nullIfEmpty(e.UnitID), nullIfEmpty(e.MissionID), nullIfEmpty(e.TaskID), lat, lng, nullIfEmpty(e.TS), toJSON(e.Payload))
		if err != nil {
			return 0, err
		}
		accepted++
	}
	return accepted, tx.Commit()
}

// Inventory

const itemCols = `id::text, tenant_id, depot_id, sku, name, COALESCE(category,''), COALESCE(unit,''), qty, reorder_level, to_char(updated_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`

func scanItem(sc interface{ Scan(...any) error }) (model.InventoryItem, error) {
	var it model.InventoryItem
	err := sc.Scan(&it.ID, &it.TenantID, &it.DepotID, &it.SKU, &it.Name, &it.Category, &it.Unit, &it.Qty, &it.ReorderLevel, &it.UpdatedAt)
	return it, err
}

func (p *Postgres) CreateInventoryItem(ctx context.Context, tenantID string, in model.InventoryItemIn) (model.InventoryItem, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx, `INSERT INTO inventory_items (id, tenant_id, depot_id, sku, name, category, unit, qty, reorder_level, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		id, tenantID, in.DepotID, in.SKU, in.Name, nullIfEmpty(in.Category), nullIfEmpty(in.Unit), in.Qty, in.ReorderLevel)
	if err != nil {
		return model.InventoryItem{}, err
	}
	return p.GetInventoryItem(ctx, tenantID, id.String())
}

func (p *Postgres) ListInventoryItems(ctx context.Context, tenantID, depotID, category string, belowReorder bool, cursor string, limit int) ([]model.InventoryItem, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + itemCols + ` FROM inventory_items WHERE tenant_id=$1`
	args := []any{tenantID}
	if depotID != "" {
		args = append(args, depotID)
		q += fmt.Sprintf(` AND depot_id=$%d`, len(args))
	}
	if category != "" {
		args = append(args, category)
		q += fmt.Sprintf(` AND category=$%d`, len(args))
	}
	if belowReorder {
		q += ` AND reorder_level > 0 AND qty <= reorder_level`
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InventoryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, it)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetInventoryItem(ctx context.Context, tenantID, id string) (model.InventoryItem, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM inventory_items WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InventoryItem{}, ErrNotFound
	}
	return it, err
}

func (p *Postgres) PatchInventoryItem(ctx context.Context, tenantID, id string, patch model.InventoryItemPatch) (model.InventoryItem, error) {
	if patch.Name != "" {
		if _, err := p.db.ExecContext(ctx, `UPDATE inventory_items SET name=$1, updated_at=now() WHERE tenant_id=$2 AND id=$3`, patch.Name, tenantID, id); err != nil {
			return model.InventoryItem{}, err
		}
	}
	if patch.Category != "" {
		if _, err := p.db.ExecContext(ctx, `UPDATE inventory_items SET category=$1, updated_at=now() WHERE tenant_id=$2 AND id=$3`, patch.Category, tenantID, id); err != nil {
			return model.InventoryItem{}, err
		}
	}
	if patch.ReorderLevel != nil {
		if _, err := p.db.ExecContext(ctx, `UPDATE inventory_items SET reorder_level=$1, updated_at=now() WHERE tenant_id=$2 AND id=$3`, *patch.ReorderLevel, tenantID, id); err != nil {
			return model.InventoryItem{}, err
		}
	}
	return p.GetInventoryItem(ctx, tenantID, id)
}

// ApplyStockMovement adjusts quantity and appends the movement in one
// transaction. The UPDATE's qty guard is what keeps stock non-negative
// under concurrent movements.
func (p *Postgres) ApplyStockMovement(ctx context.Context, tenantID, itemID string, delta float64, reason, missionID, actor string) (model.InventoryItem, model.StockMovement, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.InventoryItem{}, model.StockMovement{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE inventory_items SET qty = qty + $1, updated_at=now()
		WHERE tenant_id=$2 AND id=$3 AND qty + $1 >= 0`, delta, tenantID, itemID)
	if err != nil {
		return model.InventoryItem{}, model.StockMovement{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM inventory_items WHERE tenant_id=$1 AND id=$2`, tenantID, itemID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return model.InventoryItem{}, model.StockMovement{}, ErrNotFound
		}
		if err != nil {
			return model.InventoryItem{}, model.StockMovement{}, err
		}
		return model.InventoryItem{}, model.StockMovement{}, ErrInsufficientStock
	}

	mv := model.StockMovement{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		Delta:     delta,
		Reason:    reason,
		MissionID: missionID,
		Actor:     actor,
		TS:        time.Now().UTC().Format(time.RFC3339),
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO stock_movements (id, tenant_id, item_id, delta, reason, mission_id, actor, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())`,
		mv.ID, tenantID, itemID, delta, reason, nullIfEmpty(missionID), nullIfEmpty(actor))
	if err != nil {
		return model.InventoryItem{}, model.StockMovement{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.InventoryItem{}, model.StockMovement{}, err
	}
	it, err := p.GetInventoryItem(ctx, tenantID, itemID)
	return it, mv, err
}

func (p *Postgres) ListStockMovements(ctx context.Context, tenantID, itemID, cursor string, limit int) ([]model.StockMovement, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	const cols = `id::text, item_id::text, delta, reason, COALESCE(mission_id::text,''), COALESCE(actor,''), to_char(ts, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+cols+` FROM stock_movements WHERE tenant_id=$1 AND item_id=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, itemID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+cols+` FROM stock_movements WHERE tenant_id=$1 AND item_id=$2 ORDER BY id LIMIT $3`, tenantID, itemID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.StockMovement{}
	for rows.Next() {
		var mv model.StockMovement
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.Delta, &mv.Reason, &mv.MissionID, &mv.Actor, &mv.TS); err != nil {
			return nil, "", err
		}
		out = append(out, mv)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

// Geofences

const gfCols = `id::text, tenant_id, COALESCE(name,''), COALESCE(kind,''), COALESCE(radius_m,0), center_lat, center_lng, polygon, active`

func scanGeofence(sc interface{ Scan(...any) error }) (model.Geofence, error) {
	var g model.Geofence
	var cLat, cLng sql.NullFloat64
	var poly []byte
	err := sc.Scan(&g.ID, &g.TenantID, &g.Name, &g.Kind, &g.RadiusM, &cLat, &cLng, &poly, &g.Active)
	if err != nil {
		return g, err
	}
	if cLat.Valid && cLng.Valid {
		g.Center = &model.GeoPoint{Lat: cLat.Float64, Lng: cLng.Float64}
	}
	fromJSON(poly, &g.Polygon)
	return g, nil
}

func (p *Postgres) CreateGeofence(ctx context.Context, tenantID string, in model.GeofenceInput) (model.Geofence, error) {
	id := uuid.New()
	var cLat, cLng any
	if in.Center != nil {
		cLat, cLng = in.Center.Lat, in.Center.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO geofences (id, tenant_id, name, kind, radius_m, center_lat, center_lng, polygon, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true)`,
		id, tenantID, nullIfEmpty(in.Name), nullIfEmpty(in.Kind), in.RadiusM, cLat, cLng, toJSON(in.Polygon))
	if err != nil {
		return model.Geofence{}, err
	}
	return p.GetGeofence(ctx, tenantID, id.String())
}

func (p *Postgres) ListGeofences(ctx context.Context, tenantID, cursor string, limit int) ([]model.Geofence, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+gfCols+` FROM geofences WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+gfCols+` FROM geofences WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Geofence{}
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, g)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetGeofence(ctx context.Context, tenantID, id string) (model.Geofence, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+gfCols+` FROM geofences WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	g, err := scanGeofence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Geofence{}, ErrNotFound
	}
	return g, err
}

func (p *Postgres) PatchGeofence(ctx context.Context, tenantID, id string, in model.GeofenceInput) (model.Geofence, error) {
	g, err := p.GetGeofence(ctx, tenantID, id)
	if err != nil {
		return model.Geofence{}, err
	}
	if in.Name != "" {
		g.Name = in.Name
	}
	if in.Kind != "" {
		g.Kind = in.Kind
	}
	if in.RadiusM != 0 {
		g.RadiusM = in.RadiusM
	}
	if in.Center != nil {
		g.Center = in.Center
	}
	if in.Polygon != nil {
		g.Polygon = in.Polygon
	}
	var cLat, cLng any
	if g.Center != nil {
		cLat, cLng = g.Center.Lat, g.Center.Lng
	}
	_, err = p.db.ExecContext(ctx, `UPDATE geofences SET name=$1, kind=$2, radius_m=$3, center_lat=$4, center_lng=$5, polygon=$6 WHERE tenant_id=$7 AND id=$8`,
		nullIfEmpty(g.Name), nullIfEmpty(g.Kind), g.RadiusM, cLat, cLng, toJSON(g.Polygon), tenantID, id)
	if err != nil {
		return model.Geofence{}, err
	}
	return g, nil
}

func (p *Postgres) DeleteGeofence(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM geofences WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, toJSON(s.Events), s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		fromJSON(events, &s.Events)
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, "", err
		}
		fromJSON(events, &s.Events)
		out = append(out, s)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now() WHERE id=$3`,
			responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=$4 WHERE id=$5`,
		lastError, responseCode, latencyMs, next, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$1, response_code=$2, latency_ms=$3 WHERE id=$4`,
		lastError, responseCode, latencyMs, id)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, event_type, payload, last_error, response_code, created_at)
		SELECT id, tenant_id, event_type, payload, $1, $2, now() FROM webhook_deliveries WHERE id=$3
		ON CONFLICT (id) DO NOTHING`, lastError, responseCode, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,''), COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, eventType, st, url, lastError string
		var attempts, code int
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastError, &code); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastError != "" {
			item["lastError"] = lastError
		}
		if code != 0 {
			item["responseCode"] = code
		}
		out = append(out, item)
		last = id
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, COALESCE(last_error,''), COALESCE(response_code,0), to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"') FROM webhook_dlq WHERE tenant_id=$1`
	args := []any{tenantID}
	if eventType != "" {
		args = append(args, eventType)
		q += fmt.Sprintf(` AND event_type=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, et, lastError, created string
		var code int
		if err := rows.Scan(&id, &et, &lastError, &code, &created); err != nil {
			return nil, "", err
		}
		out = append(out, map[string]any{"id": id, "eventType": et, "lastError": lastError, "responseCode": code, "createdAt": created})
		last = id
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Plan metrics

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, planDate, algo string, metrics map[string]any) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO plan_metrics (tenant_id, plan_date, algo, metrics)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, plan_date, algo) DO UPDATE SET metrics=EXCLUDED.metrics`,
		tenantID, planDate, algo, toJSON(metrics))
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]map[string]any, error) {
	q := `SELECT algo, metrics FROM plan_metrics WHERE tenant_id=$1 AND plan_date=$2`
	args := []any{tenantID, planDate}
	if algo != "" {
		args = append(args, algo)
		q += ` AND algo=$3`
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var a string
		var raw []byte
		if err := rows.Scan(&a, &raw); err != nil {
			return nil, err
		}
		m := map[string]any{}
		fromJSON(raw, &m)
		m["algo"] = a
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) MissionStats(ctx context.Context, tenantID, planDate string) (map[string]any, error) {
	missions, _, err := p.ListMissions(ctx, tenantID, "", "", 500)
	if err != nil {
		return nil, err
	}
	count, tasks, distM, travelSec := 0, 0, 0, 0
	for _, ms := range missions {
		if planDate != "" && ms.PlanDate != planDate {
			continue
		}
		count++
		tasks += len(ms.Tasks)
		for _, t := range ms.Tasks {
			distM += t.DistM
			travelSec += t.TravelSec
		}
	}
	avg := 0.0
	if count > 0 {
		avg = float64(tasks) / float64(count)
	}
	return map[string]any{
		"missions":        count,
		"tasks":           tasks,
		"totalDistM":      distM,
		"totalTravelSec":  travelSec,
		"avgTasksPerPlan": avg,
	}, nil
}
