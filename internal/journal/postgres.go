package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/voltgrid/bess/internal/sim"
)

// Postgres is the production journal. Schema bootstrap is idempotent; a
// TimescaleDB hypertable is attempted opportunistically and skipped with a
// warning when the extension is unavailable.
type Postgres struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenPostgres connects, verifies the connection and bootstraps the schema.
// When reset is true, all journal tables are truncated first.
func OpenPostgres(ctx context.Context, databaseURL string, reset bool) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	p := &Postgres{
		db:     db,
		logger: log.New(log.Writer(), "[journal] ", log.LstdFlags),
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	p.trySetupTimescale(ctx)
	if reset {
		if err := p.reset(ctx); err != nil {
			db.Close()
			return nil, err
		}
		p.logger.Printf("reset: truncated all journal tables")
	}
	return p, nil
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		id UUID PRIMARY KEY,
		site_id UUID NOT NULL,
		name TEXT NOT NULL,
		site_name TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		capacity_mwhr DOUBLE PRECISION NOT NULL,
		max_mw DOUBLE PRECISION NOT NULL,
		min_mw DOUBLE PRECISION NOT NULL,
		min_soc_pct DOUBLE PRECISION NOT NULL,
		max_soc_pct DOUBLE PRECISION NOT NULL,
		efficiency DOUBLE PRECISION NOT NULL,
		ramp_rate_mw_per_min DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS telemetry (
		id BIGSERIAL,
		asset_id UUID NOT NULL,
		site_id UUID NOT NULL,
		site_name TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL,
		soc_mwhr DOUBLE PRECISION NOT NULL,
		soc_pct DOUBLE PRECISION NOT NULL,
		capacity_mwhr DOUBLE PRECISION NOT NULL,
		current_mw DOUBLE PRECISION NOT NULL,
		setpoint_mw DOUBLE PRECISION NOT NULL,
		max_mw DOUBLE PRECISION NOT NULL,
		min_mw DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		voltage_v DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_a DOUBLE PRECISION NOT NULL DEFAULT 0,
		dc_bus_v DOUBLE PRECISION NOT NULL DEFAULT 0,
		dc_bus_a DOUBLE PRECISION NOT NULL DEFAULT 0,
		temperature_cell_f DOUBLE PRECISION NOT NULL DEFAULT 0,
		temperature_module_f DOUBLE PRECISION NOT NULL DEFAULT 0,
		temperature_ambient_f DOUBLE PRECISION NOT NULL DEFAULT 0,
		soh_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		cycle_count BIGINT NOT NULL DEFAULT 0,
		energy_in_mwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		energy_out_mwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		available_charge_kw DOUBLE PRECISION NOT NULL DEFAULT 0,
		available_discharge_kw DOUBLE PRECISION NOT NULL DEFAULT 0,
		extras JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS telemetry_asset_ts_idx ON telemetry (asset_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS dispatches (
		id UUID PRIMARY KEY,
		asset_id UUID NOT NULL,
		mw DOUBLE PRECISION NOT NULL,
		duration_s BIGINT,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ NOT NULL,
		clamped BOOLEAN NOT NULL DEFAULT FALSE,
		ack_status TEXT,
		acked_at TIMESTAMPTZ,
		ack_reason TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS dispatches_asset_submitted_idx ON dispatches (asset_id, submitted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS heartbeats (
		id BIGSERIAL PRIMARY KEY,
		asset_id UUID NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS heartbeats_asset_ts_idx ON heartbeats (asset_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		asset_id UUID NOT NULL,
		site_id UUID NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS events_asset_ts_idx ON events (asset_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS agent_sessions (
		id BIGSERIAL PRIMARY KEY,
		asset_id UUID NOT NULL,
		peer TEXT NOT NULL DEFAULT '',
		asset_name TEXT NOT NULL DEFAULT '',
		site_name TEXT NOT NULL DEFAULT '',
		connected_at TIMESTAMPTZ NOT NULL,
		disconnected_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS agent_sessions_asset_idx ON agent_sessions (asset_id, connected_at DESC)`,
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal migrate: %w", err)
		}
	}
	return nil
}

// trySetupTimescale converts the telemetry table into a hypertable when the
// extension exists. Plain Postgres is fine; failures only cost compression.
func (p *Postgres) trySetupTimescale(ctx context.Context) {
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS timescaledb`); err != nil {
		p.logger.Printf("timescaledb extension unavailable, using plain tables: %v", err)
		return
	}
	_, err := p.db.ExecContext(ctx,
		`SELECT create_hypertable('telemetry', 'ts', if_not_exists => TRUE, migrate_data => TRUE)`)
	if err != nil {
		p.logger.Printf("hypertable setup skipped: %v", err)
		return
	}
	p.logger.Printf("telemetry hypertable ready")
}

func (p *Postgres) reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx,
		`TRUNCATE telemetry, dispatches, heartbeats, events, agent_sessions`)
	if err != nil {
		return fmt.Errorf("journal reset: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertAssets(ctx context.Context, assets []*sim.Asset) error {
	for _, a := range assets {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO assets (id, site_id, name, site_name, location, capacity_mwhr,
				max_mw, min_mw, min_soc_pct, max_soc_pct, efficiency, ramp_rate_mw_per_min, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (id) DO UPDATE SET
				site_id = EXCLUDED.site_id, name = EXCLUDED.name,
				site_name = EXCLUDED.site_name, location = EXCLUDED.location,
				capacity_mwhr = EXCLUDED.capacity_mwhr, max_mw = EXCLUDED.max_mw,
				min_mw = EXCLUDED.min_mw, min_soc_pct = EXCLUDED.min_soc_pct,
				max_soc_pct = EXCLUDED.max_soc_pct, efficiency = EXCLUDED.efficiency,
				ramp_rate_mw_per_min = EXCLUDED.ramp_rate_mw_per_min, updated_at = now()`,
			a.ID, a.SiteID, a.Name, a.SiteName, a.Location, a.CapacityMWhr,
			a.MaxMW, a.MinMW, a.MinSocPct, a.MaxSocPct, a.Efficiency, a.RampRateMWPerMin)
		if err != nil {
			return fmt.Errorf("upsert asset %s: %w", a.ID, err)
		}
	}
	return nil
}

func (p *Postgres) AppendTelemetry(ctx context.Context, rows []sim.Telemetry) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append telemetry: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry (asset_id, site_id, site_name, ts, soc_mwhr, soc_pct,
			capacity_mwhr, current_mw, setpoint_mw, max_mw, min_mw, status,
			voltage_v, current_a, dc_bus_v, dc_bus_a,
			temperature_cell_f, temperature_module_f, temperature_ambient_f,
			soh_pct, cycle_count, energy_in_mwh, energy_out_mwh,
			available_charge_kw, available_discharge_kw, extras)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
			$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`)
	if err != nil {
		return fmt.Errorf("append telemetry: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		t := &rows[i]
		var extras interface{}
		if len(t.Extras) > 0 {
			b, err := json.Marshal(t.Extras)
			if err != nil {
				return fmt.Errorf("encode telemetry extras: %w", err)
			}
			extras = b
		}
		_, err = stmt.ExecContext(ctx,
			t.AssetID, t.SiteID, t.SiteName, t.Timestamp, t.SocMWhr, t.SocPct,
			t.CapacityMWhr, t.CurrentMW, t.SetpointMW, t.MaxMW, t.MinMW, t.Status,
			t.VoltageV, t.CurrentA, t.DCBusV, t.DCBusA,
			t.TemperatureCellF, t.TemperatureModuleF, t.TemperatureAmbientF,
			t.SohPct, t.CycleCount, t.EnergyInMWh, t.EnergyOutMWh,
			t.AvailableChargeKW, t.AvailableDischargeKW, extras)
		if err != nil {
			return fmt.Errorf("append telemetry asset=%s: %w", t.AssetID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) AppendDispatch(ctx context.Context, d sim.Dispatch) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dispatches (id, asset_id, mw, duration_s, status, reason, submitted_at, clamped)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.AssetID, d.MW, d.DurationS, d.Status, d.Reason, d.SubmittedAt, d.Clamped)
	if err != nil {
		return fmt.Errorf("append dispatch %s: %w", d.ID, err)
	}
	return nil
}

func (p *Postgres) UpdateDispatchAck(ctx context.Context, dispatchID uuid.UUID, status string, ackedAt time.Time, reason string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE dispatches SET ack_status = $2, acked_at = $3, ack_reason = $4 WHERE id = $1`,
		dispatchID, status, ackedAt, reason)
	if err != nil {
		return fmt.Errorf("ack dispatch %s: %w", dispatchID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ack dispatch %s: %w", dispatchID, sim.ErrNotFound)
	}
	return nil
}

func (p *Postgres) AppendHeartbeat(ctx context.Context, assetID uuid.UUID, ts time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO heartbeats (asset_id, ts) VALUES ($1,$2)`, assetID, ts)
	if err != nil {
		return fmt.Errorf("append heartbeat asset=%s: %w", assetID, err)
	}
	return nil
}

func (p *Postgres) AppendEvent(ctx context.Context, e sim.Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO events (id, asset_id, site_id, ts, event_type, severity, message)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.AssetID, e.SiteID, e.Timestamp, e.EventType, e.Severity, e.Message)
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

func (p *Postgres) AppendSessionOpen(ctx context.Context, s Session) error {
	if err := p.CloseOpenSession(ctx, s.AssetID, s.ConnectedAt); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (asset_id, peer, asset_name, site_name, connected_at)
		VALUES ($1,$2,$3,$4,$5)`,
		s.AssetID, s.Peer, s.AssetName, s.SiteName, s.ConnectedAt)
	if err != nil {
		return fmt.Errorf("open session asset=%s: %w", s.AssetID, err)
	}
	return nil
}

func (p *Postgres) CloseOpenSession(ctx context.Context, assetID uuid.UUID, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE agent_sessions SET disconnected_at = $2 WHERE asset_id = $1 AND disconnected_at IS NULL`,
		assetID, at)
	if err != nil {
		return fmt.Errorf("close session asset=%s: %w", assetID, err)
	}
	return nil
}

const telemetryCols = `asset_id, site_id, site_name, ts, soc_mwhr, soc_pct,
	capacity_mwhr, current_mw, setpoint_mw, max_mw, min_mw, status,
	voltage_v, current_a, dc_bus_v, dc_bus_a,
	temperature_cell_f, temperature_module_f, temperature_ambient_f,
	soh_pct, cycle_count, energy_in_mwh, energy_out_mwh,
	available_charge_kw, available_discharge_kw, extras`

func scanTelemetry(rows *sql.Rows) (sim.Telemetry, error) {
	var t sim.Telemetry
	var extras []byte
	err := rows.Scan(
		&t.AssetID, &t.SiteID, &t.SiteName, &t.Timestamp, &t.SocMWhr, &t.SocPct,
		&t.CapacityMWhr, &t.CurrentMW, &t.SetpointMW, &t.MaxMW, &t.MinMW, &t.Status,
		&t.VoltageV, &t.CurrentA, &t.DCBusV, &t.DCBusA,
		&t.TemperatureCellF, &t.TemperatureModuleF, &t.TemperatureAmbientF,
		&t.SohPct, &t.CycleCount, &t.EnergyInMWh, &t.EnergyOutMWh,
		&t.AvailableChargeKW, &t.AvailableDischargeKW, &extras)
	if err != nil {
		return t, err
	}
	if len(extras) > 0 {
		if err := json.Unmarshal(extras, &t.Extras); err != nil {
			return t, fmt.Errorf("decode telemetry extras: %w", err)
		}
	}
	return t, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (p *Postgres) LatestTelemetryByAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]sim.Telemetry, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]sim.Telemetry{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (asset_id) `+telemetryCols+`
		FROM telemetry WHERE asset_id = ANY($1)
		ORDER BY asset_id, ts DESC`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("latest telemetry: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]sim.Telemetry, len(ids))
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, fmt.Errorf("latest telemetry: %w", err)
		}
		out[t.AssetID] = t
	}
	return out, rows.Err()
}

func (p *Postgres) LatestTelemetryAll(ctx context.Context) ([]sim.Telemetry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (asset_id) `+telemetryCols+`
		FROM telemetry ORDER BY asset_id, ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest telemetry all: %w", err)
	}
	defer rows.Close()

	var out []sim.Telemetry
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, fmt.Errorf("latest telemetry all: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) TelemetryHistory(ctx context.Context, assetID uuid.UUID, start, end *time.Time, limit int) ([]sim.Telemetry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `SELECT ` + telemetryCols + ` FROM telemetry WHERE asset_id = $1`
	args := []interface{}{assetID}
	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("telemetry history: %w", err)
	}
	defer rows.Close()

	var out []sim.Telemetry
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, fmt.Errorf("telemetry history: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanDispatch(rows *sql.Rows) (sim.Dispatch, error) {
	var d sim.Dispatch
	var reason sql.NullString
	var ackStatus, ackReason sql.NullString
	var ackedAt sql.NullTime
	err := rows.Scan(&d.ID, &d.AssetID, &d.MW, &d.DurationS, &d.Status, &reason,
		&d.SubmittedAt, &d.Clamped, &ackStatus, &ackedAt, &ackReason)
	if err != nil {
		return d, err
	}
	d.Reason = reason.String
	d.AckStatus = ackStatus.String
	d.AckReason = ackReason.String
	if ackedAt.Valid {
		t := ackedAt.Time
		d.AckedAt = &t
	}
	return d, nil
}

const dispatchCols = `id, asset_id, mw, duration_s, status, reason, submitted_at, clamped, ack_status, acked_at, ack_reason`

func (p *Postgres) LatestDispatchesByAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]sim.Dispatch, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]sim.Dispatch{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (asset_id) `+dispatchCols+`
		FROM dispatches WHERE asset_id = ANY($1) AND status = 'accepted'
		ORDER BY asset_id, submitted_at DESC`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("latest dispatches: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]sim.Dispatch, len(ids))
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("latest dispatches: %w", err)
		}
		out[d.AssetID] = d
	}
	return out, rows.Err()
}

func (p *Postgres) DispatchHistory(ctx context.Context, limit int) ([]sim.Dispatch, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+dispatchCols+` FROM dispatches ORDER BY submitted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("dispatch history: %w", err)
	}
	defer rows.Close()

	var out []sim.Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch history: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) EventHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]sim.Event, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, asset_id, site_id, ts, event_type, severity, message
		FROM events WHERE asset_id = $1 ORDER BY ts DESC LIMIT $2`, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("event history: %w", err)
	}
	defer rows.Close()

	var out []sim.Event
	for rows.Next() {
		var e sim.Event
		if err := rows.Scan(&e.ID, &e.AssetID, &e.SiteID, &e.Timestamp,
			&e.EventType, &e.Severity, &e.Message); err != nil {
			return nil, fmt.Errorf("event history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestHeartbeat(ctx context.Context, assetID uuid.UUID) (time.Time, bool, error) {
	var ts time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT ts FROM heartbeats WHERE asset_id = $1 ORDER BY ts DESC LIMIT 1`, assetID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest heartbeat: %w", err)
	}
	return ts, true, nil
}

func (p *Postgres) HeartbeatHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT ts FROM heartbeats WHERE asset_id = $1 ORDER BY ts DESC LIMIT $2`, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("heartbeat history: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("heartbeat history: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (p *Postgres) RecentSessions(ctx context.Context, perAsset int) ([]Session, error) {
	if perAsset <= 0 {
		perAsset = 5
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT asset_id, peer, asset_name, site_name, connected_at, disconnected_at FROM (
			SELECT *, row_number() OVER (PARTITION BY asset_id ORDER BY connected_at DESC) AS rn
			FROM agent_sessions
		) ranked WHERE rn <= $1 ORDER BY connected_at DESC`, perAsset)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var disconnected sql.NullTime
		if err := rows.Scan(&s.AssetID, &s.Peer, &s.AssetName, &s.SiteName,
			&s.ConnectedAt, &disconnected); err != nil {
			return nil, fmt.Errorf("recent sessions: %w", err)
		}
		if disconnected.Valid {
			t := disconnected.Time
			s.DisconnectedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
