package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
)

// ErrNoDSN is returned by Open when the connection string is empty.
var ErrNoDSN = errors.New("history: empty dsn")

// Recorder is the sink the receiver and alert engine write to.
type Recorder interface {
	RecordPrediction(ctx context.Context, snap *types.SensorSnapshot) error
	RecordAlert(ctx context.Context, a alerts.Alert) error
	RecentPredictions(ctx context.Context, sensorID string, limit int) ([]Prediction, error)
	Close() error
}

// Prediction is one persisted prediction row.
type Prediction struct {
	SensorID       string    `json:"sensor_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	Status         string    `json:"status"`
	HealthScore    int       `json:"health_score"`
	CompositeScore float64   `json:"composite_score"`
	RUL            int       `json:"rul"`
	RULStatus      string    `json:"rul_status"`
	Temperature    float64   `json:"temperature"`
	NoiseLevel     float64   `json:"noise_level"`
	DeadPixels     float64   `json:"dead_pixels"`
}

// tables holds the prefixed table names. The prefix is validated by the
// server config before it reaches SQL text.
type tables struct {
	predictions string // latest prediction per sensor
	logs        string // append-only prediction log
	alerts      string
}

func newTables(prefix string) tables {
	return tables{
		predictions: prefix + "predictions",
		logs:        prefix + "health_logs",
		alerts:      prefix + "alerts",
	}
}

func (t tables) schema() []string {
	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	sensor_id       TEXT PRIMARY KEY,
	sensor_type     TEXT NOT NULL,
	status          TEXT NOT NULL,
	condition       TEXT NOT NULL,
	health_score    INTEGER NOT NULL,
	composite_score DOUBLE PRECISION NOT NULL,
	rul             INTEGER NOT NULL,
	rul_status      TEXT NOT NULL,
	forecast        JSONB,
	updated_at      TIMESTAMPTZ NOT NULL
)`, t.predictions),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	sensor_id       TEXT NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	health_score    INTEGER NOT NULL,
	composite_score DOUBLE PRECISION NOT NULL,
	rul             INTEGER NOT NULL,
	rul_status      TEXT NOT NULL,
	temperature     DOUBLE PRECISION NOT NULL,
	noise_level     DOUBLE PRECISION NOT NULL,
	dead_pixels     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (sensor_id, recorded_at)
)`, t.logs),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          UUID PRIMARY KEY,
	sensor_id   TEXT NOT NULL,
	rule_name   TEXT NOT NULL,
	severity    TEXT NOT NULL,
	state       TEXT NOT NULL,
	message     TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	fired_at    TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
)`, t.alerts),
	}
}

func (t tables) upsertPrediction() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	sensor_id, sensor_type, status, condition, health_score, composite_score,
	rul, rul_status, forecast, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (sensor_id)
DO UPDATE SET
	sensor_type = EXCLUDED.sensor_type,
	status = EXCLUDED.status,
	condition = EXCLUDED.condition,
	health_score = EXCLUDED.health_score,
	composite_score = EXCLUDED.composite_score,
	rul = EXCLUDED.rul,
	rul_status = EXCLUDED.rul_status,
	forecast = EXCLUDED.forecast,
	updated_at = EXCLUDED.updated_at`, t.predictions)
}

func (t tables) insertLog() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	sensor_id, recorded_at, status, health_score, composite_score,
	rul, rul_status, temperature, noise_level, dead_pixels
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (sensor_id, recorded_at) DO NOTHING`, t.logs)
}

// upsertAlert keys on the alert ID so the resolve transition updates the
// row written when the alert fired.
func (t tables) upsertAlert() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	id, sensor_id, rule_name, severity, state, message, value, fired_at, resolved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (id)
DO UPDATE SET
	state = EXCLUDED.state,
	resolved_at = EXCLUDED.resolved_at`, t.alerts)
}

func (t tables) selectRecent() string {
	return fmt.Sprintf(`
SELECT sensor_id, recorded_at, status, health_score, composite_score,
	rul, rul_status, temperature, noise_level, dead_pixels
FROM %s
WHERE sensor_id = $1
ORDER BY recorded_at DESC
LIMIT $2`, t.logs)
}

// Postgres is a Recorder backed by a PostgreSQL database.
type Postgres struct {
	db     *sql.DB
	tables tables
}

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn, tablePrefix string) (*Postgres, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	return &Postgres{db: db, tables: newTables(tablePrefix)}, nil
}

// EnsureSchema creates the history tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range p.tables.schema() {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: ensure schema: %w", err)
		}
	}
	return nil
}

// RecordPrediction upserts the latest prediction for the sensor and appends
// it to the log in one transaction. Failed-scrape snapshots are skipped.
func (p *Postgres) RecordPrediction(ctx context.Context, snap *types.SensorSnapshot) error {
	if snap == nil || snap.ErrorMessage != "" {
		return nil
	}
	forecast, err := json.Marshal(snap.Forecast)
	if err != nil {
		return fmt.Errorf("history: encode forecast: %w", err)
	}
	at := time.Unix(snap.TimestampUnix, 0).UTC()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, p.tables.upsertPrediction(),
		snap.SensorID, snap.SensorType, snap.Status, snap.Condition, snap.HealthScore,
		snap.CompositeScore, snap.RUL, snap.RULStatus, forecast, at,
	); err != nil {
		return fmt.Errorf("history: upsert prediction %s: %w", snap.SensorID, err)
	}
	if _, err := tx.ExecContext(ctx, p.tables.insertLog(),
		snap.SensorID, at, snap.Status, snap.HealthScore, snap.CompositeScore,
		snap.RUL, snap.RULStatus, snap.Latest.Temperature, snap.Latest.NoiseLevel, snap.Latest.DeadPixels,
	); err != nil {
		return fmt.Errorf("history: insert log %s: %w", snap.SensorID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// RecordAlert writes a fired alert or updates it on resolve.
func (p *Postgres) RecordAlert(ctx context.Context, a alerts.Alert) error {
	var resolved sql.NullTime
	if a.ResolvedAt != nil {
		resolved = sql.NullTime{Time: a.ResolvedAt.UTC(), Valid: true}
	}
	if _, err := p.db.ExecContext(ctx, p.tables.upsertAlert(),
		a.ID, a.SensorID, a.RuleName, a.Severity, a.State, a.Message, a.Value, a.FiredAt.UTC(), resolved,
	); err != nil {
		return fmt.Errorf("history: record alert %s: %w", a.ID, err)
	}
	return nil
}

// RecentPredictions returns up to limit logged predictions for sensorID,
// newest first.
func (p *Postgres) RecentPredictions(ctx context.Context, sensorID string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, p.tables.selectRecent(), sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query %s: %w", sensorID, err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var r Prediction
		if err := rows.Scan(
			&r.SensorID,
			&r.RecordedAt,
			&r.Status,
			&r.HealthScore,
			&r.CompositeScore,
			&r.RUL,
			&r.RULStatus,
			&r.Temperature,
			&r.NoiseLevel,
			&r.DeadPixels,
		); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.RecordedAt = r.RecordedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Noop discards everything. It is used when storage is disabled.
type Noop struct{}

func (Noop) RecordPrediction(context.Context, *types.SensorSnapshot) error { return nil }
func (Noop) RecordAlert(context.Context, alerts.Alert) error               { return nil }
func (Noop) RecentPredictions(context.Context, string, int) ([]Prediction, error) {
	return nil, nil
}
func (Noop) Close() error { return nil }
