package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/geofence-engine/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// ErrNoSettings is returned when the settings view has no row.
var ErrNoSettings = errors.New("geo push settings row missing")

// PostgresStore is the persistence layer behind the geo_push_* views and RPC functions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// LoadSettings reads the singleton engine configuration.
func (p *PostgresStore) LoadSettings(ctx context.Context) (models.EngineConfig, error) {
	var cfg models.EngineConfig
	err := p.pool.QueryRow(ctx, `
		SELECT enabled, default_radius_m, daily_cap, quiet_hours,
		       title_template, body_template, click_url
		FROM geo_push_settings_v
		LIMIT 1
	`).Scan(
		&cfg.Enabled,
		&cfg.DefaultRadiusM,
		&cfg.DailyCap,
		&cfg.QuietHours,
		&cfg.TitleTemplate,
		&cfg.BodyTemplate,
		&cfg.ClickURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.EngineConfig{}, ErrNoSettings
	}
	if err != nil {
		return models.EngineConfig{}, fmt.Errorf("query settings: %w", err)
	}
	return cfg, nil
}

// LoadPositions returns positions updated at or after since, newest first.
// A non-empty forceUserID restricts the result to that user.
func (p *PostgresStore) LoadPositions(ctx context.Context, since time.Time, forceUserID string) ([]models.Position, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_id, lat, lng, updated_at
		FROM geo_push_positions_v
		WHERE updated_at >= $1
		  AND ($2::text = '' OR user_id = $2::text)
		ORDER BY updated_at DESC
	`, since, forceUserID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Position, error) {
		var pos models.Position
		err := row.Scan(&pos.UserID, &pos.Lat, &pos.Lng, &pos.UpdatedAt)
		return pos, err
	})
}

// LoadMarkers returns every active marker.
func (p *PostgresStore) LoadMarkers(ctx context.Context) ([]models.Marker, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, lat, lng
		FROM geo_push_markers_v
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Marker, error) {
		var m models.Marker
		err := row.Scan(&m.ID, &m.Title, &m.Lat, &m.Lng)
		return m, err
	})
}

// LogDelivery appends one audit row through geo_push_log_delivery.
func (p *PostgresStore) LogDelivery(ctx context.Context, e models.DeliveryLogEntry) error {
	var runID any
	if e.RunID != "" {
		runID = e.RunID
	}

	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	var id int64
	err := p.pool.QueryRow(ctx, `
		SELECT geo_push_log_delivery($1::uuid, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12)
	`,
		runID,
		e.UserID,
		e.MarkerID,
		e.DistanceM,
		string(e.Reason),
		e.Title,
		e.Body,
		payload,
		e.Sent,
		e.Provider,
		e.Response,
		e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("log delivery: %w", err)
	}
	return nil
}

// UpsertState bumps the enter counter for (userID, markerID), and the sent
// counter as well when sent is true.
func (p *PostgresStore) UpsertState(ctx context.Context, userID, markerID string, sent bool, at time.Time) error {
	if _, err := p.pool.Exec(ctx, `SELECT geo_push_upsert_state($1, $2, $3, $4)`, userID, markerID, sent, at); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// TouchWatermark records the completion time of the named job.
func (p *PostgresStore) TouchWatermark(ctx context.Context, name string, at time.Time) error {
	if _, err := p.pool.Exec(ctx, `SELECT geo_push_touch_watermark($1, $2)`, name, at); err != nil {
		return fmt.Errorf("touch watermark: %w", err)
	}
	return nil
}

// Watermark returns the last run time recorded for name.
func (p *PostgresStore) Watermark(ctx context.Context, name string) (time.Time, error) {
	var at time.Time
	err := p.pool.QueryRow(ctx, `SELECT last_run_at FROM geo_push_watermarks WHERE name = $1`, name).Scan(&at)
	return at, err
}

// CountSentSince returns how many notifications userID received since the given time.
func (p *PostgresStore) CountSentSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM geo_push_delivery_log
		WHERE user_id = $1
		  AND sent
		  AND created_at >= $2
	`, userID, since).Scan(&count)
	return count, err
}

// State returns the rolling counters for (userID, markerID).
func (p *PostgresStore) State(ctx context.Context, userID, markerID string) (models.GeoPushState, error) {
	st := models.GeoPushState{UserID: userID, MarkerID: markerID}
	err := p.pool.QueryRow(ctx, `
		SELECT last_enter_at, last_sent_at, enter_count, sent_count
		FROM geo_push_state
		WHERE user_id = $1 AND marker_id = $2
	`, userID, markerID).Scan(&st.LastEnterAt, &st.LastSentAt, &st.EnterCount, &st.SentCount)
	return st, err
}
