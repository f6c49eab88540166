// Package engine runs one geofence evaluation pass: it matches live positions
// against active markers, gates each hit through the send policy, dispatches
// allowed notifications and records every outcome.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/geofence-engine/internal/dispatch"
	"github.com/PratikDhanave/geofence-engine/internal/geo"
	"github.com/PratikDhanave/geofence-engine/internal/metrics"
	"github.com/PratikDhanave/geofence-engine/internal/models"
	"github.com/PratikDhanave/geofence-engine/internal/policy"
)

// Skip reasons reported in RunSummary.Skipped for no-op runs.
const (
	SkipDisabled    = "disabled"
	SkipNoPositions = "no_positions"
	SkipNoMarkers   = "no_markers"
	SkipLocked      = "locked"
)

// testUserID is used for an injected test position without force_user_id.
const testUserID = "00000000-0000-0000-0000-000000000000"

// Store is the persistence the engine needs.
type Store interface {
	LoadSettings(ctx context.Context) (models.EngineConfig, error)
	LoadPositions(ctx context.Context, since time.Time, forceUserID string) ([]models.Position, error)
	LoadMarkers(ctx context.Context) ([]models.Marker, error)
	LogDelivery(ctx context.Context, e models.DeliveryLogEntry) error
	UpsertState(ctx context.Context, userID, markerID string, sent bool, at time.Time) error
	TouchWatermark(ctx context.Context, name string, at time.Time) error
}

// Dispatcher delivers one notification.
type Dispatcher interface {
	Send(ctx context.Context, payload models.BroadcastPayload) (dispatch.Result, error)
}

// DailyCounter reports how many notifications a user already got since a time.
type DailyCounter interface {
	CountSentSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Locker guards against overlapping runs of the same job.
type Locker interface {
	TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error)
}

// Options configure an Engine. Zero values fall back to defaults.
type Options struct {
	JobName        string
	PositionWindow time.Duration

	// Counter supplies per-user daily send counts. Nil counts every user as zero.
	Counter DailyCounter
	// Locker serialises runs. Nil disables the guard.
	Locker Locker

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine evaluates geofence hits and dispatches notifications.
type Engine struct {
	store      Store
	dispatcher Dispatcher
	counter    DailyCounter
	locker     Locker
	jobName    string
	window     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New builds an Engine over st and d.
func New(st Store, d Dispatcher, opts Options) *Engine {
	e := &Engine{
		store:      st,
		dispatcher: d,
		counter:    opts.Counter,
		locker:     opts.Locker,
		jobName:    opts.JobName,
		window:     opts.PositionWindow,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if e.jobName == "" {
		e.jobName = "geofence-engine"
	}
	if e.window <= 0 {
		e.window = 15 * time.Minute
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Run performs one pass. It never returns an error: failures are reported in
// the summary with Success=false.
func (e *Engine) Run(ctx context.Context, req models.RunRequest) models.RunSummary {
	start := e.now()
	summary := models.RunSummary{RunID: uuid.NewString(), Dry: req.Dry}
	log := e.logger.With("run_id", summary.RunID, "dry", req.Dry)

	err := e.run(ctx, log, req, start, &summary)

	summary.DurationMS = e.now().Sub(start).Milliseconds()
	metrics.RunDuration.Observe(float64(summary.DurationMS) / 1000)

	if err != nil {
		log.Error("geofence run failed", "error", err, "duration_ms", summary.DurationMS)
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return models.RunSummary{
			RunID:      summary.RunID,
			Success:    false,
			Dry:        req.Dry,
			Error:      err.Error(),
			DurationMS: summary.DurationMS,
		}
	}

	summary.Success = true
	result := "ok"
	if summary.Skipped != "" {
		result = "skipped"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	log.Info("geofence run finished",
		"processed", summary.Processed,
		"sent", summary.Sent,
		"quiet", summary.Quiet,
		"skipped", summary.Skipped,
		"duration_ms", summary.DurationMS)
	return summary
}

func (e *Engine) run(ctx context.Context, log *slog.Logger, req models.RunRequest, start time.Time, summary *models.RunSummary) error {
	if e.locker != nil {
		unlock, ok, err := e.locker.TryLock(ctx, e.jobName)
		if err != nil {
			return fmt.Errorf("run lock: %w", err)
		}
		if !ok {
			log.Warn("another run holds the job lock", "job", e.jobName)
			summary.Skipped = SkipLocked
			return nil
		}
		defer unlock()
	}

	cfg, err := e.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !cfg.Enabled {
		summary.Skipped = SkipDisabled
		return nil
	}

	positions, err := e.positions(ctx, req, start)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	markers, err := e.store.LoadMarkers(ctx)
	if err != nil {
		return fmt.Errorf("load markers: %w", err)
	}

	switch {
	case len(positions) == 0:
		summary.Skipped = SkipNoPositions
		return nil
	case len(markers) == 0:
		summary.Skipped = SkipNoMarkers
		return nil
	}

	quiet, err := policy.IsQuietHours(cfg.QuietHours, start)
	if err != nil {
		return fmt.Errorf("quiet hours: %w", err)
	}
	summary.Quiet = quiet

	dayStart, err := policy.DayStart(start, cfg.QuietHours.Timezone)
	if err != nil {
		return err
	}

	log.Debug("evaluating positions",
		"positions", len(positions),
		"markers", len(markers),
		"radius_m", cfg.DefaultRadiusM)

	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return err
		}

		sentToday := e.sentToday(ctx, log, pos.UserID, dayStart)
		here := geo.Point{Lat: pos.Lat, Lng: pos.Lng}

		for _, m := range markers {
			dist, ok := geo.Within(here, geo.Point{Lat: m.Lat, Lng: m.Lng}, cfg.DefaultRadiusM)
			if !ok {
				continue
			}

			gate := policy.Input{
				SentToday: sentToday,
				DailyCap:  cfg.DailyCap,
				Quiet:     quiet,
				Dry:       req.Dry,
			}
			entry := e.evaluate(ctx, cfg, summary.RunID, pos, m, dist, gate)

			summary.Processed++
			if entry.Sent {
				summary.Sent++
				sentToday++
			}
			e.record(ctx, log, entry)
		}
	}

	if err := e.store.TouchWatermark(ctx, e.jobName, e.now()); err != nil {
		log.Error("failed to touch watermark", "job", e.jobName, "error", err)
	}
	return nil
}

func (e *Engine) positions(ctx context.Context, req models.RunRequest, now time.Time) ([]models.Position, error) {
	if req.TestPosition != nil {
		userID := req.ForceUserID
		if userID == "" {
			userID = testUserID
		}
		return []models.Position{{
			UserID:    userID,
			Lat:       req.TestPosition.Lat,
			Lng:       req.TestPosition.Lng,
			UpdatedAt: now,
		}}, nil
	}
	return e.store.LoadPositions(ctx, now.Add(-e.window), req.ForceUserID)
}

// sentToday falls back to zero when no counter is configured or it fails.
func (e *Engine) sentToday(ctx context.Context, log *slog.Logger, userID string, since time.Time) int {
	if e.counter == nil {
		return 0
	}
	n, err := e.counter.CountSentSince(ctx, userID, since)
	if err != nil {
		log.Warn("daily send count failed, assuming zero", "user_id", userID, "error", err)
		return 0
	}
	return n
}

// evaluate gates one in-radius pair and dispatches it when allowed.
func (e *Engine) evaluate(
	ctx context.Context,
	cfg models.EngineConfig,
	runID string,
	pos models.Position,
	m models.Marker,
	dist float64,
	gate policy.Input,
) models.DeliveryLogEntry {
	payload := models.BroadcastPayload{
		Title:  policy.Render(cfg.TitleTemplate, m.Title),
		Body:   policy.Render(cfg.BodyTemplate, m.Title),
		URL:    cfg.ClickURL,
		Target: models.BroadcastTarget{UserIDsCSV: pos.UserID},
	}
	raw, _ := json.Marshal(payload)

	entry := models.DeliveryLogEntry{
		RunID:     runID,
		UserID:    pos.UserID,
		MarkerID:  m.ID,
		DistanceM: dist,
		Title:     payload.Title,
		Body:      payload.Body,
		Payload:   raw,
		Provider:  dispatch.Provider,
		CreatedAt: e.now(),
	}

	if reason := policy.Decide(gate); reason != "" {
		entry.Reason = reason
		return entry
	}

	res, err := e.dispatcher.Send(ctx, payload)
	switch {
	case err != nil:
		entry.Reason = models.ReasonSendError
		entry.Response = err.Error()
	case !res.OK():
		entry.Reason = models.SendErrorStatus(res.Status)
		entry.Response = res.Body
	default:
		entry.Reason = models.ReasonSent
		entry.Sent = true
		entry.Response = res.Body
	}
	return entry
}

// record persists the outcome of one pair. Write failures are logged and the
// run moves on, since a dispatched notification cannot be taken back.
func (e *Engine) record(ctx context.Context, log *slog.Logger, entry models.DeliveryLogEntry) {
	metrics.DeliveriesTotal.WithLabelValues(string(entry.Reason)).Inc()

	if err := e.store.LogDelivery(ctx, entry); err != nil {
		log.Error("failed to log delivery",
			"user_id", entry.UserID,
			"marker_id", entry.MarkerID,
			"reason", entry.Reason,
			"error", err)
	}

	if err := e.store.UpsertState(ctx, entry.UserID, entry.MarkerID, entry.Sent, entry.CreatedAt); err != nil {
		log.Error("failed to upsert state",
			"user_id", entry.UserID,
			"marker_id", entry.MarkerID,
			"error", err)
	}

	if entry.Sent {
		log.Info("geofence notification sent", "user_id", entry.UserID, "marker_id", entry.MarkerID, "distance_m", entry.DistanceM)
	} else {
		log.Debug("geofence notification skipped", "user_id", entry.UserID, "marker_id", entry.MarkerID, "reason", entry.Reason)
	}
}
