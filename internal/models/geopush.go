package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Reason is the outcome recorded for one (user, marker) evaluation.
type Reason string

const (
	ReasonSent       Reason = "SENT"
	ReasonEnter      Reason = "ENTER"
	ReasonQuietHours Reason = "QUIET_HOURS"
	ReasonDryRun     Reason = "DRY_RUN"
	ReasonDailyCap   Reason = "DAILY_CAP"
	ReasonSendError  Reason = "SEND_ERROR"
)

// SendErrorStatus builds SEND_ERROR_<code> for a non-2xx broadcast response.
func SendErrorStatus(code int) Reason {
	return Reason(string(ReasonSendError) + "_" + strconv.Itoa(code))
}

// Position is the last known location of a user.
type Position struct {
	UserID    string    `json:"user_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Marker is an active reward location used as a geofence trigger.
type Marker struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// QuietHours is a local-time window ("HH:MM") during which sends are suppressed.
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// EngineConfig is the singleton settings row read at the start of every run.
type EngineConfig struct {
	Enabled        bool       `json:"enabled"`
	DefaultRadiusM float64    `json:"default_radius_m"`
	DailyCap       int        `json:"daily_cap"`
	QuietHours     QuietHours `json:"quiet_hours"`
	TitleTemplate  string     `json:"title_template"`
	BodyTemplate   string     `json:"body_template"`
	ClickURL       string     `json:"click_url"`
}

// DeliveryLogEntry is the append-only audit row written for each evaluated pair.
type DeliveryLogEntry struct {
	RunID     string          `json:"run_id"`
	UserID    string          `json:"user_id"`
	MarkerID  string          `json:"marker_id"`
	DistanceM float64         `json:"distance_m"`
	Reason    Reason          `json:"reason"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload"`
	Sent      bool            `json:"sent"`
	Provider  string          `json:"provider"`
	Response  string          `json:"response,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// GeoPushState is the rolling per (user, marker) counter.
type GeoPushState struct {
	UserID      string     `json:"user_id"`
	MarkerID    string     `json:"marker_id"`
	LastEnterAt *time.Time `json:"last_enter_at,omitempty"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty"`
	EnterCount  int        `json:"enter_count"`
	SentCount   int        `json:"sent_count"`
}

// BroadcastTarget selects recipients of a broadcast.
type BroadcastTarget struct {
	UserIDsCSV string `json:"user_ids_csv"`
}

// BroadcastPayload is the body posted to the broadcast endpoint.
type BroadcastPayload struct {
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	URL    string          `json:"url"`
	Target BroadcastTarget `json:"target"`
}
