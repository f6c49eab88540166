package models

// TestPosition injects a synthetic coordinate instead of reading live positions.
type TestPosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RunRequest is the POST /geofence-engine payload. Every field is optional.
type RunRequest struct {
	Dry          bool          `json:"dry"`
	ForceUserID  string        `json:"force_user_id,omitempty"`
	TestPosition *TestPosition `json:"test_position,omitempty"`
	CronSecret   string        `json:"cron_secret,omitempty"`
}

// RunSummary is returned by every engine run, successful or not.
type RunSummary struct {
	Success    bool   `json:"success"`
	RunID      string `json:"run_id,omitempty"`
	Processed  int    `json:"processed"`
	Sent       int    `json:"sent"`
	Dry        bool   `json:"dry"`
	Quiet      bool   `json:"quiet"`
	Skipped    string `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}
