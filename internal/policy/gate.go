package policy

import (
	"strings"

	"github.com/PratikDhanave/geofence-engine/internal/models"
)

// MarkerNamePlaceholder is substituted by Render.
const MarkerNamePlaceholder = "{{marker_name}}"

// Input carries everything the gate looks at for one user.
type Input struct {
	SentToday int
	DailyCap  int
	Quiet     bool
	Dry       bool
}

// CapReached reports whether the user already hit the daily send cap.
// A cap of zero or less means unlimited.
func CapReached(sentToday, dailyCap int) bool {
	return dailyCap > 0 && sentToday >= dailyCap
}

// Decide returns the suppression reason, or "" when the pair may be dispatched.
// Order: daily cap, quiet hours, dry run.
func Decide(in Input) models.Reason {
	switch {
	case CapReached(in.SentToday, in.DailyCap):
		return models.ReasonDailyCap
	case in.Quiet:
		return models.ReasonQuietHours
	case in.Dry:
		return models.ReasonDryRun
	default:
		return ""
	}
}

// Render substitutes the marker name into a title or body template.
func Render(template, markerName string) string {
	return strings.ReplaceAll(template, MarkerNamePlaceholder, markerName)
}
