package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/geofence-engine/internal/models"
)

// maxRunBodyBytes bounds the run request body.
const maxRunBodyBytes = 64 << 10

// Runner executes one geofence pass.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) models.RunSummary
}

// RegisterEngineRoutes registers the scheduler entry points.
//
// POST /geofence-engine (alias POST /run)
// - Body is optional: {dry, force_user_id, test_position:{lat,lng}, cron_secret}
// - 200 with the run summary on success, 500 {success:false,error,duration_ms} on failure
// - The run is detached from the caller's connection; a scheduler timeout does
//   not abort a half-finished pass
func RegisterEngineRoutes(r gin.IRoutes, runner Runner) {
	h := func(c *gin.Context) {
		req, err := decodeRunRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON payload"})
			return
		}

		summary := runner.Run(context.WithoutCancel(c.Request.Context()), req)
		if !summary.Success {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":     false,
				"error":       summary.Error,
				"duration_ms": summary.DurationMS,
			})
			return
		}

		c.JSON(http.StatusOK, summary)
	}

	r.POST("/geofence-engine", h)
	r.POST("/run", h)
}

// decodeRunRequest accepts an empty body as the zero request.
func decodeRunRequest(c *gin.Context) (models.RunRequest, error) {
	var req models.RunRequest
	if c.Request.Body == nil {
		return req, nil
	}

	dec := json.NewDecoder(io.LimitReader(c.Request.Body, maxRunBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return models.RunRequest{}, nil
		}
		return models.RunRequest{}, err
	}
	return req, nil
}
