package auth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authorizedCtxKey stores whether the caller presented the expected secret.
const authorizedCtxKey = "cron_authorized"

// maxProbeBytes bounds how much of the body is read to look for cron_secret.
const maxProbeBytes = 64 << 10

// CronSecretMiddleware checks the scheduler secret from x-cron-secret,
// x-internal-secret or the JSON body field cron_secret.
//
// An empty expected secret disables the check. On mismatch the request is
// logged and allowed through unless enforce is true, in which case it gets 401.
func CronSecretMiddleware(expected string, enforce bool, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		if expected == "" {
			c.Set(authorizedCtxKey, true)
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader("x-cron-secret"))
		if presented == "" {
			presented = strings.TrimSpace(c.GetHeader("x-internal-secret"))
		}
		if presented == "" {
			presented = bodySecret(c)
		}

		ok := subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
		c.Set(authorizedCtxKey, ok)
		if ok {
			c.Next()
			return
		}

		if enforce {
			logger.Warn("cron secret rejected", "path", c.FullPath(), "presented", presented != "")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		// Soft gate: older schedulers call without the secret.
		logger.Warn("cron secret mismatch, continuing", "path", c.FullPath(), "presented", presented != "")
		c.Next()
	}
}

// Authorized reports whether the current request presented a valid secret.
func Authorized(c *gin.Context) bool {
	v, _ := c.Get(authorizedCtxKey)
	b, _ := v.(bool)
	return b
}

// bodySecret reads cron_secret from a JSON body and restores the body for the handler.
func bodySecret(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProbeBytes))
	rest := c.Request.Body
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if err != nil || len(raw) == 0 {
		return ""
	}

	var probe struct {
		CronSecret string `json:"cron_secret"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	return strings.TrimSpace(probe.CronSecret)
}
