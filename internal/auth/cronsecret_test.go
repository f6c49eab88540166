package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(expected string, enforce bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CronSecretMiddleware(expected, enforce, nil))
	r.POST("/run", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"authorized": Authorized(c), "body": string(body)})
	})
	return r
}

func do(r http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCronSecret_HeaderAccepted(t *testing.T) {
	r := newTestRouter("s3cret", true)

	for _, h := range []string{"x-cron-secret", "x-internal-secret"} {
		w := do(r, "", map[string]string{h: "s3cret"})
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"authorized":true`) {
			t.Fatalf("%s: got %d %s", h, w.Code, w.Body.String())
		}
	}
}

func TestCronSecret_BodyAcceptedAndRestored(t *testing.T) {
	r := newTestRouter("s3cret", true)

	body := `{"dry":true,"cron_secret":"s3cret"}`
	w := do(r, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	// The handler must still see the whole body.
	if !strings.Contains(w.Body.String(), `\"dry\":true`) {
		t.Fatalf("body not restored: %s", w.Body.String())
	}
}

func TestCronSecret_SoftGateLetsMismatchThrough(t *testing.T) {
	r := newTestRouter("s3cret", false)

	w := do(r, "", map[string]string{"x-cron-secret": "wrong"})
	if w.Code != http.StatusOK {
		t.Fatalf("soft gate should continue, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"authorized":false`) {
		t.Fatalf("expected unauthorized flag, got %s", w.Body.String())
	}
}

func TestCronSecret_EnforcedRejectsMismatch(t *testing.T) {
	r := newTestRouter("s3cret", true)

	w := do(r, `{"cron_secret":"nope"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCronSecret_EmptyExpectedDisablesCheck(t *testing.T) {
	r := newTestRouter("", true)

	w := do(r, "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"authorized":true`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
