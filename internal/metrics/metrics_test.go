package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountsTransitionsAndConflicts(t *testing.T) {
	r := NewRecorder()
	r.Transition("change_request", "finalize")
	r.Transition("change_request", "finalize")
	r.Conflict("change_request.decide")

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("change_request", "finalize")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(r.conflicts.WithLabelValues("change_request.decide")); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
}

func TestRecorder_HandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := NewRecorder()

	r := gin.New()
	r.Use(rec.GinMiddleware())
	r.GET("/v1/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(rec.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `hr_http_request_duration_seconds_count{method="GET",route="/v1/items/:id",status="204"} 1`) {
		t.Fatalf("expected request histogram in output, got:\n%s", body)
	}
}
