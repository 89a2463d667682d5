package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mpark1306/TempMate12/internal/controller"
	"github.com/mpark1306/TempMate12/internal/lifecycle"
	"github.com/mpark1306/TempMate12/internal/models"
	"github.com/mpark1306/TempMate12/internal/outcome"
	"github.com/mpark1306/TempMate12/internal/store"
)

type staticMode struct{ mode controller.Mode }

func (s staticMode) Mode() controller.Mode { return s.mode }

type resetCollector struct {
	resetErr   error
	resetCalls int
}

func (c *resetCollector) PostReading(ctx context.Context, r models.Reading) (int, error) {
	return http.StatusOK, nil
}

func (c *resetCollector) Reset(ctx context.Context) error {
	c.resetCalls++
	return c.resetErr
}

func newAdminForTest(mode controller.Mode, c *resetCollector, st *store.Store) *AdminHandler {
	return NewAdminHandler(staticMode{mode}, c, st, 30*time.Minute, zap.NewNop())
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

// TestGetHealth_Healthy verifies the healthy response in normal mode.
func TestGetHealth_Healthy(t *testing.T) {
	outcome.Reset()
	st := store.New()
	st.Append(models.Reading{Timestamp: "T0", Temperature: 21.5})
	h := newAdminForTest(controller.ModeNormal, &resetCollector{}, st)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.GetHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["mode"] != "normal" {
		t.Errorf("mode = %v, want normal", body["mode"])
	}
	if body["buffer_length"] != float64(1) {
		t.Errorf("buffer_length = %v, want 1", body["buffer_length"])
	}
}

// TestGetHealth_DegradedInFallback verifies fallback mode reports 503.
func TestGetHealth_DegradedInFallback(t *testing.T) {
	outcome.Reset()
	outcome.RecordFailure()
	h := newAdminForTest(controller.ModeFallback, &resetCollector{}, store.New())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.GetHealth(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want 503", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	deliveryInfo := body["delivery"].(map[string]interface{})
	if deliveryInfo["failures_in_window"] != float64(1) {
		t.Errorf("failures_in_window = %v, want 1", deliveryInfo["failures_in_window"])
	}
}

// TestGetHealth_ShuttingDown verifies the drain state wins over mode.
func TestGetHealth_ShuttingDown(t *testing.T) {
	outcome.Reset()
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)
	h := newAdminForTest(controller.ModeNormal, &resetCollector{}, store.New())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.GetHealth(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want 503", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "shutting-down" {
		t.Errorf("status = %v, want shutting-down", body["status"])
	}
}

// TestPostReset_Success verifies a reset is forwarded to the collector once.
func TestPostReset_Success(t *testing.T) {
	c := &resetCollector{}
	h := newAdminForTest(controller.ModeNormal, c, store.New())

	req := httptest.NewRequest("POST", "/admin/reset", nil)
	w := httptest.NewRecorder()
	h.PostReset(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("POST /admin/reset status = %d, want 200", w.Code)
	}
	if c.resetCalls != 1 {
		t.Errorf("collector reset called %d times, want 1", c.resetCalls)
	}
	if body := decodeBody(t, w); body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
}

// TestPostReset_CollectorRejects verifies a failed reset returns 502 in the
// standard error format, with no retry.
func TestPostReset_CollectorRejects(t *testing.T) {
	c := &resetCollector{resetErr: errors.New("status 403")}
	h := newAdminForTest(controller.ModeNormal, c, store.New())

	req := httptest.NewRequest("POST", "/admin/reset", nil)
	w := httptest.NewRecorder()
	h.PostReset(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("POST /admin/reset status = %d, want 502", w.Code)
	}
	if c.resetCalls != 1 {
		t.Errorf("collector reset called %d times, want 1", c.resetCalls)
	}
	body := decodeBody(t, w)
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "RESET_FAILED" {
		t.Errorf("error code = %v, want RESET_FAILED", errObj["code"])
	}
}

// TestAdminRouter_MethodsEnforced verifies route methods on the built router.
func TestAdminRouter_MethodsEnforced(t *testing.T) {
	h := newAdminForTest(controller.ModeNormal, &resetCollector{}, store.New())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/reset")
	if err != nil {
		t.Fatalf("GET /admin/reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /admin/reset status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
}
