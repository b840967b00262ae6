package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/screenlink/screenlink/internal/api/middleware"
	"github.com/screenlink/screenlink/internal/api/models"
	"github.com/screenlink/screenlink/internal/api/response"
)

// requestWithContext runs a request through the RequestID middleware so its
// context carries a request ID.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	return processedReq, httptest.NewRecorder()
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/devices/dev-1/status")

	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "pending"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if id := rec.Header().Get("X-Request-Id"); len(id) < 10 {
		t.Errorf("expected X-Request-Id header, got %q", id)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestJSON_NilData(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/test")

	response.JSON(rec, req, http.StatusOK, nil)

	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestAccepted(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/devices/logs")

	response.Accepted(rec, req, models.DeviceLogsResponse{Accepted: 3})

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rec.Code)
	}
	var body models.DeviceLogsResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Accepted != 3 {
		t.Errorf("expected accepted 3, got %d", body.Accepted)
	}
}

func TestTooManyRequests_IncludesRateLimitHeaders(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/devices/register")

	response.TooManyRequestsWithInfo(rec, req, "slow down", &response.RateLimitInfo{
		Limit:      10,
		Remaining:  0,
		ResetAt:    1767225600,
		RetryAfter: 42,
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rec.Code)
	}
	for header, want := range map[string]string{
		"X-RateLimit-Limit":     "10",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "1767225600",
		"Retry-After":           "42",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("expected %s %q, got %q", header, want, got)
		}
	}
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) { response.BadRequest(w, r, "bad", nil) }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { response.Unauthorized(w, r, "no") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) { response.Forbidden(w, r, "not yours") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "gone") }, http.StatusNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "taken") }, http.StatusConflict},
		{"internal", func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "oops") }, http.StatusInternalServerError},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "later") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodPost, "/v1/screens/scr_1/pair")

			tt.write(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			var problem models.Problem
			if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
				t.Fatalf("failed to decode Problem response: %v", err)
			}
			if problem.Status != tt.status {
				t.Errorf("expected problem status %d, got %d", tt.status, problem.Status)
			}
			if problem.Instance != "/v1/screens/scr_1/pair" {
				t.Errorf("expected instance to be the request path, got %q", problem.Instance)
			}
			if problem.TraceID == "" {
				t.Error("expected trace ID")
			}
		})
	}
}
