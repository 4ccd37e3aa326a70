package httputil

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"mode": "normal"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["mode"] != "normal" {
		t.Errorf("mode = %s, want 'normal'", resp["mode"])
	}
}

func TestRequireMethod(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if !RequireMethod(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.MethodGet) {
		t.Error("GET should be allowed")
	}

	rec = httptest.NewRecorder()
	if RequireMethod(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.MethodGet) {
		t.Error("POST should be rejected")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Errorf("Allow = %q, want GET", allow)
	}
}

func TestBadGateway(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	BadGateway(rec, "query radar", errors.New("radar disabled"))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if !strings.Contains(rec.Body.String(), "Failed to query radar: radar disabled") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 100, false},
		{"limit=5", 5, false},
		{"limit=10000", 10000, false},
		{"limit=0", 0, true},
		{"limit=10001", 0, true},
		{"limit=abc", 0, true},
		{"other=3", 100, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/frames?"+tt.query, nil)
		got, err := QueryInt(r, "limit", 100, 1, 10000)
		if (err != nil) != tt.wantErr {
			t.Errorf("QueryInt(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("QueryInt(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/api/speed_summary?hours=720", nil)
	if got, err := QueryInt(r, "hours", 24, 1, math.MaxInt); err != nil || got != 720 {
		t.Errorf("QueryInt(hours) = %d, %v", got, err)
	}
}
