package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	h := Handler()

	tests := []struct {
		path     string
		contains string
	}{
		{"/", "Dispatch Trainer"},
		{"/app.js", "/ws/play"},
		{"/app.css", "#chat"},
		{"/play/anything", "Dispatch Trainer"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status %d", tt.path, rec.Code)
			continue
		}
		if !strings.Contains(rec.Body.String(), tt.contains) {
			t.Errorf("GET %s: body missing %q", tt.path, tt.contains)
		}
	}
}
