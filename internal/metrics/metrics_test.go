package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/api/invoices", "/api/invoices"},
		{"/api/invoices/abc-123", "/api/invoices/{id}"},
		{"/api/invoices/abc-123/files", "/api/invoices/{id}/files"},
		{"/api/invoices/abc-123/files/f-9", "/api/invoices/{id}/files/{id}"},
		{"/healthz", "/healthz"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New("api")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d", rec.Code)
	}

	m.RecordExtraction("worker", "done", 50*time.Millisecond)
	m.RecordEmail("api", "sent")
	m.RecordUpload()

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(metricsRec.Body)
	text := string(body)

	for _, want := range []string{
		`invoiced_http_requests_total{method="POST",path="/api/invoices",service="api",status="201"} 1`,
		`invoiced_extraction_jobs_total{outcome="done",service="worker"} 1`,
		`invoiced_mail_sent_total{outcome="sent",service="api"} 1`,
		`invoiced_files_uploads_total{service="api"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
