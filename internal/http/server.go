// Package http is the JSON API of the invoice service.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"invoiced/internal/auth"
	"invoiced/internal/blob"
	"invoiced/internal/cache"
	"invoiced/internal/core"
	"invoiced/internal/mail"
	"invoiced/internal/metrics"
	"invoiced/internal/services"
	"invoiced/internal/storage"
)

const serviceName = "api"

type Server struct {
	http.Server

	storage  *storage.SQLiteRepository
	invoices *services.InvoiceService
	sender   *mail.SendService
	blobs    blob.Store
	metrics  *metrics.Metrics

	rateLimiter *rateLimiter
	// Computed summaries keyed by user, dropped on any write.
	summaryCache *cache.LRU[core.Summary]

	maxUploadBytes   int64
	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

type Options struct {
	Addr               string
	Verifier           auth.Verifier
	RateLimitPerMinute int
	MaxUploadBytes     int64
}

func NewServer(opts Options, st *storage.SQLiteRepository, invoices *services.InvoiceService, sender *mail.SendService, blobs blob.Store, m *metrics.Metrics) *Server {
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 120
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}

	s := &Server{
		storage:          st,
		invoices:         invoices,
		sender:           sender,
		blobs:            blobs,
		metrics:          m,
		rateLimiter:      newRateLimiter(opts.RateLimitPerMinute),
		summaryCache:     cache.NewLRU[core.Summary](500, 5*time.Minute),
		maxUploadBytes:   opts.MaxUploadBytes,
		stopCacheCleanup: make(chan struct{}),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", m.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /api/clients", s.handleCreateClient)
	api.HandleFunc("GET /api/clients", s.handleListClients)
	api.HandleFunc("GET /api/clients/{id}", s.handleGetClient)
	api.HandleFunc("PUT /api/clients/{id}", s.handleUpdateClient)
	api.HandleFunc("DELETE /api/clients/{id}", s.handleDeleteClient)

	api.HandleFunc("POST /api/invoices", s.handleCreateInvoice)
	api.HandleFunc("GET /api/invoices", s.handleListInvoices)
	api.HandleFunc("GET /api/invoices/{id}", s.handleGetInvoice)
	api.HandleFunc("PUT /api/invoices/{id}", s.handleUpdateInvoice)
	api.HandleFunc("DELETE /api/invoices/{id}", s.handleDeleteInvoice)
	api.HandleFunc("PATCH /api/invoices/{id}/flags", s.handleUpdateFlags)

	api.HandleFunc("POST /api/invoices/{id}/files", s.handleUploadFile)
	api.HandleFunc("GET /api/invoices/{id}/files", s.handleListFiles)
	api.HandleFunc("GET /api/invoices/{id}/files/{fileID}", s.handleDownloadFile)

	api.HandleFunc("POST /api/invoices/{id}/send", s.handleSendInvoice)
	api.HandleFunc("GET /api/settings/email-account", s.handleGetEmailAccount)
	api.HandleFunc("PUT /api/settings/email-account", s.handlePutEmailAccount)
	api.HandleFunc("GET /api/settings/conversion-rate", s.handleGetConversionRate)
	api.HandleFunc("PUT /api/settings/conversion-rate", s.handlePutConversionRate)

	api.HandleFunc("GET /api/reports/summary", s.handleSummary)
	api.HandleFunc("GET /api/reports/summary.xlsx", s.handleSummaryXLSX)

	var protected http.Handler = api
	protected = auth.Middleware(opts.Verifier)(protected)
	protected = s.rateLimiter.middleware(protected)
	mux.Handle("/api/", protected)

	var root http.Handler = mux
	root = m.Middleware(serviceName, root)
	root = withSecurityHeaders(root)
	root = withRequestLogging(root)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.cacheCleanupLoop()
	return s
}

func (s *Server) cacheCleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.summaryCache.CleanExpired()
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateSummary drops the cached report after any write that can
// change the numbers.
func (s *Server) invalidateSummary(userID string) {
	s.summaryCache.Delete(userID)
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
