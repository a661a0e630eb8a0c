// Package http exposes the ledger over a JSON API: participant, card
// and expense management plus the derived summary and settlement views.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/middleware/ratelimit"
	"splitledger/internal/middleware/security"
	"splitledger/internal/middleware/trace"
	"splitledger/internal/services"
)

type Server struct {
	http.Server
	service  *services.LedgerService
	limiter  *ratelimit.Limiter
	detector *security.Detector

	// Derived views are cached per date window and purged on any write.
	summaryCache   *cache.LRUCache[summaryResponse]
	transfersCache *cache.LRUCache[[]core.Transfer]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		service:        svc,
		limiter:        ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:       security.NewDetector(),
		summaryCache:   cache.NewLRUCache[summaryResponse](100, 5*time.Minute),
		transfersCache: cache.NewLRUCache[[]core.Transfer](100, 5*time.Minute),
		cacheManager:   cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.Register(s.transfersCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/ledger", s.handleGetLedger)

	mux.HandleFunc("GET /api/participants", s.handleListParticipants)
	mux.HandleFunc("POST /api/participants", s.handleAddParticipant)
	mux.HandleFunc("DELETE /api/participants/{name}", s.handleRemoveParticipant)

	mux.HandleFunc("GET /api/cards", s.handleListCards)
	mux.HandleFunc("POST /api/cards", s.handleAddCard)
	mux.HandleFunc("DELETE /api/cards/{name}", s.handleRemoveCard)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/transfers", s.handleTransfers)

	mux.HandleFunc("POST /api/allocations/preview", s.handlePreviewAllocations)

	mux.HandleFunc("POST /api/expenses/import", s.handleImportCSV)
	mux.HandleFunc("GET /api/expenses/export", s.handleExportCSV)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP)

	handler := tracer.Middleware(
		headers.Middleware(
			s.limitWrites(
				s.flagSuspicious(mux))))

	s.Server = http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// limitWrites applies the per-IP rate limit to mutating requests only;
// reads are served from cache and stay cheap.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			clientIP := s.detector.ExtractClientIP(r)
			if !s.limiter.Allow(clientIP) {
				slog.WarnContext(r.Context(), "Rate limit exceeded",
					"client_ip", clientIP, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// flagSuspicious logs requests matching known probe patterns. They are
// served normally; this is visibility, not blocking.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"client_ip", s.detector.ExtractClientIP(r),
				"method", r.Method, "path", r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

// invalidateDerived drops all cached summary and transfer views. Called
// after every successful write.
func (s *Server) invalidateDerived() {
	s.summaryCache.Purge()
	s.transfersCache.Purge()
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
