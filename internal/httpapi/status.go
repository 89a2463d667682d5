package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mpark1306/TempMate12/internal/controller"
	"github.com/mpark1306/TempMate12/internal/delivery"
	"github.com/mpark1306/TempMate12/internal/observability"
	"github.com/mpark1306/TempMate12/internal/store"
)

// FlushTrigger runs a manual delivery pass and applies the mode transition
// it implies. Implemented by the controller.
type FlushTrigger interface {
	Flush(ctx context.Context) delivery.Outcome
	Mode() controller.Mode
}

// StatusServer is the local status service raised while delivery is
// failing. It serves a status page and a manual flush trigger to LAN
// clients, and goes away again once delivery recovers.
type StatusServer struct {
	mu      sync.Mutex
	srv     *http.Server
	running bool

	addr    string
	ctrl    FlushTrigger
	store   *store.Store
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewStatusServer returns a stopped status server listening on addr once
// started. limiter may be nil to disable flush rate limiting.
func NewStatusServer(addr string, ctrl FlushTrigger, st *store.Store, limiter *rate.Limiter, logger *zap.Logger) *StatusServer {
	return &StatusServer{
		addr:    addr,
		ctrl:    ctrl,
		store:   st,
		logger:  logger,
		limiter: limiter,
	}
}

// Start binds the listener and begins serving. Idempotent: starting a
// running server is a no-op.
func (s *StatusServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(s.logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/", s.handleIndex).Methods("GET")
	router.Handle("/flush", RateLimitMiddleware(s.limiter)(http.HandlerFunc(s.handleFlush))).Methods("GET")

	// Listen synchronously so a bind failure surfaces to the caller.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}

	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // flush blocks for the whole delivery pass
	}
	s.srv = srv
	s.running = true

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server", zap.Error(err))
		}
	}()
	s.logger.Info("status server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down. The shutdown itself runs asynchronously so
// that the flush handler which triggered the fallback exit can finish
// writing its response; Shutdown waits for it. Idempotent.
func (s *StatusServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	srv := s.srv
	s.srv = nil
	s.running = false

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("status server shutdown", zap.Error(err))
		} else {
			s.logger.Info("status server stopped")
		}
	}()
	return nil
}

// Running reports whether the server is currently serving.
func (s *StatusServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *StatusServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>Fallback Mode</title></head><body>"+
		"<h1>Fallback Mode</h1>"+
		"<p>Unable to reach the collector server. Buffer size: %d</p>"+
		"<p>Please wait or try /flush.</p>"+
		"</body></html>", s.store.Len())
}

func (s *StatusServer) handleFlush(w http.ResponseWriter, r *http.Request) {
	out := s.ctrl.Flush(r.Context())
	observability.FlushRequestsTotal.WithLabelValues(out.String()).Inc()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch out {
	case delivery.Success:
		// The successful outcome has already driven the fallback exit; this
		// response rides out on the draining server.
		_, _ = w.Write([]byte("Flush succeeded, exiting fallback mode."))
	default:
		_, _ = w.Write([]byte("Flush failed, still in fallback mode."))
	}
}
