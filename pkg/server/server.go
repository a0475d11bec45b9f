// Package server exposes the sync engine's HTTP control surface: a
// liveness probe, the synchronous full-preload trigger, and Prometheus
// metrics. Runtime faults inside a request are recovered here so one bad
// request cannot take the service down.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/piwi3910/cvmsync/pkg/cloud"
	"github.com/piwi3910/cvmsync/pkg/syncer"
	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

// Preloader runs one full inventory refresh. *syncer.Syncer implements it.
type Preloader interface {
	Preload(ctx context.Context, creds cloud.Credentials, defaultRegion string) (*syncer.Report, error)
}

// PreloadRequest is the body of POST /preload_all.
type PreloadRequest struct {
	SecretID      string `json:"secret_id" validate:"required"`
	SecretKey     string `json:"secret_key" validate:"required"`
	DefaultRegion string `json:"default_region"`
}

// PreloadResponse is the aggregate outcome returned to the controller.
type PreloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Config tunes the control surface behavior.
type Config struct {
	// DefaultRegion is used when a request omits one.
	DefaultRegion string

	// PreloadTimeout bounds one preload run; zero means no deadline.
	PreloadTimeout time.Duration
}

// Server is the HTTP control surface.
type Server struct {
	preloader Preloader
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	validate  *validator.Validate
	cfg       Config

	// running single-flights preload: two concurrent triggers would
	// interleave writes to the same scopes.
	running sync.Mutex
}

// New creates a Server driving the given preloader.
func New(preloader Preloader, logger *telemetry.Logger, metrics *telemetry.Metrics, cfg Config) *Server {
	return &Server{
		preloader: preloader,
		logger:    logger,
		metrics:   metrics,
		validate:  validator.New(),
		cfg:       cfg,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/preload_all", s.recovered(s.handlePreloadAll))
	if mh := s.metrics.Handler(); mh != nil {
		mux.Handle("/metrics", mh)
	}
	return mux
}

// recovered converts a panic anywhere in the handler chain into an
// internal-error response. The process must stay alive for later requests.
func (s *Server) recovered(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("panic in request handler: %v\n%s", rec, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, PreloadResponse{
					Success: false,
					Message: "internal server error",
				})
			}
		}()
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": "full"})
}

func (s *Server) handlePreloadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, PreloadResponse{
			Success: false,
			Message: "method not allowed",
		})
		return
	}

	var req PreloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.WithError(err).Warn("rejected malformed preload request")
		writeJSON(w, http.StatusBadRequest, PreloadResponse{
			Success: false,
			Message: "invalid json",
		})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, PreloadResponse{
			Success: false,
			Message: "secret_id and secret_key are required",
		})
		return
	}

	if req.DefaultRegion == "" {
		req.DefaultRegion = s.cfg.DefaultRegion
	}

	if !s.running.TryLock() {
		writeJSON(w, http.StatusConflict, PreloadResponse{
			Success: false,
			Message: "preload already running",
		})
		return
	}
	defer s.running.Unlock()

	ctx := r.Context()
	if s.cfg.PreloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PreloadTimeout)
		defer cancel()
	}

	s.logger.Infof("preload requested for region %s", req.DefaultRegion)

	report, err := s.preloader.Preload(ctx, cloud.Credentials{
		SecretID:  req.SecretID,
		SecretKey: req.SecretKey,
	}, req.DefaultRegion)
	if err != nil {
		writeJSON(w, http.StatusOK, PreloadResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, PreloadResponse{
		Success: true,
		Message: report.Summary(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
