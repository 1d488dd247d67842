// Package httpapi serves published snapshots over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"healthtrend/internal/metric"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/render"
	"healthtrend/internal/version"
)

// SnapshotSource exposes the current snapshots.
type SnapshotSource interface {
	Snapshot(kind metric.Kind) (*pipeline.Snapshot, bool)
	Snapshots() []*pipeline.Snapshot
}

// Options tune the router.
type Options struct {
	AllowedOrigins []string
	ChartSize      render.Size
}

type handler struct {
	source SnapshotSource
	opts   Options
	logger zerolog.Logger
}

// NewRouter builds the read-only API:
//
//	GET /api/v1/snapshots
//	GET /api/v1/snapshots/{kind}
//	GET /api/v1/snapshots/{kind}/chart.png
//	GET /healthz
//	GET /metrics
func NewRouter(source SnapshotSource, opts Options, logger zerolog.Logger) http.Handler {
	h := &handler{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshots", h.listSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{kind}", h.getSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{kind}/chart.png", h.getChart).Methods(http.MethodGet)
	r.Use(h.logRequests)

	var out http.Handler = r
	if len(opts.AllowedOrigins) > 0 {
		out = cors.New(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet},
		}).Handler(out)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(panicLogger{h.logger}))(out)
}

type panicLogger struct {
	logger zerolog.Logger
}

func (p panicLogger) Println(v ...interface{}) {
	p.logger.Error().Msg(fmt.Sprint(v...))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"snapshots": len(h.source.Snapshots()),
		"version":   version.Version,
	})
}

func (h *handler) listSnapshots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": h.source.Snapshots()})
}

func (h *handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) getChart(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.WriteDailyPNG(w, snap, h.opts.ChartSize); err != nil {
		h.logger.Error().Err(err).Str("kind", string(snap.Kind)).Msg("failed to render chart")
	}
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (*pipeline.Snapshot, bool) {
	kind, err := metric.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	snap, ok := h.source.Snapshot(kind)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no snapshot published for %s", kind))
		return nil, false
	}
	return snap, true
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("component", "httpapi").Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return ctx.Err()
	}
}
