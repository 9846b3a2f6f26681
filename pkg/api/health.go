package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/scheduler"
	"github.com/cuemby/cirrus/pkg/types"
)

// CycleSource exposes the most recent scheduling cycle
type CycleSource interface {
	LastCycle() *scheduler.CycleResult
}

// TableSource exposes the current pricing table
type TableSource interface {
	Snapshot() *pricing.Table
}

// HTTPServer serves health, readiness, metrics and read-only views of the
// last plan and the pricing table
type HTTPServer struct {
	cycles  CycleSource
	pricing TableSource
	logger  zerolog.Logger
	mux     *http.ServeMux

	mu     sync.Mutex
	server *http.Server
}

// NewHTTPServer creates the HTTP server. cycles and pricing may be nil, in
// which case their endpoints answer 503.
func NewHTTPServer(cycles CycleSource, pricing TableSource, logger zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	hs := &HTTPServer{
		cycles:  cycles,
		pricing: pricing,
		logger:  logger,
		mux:     mux,
	}

	mux.Handle("/health", getOnly(metrics.HealthHandler()))
	mux.Handle("/ready", getOnly(metrics.ReadyHandler()))
	mux.Handle("/livez", getOnly(metrics.LivenessHandler()))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/v1/plan", getOnly(http.HandlerFunc(hs.planHandler)))
	mux.Handle("/v1/pricing", getOnly(http.HandlerFunc(hs.pricingHandler)))

	return hs
}

// Start serves on addr until Shutdown is called
func (hs *HTTPServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	hs.mu.Lock()
	hs.server = server
	hs.mu.Unlock()

	hs.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests
func (hs *HTTPServer) Shutdown(ctx context.Context) error {
	hs.mu.Lock()
	server := hs.server
	hs.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Handler returns the instrumented mux
func (hs *HTTPServer) Handler() http.Handler {
	return countRequests(hs.mux)
}

// PricingResponse is the body of /v1/pricing
type PricingResponse struct {
	BuiltAt      time.Time              `json:"built_at"`
	Count        int                    `json:"count"`
	Providers    map[types.Provider]int `json:"providers"`
	MachineTypes []types.MachineType    `json:"machine_types"`
}

func (hs *HTTPServer) planHandler(w http.ResponseWriter, r *http.Request) {
	if hs.cycles == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	last := hs.cycles.LastCycle()
	if last == nil {
		writeError(w, http.StatusNotFound, "no scheduling cycle has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (hs *HTTPServer) pricingHandler(w http.ResponseWriter, r *http.Request) {
	if hs.pricing == nil {
		writeError(w, http.StatusServiceUnavailable, "pricing not configured")
		return
	}
	table := hs.pricing.Snapshot()
	mts := table.MachineTypes()
	if provider := r.URL.Query().Get("provider"); provider != "" {
		filtered := mts[:0]
		for _, mt := range mts {
			if string(mt.Provider) == provider {
				filtered = append(filtered, mt)
			}
		}
		mts = filtered
	}
	writeJSON(w, http.StatusOK, PricingResponse{
		BuiltAt:      table.BuiltAt(),
		Count:        len(mts),
		Providers:    table.CountByProvider(),
		MachineTypes: mts,
	})
}

func getOnly(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// countRequests records every request in cirrus_api_requests_total.
// Unmatched paths are counted as "other".
func countRequests(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		path := "other"
		if _, pattern := mux.Handler(r); pattern != "" {
			path = pattern
		}
		metrics.APIRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
	})
}
