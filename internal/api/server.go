// Package api serves the worker's HTTP surface: health, synchronous
// extraction, artifact upload, job submission and inspection, charts and
// the database debug routes.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/assay.report/internal/blob"
	"github.com/banshee-data/assay.report/internal/config"
	"github.com/banshee-data/assay.report/internal/db"
	"github.com/banshee-data/assay.report/internal/monitoring"
	"github.com/banshee-data/assay.report/internal/queue"
	"github.com/banshee-data/assay.report/internal/worker"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ServiceName is reported by /health.
const ServiceName = "assay-worker"

// Options configures a Server. Queue may be nil, in which case jobs can
// only be run through /internal/run-once.
type Options struct {
	Queue          queue.Queue
	MaxUploadBytes int64
	// Stats reports consumer counters on /health when set.
	Stats func() worker.Stats
}

type Server struct {
	db        *db.DB
	blobs     blob.Store
	queue     queue.Queue
	proc      *worker.Processor
	artifacts *db.ArtifactStore
	features  *db.SampleFeatureStore
	jobs      *db.JobStore
	maxUpload int64
	stats     func() worker.Stats
}

func NewServer(database *db.DB, blobs blob.Store, opts Options) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = config.DefaultMaxUploadBytes
	}
	return &Server{
		db:        database,
		blobs:     blobs,
		queue:     opts.Queue,
		proc:      worker.NewProcessor(database, blobs),
		artifacts: db.NewArtifactStore(database),
		features:  db.NewSampleFeatureStore(database),
		jobs:      db.NewJobStore(database),
		maxUpload: maxUpload,
		stats:     opts.Stats,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. The /debug/ admin routes are attached
// separately with AttachAdminRoutes since they only answer loopback and
// tailnet callers.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/extract", s.handleExtract)
	mux.HandleFunc("POST /v1/artifacts", s.handleUploadArtifact)
	mux.HandleFunc("GET /v1/artifacts/{id}", s.handleGetArtifact)
	mux.HandleFunc("POST /v1/artifacts/{id}/sample", s.handleAttachSample)
	mux.HandleFunc("GET /v1/artifacts/{id}/chart", s.handleArtifactChart)
	mux.HandleFunc("GET /v1/artifacts/{id}/plot.png", s.handleArtifactPlot)
	mux.HandleFunc("POST /v1/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /internal/run-once", s.handleRunOnce)
	mux.HandleFunc("GET /v1/samples/{id}/features", s.handleSampleFeatures)
	return mux
}

// AttachAdminRoutes mounts the database debug UI and backup route on mux.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) error {
	return s.db.AttachAdminRoutes(mux)
}
