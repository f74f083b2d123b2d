package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/banshee-data/assay.report/internal/blob"
	"github.com/banshee-data/assay.report/internal/chart"
	"github.com/banshee-data/assay.report/internal/db"
	"github.com/banshee-data/assay.report/internal/extract"
	"github.com/banshee-data/assay.report/internal/httputil"
	"github.com/banshee-data/assay.report/internal/monitoring"
	"github.com/banshee-data/assay.report/internal/security"
	"github.com/banshee-data/assay.report/internal/version"
	"github.com/banshee-data/assay.report/internal/worker"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status       string          `json:"status"`
	Service      string          `json:"service"`
	Version      string          `json:"version"`
	Capabilities map[string]bool `json:"capabilities"`
	Config       map[string]bool `json:"config"`
	Schemas      []string        `json:"schemas"`
	FeatureSet   string          `json:"feature_set"`
	Consumer     *worker.Stats   `json:"consumer,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Service: ServiceName,
		Version: version.Version,
		Capabilities: map[string]bool{
			"feature_extraction": true,
		},
		Config: map[string]bool{
			"redis_configured":          s.queue != nil,
			"database_configured":       s.db != nil,
			"artifact_store_configured": s.blobs != nil,
		},
		Schemas:    extract.SchemaVersions(),
		FeatureSet: extract.FeatureSetName,
	}
	if s.stats != nil {
		st := s.stats()
		resp.Consumer = &st
	}
	httputil.WriteJSONOK(w, resp)
}

// handleExtract runs the engine on the request body. Extraction failures
// are a 200 with success=false; only an unusable request is a 4xx.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	if schema == "" {
		httputil.BadRequest(w, "missing 'schema' query parameter")
		return
	}
	extractor, ok := extract.ForSchema(schema)
	if !ok {
		httputil.BadRequest(w, worker.NewUnsupportedSchemaError(schema).Error())
		return
	}
	body, err := httputil.ReadBody(w, r, s.maxUpload)
	if err != nil {
		httputil.WriteBodyError(w, err)
		return
	}
	if !utf8.Valid(body) {
		httputil.BadRequest(w, "request body is not valid UTF-8 text")
		return
	}
	httputil.WriteJSONOK(w, extractor.Extract(string(body)))
}

func (s *Server) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	schema := strings.TrimSpace(q.Get("schema"))
	if schema == "" {
		httputil.BadRequest(w, "missing 'schema' query parameter")
		return
	}
	sampleID := strings.TrimSpace(q.Get("sample_id"))
	if sampleID != "" && security.SanitizeFilename(sampleID) != sampleID {
		httputil.BadRequest(w, "sample_id may only contain letters, digits, '.', '_' and '-'")
		return
	}
	fileName := q.Get("file_name")
	if fileName == "" {
		fileName = "artifact"
	}

	body, err := httputil.ReadBody(w, r, s.maxUpload)
	if err != nil {
		httputil.WriteBodyError(w, err)
		return
	}
	if len(body) == 0 {
		httputil.BadRequest(w, "empty artifact body")
		return
	}

	sum := sha256.Sum256(body)
	a := &db.Artifact{
		ArtifactID:    uuid.New().String(),
		FileName:      fileName,
		SchemaVersion: schema,
		SHA256:        hex.EncodeToString(sum[:]),
		SizeBytes:     int64(len(body)),
	}
	name := a.ArtifactID + "-" + security.SanitizeFilename(fileName)
	if sampleID != "" {
		a.SampleID = &sampleID
		a.StorageKey = "samples/" + sampleID + "/" + name
	} else {
		a.StorageKey = "unattached/" + name
	}

	if err := s.blobs.Put(r.Context(), a.StorageKey, body); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to store artifact: %v", err))
		return
	}
	if err := s.artifacts.Insert(a); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to record artifact: %v", err))
		return
	}
	monitoring.Logf("api: stored artifact %s (%s, %d bytes)", a.ArtifactID, a.SchemaVersion, a.SizeBytes)
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupArtifact(w, r.PathValue("id"))
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, a)
}

type attachRequest struct {
	SampleID string `json:"sample_id"`
}

func (s *Server) handleAttachSample(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.SampleID == "" {
		httputil.BadRequest(w, "missing sample_id")
		return
	}
	id := r.PathValue("id")
	if err := s.artifacts.AttachSample(id, req.SampleID); err != nil {
		s.writeStoreError(w, err, "Artifact not found")
		return
	}
	a, ok := s.lookupArtifact(w, id)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, a)
}

type jobRequest struct {
	JobID      string `json:"job_id"`
	Type       string `json:"type"`
	ArtifactID string `json:"artifact_id"`
	FeatureSet string `json:"feature_set"`
}

// handleSubmitJob records a queued job and pushes it onto the queue.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		httputil.ServiceUnavailable(w, "job queue is not configured; use /internal/run-once")
		return
	}
	var req jobRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.ArtifactID == "" {
		httputil.BadRequest(w, "missing artifact_id")
		return
	}
	if _, ok := s.lookupArtifact(w, req.ArtifactID); !ok {
		return
	}

	msg, err := s.proc.NewJob(req.ArtifactID, req.FeatureSet)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create job: %v", err))
		return
	}
	raw, err := json.Marshal(msg)
	if err == nil {
		err = s.queue.Push(r.Context(), raw)
	}
	if err != nil {
		if markErr := s.jobs.MarkFailed(msg.JobID, "enqueue failed: "+err.Error()); markErr != nil {
			monitoring.Logf("api: recording enqueue failure of job %s: %v", msg.JobID, markErr)
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to enqueue job: %v", err))
		return
	}

	job, err := s.jobs.Get(msg.JobID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, "Job not found")
		return
	}
	httputil.WriteJSONOK(w, job)
}

// handleRunOnce processes one job synchronously, bypassing the queue. The
// job outcome, success or failure, is reported on the returned job.
func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = worker.JobTypeExtractFeatures
	}
	if req.FeatureSet == "" {
		req.FeatureSet = extract.FeatureSetName
	}

	msg := worker.Message{JobID: req.JobID, Type: req.Type, ArtifactID: req.ArtifactID, FeatureSet: req.FeatureSet}
	if msg.JobID == "" && msg.Type == worker.JobTypeExtractFeatures {
		created, err := s.proc.NewJob(req.ArtifactID, req.FeatureSet)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to create job: %v", err))
			return
		}
		msg = created
	}
	if err := s.proc.Process(r.Context(), msg); err != nil {
		monitoring.Debugf("api: run-once job %s: %v", msg.JobID, err)
	}

	var job *db.Job
	if msg.JobID != "" {
		found, err := s.jobs.Get(msg.JobID)
		switch {
		case err == nil:
			job = found
		case !errors.Is(err, db.ErrNotFound):
			httputil.InternalServerError(w, err.Error())
			return
		}
	}
	httputil.WriteJSONOK(w, map[string]any{"success": true, "job": job})
}

func (s *Server) handleSampleFeatures(w http.ResponseWriter, r *http.Request) {
	featureSet := r.URL.Query().Get("feature_set")
	if featureSet == "" {
		featureSet = extract.FeatureSetName
	}
	rec, err := s.features.GetByFeatureSetName(r.PathValue("id"), featureSet)
	if err != nil {
		s.writeStoreError(w, err, "No features for sample")
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) handleArtifactChart(w http.ResponseWriter, r *http.Request) {
	a, series, ok := s.loadSeries(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderHTML(&buf, chartTitle(a), series); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleArtifactPlot(w http.ResponseWriter, r *http.Request) {
	a, series, ok := s.loadSeries(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, chartTitle(a), series); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func chartTitle(a *db.Artifact) string {
	if a.SampleID != nil {
		return fmt.Sprintf("%s (sample %s)", a.FileName, *a.SampleID)
	}
	return a.FileName
}

// loadSeries fetches a timeseries artifact and parses it, writing the error
// response itself when that fails.
func (s *Server) loadSeries(w http.ResponseWriter, r *http.Request) (*db.Artifact, *extract.ChannelSeries, bool) {
	a, ok := s.lookupArtifact(w, r.PathValue("id"))
	if !ok {
		return nil, nil, false
	}
	if a.SchemaVersion != extract.SchemaTimeseriesCSV {
		httputil.BadRequest(w, fmt.Sprintf("charts are only available for %s artifacts", extract.SchemaTimeseriesCSV))
		return nil, nil, false
	}
	content, err := s.blobs.Get(r.Context(), a.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			httputil.NotFound(w, "Artifact content not found")
			return nil, nil, false
		}
		httputil.InternalServerError(w, err.Error())
		return nil, nil, false
	}
	series, err := chart.ParseSeries(string(content))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, nil, false
	}
	return a, series, true
}

func (s *Server) lookupArtifact(w http.ResponseWriter, id string) (*db.Artifact, bool) {
	a, err := s.artifacts.Get(id)
	if err != nil {
		s.writeStoreError(w, err, "Artifact not found")
		return nil, false
	}
	return a, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, notFound)
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := httputil.ReadBody(w, r, s.maxUpload)
	if err != nil {
		httputil.WriteBodyError(w, err)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}
