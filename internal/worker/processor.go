// Package worker runs feature extraction jobs: it loads an artifact, runs
// the matching extractor and stores the feature record.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/banshee-data/assay.report/internal/blob"
	"github.com/banshee-data/assay.report/internal/db"
	"github.com/banshee-data/assay.report/internal/extract"
	"github.com/banshee-data/assay.report/internal/monitoring"
)

// JobTypeExtractFeatures is the only job type the worker handles.
const JobTypeExtractFeatures = "extract_features"

// ErrUnsupportedSchema matches errors for artifacts whose schema version has
// no registered extractor.
var ErrUnsupportedSchema = errors.New("unsupported schema version")

type unsupportedSchemaError struct {
	schema string
}

func (e *unsupportedSchemaError) Error() string {
	return fmt.Sprintf("Unsupported schema version: %s. Supported versions: %s",
		e.schema, strings.Join(extract.SchemaVersions(), ", "))
}

func (e *unsupportedSchemaError) Is(target error) bool {
	return target == ErrUnsupportedSchema
}

// NewUnsupportedSchemaError returns the error reported for schema, listing
// the supported versions.
func NewUnsupportedSchemaError(schema string) error {
	return &unsupportedSchemaError{schema: schema}
}

// Message is a job as carried on the queue.
type Message struct {
	JobID      string `json:"job_id"`
	Type       string `json:"type"`
	ArtifactID string `json:"artifact_id"`
	FeatureSet string `json:"feature_set,omitempty"`
}

// Output is stored on a succeeded job.
type Output struct {
	SampleID        string `json:"sample_id"`
	FeatureSet      string `json:"feature_set"`
	NumFeatures     int    `json:"num_features"`
	FeatureRecordID string `json:"feature_record_id"`
}

// Processor executes extraction jobs against the stores.
type Processor struct {
	artifacts   *db.ArtifactStore
	featureSets *db.FeatureSetStore
	features    *db.SampleFeatureStore
	jobs        *db.JobStore
	blobs       blob.Store
}

// NewProcessor wires a Processor to database and blobs.
func NewProcessor(database *db.DB, blobs blob.Store) *Processor {
	return &Processor{
		artifacts:   db.NewArtifactStore(database),
		featureSets: db.NewFeatureSetStore(database),
		features:    db.NewSampleFeatureStore(database),
		jobs:        db.NewJobStore(database),
		blobs:       blobs,
	}
}

// NewJob records a queued extraction job for artifactID and returns the
// message to hand to a queue or to Process.
func (p *Processor) NewJob(artifactID, featureSet string) (Message, error) {
	if featureSet == "" {
		featureSet = extract.FeatureSetName
	}
	msg := Message{Type: JobTypeExtractFeatures, ArtifactID: artifactID, FeatureSet: featureSet}
	input, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encode job input: %w", err)
	}
	job := &db.Job{Type: msg.Type, Input: input}
	if err := p.jobs.Create(job); err != nil {
		return Message{}, err
	}
	msg.JobID = job.JobID
	return msg, nil
}

// Process runs one job to completion and records the outcome on its job
// row. Messages of an unknown type are logged and skipped. The returned
// error is the job failure, already persisted; there are no retries.
func (p *Processor) Process(ctx context.Context, msg Message) error {
	if msg.Type != JobTypeExtractFeatures {
		monitoring.Logf("worker: skipping job %s of unknown type %q", msg.JobID, msg.Type)
		return nil
	}
	if err := p.markRunning(msg); err != nil {
		return err
	}

	monitoring.Debugf("worker: processing job %s for artifact %s", msg.JobID, msg.ArtifactID)
	out, err := p.extractFeatures(ctx, msg)
	if err != nil {
		monitoring.Logf("worker: job %s failed: %v", msg.JobID, err)
		if markErr := p.jobs.MarkFailed(msg.JobID, err.Error()); markErr != nil {
			return fmt.Errorf("%w (and recording the failure: %v)", err, markErr)
		}
		return err
	}
	if err := p.jobs.MarkSucceeded(msg.JobID, out); err != nil {
		return err
	}
	monitoring.Logf("worker: job %s stored %d features for sample %s", msg.JobID, out.NumFeatures, out.SampleID)
	return nil
}

// markRunning moves the job to running. Jobs enqueued by another producer
// have no row yet; they are recorded on first sight.
func (p *Processor) markRunning(msg Message) error {
	if msg.JobID == "" {
		return fmt.Errorf("job message has no job_id")
	}
	err := p.jobs.MarkRunning(msg.JobID)
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}
	input, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode job input: %w", err)
	}
	return p.jobs.Create(&db.Job{JobID: msg.JobID, Type: msg.Type, Status: db.JobRunning, Input: input})
}

func (p *Processor) extractFeatures(ctx context.Context, msg Message) (*Output, error) {
	featureSetName := msg.FeatureSet
	if featureSetName == "" {
		featureSetName = extract.FeatureSetName
	}
	if featureSetName != extract.FeatureSetName {
		return nil, fmt.Errorf("unknown feature set %q", featureSetName)
	}

	artifact, err := p.artifacts.Get(msg.ArtifactID)
	if err != nil {
		return nil, err
	}
	if artifact.SampleID == nil || *artifact.SampleID == "" {
		return nil, fmt.Errorf("artifact %s is not attached to a sample", artifact.ArtifactID)
	}
	sampleID := *artifact.SampleID

	extractor, ok := extract.ForSchema(artifact.SchemaVersion)
	if !ok {
		return nil, NewUnsupportedSchemaError(artifact.SchemaVersion)
	}

	featureSet, err := p.featureSets.GetOrCreate(extract.FeatureSetName, extract.FeatureSetVersion, extract.CoreFeatureList())
	if err != nil {
		return nil, err
	}

	content, err := p.blobs.Get(ctx, artifact.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download artifact %s: %w", artifact.ArtifactID, err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("artifact %s is not valid UTF-8 text", artifact.ArtifactID)
	}

	result := extractor.Extract(string(content))
	if !result.Success {
		return nil, fmt.Errorf("Feature extraction failed: %s", result.Error)
	}

	encoded, err := json.Marshal(result.Features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	recordID, err := p.features.Upsert(&db.SampleFeatures{
		SampleID:     sampleID,
		FeatureSetID: featureSet.FeatureSetID,
		ArtifactID:   artifact.ArtifactID,
		Features:     encoded,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		SampleID:        sampleID,
		FeatureSet:      featureSetName,
		NumFeatures:     result.NumFeatures(),
		FeatureRecordID: recordID,
	}, nil
}
