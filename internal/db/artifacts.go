package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is an uploaded raw data file. The content lives in the blob
// store under StorageKey; this row records where and what it is.
type Artifact struct {
	ArtifactID    string  `json:"artifact_id"`
	SampleID      *string `json:"sample_id,omitempty"`
	StorageKey    string  `json:"storage_key"`
	FileName      string  `json:"file_name"`
	SchemaVersion string  `json:"schema_version"`
	SHA256        string  `json:"sha256"`
	SizeBytes     int64   `json:"size_bytes"`
	CreatedAt     int64   `json:"created_at"`
}

// ArtifactStore provides persistence for artifact metadata.
type ArtifactStore struct {
	db *sql.DB
}

// NewArtifactStore creates a new ArtifactStore.
func NewArtifactStore(db *DB) *ArtifactStore {
	return &ArtifactStore{db: db.DB}
}

// Insert persists a new artifact. If ArtifactID is empty, a UUID is generated.
func (s *ArtifactStore) Insert(a *Artifact) error {
	if a.ArtifactID == "" {
		a.ArtifactID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO artifacts (
				artifact_id, sample_id, storage_key, file_name,
				schema_version, sha256, size_bytes, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ArtifactID, a.SampleID, a.StorageKey, a.FileName,
			a.SchemaVersion, a.SHA256, a.SizeBytes, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		return nil
	})
}

// Get returns a single artifact by ID.
func (s *ArtifactStore) Get(artifactID string) (*Artifact, error) {
	row := s.db.QueryRow(`
		SELECT artifact_id, sample_id, storage_key, file_name,
		       schema_version, sha256, size_bytes, created_at
		FROM artifacts
		WHERE artifact_id = ?`, artifactID)

	var a Artifact
	var sampleID sql.NullString
	err := row.Scan(&a.ArtifactID, &sampleID, &a.StorageKey, &a.FileName,
		&a.SchemaVersion, &a.SHA256, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	if sampleID.Valid {
		a.SampleID = &sampleID.String
	}
	return &a, nil
}

// AttachSample links an artifact to a sample.
func (s *ArtifactStore) AttachSample(artifactID, sampleID string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`UPDATE artifacts SET sample_id = ? WHERE artifact_id = ?`, sampleID, artifactID)
		if err != nil {
			return fmt.Errorf("attach sample: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
		}
		return nil
	})
}
