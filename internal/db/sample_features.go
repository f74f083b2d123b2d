package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SampleFeatures is the stored feature record of one sample under one
// feature set.
type SampleFeatures struct {
	RecordID     string          `json:"record_id"`
	SampleID     string          `json:"sample_id"`
	FeatureSetID string          `json:"feature_set_id"`
	ArtifactID   string          `json:"artifact_id"`
	Features     json.RawMessage `json:"features"`
	ComputedAt   int64           `json:"computed_at"`
}

// SampleFeatureStore provides persistence for computed feature records.
type SampleFeatureStore struct {
	db *sql.DB
}

// NewSampleFeatureStore creates a new SampleFeatureStore.
func NewSampleFeatureStore(db *DB) *SampleFeatureStore {
	return &SampleFeatureStore{db: db.DB}
}

// Upsert stores rec as the feature record of (SampleID, FeatureSetID). An
// existing record is overwritten in place and keeps its RecordID, which is
// written back to rec and returned.
func (s *SampleFeatureStore) Upsert(rec *SampleFeatures) (string, error) {
	if rec.ComputedAt == 0 {
		rec.ComputedAt = time.Now().UnixNano()
	}
	if len(rec.Features) == 0 {
		return "", fmt.Errorf("upsert sample features: empty feature record")
	}
	candidate := uuid.New().String()

	var recordID string
	err := retryOnBusy(func() error {
		return s.db.QueryRow(`
			INSERT INTO sample_features (
				record_id, sample_id, feature_set_id, artifact_id, features, computed_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (sample_id, feature_set_id) DO UPDATE SET
				artifact_id = excluded.artifact_id,
				features    = excluded.features,
				computed_at = excluded.computed_at
			RETURNING record_id`,
			candidate, rec.SampleID, rec.FeatureSetID, rec.ArtifactID,
			string(rec.Features), rec.ComputedAt,
		).Scan(&recordID)
	})
	if err != nil {
		return "", fmt.Errorf("upsert sample features: %w", err)
	}
	rec.RecordID = recordID
	return recordID, nil
}

// Get returns the feature record of sampleID under featureSetID.
func (s *SampleFeatureStore) Get(sampleID, featureSetID string) (*SampleFeatures, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT record_id, sample_id, feature_set_id, artifact_id, features, computed_at
		FROM sample_features
		WHERE sample_id = ? AND feature_set_id = ?`, sampleID, featureSetID),
		sampleID)
}

// GetByFeatureSetName looks the record up by feature set name instead of id.
func (s *SampleFeatureStore) GetByFeatureSetName(sampleID, featureSetName string) (*SampleFeatures, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT sf.record_id, sf.sample_id, sf.feature_set_id, sf.artifact_id, sf.features, sf.computed_at
		FROM sample_features sf
		JOIN feature_sets fs ON fs.feature_set_id = sf.feature_set_id
		WHERE sf.sample_id = ? AND fs.name = ?`, sampleID, featureSetName),
		sampleID)
}

// Count returns the number of stored records for sampleID.
func (s *SampleFeatureStore) Count(sampleID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sample_features WHERE sample_id = ?`, sampleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sample features: %w", err)
	}
	return n, nil
}

func (s *SampleFeatureStore) scanOne(row *sql.Row, sampleID string) (*SampleFeatures, error) {
	var rec SampleFeatures
	var features string
	err := row.Scan(&rec.RecordID, &rec.SampleID, &rec.FeatureSetID, &rec.ArtifactID, &features, &rec.ComputedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("features for sample %s: %w", sampleID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan sample features: %w", err)
	}
	rec.Features = json.RawMessage(features)
	return &rec, nil
}
