package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FeatureSet names a versioned list of features the worker computes.
type FeatureSet struct {
	FeatureSetID string          `json:"feature_set_id"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	FeatureList  json.RawMessage `json:"feature_list"`
	CreatedAt    int64           `json:"created_at"`
}

// FeatureSetStore provides persistence for feature set definitions.
type FeatureSetStore struct {
	db *sql.DB
}

// NewFeatureSetStore creates a new FeatureSetStore.
func NewFeatureSetStore(db *DB) *FeatureSetStore {
	return &FeatureSetStore{db: db.DB}
}

// GetOrCreate returns the feature set called name, creating it with version
// and featureList when it does not exist yet. An existing row is returned
// unchanged.
func (s *FeatureSetStore) GetOrCreate(name, version string, featureList any) (*FeatureSet, error) {
	if fs, err := s.GetByName(name); err == nil {
		return fs, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	list, err := json.Marshal(featureList)
	if err != nil {
		return nil, fmt.Errorf("encode feature list: %w", err)
	}
	err = retryOnBusy(func() error {
		// Two workers may race to create the same set; the loser keeps the
		// winner's row.
		_, err := s.db.Exec(`
			INSERT INTO feature_sets (feature_set_id, name, version, feature_list, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), name, version, string(list), time.Now().UnixNano(),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert feature set: %w", err)
	}
	return s.GetByName(name)
}

// GetByName returns the feature set called name.
func (s *FeatureSetStore) GetByName(name string) (*FeatureSet, error) {
	row := s.db.QueryRow(`
		SELECT feature_set_id, name, version, feature_list, created_at
		FROM feature_sets
		WHERE name = ?`, name)

	var fs FeatureSet
	var list string
	if err := row.Scan(&fs.FeatureSetID, &fs.Name, &fs.Version, &list, &fs.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feature set %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("scan feature set: %w", err)
	}
	fs.FeatureList = json.RawMessage(list)
	return &fs, nil
}
