package db

import (
	"path/filepath"
	"testing"
)

// setupTestDB creates a migrated database in a per-test temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// insertTestArtifact stores an artifact row attached to sampleID.
func insertTestArtifact(t *testing.T, db *DB, sampleID string) *Artifact {
	t.Helper()
	a := &Artifact{
		SampleID:      &sampleID,
		StorageKey:    "samples/" + sampleID + "/" + t.Name() + ".csv",
		FileName:      "run.csv",
		SchemaVersion: "v1_timeseries_csv",
		SHA256:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	if err := NewArtifactStore(db).Insert(a); err != nil {
		t.Fatalf("Insert artifact failed: %v", err)
	}
	return a
}
