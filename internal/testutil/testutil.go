// Package testutil provides shared test fixtures for packages that sit on
// top of the database and blob store.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/banshee-data/assay.report/internal/blob"
	"github.com/banshee-data/assay.report/internal/db"
)

// TimeseriesCSV is a two-channel v1_timeseries_csv artifact.
const TimeseriesCSV = `channel,t,y
IL6,0,1
IL6,1,1
IL6,2,2
IL6,3,4
IL6,4,8
IL6,5,10
IL6,6,8
IL6,7,4
IL6,8,2
IL6,9,1
CRP,0,3
CRP,1,3
CRP,2,5
CRP,3,9
CRP,4,12
`

// EndpointJSON is a v1_endpoint_json artifact with metadata.
const EndpointJSON = `{"channels":[{"channel":"CRP","value":5.0},{"channel":"IL6","value":3.0}],` +
	`"metadata":{"instrument_id":"NEXT-001","temperature_c":23.5,"flags":[1,2]}}`

// OpenTestDB creates a migrated database in a per-test temp directory.
func OpenTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "assay.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// SeedArtifact stores content in blobs and records the artifact row. An
// empty sampleID leaves the artifact unattached.
func SeedArtifact(t *testing.T, database *db.DB, blobs blob.Store, sampleID, schema, content string) *db.Artifact {
	t.Helper()
	sum := sha256.Sum256([]byte(content))
	a := &db.Artifact{
		StorageKey:    "samples/" + sampleID + "/" + hex.EncodeToString(sum[:8]) + "-" + schema,
		FileName:      "fixture",
		SchemaVersion: schema,
		SHA256:        hex.EncodeToString(sum[:]),
		SizeBytes:     int64(len(content)),
	}
	if sampleID != "" {
		a.SampleID = &sampleID
	} else {
		a.StorageKey = "unattached/" + hex.EncodeToString(sum[:8]) + "-" + schema
	}
	if err := blobs.Put(context.Background(), a.StorageKey, []byte(content)); err != nil {
		t.Fatalf("store fixture blob: %v", err)
	}
	if err := db.NewArtifactStore(database).Insert(a); err != nil {
		t.Fatalf("insert fixture artifact: %v", err)
	}
	return a
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// DecodeJSON decodes r into v, failing the test on error.
func DecodeJSON(t *testing.T, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v", err)
	}
}
