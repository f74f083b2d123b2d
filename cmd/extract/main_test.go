package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assay.report/internal/api"
	"github.com/banshee-data/assay.report/internal/blob"
	"github.com/banshee-data/assay.report/internal/testutil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_LocalTimeseries(t *testing.T) {
	path := writeFile(t, "run.csv", testutil.TimeseriesCSV)
	plot := filepath.Join(t.TempDir(), "run.png")

	code, out, errOut := runCLI(t, "", "-schema", "v1_timeseries_csv", "-plot", plot, path)
	require.Equal(t, 0, code, errOut)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, 40.0, res["features"].(map[string]any)["channel.IL6.auc"])

	png, err := os.ReadFile(plot)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestRun_StdinPretty(t *testing.T) {
	code, out, _ := runCLI(t, testutil.EndpointJSON, "-schema", "v1_endpoint_json", "-pretty", "-")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "\n  \"features\": {")
	assert.Contains(t, out, `"metadata.temperature_c": 23.5`)
}

func TestRun_ExtractionFailureExitsOne(t *testing.T) {
	path := writeFile(t, "bad.csv", "foo,bar\n1,2\n")
	code, out, _ := runCLI(t, "", "-schema", "v1_timeseries_csv", path)
	assert.Equal(t, exitFailure, code)
	assert.JSONEq(t, `{"success":false,"error":"Missing required columns: channel, t, y"}`, out)
}

func TestRun_Errors(t *testing.T) {
	csv := writeFile(t, "ok.csv", testutil.TimeseriesCSV)
	tests := []struct {
		name    string
		args    []string
		code    int
		wantErr string
	}{
		{"no schema", []string{csv}, exitUsage, "Usage: extract"},
		{"no file", []string{"-schema", "v1_timeseries_csv"}, exitUsage, "Usage: extract"},
		{"both remotes", []string{"-schema", "x", "-remote", "http://a", "-grpc", "b:1", csv}, exitUsage, "mutually exclusive"},
		{"unknown schema", []string{"-schema", "v9", csv}, exitFailure, "Unsupported schema version: v9"},
		{"missing file", []string{"-schema", "v1_timeseries_csv", filepath.Join(t.TempDir(), "nope.csv")}, exitFailure, "no such file"},
		{"plot of json", []string{"-schema", "v1_endpoint_json", "-plot", filepath.Join(t.TempDir(), "x.png"),
			writeFile(t, "e.json", testutil.EndpointJSON)}, exitFailure, "-plot needs a v1_timeseries_csv artifact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, "", tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestRun_InvalidUTF8(t *testing.T) {
	code, _, errOut := runCLI(t, "channel,t,y\nA,0,\xff\n", "-schema", "v1_timeseries_csv", "-")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "not valid UTF-8")
}

func TestRun_Remote(t *testing.T) {
	srv := api.NewServer(testutil.OpenTestDB(t), blob.NewMemoryStore(), api.Options{})
	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	path := writeFile(t, "run.csv", testutil.TimeseriesCSV)
	code, out, errOut := runCLI(t, "", "-schema", "v1_timeseries_csv", "-remote", ts.URL, path)
	require.Equal(t, 0, code, errOut)

	_, local, _ := runCLI(t, "", "-schema", "v1_timeseries_csv", path)
	assert.JSONEq(t, local, out)
}

func TestRun_Version(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "extract dev")
}
