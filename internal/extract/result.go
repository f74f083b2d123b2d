// Package extract computes the core_v1 biomarker feature set from uploaded
// artifacts.
//
// Two schemas are supported: a long-format timeseries CSV (channel,t,y) and
// an endpoint JSON document listing one value per channel. Both produce a
// flat mapping of dotted keys:
//
//	channel.<name>.<feature>  per-channel features
//	global.<feature>          cross-channel features
//	metadata.<key>            scalar metadata (endpoint JSON only)
//
// Extraction is pure: no I/O, no shared state, no clock. Identical input
// always produces an identical Result, which is what lets stored feature
// records be overwritten safely when an artifact is re-processed.
package extract

import (
	"encoding/json"
	"sort"
)

// Schema identifiers for the two supported artifact formats.
const (
	SchemaTimeseriesCSV = "v1_timeseries_csv"
	SchemaEndpointJSON  = "v1_endpoint_json"
)

// Features is a flat dotted-key feature record. Values are float64, int,
// string, json.Number (metadata passthrough) or nil.
type Features map[string]any

// Number returns the value at key as a float64. The second return value is
// false when the key is missing, null or not numeric.
func (f Features) Number(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		x, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return x, true
	}
	return 0, false
}

// String returns the value at key if it holds a string.
func (f Features) String(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// Keys returns the feature keys in lexicographic order.
func (f Features) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// merge copies every entry of src into f, overwriting existing keys.
func (f Features) merge(src Features) {
	for k, v := range src {
		f[k] = v
	}
}

// Result is the outcome of one extraction. Either Success is true and
// Features holds the complete record, or Success is false and Error holds a
// single human-readable message. There is no partial success.
type Result struct {
	Success  bool     `json:"success"`
	Features Features `json:"features,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Failure builds a failed Result carrying msg.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Succeeded builds a successful Result around features.
func Succeeded(features Features) Result {
	return Result{Success: true, Features: features}
}

// NumFeatures returns the number of keys in a successful result.
func (r Result) NumFeatures() int {
	return len(r.Features)
}
