package extract

import "sort"

// Feature set implemented by this package.
const (
	FeatureSetName    = "core_v1"
	FeatureSetVersion = "1.0.0"
)

// FeatureList describes the feature names of a feature set, grouped by the
// artifact kind that produces them. It is stored alongside the feature set
// so downstream consumers can discover the schema.
type FeatureList struct {
	Timeseries []string `json:"timeseries"`
	Endpoint   []string `json:"endpoint"`
	Global     []string `json:"global"`
}

// CoreFeatureList returns the feature list of core_v1.
func CoreFeatureList() FeatureList {
	return FeatureList{
		Timeseries: append([]string(nil), TimeseriesFeatureNames...),
		Endpoint:   []string{FeatureEndpointValue},
		Global:     []string{FeatureNumChannels, FeatureSignalQualityFlag},
	}
}

// Extractor turns decoded artifact content of one schema into a Result.
type Extractor interface {
	SchemaVersion() string
	Extract(content string) Result
}

type funcExtractor struct {
	schema string
	fn     func(string) Result
}

func (e funcExtractor) SchemaVersion() string          { return e.schema }
func (e funcExtractor) Extract(content string) Result { return e.fn(content) }

var extractors = map[string]Extractor{
	SchemaTimeseriesCSV: funcExtractor{schema: SchemaTimeseriesCSV, fn: ExtractTimeseriesCSV},
	SchemaEndpointJSON:  funcExtractor{schema: SchemaEndpointJSON, fn: ExtractEndpointJSON},
}

// ForSchema returns the extractor registered for a schema id. Callers must
// reject unknown ids before handing content to the engine.
func ForSchema(schema string) (Extractor, bool) {
	e, ok := extractors[schema]
	return e, ok
}

// SchemaVersions returns the supported schema ids, sorted.
func SchemaVersions() []string {
	out := make([]string, 0, len(extractors))
	for s := range extractors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
