package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// endpointEntry is one validated element of the "channels" array.
type endpointEntry struct {
	channel string
	value   float64
}

// endpointDocument is a validated v1_endpoint_json artifact.
type endpointDocument struct {
	entries  []endpointEntry
	metadata map[string]any
}

// validationError carries a user-facing message from the validation pass.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// ExtractEndpointJSON computes core_v1 features from a v1_endpoint_json
// artifact of the form
//
//	{"channels": [{"channel": "IL6", "value": 123.4}, ...],
//	 "metadata": {"instrument_id": "NEXT-001", "temperature_c": 23.5}}
//
// It never panics; unexpected failures are reported as "Extraction error: ...".
func ExtractEndpointJSON(content string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Sprintf("Extraction error: %v", r))
		}
	}()

	root, err := decodeEndpointJSON(content)
	if err != nil {
		return Failure(err.Error())
	}
	doc, err := validateEndpointDocument(root)
	if err != nil {
		return Failure(err.Error())
	}

	// Stable sort: duplicate channel names keep document order
	// and the later entry wins in the record.
	sort.SliceStable(doc.entries, func(i, j int) bool {
		return doc.entries[i].channel < doc.entries[j].channel
	})

	features := make(Features, len(doc.entries)+len(doc.metadata)+2)
	channels := make([]string, 0, len(doc.entries))
	for _, e := range doc.entries {
		channels = append(channels, e.channel)
		features.merge(endpointFeatures(e.channel, e.value))
	}
	features.merge(globalFeatures(features, channels))

	for key, v := range doc.metadata {
		switch v.(type) {
		case json.Number, string:
			features[MetadataKey(key)] = v
		}
	}
	return Succeeded(features)
}

// decodeEndpointJSON parses content into a generic document. Numbers are
// kept as json.Number so metadata passes through unmodified.
func decodeEndpointJSON(content string) (any, error) {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("JSON parsing error: %s", err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("Extraction error: %s", err.Error())
	}
	return root, nil
}

// validateEndpointDocument checks the document shape field by field and
// stops at the first problem.
func validateEndpointDocument(root any) (*endpointDocument, error) {
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, invalid("JSON root must be an object")
	}
	rawChannels, ok := obj["channels"]
	if !ok {
		return nil, invalid("Missing required field 'channels'")
	}
	list, ok := rawChannels.([]any)
	if !ok {
		return nil, invalid("Field 'channels' must be an array")
	}
	if len(list) == 0 {
		return nil, invalid("Field 'channels' must have at least one entry")
	}

	doc := &endpointDocument{entries: make([]endpointEntry, 0, len(list))}
	for i, item := range list {
		entry, err := validateEndpointEntry(i, item)
		if err != nil {
			return nil, err
		}
		doc.entries = append(doc.entries, entry)
	}

	if md, ok := obj["metadata"].(map[string]any); ok {
		doc.metadata = md
	}
	return doc, nil
}

func validateEndpointEntry(i int, item any) (endpointEntry, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return endpointEntry{}, invalid("Channel entry %d must be an object", i)
	}
	channel, ok := obj["channel"].(string)
	if !ok {
		return endpointEntry{}, invalid("Channel entry %d 'channel' must be a string", i)
	}
	num, ok := obj["value"].(json.Number)
	if !ok {
		return endpointEntry{}, invalid("Channel entry %d 'value' must be a number", i)
	}
	value, err := num.Float64()
	if err != nil {
		// Out of float64 range, e.g. 1e400.
		return endpointEntry{}, invalid("Channel entry %d 'value' must be a number", i)
	}
	return endpointEntry{channel: channel, value: value}, nil
}
