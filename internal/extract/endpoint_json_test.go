package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEndpointJSON_HappyPath(t *testing.T) {
	res := ExtractEndpointJSON(`{"channels":[{"channel":"CRP","value":5.0},{"channel":"IL6","value":3.0}]}`)
	require.True(t, res.Success, res.Error)

	want := Features{
		"channel.CRP.endpoint_value":  5.0,
		"channel.IL6.endpoint_value":  3.0,
		"global.num_channels":         2,
		"global.signal_quality_flag": QualityOK,
	}
	if diff := cmp.Diff(want, res.Features); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractEndpointJSON_MetadataPassthrough(t *testing.T) {
	res := ExtractEndpointJSON(`{
		"channels": [{"channel": "IL6", "value": 1}],
		"metadata": {
			"instrument_id": "NEXT-001",
			"temperature_c": 23.5,
			"flags": [1, 2],
			"calibrated": true,
			"operator": null,
			"extra": {"a": 1}
		}
	}`)
	require.True(t, res.Success, res.Error)

	id, ok := res.Features.String("metadata.instrument_id")
	require.True(t, ok)
	assert.Equal(t, "NEXT-001", id)

	// Numbers are carried verbatim, not re-formatted through float64.
	assert.Equal(t, json.Number("23.5"), res.Features["metadata.temperature_c"])
	temp, ok := res.Features.Number("metadata.temperature_c")
	require.True(t, ok)
	assert.Equal(t, 23.5, temp)

	for _, skipped := range []string{"flags", "calibrated", "operator", "extra"} {
		assert.NotContains(t, res.Features, MetadataKey(skipped))
	}
}

func TestExtractEndpointJSON_MetadataNotAnObjectIsIgnored(t *testing.T) {
	res := ExtractEndpointJSON(`{"channels":[{"channel":"A","value":1}],"metadata":"n/a"}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, res.NumFeatures())
}

func TestExtractEndpointJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"null root", `null`, "JSON root must be an object"},
		{"array root", `[{"channel":"A","value":1}]`, "JSON root must be an object"},
		{"string root", `"channels"`, "JSON root must be an object"},
		{"missing channels", `{"metadata":{}}`, "Missing required field 'channels'"},
		{"channels object", `{"channels":{"A":1}}`, "Field 'channels' must be an array"},
		{"channels null", `{"channels":null}`, "Field 'channels' must be an array"},
		{"channels empty", `{"channels":[]}`, "Field 'channels' must have at least one entry"},
		{"entry not object", `{"channels":[1]}`, "Channel entry 0 must be an object"},
		{"entry null", `{"channels":[null]}`, "Channel entry 0 must be an object"},
		{"channel not string", `{"channels":[{"channel":7,"value":1}]}`, "Channel entry 0 'channel' must be a string"},
		{"channel missing", `{"channels":[{"value":1}]}`, "Channel entry 0 'channel' must be a string"},
		{"value missing", `{"channels":[{"channel":"X"}]}`, "Channel entry 0 'value' must be a number"},
		{"value string", `{"channels":[{"channel":"X","value":"5"}]}`, "Channel entry 0 'value' must be a number"},
		{"value null", `{"channels":[{"channel":"X","value":null}]}`, "Channel entry 0 'value' must be a number"},
		{"value out of range", `{"channels":[{"channel":"X","value":1e400}]}`, "Channel entry 0 'value' must be a number"},
		{"second entry", `{"channels":[{"channel":"A","value":1},{"channel":"B"}]}`, "Channel entry 1 'value' must be a number"},
		{"fail fast", `{"channels":[{"channel":"A","value":1},[],{"value":2}]}`, "Channel entry 1 must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ExtractEndpointJSON(tt.content)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.Nil(t, res.Features)
		})
	}
}

func TestExtractEndpointJSON_SyntaxError(t *testing.T) {
	for _, content := range []string{``, `{`, `{"channels": [}`, `{} trailing`} {
		res := ExtractEndpointJSON(content)
		assert.False(t, res.Success, content)
		assert.True(t, strings.HasPrefix(res.Error, "JSON parsing error: "), res.Error)
	}
}

func TestExtractEndpointJSON_ChannelOrderInvariance(t *testing.T) {
	a := ExtractEndpointJSON(`{"channels":[{"channel":"CRP","value":5},{"channel":"IL6","value":3},{"channel":"TNF","value":0.25}]}`)
	b := ExtractEndpointJSON(`{"channels":[{"channel":"TNF","value":0.25},{"channel":"CRP","value":5},{"channel":"IL6","value":3}]}`)
	require.True(t, a.Success, a.Error)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("channel order changed the result:\n%s", diff)
	}
}

func TestExtractEndpointJSON_DuplicateChannelLaterEntryWins(t *testing.T) {
	res := ExtractEndpointJSON(`{"channels":[{"channel":"A","value":1},{"channel":"B","value":9},{"channel":"A","value":2}]}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2.0, res.Features["channel.A.endpoint_value"])
	// Every entry counts as a channel, duplicates included.
	assert.Equal(t, 3, res.Features["global.num_channels"])
}

func TestExtractEndpointJSON_AlwaysOKQuality(t *testing.T) {
	res := ExtractEndpointJSON(`{"channels":[{"channel":"A","value":-1e9},{"channel":"B","value":0}]}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, QualityOK, res.Features["global.signal_quality_flag"])
}
