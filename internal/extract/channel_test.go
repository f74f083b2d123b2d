package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(ys ...float64) []Sample {
	out := make([]Sample, len(ys))
	for i, y := range ys {
		out[i] = Sample{T: float64(i), Y: y}
	}
	return out
}

func TestTimeseriesFeatures_Peak(t *testing.T) {
	f := timeseriesFeatures("IL6", samplesOf(1, 1, 2, 4, 8, 10, 8, 4, 2, 1))
	require.Len(t, f, len(TimeseriesFeatureNames))

	// n=10: baseline window 1 sample, early window 2 samples.
	assert.Equal(t, 1.0, f["channel.IL6.baseline_mean"])
	assert.Equal(t, 0.0, f["channel.IL6.baseline_std"])
	assert.Equal(t, 10.0, f["channel.IL6.y_max"])
	assert.Equal(t, 1.0, f["channel.IL6.y_min"])
	assert.Equal(t, 5.0, f["channel.IL6.t_at_max"])
	assert.Equal(t, 40.0, f["channel.IL6.auc"])
	assert.Equal(t, 0.0, f["channel.IL6.slope_early"])
	// threshold = 1 + 0.5*(10-1) = 5.5, first reached at t=4 (y=8).
	assert.Equal(t, 4.0, f["channel.IL6.t_halfmax"])

	snr, ok := f.Number("channel.IL6.snr")
	require.True(t, ok)
	assert.InEpsilon(t, 9e9, snr, 1e-12)
}

func TestTimeseriesFeatures_WindowsScaleWithChannelLength(t *testing.T) {
	ys := make([]float64, 20)
	ys[0], ys[1] = 0, 30
	for i := 2; i < 20; i++ {
		ys[i] = 50
	}
	f := timeseriesFeatures("A", samplesOf(ys...))

	// n=20: baseline covers the first 2 samples, early slope the first 4.
	assert.Equal(t, 15.0, f["channel.A.baseline_mean"])
	assert.Equal(t, 15.0, f["channel.A.baseline_std"])
	slope, _ := f.Number("channel.A.slope_early")
	// x=0..3, y=0,30,50,50 -> (4*280 - 6*130) / (4*14 - 36) = 17
	assert.InDelta(t, 17.0, slope, 1e-12)
}

func TestTimeseriesFeatures_FirstMaxWins(t *testing.T) {
	f := timeseriesFeatures("A", []Sample{{T: 0, Y: 0}, {T: 1, Y: 5}, {T: 2, Y: 5}, {T: 3, Y: 1}})
	assert.Equal(t, 1.0, f["channel.A.t_at_max"])
}

func TestTimeseriesFeatures_SingleSample(t *testing.T) {
	f := timeseriesFeatures("A", []Sample{{T: 2.5, Y: 7}})

	assert.Equal(t, 7.0, f["channel.A.baseline_mean"])
	assert.Equal(t, 0.0, f["channel.A.baseline_std"])
	assert.Equal(t, 0.0, f["channel.A.auc"])
	assert.Equal(t, 0.0, f["channel.A.slope_early"])
	assert.Equal(t, 2.5, f["channel.A.t_halfmax"])
	assert.Equal(t, 0.0, f["channel.A.snr"])
}

func TestTimeseriesFeatures_EmptySeriesIsAllNull(t *testing.T) {
	f := timeseriesFeatures("A", nil)
	require.Len(t, f, len(TimeseriesFeatureNames))
	for _, name := range TimeseriesFeatureNames {
		v, present := f[ChannelKey("A", name)]
		assert.True(t, present, name)
		assert.Nil(t, v, name)
	}
}

func TestTimeseriesFeatures_HalfMaxNeverReached(t *testing.T) {
	// y_max - baseline overflows to +Inf, so no finite sample reaches the
	// threshold.
	f := timeseriesFeatures("A", []Sample{{T: 0, Y: -1e308}, {T: 1, Y: 1e308}})
	v, present := f["channel.A.t_halfmax"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestTimeseriesFeatures_OverflowBecomesNull(t *testing.T) {
	f := timeseriesFeatures("A", []Sample{{T: 0, Y: -1e308}, {T: 1, Y: 1e308}})
	// (y_max - baseline) / 1e-9 overflows.
	snr, present := f["channel.A.snr"]
	assert.True(t, present)
	assert.Nil(t, snr)
	assert.Equal(t, 1e308, f["channel.A.y_max"])

	_, err := json.Marshal(f)
	assert.NoError(t, err)
}

func TestEndpointFeatures(t *testing.T) {
	f := endpointFeatures("CRP", 5)
	assert.Equal(t, Features{"channel.CRP.endpoint_value": 5.0}, f)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "channel.A.auc", ChannelKey("A", FeatureAUC))
	assert.Equal(t, "global.num_channels", GlobalKey(FeatureNumChannels))
	assert.Equal(t, "metadata.site", MetadataKey("site"))
}
