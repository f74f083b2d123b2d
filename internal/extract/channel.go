package extract

import "math"

// Per-channel feature names, in the order they are documented for core_v1.
const (
	FeatureBaselineMean  = "baseline_mean"
	FeatureBaselineStd   = "baseline_std"
	FeatureYMax          = "y_max"
	FeatureYMin          = "y_min"
	FeatureTAtMax        = "t_at_max"
	FeatureAUC           = "auc"
	FeatureSlopeEarly    = "slope_early"
	FeatureTHalfMax      = "t_halfmax"
	FeatureSNR           = "snr"
	FeatureEndpointValue = "endpoint_value"
)

// TimeseriesFeatureNames lists the nine features computed for every channel
// of a timeseries CSV.
var TimeseriesFeatureNames = []string{
	FeatureBaselineMean,
	FeatureBaselineStd,
	FeatureYMax,
	FeatureYMin,
	FeatureTAtMax,
	FeatureAUC,
	FeatureSlopeEarly,
	FeatureTHalfMax,
	FeatureSNR,
}

const (
	baselineFraction = 0.1
	earlyFraction    = 0.2
	minSNRNoise      = 1e-9
)

// Sample is one (t, y) observation of a channel.
type Sample struct {
	T float64
	Y float64
}

// ChannelKey returns the dotted key for a per-channel feature.
func ChannelKey(channel, feature string) string {
	return "channel." + channel + "." + feature
}

// GlobalKey returns the dotted key for a cross-channel feature.
func GlobalKey(feature string) string {
	return "global." + feature
}

// MetadataKey returns the dotted key for a metadata passthrough value.
func MetadataKey(key string) string {
	return "metadata." + key
}

// timeseriesFeatures computes the nine core_v1 features for one channel.
// samples must already be sorted ascending by T. An empty series yields
// null for every feature.
func timeseriesFeatures(channel string, samples []Sample) Features {
	out := make(Features, len(TimeseriesFeatureNames))
	n := len(samples)
	if n == 0 {
		for _, name := range TimeseriesFeatureNames {
			out[ChannelKey(channel, name)] = nil
		}
		return out
	}

	t := make([]float64, n)
	y := make([]float64, n)
	for i, s := range samples {
		t[i] = s.T
		y[i] = s.Y
	}

	// Window sizes are fixed fractions of this channel's own sample count.
	// float64(n)*0.1 is truncated rather than rounded to match stored data.
	baselineN := max(1, int(float64(n)*baselineFraction))
	baselineMean := mean(y[:baselineN])
	baselineStd := std(y[:baselineN])

	yMax, yMin := y[0], y[0]
	maxIdx := 0
	for i := 1; i < n; i++ {
		if y[i] > yMax {
			yMax = y[i]
			maxIdx = i
		}
		if y[i] < yMin {
			yMin = y[i]
		}
	}

	earlyN := min(n, max(2, int(float64(n)*earlyFraction)))
	slopeEarly := 0.0
	if earlyN >= 2 {
		slopeEarly = linearRegressionSlope(t[:earlyN], y[:earlyN])
	}

	var tHalfMax any
	threshold := baselineMean + 0.5*(yMax-baselineMean)
	for i := 0; i < n; i++ {
		if y[i] >= threshold {
			tHalfMax = t[i]
			break
		}
	}

	snr := (yMax - baselineMean) / math.Max(baselineStd, minSNRNoise)

	out[ChannelKey(channel, FeatureBaselineMean)] = finiteOrNil(baselineMean)
	out[ChannelKey(channel, FeatureBaselineStd)] = finiteOrNil(baselineStd)
	out[ChannelKey(channel, FeatureYMax)] = yMax
	out[ChannelKey(channel, FeatureYMin)] = yMin
	out[ChannelKey(channel, FeatureTAtMax)] = t[maxIdx]
	out[ChannelKey(channel, FeatureAUC)] = finiteOrNil(trapezoid(y, t))
	out[ChannelKey(channel, FeatureSlopeEarly)] = finiteOrNil(slopeEarly)
	out[ChannelKey(channel, FeatureTHalfMax)] = tHalfMax
	out[ChannelKey(channel, FeatureSNR)] = finiteOrNil(snr)
	return out
}

// finiteOrNil maps an overflowed computation to null so every record stays
// JSON-encodable. Inputs are finite, so only extreme magnitudes get here.
func finiteOrNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// endpointFeatures returns the single endpoint_value feature for a channel.
func endpointFeatures(channel string, value float64) Features {
	return Features{ChannelKey(channel, FeatureEndpointValue): value}
}
