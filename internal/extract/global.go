package extract

// Global feature names.
const (
	FeatureNumChannels       = "num_channels"
	FeatureSignalQualityFlag = "signal_quality_flag"
)

// Signal quality verdicts.
const (
	QualityOK  = "ok"
	QualityLow = "low"
)

// Fixed quality thresholds for core_v1.
const (
	baselineStdThreshold = 10.0
	snrThreshold         = 3.0
)

// globalFeatures derives the cross-channel features from the merged
// per-channel record. A channel whose baseline is too noisy or whose SNR is
// too low marks the whole artifact as low quality. Channels without
// baseline_std/snr (endpoint JSON) never trip the check.
func globalFeatures(channelFeatures Features, channels []string) Features {
	quality := QualityOK
	for _, ch := range channels {
		if v, ok := channelFeatures.Number(ChannelKey(ch, FeatureBaselineStd)); ok && v > baselineStdThreshold {
			quality = QualityLow
			break
		}
		if v, ok := channelFeatures.Number(ChannelKey(ch, FeatureSNR)); ok && v < snrThreshold {
			quality = QualityLow
			break
		}
	}
	return Features{
		GlobalKey(FeatureNumChannels):       len(channels),
		GlobalKey(FeatureSignalQualityFlag): quality,
	}
}
