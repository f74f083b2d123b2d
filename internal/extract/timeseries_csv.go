package extract

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Required timeseries CSV columns, matched case-insensitively by name.
var requiredColumns = []string{"channel", "t", "y"}

var (
	// ErrEmptyCSV is returned when the file has a header but no data rows.
	ErrEmptyCSV = errors.New("CSV file is empty (no data rows)")
	// ErrNoValidData is returned when every data row was dropped.
	ErrNoValidData = errors.New("No valid data after parsing")
)

// ChannelSeries is a parsed timeseries CSV: every channel's samples sorted
// ascending by t, and the channel names sorted lexicographically.
type ChannelSeries struct {
	Channels []string
	Samples  map[string][]Sample
}

// Len returns the total number of samples across all channels.
func (cs *ChannelSeries) Len() int {
	n := 0
	for _, s := range cs.Samples {
		n += len(s)
	}
	return n
}

// ParseTimeseriesCSV parses a v1_timeseries_csv artifact.
//
// Rows are split naively on ',' (no quoting). Rows with too few fields, an
// empty channel, or a t/y value that is not a finite number are dropped
// without error. The returned error text is the user-facing message.
func ParseTimeseriesCSV(content string) (*ChannelSeries, error) {
	lines := strings.Split(strings.TrimRight(content, " \t\r\n"), "\n")
	if len(lines) < 2 {
		return nil, ErrEmptyCSV
	}

	header := strings.Split(strings.ToLower(strings.TrimSpace(strings.TrimPrefix(lines[0], "\ufeff"))), ",")
	idx := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("Missing required columns: %s", strings.Join(missing, ", "))
	}

	chIdx, tIdx, yIdx := idx["channel"], idx["t"], idx["y"]
	width := max(len(requiredColumns), chIdx+1, tIdx+1, yIdx+1)

	samples := make(map[string][]Sample)
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if len(fields) < width {
			continue
		}
		channel := strings.TrimSpace(fields[chIdx])
		if channel == "" {
			continue
		}
		t, ok := parseFinite(fields[tIdx])
		if !ok {
			continue
		}
		y, ok := parseFinite(fields[yIdx])
		if !ok {
			continue
		}
		samples[channel] = append(samples[channel], Sample{T: t, Y: y})
	}
	if len(samples) == 0 {
		return nil, ErrNoValidData
	}

	channels := make([]string, 0, len(samples))
	for ch, s := range samples {
		channels = append(channels, ch)
		// Stable so that samples sharing a timestamp keep file order.
		sort.SliceStable(s, func(i, j int) bool { return s[i].T < s[j].T })
	}
	sort.Strings(channels)

	return &ChannelSeries{Channels: channels, Samples: samples}, nil
}

func parseFinite(field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ExtractTimeseriesCSV computes core_v1 features from a v1_timeseries_csv
// artifact. It never panics; unexpected failures are reported as
// "Extraction error: ...".
func ExtractTimeseriesCSV(content string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Sprintf("Extraction error: %v", r))
		}
	}()

	series, err := ParseTimeseriesCSV(content)
	if err != nil {
		return Failure(err.Error())
	}

	features := make(Features, len(series.Channels)*len(TimeseriesFeatureNames)+2)
	for _, ch := range series.Channels {
		features.merge(timeseriesFeatures(ch, series.Samples[ch]))
	}
	features.merge(globalFeatures(features, series.Channels))
	return Succeeded(features)
}
