// Package chart renders timeseries artifacts as PNG plots (gonum/plot) and
// interactive HTML line charts (go-echarts).
package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/assay.report/internal/extract"
)

// Default PNG dimensions.
const (
	DefaultWidth  = 10 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

// Pinned so rendered pages do not depend on an external CDN default changing.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ParseSeries parses v1_timeseries_csv content with the same row rules as
// feature extraction.
func ParseSeries(content string) (*extract.ChannelSeries, error) {
	return extract.ParseTimeseriesCSV(content)
}

// RenderPNG draws one line per channel and writes the PNG to w.
func RenderPNG(w io.Writer, title string, series *extract.ChannelSeries) error {
	if series == nil || len(series.Channels) == 0 {
		return fmt.Errorf("no channels to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "y"
	p.Legend.Top = true
	p.Legend.Left = false

	var ys []float64
	for i, ch := range series.Channels {
		samples := series.Samples[ch]
		pts := make(plotter.XYs, len(samples))
		for j, s := range samples {
			pts[j] = plotter.XY{X: s.T, Y: s.Y}
			ys = append(ys, s.Y)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(ch, line)
	}
	p.Y.Min, p.Y.Max = paddedRange(floats.Min(ys), floats.Max(ys))

	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, "png")
	if err != nil {
		return fmt.Errorf("create png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// paddedRange widens [lo, hi] by 5% each side, or by 1 when flat.
func paddedRange(lo, hi float64) (float64, float64) {
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}

// RenderHTML writes a self-contained go-echarts page with one line series
// per channel on a numeric t axis.
func RenderHTML(w io.Writer, title string, series *extract.ChannelSeries) error {
	if series == nil || len(series.Channels) == 0 {
		return fmt.Errorf("no channels to chart")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("channels=%d samples=%d", len(series.Channels), series.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "y"}),
	)
	for _, ch := range series.Channels {
		samples := series.Samples[ch]
		data := make([]opts.LineData, len(samples))
		for i, s := range samples {
			data[i] = opts.LineData{Value: []interface{}{s.T, s.Y}}
		}
		line.AddSeries(ch, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
