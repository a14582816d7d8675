package reporting

import (
	"fmt"
	"image/color"
	"io"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Chart dimensions.
const (
	ChartWidth  = 10 * vg.Inch
	ChartHeight = 6 * vg.Inch
)

// bandColors are the bar colors per risk band.
var bandColors = map[RiskBand]color.RGBA{
	RiskHigh:   {R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	RiskMedium: {R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	RiskLow:    {R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
}

// RenderHistogramPNG draws the bucket counts as a bar chart colored by risk
// band, with each bar annotated by its count, and writes a PNG to w.
func RenderHistogramPNG(w io.Writer, buckets []BucketRow) error {
	p := plot.New()
	p.Title.Text = "Wallet credit score distribution"
	p.X.Label.Text = "Credit score"
	p.Y.Label.Text = "Wallets"
	p.Y.Min = 0

	names := make([]string, len(buckets))
	maxCount := 0
	for i, b := range buckets {
		names[i] = b.Label()
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}

	// One bar series per band; buckets outside the band have zero height.
	barWidth := vg.Points(40)
	for _, band := range Bands {
		values := make(plotter.Values, len(buckets))
		present := false
		for i, b := range buckets {
			if b.Band == band {
				values[i] = float64(b.Count)
				present = true
			}
		}
		if !present {
			continue
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return fmt.Errorf("build %s bars: %w", band, err)
		}
		bars.Color = bandColors[band]
		bars.LineStyle.Width = 0
		p.Add(bars)
		p.Legend.Add(string(band)+" risk", bars)
	}

	// Count annotations just above each bar.
	pad := float64(maxCount) * 0.02
	if pad == 0 {
		pad = 0.05
	}
	xys := make(plotter.XYs, len(buckets))
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		xys[i].X = float64(i)
		xys[i].Y = float64(b.Count) + pad
		labels[i] = strconv.Itoa(b.Count)
	}
	annotations, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("build labels: %w", err)
	}
	p.Add(annotations)

	p.Y.Max = float64(maxCount)*1.15 + 1
	p.NominalX(names...)
	p.Legend.Top = true

	wt, err := p.WriterTo(ChartWidth, ChartHeight, "png")
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}
