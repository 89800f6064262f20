package plotting

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/flowcal/internal/calibration"
)

// ChartOptions tweaks the HTML chart. The zero value is usable.
type ChartOptions struct {
	Subtitle   string
	YLabel     string // defaults to YLabel
	AssetsHost string
}

// ScatterHTML renders an echarts page with the samples as a scatter series
// and the fitted line overlaid.
func ScatterHTML(w io.Writer, points []calibration.Point, a, b float64, o ChartOptions) error {
	if len(points) == 0 {
		return ErrNoPoints
	}

	data := make([]opts.ScatterData, 0, len(points))
	for _, p := range points {
		data = append(data, opts.ScatterData{Value: []interface{}{p.Freq, p.Flow}})
	}
	fit := FitLine(points, a, b)
	lineData := make([]opts.LineData, 0, len(fit))
	for _, xy := range fit {
		lineData = append(lineData, opts.LineData{Value: []interface{}{xy[0], xy[1]}})
	}

	yLabel := o.YLabel
	if yLabel == "" {
		yLabel = YLabel
	}
	subtitle := o.Subtitle
	if subtitle == "" {
		subtitle = fmt.Sprintf("Q(f) = %.6f * f + %.6f  n=%d", a, b, len(points))
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "flowcal", Width: "100%", Height: "640px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yLabel, NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("Dados filtrados", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	line := charts.NewLine()
	line.AddSeries("Ajuste RLS", lineData, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	scatter.Overlap(line)

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
