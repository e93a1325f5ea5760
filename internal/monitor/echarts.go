package monitor

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderTimelineHTML writes a page with one line chart: unobstructed ratio
// and visibility (0/1, stepped) against seconds since the first point.
func RenderTimelineHTML(w io.Writer, title string, points []Point) error {
	xs := offsetSeconds(points)
	labels := make([]string, len(xs))
	ratio := make([]opts.LineData, len(points))
	visible := make([]opts.LineData, len(points))
	for i, p := range points {
		labels[i] = strconv.FormatFloat(xs[i], 'f', 3, 64)
		ratio[i] = opts.LineData{Value: p.Unobstructed}
		visible[i] = opts.LineData{Value: visibleValue(p)}
	}

	subtitle := fmt.Sprintf("records=%d", len(points))
	if len(points) > 0 {
		subtitle = fmt.Sprintf("records=%d start=%s", len(points), points[0].At.Format("2006-01-02T15:04:05.000Z07:00"))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ratio", Min: 0, Max: 1}),
	)
	line.SetXAxis(labels).
		AddSeries("unobstructed", ratio).
		AddSeries("visible", visible, charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line)
	return page.Render(w)
}
