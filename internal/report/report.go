// Package report renders recorded supervision runs as standalone HTML charts.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/radiantlabs/depthsup/internal/metricstore"
)

// WriteLossCurves renders one line chart with a series per metric over
// training steps. The x axis is the union of the recorded steps; series
// without a value at a step carry nil so echarts leaves a gap instead of
// interpolating.
func WriteLossCurves(w io.Writer, title string, series map[string][]metricstore.StepValue) error {
	if len(series) == 0 {
		return fmt.Errorf("no series to render")
	}

	steps := unionSteps(series)
	x := make([]string, len(steps))
	for i, s := range steps {
		x[i] = strconv.Itoa(s)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "loss"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x)

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		byStep := make(map[int]float64, len(series[name]))
		for _, sv := range series[name] {
			byStep[sv.Step] = sv.Value
		}
		data := make([]opts.LineData, len(steps))
		for i, s := range steps {
			if v, ok := byStep[s]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(name, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render loss curves: %w", err)
	}
	return nil
}

func unionSteps(series map[string][]metricstore.StepValue) []int {
	seen := make(map[int]bool)
	for _, svs := range series {
		for _, sv := range svs {
			seen[sv.Step] = true
		}
	}
	steps := make([]int, 0, len(seen))
	for s := range seen {
		steps = append(steps, s)
	}
	sort.Ints(steps)
	return steps
}
