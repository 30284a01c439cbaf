package report

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Point 是资金曲线采样点。
type Point struct {
	TS     int64 // Unix ms
	Equity float64
}

const (
	chartWidth  = "1200px"
	chartHeight = "520px"
)

// WriteEquity 把资金曲线渲染为单页 HTML。
func WriteEquity(path, runID string, initialCash float64, points []Point) error {
	if len(points) == 0 {
		return fmt.Errorf("没有可渲染的资金曲线数据")
	}

	xs := make([]string, 0, len(points))
	ys := make([]opts.LineData, 0, len(points))
	base := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		xs = append(xs, time.UnixMilli(p.TS).UTC().Format("2006-01-02 15:04"))
		ys = append(ys, opts.LineData{Value: p.Equity})
		base = append(base, opts.LineData{Value: initialCash})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "资金曲线",
			Subtitle: "run " + runID,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	line.SetXAxis(xs).
		AddSeries("equity", ys).
		AddSeries("initial", base)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建报告文件失败: %w", err)
	}
	defer f.Close()
	return line.Render(f)
}
