// Package chart 将故障历史渲染为 PNG 阶梯图，随通知一起发送
package chart

import (
	"bytes"
	"fmt"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"statuspulse/internal/history"
)

// DefaultWindow 默认展示最近 24 小时
const DefaultWindow = 24 * time.Hour

// Renderer 故障历史图表渲染器
type Renderer struct {
	Width  int
	Height int
}

// New 创建渲染器，非正数尺寸使用默认值 1024x320
func New(width, height int) *Renderer {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 320
	}
	return &Renderer{Width: width, Height: height}
}

// Render 渲染 [now-window, now] 的故障阶梯图
func (r *Renderer) Render(log history.Log, now time.Time, window time.Duration) ([]byte, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	points := log.Series(now, window)

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Time
		if p.Down {
			ys[i] = 1
		}
	}

	red := drawing.ColorFromHex("E74C3C")
	format := "15:04"
	if window > 48*time.Hour {
		format = "01-02"
	}

	graph := gochart.Chart{
		Title:  fmt.Sprintf("Outages (last %s)", window),
		Width:  r.Width,
		Height: r.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatterWithFormat(format),
		},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: 0, Max: 1},
			Ticks: []gochart.Tick{
				{Value: 0, Label: "up"},
				{Value: 1, Label: "down"},
			},
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name: "outage",
				Style: gochart.Style{
					StrokeColor: red,
					StrokeWidth: 2,
					FillColor:   red.WithAlpha(64),
				},
				XValues: xs,
				YValues: ys,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("渲染图表失败: %w", err)
	}
	return buf.Bytes(), nil
}
