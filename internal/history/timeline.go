package history

import "time"

// Point 阶梯时间序列上的一个点（Down=true 表示故障）
type Point struct {
	Time time.Time `json:"time"`
	Down bool      `json:"down"`
}

// Downtime 统计 [now-window, now] 内的累计故障时长
func (l Log) Downtime(now time.Time, window time.Duration) time.Duration {
	from := now.Add(-window)
	var total time.Duration
	for _, iv := range l.Intervals {
		start := iv.Start
		if start.Before(from) {
			start = from
		}
		end := now
		if iv.End != nil && iv.End.Before(now) {
			end = *iv.End
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total
}

// Series 生成 [now-window, now] 的阶梯序列，供图表渲染
//
// 每次状态切换输出两个同一时刻的点（切换前值与切换后值），
// 首尾各补一个点，保证序列至少有两个不同的时间点
func (l Log) Series(now time.Time, window time.Duration) []Point {
	from := now.Add(-window)
	points := []Point{{Time: from, Down: false}}
	down := false

	step := func(at time.Time, to bool) {
		if to == down {
			return
		}
		if at.Before(from) {
			at = from
			// 窗口起点已处于故障中：直接修正起点
			points[len(points)-1].Down = to
			down = to
			return
		}
		if at.After(now) {
			return
		}
		points = append(points, Point{Time: at, Down: down}, Point{Time: at, Down: to})
		down = to
	}

	for _, iv := range l.Intervals {
		if iv.End != nil && iv.End.Before(from) {
			continue
		}
		step(iv.Start, true)
		if iv.End != nil {
			step(*iv.End, false)
		}
	}

	points = append(points, Point{Time: now, Down: down})
	return points
}
