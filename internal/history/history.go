// Package history 维护故障区间时间线
//
// 每轮巡检根据快照的 IsDown 打开、延长或关闭故障区间，
// 并按保留窗口裁剪旧区间。进行中的区间永远保留。
package history

import (
	"time"

	"statuspulse/internal/status"
)

// DefaultRetention 默认保留窗口（7 天）
const DefaultRetention = 7 * 24 * time.Hour

// Interval 故障区间
type Interval struct {
	// Start 区间开始时间（首次观测到 IsDown=true 的巡检时间）
	Start time.Time `json:"start"`

	// End 区间结束时间；nil 表示仍在进行中
	End *time.Time `json:"end,omitempty"`

	// AffectedServices 区间内出现过 BAD 的服务（首次出现顺序，去重）
	AffectedServices []string `json:"affected_services"`

	// Peak 区间内每个服务观测到的最严重状态
	Peak []status.ServiceStatus `json:"peak"`
}

// IsOpen 区间是否仍在进行中
func (iv Interval) IsOpen() bool {
	return iv.End == nil
}

// Duration 区间时长；进行中的区间按 now 计算
func (iv Interval) Duration(now time.Time) time.Duration {
	end := now
	if iv.End != nil {
		end = *iv.End
	}
	if end.Before(iv.Start) {
		return 0
	}
	return end.Sub(iv.Start)
}

func (iv Interval) clone() Interval {
	c := iv
	if iv.End != nil {
		end := *iv.End
		c.End = &end
	}
	c.AffectedServices = append([]string(nil), iv.AffectedServices...)
	c.Peak = append([]status.ServiceStatus(nil), iv.Peak...)
	return c
}

// Log 按 Start 升序排列的故障区间序列
type Log struct {
	Intervals []Interval `json:"intervals"`
}

// Clone 深拷贝
func (l Log) Clone() Log {
	if l.Intervals == nil {
		return Log{}
	}
	out := Log{Intervals: make([]Interval, len(l.Intervals))}
	for i, iv := range l.Intervals {
		out.Intervals[i] = iv.clone()
	}
	return out
}

// Open 返回进行中的区间（只可能是最后一个）
func (l Log) Open() (Interval, bool) {
	if n := len(l.Intervals); n > 0 && l.Intervals[n-1].IsOpen() {
		return l.Intervals[n-1], true
	}
	return Interval{}, false
}

// Tracker 故障区间状态机
type Tracker struct {
	retention time.Duration
}

// NewTracker 创建状态机；retention <= 0 时使用 DefaultRetention
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention}
}

// Retention 返回保留窗口
func (t *Tracker) Retention() time.Duration {
	return t.retention
}

// Update 根据本轮快照推进状态机并裁剪，返回新的 Log（不修改入参）
//
// 状态转移：
//   - 无区间/最后区间已关闭 + 未故障 → 不变
//   - 无区间/最后区间已关闭 + 故障   → 追加 {Start: now, End: nil}
//   - 最后区间进行中 + 故障          → 延长：合并受影响服务与峰值
//   - 最后区间进行中 + 未故障        → 关闭：End = now
//
// 前置条件：多次调用的 now 单调不减（由巡检循环保证，违反时不做处理）
func (t *Tracker) Update(log Log, cur status.Snapshot, now time.Time) Log {
	next := log.Clone()
	n := len(next.Intervals)
	open := n > 0 && next.Intervals[n-1].IsOpen()

	switch {
	case !open && cur.IsDown:
		iv := Interval{Start: now}
		absorb(&iv, cur)
		next.Intervals = append(next.Intervals, iv)
	case open && cur.IsDown:
		absorb(&next.Intervals[n-1], cur)
	case open && !cur.IsDown:
		end := now
		next.Intervals[n-1].End = &end
	}

	next.Intervals = prune(next.Intervals, now.Add(-t.retention))
	return next
}

// absorb 把快照中的受影响服务与峰值合并进区间
func absorb(iv *Interval, cur status.Snapshot) {
	for _, name := range cur.BadServices() {
		if !contains(iv.AffectedServices, name) {
			iv.AffectedServices = append(iv.AffectedServices, name)
		}
	}

	for _, svc := range cur.Services {
		idx := -1
		for i := range iv.Peak {
			if iv.Peak[i].Name == svc.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			iv.Peak = append(iv.Peak, svc)
			continue
		}
		if svc.Severity.Rank() > iv.Peak[idx].Severity.Rank() {
			iv.Peak[idx] = svc
		}
	}
}

// prune 删除 Start 早于 cutoff 的已关闭区间；进行中的区间无论多旧都保留
func prune(intervals []Interval, cutoff time.Time) []Interval {
	kept := intervals[:0]
	for _, iv := range intervals {
		if iv.Start.Before(cutoff) && !iv.IsOpen() {
			continue
		}
		kept = append(kept, iv)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
