package history

import (
	"testing"
	"time"

	"statuspulse/internal/status"
)

var classifier = status.NewClassifier(nil)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func down(names ...string) status.Snapshot {
	readings := []status.Reading{{Name: "Store", Label: "Normal"}}
	for _, n := range names {
		readings = append(readings, status.Reading{Name: n, Label: "Offline"})
	}
	return status.NewSnapshot(readings, t0, true, classifier)
}

func up() status.Snapshot {
	return status.NewSnapshot([]status.Reading{{Name: "Store", Label: "Normal"}}, t0, true, classifier)
}

// checkInvariants 校验：至多一个进行中区间且位于末尾；已关闭区间 start<=end；start 严格递增
func checkInvariants(t *testing.T, log Log) {
	t.Helper()
	open := 0
	for i, iv := range log.Intervals {
		if iv.IsOpen() {
			open++
			if i != len(log.Intervals)-1 {
				t.Errorf("进行中区间必须是最后一个, index=%d", i)
			}
		} else if iv.End.Before(iv.Start) {
			t.Errorf("区间 %d: end %v 早于 start %v", i, iv.End, iv.Start)
		}
		if i > 0 && !log.Intervals[i-1].Start.Before(iv.Start) {
			t.Errorf("区间 %d: start 未严格递增", i)
		}
	}
	if open > 1 {
		t.Errorf("进行中区间数 = %d, want <= 1", open)
	}
}

func TestTracker_Transitions(t *testing.T) {
	tr := NewTracker(0)

	// 无区间 + 未故障 → 不变
	log := tr.Update(Log{}, up(), t0)
	if len(log.Intervals) != 0 {
		t.Fatalf("intervals = %d, want 0", len(log.Intervals))
	}

	// 无区间 + 故障 → 打开
	log = tr.Update(log, down("CM"), t0.Add(time.Minute))
	iv, ok := log.Open()
	if !ok {
		t.Fatal("应存在进行中区间")
	}
	if !iv.Start.Equal(t0.Add(time.Minute)) {
		t.Errorf("Start = %v, want %v", iv.Start, t0.Add(time.Minute))
	}

	// 进行中 + 故障 → 延长
	log = tr.Update(log, down("Community"), t0.Add(2*time.Minute))
	if len(log.Intervals) != 1 {
		t.Fatalf("intervals = %d, want 1", len(log.Intervals))
	}
	iv, _ = log.Open()
	if got := iv.AffectedServices; len(got) != 2 || got[0] != "CM" || got[1] != "Community" {
		t.Errorf("AffectedServices = %v, want [CM Community]", got)
	}

	// 进行中 + 未故障 → 关闭
	closeAt := t0.Add(3 * time.Minute)
	log = tr.Update(log, up(), closeAt)
	if _, ok := log.Open(); ok {
		t.Fatal("区间应已关闭")
	}
	if !log.Intervals[0].End.Equal(closeAt) {
		t.Errorf("End = %v, want %v", log.Intervals[0].End, closeAt)
	}

	// 已关闭 + 未故障 → 不变
	log = tr.Update(log, up(), t0.Add(4*time.Minute))
	if len(log.Intervals) != 1 {
		t.Errorf("intervals = %d, want 1", len(log.Intervals))
	}

	// 已关闭 + 故障 → 追加新区间
	log = tr.Update(log, down("CM"), t0.Add(5*time.Minute))
	if len(log.Intervals) != 2 {
		t.Fatalf("intervals = %d, want 2", len(log.Intervals))
	}
	checkInvariants(t, log)
}

func TestTracker_OpenIntervalSurvivesRepeatedDown(t *testing.T) {
	tr := NewTracker(0)
	log := tr.Update(Log{}, down("Store API"), t0)

	for i := 1; i <= 3; i++ {
		log = tr.Update(log, down("Store API"), t0.Add(time.Duration(i)*time.Minute))
	}
	if len(log.Intervals) != 1 {
		t.Fatalf("intervals = %d, want 1", len(log.Intervals))
	}
	iv, ok := log.Open()
	if !ok || !iv.Start.Equal(t0) {
		t.Fatalf("应只有一个从 T0 开始的进行中区间, got %+v", log.Intervals)
	}

	closeAt := t0.Add(4 * time.Minute)
	log = tr.Update(log, up(), closeAt)
	if log.Intervals[0].IsOpen() || !log.Intervals[0].End.Equal(closeAt) {
		t.Errorf("第四轮应在 %v 关闭区间, got %+v", closeAt, log.Intervals[0])
	}
}

func TestTracker_PeakKeepsWorstSeverity(t *testing.T) {
	tr := NewTracker(0)
	first := status.NewSnapshot([]status.Reading{
		{Name: "CM", Label: "Offline"},
		{Name: "Store", Label: "87% Online"},
	}, t0, true, classifier)
	second := status.NewSnapshot([]status.Reading{
		{Name: "CM", Label: "60% Online"},
		{Name: "Store", Label: "Major outage"},
		{Name: "Community", Label: "Normal"},
	}, t0, true, classifier)

	log := tr.Update(Log{}, first, t0)
	log = tr.Update(log, second, t0.Add(time.Minute))

	iv, _ := log.Open()
	peak := map[string]status.ServiceStatus{}
	for _, p := range iv.Peak {
		peak[p.Name] = p
	}
	if peak["CM"].Label != "Offline" {
		t.Errorf("CM peak = %+v, want Offline", peak["CM"])
	}
	if peak["Store"].Label != "Major outage" {
		t.Errorf("Store peak = %+v, want Major outage", peak["Store"])
	}
	if peak["Community"].Severity != status.SeverityOK {
		t.Errorf("Community peak = %+v, want OK", peak["Community"])
	}
}

func TestTracker_DoesNotMutateInput(t *testing.T) {
	tr := NewTracker(0)
	log := tr.Update(Log{}, down("CM"), t0)

	before := log.Clone()
	_ = tr.Update(log, up(), t0.Add(time.Minute))
	_ = tr.Update(log, down("Community"), t0.Add(time.Minute))

	if !log.Intervals[0].IsOpen() {
		t.Error("入参区间被关闭")
	}
	if len(log.Intervals[0].AffectedServices) != len(before.Intervals[0].AffectedServices) {
		t.Error("入参区间受影响服务被修改")
	}
}

func TestTracker_Retention(t *testing.T) {
	window := 7 * 24 * time.Hour
	tr := NewTracker(window)

	// 构造：8 天前的已关闭区间、2 天前的已关闭区间
	old := t0.Add(-8 * 24 * time.Hour)
	oldEnd := old.Add(time.Hour)
	recent := t0.Add(-2 * 24 * time.Hour)
	recentEnd := recent.Add(time.Hour)
	log := Log{Intervals: []Interval{
		{Start: old, End: &oldEnd},
		{Start: recent, End: &recentEnd},
	}}

	log = tr.Update(log, up(), t0)
	if len(log.Intervals) != 1 || !log.Intervals[0].Start.Equal(recent) {
		t.Fatalf("应裁剪超出窗口的已关闭区间, got %+v", log.Intervals)
	}

	cutoff := t0.Add(-window)
	for _, iv := range log.Intervals {
		if !iv.IsOpen() && iv.Start.Before(cutoff) {
			t.Errorf("已关闭区间 start %v 早于 cutoff %v", iv.Start, cutoff)
		}
	}
}

func TestTracker_RetentionKeepsOpenInterval(t *testing.T) {
	tr := NewTracker(24 * time.Hour)

	log := tr.Update(Log{}, down("CM"), t0)
	// 故障持续 3 天，远超保留窗口
	for i := 1; i <= 72; i++ {
		log = tr.Update(log, down("CM"), t0.Add(time.Duration(i)*time.Hour))
	}
	iv, ok := log.Open()
	if !ok || !iv.Start.Equal(t0) {
		t.Fatalf("进行中区间必须保留, got %+v", log.Intervals)
	}

	// 关闭后不再受保护，同一轮即被裁剪
	log = tr.Update(log, up(), t0.Add(73*time.Hour))
	if len(log.Intervals) != 0 {
		t.Errorf("关闭后的旧区间应被裁剪, got %+v", log.Intervals)
	}
}

func TestTracker_InvariantsUnderRandomWalk(t *testing.T) {
	tr := NewTracker(6 * time.Hour)
	pattern := []bool{false, true, true, false, true, false, false, true, true, true, false, true}

	log := Log{}
	now := t0
	for round := 0; round < 20; round++ {
		for _, isDown := range pattern {
			now = now.Add(17 * time.Minute)
			cur := up()
			if isDown {
				cur = down("CM")
			}
			log = tr.Update(log, cur, now)
			checkInvariants(t, log)
		}
	}
}

func TestLog_DowntimeAndSeries(t *testing.T) {
	now := t0
	window := 24 * time.Hour
	s1 := now.Add(-30 * time.Hour) // 跨越窗口起点
	e1 := now.Add(-20 * time.Hour)
	s2 := now.Add(-2 * time.Hour)
	log := Log{Intervals: []Interval{
		{Start: s1, End: &e1},
		{Start: s2}, // 进行中
	}}

	if got, want := log.Downtime(now, window), 4*time.Hour+2*time.Hour; got != want {
		t.Errorf("Downtime() = %v, want %v", got, want)
	}

	pts := log.Series(now, window)
	if !pts[0].Time.Equal(now.Add(-window)) || !pts[0].Down {
		t.Errorf("起点应处于故障中, got %+v", pts[0])
	}
	last := pts[len(pts)-1]
	if !last.Time.Equal(now) || !last.Down {
		t.Errorf("终点应处于故障中, got %+v", last)
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].Time.Before(pts[i-1].Time) {
			t.Fatalf("序列时间倒退: %+v", pts)
		}
	}

	empty := Log{}.Series(now, window)
	if len(empty) != 2 || empty[0].Down || empty[1].Down {
		t.Errorf("空日志应为两点平线, got %+v", empty)
	}
}
