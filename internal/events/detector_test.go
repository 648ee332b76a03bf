package events

import (
	"testing"
	"time"

	"statuspulse/internal/status"
)

var classifier = status.NewClassifier(nil)

func snap(verified bool, kv ...string) status.Snapshot {
	readings := make([]status.Reading, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		readings = append(readings, status.Reading{Name: kv[i], Label: kv[i+1]})
	}
	return status.NewSnapshot(readings, time.Unix(1000, 0), verified, classifier)
}

func TestDetect_FirstObservation(t *testing.T) {
	cur := snap(true, "Store", "Normal")
	if got := Detect(nil, cur); got != FirstObservation {
		t.Errorf("Detect(nil, S) = %s, want first_observation", got)
	}
	// 未验证快照同样是首次观测
	if got := Detect(nil, status.Unverified([]string{"Store"}, "", time.Unix(1, 0))); got != FirstObservation {
		t.Errorf("Detect(nil, unverified) = %s, want first_observation", got)
	}
}

func TestDetect_IdenticalIsNoChange(t *testing.T) {
	snapshots := []status.Snapshot{
		snap(true),
		snap(true, "Store", "Normal", "CM", "95% Online"),
		snap(true, "Store", "Offline"),
		snap(false, "Store", "Normal"),
	}
	for _, s := range snapshots {
		prev := s.Clone()
		// 时间戳不同不影响结果
		cur := s.Clone()
		cur.Timestamp = cur.Timestamp.Add(time.Minute)
		if got := Detect(&prev, cur); got != NoChange {
			t.Errorf("Detect(S, S) = %s, want no_change (snapshot %+v)", got, s)
		}
	}
}

func TestDetect_Changed(t *testing.T) {
	base := snap(true, "Store", "Normal", "CM", "95% Online")

	tests := []struct {
		name string
		cur  status.Snapshot
	}{
		{"IsDown 翻转", snap(true, "Store", "Offline", "CM", "95% Online")},
		{"标签改写", snap(true, "Store", "Normal ", "CM", "95% Online")},
		{"百分比变化", snap(true, "Store", "Normal", "CM", "87% Online")},
		{"新增服务", snap(true, "Store", "Normal", "CM", "95% Online", "Community", "Normal")},
		{"服务消失", snap(true, "Store", "Normal")},
		{"服务替换", snap(true, "Store", "Normal", "Community", "95% Online")},
		{"Verified 翻转", status.Stale(base, time.Unix(2000, 0), classifier)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := base.Clone()
			if got := Detect(&prev, tt.cur); got != Changed {
				t.Errorf("Detect() = %s, want changed", got)
			}
		})
	}
}

func TestDetect_ScenarioStoreGoesOffline(t *testing.T) {
	prev := snap(true, "Store", "Normal", "CM", "95% Online")
	cur := snap(true, "Store", "Offline", "CM", "95% Online")

	if prev.IsDown {
		t.Fatal("prev.IsDown 应为 false")
	}
	if got := Detect(&prev, cur); got != Changed {
		t.Fatalf("Detect() = %s, want changed", got)
	}
	if !cur.IsDown {
		t.Error("cur.IsDown 应为 true")
	}
}

func TestDetect_RepeatedUnverifiedIsNoChange(t *testing.T) {
	first := status.Unverified([]string{"Store", "CM"}, "", time.Unix(1, 0))
	second := status.Unverified([]string{"Store", "CM"}, "", time.Unix(2, 0))

	if got := Detect(nil, first); got != FirstObservation {
		t.Fatalf("第一次失败 = %s, want first_observation", got)
	}
	if got := Detect(&first, second); got != NoChange {
		t.Errorf("第二次失败 = %s, want no_change", got)
	}
}

func TestDiff(t *testing.T) {
	prev := snap(true, "Store", "Normal", "CM", "95% Online", "Community", "Normal")
	cur := snap(true, "Store", "Offline", "CM", "95% Online", "Steam Cloud", "Normal")

	changes := Diff(&prev, cur)
	want := []ServiceChange{
		{Name: "Store", Before: "Normal", After: "Offline"},
		{Name: "Steam Cloud", Before: "", After: "Normal"},
		{Name: "Community", Before: "Normal", After: ""},
	}
	if len(changes) != len(want) {
		t.Fatalf("Diff() = %+v, want %+v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("Diff()[%d] = %+v, want %+v", i, changes[i], want[i])
		}
	}

	if got := Diff(nil, cur); len(got) != len(cur.Services) {
		t.Errorf("Diff(nil) 应列出全部服务, got %d", len(got))
	}
}

func TestChangeResult_String(t *testing.T) {
	tests := map[ChangeResult]string{
		NoChange:         "no_change",
		Changed:          "changed",
		FirstObservation: "first_observation",
	}
	for r, want := range tests {
		if r.String() != want {
			t.Errorf("String() = %q, want %q", r.String(), want)
		}
	}
	if NoChange.ShouldAct() || !Changed.ShouldAct() || !FirstObservation.ShouldAct() {
		t.Error("ShouldAct() 结果不符合预期")
	}
}
