package policy

import (
	"testing"
	"time"

	"statuspulse/internal/events"
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

func names(services []status.ServiceStatus) []string {
	out := make([]string, len(services))
	for i, s := range services {
		out[i] = s.Name
	}
	return out
}

func TestDecide_NoChangeSuppressed(t *testing.T) {
	p := New(Config{NotifyOnFirstRun: true})
	if d := p.Decide(events.NoChange, snap(true, "Store", "Offline")); d != nil {
		t.Errorf("NoChange 应抑制通知, got %+v", d)
	}
}

func TestDecide_FirstRun(t *testing.T) {
	cur := snap(true, "Store", "Normal")

	if d := New(Config{NotifyOnFirstRun: true}).Decide(events.FirstObservation, cur); d == nil {
		t.Error("默认首次观测应通知")
	}
	if d := New(Config{NotifyOnFirstRun: false}).Decide(events.FirstObservation, cur); d != nil {
		t.Error("关闭首次通知后应抑制")
	}
	// 关闭首次通知不影响 Changed
	if d := New(Config{NotifyOnFirstRun: false}).Decide(events.Changed, cur); d == nil {
		t.Error("Changed 不应受首次通知开关影响")
	}
}

func TestDecide_Level(t *testing.T) {
	p := New(Config{NotifyOnFirstRun: true})

	tests := []struct {
		name         string
		cur          status.Snapshot
		wantLevel    Level
		wantVerified bool
		wantDegraded bool
	}{
		{"故障", snap(true, "Store", "Offline"), LevelCritical, true, false},
		{"正常", snap(true, "Store", "Normal"), LevelOK, true, false},
		{"降级", snap(true, "CM", "87% Online"), LevelOK, true, true},
		{"未验证", snap(false, "Store", "Normal"), LevelOK, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(events.Changed, tt.cur)
			if d == nil {
				t.Fatal("Decide() = nil")
			}
			if d.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", d.Level, tt.wantLevel)
			}
			if d.Verified != tt.wantVerified {
				t.Errorf("Verified = %v, want %v", d.Verified, tt.wantVerified)
			}
			if d.Degraded() != tt.wantDegraded {
				t.Errorf("Degraded() = %v, want %v", d.Degraded(), tt.wantDegraded)
			}
			if d.Result != events.Changed {
				t.Errorf("Result = %s, want changed", d.Result)
			}
		})
	}
}

func TestOrder(t *testing.T) {
	cur := snap(true,
		"Steam Store", "Normal",
		"Steam Community", "Normal",
		"Steam Connection Managers", "95% Online",
		"Steam Web API", "Normal",
		"Steam Cloud", "Normal",
	)

	tests := []struct {
		name  string
		order []string
		want  []string
	}{
		{
			name:  "无配置保持采集顺序",
			order: nil,
			want:  []string{"Steam Store", "Steam Community", "Steam Connection Managers", "Steam Web API", "Steam Cloud"},
		},
		{
			name:  "子串命中置顶",
			order: []string{"connection managers"},
			want:  []string{"Steam Connection Managers", "Steam Store", "Steam Community", "Steam Web API", "Steam Cloud"},
		},
		{
			name:  "多项优先级",
			order: []string{"Steam Connection Managers", "steam cloud", "不存在的服务"},
			want:  []string{"Steam Connection Managers", "Steam Cloud", "Steam Store", "Steam Community", "Steam Web API"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Order: tt.order, NotifyOnFirstRun: true}).Decide(events.FirstObservation, cur)
			got := names(d.Summary)
			if len(got) != len(tt.want) {
				t.Fatalf("Summary = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("Summary = %v, want %v", got, tt.want)
				}
			}
		})
	}

	// 排序不应修改快照本身
	if cur.Services[0].Name != "Steam Store" {
		t.Error("Order() 修改了入参")
	}
}
