package status

import "time"

// DefaultUnverifiedLabel 无任何历史数据且采集失败时使用的占位标签
const DefaultUnverifiedLabel = "Estado no verificado"

// Reading 采集器返回的原始读数（服务名 → 状态标签）
type Reading struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ServiceStatus 单个服务的状态
type ServiceStatus struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// Snapshot 一次巡检的完整观测结果
//
// Services 保持采集顺序；IsDown 当且仅当存在 BAD 服务；
// Verified=false 表示数据来自旧快照回退或从未成功采集过
type Snapshot struct {
	Services  []ServiceStatus `json:"services"`
	Timestamp time.Time       `json:"timestamp"`
	IsDown    bool            `json:"is_down"`
	Verified  bool            `json:"verified"`
}

// NewSnapshot 由读数构建快照（重复的服务名保留第一次出现）
func NewSnapshot(readings []Reading, ts time.Time, verified bool, c *Classifier) Snapshot {
	services := make([]ServiceStatus, 0, len(readings))
	seen := make(map[string]struct{}, len(readings))
	for _, r := range readings {
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}
		services = append(services, ServiceStatus{
			Name:     r.Name,
			Label:    r.Label,
			Severity: c.Classify(r.Label, verified),
		})
	}
	return build(services, ts, verified)
}

// Stale 沿用上一次快照的标签，标记为未验证
func Stale(prev Snapshot, ts time.Time, c *Classifier) Snapshot {
	return NewSnapshot(prev.Readings(), ts, false, c)
}

// Unverified 合成全部为 UNVERIFIED 的快照（首次运行即采集失败时使用）
func Unverified(names []string, label string, ts time.Time) Snapshot {
	if label == "" {
		label = DefaultUnverifiedLabel
	}
	services := make([]ServiceStatus, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		services = append(services, ServiceStatus{Name: name, Label: label, Severity: SeverityUnverified})
	}
	return build(services, ts, false)
}

func build(services []ServiceStatus, ts time.Time, verified bool) Snapshot {
	s := Snapshot{Services: services, Timestamp: ts, Verified: verified}
	for _, svc := range services {
		switch svc.Severity {
		case SeverityBad:
			s.IsDown = true
		case SeverityUnverified:
			s.Verified = false
		}
	}
	return s
}

// Lookup 按服务名查找状态
func (s Snapshot) Lookup(name string) (ServiceStatus, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceStatus{}, false
}

// Labels 返回服务名 → 标签映射
func (s Snapshot) Labels() map[string]string {
	m := make(map[string]string, len(s.Services))
	for _, svc := range s.Services {
		m[svc.Name] = svc.Label
	}
	return m
}

// Readings 以读数形式返回（保持顺序）
func (s Snapshot) Readings() []Reading {
	out := make([]Reading, len(s.Services))
	for i, svc := range s.Services {
		out[i] = Reading{Name: svc.Name, Label: svc.Label}
	}
	return out
}

// Names 返回服务名列表（保持顺序）
func (s Snapshot) Names() []string {
	out := make([]string, len(s.Services))
	for i, svc := range s.Services {
		out[i] = svc.Name
	}
	return out
}

// BadServices 返回 BAD 服务名（保持顺序）
func (s Snapshot) BadServices() []string {
	var out []string
	for _, svc := range s.Services {
		if svc.Severity == SeverityBad {
			out = append(out, svc.Name)
		}
	}
	return out
}

// HasDegraded 是否存在降级服务
func (s Snapshot) HasDegraded() bool {
	for _, svc := range s.Services {
		if svc.Severity == SeverityDegraded {
			return true
		}
	}
	return false
}

// Clone 深拷贝快照
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Services = append([]ServiceStatus(nil), s.Services...)
	return c
}
