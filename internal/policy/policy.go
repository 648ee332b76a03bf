// Package policy 将变更检测结果转换为通知决策
//
// 本包只产出决策对象，不直接调用任何投递通道
package policy

import (
	"sort"
	"strings"
	"time"

	"statuspulse/internal/events"
	"statuspulse/internal/history"
	"statuspulse/internal/status"
)

// Level 通知级别
type Level string

const (
	LevelCritical Level = "CRITICAL" // 整体故障
	LevelOK       Level = "OK"       // 整体正常
)

// Decision 通知决策
type Decision struct {
	Result    events.ChangeResult    `json:"-"`
	Level     Level                  `json:"level"`
	Verified  bool                   `json:"verified"`
	Summary   []status.ServiceStatus `json:"summary"`
	Changes   []events.ServiceChange `json:"changes,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	// History 本轮更新后的故障区间（由编排器填充，供图表与消息使用）
	History *history.Log `json:"-"`
}

// Degraded 是否存在降级服务或数据未验证（投递端据此选用琥珀色）
func (d *Decision) Degraded() bool {
	if !d.Verified {
		return true
	}
	for _, svc := range d.Summary {
		if svc.Severity == status.SeverityDegraded || svc.Severity == status.SeverityUnverified {
			return true
		}
	}
	return false
}

// Config 策略配置
type Config struct {
	// Order 服务展示优先级（大小写不敏感；服务名等于或包含该项即命中）
	Order []string

	// NotifyOnFirstRun 首次观测是否发送通知（默认 true）
	NotifyOnFirstRun bool
}

// Policy 通知策略
type Policy struct {
	order            []string
	notifyOnFirstRun bool
}

// New 创建通知策略
func New(cfg Config) *Policy {
	order := make([]string, 0, len(cfg.Order))
	for _, o := range cfg.Order {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			order = append(order, o)
		}
	}
	return &Policy{order: order, notifyOnFirstRun: cfg.NotifyOnFirstRun}
}

// Decide 根据变更结果决定是否通知；返回 nil 表示抑制
func (p *Policy) Decide(result events.ChangeResult, cur status.Snapshot) *Decision {
	switch result {
	case events.NoChange:
		return nil
	case events.FirstObservation:
		if !p.notifyOnFirstRun {
			return nil
		}
	}

	level := LevelOK
	if cur.IsDown {
		level = LevelCritical
	}

	return &Decision{
		Result:    result,
		Level:     level,
		Verified:  cur.Verified,
		Summary:   p.Order(cur.Services),
		Timestamp: cur.Timestamp,
	}
}

// Order 按配置的优先级排序服务，未命中的服务保持原有顺序排在后面
func (p *Policy) Order(services []status.ServiceStatus) []status.ServiceStatus {
	out := append([]status.ServiceStatus(nil), services...)
	ranks := make(map[string]int, len(out))
	for _, svc := range out {
		ranks[svc.Name] = p.rank(svc.Name)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ranks[out[i].Name] < ranks[out[j].Name]
	})
	return out
}

// rank 返回服务在优先级列表中的位置；未命中返回 len(order)
func (p *Policy) rank(name string) int {
	lower := strings.ToLower(name)
	for i, o := range p.order {
		if lower == o || strings.Contains(lower, o) {
			return i
		}
	}
	return len(p.order)
}
