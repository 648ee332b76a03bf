// Package status 定义单次巡检的数据模型：服务状态、严重程度与快照
package status

import (
	"regexp"
	"strings"
)

// Severity 单个服务的严重程度
type Severity string

const (
	SeverityOK         Severity = "OK"         // 正常
	SeverityDegraded   Severity = "DEGRADED"   // 降级（标签含百分比，如 "87% Online"）
	SeverityBad        Severity = "BAD"        // 故障（命中坏关键词）
	SeverityUnverified Severity = "UNVERIFIED" // 未验证（采集失败后沿用旧数据）
)

// DefaultBadKeywords 默认坏关键词（大小写不敏感，子串匹配）
var DefaultBadKeywords = []string{"down", "offline", "outage", "major", "problem"}

// percentToken 匹配标签中的百分比，如 "87%"、"99.5 %"
var percentToken = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*%`)

// Rank 严重程度排序值，用于计算区间内的峰值
// OK < UNVERIFIED < DEGRADED < BAD
func (s Severity) Rank() int {
	switch s {
	case SeverityBad:
		return 3
	case SeverityDegraded:
		return 2
	case SeverityUnverified:
		return 1
	default:
		return 0
	}
}

// Emoji 用于消息展示的状态图标
func (s Severity) Emoji() string {
	switch s {
	case SeverityBad:
		return "🔴"
	case SeverityDegraded:
		return "🟡"
	case SeverityUnverified:
		return "⚪"
	default:
		return "🟢"
	}
}

// Classifier 根据状态标签推导严重程度
type Classifier struct {
	badKeywords []string
}

// NewClassifier 创建分类器；keywords 为空时使用 DefaultBadKeywords
func NewClassifier(keywords []string) *Classifier {
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	if len(normalized) == 0 {
		normalized = append(normalized, DefaultBadKeywords...)
	}
	return &Classifier{badKeywords: normalized}
}

// Classify 推导严重程度
//
// 判定顺序：
//   - 命中任一坏关键词 → BAD
//   - 含百分比 → DEGRADED
//   - 样本未验证 → UNVERIFIED
//   - 其余 → OK
func (c *Classifier) Classify(label string, verified bool) Severity {
	lower := strings.ToLower(label)
	for _, k := range c.badKeywords {
		if strings.Contains(lower, k) {
			return SeverityBad
		}
	}
	if percentToken.MatchString(label) {
		return SeverityDegraded
	}
	if !verified {
		return SeverityUnverified
	}
	return SeverityOK
}
