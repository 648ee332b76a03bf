// Package events 提供状态变更检测
// 比较新旧快照，决定本轮是否需要处理
package events

// ChangeResult 变更检测结果
type ChangeResult int

const (
	NoChange         ChangeResult = iota // 与上次一致，抑制通知
	Changed                              // 整体状态、服务标签或可信度发生变化
	FirstObservation                     // 首次观测（无历史快照）
)

func (r ChangeResult) String() string {
	switch r {
	case Changed:
		return "changed"
	case FirstObservation:
		return "first_observation"
	default:
		return "no_change"
	}
}

// ShouldAct 是否需要进入通知决策
func (r ChangeResult) ShouldAct() bool {
	return r != NoChange
}

// ServiceChange 单个服务的标签变更
// Before 为空表示新增服务，After 为空表示服务消失
type ServiceChange struct {
	Name   string `json:"name"`
	Before string `json:"before"`
	After  string `json:"after"`
}
