package events

import "statuspulse/internal/status"

// Detect 检测状态变更
//
// 输入：
//   - prev: 上一次处理过的快照（nil 表示首次运行）
//   - cur: 本轮快照（Verified 可能为 false）
//
// 判定逻辑：
//   - prev 为 nil → FirstObservation
//   - IsDown 翻转、任一服务标签不同（精确字符串比较，含新增/消失）、Verified 翻转 → Changed
//   - 其余 → NoChange
//
// 纯函数，无副作用。标签仅改写措辞也会触发 Changed。
func Detect(prev *status.Snapshot, cur status.Snapshot) ChangeResult {
	if prev == nil {
		return FirstObservation
	}
	if prev.IsDown != cur.IsDown || prev.Verified != cur.Verified {
		return Changed
	}
	if labelsDiffer(*prev, cur) {
		return Changed
	}
	return NoChange
}

func labelsDiffer(prev, cur status.Snapshot) bool {
	if len(prev.Services) != len(cur.Services) {
		return true
	}
	before := prev.Labels()
	for _, svc := range cur.Services {
		label, ok := before[svc.Name]
		if !ok || label != svc.Label {
			return true
		}
	}
	return false
}

// Diff 列出标签发生变化的服务
// 顺序：先按 cur 的顺序列出变化/新增项，再按 prev 的顺序列出消失项
func Diff(prev *status.Snapshot, cur status.Snapshot) []ServiceChange {
	var before map[string]string
	if prev != nil {
		before = prev.Labels()
	}

	var changes []ServiceChange
	for _, svc := range cur.Services {
		label, ok := before[svc.Name]
		if ok && label == svc.Label {
			continue
		}
		changes = append(changes, ServiceChange{Name: svc.Name, Before: label, After: svc.Label})
	}

	if prev != nil {
		after := cur.Labels()
		for _, svc := range prev.Services {
			if _, ok := after[svc.Name]; !ok {
				changes = append(changes, ServiceChange{Name: svc.Name, Before: svc.Label})
			}
		}
	}
	return changes
}
