package notifier

import (
	"fmt"
	"strings"
	"time"

	"statuspulse/internal/policy"
	"statuspulse/internal/status"
)

// 嵌入消息颜色
const (
	ColorRed   = 0xE74C3C // CRITICAL
	ColorAmber = 0xF1C40F // 存在降级或数据未验证
	ColorGreen = 0x2ECC71 // 全部正常

	chartFileName = "outages.png"

	// Discord 嵌入描述长度上限
	maxDescriptionLen = 4096
)

// Payload Discord 兼容的 Webhook 消息体
type Payload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

// Embed 嵌入消息
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// Color 按决策选择颜色：CRITICAL 红色，降级或未验证琥珀色，其余绿色
func Color(d *policy.Decision) int {
	switch {
	case d.Level == policy.LevelCritical:
		return ColorRed
	case d.Degraded():
		return ColorAmber
	default:
		return ColorGreen
	}
}

// BuildPayload 构造通知消息（withChart 时嵌入附件图片）
func BuildPayload(d *policy.Decision, title, username string, withChart bool) Payload {
	embed := Embed{
		Title:       headline(d, title),
		Description: truncate(describe(d.Summary), maxDescriptionLen),
		Color:       Color(d),
		Timestamp:   d.Timestamp.UTC().Format(time.RFC3339),
	}

	if len(d.Changes) > 0 {
		embed.Fields = append(embed.Fields, EmbedField{Name: "变更", Value: truncate(describeChanges(d), 1024)})
	}
	if d.History != nil {
		embed.Fields = append(embed.Fields, EmbedField{Name: "故障历史", Value: describeHistory(d)})
	}
	if !d.Verified {
		embed.Footer = &EmbedFooter{Text: "⚠️ 本轮采集失败，状态未经验证（沿用上次结果）"}
	}
	if withChart {
		embed.Image = &EmbedImage{URL: "attachment://" + chartFileName}
	}

	return Payload{Username: username, Embeds: []Embed{embed}}
}

func headline(d *policy.Decision, title string) string {
	switch {
	case d.Level == policy.LevelCritical:
		return "🔴 " + title + " · 服务故障"
	case !d.Verified:
		return "⚪ " + title + " · 状态未验证"
	case d.Degraded():
		return "🟡 " + title + " · 部分服务波动"
	default:
		return "🟢 " + title + " · 全部正常"
	}
}

// describe 每个服务一行：emoji **名称**: 标签
func describe(services []status.ServiceStatus) string {
	if len(services) == 0 {
		return "（状态页未返回任何服务）"
	}
	var b strings.Builder
	for _, svc := range services {
		fmt.Fprintf(&b, "%s **%s**: %s\n", svc.Severity.Emoji(), escapeMarkdown(svc.Name), escapeMarkdown(svc.Label))
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeChanges(d *policy.Decision) string {
	var b strings.Builder
	for _, c := range d.Changes {
		before, after := c.Before, c.After
		if before == "" {
			before = "（新增）"
		}
		if after == "" {
			after = "（消失）"
		}
		fmt.Fprintf(&b, "%s: %s → %s\n", escapeMarkdown(c.Name), escapeMarkdown(before), escapeMarkdown(after))
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeHistory(d *policy.Decision) string {
	now := d.Timestamp
	day := d.History.Downtime(now, 24*time.Hour)
	week := d.History.Downtime(now, 7*24*time.Hour)

	line := fmt.Sprintf("近 24 小时故障 %s，近 7 天 %s，共 %d 次",
		formatDuration(day), formatDuration(week), len(d.History.Intervals))
	if open, ok := d.History.Open(); ok {
		line += fmt.Sprintf("\n故障持续中：自 %s 起（%s）",
			open.Start.UTC().Format("2006-01-02 15:04 MST"), formatDuration(open.Duration(now)))
	}
	return line
}

// formatDuration 输出形如 "1h05m" / "12m" / "0m" 的时长
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

var markdownEscaper = strings.NewReplacer(`*`, `\*`, `_`, `\_`, "`", "\\`", `~`, `\~`, `|`, `\|`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
