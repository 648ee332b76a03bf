package config

import (
	"time"
)

// 运行模式
const (
	ModeOnce = "once" // 单次巡检后退出（由外部 cron 等调度）
	ModeLoop = "loop" // 常驻进程，按 interval 循环巡检
)

// AppConfig 应用配置
type AppConfig struct {
	// 运行模式：once（默认）或 loop
	Mode string `yaml:"mode" json:"mode"`

	// 巡检间隔（仅 loop 模式生效，Go duration 格式，默认 "5m"）
	Interval string `yaml:"interval" json:"interval"`

	// 解析后的巡检间隔（内部使用，不序列化）
	IntervalDuration time.Duration `yaml:"-" json:"-"`

	Log         LogConfig         `yaml:"log" json:"log"`
	Services    ServicesConfig    `yaml:"services" json:"services"`
	Severity    SeverityConfig    `yaml:"severity" json:"severity"`
	Acquisition AcquisitionConfig `yaml:"acquisition" json:"acquisition"`
	History     HistoryConfig     `yaml:"history" json:"history"`
	Notify      NotifyConfig      `yaml:"notify" json:"notify"`
	Delivery    DeliveryConfig    `yaml:"delivery" json:"delivery"`
	Chart       ChartConfig       `yaml:"chart" json:"chart"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	API         APIConfig         `yaml:"api" json:"api"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug/info/warn/error，默认 info
	Format string `yaml:"format" json:"format"` // text/json，默认 text
}

// ServicesConfig 服务展示配置
type ServicesConfig struct {
	// 展示优先级（大小写不敏感，服务名等于或包含该项即命中）
	// 同时作为"从未成功采集"时合成未验证快照的服务名单
	Order []string `yaml:"order" json:"order"`

	// 服务 ID → 展示名（JSON 接口常返回 cms/store 等短 ID）
	Names map[string]string `yaml:"names" json:"names"`
}

// SeverityConfig 严重程度判定配置
type SeverityConfig struct {
	// 坏关键词（大小写不敏感，子串匹配），为空时使用内置默认值
	BadKeywords []string `yaml:"bad_keywords" json:"bad_keywords"`
}

// 空结果处理策略
const (
	EmptyResultFailure = "failure" // 视为采集失败（默认）
	EmptyResultValid   = "valid"   // 视为合法的空快照（IsDown=false）
)

// 采集策略
const (
	StrategyHTML    = "html"
	StrategyRegex   = "regex"
	StrategyJSON    = "json"
	StrategyBrowser = "browser"
)

// AcquisitionConfig 状态采集配置
type AcquisitionConfig struct {
	// 采集策略：html / regex / json / browser
	Strategy string `yaml:"strategy" json:"strategy"`

	// 状态页地址
	URL string `yaml:"url" json:"url"`

	// 单轮采集总超时（含重试，默认 "60s"）
	Timeout         string        `yaml:"timeout" json:"timeout"`
	TimeoutDuration time.Duration `yaml:"-" json:"-"`

	// 额外重试次数（默认 2，0 表示不重试）
	Retries *int `yaml:"retries" json:"retries"`

	// 解析后的重试次数（内部使用）
	RetryCount int `yaml:"-" json:"-"`

	// 重试基础退避（默认 "1s"）与最大退避（默认 "10s"）
	RetryBaseDelay         string        `yaml:"retry_base_delay" json:"retry_base_delay"`
	RetryBaseDelayDuration time.Duration `yaml:"-" json:"-"`
	RetryMaxDelay          string        `yaml:"retry_max_delay" json:"retry_max_delay"`
	RetryMaxDelayDuration  time.Duration `yaml:"-" json:"-"`

	UserAgent string            `yaml:"user_agent" json:"user_agent"`
	Headers   map[string]string `yaml:"headers" json:"headers"`

	// 采集结果为空时的处理：failure（默认）/ valid
	EmptyResult string `yaml:"empty_result" json:"empty_result"`

	// 未验证占位标签（默认 "Estado no verificado"）
	UnverifiedLabel string `yaml:"unverified_label" json:"unverified_label"`

	// 可选：保存最近一次抓取的原始页面，便于排查选择器问题
	DumpPath string `yaml:"dump_path" json:"dump_path"`

	HTML    HTMLStrategyConfig    `yaml:"html" json:"html"`
	Regex   RegexStrategyConfig   `yaml:"regex" json:"regex"`
	JSON    JSONStrategyConfig    `yaml:"json" json:"json"`
	Browser BrowserStrategyConfig `yaml:"browser" json:"browser"`
}

// HTMLStrategyConfig 基于选择器的 HTML 解析
//
// 选择器支持 tag、.class、#id 及其组合（如 div.status-row），
// 以空格分隔表示后代关系（如 ".service .name"）
type HTMLStrategyConfig struct {
	Row    string `yaml:"row" json:"row"`       // 每个服务所在的行元素
	Name   string `yaml:"name" json:"name"`     // 行内的服务名元素
	Status string `yaml:"status" json:"status"` // 行内的状态元素

	// 可选：状态元素 class → 标签（如 green: "Normal"）
	// 配置后优先按 class 推导标签，未命中再取元素文本
	StatusClasses map[string]string `yaml:"status_classes" json:"status_classes"`
}

// RegexStrategyConfig 基于正则的解析（需包含命名分组 name 与 status）
type RegexStrategyConfig struct {
	Pattern string `yaml:"pattern" json:"pattern"`
}

// JSONStrategyConfig 基于 JSON 接口的解析
//
// 支持三种形态（由 items_key 指向的值决定）：
//   - 对象：{"store": "Normal", ...}
//   - 对象数组：[{"name": "...", "status": "..."}]，字段名由 name_field/label_field 指定
//   - 数组数组：[["cms", "good", "87% online"]]，下标由 name_index/label_index 指定
type JSONStrategyConfig struct {
	ItemsKey   string `yaml:"items_key" json:"items_key"`
	NameField  string `yaml:"name_field" json:"name_field"`
	LabelField string `yaml:"label_field" json:"label_field"`
	NameIndex  int    `yaml:"name_index" json:"name_index"`
	LabelIndex *int   `yaml:"label_index" json:"label_index"`
}

// BrowserStrategyConfig 无头浏览器采集（渲染后按 html 选择器解析）
type BrowserStrategyConfig struct {
	// 等待出现的选择器（默认使用 html.row）
	WaitSelector string `yaml:"wait_selector" json:"wait_selector"`

	// 是否无头运行（默认 true）
	Headless *bool `yaml:"headless" json:"headless"`
}

// IsHeadless 返回是否无头运行
func (c *BrowserStrategyConfig) IsHeadless() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

// HistoryConfig 故障区间历史配置
type HistoryConfig struct {
	// 保留窗口（默认 "168h"，即 7 天）
	Retention         string        `yaml:"retention" json:"retention"`
	RetentionDuration time.Duration `yaml:"-" json:"-"`
}

// NotifyConfig 通知策略配置
type NotifyConfig struct {
	// 首次观测是否通知（默认 true）
	FirstRun *bool `yaml:"first_run" json:"first_run"`

	// 消息标题（默认 "Service Status"）
	Title string `yaml:"title" json:"title"`
}

// ShouldNotifyOnFirstRun 返回首次观测是否通知
func (c *NotifyConfig) ShouldNotifyOnFirstRun() bool {
	if c.FirstRun == nil {
		return true
	}
	return *c.FirstRun
}

// DeliveryConfig 通知投递配置（Discord 兼容 Webhook）
type DeliveryConfig struct {
	// Webhook 地址（敏感信息，建议通过环境变量 STATUSPULSE_WEBHOOK_URL 注入）
	WebhookURL string `yaml:"webhook_url" json:"-"`

	// 投递超时（默认 "15s"）
	Timeout         string        `yaml:"timeout" json:"timeout"`
	TimeoutDuration time.Duration `yaml:"-" json:"-"`

	// 消息发送者名称（可选）
	Username string `yaml:"username" json:"username"`

	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
}

// HasWebhook 是否配置了 Webhook
func (c *DeliveryConfig) HasWebhook() bool {
	return c.WebhookURL != ""
}

// BreakerConfig 投递熔断配置（loop 模式下避免持续请求失效的 Webhook）
type BreakerConfig struct {
	// 连续失败多少次后熔断（默认 3）
	MaxFailures uint32 `yaml:"max_failures" json:"max_failures"`

	// 熔断持续时间（默认 "10m"）
	OpenTimeout         string        `yaml:"open_timeout" json:"open_timeout"`
	OpenTimeoutDuration time.Duration `yaml:"-" json:"-"`
}

// ChartConfig 图表配置
type ChartConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Width   int  `yaml:"width" json:"width"`   // 默认 1024
	Height  int  `yaml:"height" json:"height"` // 默认 320

	// 图表覆盖的时间窗口（默认等于 history.retention）
	Window         string        `yaml:"window" json:"window"`
	WindowDuration time.Duration `yaml:"-" json:"-"`
}

// APIConfig 只读状态 API（仅 loop 模式）
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"` // 默认 ":8080"
}
