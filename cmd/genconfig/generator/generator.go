package generator

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// TemplateRegistry 模板注册表
type TemplateRegistry struct {
	templates map[string]string
}

// NewTemplateRegistry 创建新的模板注册表
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: map[string]string{
			"steamstat":         steamstatTemplate,
			"steamstat-browser": steamstatBrowserTemplate,
			"json-api":          jsonAPITemplate,
			"regex":             regexTemplate,
		},
	}
}

// GetTemplate 获取模板
func (tr *TemplateRegistry) GetTemplate(name string) (string, error) {
	template, ok := tr.templates[name]
	if !ok {
		return "", fmt.Errorf("未知的模板: %s", name)
	}
	return template, nil
}

// ListTemplates 列出所有可用模板
func (tr *TemplateRegistry) ListTemplates() []string {
	var names []string
	for name := range tr.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	validModes      = map[string]bool{"once": true, "loop": true}
	validStrategies = map[string]bool{"html": true, "browser": true, "regex": true, "json": true}
	validStorage    = map[string]bool{"file": true, "sqlite": true}
)

// ErrExists 目标文件已存在且未指定覆盖
var ErrExists = errors.New("配置文件已存在")

// Options 交互式生成的配置项
type Options struct {
	Mode     string
	Interval string
	URL      string
	Strategy string

	// html / browser
	Row    string
	Name   string
	Status string

	// regex
	Pattern string

	// json
	ItemsKey string

	Order       []string
	StorageType string
	Chart       bool
}

func isValidEnum(value string, allowed map[string]bool) bool {
	_, ok := allowed[value]
	return ok
}

// quoteYAML 将字符串安全地编码为 YAML 双引号标量（ASCII-only escaping）
func quoteYAML(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			// 控制字符做最小化转义，避免破坏 YAML 结构
			if ch < 0x20 {
				b.WriteString(fmt.Sprintf(`\x%02x`, ch))
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// GenerateConfig 生成 YAML 配置（带枚举校验 + YAML 转义）
func GenerateConfig(opts Options) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	strategy := strings.ToLower(strings.TrimSpace(opts.Strategy))
	storageType := strings.ToLower(strings.TrimSpace(opts.StorageType))
	interval := strings.TrimSpace(opts.Interval)
	url := strings.TrimSpace(opts.URL)

	if mode == "" {
		mode = "once"
	}
	if !isValidEnum(mode, validModes) {
		return "", fmt.Errorf("mode '%s' 无效，必须是 once/loop", mode)
	}
	if interval == "" {
		interval = "5m"
	}
	if strategy == "" {
		strategy = "html"
	}
	if !isValidEnum(strategy, validStrategies) {
		return "", fmt.Errorf("strategy '%s' 无效，必须是 html/browser/regex/json", strategy)
	}
	if storageType == "" {
		storageType = "file"
	}
	if !isValidEnum(storageType, validStorage) {
		return "", fmt.Errorf("storage '%s' 无效，必须是 file/sqlite", storageType)
	}
	if url == "" {
		return "", fmt.Errorf("url 不能为空")
	}

	var sb strings.Builder

	sb.WriteString("# statuspulse 配置文件\n")
	sb.WriteString("# 由 genconfig 工具生成\n")
	sb.WriteString("# Webhook 地址请通过环境变量 STATUSPULSE_WEBHOOK_URL 或同目录 .env 注入\n\n")
	sb.WriteString(fmt.Sprintf("mode: %s\n", quoteYAML(mode)))
	sb.WriteString(fmt.Sprintf("interval: %s\n", quoteYAML(interval)))

	sb.WriteString("\n# 服务展示优先级\n")
	sb.WriteString("services:\n")
	if len(opts.Order) == 0 {
		sb.WriteString("  order: []\n")
	} else {
		sb.WriteString("  order:\n")
		for _, o := range opts.Order {
			if o = strings.TrimSpace(o); o != "" {
				sb.WriteString("    - " + quoteYAML(o) + "\n")
			}
		}
	}

	sb.WriteString("\n# 状态采集\n")
	sb.WriteString("acquisition:\n")
	sb.WriteString("  strategy: " + quoteYAML(strategy) + "\n")
	sb.WriteString("  url: " + quoteYAML(url) + "\n")
	sb.WriteString("  timeout: \"60s\"\n")
	sb.WriteString("  retries: 2\n")

	switch strategy {
	case "html", "browser":
		if opts.Row == "" || opts.Name == "" || opts.Status == "" {
			return "", fmt.Errorf("%s 策略需要 row/name/status 选择器", strategy)
		}
		sb.WriteString("  html:\n")
		sb.WriteString("    row: " + quoteYAML(opts.Row) + "\n")
		sb.WriteString("    name: " + quoteYAML(opts.Name) + "\n")
		sb.WriteString("    status: " + quoteYAML(opts.Status) + "\n")
	case "regex":
		if !strings.Contains(opts.Pattern, "?P<name>") || !strings.Contains(opts.Pattern, "?P<status>") {
			return "", fmt.Errorf("regex 策略需要包含命名分组 (?P<name>...) 与 (?P<status>...)")
		}
		sb.WriteString("  regex:\n")
		sb.WriteString("    pattern: " + quoteYAML(opts.Pattern) + "\n")
	case "json":
		sb.WriteString("  json:\n")
		sb.WriteString("    items_key: " + quoteYAML(opts.ItemsKey) + "\n")
	}

	sb.WriteString("\nnotify:\n")
	sb.WriteString("  first_run: true\n")

	sb.WriteString("\nchart:\n")
	sb.WriteString(fmt.Sprintf("  enabled: %t\n", opts.Chart))

	sb.WriteString("\n# 存储配置\n")
	sb.WriteString("storage:\n")
	sb.WriteString("  type: " + quoteYAML(storageType) + "\n")
	switch storageType {
	case "file":
		sb.WriteString("  file:\n")
		sb.WriteString("    dir: \"./data\"\n") // 固定值无需转义
	case "sqlite":
		sb.WriteString("  sqlite:\n")
		sb.WriteString("    path: \"statuspulse.db\"\n") // 固定值无需转义
	}

	if mode == "loop" {
		sb.WriteString("\napi:\n")
		sb.WriteString("  enabled: true\n")
		sb.WriteString("  addr: \":8080\"\n")
	}

	return sb.String(), nil
}

// GenerateFromTemplate 从模板生成配置
func GenerateFromTemplate(templateName string) (string, error) {
	registry := NewTemplateRegistry()
	return registry.GetTemplate(templateName)
}

// WriteConfig 写入配置到文件；目标已存在且 force=false 时返回 ErrExists
func WriteConfig(config, filepath string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(filepath, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s（使用 -force 覆盖）", ErrExists, filepath)
		}
		return err
	}
	if _, err := f.WriteString(config); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const steamstatTemplate = `# steamstat.us 监测配置（静态 HTML）
mode: "once"
interval: "5m"

services:
  order:
    - "Steam Connection Managers"
    - "Steam Store"
    - "Steam Community"

acquisition:
  strategy: "html"
  url: "https://steamstat.us/"
  timeout: "60s"
  retries: 2
  html:
    row: ".service"
    name: ".name"
    status: ".status"

notify:
  first_run: true
  title: "Steam Status"

chart:
  enabled: true

storage:
  type: "file"
  file:
    dir: "./data"
`

const steamstatBrowserTemplate = `# steamstat.us 监测配置（无头浏览器渲染，需预先安装 Playwright 浏览器）
mode: "loop"
interval: "5m"

services:
  order:
    - "Steam Connection Managers"

acquisition:
  strategy: "browser"
  url: "https://steamstat.us/"
  timeout: "90s"
  retries: 1
  html:
    row: "div.status-row"
    name: "span.status-name"
    status: "span.status-indicator"
    status_classes:
      green: "Normal"
      yellow: "Minor issues"
      red: "Offline"
  browser:
    wait_selector: "div.status-row"
    headless: true

notify:
  title: "Steam Status"

chart:
  enabled: true

delivery:
  breaker:
    max_failures: 3
    open_timeout: "10m"

storage:
  type: "sqlite"
  sqlite:
    path: "statuspulse.db"

api:
  enabled: true
  addr: ":8080"
`

const jsonAPITemplate = `# JSON 接口监测配置
# 形如 {"services": [["cms", "good", "87% online"], ...]}
mode: "once"
interval: "5m"

services:
  order:
    - "Steam Connection Managers"
  names:
    cms: "Steam Connection Managers"
    store: "Steam Store"
    community: "Steam Community"

acquisition:
  strategy: "json"
  url: "https://example.com/status.json"
  json:
    items_key: "services"
    name_index: 0
    label_index: 2

storage:
  type: "file"
  file:
    dir: "./data"
`

const regexTemplate = `# 纯文本 / 简单 HTML 的正则监测配置
mode: "once"
interval: "5m"

acquisition:
  strategy: "regex"
  url: "https://example.com/status.txt"
  regex:
    pattern: "(?m)^(?P<name>[^:]+):\\s*(?P<status>.+)$"

storage:
  type: "file"
  file:
    dir: "./data"
`
