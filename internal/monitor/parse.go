package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"statuspulse/internal/config"
	"statuspulse/internal/status"
)

// parser 把状态页原文解析为有序的 Reading 列表
// 没有任何服务时返回空列表而非错误，空结果由 Acquirer 按策略处理
type parser interface {
	parse(body []byte) ([]status.Reading, error)
}

// ===== html =====

type htmlParser struct {
	row, name, status cascadia.Selector
	statusClasses     map[string]string
}

func newHTMLParser(cfg *config.HTMLStrategyConfig) (*htmlParser, error) {
	row, err := compileSelector(cfg.Row)
	if err != nil {
		return nil, fmt.Errorf("html.row: %w", err)
	}
	name, err := compileSelector(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("html.name: %w", err)
	}
	st, err := compileSelector(cfg.Status)
	if err != nil {
		return nil, fmt.Errorf("html.status: %w", err)
	}
	return &htmlParser{row: row, name: name, status: st, statusClasses: cfg.StatusClasses}, nil
}

func (p *htmlParser) parse(body []byte) ([]status.Reading, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}

	var readings []status.Reading
	for _, row := range cascadia.QueryAll(doc, p.row) {
		nameNode := cascadia.Query(row, p.name)
		statusNode := cascadia.Query(row, p.status)
		if nameNode == nil || statusNode == nil {
			continue
		}
		name := textContent(nameNode)
		label := p.label(statusNode)
		if name == "" || label == "" {
			continue
		}
		readings = append(readings, status.Reading{Name: name, Label: label})
	}
	return readings, nil
}

// label 优先按指示器 class 推导标签，未命中时取元素文本
func (p *htmlParser) label(n *html.Node) string {
	if len(p.statusClasses) > 0 {
		for _, c := range strings.Fields(attr(n, "class")) {
			if l, ok := p.statusClasses[c]; ok {
				return l
			}
		}
	}
	return textContent(n)
}

// ===== regex =====

type regexParser struct {
	re               *regexp.Regexp
	nameIdx, statIdx int
}

func newRegexParser(cfg *config.RegexStrategyConfig) (*regexParser, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("regex.pattern: %w", err)
	}
	return &regexParser{re: re, nameIdx: re.SubexpIndex("name"), statIdx: re.SubexpIndex("status")}, nil
}

func (p *regexParser) parse(body []byte) ([]status.Reading, error) {
	var readings []status.Reading
	for _, m := range p.re.FindAllSubmatch(body, -1) {
		name := strings.TrimSpace(html.UnescapeString(string(m[p.nameIdx])))
		label := strings.TrimSpace(html.UnescapeString(string(m[p.statIdx])))
		if name == "" || label == "" {
			continue
		}
		readings = append(readings, status.Reading{Name: name, Label: label})
	}
	return readings, nil
}

// ===== json =====

type jsonParser struct {
	cfg *config.JSONStrategyConfig
}

func (p *jsonParser) parse(body []byte) ([]status.Reading, error) {
	raw := json.RawMessage(body)
	if p.cfg.ItemsKey != "" {
		for _, key := range strings.Split(p.cfg.ItemsKey, ".") {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, fmt.Errorf("items_key %q: 上层不是对象: %w", p.cfg.ItemsKey, err)
			}
			next, ok := obj[key]
			if !ok {
				return nil, fmt.Errorf("items_key %q: 缺少字段 %q", p.cfg.ItemsKey, key)
			}
			raw = next
		}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("响应为空")
	}
	switch trimmed[0] {
	case '{':
		return p.parseObject(trimmed)
	case '[':
		return p.parseArray(trimmed)
	case 'n':
		// null 视为无服务
		return nil, nil
	default:
		return nil, fmt.Errorf("items 必须是对象或数组")
	}
}

// parseObject 处理 {"id": label | {...} | [...]}，按键在原文中的顺序输出
func (p *jsonParser) parseObject(raw []byte) ([]status.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}

	var readings []status.Reading
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("解析 JSON 失败: %w", err)
		}
		name, _ := tok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("解析 %q 失败: %w", name, err)
		}

		var label string
		switch val := v.(type) {
		case map[string]any:
			label = scalar(val[p.cfg.LabelField])
		case []any:
			label = index(val, *p.cfg.LabelIndex)
		default:
			label = scalar(val)
		}
		readings = appendReading(readings, name, label)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}
	return readings, nil
}

// parseArray 处理对象数组与数组数组
func (p *jsonParser) parseArray(raw []byte) ([]status.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}

	var readings []status.Reading
	for i, item := range items {
		switch val := item.(type) {
		case map[string]any:
			readings = appendReading(readings, scalar(val[p.cfg.NameField]), scalar(val[p.cfg.LabelField]))
		case []any:
			readings = appendReading(readings, index(val, p.cfg.NameIndex), index(val, *p.cfg.LabelIndex))
		default:
			return nil, fmt.Errorf("第 %d 项既不是对象也不是数组", i)
		}
	}
	return readings, nil
}

func appendReading(readings []status.Reading, name, label string) []status.Reading {
	name = strings.TrimSpace(name)
	label = strings.TrimSpace(label)
	if name == "" || label == "" {
		return readings
	}
	return append(readings, status.Reading{Name: name, Label: label})
}

func index(arr []any, i int) string {
	if i < 0 || i >= len(arr) {
		return ""
	}
	return scalar(arr[i])
}

// scalar 把 JSON 标量转为标签文本，复合值返回空串
func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// newParser 按策略创建解析器（browser 渲染后复用 html 解析）
func newParser(cfg *config.AcquisitionConfig) (parser, error) {
	switch cfg.Strategy {
	case config.StrategyHTML, config.StrategyBrowser:
		return newHTMLParser(&cfg.HTML)
	case config.StrategyRegex:
		return newRegexParser(&cfg.Regex)
	case config.StrategyJSON:
		if cfg.JSON.LabelIndex == nil {
			idx := 1
			cfg.JSON.LabelIndex = &idx
		}
		return &jsonParser{cfg: &cfg.JSON}, nil
	default:
		return nil, fmt.Errorf("不支持的采集策略: %s", cfg.Strategy)
	}
}
