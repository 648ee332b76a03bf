package generator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"statuspulse/internal/config"
)

func TestGenerateConfig(t *testing.T) {
	opts := Options{
		Mode:        "loop",
		Interval:    "2m",
		URL:         "https://steamstat.us/",
		Strategy:    "html",
		Row:         ".service",
		Name:        ".name",
		Status:      ".status",
		Order:       []string{"Steam Connection Managers", " ", "Steam \"Store\""},
		StorageType: "sqlite",
		Chart:       true,
	}

	out, err := GenerateConfig(opts)
	if err != nil {
		t.Fatalf("GenerateConfig 失败: %v", err)
	}

	// 生成结果必须能被正式的配置解析器接受
	cfg, err := config.Parse([]byte(out), "")
	if err != nil {
		t.Fatalf("生成的配置无法解析: %v\n%s", err, out)
	}
	if cfg.Mode != config.ModeLoop || cfg.Interval != "2m" {
		t.Errorf("mode/interval = %s/%s", cfg.Mode, cfg.Interval)
	}
	if cfg.Acquisition.HTML.Row != ".service" || cfg.Acquisition.URL != "https://steamstat.us/" {
		t.Errorf("acquisition = %+v", cfg.Acquisition)
	}
	if len(cfg.Services.Order) != 2 || cfg.Services.Order[1] != `Steam "Store"` {
		t.Errorf("services.order = %q", cfg.Services.Order)
	}
	if cfg.Storage.Type != config.StorageSQLite || !cfg.Chart.Enabled || !cfg.API.Enabled {
		t.Errorf("storage/chart/api = %s/%t/%t", cfg.Storage.Type, cfg.Chart.Enabled, cfg.API.Enabled)
	}
}

func TestGenerateConfigRegexEscaping(t *testing.T) {
	out, err := GenerateConfig(Options{
		URL:      "https://example.com/status.txt",
		Strategy: "regex",
		Pattern:  `(?m)^(?P<name>[^:]+):\s*(?P<status>.+)$`,
	})
	if err != nil {
		t.Fatalf("GenerateConfig 失败: %v", err)
	}
	cfg, err := config.Parse([]byte(out), "")
	if err != nil {
		t.Fatalf("生成的配置无法解析: %v\n%s", err, out)
	}
	if cfg.Acquisition.Regex.Pattern != `(?m)^(?P<name>[^:]+):\s*(?P<status>.+)$` {
		t.Errorf("pattern = %q", cfg.Acquisition.Regex.Pattern)
	}
}

func TestGenerateConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "缺少 url", opts: Options{Row: "a", Name: "b", Status: "c"}, want: "url"},
		{name: "未知策略", opts: Options{URL: "https://x", Strategy: "xpath"}, want: "strategy"},
		{name: "未知模式", opts: Options{URL: "https://x", Mode: "daemon"}, want: "mode"},
		{name: "未知存储", opts: Options{URL: "https://x", StorageType: "redis"}, want: "storage"},
		{name: "缺少选择器", opts: Options{URL: "https://x", Row: ".service"}, want: "row/name/status"},
		{name: "正则缺少分组", opts: Options{URL: "https://x", Strategy: "regex", Pattern: "(.+)"}, want: "命名分组"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateConfig(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestTemplatesParse(t *testing.T) {
	registry := NewTemplateRegistry()
	for _, name := range registry.ListTemplates() {
		t.Run(name, func(t *testing.T) {
			tmpl, err := GenerateFromTemplate(name)
			if err != nil {
				t.Fatalf("生成模板失败: %v", err)
			}
			if _, err := config.Parse([]byte(tmpl), ""); err != nil {
				t.Errorf("模板 %s 无法解析: %v", name, err)
			}
		})
	}
}

func TestGenerateFromTemplateInvalid(t *testing.T) {
	_, err := GenerateFromTemplate("invalid")
	if err == nil {
		t.Error("应该返回错误")
	}
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteConfig("mode: once\n", path, false); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}

	err := WriteConfig("mode: loop\n", path, false)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}

	if err := WriteConfig("mode: loop\n", path, true); err != nil {
		t.Fatalf("覆盖写入失败: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if string(data) != "mode: loop\n" {
		t.Errorf("内容 = %q", data)
	}
}
