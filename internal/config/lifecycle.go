package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"statuspulse/internal/logger"
)

// ApplyEnvOverrides 应用环境变量覆盖
// Webhook 支持 STATUSPULSE_WEBHOOK_URL（优先）或 WEBHOOK_URL（兼容旧脚本）
// 存储配置格式：STATUSPULSE_STORAGE_TYPE, STATUSPULSE_POSTGRES_HOST 等
func (c *AppConfig) ApplyEnvOverrides() {
	if v := os.Getenv("STATUSPULSE_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("STATUSPULSE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if v := os.Getenv("STATUSPULSE_WEBHOOK_URL"); v != "" {
		c.Delivery.WebhookURL = v
	} else if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Delivery.WebhookURL = v
	}

	if v := os.Getenv("STATUSPULSE_STATUS_URL"); v != "" {
		c.Acquisition.URL = v
	}

	// 存储配置环境变量覆盖
	if v := os.Getenv("STATUSPULSE_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("STATUSPULSE_STATE_DIR"); v != "" {
		c.Storage.File.Dir = v
	}
	if v := os.Getenv("STATUSPULSE_SQLITE_PATH"); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv("STATUSPULSE_POSTGRES_HOST"); v != "" {
		c.Storage.Postgres.Host = v
	}
	if v := os.Getenv("STATUSPULSE_POSTGRES_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Storage.Postgres.Port = port
		}
	}
	if v := os.Getenv("STATUSPULSE_POSTGRES_USER"); v != "" {
		c.Storage.Postgres.User = v
	}
	if v := os.Getenv("STATUSPULSE_POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv("STATUSPULSE_POSTGRES_DATABASE"); v != "" {
		c.Storage.Postgres.Database = v
	}
	if v := os.Getenv("STATUSPULSE_POSTGRES_SSLMODE"); v != "" {
		c.Storage.Postgres.SSLMode = v
	}
}

// Clone 深拷贝配置（用于热更新回滚）
func (c *AppConfig) Clone() *AppConfig {
	clone := *c

	clone.Services.Order = append([]string(nil), c.Services.Order...)
	clone.Services.Names = cloneStringMap(c.Services.Names)
	clone.Severity.BadKeywords = append([]string(nil), c.Severity.BadKeywords...)
	clone.Acquisition.Headers = cloneStringMap(c.Acquisition.Headers)
	clone.Acquisition.HTML.StatusClasses = cloneStringMap(c.Acquisition.HTML.StatusClasses)
	clone.Acquisition.Retries = cloneIntPtr(c.Acquisition.Retries)
	clone.Acquisition.JSON.LabelIndex = cloneIntPtr(c.Acquisition.JSON.LabelIndex)
	clone.Acquisition.Browser.Headless = cloneBoolPtr(c.Acquisition.Browser.Headless)
	clone.Notify.FirstRun = cloneBoolPtr(c.Notify.FirstRun)
	clone.Storage.ResetOnCorrupt = cloneBoolPtr(c.Storage.ResetOnCorrupt)

	return &clone
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cloneIntPtr 深拷贝 *int 指针
func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneBoolPtr 深拷贝 *bool 指针
func cloneBoolPtr(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Loader 配置加载器，保留最近一次成功加载的配置用于回滚
type Loader struct {
	mu      sync.RWMutex
	current *AppConfig
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{}
}

// Load 从文件加载配置：解析 YAML → 环境变量覆盖 → 规范化校验
func (l *Loader) Load(filename string) (*AppConfig, error) {
	cfg, err := parseFile(filename)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg.Clone(), nil
}

// LoadOrRollback 重新加载配置，失败时保持上一次成功的配置不变
func (l *Loader) LoadOrRollback(filename string) (*AppConfig, error) {
	cfg, err := parseFile(filename)
	if err != nil {
		l.mu.RLock()
		hasPrev := l.current != nil
		l.mu.RUnlock()
		if hasPrev {
			logger.Warn("config", "新配置无效，继续使用旧配置", "error", err)
		}
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg.Clone(), nil
}

// Current 返回最近一次成功加载的配置副本（未加载时返回 nil）
func (l *Loader) Current() *AppConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return nil
	}
	return l.current.Clone()
}

func parseFile(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data, filepath.Dir(filename))
}

// Parse 解析 YAML 配置内容
// configDir 用于定位同目录下的 .env（为空时跳过）
func Parse(data []byte, configDir string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if configDir != "" {
		res, err := loadDotenv(configDir)
		switch {
		case err != nil:
			logger.Warn("config", "加载 .env 失败", "error", err)
		case res != nil:
			res.log()
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}
