package config

import (
	"fmt"
	"strings"
	"time"
)

// 存储类型
const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// StorageConfig 存储配置
type StorageConfig struct {
	Type string `yaml:"type" json:"type"` // "file"（默认）、"sqlite" 或 "postgres"

	// JSON 文件配置
	File FileConfig `yaml:"file" json:"file"`

	// SQLite 配置
	SQLite SQLiteConfig `yaml:"sqlite" json:"sqlite"`

	// PostgreSQL 配置
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`

	// 获取状态锁的最长等待时间（默认 "30s"）
	LockTimeout         string        `yaml:"lock_timeout" json:"lock_timeout"`
	LockTimeoutDuration time.Duration `yaml:"-" json:"-"`

	// 持久化状态损坏时是否按首次运行处理（默认 true）
	// 设为 false 时直接失败退出，保留现场
	ResetOnCorrupt *bool `yaml:"reset_on_corrupt" json:"reset_on_corrupt"`
}

// ShouldResetOnCorrupt 返回状态损坏时是否重置
func (c *StorageConfig) ShouldResetOnCorrupt() bool {
	if c.ResetOnCorrupt == nil {
		return true
	}
	return *c.ResetOnCorrupt
}

// FileConfig JSON 文件存储配置
type FileConfig struct {
	Dir string `yaml:"dir" json:"dir"` // 状态文件目录（默认 "./data"）
}

// SQLiteConfig SQLite 配置
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"` // 数据库文件路径
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"-"` // 不输出到 JSON
	Database        string `yaml:"database" json:"database"`
	SSLMode         string `yaml:"sslmode" json:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// 状态表名前缀，多个实例共用一个库时区分（默认 "statuspulse"）
	TablePrefix string `yaml:"table_prefix" json:"table_prefix"`
}

// Normalize 规范化存储配置（填充默认值）
func (c *StorageConfig) Normalize() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = StorageFile
	}

	switch c.Type {
	case StorageFile:
		if strings.TrimSpace(c.File.Dir) == "" {
			c.File.Dir = "./data"
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			c.SQLite.Path = "statuspulse.db"
		}
	case StoragePostgres:
		if c.Postgres.Host == "" {
			c.Postgres.Host = "localhost"
		}
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 4
		}
		if c.Postgres.ConnMaxLifetime == "" {
			c.Postgres.ConnMaxLifetime = "1h"
		}
		if c.Postgres.TablePrefix == "" {
			c.Postgres.TablePrefix = "statuspulse"
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres.database 是必需的")
		}
		if !validIdentifier(c.Postgres.TablePrefix) {
			return fmt.Errorf("storage.postgres.table_prefix 只能包含小写字母、数字和下划线: %s", c.Postgres.TablePrefix)
		}
	default:
		return fmt.Errorf("storage.type 仅支持 file / sqlite / postgres，当前值: %s", c.Type)
	}

	if strings.TrimSpace(c.LockTimeout) == "" {
		c.LockTimeout = "30s"
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.LockTimeout))
	if err != nil {
		return fmt.Errorf("storage.lock_timeout 解析失败: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("storage.lock_timeout 必须 > 0")
	}
	c.LockTimeoutDuration = d

	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}
