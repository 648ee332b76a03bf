package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"statuspulse/internal/logger"
)

const dotenvFileName = ".env"

// dotenvResult 一次 .env 加载的结果，只记录 key 不记录值
type dotenvResult struct {
	Path    string
	Applied []string // 写入进程环境
	Skipped []string // 进程环境已存在，未覆盖
	Ignored []string // 非 STATUSPULSE_* / WEBHOOK_URL
}

// loadDotenv 读取配置目录下的 .env，把本程序识别的变量写入进程环境
//
// cron 场景下 Webhook 地址通常放在这里；容器/CI 应直接注入环境变量。
// 进程环境优先，文件不存在时返回 (nil, nil)。
func loadDotenv(configDir string) (*dotenvResult, error) {
	path := filepath.Join(configDir, dotenvFileName)
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("加载 %s 失败: %w", path, err)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	res := &dotenvResult{Path: path}
	for _, k := range keys {
		if !isStatusPulseEnv(k) {
			res.Ignored = append(res.Ignored, k)
			continue
		}
		if _, exists := os.LookupEnv(k); exists {
			res.Skipped = append(res.Skipped, k)
			continue
		}
		if err := os.Setenv(k, vars[k]); err != nil {
			return nil, fmt.Errorf("设置环境变量 %s 失败: %w", k, err)
		}
		res.Applied = append(res.Applied, k)
	}
	return res, nil
}

func isStatusPulseEnv(key string) bool {
	return strings.HasPrefix(key, "STATUSPULSE_") || key == "WEBHOOK_URL"
}

// webhookFromDotenv Webhook 地址是否由本次 .env 提供
func (r *dotenvResult) webhookFromDotenv() bool {
	return slices.Contains(r.Applied, "STATUSPULSE_WEBHOOK_URL") ||
		(slices.Contains(r.Applied, "WEBHOOK_URL") && os.Getenv("STATUSPULSE_WEBHOOK_URL") == "")
}

func (r *dotenvResult) log() {
	logger.Info("config", "已加载 .env", "path", r.Path, "applied", r.Applied, "skipped", r.Skipped)
	if r.webhookFromDotenv() {
		logger.Info("config", "Webhook 地址来自 .env", "path", r.Path)
	}
	if len(r.Ignored) > 0 {
		logger.Warn("config", ".env 中有无法识别的变量，已忽略", "keys", r.Ignored)
	}
}
