package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"statuspulse/internal/logger"
)

// Watcher 配置文件监听器（loop 模式热更新）
type Watcher struct {
	loader       *Loader
	filename     string
	watcher      *fsnotify.Watcher
	onReload     func(*AppConfig)
	debounceTime time.Duration
}

// NewWatcher 创建配置监听器
func NewWatcher(loader *Loader, filename string, onReload func(*AppConfig)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		loader:       loader,
		filename:     filename,
		watcher:      watcher,
		onReload:     onReload,
		debounceTime: 200 * time.Millisecond, // 防抖延迟
	}, nil
}

// Run 启动监听并阻塞到 ctx 结束（监听父目录以兼容不同编辑器）
func (w *Watcher) Run(ctx context.Context) error {
	// 监听父目录而非文件本身，避免编辑器 rename 导致监听失效
	dir := filepath.Dir(w.filename)
	targetFile := filepath.Clean(w.filename)
	envFile := filepath.Join(dir, ".env")
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return err
	}

	logger.Info("config", "开始监听配置文件", "file", w.filename, "dir", dir)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("config", "配置监听器已停止")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			// 只关心配置文件与同目录 .env 的写入/创建/重命名事件
			eventPath := filepath.Clean(event.Name)
			if eventPath != targetFile && eventPath != envFile {
				continue
			}

			// vim/nano 等编辑器使用 rename 保存
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounceTime, func() {
					logger.Info("config", "检测到配置文件变更，正在重载")
					w.reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			// 不使用 log.Fatal，只记录错误
			logger.Error("config", "监听错误", "error", err)
		}
	}
}

// reload 重新加载配置
func (w *Watcher) reload() {
	newConfig, err := w.loader.LoadOrRollback(w.filename)
	if err != nil {
		logger.Error("config", "重载失败", "error", err)
		return
	}

	logger.Info("config", "热更新成功", "strategy", newConfig.Acquisition.Strategy, "interval", newConfig.IntervalDuration)

	if w.onReload != nil {
		w.onReload(newConfig)
	}
}
