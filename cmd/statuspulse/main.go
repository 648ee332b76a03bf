package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"statuspulse/internal/api"
	"statuspulse/internal/config"
	"statuspulse/internal/logger"
	"statuspulse/internal/scheduler"
	"statuspulse/internal/storage"
)

func main() {
	os.Exit(run())
}

// run 返回进程退出码：0 表示正常完成（包括无变化与已处理的采集失败），
// 1 表示配置无效、存储不可用等内部错误
func run() int {
	// 配置文件路径
	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(configFile)
	if err != nil {
		logger.Error("main", "无法加载配置文件", "path", configFile, "error", err)
		return 1
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	logger.Info("main", "配置加载完成",
		"mode", cfg.Mode,
		"strategy", cfg.Acquisition.Strategy,
		"url", cfg.Acquisition.URL,
		"interval", cfg.Interval,
		"storage", cfg.Storage.Type,
		"webhook", cfg.Delivery.HasWebhook())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		logger.Error("main", "初始化存储失败", "error", err)
		return 1
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		logger.Error("main", "初始化存储失败", "type", cfg.Storage.Type, "error", err)
		return 1
	}
	logger.Info("main", "存储已就绪", "type", cfg.Storage.Type)

	runner, err := scheduler.NewRunner(cfg, store)
	if err != nil {
		logger.Error("main", "初始化巡检失败", "error", err)
		return 1
	}

	if cfg.Mode == config.ModeLoop {
		return runLoop(ctx, loader, configFile, cfg, runner, store)
	}

	if _, err := runner.RunCycle(ctx); err != nil {
		logger.Error("main", "巡检失败", "error", err)
		return 1
	}
	return 0
}

// runLoop 常驻模式：调度器、状态 API 与配置热更新并行运行，收到信号后优雅退出
func runLoop(ctx context.Context, loader *config.Loader, configFile string, cfg *config.AppConfig,
	runner *scheduler.Runner, store storage.Store) int {
	sched := scheduler.New(runner, store, cfg.IntervalDuration)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(sched, cfg)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	watcher, err := config.NewWatcher(loader, configFile, func(newCfg *config.AppConfig) {
		logger.Configure(newCfg.Log.Level, newCfg.Log.Format)
		if err := sched.UpdateConfig(newCfg); err != nil {
			logger.Warn("main", "热更新失败，继续使用旧配置", "error", err)
			return
		}
		if server != nil {
			server.UpdateConfig(newCfg)
		}
		// 立即触发一次巡检，确保新配置立即生效
		sched.TriggerNow()
	})
	if err != nil {
		logger.Warn("main", "配置监听器创建失败，热更新功能不可用", "error", err)
	} else {
		g.Go(func() error {
			// 热更新不可用不影响巡检
			if err := watcher.Run(gctx); err != nil {
				logger.Warn("main", "配置监听器启动失败，热更新功能不可用", "error", err)
			}
			return nil
		})
		logger.Info("main", "配置热更新已启用")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("main", "服务异常退出", "error", err)
		return 1
	}
	logger.Info("main", "服务已安全退出")
	return 0
}
