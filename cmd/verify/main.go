package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"statuspulse/internal/config"
	"statuspulse/internal/monitor"
	"statuspulse/internal/policy"
	"statuspulse/internal/status"
)

// verify 只执行一次采集与解析并打印结果，不读写状态、不发送通知
// 用于调试选择器 / 正则 / JSON 字段配置
func main() {
	configFile := flag.String("config", "config.yaml", "Config file path")
	dump := flag.String("dump", "", "Save fetched page to this path (overrides acquisition.dump_path)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	// 加载配置（同目录 .env 由 loader 处理，不覆盖已有环境变量）
	loader := config.NewLoader()
	cfg, err := loader.Load(*configFile)
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *dump != "" {
		cfg.Acquisition.DumpPath = *dump
	}

	acq := &cfg.Acquisition
	fmt.Printf("🔍 验证采集配置: strategy=%s, url=%s\n", acq.Strategy, acq.URL)
	fmt.Println("========================================")

	if *verbose {
		fmt.Printf("📋 配置信息:\n")
		fmt.Printf("  Timeout: %s, Retries: %d\n", acq.TimeoutDuration, acq.RetryCount)
		fmt.Printf("  Empty Result: %s\n", acq.EmptyResult)
		switch acq.Strategy {
		case config.StrategyHTML, config.StrategyBrowser:
			fmt.Printf("  Row: %s\n  Name: %s\n  Status: %s\n", acq.HTML.Row, acq.HTML.Name, acq.HTML.Status)
			for class, label := range acq.HTML.StatusClasses {
				fmt.Printf("  Class %s → %s\n", class, label)
			}
		case config.StrategyRegex:
			fmt.Printf("  Pattern: %s\n", acq.Regex.Pattern)
		case config.StrategyJSON:
			fmt.Printf("  Items Key: %s\n", acq.JSON.ItemsKey)
		}
		fmt.Printf("  Headers:\n")
		for k, v := range acq.Headers {
			// 隐藏凭据
			if strings.Contains(strings.ToLower(k), "key") || strings.Contains(strings.ToLower(k), "auth") {
				v = v[:min(6, len(v))] + "..."
			}
			fmt.Printf("    %s: %s\n", k, v)
		}
		fmt.Println()
	}

	fetcher, err := monitor.NewAcquirer(acq, cfg.Services.Names)
	if err != nil {
		fmt.Printf("❌ 创建采集器失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("📤 开始采集...")
	start := time.Now()
	readings, err := fetcher.Fetch(context.Background())
	latency := time.Since(start)
	if err != nil {
		fmt.Printf("❌ 采集失败 (reason=%s, %dms): %v\n", monitor.ReasonOf(err), latency.Milliseconds(), err)
		if cfg.Acquisition.DumpPath != "" {
			fmt.Printf("ℹ️  原始页面已保存到 %s\n", cfg.Acquisition.DumpPath)
		}
		os.Exit(1)
	}

	snap := status.NewSnapshot(readings, time.Now(), true, status.NewClassifier(cfg.Severity.BadKeywords))
	ordered := policy.New(policy.Config{Order: cfg.Services.Order}).Order(snap.Services)

	fmt.Printf("\n📥 共 %d 个服务 (%dms):\n", len(ordered), latency.Milliseconds())
	for _, svc := range ordered {
		fmt.Printf("  %s %-40s %-24s [%s]\n", svc.Severity.Emoji(), svc.Name, svc.Label, svc.Severity)
	}
	fmt.Println()

	if snap.IsDown {
		fmt.Printf("🔴 整体状态: 故障 (%s)\n", strings.Join(snap.BadServices(), ", "))
	} else if snap.HasDegraded() {
		fmt.Println("🟡 整体状态: 降级")
	} else {
		fmt.Println("✅ 整体状态: 正常")
	}
}
