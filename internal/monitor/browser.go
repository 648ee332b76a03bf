package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"statuspulse/internal/config"
	"statuspulse/internal/logger"
)

// browserSource 用无头 Chromium 渲染状态页后返回 DOM
// 适用于依赖前端脚本填充状态的页面（如 steamstat.us）
type browserSource struct {
	url          string
	userAgent    string
	waitSelector string
	headless     bool
}

func newBrowserSource(cfg *config.AcquisitionConfig) *browserSource {
	return &browserSource{
		url:          cfg.URL,
		userAgent:    cfg.UserAgent,
		waitSelector: cfg.Browser.WaitSelector,
		headless:     cfg.Browser.IsHeadless(),
	}
}

func (s *browserSource) fail(err error) error {
	return &FetchError{Strategy: config.StrategyBrowser, Reason: ReasonBrowser, Err: err}
}

func (s *browserSource) fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Strategy: config.StrategyBrowser, Reason: ReasonTimeout, Err: err}
	}

	// 浏览器操作不接受 context，以剩余截止时间作为超时
	timeout := 60 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	timeoutMs := float64(timeout.Milliseconds())

	pw, err := playwright.Run()
	if err != nil {
		return nil, s.fail(fmt.Errorf("启动 Playwright 失败: %w", err))
	}
	defer func() { _ = pw.Stop() }()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("启动 Chromium 失败: %w", err))
	}
	defer func() { _ = browser.Close() }()

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(s.userAgent),
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("创建浏览器上下文失败: %w", err))
	}
	defer func() { _ = browserCtx.Close() }()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, s.fail(fmt.Errorf("创建页面失败: %w", err))
	}
	defer func() { _ = page.Close() }()

	logger.Debug("monitor", "浏览器打开状态页", "url", s.url, "timeout", timeout)

	if _, err := page.Goto(s.url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   &timeoutMs,
	}); err != nil {
		return nil, s.fail(fmt.Errorf("打开页面失败: %w", err))
	}

	if _, err := page.WaitForSelector(s.waitSelector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: &timeoutMs,
	}); err != nil {
		// 选择器未出现多半是页面结构变化，按解析失败处理
		return nil, &FetchError{Strategy: config.StrategyBrowser, Reason: ReasonParse, Err: fmt.Errorf("等待 %s 失败: %w", s.waitSelector, err)}
	}

	content, err := page.Content()
	if err != nil {
		return nil, s.fail(fmt.Errorf("读取页面内容失败: %w", err))
	}
	return []byte(content), nil
}
