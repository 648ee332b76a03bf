// Package monitor 负责从状态页采集各服务的原始状态标签
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"statuspulse/internal/config"
	"statuspulse/internal/logger"
	"statuspulse/internal/status"
)

// Fetcher 采集一次状态页，返回按页面顺序排列的 Reading
// 失败时返回 *FetchError
type Fetcher interface {
	Fetch(ctx context.Context) ([]status.Reading, error)
}

// source 获取状态页原文
type source interface {
	fetch(ctx context.Context) ([]byte, error)
}

// Acquirer 按配置的策略采集，负责重试、截止时间与空结果策略
type Acquirer struct {
	strategy string
	src      source
	parser   parser
	names    map[string]string

	timeout        time.Duration
	retries        int
	baseDelay      time.Duration
	maxDelay       time.Duration
	emptyIsFailure bool
	dumpPath       string
}

// NewAcquirer 创建采集器（cfg 需已 Normalize）
// names 为服务 ID → 展示名映射，可为 nil
func NewAcquirer(cfg *config.AcquisitionConfig, names map[string]string) (*Acquirer, error) {
	p, err := newParser(cfg)
	if err != nil {
		return nil, err
	}

	var src source
	if cfg.Strategy == config.StrategyBrowser {
		src = newBrowserSource(cfg)
	} else {
		src = &httpSource{
			client:    newHTTPClient(),
			strategy:  cfg.Strategy,
			url:       cfg.URL,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers,
		}
	}

	return &Acquirer{
		strategy:       cfg.Strategy,
		src:            src,
		parser:         p,
		names:          names,
		timeout:        cfg.TimeoutDuration,
		retries:        cfg.RetryCount,
		baseDelay:      cfg.RetryBaseDelayDuration,
		maxDelay:       cfg.RetryMaxDelayDuration,
		emptyIsFailure: cfg.EmptyResult != config.EmptyResultValid,
		dumpPath:       cfg.DumpPath,
	}, nil
}

// Fetch 在截止时间内采集，可重试失败按指数退避重试
func (a *Acquirer) Fetch(ctx context.Context) ([]status.Reading, error) {
	timeout := a.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.FromContext(ctx, "monitor")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.baseDelay
	bo.MaxInterval = a.maxDelay
	bo.MaxElapsedTime = 0 // 由重试次数与 ctx 截止时间控制
	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.retries)), ctx)

	var (
		readings []status.Reading
		lastErr  error
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := a.attempt(ctx)
		if err != nil {
			lastErr = err
			var fe *FetchError
			if errors.As(err, &fe) && !fe.retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		readings = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("采集失败，准备重试", "attempt", attempts, "wait", wait, "reason", ReasonOf(err), "error", err)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if lastErr == nil || (errors.Is(err, context.DeadlineExceeded) && ReasonOf(lastErr) != ReasonTimeout) {
			lastErr = &FetchError{Strategy: a.strategy, Reason: ReasonTimeout, Err: fmt.Errorf("超过采集截止时间 %v: %w", timeout, err)}
		}
		log.Warn("采集失败", "attempts", attempts, "reason", ReasonOf(lastErr), "error", lastErr)
		return nil, lastErr
	}

	log.Debug("采集成功", "attempts", attempts, "services", len(readings))
	return readings, nil
}

// attempt 单次采集：获取 → 落盘（可选）→ 解析 → 展示名映射 → 空结果判定
func (a *Acquirer) attempt(ctx context.Context) ([]status.Reading, error) {
	body, err := a.src.fetch(ctx)
	if err != nil {
		return nil, err
	}
	a.dump(body)

	readings, err := a.parser.parse(body)
	if err != nil {
		return nil, &FetchError{Strategy: a.strategy, Reason: ReasonParse, Err: err}
	}
	if len(a.names) > 0 {
		for i := range readings {
			if display, ok := a.names[readings[i].Name]; ok {
				readings[i].Name = display
			}
		}
	}

	if len(readings) == 0 && a.emptyIsFailure {
		return nil, &FetchError{Strategy: a.strategy, Reason: ReasonEmpty, Err: errors.New("页面中没有任何服务")}
	}
	return readings, nil
}

func (a *Acquirer) dump(body []byte) {
	if a.dumpPath == "" {
		return
	}
	if err := os.WriteFile(a.dumpPath, body, 0o644); err != nil {
		logger.Warn("monitor", "保存页面原文失败", "path", a.dumpPath, "error", err)
	}
}
