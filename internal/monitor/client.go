package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes 状态页响应体上限
const maxBodyBytes = 8 << 20

// newHTTPClient 创建带连接池的 HTTP 客户端
// 注意：不设置 Timeout，由 Acquirer 使用 context.WithTimeout 控制整轮采集截止时间
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// httpSource 通过 HTTP GET 获取状态页原文
type httpSource struct {
	client    *http.Client
	strategy  string
	url       string
	userAgent string
	headers   map[string]string
}

func (s *httpSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{Strategy: s.strategy, Reason: ReasonNetwork, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, s.transportError(ctx, fmt.Errorf("读取响应失败: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Strategy:   s.strategy,
			Reason:     ReasonHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
	return body, nil
}

func (s *httpSource) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Strategy: s.strategy, Reason: ReasonTimeout, Err: err}
	}
	return &FetchError{Strategy: s.strategy, Reason: ReasonNetwork, Err: err}
}
