// Package notifier 将通知决策投递到 Discord 兼容的 Webhook
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/sony/gobreaker/v2"

	"statuspulse/internal/config"
	"statuspulse/internal/logger"
	"statuspulse/internal/policy"
)

var (
	// ErrNotConfigured 未配置 Webhook，调用方应跳过投递并记录警告
	ErrNotConfigured = errors.New("未配置 Webhook")

	// ErrCircuitOpen 连续投递失败后熔断，熔断期内直接放弃
	ErrCircuitOpen = errors.New("Webhook 投递已熔断")
)

// StatusError Webhook 返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Webhook 返回 HTTP %d: %s", e.StatusCode, e.Body)
}

// Sender Webhook 投递器
type Sender struct {
	webhookURL string
	username   string
	title      string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
}

// New 创建投递器（cfg 需已 Normalize）
func New(cfg *config.DeliveryConfig, title string) *Sender {
	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeoutDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notifier", "熔断器状态变化", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Sender{
		webhookURL: cfg.WebhookURL,
		username:   cfg.Username,
		title:      title,
		timeout:    cfg.TimeoutDuration,
		httpClient: &http.Client{},
		breaker:    breaker,
	}
}

// Configured 是否配置了 Webhook
func (s *Sender) Configured() bool {
	return s.webhookURL != ""
}

// Send 投递一条通知；chartPNG 非空时作为附件一并上传
func (s *Sender) Send(ctx context.Context, d *policy.Decision, chartPNG []byte) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if d == nil {
		return errors.New("通知决策为空")
	}

	payload := BuildPayload(d, s.title, s.username, len(chartPNG) > 0)

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.post(ctx, payload, chartPNG)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (s *Sender) post(ctx context.Context, payload Payload, chartPNG []byte) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body, contentType, err := encode(payload, chartPNG)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// encode 无图表时发送 JSON；有图表时使用 multipart/form-data（payload_json + files[0]）
func encode(payload Payload, chartPNG []byte) (io.Reader, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("序列化消息失败: %w", err)
	}
	if len(chartPNG) == 0 {
		return bytes.NewReader(data), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("payload_json", string(data)); err != nil {
		return nil, "", fmt.Errorf("写入 payload_json 失败: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[0]"; filename="%s"`, chartFileName))
	h.Set("Content-Type", "image/png")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("创建 form file 失败: %w", err)
	}
	if _, err := fw.Write(chartPNG); err != nil {
		return nil, "", fmt.Errorf("写入图片数据失败: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("关闭 multipart writer 失败: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
