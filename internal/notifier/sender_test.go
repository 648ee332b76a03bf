package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/h2non/gock"

	"statuspulse/internal/config"
	"statuspulse/internal/events"
	"statuspulse/internal/history"
	"statuspulse/internal/policy"
	"statuspulse/internal/status"
)

const (
	webhookHost = "https://discord.com"
	webhookPath = "/api/webhooks/123/token"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSender(t *testing.T, maxFailures uint32) *Sender {
	t.Helper()
	cfg := &config.DeliveryConfig{
		WebhookURL: webhookHost + webhookPath,
		Username:   "statuspulse",
		Breaker:    config.BreakerConfig{MaxFailures: maxFailures, OpenTimeout: "1m"},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	s := New(cfg, "Steam Status")
	gock.InterceptClient(s.httpClient)
	t.Cleanup(func() {
		gock.RestoreClient(s.httpClient)
		gock.Off()
	})
	return s
}

func decision(level policy.Level, verified bool, services ...status.ServiceStatus) *policy.Decision {
	return &policy.Decision{
		Result:    events.Changed,
		Level:     level,
		Verified:  verified,
		Summary:   services,
		Timestamp: now,
	}
}

func TestColor(t *testing.T) {
	ok := status.ServiceStatus{Name: "Store", Label: "Normal", Severity: status.SeverityOK}
	bad := status.ServiceStatus{Name: "Store", Label: "Offline", Severity: status.SeverityBad}
	deg := status.ServiceStatus{Name: "CM", Label: "87% Online", Severity: status.SeverityDegraded}
	unv := status.ServiceStatus{Name: "Store", Label: "Normal", Severity: status.SeverityUnverified}

	tests := []struct {
		name string
		d    *policy.Decision
		want int
	}{
		{name: "全部正常", d: decision(policy.LevelOK, true, ok), want: ColorGreen},
		{name: "故障", d: decision(policy.LevelCritical, true, bad, ok), want: ColorRed},
		{name: "故障且未验证仍为红色", d: decision(policy.LevelCritical, false, bad), want: ColorRed},
		{name: "降级", d: decision(policy.LevelOK, true, deg, ok), want: ColorAmber},
		{name: "未验证", d: decision(policy.LevelOK, false, unv), want: ColorAmber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Color(tt.d); got != tt.want {
				t.Errorf("Color() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestBuildPayload(t *testing.T) {
	start := now.Add(-90 * time.Minute)
	d := decision(policy.LevelCritical, true,
		status.ServiceStatus{Name: "Steam Store", Label: "Offline", Severity: status.SeverityBad},
		status.ServiceStatus{Name: "Steam_Community", Label: "Normal", Severity: status.SeverityOK},
	)
	d.Changes = []events.ServiceChange{{Name: "Steam Store", Before: "Normal", After: "Offline"}}
	d.History = &history.Log{Intervals: []history.Interval{{Start: start, AffectedServices: []string{"Steam Store"}}}}

	p := BuildPayload(d, "Steam Status", "bot", true)
	if len(p.Embeds) != 1 {
		t.Fatalf("len(Embeds) = %d, want 1", len(p.Embeds))
	}
	e := p.Embeds[0]

	if !strings.HasPrefix(e.Title, "🔴") {
		t.Errorf("Title = %q, want 🔴 前缀", e.Title)
	}
	wantDesc := "🔴 **Steam Store**: Offline\n🟢 **Steam\\_Community**: Normal"
	if e.Description != wantDesc {
		t.Errorf("Description = %q, want %q", e.Description, wantDesc)
	}
	if e.Image == nil || e.Image.URL != "attachment://outages.png" {
		t.Errorf("Image = %+v", e.Image)
	}
	if len(e.Fields) != 2 || !strings.Contains(e.Fields[0].Value, "Normal → Offline") {
		t.Errorf("Fields = %+v", e.Fields)
	}
	if !strings.Contains(e.Fields[1].Value, "1h30m") || !strings.Contains(e.Fields[1].Value, "故障持续中") {
		t.Errorf("历史字段 = %q", e.Fields[1].Value)
	}
	if e.Footer != nil {
		t.Error("已验证的决策不应带未验证提示")
	}
}

func TestSender_SendJSON(t *testing.T) {
	s := newTestSender(t, 3)

	var got Payload
	gock.New(webhookHost).
		Post(webhookPath).
		MatchType("json").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return false, err
			}
			return json.Unmarshal(body, &got) == nil, nil
		}).
		Reply(204)

	d := decision(policy.LevelOK, true, status.ServiceStatus{Name: "Store", Label: "Normal", Severity: status.SeverityOK})
	if err := s.Send(context.Background(), d, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !gock.IsDone() {
		t.Fatal("Webhook 未被调用")
	}
	if got.Username != "statuspulse" || len(got.Embeds) != 1 || got.Embeds[0].Color != ColorGreen {
		t.Errorf("payload = %+v", got)
	}
	if got.Embeds[0].Image != nil {
		t.Error("无图表时不应嵌入图片")
	}
}

func TestSender_SendWithChart(t *testing.T) {
	s := newTestSender(t, 3)
	png := []byte("\x89PNG\r\n\x1a\nfake")

	var (
		payloadJSON string
		fileName    string
		fileData    []byte
	)
	gock.New(webhookHost).
		Post(webhookPath).
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
			if err != nil || mediaType != "multipart/form-data" {
				return false, nil
			}
			mr := multipart.NewReader(req.Body, params["boundary"])
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					return false, err
				}
				data, _ := io.ReadAll(part)
				switch part.FormName() {
				case "payload_json":
					payloadJSON = string(data)
				case "files[0]":
					fileName = part.FileName()
					fileData = data
				}
			}
			return true, nil
		}).
		Reply(200)

	d := decision(policy.LevelCritical, true, status.ServiceStatus{Name: "Store", Label: "Offline", Severity: status.SeverityBad})
	if err := s.Send(context.Background(), d, png); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if fileName != "outages.png" || string(fileData) != string(png) {
		t.Errorf("附件 = %q (%d bytes)", fileName, len(fileData))
	}
	if !strings.Contains(payloadJSON, "attachment://outages.png") {
		t.Errorf("payload_json 未引用附件: %s", payloadJSON)
	}
}

func TestSender_NotConfigured(t *testing.T) {
	s := New(&config.DeliveryConfig{}, "Steam Status")
	err := s.Send(context.Background(), decision(policy.LevelOK, true), nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send() error = %v, want ErrNotConfigured", err)
	}
}

func TestSender_StatusErrorAndBreaker(t *testing.T) {
	s := newTestSender(t, 2)
	gock.New(webhookHost).
		Post(webhookPath).
		Times(2).
		Reply(500).
		BodyString("boom")

	d := decision(policy.LevelOK, true)
	for i := 0; i < 2; i++ {
		err := s.Send(context.Background(), d, nil)
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != 500 {
			t.Fatalf("第 %d 次 Send() error = %v, want StatusError 500", i+1, err)
		}
	}

	// 连续失败达到阈值后熔断，不再发出请求
	err := s.Send(context.Background(), d, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("熔断后 Send() error = %v, want ErrCircuitOpen", err)
	}
	if !gock.IsDone() {
		t.Error("mock 未全部命中")
	}
}
