package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"statuspulse/internal/logger"
)

// Normalize 规范化配置：填充默认值、解析 duration、校验取值
func (c *AppConfig) Normalize() error {
	if err := c.normalizeGlobal(); err != nil {
		return err
	}
	if err := c.Acquisition.Normalize(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	if err := c.Delivery.Normalize(); err != nil {
		return err
	}
	if err := c.Storage.Normalize(); err != nil {
		return err
	}

	if c.Chart.Width <= 0 {
		c.Chart.Width = 1024
	}
	if c.Chart.Height <= 0 {
		c.Chart.Height = 320
	}
	if strings.TrimSpace(c.Chart.Window) == "" {
		c.Chart.WindowDuration = c.History.RetentionDuration
	} else {
		d, err := parsePositiveDuration("chart.window", c.Chart.Window)
		if err != nil {
			return err
		}
		if d > c.History.RetentionDuration {
			logger.Warn("config", "chart.window 超过 history.retention，超出部分没有数据",
				"window", d, "retention", c.History.RetentionDuration)
		}
		c.Chart.WindowDuration = d
	}
	if strings.TrimSpace(c.API.Addr) == "" {
		c.API.Addr = ":8080"
	}
	if strings.TrimSpace(c.Notify.Title) == "" {
		c.Notify.Title = "Service Status"
	}
	return nil
}

func (c *AppConfig) normalizeGlobal() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeOnce
	}
	if c.Mode != ModeOnce && c.Mode != ModeLoop {
		return fmt.Errorf("mode 仅支持 once / loop，当前值: %s", c.Mode)
	}

	if strings.TrimSpace(c.Interval) == "" {
		c.Interval = "5m"
	}
	d, err := parsePositiveDuration("interval", c.Interval)
	if err != nil {
		return err
	}
	c.IntervalDuration = d

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format 仅支持 text / json，当前值: %s", c.Log.Format)
	}

	if c.API.Enabled && c.Mode != ModeLoop {
		logger.Warn("config", "api.enabled 仅在 loop 模式下生效，已忽略", "mode", c.Mode)
	}
	return nil
}

func (c *AppConfig) normalizeHistory() error {
	if strings.TrimSpace(c.History.Retention) == "" {
		c.History.Retention = "168h"
	}
	d, err := parsePositiveDuration("history.retention", c.History.Retention)
	if err != nil {
		return err
	}
	c.History.RetentionDuration = d
	return nil
}

// Normalize 规范化采集配置
func (c *AcquisitionConfig) Normalize() error {
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "" {
		c.Strategy = StrategyHTML
	}

	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("acquisition.url 是必需的")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("acquisition.url 必须是 http(s) 地址: %s", c.URL)
	}

	switch c.Strategy {
	case StrategyHTML, StrategyBrowser:
		if c.HTML.Row == "" || c.HTML.Name == "" || c.HTML.Status == "" {
			return fmt.Errorf("acquisition.html.row/name/status 在 %s 策略下是必需的", c.Strategy)
		}
		if c.Strategy == StrategyBrowser && c.Browser.WaitSelector == "" {
			c.Browser.WaitSelector = c.HTML.Row
		}
	case StrategyRegex:
		re, err := regexp.Compile(c.Regex.Pattern)
		if err != nil {
			return fmt.Errorf("acquisition.regex.pattern 编译失败: %w", err)
		}
		if re.SubexpIndex("name") < 0 || re.SubexpIndex("status") < 0 {
			return fmt.Errorf("acquisition.regex.pattern 必须包含命名分组 (?P<name>...) 与 (?P<status>...)")
		}
	case StrategyJSON:
		if c.JSON.NameField == "" {
			c.JSON.NameField = "name"
		}
		if c.JSON.LabelField == "" {
			c.JSON.LabelField = "status"
		}
		if c.JSON.LabelIndex == nil {
			idx := 1
			c.JSON.LabelIndex = &idx
		}
		if c.JSON.NameIndex < 0 || *c.JSON.LabelIndex < 0 {
			return fmt.Errorf("acquisition.json.name_index/label_index 必须 >= 0")
		}
	default:
		return fmt.Errorf("acquisition.strategy 仅支持 html / regex / json / browser，当前值: %s", c.Strategy)
	}

	if strings.TrimSpace(c.Timeout) == "" {
		c.Timeout = "60s"
	}
	if c.TimeoutDuration, err = parsePositiveDuration("acquisition.timeout", c.Timeout); err != nil {
		return err
	}

	c.RetryCount = 2
	if c.Retries != nil {
		if *c.Retries < 0 {
			return fmt.Errorf("acquisition.retries 必须 >= 0，当前值: %d", *c.Retries)
		}
		c.RetryCount = *c.Retries
	}
	if strings.TrimSpace(c.RetryBaseDelay) == "" {
		c.RetryBaseDelay = "1s"
	}
	if c.RetryBaseDelayDuration, err = parsePositiveDuration("acquisition.retry_base_delay", c.RetryBaseDelay); err != nil {
		return err
	}
	if strings.TrimSpace(c.RetryMaxDelay) == "" {
		c.RetryMaxDelay = "10s"
	}
	if c.RetryMaxDelayDuration, err = parsePositiveDuration("acquisition.retry_max_delay", c.RetryMaxDelay); err != nil {
		return err
	}
	if c.RetryMaxDelayDuration < c.RetryBaseDelayDuration {
		return fmt.Errorf("acquisition.retry_max_delay 不能小于 retry_base_delay")
	}

	if c.UserAgent == "" {
		c.UserAgent = "statuspulse/1.0 (+status monitor)"
	}

	c.EmptyResult = strings.ToLower(strings.TrimSpace(c.EmptyResult))
	if c.EmptyResult == "" {
		c.EmptyResult = EmptyResultFailure
	}
	if c.EmptyResult != EmptyResultFailure && c.EmptyResult != EmptyResultValid {
		return fmt.Errorf("acquisition.empty_result 仅支持 failure / valid，当前值: %s", c.EmptyResult)
	}

	if c.UnverifiedLabel == "" {
		c.UnverifiedLabel = "Estado no verificado"
	}
	return nil
}

// Normalize 规范化投递配置
func (c *DeliveryConfig) Normalize() error {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("delivery.webhook_url 必须是 http(s) 地址")
		}
	}

	var err error
	if strings.TrimSpace(c.Timeout) == "" {
		c.Timeout = "15s"
	}
	if c.TimeoutDuration, err = parsePositiveDuration("delivery.timeout", c.Timeout); err != nil {
		return err
	}

	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 3
	}
	if strings.TrimSpace(c.Breaker.OpenTimeout) == "" {
		c.Breaker.OpenTimeout = "10m"
	}
	if c.Breaker.OpenTimeoutDuration, err = parsePositiveDuration("delivery.breaker.open_timeout", c.Breaker.OpenTimeout); err != nil {
		return err
	}
	return nil
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s 解析失败: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须 > 0", field)
	}
	return d, nil
}
