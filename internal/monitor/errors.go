package monitor

import "errors"

// Reason 采集失败原因（日志与指标可稳定依赖，不依赖 error 字符串）
type Reason string

const (
	// ReasonNetwork 连接失败或读取响应失败
	ReasonNetwork Reason = "network"
	// ReasonHTTPStatus 状态页返回非 2xx
	ReasonHTTPStatus Reason = "http_status"
	// ReasonTimeout 超过采集截止时间
	ReasonTimeout Reason = "timeout"
	// ReasonParse 页面结构与配置的选择器/正则/字段不符
	ReasonParse Reason = "parse"
	// ReasonEmpty 解析成功但没有任何服务
	ReasonEmpty Reason = "empty"
	// ReasonBrowser 无头浏览器启动或渲染失败
	ReasonBrowser Reason = "browser"
)

// FetchError 采集领域错误（Reason 稳定；Err 用于内部诊断）
type FetchError struct {
	Strategy   string
	Reason     Reason
	StatusCode int // 仅 ReasonHTTPStatus 时有值
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return "采集失败 [" + e.Strategy + "/" + string(e.Reason) + "]"
	}
	return "采集失败 [" + e.Strategy + "/" + string(e.Reason) + "]: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// retryable 4xx（除 408/429）说明请求本身有误，重试无意义
func (e *FetchError) retryable() bool {
	if e.Reason != ReasonHTTPStatus {
		return true
	}
	if e.StatusCode == 408 || e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}

// ReasonOf 提取采集失败原因；若不是 FetchError 则返回空串
func ReasonOf(err error) Reason {
	var e *FetchError
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
