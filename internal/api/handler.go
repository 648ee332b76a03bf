package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"statuspulse/internal/chart"
	"statuspulse/internal/config"
	"statuspulse/internal/history"
	"statuspulse/internal/logger"
	"statuspulse/internal/scheduler"
)

// StatusSource 最近一轮巡检结果的来源（loop 模式下即调度器）
type StatusSource interface {
	Latest() *scheduler.CycleResult
	TriggerNow()
}

// Handler API处理器
type Handler struct {
	source StatusSource
	config *config.AppConfig
	cfgMu  sync.RWMutex // 保护config的并发访问
	now    func() time.Time
}

// NewHandler 创建处理器
func NewHandler(source StatusSource, cfg *config.AppConfig) *Handler {
	return &Handler{
		source: source,
		config: cfg,
		now:    time.Now,
	}
}

// CycleMeta 最近一轮巡检的元数据
type CycleMeta struct {
	CycleID          string `json:"cycle_id"`
	Change           string `json:"change"`
	StartedAt        int64  `json:"started_at"`
	DurationMs       int64  `json:"duration_ms"`
	Notified         bool   `json:"notified"`
	Delivered        bool   `json:"delivered"`
	AcquisitionError string `json:"acquisition_error,omitempty"`
	DeliveryError    string `json:"delivery_error,omitempty"`
}

// OutageItem API返回的故障区间
type OutageItem struct {
	history.Interval
	DurationSec int64 `json:"duration_sec"`
	Open        bool  `json:"open"`
}

// GetStatus 获取最近一轮快照与通知决策
func (h *Handler) GetStatus(c *gin.Context) {
	res, ok := h.latest(c)
	if !ok {
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"meta":     buildMeta(res),
		"data":     res.Snapshot,
		"decision": res.Decision,
	})
}

// GetHistory 获取时间范围内的故障区间
// GET /api/history?period=24h|7d
func (h *Handler) GetHistory(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	window, err := parsePeriod(period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("无效的时间范围: %s", period),
		})
		return
	}

	res, ok := h.latest(c)
	if !ok {
		return
	}

	now := h.now()
	since := now.Add(-window)
	items := make([]OutageItem, 0, len(res.History.Intervals))
	for _, iv := range res.History.Intervals {
		// 只保留与窗口有交集的区间
		if iv.End != nil && iv.End.Before(since) {
			continue
		}
		items = append(items, OutageItem{
			Interval:    iv,
			DurationSec: int64(iv.Duration(now) / time.Second),
			Open:        iv.IsOpen(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"period":       period,
			"count":        len(items),
			"downtime_sec": int64(res.History.Downtime(now, window) / time.Second),
		},
		"data": items,
	})
}

// GetChart 渲染故障历史图表
// GET /api/chart.png?period=24h|7d
func (h *Handler) GetChart(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	window, err := parsePeriod(period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("无效的时间范围: %s", period),
		})
		return
	}

	res, ok := h.latest(c)
	if !ok {
		return
	}

	h.cfgMu.RLock()
	width, height := h.config.Chart.Width, h.config.Chart.Height
	h.cfgMu.RUnlock()

	png, err := chart.New(width, height).Render(res.History, h.now(), window)
	if err != nil {
		logger.FromContext(c.Request.Context(), "api").Error("渲染图表失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "渲染图表失败"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// TriggerCycle 立即触发一轮巡检（异步执行）
func (h *Handler) TriggerCycle(c *gin.Context) {
	h.source.TriggerNow()
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// latest 取最近一轮结果；尚未完成首轮时直接写入 503
func (h *Handler) latest(c *gin.Context) (*scheduler.CycleResult, bool) {
	res := h.source.Latest()
	if res == nil {
		c.Header("Retry-After", "10")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "尚未完成首轮巡检"})
		return nil, false
	}
	return res, true
}

func buildMeta(res *scheduler.CycleResult) CycleMeta {
	meta := CycleMeta{
		CycleID:    res.CycleID,
		Change:     res.Result.String(),
		StartedAt:  res.StartedAt.Unix(),
		DurationMs: res.Duration.Milliseconds(),
		Notified:   res.Decision != nil,
		Delivered:  res.Delivered,
	}
	if res.AcquisitionErr != nil {
		meta.AcquisitionError = res.AcquisitionErr.Error()
	}
	if res.DeliveryErr != nil {
		meta.DeliveryError = res.DeliveryErr.Error()
	}
	return meta
}

// parsePeriod 解析时间范围
func parsePeriod(period string) (time.Duration, error) {
	switch period {
	case "1h":
		return time.Hour, nil
	case "24h", "1d":
		return 24 * time.Hour, nil
	case "7d":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("不支持的时间范围")
	}
}

// UpdateConfig 更新配置（热更新时调用）
func (h *Handler) UpdateConfig(cfg *config.AppConfig) {
	h.cfgMu.Lock()
	h.config = cfg
	h.cfgMu.Unlock()
}
