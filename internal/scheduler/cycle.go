package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"statuspulse/internal/chart"
	"statuspulse/internal/config"
	"statuspulse/internal/events"
	"statuspulse/internal/history"
	"statuspulse/internal/logger"
	"statuspulse/internal/metrics"
	"statuspulse/internal/monitor"
	"statuspulse/internal/notifier"
	"statuspulse/internal/policy"
	"statuspulse/internal/status"
	"statuspulse/internal/storage"
)

// Sender 通知投递通道
type Sender interface {
	Send(ctx context.Context, d *policy.Decision, chartPNG []byte) error
}

// ChartRenderer 故障历史图表渲染
type ChartRenderer interface {
	Render(log history.Log, now time.Time, window time.Duration) ([]byte, error)
}

// CycleResult 一轮检查的结果
type CycleResult struct {
	CycleID  string              `json:"cycle_id"`
	Result   events.ChangeResult `json:"-"`
	Snapshot status.Snapshot     `json:"snapshot"`
	History  history.Log         `json:"history"`

	// Decision 为 nil 表示本轮不通知
	Decision *policy.Decision `json:"decision,omitempty"`

	// AcquisitionErr 非空表示采集失败、快照来自回退
	AcquisitionErr error `json:"-"`

	Delivered   bool  `json:"delivered"`
	DeliveryErr error `json:"-"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Runner 执行单轮检查：加锁 → 读取 → 采集 → 检测 → 历史 → 决策 → 投递 → 保存 → 解锁
type Runner struct {
	store      storage.Store
	fetcher    monitor.Fetcher
	classifier *status.Classifier
	tracker    *history.Tracker
	policy     *policy.Policy
	sender     Sender
	chart      ChartRenderer // 可为 nil

	serviceNames    []string
	unverifiedLabel string
	resetOnCorrupt  bool
	chartWindow     time.Duration
	now             func() time.Time
}

// NewRunner 按配置组装 Runner（cfg 需已 Normalize）
func NewRunner(cfg *config.AppConfig, store storage.Store) (*Runner, error) {
	acq, err := monitor.NewAcquirer(&cfg.Acquisition, cfg.Services.Names)
	if err != nil {
		return nil, fmt.Errorf("创建采集器失败: %w", err)
	}

	r := &Runner{
		store:      store,
		fetcher:    acq,
		classifier: status.NewClassifier(cfg.Severity.BadKeywords),
		tracker:    history.NewTracker(cfg.History.RetentionDuration),
		policy: policy.New(policy.Config{
			Order:            cfg.Services.Order,
			NotifyOnFirstRun: cfg.Notify.ShouldNotifyOnFirstRun(),
		}),
		sender:          notifier.New(&cfg.Delivery, cfg.Notify.Title),
		serviceNames:    append([]string(nil), cfg.Services.Order...),
		unverifiedLabel: cfg.Acquisition.UnverifiedLabel,
		resetOnCorrupt:  cfg.Storage.ShouldResetOnCorrupt(),
		chartWindow:     cfg.Chart.WindowDuration,
		now:             time.Now,
	}
	if cfg.Chart.Enabled {
		r.chart = chart.New(cfg.Chart.Width, cfg.Chart.Height)
	}
	return r, nil
}

// RunCycle 执行一轮检查
//
// 采集失败与投递失败都不会让本轮失败；只有存储不可用、状态损坏且
// 禁止重置等内部错误才返回 error
func (r *Runner) RunCycle(ctx context.Context) (*CycleResult, error) {
	cycleID := logger.NewShortID()
	ctx = logger.WithCycleID(ctx, cycleID)
	log := logger.FromContext(ctx, "scheduler")

	res := &CycleResult{CycleID: cycleID, StartedAt: r.now()}

	sess, err := r.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取状态锁失败: %w", err)
	}
	defer sess.Close(ctx)

	prev, err := sess.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorrupt) || !r.resetOnCorrupt {
			return nil, fmt.Errorf("读取持久化状态失败: %w", err)
		}
		log.Warn("持久化状态已损坏，按首次运行处理", "error", err)
		prev = &storage.State{}
	}

	cur, acqErr := r.acquire(ctx, prev.Snapshot)
	res.AcquisitionErr = acqErr
	now := cur.Timestamp

	res.Result = events.Detect(prev.Snapshot, cur)
	res.History = r.tracker.Update(prev.History, cur, now)
	res.Snapshot = cur

	if d := r.policy.Decide(res.Result, cur); d != nil {
		d.Changes = events.Diff(prev.Snapshot, cur)
		d.History = &res.History
		res.Decision = d
		res.Delivered, res.DeliveryErr = r.deliver(ctx, d)
	} else {
		metrics.RecordNotification(metrics.NotifySuppressed)
	}

	if err := sess.Save(ctx, &storage.State{Snapshot: &cur, History: res.History}); err != nil {
		return nil, fmt.Errorf("保存状态失败: %w", err)
	}
	if err := sess.Close(ctx); err != nil {
		return nil, fmt.Errorf("提交状态失败: %w", err)
	}

	res.Duration = r.now().Sub(res.StartedAt)
	metrics.RecordCycle(res.Result.String(), res.Duration)
	metrics.SetSnapshot(cur, len(res.History.Intervals))

	log.Info("巡检完成",
		"change", res.Result.String(),
		"notify", res.Decision != nil,
		"delivered", res.Delivered,
		"is_down", cur.IsDown,
		"verified", cur.Verified,
		"services", len(cur.Services),
		"outages", len(res.History.Intervals),
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// acquire 采集并构造快照；失败时回退到上一轮标签（标记未验证），
// 没有上一轮时合成全部未验证的快照
func (r *Runner) acquire(ctx context.Context, prev *status.Snapshot) (status.Snapshot, error) {
	log := logger.FromContext(ctx, "scheduler")

	readings, err := r.fetcher.Fetch(ctx)
	now := r.now()
	if err == nil {
		return status.NewSnapshot(readings, now, true, r.classifier), nil
	}

	reason := monitor.ReasonOf(err)
	metrics.RecordAcquisitionFailure(string(reason))

	if prev != nil {
		log.Warn("采集失败，沿用上一轮状态", "reason", reason, "error", err)
		return status.Stale(*prev, now, r.classifier), err
	}
	log.Warn("采集失败且无历史状态，生成未验证快照", "reason", reason, "services", len(r.serviceNames), "error", err)
	return status.Unverified(r.serviceNames, r.unverifiedLabel, now), err
}

// deliver 渲染图表（失败忽略）并投递；投递失败只记录日志
func (r *Runner) deliver(ctx context.Context, d *policy.Decision) (bool, error) {
	log := logger.FromContext(ctx, "scheduler")

	var png []byte
	if r.chart != nil {
		var err error
		if png, err = r.chart.Render(*d.History, d.Timestamp, r.chartWindow); err != nil {
			log.Warn("渲染图表失败，不附带图表", "error", err)
			png = nil
		}
	}

	err := r.sender.Send(ctx, d, png)
	switch {
	case err == nil:
		metrics.RecordNotification(metrics.NotifySent)
		log.Info("通知已发送", "level", d.Level, "result", d.Result.String(), "chart", len(png) > 0)
		return true, nil
	case errors.Is(err, notifier.ErrNotConfigured):
		metrics.RecordNotification(metrics.NotifySkipped)
		log.Warn("未配置 Webhook，跳过投递（设置 STATUSPULSE_WEBHOOK_URL）")
		return false, err
	default:
		metrics.RecordNotification(metrics.NotifyFailed)
		log.Error("通知投递失败", "error", err)
		return false, err
	}
}
