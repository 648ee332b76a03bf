package scheduler

import (
	"context"
	"sync"
	"time"

	"statuspulse/internal/config"
	"statuspulse/internal/logger"
	"statuspulse/internal/storage"
)

// Scheduler loop 模式调度器：按固定间隔串行执行 RunCycle
// 同一进程内各轮不会重叠；跨进程由存储锁串行化
type Scheduler struct {
	store storage.Store

	mu       sync.Mutex
	runner   *Runner
	interval time.Duration
	latest   *CycleResult

	timer  *time.Timer
	wakeCh chan struct{}
}

// New 创建调度器
func New(runner *Runner, store storage.Store, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		store:    store,
		runner:   runner,
		interval: interval,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Run 立即执行一轮，随后每个 interval 执行一轮，阻塞到 ctx 结束
// 单轮失败只记录日志，不终止循环
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.timer = time.NewTimer(0)
	interval := s.interval
	s.mu.Unlock()

	logger.Info("scheduler", "调度器已启动", "interval", interval)

	defer func() {
		s.mu.Lock()
		s.timer.Stop()
		s.mu.Unlock()
		logger.Info("scheduler", "调度器已停止")
	}()

	for {
		s.mu.Lock()
		timerC := s.timer.C
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-timerC:
		case <-s.wakeCh:
		}

		s.runOnce(ctx)

		s.mu.Lock()
		s.resetTimerLocked(s.interval)
		s.mu.Unlock()
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()

	res, err := runner.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("scheduler", "巡检失败", "error", err)
		return
	}

	s.mu.Lock()
	s.latest = res
	s.mu.Unlock()
}

// TriggerNow 立即触发一轮巡检（正在执行时合并为下一轮）
func (s *Scheduler) TriggerNow() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
	logger.Info("scheduler", "已触发即时巡检")
}

// UpdateConfig 热更新：按新配置重建 Runner 与间隔（存储后端不随热更新切换）
func (s *Scheduler) UpdateConfig(cfg *config.AppConfig) error {
	runner, err := NewRunner(cfg, s.store)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runner = runner
	changed := cfg.IntervalDuration != s.interval
	s.interval = cfg.IntervalDuration
	if changed && s.timer != nil {
		s.resetTimerLocked(s.interval)
	}
	s.mu.Unlock()

	logger.Info("scheduler", "配置已更新", "interval", cfg.IntervalDuration, "interval_changed", changed)
	return nil
}

// Latest 返回最近一轮成功的结果（尚未执行过时返回 nil）
func (s *Scheduler) Latest() *CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Interval 当前巡检间隔
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// resetTimerLocked 重置定时器（调用方需持有 s.mu）
func (s *Scheduler) resetTimerLocked(wait time.Duration) {
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(wait)
}
