// Package storage 持久化上一轮快照与故障历史
//
// 每轮检查在一个 Session 内完成：Begin 获取排他锁，Load 读出状态，
// Save 写回新状态，Close 提交并释放锁。同一状态位置上的并发运行
// 会在 Begin 处串行化。
package storage

import (
	"context"
	"errors"
	"fmt"

	"statuspulse/internal/config"
	"statuspulse/internal/history"
	"statuspulse/internal/status"
)

var (
	// ErrCorrupt 持久化内容存在但无法解析或违反不变量
	ErrCorrupt = errors.New("持久化状态已损坏")

	// ErrLockTimeout 在 lock_timeout 内未能获取排他锁
	ErrLockTimeout = errors.New("获取状态锁超时")
)

// State 一轮检查之间需要保留的全部状态
type State struct {
	// Snapshot 上一轮快照，首次运行时为 nil
	Snapshot *status.Snapshot
	History  history.Log
}

// Store 状态存储后端
type Store interface {
	// Init 初始化存储（建目录 / 建表）
	Init(ctx context.Context) error

	// Begin 获取排他锁并开启一个会话
	Begin(ctx context.Context) (Session, error)

	Close() error
}

// Session 持有排他锁的读写会话
type Session interface {
	// Load 读取状态；不存在时返回空 State，损坏时返回包装了 ErrCorrupt 的错误
	Load(ctx context.Context) (*State, error)

	// Save 写入新状态（快照与历史一起提交）
	Save(ctx context.Context, st *State) error

	// Close 提交已保存的内容并释放锁，可重复调用
	Close(ctx context.Context) error
}

// New 按配置创建存储后端（cfg 需已 Normalize）
func New(cfg *config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case config.StorageFile, "":
		return NewFileStore(cfg.File.Dir, cfg.LockTimeoutDuration), nil
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.SQLite.Path, cfg.LockTimeoutDuration)
	case config.StoragePostgres:
		return NewPostgresStore(&cfg.Postgres, cfg.LockTimeoutDuration)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Type)
	}
}

// validate 校验读出的状态，违反不变量时视为损坏
func validate(st *State) error {
	if st.Snapshot != nil {
		if st.Snapshot.Timestamp.IsZero() {
			return fmt.Errorf("%w: 快照缺少时间戳", ErrCorrupt)
		}
		for _, svc := range st.Snapshot.Services {
			if svc.Name == "" {
				return fmt.Errorf("%w: 快照包含空服务名", ErrCorrupt)
			}
		}
	}

	ivs := st.History.Intervals
	for i, iv := range ivs {
		if iv.Start.IsZero() {
			return fmt.Errorf("%w: 第 %d 个故障区间缺少开始时间", ErrCorrupt, i)
		}
		if iv.End != nil && iv.End.Before(iv.Start) {
			return fmt.Errorf("%w: 第 %d 个故障区间结束早于开始", ErrCorrupt, i)
		}
		if iv.IsOpen() && i != len(ivs)-1 {
			return fmt.Errorf("%w: 未结束的故障区间不在末尾", ErrCorrupt)
		}
		if i > 0 && iv.Start.Before(ivs[i-1].Start) {
			return fmt.Errorf("%w: 故障区间未按开始时间排序", ErrCorrupt)
		}
	}
	return nil
}
