package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"statuspulse/internal/history"
	"statuspulse/internal/status"
)

const (
	stateFileName   = "state.json"
	historyFileName = "history.json"
	lockFileName    = "state.lock"

	lockPollInterval = 100 * time.Millisecond
)

// FileStore 基于目录内 JSON 文件的存储
type FileStore struct {
	dir         string
	lockTimeout time.Duration
}

// NewFileStore 创建文件存储
func NewFileStore(dir string, lockTimeout time.Duration) *FileStore {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &FileStore{dir: dir, lockTimeout: lockTimeout}
}

// Init 创建状态目录
func (s *FileStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}
	return nil
}

// Close 文件存储无需释放资源
func (s *FileStore) Close() error { return nil }

// Begin 在 state.lock 上获取 flock 排他锁，最长等待 lock_timeout
//
// 锁由内核随文件描述符释放，进程崩溃后无需清理残留锁文件
func (s *FileStore) Begin(ctx context.Context) (Session, error) {
	lockPath := filepath.Join(s.dir, lockFileName)
	fl := flock.New(lockPath)

	waitCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(waitCtx, lockPollInterval)
	if locked {
		return &fileSession{store: s, lock: fl}, nil
	}
	_ = fl.Close()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("获取文件锁失败: %w", err)
	}
	return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
}

type fileSession struct {
	store  *FileStore
	lock   *flock.Flock
	closed bool
}

func (sess *fileSession) path(name string) string {
	return filepath.Join(sess.store.dir, name)
}

func (sess *fileSession) Load(ctx context.Context) (*State, error) {
	st := &State{}

	data, err := os.ReadFile(sess.path(stateFileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	default:
		var snap status.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, stateFileName, err)
		}
		st.Snapshot = &snap
	}

	data, err = os.ReadFile(sess.path(historyFileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取历史文件失败: %w", err)
	default:
		var log history.Log
		if err := json.Unmarshal(data, &log); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, historyFileName, err)
		}
		st.History = log
	}

	if err := validate(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Save 先写历史再写快照；中途失败时下一轮会把差异重新识别为变化
func (sess *fileSession) Save(ctx context.Context, st *State) error {
	hist, err := json.MarshalIndent(st.History, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化历史失败: %w", err)
	}
	if err := writeAtomic(sess.path(historyFileName), hist); err != nil {
		return err
	}

	if st.Snapshot == nil {
		return nil
	}
	snap, err := json.MarshalIndent(st.Snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	return writeAtomic(sess.path(stateFileName), snap)
}

func (sess *fileSession) Close(ctx context.Context) error {
	if sess.closed {
		return nil
	}
	sess.closed = true
	// 锁文件保留在目录中，删除会让等待者锁到已被替换的 inode
	if err := sess.lock.Unlock(); err != nil {
		return fmt.Errorf("释放文件锁失败: %w", err)
	}
	return nil
}

// writeAtomic 经临时文件 fsync 后 rename，读者只能看到完整内容
func writeAtomic(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", filepath.Base(path), err)
	}
	return nil
}
