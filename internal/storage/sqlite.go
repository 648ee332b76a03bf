package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"statuspulse/internal/history"
	"statuspulse/internal/status"

	_ "modernc.org/sqlite" // 纯Go实现的SQLite驱动
)

// SQLiteStore SQLite 存储实现
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 创建 SQLite 存储
// busy_timeout 取 lock_timeout，BEGIN IMMEDIATE 在其内等待写锁
func NewSQLiteStore(dbPath string, lockTimeout time.Duration) (*SQLiteStore, error) {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		dbPath, lockTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLiteStore{db: db}, nil
}

// Init 初始化数据库表
func (s *SQLiteStore) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS current_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		services TEXT NOT NULL,
		is_down INTEGER NOT NULL,
		verified INTEGER NOT NULL,
		observed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outage_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_at INTEGER NOT NULL,
		end_at INTEGER,
		affected TEXT NOT NULL,
		peak TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outage_history_start ON outage_history(start_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Begin 在独占连接上执行 BEGIN IMMEDIATE 获取写锁
func (s *SQLiteStore) Begin(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		if isSQLiteBusy(err) {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

func isSQLiteBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

type sqliteSession struct {
	conn  *sql.Conn
	dirty bool
	done  bool
}

func (ss *sqliteSession) Load(ctx context.Context) (*State, error) {
	st := &State{}

	var (
		services   string
		isDown     bool
		verified   bool
		observedAt int64
	)
	err := ss.conn.QueryRowContext(ctx,
		`SELECT services, is_down, verified, observed_at FROM current_state WHERE id = 1`,
	).Scan(&services, &isDown, &verified, &observedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("查询当前状态失败: %w", err)
	default:
		snap := &status.Snapshot{
			Timestamp: time.Unix(0, observedAt).UTC(),
			IsDown:    isDown,
			Verified:  verified,
		}
		if err := json.Unmarshal([]byte(services), &snap.Services); err != nil {
			return nil, fmt.Errorf("%w: current_state.services: %v", ErrCorrupt, err)
		}
		st.Snapshot = snap
	}

	rows, err := ss.conn.QueryContext(ctx,
		`SELECT start_at, end_at, affected, peak FROM outage_history ORDER BY start_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("查询故障历史失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			startAt  int64
			endAt    sql.NullInt64
			affected string
			peak     string
		)
		if err := rows.Scan(&startAt, &endAt, &affected, &peak); err != nil {
			return nil, fmt.Errorf("扫描故障历史失败: %w", err)
		}
		iv := history.Interval{Start: time.Unix(0, startAt).UTC()}
		if endAt.Valid {
			end := time.Unix(0, endAt.Int64).UTC()
			iv.End = &end
		}
		if err := json.Unmarshal([]byte(affected), &iv.AffectedServices); err != nil {
			return nil, fmt.Errorf("%w: outage_history.affected: %v", ErrCorrupt, err)
		}
		if err := json.Unmarshal([]byte(peak), &iv.Peak); err != nil {
			return nil, fmt.Errorf("%w: outage_history.peak: %v", ErrCorrupt, err)
		}
		st.History.Intervals = append(st.History.Intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历故障历史失败: %w", err)
	}

	if err := validate(st); err != nil {
		return nil, err
	}
	return st, nil
}

func (ss *sqliteSession) Save(ctx context.Context, st *State) error {
	if st.Snapshot != nil {
		services, err := json.Marshal(st.Snapshot.Services)
		if err != nil {
			return fmt.Errorf("序列化快照失败: %w", err)
		}
		_, err = ss.conn.ExecContext(ctx, `
			INSERT INTO current_state (id, services, is_down, verified, observed_at)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				services = excluded.services,
				is_down = excluded.is_down,
				verified = excluded.verified,
				observed_at = excluded.observed_at
		`, string(services), st.Snapshot.IsDown, st.Snapshot.Verified, st.Snapshot.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("写入当前状态失败: %w", err)
		}
	}

	// 历史整体替换（保留窗口内条目数很少）
	if _, err := ss.conn.ExecContext(ctx, `DELETE FROM outage_history`); err != nil {
		return fmt.Errorf("清空故障历史失败: %w", err)
	}
	for _, iv := range st.History.Intervals {
		affected, peak, err := marshalInterval(iv)
		if err != nil {
			return err
		}
		var endAt any
		if iv.End != nil {
			endAt = iv.End.UnixNano()
		}
		if _, err := ss.conn.ExecContext(ctx,
			`INSERT INTO outage_history (start_at, end_at, affected, peak) VALUES (?, ?, ?, ?)`,
			iv.Start.UnixNano(), endAt, affected, peak,
		); err != nil {
			return fmt.Errorf("写入故障历史失败: %w", err)
		}
	}

	ss.dirty = true
	return nil
}

// Close 有写入时提交，否则回滚；随后归还连接
func (ss *sqliteSession) Close(ctx context.Context) error {
	if ss.done {
		return nil
	}
	ss.done = true
	defer ss.conn.Close()

	// 调用方 ctx 可能已取消，提交/回滚使用独立 ctx
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if !ss.dirty {
		_, err := ss.conn.ExecContext(endCtx, "ROLLBACK")
		return err
	}
	if _, err := ss.conn.ExecContext(endCtx, "COMMIT"); err != nil {
		_, _ = ss.conn.ExecContext(endCtx, "ROLLBACK")
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// marshalInterval 序列化区间的列表字段
func marshalInterval(iv history.Interval) (affected, peak string, err error) {
	a, err := json.Marshal(nonNil(iv.AffectedServices))
	if err != nil {
		return "", "", fmt.Errorf("序列化受影响服务失败: %w", err)
	}
	p, err := json.Marshal(iv.Peak)
	if err != nil {
		return "", "", fmt.Errorf("序列化峰值状态失败: %w", err)
	}
	return string(a), string(p), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
