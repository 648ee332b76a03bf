package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"statuspulse/internal/config"
	"statuspulse/internal/history"
	"statuspulse/internal/logger"
	"statuspulse/internal/status"
)

// PostgresStore PostgreSQL 存储实现
// 排他锁使用事务级 advisory lock，事务结束时自动释放
type PostgresStore struct {
	pool        *pgxpool.Pool
	prefix      string
	lockKey     int64
	lockTimeout time.Duration
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(cfg *config.PostgresConfig, lockTimeout time.Duration) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 连接配置失败: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)

	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			logger.Warn("storage", "解析 conn_max_lifetime 失败，使用默认值 1h", "error", err)
			lifetime = time.Hour
		}
		poolConfig.MaxConnLifetime = lifetime
	} else {
		poolConfig.MaxConnLifetime = time.Hour
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 PostgreSQL 连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}

	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &PostgresStore{
		pool:        pool,
		prefix:      cfg.TablePrefix,
		lockKey:     advisoryKey(cfg.TablePrefix),
		lockTimeout: lockTimeout,
	}, nil
}

// advisoryKey 由表前缀派生 advisory lock 键，不同前缀互不阻塞
func advisoryKey(prefix string) int64 {
	h := fnv.New64a()
	h.Write([]byte("statuspulse:" + prefix))
	return int64(h.Sum64())
}

func (s *PostgresStore) stateTable() string   { return s.prefix + "_current_state" }
func (s *PostgresStore) historyTable() string { return s.prefix + "_outage_history" }

// Init 初始化数据库表
func (s *PostgresStore) Init(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		services JSONB NOT NULL,
		is_down BOOLEAN NOT NULL,
		verified BOOLEAN NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		id BIGSERIAL PRIMARY KEY,
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ,
		affected JSONB NOT NULL,
		peak JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_%[2]s_start ON %[2]s(start_at);
	`, s.stateTable(), s.historyTable())

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("初始化 PostgreSQL 数据库失败: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Begin 开启事务并等待 advisory lock（受 lock_timeout 约束）
func (s *PostgresStore) Begin(ctx context.Context) (Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("设置 lock_timeout 失败: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", s.lockKey); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return &postgresSession{store: s, tx: tx}, nil
}

type postgresSession struct {
	store *PostgresStore
	tx    pgx.Tx
	dirty bool
	done  bool
}

func (ps *postgresSession) Load(ctx context.Context) (*State, error) {
	st := &State{}

	var (
		services   []byte
		isDown     bool
		verified   bool
		observedAt time.Time
	)
	err := ps.tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT services, is_down, verified, observed_at FROM %s WHERE id = 1`, ps.store.stateTable()),
	).Scan(&services, &isDown, &verified, &observedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("查询当前状态失败: %w", err)
	default:
		snap := &status.Snapshot{Timestamp: observedAt.UTC(), IsDown: isDown, Verified: verified}
		if err := json.Unmarshal(services, &snap.Services); err != nil {
			return nil, fmt.Errorf("%w: current_state.services: %v", ErrCorrupt, err)
		}
		st.Snapshot = snap
	}

	rows, err := ps.tx.Query(ctx,
		fmt.Sprintf(`SELECT start_at, end_at, affected, peak FROM %s ORDER BY start_at ASC, id ASC`, ps.store.historyTable()))
	if err != nil {
		return nil, fmt.Errorf("查询故障历史失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			startAt  time.Time
			endAt    *time.Time
			affected []byte
			peak     []byte
		)
		if err := rows.Scan(&startAt, &endAt, &affected, &peak); err != nil {
			return nil, fmt.Errorf("扫描故障历史失败: %w", err)
		}
		iv := history.Interval{Start: startAt.UTC()}
		if endAt != nil {
			end := endAt.UTC()
			iv.End = &end
		}
		if err := json.Unmarshal(affected, &iv.AffectedServices); err != nil {
			return nil, fmt.Errorf("%w: outage_history.affected: %v", ErrCorrupt, err)
		}
		if err := json.Unmarshal(peak, &iv.Peak); err != nil {
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

func (ps *postgresSession) Save(ctx context.Context, st *State) error {
	if st.Snapshot != nil {
		services, err := json.Marshal(st.Snapshot.Services)
		if err != nil {
			return fmt.Errorf("序列化快照失败: %w", err)
		}
		_, err = ps.tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, services, is_down, verified, observed_at)
			VALUES (1, $1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				services = EXCLUDED.services,
				is_down = EXCLUDED.is_down,
				verified = EXCLUDED.verified,
				observed_at = EXCLUDED.observed_at
		`, ps.store.stateTable()), string(services), st.Snapshot.IsDown, st.Snapshot.Verified, st.Snapshot.Timestamp)
		if err != nil {
			return fmt.Errorf("写入当前状态失败: %w", err)
		}
	}

	if _, err := ps.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, ps.store.historyTable())); err != nil {
		return fmt.Errorf("清空故障历史失败: %w", err)
	}

	batch := &pgx.Batch{}
	insertSQL := fmt.Sprintf(`INSERT INTO %s (start_at, end_at, affected, peak) VALUES ($1, $2, $3, $4)`, ps.store.historyTable())
	for _, iv := range st.History.Intervals {
		affected, peak, err := marshalInterval(iv)
		if err != nil {
			return err
		}
		batch.Queue(insertSQL, iv.Start, iv.End, affected, peak)
	}
	if batch.Len() > 0 {
		if err := ps.tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("写入故障历史失败: %w", err)
		}
	}

	ps.dirty = true
	return nil
}

// Close 有写入时提交，否则回滚；事务结束即释放 advisory lock
func (ps *postgresSession) Close(ctx context.Context) error {
	if ps.done {
		return nil
	}
	ps.done = true

	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if !ps.dirty {
		return ps.tx.Rollback(endCtx)
	}
	if err := ps.tx.Commit(endCtx); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}
