package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statuspulse/internal/config"
	"statuspulse/internal/history"
	"statuspulse/internal/status"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleState() *State {
	c := status.NewClassifier(nil)
	snap := status.NewSnapshot([]status.Reading{
		{Name: "Store", Label: "Offline"},
		{Name: "Community", Label: "Normal"},
	}, base, true, c)

	end := base.Add(-time.Hour)
	return &State{
		Snapshot: &snap,
		History: history.Log{Intervals: []history.Interval{
			{
				Start:            base.Add(-2 * time.Hour),
				End:              &end,
				AffectedServices: []string{"Community"},
				Peak:             []status.ServiceStatus{{Name: "Community", Label: "Offline", Severity: status.SeverityBad}},
			},
			{
				Start:            base,
				AffectedServices: []string{"Store"},
				Peak:             []status.ServiceStatus{{Name: "Store", Label: "Offline", Severity: status.SeverityBad}},
			},
		}},
	}
}

// assertStateEqual 比较时间字段用 Equal，避免时区指针差异
func assertStateEqual(t *testing.T, want, got *State) {
	t.Helper()
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, want.Snapshot.Services, got.Snapshot.Services)
	assert.Equal(t, want.Snapshot.IsDown, got.Snapshot.IsDown)
	assert.Equal(t, want.Snapshot.Verified, got.Snapshot.Verified)
	assert.True(t, want.Snapshot.Timestamp.Equal(got.Snapshot.Timestamp), "timestamp %v != %v", want.Snapshot.Timestamp, got.Snapshot.Timestamp)

	require.Len(t, got.History.Intervals, len(want.History.Intervals))
	for i, w := range want.History.Intervals {
		g := got.History.Intervals[i]
		assert.True(t, w.Start.Equal(g.Start), "interval %d start", i)
		assert.Equal(t, w.IsOpen(), g.IsOpen(), "interval %d open", i)
		if w.End != nil && g.End != nil {
			assert.True(t, w.End.Equal(*g.End), "interval %d end", i)
		}
		assert.Equal(t, w.AffectedServices, g.AffectedServices)
		assert.Equal(t, w.Peak, g.Peak)
	}
}

// roundTrip 在存储上验证：首次为空 → 保存 → 重新读取一致
func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	sess, err := store.Begin(ctx)
	require.NoError(t, err)
	st, err := sess.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Snapshot, "首次运行不应有快照")
	assert.Empty(t, st.History.Intervals)

	want := sampleState()
	require.NoError(t, sess.Save(ctx, want))
	require.NoError(t, sess.Close(ctx))
	require.NoError(t, sess.Close(ctx), "Close 应可重复调用")

	sess, err = store.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)
	got, err := sess.Load(ctx)
	require.NoError(t, err)
	assertStateEqual(t, want, got)
}

func TestFileStore_RoundTrip(t *testing.T) {
	roundTrip(t, NewFileStore(filepath.Join(t.TempDir(), "state"), time.Second))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), time.Second)
	require.NoError(t, err)
	defer store.Close()
	roundTrip(t, store)
}

func TestFileStore_LockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a := NewFileStore(dir, 200*time.Millisecond)
	b := NewFileStore(dir, 200*time.Millisecond)
	require.NoError(t, a.Init(ctx))

	sess, err := a.Begin(ctx)
	require.NoError(t, err)

	_, err = b.Begin(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, sess.Close(ctx))
	sess, err = b.Begin(ctx)
	require.NoError(t, err, "锁释放后应能获取")
	require.NoError(t, sess.Close(ctx))
}

func TestFileStore_SaveLeavesOnlyStateFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := NewFileStore(dir, time.Second)
	require.NoError(t, store.Init(ctx))

	for i := 0; i < 2; i++ {
		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Save(ctx, sampleState()))
		require.NoError(t, sess.Close(ctx))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{historyFileName, lockFileName, stateFileName}, names, "不应残留临时文件")
}

func TestFileStore_LeftoverLockFileDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	lock := filepath.Join(dir, lockFileName)
	require.NoError(t, os.WriteFile(lock, []byte("1 crashed\n"), 0o644))

	sess, err := NewFileStore(dir, 100*time.Millisecond).Begin(ctx)
	require.NoError(t, err, "无人持有的锁文件不应阻塞")
	require.NoError(t, sess.Close(ctx))
}

func TestFileStore_HeldLockIsNeverTakenOver(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	holder := NewFileStore(dir, time.Second)
	require.NoError(t, holder.Init(ctx))

	sess, err := holder.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)

	// 锁文件再旧，只要仍被持有就必须等待
	old := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, lockFileName), old, old))

	_, err = NewFileStore(dir, 150*time.Millisecond).Begin(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestFileStore_BeginHonorsContext(t *testing.T) {
	dir := t.TempDir()
	holder := NewFileStore(dir, time.Second)
	require.NoError(t, holder.Init(context.Background()))
	sess, err := holder.Begin(context.Background())
	require.NoError(t, err)
	defer sess.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileStore(dir, time.Minute).Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLockTimeout)
}

func TestSQLiteStore_LockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), 200*time.Millisecond)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Init(ctx))

	sess, err := store.Begin(ctx)
	require.NoError(t, err)

	_, err = store.Begin(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, sess.Close(ctx))
	sess, err = store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Close(ctx))
}

func TestSQLiteStore_UnsavedSessionRollsBack(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), time.Second)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Init(ctx))

	sess, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = sess.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Close(ctx))

	sess, err = store.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)
	st, err := sess.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Snapshot)
}

func TestFileStore_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{name: "快照不是 JSON", file: stateFileName, data: "{not json"},
		{name: "历史不是 JSON", file: historyFileName, data: "[]]"},
		{name: "快照缺少时间戳", file: stateFileName, data: `{"services":[{"name":"Store","label":"Normal","severity":"OK"}]}`},
		{
			name: "未结束区间不在末尾",
			file: historyFileName,
			data: `{"intervals":[{"start":"2025-03-01T10:00:00Z","affected_services":["Store"],"peak":[]},` +
				`{"start":"2025-03-01T11:00:00Z","end":"2025-03-01T11:30:00Z","affected_services":["Store"],"peak":[]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.data), 0o644))

			sess, err := NewFileStore(dir, time.Second).Begin(ctx)
			require.NoError(t, err)
			defer sess.Close(ctx)

			_, err = sess.Load(ctx)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	store, err := New(&config.StorageConfig{Type: config.StorageFile, File: config.FileConfig{Dir: dir}})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = New(&config.StorageConfig{Type: config.StorageSQLite, SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "s.db")}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	store.Close()

	_, err = New(&config.StorageConfig{Type: "redis"})
	assert.Error(t, err)
}

// 需要真实 PostgreSQL：设置 STATUSPULSE_TEST_POSTGRES_DATABASE 等变量后运行
func TestPostgresStore_RoundTrip(t *testing.T) {
	db := os.Getenv("STATUSPULSE_TEST_POSTGRES_DATABASE")
	if db == "" {
		t.Skip("未设置 STATUSPULSE_TEST_POSTGRES_DATABASE，跳过 PostgreSQL 测试")
	}
	cfg := config.StorageConfig{
		Type: config.StoragePostgres,
		Postgres: config.PostgresConfig{
			Host:        os.Getenv("STATUSPULSE_TEST_POSTGRES_HOST"),
			User:        os.Getenv("STATUSPULSE_TEST_POSTGRES_USER"),
			Password:    os.Getenv("STATUSPULSE_TEST_POSTGRES_PASSWORD"),
			Database:    db,
			TablePrefix: "statuspulse_test_" + time.Now().Format("150405"),
		},
	}
	require.NoError(t, cfg.Normalize())

	store, err := New(&cfg)
	require.NoError(t, err)
	defer store.Close()
	roundTrip(t, store)
}
