package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	var count int
	require.NoError(t, l.db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRecordAndGet(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	r, err := l.Record(ctx, Render{RunID: "run-1", Part: 1, AudioURL: "https://a/1.wav", VideoID: "v1"})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, StatusSubmitted, r.Status)
	assert.True(t, r.InFlight())
	assert.True(t, r.Reusable())
	assert.False(t, r.CreatedAt.IsZero())

	got, err := l.Get(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.VideoID)

	_, err = l.Get(ctx, "run-1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordReplacesSubmission(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	first, err := l.Record(ctx, Render{RunID: "run-1", Part: 1, VideoID: "old"})
	require.NoError(t, err)
	require.NoError(t, l.UpdateStatus(ctx, first.ID, Update{Status: StatusFailed, Error: "audio too long"}))

	second, err := l.Record(ctx, Render{RunID: "run-1", Part: 1, VideoID: "new"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new", second.VideoID)
	assert.Equal(t, StatusSubmitted, second.Status)
	assert.Empty(t, second.Error)
}

func TestRecordValidates(t *testing.T) {
	l := openTest(t)
	_, err := l.Record(context.Background(), Render{Part: 1})
	assert.Error(t, err)
	_, err = l.Record(context.Background(), Render{RunID: "r"})
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	r, err := l.Record(ctx, Render{RunID: "run-1", Part: 1, VideoID: "v1"})
	require.NoError(t, err)

	require.NoError(t, l.UpdateStatus(ctx, r.ID, Update{Status: StatusCompleted, VideoURL: "https://cdn/v1.mp4"}))
	require.NoError(t, l.UpdateStatus(ctx, r.ID, Update{Status: StatusDownloaded, OutputPath: "/data/avatar_1.mp4"}))

	got, err := l.Get(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, got.Status)
	assert.Equal(t, "https://cdn/v1.mp4", got.VideoURL)
	assert.Equal(t, "/data/avatar_1.mp4", got.OutputPath)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	assert.ErrorIs(t, l.UpdateStatus(ctx, 999, Update{Status: StatusFailed}), ErrNotFound)
	assert.Error(t, l.UpdateStatus(ctx, r.ID, Update{}))
}

func TestPendingAndForRun(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	for part := 3; part >= 1; part-- {
		_, err := l.Record(ctx, Render{RunID: "run-1", Part: part, VideoID: "v"})
		require.NoError(t, err)
	}
	done, err := l.Get(ctx, "run-1", 2)
	require.NoError(t, err)
	require.NoError(t, l.UpdateStatus(ctx, done.ID, Update{Status: StatusCompleted}))
	_, err = l.Record(ctx, Render{RunID: "run-2", Part: 1, VideoID: "other"})
	require.NoError(t, err)

	pending, err := l.Pending(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Part)
	assert.Equal(t, 3, pending[1].Part)

	all, err := l.ForRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListLatest(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	_, err := l.Record(ctx, Render{RunID: "run-1", Part: 1, VideoID: "a"})
	require.NoError(t, err)
	_, err = l.Record(ctx, Render{RunID: "run-2", Part: 1, VideoID: "b"})
	require.NoError(t, err)

	list, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].RunID)

	run, err := l.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", run)
}

func TestLatestRunEmpty(t *testing.T) {
	_, err := openTest(t).LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}
