package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dotsetgreg/dotpersona/pkg/memory"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStoreWithUsers(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(memory.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	for _, id := range ids {
		_, err := store.Update(context.Background(), id, func(p *personality.UserProfile) error {
			p.ConversationCount = 1
			return nil
		})
		require.NoError(t, err)
	}
	return store
}

func TestNewScheduler_RejectsBadInput(t *testing.T) {
	store := newStoreWithUsers(t)
	_, err := NewScheduler("whenever", store, t.TempDir(), 3)
	require.Error(t, err)
	_, err = NewScheduler("0 3 * * *", store, "", 3)
	require.Error(t, err)
}

func TestRunOnce_WritesSnapshot(t *testing.T) {
	store := newStoreWithUsers(t, "alice", "bob")
	dir := t.TempDir()
	s, err := NewScheduler("0 3 * * *", store, dir, 3)
	require.NoError(t, err)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)

	entries, err := os.ReadDir(report.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunOnce_PrunesOldSnapshots(t *testing.T) {
	store := newStoreWithUsers(t, "alice")
	dir := t.TempDir()
	s, err := NewScheduler("", store, dir, 2)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	var dirs []string
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		s.now = func() time.Time { return at }
		report, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		dirs = append(dirs, filepath.Base(report.Dir))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var kept []string
	for _, e := range entries {
		kept = append(kept, e.Name())
	}
	assert.Equal(t, dirs[2:], kept)
}

func TestRunOnce_PruneLeavesForeignDirectories(t *testing.T) {
	store := newStoreWithUsers(t, "alice")
	dir := t.TempDir()
	foreign := []string{"manual-export", "20260101T000000Z-notes", "archive"}
	for _, name := range foreign {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	s, err := NewScheduler("", store, dir, 1)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	var last string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		report, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		last = filepath.Base(report.Dir)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var kept []string
	for _, e := range entries {
		kept = append(kept, e.Name())
	}
	assert.ElementsMatch(t, append(foreign, last), kept)
}

func TestIsSnapshotName(t *testing.T) {
	assert.True(t, isSnapshotName("20260501T030000Z-0a1b2c3d"))
	assert.False(t, isSnapshotName("20260501T030000Z-notes"))
	assert.False(t, isSnapshotName("manual-export"))
	assert.False(t, isSnapshotName("20260501T030000Z"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := newStoreWithUsers(t)
	for _, schedule := range []string{"", "0 3 * * *"} {
		s, err := NewScheduler(schedule, store, t.TempDir(), 1)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("Run(%q) did not stop", schedule)
		}
	}
}
