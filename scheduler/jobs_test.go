package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepScratchRemovesStaleEntries(t *testing.T) {
	scratch := t.TempDir()

	stale := filepath.Join(scratch, "stale")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(scratch, "fresh")
	require.NoError(t, os.MkdirAll(fresh, 0o755))

	require.NoError(t, sweepScratch(context.Background(), scratch, 24*time.Hour))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestSweepScratchMissingDir(t *testing.T) {
	err := sweepScratch(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Hour)
	assert.NoError(t, err)
}

func TestSchedulerJobRegistration(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Stop() //nolint:errcheck

	ran := make(chan struct{}, 1)
	err = s.AddJob("test-job", "Test job", "hourly",
		gocron.DurationJob(time.Hour),
		func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	)
	require.NoError(t, err)

	s.Start()
	require.NoError(t, s.RunJobNow("test-job"))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	assert.Contains(t, s.Jobs(), "test-job")
	assert.Error(t, s.RunJobNow("no-such-job"))
}
