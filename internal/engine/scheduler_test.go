package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceymoss/go-taskplan/pkg/storage"
)

func TestSchedulerRunNowUpdatesStats(t *testing.T) {
	root := t.TempDir()
	s := NewScheduler(NewRunner(storage.NewLocalStorage()), newPlanner(t, root))

	summary, err := s.RunNow(context.Background(), "report_file_mtime", SourceCLI)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Count(StatusExecuted))

	st, ok := s.Stats.Get("report_file_mtime")
	require.True(t, ok)
	assert.Equal(t, "Idle", st.Status)
	assert.Equal(t, "Success", st.LastResult)
	assert.Equal(t, int64(1), st.RunCount)
	assert.Equal(t, SourceCLI, st.Source)
	assert.Equal(t, summary.RunID, st.LastRunID)
	assert.Equal(t, 4, st.Executed)
}

func TestSchedulerRecordsFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))
	s := NewScheduler(NewRunner(storage.NewLocalStorage()), newPlanner(t, root))

	_, err := s.RunNow(context.Background(), "report_file_size", SourceCLI)
	require.NoError(t, err)

	st, _ := s.Stats.Get("report_file_size")
	assert.Equal(t, "Error", st.Status)
	assert.Contains(t, st.LastResult, "Error")
	assert.Equal(t, 4, st.Failed)
}

func TestSchedulerUnknownFamily(t *testing.T) {
	s := NewScheduler(NewRunner(storage.NewLocalStorage()), newPlanner(t, t.TempDir()))

	_, err := s.RunNow(context.Background(), "nope", SourceCLI)
	assert.Error(t, err)
	assert.Error(t, s.AddJob("@every 1m", "nope"))
	assert.Error(t, s.ManualRun("nope"))
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler(NewRunner(storage.NewLocalStorage()), newPlanner(t, t.TempDir()))

	require.NoError(t, s.AddJob("@every 1h", "report_file_size"))
	assert.Error(t, s.AddJob("@every 1h", "report_file_size"), "同一任务族不能重复定时")
	assert.Error(t, s.AddJob("not a cron", "report_file_mtime"))

	st, ok := s.Stats.Get("report_file_size")
	require.True(t, ok)
	assert.Equal(t, "@every 1h", st.CronExpr)

	s.Start()
	s.Stop()
}

func TestSchedulerClean(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewScheduler(NewRunner(storage.NewLocalStorage()), newPlanner(t, root))
	_, err := s.RunNow(ctx, "report_file_size", SourceCLI)
	require.NoError(t, err)

	report, err := s.Clean(ctx, "report_file_size", true)
	require.NoError(t, err)
	assert.Len(t, report.Removed, 4)
	assert.NoFileExists(t, filepath.Join(root, "alfa.txt"))
	assert.NoDirExists(t, filepath.Join(root, "report_file_size_alfa.txt"))
}
