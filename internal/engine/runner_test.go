package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceymoss/go-taskplan/internal/core"
	"github.com/iceymoss/go-taskplan/internal/tasks"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

func newPlanner(t *testing.T, root string) *tasks.Planner {
	t.Helper()
	reg, err := tasks.NewRegistry(tasks.DefaultFamilies()...)
	require.NoError(t, err)
	gen := tasks.NewGenerator(tasks.DefaultPlan(), root, 123, storage.NewLocalStorage())
	return tasks.NewPlanner(gen, reg)
}

func statusByID(s *Summary) map[string]Status {
	out := map[string]Status{}
	for _, r := range s.Results {
		out[r.ID] = r.Status
	}
	return out
}

func TestRunThenSkip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	g, err := newPlanner(t, root).Graph("report_file_complete")
	require.NoError(t, err)
	runner := NewRunner(storage.NewLocalStorage(), WithWorkers(2))

	first, err := runner.Run(ctx, g)
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Equal(t, 4, first.Count(StatusExecuted))
	assert.NotEmpty(t, first.RunID)
	assert.FileExists(t, filepath.Join(root, "report_file_complete_beta.txt", "alldata.json"))

	second, err := runner.Run(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Count(StatusUpToDate))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunReexecutesStale(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	planner := newPlanner(t, root)
	runner := NewRunner(storage.NewLocalStorage())

	g, err := planner.Graph("report_file_size")
	require.NoError(t, err)
	_, err = runner.Run(ctx, g)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "alfa.txt"), future, future))

	// 每次运行都重新生成任务图
	g, err = planner.Graph("report_file_size")
	require.NoError(t, err)
	summary, err := runner.Run(ctx, g)
	require.NoError(t, err)

	got := statusByID(summary)
	assert.Equal(t, StatusUpToDate, got["create_file:alfa.txt"])
	assert.Equal(t, StatusExecuted, got["report_file_size:alfa.txt"])
	assert.Equal(t, StatusUpToDate, got["report_file_size:beta.txt"])
}

func TestRunMissingTargetIsStale(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	planner := newPlanner(t, root)
	runner := NewRunner(storage.NewLocalStorage())

	g, err := planner.Graph("report_file_complete")
	require.NoError(t, err)
	_, err = runner.Run(ctx, g)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "report_file_complete_beta.txt", "mtime.json")))
	summary, err := runner.Run(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, statusByID(summary)["report_file_complete:beta.txt"])
	assert.Equal(t, 1, summary.Count(StatusExecuted))
}

func TestRunFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := storage.NewLocalStorage()
	require.NoError(t, os.WriteFile(filepath.Join(root, "beta.txt"), []byte("you are BETA"), 0o644))

	topics := []core.Topic{core.TopicSize}
	missing, err := tasks.Build(tasks.NewTaskContext(core.SourceArtifact{Root: root, Name: "alfa.txt"}, "r_", 0, store), "r", topics, tasks.CleanupTargetsAndDir)
	require.NoError(t, err)
	present, err := tasks.Build(tasks.NewTaskContext(core.SourceArtifact{Root: root, Name: "beta.txt"}, "r_", 0, store), "r", topics, tasks.CleanupTargetsAndDir)
	require.NoError(t, err)

	g, err := tasks.NewGraph([]*tasks.Descriptor{missing, present}, nil)
	require.NoError(t, err)

	summary, err := NewRunner(store).Run(ctx, g)
	require.NoError(t, err)

	got := statusByID(summary)
	assert.Equal(t, StatusFailed, got["r:alfa.txt"])
	assert.Equal(t, StatusExecuted, got["r:beta.txt"])
	assert.True(t, apperr.IsCode(summary.Err(), xerr.SOURCE_MISSING))
	assert.FileExists(t, filepath.Join(root, "r_beta.txt", "size.json"))
}

func TestRunBlocksDependants(t *testing.T) {
	// 根目录位置被普通文件占用，创建任务写入失败
	root := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))
	g, err := newPlanner(t, root).Graph("report_file_mtime")
	require.NoError(t, err)

	summary, err := NewRunner(storage.NewLocalStorage()).Run(context.Background(), g)
	require.NoError(t, err)

	got := statusByID(summary)
	assert.Equal(t, StatusFailed, got["create_file:alfa.txt"])
	assert.Equal(t, StatusBlocked, got["report_file_mtime:alfa.txt"])
	assert.Equal(t, StatusBlocked, got["report_file_mtime:beta.txt"])
	assert.True(t, apperr.IsCode(summary.Err(), xerr.WRITE_FAILURE))
	assert.NoDirExists(t, root)
	assert.FileExists(t, root)
}

func TestRunForce(t *testing.T) {
	ctx := context.Background()
	g, err := newPlanner(t, t.TempDir()).Graph("report_file_size")
	require.NoError(t, err)

	_, err = NewRunner(storage.NewLocalStorage()).Run(ctx, g)
	require.NoError(t, err)

	summary, err := NewRunner(storage.NewLocalStorage(), WithForce(true)).Run(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Count(StatusExecuted))
}

func TestRunCancelled(t *testing.T) {
	g, err := newPlanner(t, t.TempDir()).Graph("report_file_size")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRunner(storage.NewLocalStorage()).Run(ctx, g)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanFamily(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	g, err := newPlanner(t, root).Graph("report_file_complete")
	require.NoError(t, err)
	runner := NewRunner(storage.NewLocalStorage())
	_, err = runner.Run(ctx, g)
	require.NoError(t, err)

	foreign := filepath.Join(root, "report_file_complete_alfa.txt", "keep.me")
	require.NoError(t, os.WriteFile(foreign, nil, 0o644))

	report, err := runner.Clean(ctx, g.Family("report_file_complete"))
	require.NoError(t, err)
	assert.Len(t, report.Removed, 6)
	assert.Len(t, report.Warnings, 1)
	assert.FileExists(t, foreign)
	assert.NoDirExists(t, filepath.Join(root, "report_file_complete_beta.txt"))
	assert.FileExists(t, filepath.Join(root, "alfa.txt"), "只清理报告任务时保留源文件")

	// 再清理一次不报错
	report, err = runner.Clean(ctx, g.Descriptors())
	require.NoError(t, err)
	assert.Len(t, report.Removed, 2)
	assert.NoFileExists(t, filepath.Join(root, "alfa.txt"))
}

type memoryHistory struct {
	mu   sync.Mutex
	rows map[string]Result
}

func (m *memoryHistory) Record(_ context.Context, runID string, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[runID+"/"+r.ID] = r
	return nil
}

func TestRunRecordsHistory(t *testing.T) {
	g, err := newPlanner(t, t.TempDir()).Graph("report_file_size")
	require.NoError(t, err)
	h := &memoryHistory{rows: map[string]Result{}}

	summary, err := NewRunner(storage.NewLocalStorage(), WithHistory(h)).Run(context.Background(), g)
	require.NoError(t, err)
	assert.Len(t, h.rows, g.Len())
	assert.Equal(t, StatusExecuted, h.rows[summary.RunID+"/report_file_size:alfa.txt"].Status)
}

func TestRunCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fresh", "root")
	g, err := newPlanner(t, root).Graph("report_file_size")
	require.NoError(t, err)

	summary, err := NewRunner(storage.NewLocalStorage()).Run(context.Background(), g)
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 4, summary.Count(StatusExecuted))
	assert.FileExists(t, filepath.Join(root, "report_file_size_alfa.txt", "size.json"))
}
