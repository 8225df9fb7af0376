package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frp-clean/pkg/core"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "pubspec.yaml"), "name: app")
	writeFile(t, filepath.Join(root, "app", "build", "out"), "0123456789")
	writeFile(t, filepath.Join(root, "crate", "Cargo.toml"), "[package]")
	writeFile(t, filepath.Join(root, "crate", "target", "bin"), "01234")
	return root
}

func configs(root string) (core.ScanConfig, core.CleanConfig) {
	scanCfg := core.DefaultScanConfig(root)
	scanCfg.Parallelism = 2
	cleanCfg := core.DefaultCleanConfig()
	cleanCfg.Parallelism = 2
	return scanCfg, cleanCfg
}

func TestRunScansThenCleans(t *testing.T) {
	root := buildTree(t)
	events := &core.Recorder{}
	scanCfg, cleanCfg := configs(root)

	report, err := NewCoordinator(nil, events).Run(context.Background(), scanCfg, cleanCfg)
	require.NoError(t, err)

	assert.Len(t, report.Scan.Projects, 2)
	assert.Len(t, report.Selected, 2)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Summary.Cleaned)
	assert.Equal(t, int64(15), report.Summary.BytesFreed)
	assert.NoDirExists(t, filepath.Join(root, "app", "build"))
	assert.NoDirExists(t, filepath.Join(root, "crate", "target"))

	kinds := events.Kinds()
	assert.Equal(t, []core.EventKind{
		core.EventScanStarted,
		core.EventProjectFound,
		core.EventProjectFound,
		core.EventScanCompleted,
		core.EventCleanStarted,
		core.EventProjectCleaned,
		core.EventProjectCleaned,
		core.EventCleanCompleted,
	}, kinds)
}

func TestRunFilterByType(t *testing.T) {
	root := buildTree(t)
	scanCfg, cleanCfg := configs(root)

	events := &core.Recorder{}

	report, err := NewCoordinator(nil, events).Run(context.Background(), scanCfg, cleanCfg, FilterByType(core.Rust))
	require.NoError(t, err)

	require.Len(t, report.Selected, 1)
	assert.Equal(t, core.Rust, report.Selected[0].Type)
	assert.Equal(t, 2, report.Summary.Found)
	assert.Equal(t, 1, report.Summary.Selected)
	assert.Equal(t, 1, report.Summary.Cleaned)

	all := events.Events()
	last := all[len(all)-1]
	require.Equal(t, core.EventCleanCompleted, last.Kind)
	require.NotNil(t, last.Summary)
	assert.Equal(t, 2, last.Summary.Found)
	assert.Equal(t, 1, last.Summary.Selected)
	assert.DirExists(t, filepath.Join(root, "app", "build"))
	assert.NoDirExists(t, filepath.Join(root, "crate", "target"))
}

func TestFilterByTypeWithoutTypesKeepsAll(t *testing.T) {
	found := []core.ProjectRecord{
		core.NewProjectRecord("/a", core.Flutter, 1),
		core.NewProjectRecord("/b", core.Mixed, 2),
	}
	got, err := FilterByType()(context.Background(), found)
	require.NoError(t, err)
	assert.Equal(t, found, got)
}

func TestRunAbortedBySelector(t *testing.T) {
	root := buildTree(t)
	events := &core.Recorder{}
	scanCfg, cleanCfg := configs(root)

	decline := func(context.Context, []core.ProjectRecord) ([]core.ProjectRecord, error) {
		return nil, ErrAborted
	}
	report, err := NewCoordinator(nil, events).Run(context.Background(), scanCfg, cleanCfg, decline)
	require.ErrorIs(t, err, ErrAborted)
	assert.Len(t, report.Scan.Projects, 2)
	assert.Empty(t, report.Results)
	assert.DirExists(t, filepath.Join(root, "app", "build"))
	assert.Equal(t, core.EventScanCompleted, events.Kinds()[len(events.Kinds())-1])
}

func TestRunConfigErrors(t *testing.T) {
	root := buildTree(t)

	t.Run("scan", func(t *testing.T) {
		scanCfg, cleanCfg := configs(filepath.Join(root, "missing"))
		_, err := NewCoordinator(nil, nil).Run(context.Background(), scanCfg, cleanCfg)
		assert.True(t, errors.Is(err, core.ErrInvalidConfig))
	})

	t.Run("clean", func(t *testing.T) {
		scanCfg, cleanCfg := configs(root)
		cleanCfg.Parallelism = 0
		report, err := NewCoordinator(nil, nil).Run(context.Background(), scanCfg, cleanCfg)
		assert.True(t, errors.Is(err, core.ErrInvalidConfig))
		assert.Len(t, report.Selected, 2)
		assert.DirExists(t, filepath.Join(root, "crate", "target"))
	})
}
