package cleaner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frp-clean/pkg/core"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
}

// flutterProject creates a Flutter project whose artifacts total 310 bytes.
func flutterProject(t *testing.T, dir string) core.ProjectRecord {
	t.Helper()
	writeFile(t, filepath.Join(dir, "pubspec.yaml"), 10)
	writeFile(t, filepath.Join(dir, ".dart_tool", "package_config.json"), 100)
	writeFile(t, filepath.Join(dir, "build", "app", "outputs", "app.apk"), 200)
	writeFile(t, filepath.Join(dir, ".flutter-plugins-dependencies"), 10)
	return core.NewProjectRecord(dir, core.Flutter, 1)
}

// rustProject creates a Rust project whose artifacts total 300 bytes.
func rustProject(t *testing.T, dir string) core.ProjectRecord {
	t.Helper()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), 10)
	writeFile(t, filepath.Join(dir, "target", "debug", "app"), 250)
	writeFile(t, filepath.Join(dir, "target", "debug", "deps", "app.d"), 50)
	return core.NewProjectRecord(dir, core.Rust, 1)
}

func mixedProject(t *testing.T, dir string) core.ProjectRecord {
	t.Helper()
	flutterProject(t, dir)
	rustProject(t, dir)
	return core.NewProjectRecord(dir, core.Mixed, 1)
}

func byPath(results []core.CleanResult) map[string]core.CleanResult {
	m := make(map[string]core.CleanResult, len(results))
	for _, r := range results {
		m[r.Path] = r
	}
	return m
}

func cleanConfig(workers int) core.CleanConfig {
	return core.CleanConfig{Parallelism: core.Parallelism(workers)}
}

// fakeRunner stands in for flutter and cargo. A successful command
// deletes the artifacts of its tool.
type fakeRunner struct {
	missing  map[string]bool
	exitCode map[string]int

	// When release is set, Run reports on started and waits for release.
	started chan string
	release chan struct{}

	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) LookPath(program string) (string, error) {
	if f.missing[program] {
		return "", &exec.Error{Name: program, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + program, nil
}

func (f *fakeRunner) Run(ctx context.Context, dir, program string, args ...string) (*RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, program+" "+strings.Join(args, " ")+" @ "+dir)
	f.mu.Unlock()

	if f.release != nil {
		f.started <- dir
		<-f.release
	}
	if code := f.exitCode[program]; code != 0 {
		res := &RunResult{ExitCode: code, Stderr: "compiling...\nerror: boom\n"}
		return res, fmt.Errorf("%s exited with code %d", program, code)
	}

	scope := core.Rust
	if program == "flutter" {
		scope = core.Flutter
	}
	for _, p := range core.ArtifactPaths(dir, scope) {
		if err := os.RemoveAll(p); err != nil {
			return nil, err
		}
	}
	return &RunResult{}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestCleanRemovesArtifacts(t *testing.T) {
	root := t.TempDir()
	app := flutterProject(t, filepath.Join(root, "app"))
	crate := rustProject(t, filepath.Join(root, "crate"))

	results, summary, err := New().Clean(context.Background(), []core.ProjectRecord{app, crate}, cleanConfig(2))
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := byPath(results)
	assert.Equal(t, core.OutcomeSuccess, got[app.Path].Outcome)
	assert.Equal(t, int64(310), got[app.Path].BytesFreed)
	assert.Equal(t, core.OutcomeSuccess, got[crate.Path].Outcome)
	assert.Equal(t, int64(300), got[crate.Path].BytesFreed)

	for _, p := range append(app.ArtifactPaths, crate.ArtifactPaths...) {
		assert.NoFileExists(t, p)
		assert.NoDirExists(t, p)
	}
	assert.FileExists(t, filepath.Join(app.Path, "pubspec.yaml"))
	assert.FileExists(t, filepath.Join(crate.Path, "Cargo.toml"))

	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Cleaned)
	assert.Equal(t, int64(610), summary.BytesFreed)
	assert.False(t, summary.DryRun)
}

func TestSummaryKeepsScanFoundCount(t *testing.T) {
	root := t.TempDir()
	records := []core.ProjectRecord{
		flutterProject(t, filepath.Join(root, "app")),
		rustProject(t, filepath.Join(root, "crate")),
	}
	cfg := cleanConfig(2)
	cfg.DryRun = true
	cfg.Found = 5

	_, summary, err := New().Clean(context.Background(), records, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Found)
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Cleaned)
}

func TestDryRunReportsWhatARealRunFrees(t *testing.T) {
	root := t.TempDir()
	records := []core.ProjectRecord{
		flutterProject(t, filepath.Join(root, "app")),
		rustProject(t, filepath.Join(root, "crate")),
		mixedProject(t, filepath.Join(root, "both")),
	}

	cfg := cleanConfig(3)
	cfg.DryRun = true
	dry, drySummary, err := New().Clean(context.Background(), records, cfg)
	require.NoError(t, err)
	for _, rec := range records {
		for _, p := range rec.ArtifactPaths {
			_, statErr := os.Lstat(p)
			assert.NoError(t, statErr, "dry run must not touch %s", p)
		}
	}

	wet, wetSummary, err := New().Clean(context.Background(), records, cleanConfig(3))
	require.NoError(t, err)

	dryBy, wetBy := byPath(dry), byPath(wet)
	for _, rec := range records {
		assert.True(t, dryBy[rec.Path].DryRun)
		assert.Equal(t, core.OutcomeSuccess, dryBy[rec.Path].Outcome)
		assert.Equal(t, wetBy[rec.Path].BytesFreed, dryBy[rec.Path].BytesFreed, rec.Path)
	}
	assert.Equal(t, int64(310+300+610), drySummary.BytesFreed)
	assert.Equal(t, wetSummary.BytesFreed, drySummary.BytesFreed)
	assert.True(t, drySummary.DryRun)
}

func TestCleanMissingArtifactsIsSuccess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	writeFile(t, filepath.Join(dir, "Cargo.toml"), 1)
	rec := core.NewProjectRecord(dir, core.Rust, 1)

	results, _, err := New().Clean(context.Background(), []core.ProjectRecord{rec}, cleanConfig(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.OutcomeSuccess, results[0].Outcome)
	assert.Zero(t, results[0].BytesFreed)
}

func TestCleanConfigErrorsTouchNothing(t *testing.T) {
	tests := []struct {
		name string
		cfg  core.CleanConfig
	}{
		{"zero parallelism", cleanConfig(0)},
		{"negative parallelism", cleanConfig(-3)},
		{"command action without commands", core.CleanConfig{
			Parallelism: 1,
			Actions:     map[core.ProjectType]core.Action{core.Rust: {Kind: core.ActionCommand}},
		}},
		{"command without program", core.CleanConfig{
			Parallelism: 1,
			Actions: map[core.ProjectType]core.Action{
				core.Rust: {Kind: core.ActionCommand, Commands: []core.Command{{Program: " "}}},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rustProject(t, filepath.Join(t.TempDir(), "crate"))
			events := &core.Recorder{}

			results, _, err := New(WithSink(events)).Clean(context.Background(), []core.ProjectRecord{rec}, tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidConfig))
			assert.Empty(t, results)
			assert.Empty(t, events.Events())
			assert.DirExists(t, filepath.Join(rec.Path, "target"))
		})
	}
}

func TestCleanCancellationFinishesInFlightProjects(t *testing.T) {
	const workers, total = 2, 6

	root := t.TempDir()
	records := make([]core.ProjectRecord, total)
	for i := range records {
		records[i] = rustProject(t, filepath.Join(root, fmt.Sprintf("crate%d", i)))
	}

	runner := &fakeRunner{
		started: make(chan string, total),
		release: make(chan struct{}),
	}
	cfg := cleanConfig(workers)
	cfg.Actions = core.CommandActions([]string{"clean"}, []string{"clean"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		results []core.CleanResult
		summary core.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, summary, err := New(WithRunner(runner)).Clean(ctx, records, cfg)
		done <- outcome{results, summary, err}
	}()

	for range workers {
		select {
		case <-runner.started:
		case <-time.After(5 * time.Second):
			t.Fatal("workers did not start")
		}
	}
	cancel()
	close(runner.release)

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("clean did not return after cancellation")
	}
	require.NoError(t, out.err)
	require.Len(t, out.results, total)

	assert.Equal(t, workers, out.summary.Cleaned)
	assert.Equal(t, total-workers, out.summary.Cancelled)
	assert.Len(t, runner.Calls(), workers)

	for _, r := range out.results {
		target := filepath.Join(r.Path, "target")
		switch r.Outcome {
		case core.OutcomeSuccess:
			assert.Equal(t, int64(300), r.BytesFreed)
			assert.NoDirExists(t, target)
		case core.OutcomeCancelled:
			require.NotNil(t, r.Err)
			assert.Equal(t, core.KindCancelled, r.Err.Kind)
			assert.DirExists(t, target)
		default:
			t.Errorf("unexpected outcome %s for %s", r.Outcome, r.Path)
		}
	}
}

func TestCleanCommandFailures(t *testing.T) {
	commands := core.CommandActions([]string{"clean"}, []string{"clean"})

	t.Run("tool not found", func(t *testing.T) {
		rec := rustProject(t, filepath.Join(t.TempDir(), "crate"))
		runner := &fakeRunner{missing: map[string]bool{"cargo": true}}

		results, summary, err := New(WithRunner(runner)).Clean(context.Background(),
			[]core.ProjectRecord{rec}, core.CleanConfig{Parallelism: 1, Actions: commands})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.OutcomeFailed, results[0].Outcome)
		assert.Equal(t, core.KindToolNotFound, results[0].Err.Kind)
		assert.Equal(t, 1, summary.Failed)
		assert.Empty(t, runner.Calls())
		assert.DirExists(t, filepath.Join(rec.Path, "target"))
	})

	t.Run("tool exits non-zero", func(t *testing.T) {
		rec := rustProject(t, filepath.Join(t.TempDir(), "crate"))
		runner := &fakeRunner{exitCode: map[string]int{"cargo": 101}}

		results, _, err := New(WithRunner(runner)).Clean(context.Background(),
			[]core.ProjectRecord{rec}, core.CleanConfig{Parallelism: 1, Actions: commands})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.OutcomeFailed, results[0].Outcome)
		assert.Equal(t, core.KindToolFailed, results[0].Err.Kind)
		assert.Contains(t, results[0].Err.Error(), "error: boom")
		assert.Zero(t, results[0].BytesFreed)
	})

	t.Run("second tool of a mixed project fails", func(t *testing.T) {
		rec := mixedProject(t, filepath.Join(t.TempDir(), "both"))
		runner := &fakeRunner{exitCode: map[string]int{"cargo": 1}}

		results, summary, err := New(WithRunner(runner)).Clean(context.Background(),
			[]core.ProjectRecord{rec}, core.CleanConfig{Parallelism: 1, Actions: commands})
		require.NoError(t, err)
		require.Len(t, results, 1)

		res := results[0]
		assert.Equal(t, core.OutcomeFailed, res.Outcome)
		require.NotNil(t, res.Err)
		assert.Equal(t, core.KindPartialFailure, res.Err.Kind)
		assert.Equal(t, core.KindToolFailed, res.Err.Cause)
		assert.Equal(t, core.ArtifactPaths(rec.Path, core.Flutter), res.Err.Succeeded)
		assert.Equal(t, int64(310), res.BytesFreed)
		assert.Equal(t, int64(310), summary.BytesFreed)
		assert.DirExists(t, filepath.Join(rec.Path, "target"))

		calls := runner.Calls()
		require.Len(t, calls, 2)
		assert.True(t, strings.HasPrefix(calls[0], "flutter clean"))
		assert.True(t, strings.HasPrefix(calls[1], "cargo clean"))
	})
}

func TestCleanPartialRemoval(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	rec := mixedProject(t, filepath.Join(t.TempDir(), "both"))
	locked := filepath.Join(rec.Path, "target", "debug", "deps")
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	results, _, err := New().Clean(context.Background(), []core.ProjectRecord{rec}, cleanConfig(1))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Err)
	assert.Equal(t, core.KindPartialFailure, res.Err.Kind)
	assert.Equal(t, core.KindPermissionDenied, res.Err.Cause)
	assert.Equal(t, core.ArtifactPaths(rec.Path, core.Flutter), res.Err.Succeeded)
	assert.GreaterOrEqual(t, res.BytesFreed, int64(310))
}

func TestCleanPreconditionPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	rec := rustProject(t, filepath.Join(t.TempDir(), "crate"))
	require.NoError(t, os.Chmod(rec.Path, 0o555))
	t.Cleanup(func() { _ = os.Chmod(rec.Path, 0o755) })

	results, _, err := New().Clean(context.Background(), []core.ProjectRecord{rec}, cleanConfig(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.OutcomeFailed, results[0].Outcome)
	assert.Equal(t, core.KindPermissionDenied, results[0].Err.Kind)
	assert.Zero(t, results[0].BytesFreed)
	assert.FileExists(t, filepath.Join(rec.Path, "target", "debug", "app"))
}

func TestCleanSkips(t *testing.T) {
	root := t.TempDir()
	rec := rustProject(t, filepath.Join(root, "crate"))
	gone := core.NewProjectRecord(filepath.Join(root, "deleted"), core.Flutter, 2)

	results, summary, err := New().Clean(context.Background(), []core.ProjectRecord{rec, rec, gone}, cleanConfig(2))
	require.NoError(t, err)
	require.Len(t, results, 3)

	var success, skipped []core.CleanResult
	for _, r := range results {
		switch r.Outcome {
		case core.OutcomeSuccess:
			success = append(success, r)
		case core.OutcomeSkipped:
			skipped = append(skipped, r)
		}
	}
	require.Len(t, success, 1)
	assert.Equal(t, rec.Path, success[0].Path)
	require.Len(t, skipped, 2)

	reasons := []string{skipped[0].Reason, skipped[1].Reason}
	assert.Contains(t, reasons, "duplicate record")
	assert.Contains(t, reasons, "project directory no longer exists")
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, int64(300), summary.BytesFreed)
}

func TestCleanEvents(t *testing.T) {
	root := t.TempDir()
	records := []core.ProjectRecord{
		flutterProject(t, filepath.Join(root, "a")),
		rustProject(t, filepath.Join(root, "b")),
		rustProject(t, filepath.Join(root, "c")),
	}
	events := &core.Recorder{}

	results, summary, err := New(WithSink(events)).Clean(context.Background(), records, cleanConfig(3))
	require.NoError(t, err)

	all := events.Events()
	require.Len(t, all, len(records)+2)
	assert.Equal(t, core.EventCleanStarted, all[0].Kind)
	assert.Equal(t, len(records), all[0].Total)

	for i, e := range all[1 : len(all)-1] {
		require.Equal(t, core.EventProjectCleaned, e.Kind)
		assert.Equal(t, results[i], *e.Result, "events follow completion order")
	}

	last := all[len(all)-1]
	require.Equal(t, core.EventCleanCompleted, last.Kind)
	assert.Equal(t, summary, *last.Summary)
}

func TestCleanNoRecords(t *testing.T) {
	results, summary, err := New().Clean(context.Background(), nil, cleanConfig(4))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summary.Found)
}
