// Package cleaner removes the build artifacts of scanned projects.
//
// Projects are cleaned concurrently by a fixed pool of workers. Each
// project is handled by exactly one worker from start to finish, and the
// cancellation context is consulted only before a worker picks up a
// project: a cleanup in progress always runs to completion, projects not
// yet started come back as Cancelled.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"frp-clean/pkg/core"
)

// Cleaner executes clean actions for project records.
type Cleaner struct {
	logger *core.Logger
	sink   core.EventSink
	runner Runner
}

type Option func(*Cleaner)

func WithLogger(l *core.Logger) Option {
	return func(c *Cleaner) { c.logger = l }
}

// WithSink streams CleanStarted, ProjectCleaned and CleanCompleted events.
func WithSink(sink core.EventSink) Option {
	return func(c *Cleaner) { c.sink = sink }
}

// WithRunner replaces the os/exec runner used for command actions.
func WithRunner(r Runner) Option {
	return func(c *Cleaner) { c.runner = r }
}

func New(opts ...Option) *Cleaner {
	c := &Cleaner{
		sink:   core.DiscardSink,
		runner: ExecRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type job struct {
	rec       core.ProjectRecord
	duplicate bool
}

// Clean processes records and returns one result per record in completion
// order. Only configuration problems return an error, and they do so
// before any project is touched; per-project failures are reported in
// the results. Cancelling ctx stops workers from starting new projects.
func (c *Cleaner) Clean(ctx context.Context, records []core.ProjectRecord, cfg core.CleanConfig) ([]core.CleanResult, core.Summary, error) {
	workers, err := cfg.Parallelism.Resolve("clean parallelism")
	if err != nil {
		return nil, core.Summary{}, err
	}
	if err := validateActions(cfg.Actions); err != nil {
		return nil, core.Summary{}, err
	}

	start := time.Now()
	summary := core.Summary{Found: max(cfg.Found, len(records)), Selected: len(records), DryRun: cfg.DryRun}
	c.logger.Infof("clean started: projects=%d workers=%d dry_run=%t", len(records), workers, cfg.DryRun)
	c.sink.Emit(core.Event{Kind: core.EventCleanStarted, Total: len(records), DryRun: cfg.DryRun})

	jobs := make(chan job, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		jobs <- job{rec: rec, duplicate: seen[rec.Path]}
		seen[rec.Path] = true
	}
	close(jobs)

	results := make(chan core.CleanResult)
	var g errgroup.Group
	for range min(workers, len(records)) {
		g.Go(func() error {
			for j := range jobs {
				results <- c.process(ctx, j, cfg)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	out := make([]core.CleanResult, 0, len(records))
	for res := range results {
		summary.Add(res)
		out = append(out, res)
		c.sink.Emit(core.Event{Kind: core.EventProjectCleaned, Result: &res})
	}

	summary.Duration = time.Since(start)
	c.logger.Infof("clean finished: cleaned=%d failed=%d skipped=%d cancelled=%d freed=%d bytes in %s",
		summary.Cleaned, summary.Failed, summary.Skipped, summary.Cancelled, summary.BytesFreed,
		summary.Duration.Round(time.Millisecond))
	c.sink.Emit(core.Event{Kind: core.EventCleanCompleted, Summary: &summary})
	return out, summary, nil
}

func validateActions(actions map[core.ProjectType]core.Action) error {
	for t, a := range actions {
		if !t.Valid() {
			return &core.ConfigError{Field: "clean action", Reason: fmt.Sprintf("unknown project type %d", int(t))}
		}
		switch a.Kind {
		case core.ActionRemove:
		case core.ActionCommand:
			if len(a.Commands) == 0 {
				return &core.ConfigError{Field: "clean action", Reason: t.String() + " command action has no commands"}
			}
			for _, cmd := range a.Commands {
				if strings.TrimSpace(cmd.Program) == "" {
					return &core.ConfigError{Field: "clean action", Reason: t.String() + " command has no program"}
				}
			}
		default:
			return &core.ConfigError{Field: "clean action", Reason: fmt.Sprintf("unknown action kind %d", int(a.Kind))}
		}
	}
	return nil
}

// process is the per-project boundary: cancellation is checked here and
// nowhere inside the cleanup itself.
func (c *Cleaner) process(ctx context.Context, j job, cfg core.CleanConfig) core.CleanResult {
	start := time.Now()
	res := core.CleanResult{
		Path:   j.rec.Path,
		Type:   j.rec.Type,
		DryRun: cfg.DryRun,
	}

	switch {
	case ctx.Err() != nil:
		res.Outcome = core.OutcomeCancelled
		res.Err = &core.CleanError{Kind: core.KindCancelled, Path: j.rec.Path, Err: ctx.Err()}
	case j.duplicate:
		res.Outcome = core.OutcomeSkipped
		res.Reason = "duplicate record"
	default:
		c.cleanProject(context.WithoutCancel(ctx), j.rec, cfg, &res)
	}

	res.Duration = time.Since(start)
	c.logResult(res)
	return res
}

func (c *Cleaner) logResult(res core.CleanResult) {
	switch res.Outcome {
	case core.OutcomeSuccess:
		verb := "cleaned"
		if res.DryRun {
			verb = "would clean"
		}
		c.logger.Infof("%s %s (%s): %d bytes", verb, res.Path, res.Type, res.BytesFreed)
	case core.OutcomeFailed:
		c.logger.Errorf("failed %s (%s): %v", res.Path, res.Type, res.Err)
	case core.OutcomeSkipped:
		c.logger.Warnf("skipped %s: %s", res.Path, res.Reason)
	case core.OutcomeCancelled:
		c.logger.Debugf("cancelled %s", res.Path)
	}
}

func (c *Cleaner) cleanProject(ctx context.Context, rec core.ProjectRecord, cfg core.CleanConfig, res *core.CleanResult) {
	info, err := os.Stat(rec.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Outcome = core.OutcomeSkipped
		res.Reason = "project directory no longer exists"
		return
	case err != nil:
		fail(res, &core.CleanError{Kind: core.KindOf(err), Path: rec.Path, Err: err})
		return
	case !info.IsDir():
		res.Outcome = core.OutcomeSkipped
		res.Reason = "project path is not a directory"
		return
	}

	action := cfg.ActionFor(rec.Type)
	if cerr := c.checkPreconditions(rec, action); cerr != nil {
		fail(res, cerr)
		return
	}

	if cfg.DryRun {
		size, err := sizeOf(rec.ArtifactPaths)
		if err != nil {
			fail(res, &core.CleanError{Kind: core.KindOf(err), Path: rec.Path, Err: err})
			return
		}
		res.Outcome = core.OutcomeSuccess
		res.BytesFreed = size
		return
	}

	switch action.Kind {
	case core.ActionCommand:
		c.runCommands(ctx, rec, action, res)
	default:
		removeArtifacts(rec, res)
	}
}

func (c *Cleaner) checkPreconditions(rec core.ProjectRecord, action core.Action) *core.CleanError {
	for _, p := range rec.ArtifactPaths {
		if err := core.CheckWritable(p); err != nil {
			return &core.CleanError{Kind: core.KindOf(err), Path: p, Err: err}
		}
	}
	if action.Kind == core.ActionCommand {
		for _, cmd := range action.Commands {
			if _, err := c.runner.LookPath(cmd.Program); err != nil {
				return &core.CleanError{Kind: core.KindToolNotFound, Path: cmd.Program, Err: err}
			}
		}
	}
	return nil
}

func removeArtifacts(rec core.ProjectRecord, res *core.CleanResult) {
	var freed int64
	var removed []string
	for _, p := range rec.ArtifactPaths {
		if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		n, err := core.RemovePath(p)
		freed += n
		if err != nil {
			res.BytesFreed = freed
			fail(res, failure(core.KindOf(err), p, removed, freed, err))
			return
		}
		removed = append(removed, p)
	}
	res.Outcome = core.OutcomeSuccess
	res.BytesFreed = freed
}

func (c *Cleaner) runCommands(ctx context.Context, rec core.ProjectRecord, action core.Action, res *core.CleanResult) {
	before, err := sizeOf(rec.ArtifactPaths)
	if err != nil {
		fail(res, &core.CleanError{Kind: core.KindOf(err), Path: rec.Path, Err: err})
		return
	}

	var done []string
	for _, cmd := range action.Commands {
		c.logger.Debugf("running %q in %s", cmd.String(), rec.Path)
		out, err := c.runner.Run(ctx, rec.Path, cmd.Program, cmd.Args...)
		if err != nil {
			kind := core.KindIOFailure
			switch {
			case errors.Is(err, exec.ErrNotFound):
				kind = core.KindToolNotFound
			case out != nil && out.ExitCode != 0:
				kind = core.KindToolFailed
				if tail := lastLine(out.Stderr); tail != "" {
					err = fmt.Errorf("%w: %s", err, tail)
				}
			}
			freed := measureFreed(before, rec.ArtifactPaths)
			res.BytesFreed = freed
			fail(res, failure(kind, cmd.String(), done, freed, err))
			return
		}
		done = append(done, scopePaths(rec, cmd)...)
	}

	after, err := sizeOf(rec.ArtifactPaths)
	if err != nil {
		c.logger.Warnf("cannot measure %s after clean: %v", rec.Path, err)
		res.Reason = "freed space could not be measured"
		after = before
	}
	res.Outcome = core.OutcomeSuccess
	res.BytesFreed = max(before-after, 0)
}

// failure reports a partial failure when anything was removed before err.
func failure(kind core.ErrorKind, path string, done []string, freed int64, err error) *core.CleanError {
	if len(done) == 0 && freed == 0 {
		return &core.CleanError{Kind: kind, Path: path, Err: err}
	}
	return &core.CleanError{
		Kind:      core.KindPartialFailure,
		Path:      path,
		Cause:     kind,
		Succeeded: done,
		Err:       err,
	}
}

func fail(res *core.CleanResult, err *core.CleanError) {
	res.Outcome = core.OutcomeFailed
	res.Err = err
}

func scopePaths(rec core.ProjectRecord, cmd core.Command) []string {
	if cmd.Scope.Valid() {
		return core.ArtifactPaths(rec.Path, cmd.Scope)
	}
	return rec.ArtifactPaths
}

func sizeOf(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		n, err := core.PathSize(p)
		if err != nil {
			return total, fmt.Errorf("measure %s: %w", p, err)
		}
		total += n
	}
	return total, nil
}

func measureFreed(before int64, paths []string) int64 {
	after, err := sizeOf(paths)
	if err != nil {
		return 0
	}
	return max(before-after, 0)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
