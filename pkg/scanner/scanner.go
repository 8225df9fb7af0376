// Package scanner walks directory trees in parallel and reports the
// Flutter and Rust project roots it finds.
//
// Each directory is read once per walk: its entries decide the project
// type (by marker file) and the subdirectories to descend into. Exclude patterns
// prune whole subtrees, and a classified project's artifact directories
// are never entered. Work is spread over a bounded errgroup; a worker
// that finds the pool full visits the subdirectory itself, so the pool
// can never deadlock on its own submissions.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"frp-clean/pkg/constants"
	"frp-clean/pkg/core"
)

// Result is the outcome of one scan. Projects are sorted by path.
type Result struct {
	Projects []core.ProjectRecord
	Warnings []core.ScanWarning
}

// Scanner holds the collaborators of a scan; the scan itself is
// configured per call.
type Scanner struct {
	logger *core.Logger
	sink   core.EventSink
}

type Option func(*Scanner)

func WithLogger(l *core.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithSink streams ScanStarted, ProjectFound and ScanCompleted events.
func WithSink(sink core.EventSink) Option {
	return func(s *Scanner) { s.sink = sink }
}

func New(opts ...Option) *Scanner {
	s := &Scanner{sink: core.DiscardSink}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks every root in cfg. Invalid roots or parallelism fail with a
// *core.ConfigError before anything is read. Unreadable directories are
// reported as warnings. If ctx is cancelled the partial result is
// returned together with the context error.
//
// With FollowSymlinks every directory is walked and recorded under its
// resolved path, and each one is expanded from the smallest depth it is
// reachable at. Directories that resolve into the artifacts of a project
// above them are never entered.
func (s *Scanner) Scan(ctx context.Context, cfg core.ScanConfig) (*Result, error) {
	workers, err := cfg.Parallelism.Resolve("scan parallelism")
	if err != nil {
		return nil, err
	}
	roots, err := resolveRoots(cfg.Roots, cfg.FollowSymlinks)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.logger.Infof("scan started: roots=%v workers=%d max_depth=%d nested=%s", roots, workers, cfg.MaxDepth, cfg.Nested)
	s.sink.Emit(core.Event{Kind: core.EventScanStarted, Roots: roots})

	w := &walker{
		ctx:     ctx,
		cfg:     cfg,
		logger:  s.logger,
		exclude: newPathMatcher(cfg.ExcludePatterns),
		include: newPathMatcher(cfg.IncludePatterns),
		coll:    newCollector(s.sink),
	}
	w.group.SetLimit(workers)
	for _, root := range roots {
		r := &rootWalk{path: root, depth: make(map[string]int)}
		w.group.Go(func() error {
			if pattern, ok := w.exclude.match(root, ".", filepath.Base(root)); ok {
				s.logger.Infof("root %s excluded (pattern %q)", root, pattern)
				return nil
			}
			w.visit(r, root, 0)
			return nil
		})
	}
	_ = w.group.Wait()

	res := w.coll.result()
	s.logger.Infof("scan finished: %d directories, %d projects, %d warnings in %s",
		w.dirs.Load(), len(res.Projects), len(res.Warnings), time.Since(start).Round(time.Millisecond))
	s.sink.Emit(core.Event{Kind: core.EventScanCompleted, Found: len(res.Projects), Warnings: res.Warnings})

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("scan interrupted: %w", err)
	}
	return res, nil
}

func resolveRoots(roots []string, followSymlinks bool) ([]string, error) {
	if len(roots) == 0 {
		return nil, &core.ConfigError{Field: "roots", Reason: "at least one root path is required"}
	}
	seen := make(map[string]bool, len(roots))
	resolved := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, &core.ConfigError{Field: "root", Reason: r, Err: err}
		}
		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &core.ConfigError{Field: "root", Reason: abs + " does not exist", Err: err}
			}
			return nil, &core.ConfigError{Field: "root", Reason: abs + " is not accessible", Err: err}
		}
		if !info.IsDir() {
			return nil, &core.ConfigError{Field: "root", Reason: abs + " is not a directory"}
		}
		if followSymlinks {
			if abs, err = filepath.EvalSymlinks(abs); err != nil {
				return nil, &core.ConfigError{Field: "root", Reason: r + " cannot be resolved", Err: err}
			}
		}
		if !seen[abs] {
			seen[abs] = true
			resolved = append(resolved, abs)
		}
	}
	return resolved, nil
}

type walker struct {
	ctx     context.Context
	cfg     core.ScanConfig
	logger  *core.Logger
	exclude pathMatcher
	include pathMatcher
	coll    *collector
	group   errgroup.Group
	dirs    atomic.Int64
	// projects caches the marker classification of directories checked
	// as ancestors of symlink targets. Only used with FollowSymlinks.
	projects sync.Map
}

// rootWalk is the per-root state of a scan that follows symlinks.
type rootWalk struct {
	path  string
	mu    sync.Mutex
	depth map[string]int // smallest depth each resolved directory was reached at
}

// claim reports whether dir should be expanded at depth: it has not been
// expanded yet, or only from deeper.
func (r *rootWalk) claim(dir string, depth int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.depth[dir]; ok && d <= depth {
		return false
	}
	r.depth[dir] = depth
	return true
}

func (w *walker) visit(r *rootWalk, dir string, depth int) {
	if w.ctx.Err() != nil {
		return
	}
	if w.cfg.FollowSymlinks {
		if !r.claim(dir, depth) {
			return
		}
		if depth > 0 && w.insideProject(r.path, dir) {
			w.logger.Debugf("skipping %s: inside another project", dir)
			return
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.warn(dir, err)
		return
	}
	w.dirs.Add(1)

	var hasPubspec, hasCargo bool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch e.Name() {
		case constants.PubspecFile:
			hasPubspec = true
		case constants.CargoFile:
			hasCargo = true
		}
	}

	var pruned map[string]bool
	if t, ok := core.Classify(hasPubspec, hasCargo); ok {
		w.record(r.path, dir, t)
		if w.cfg.Nested == core.NestedStop {
			return
		}
		pruned = make(map[string]bool)
		for _, name := range core.ArtifactDirNames(t) {
			pruned[name] = true
		}
	}

	if w.cfg.MaxDepth >= 0 && depth >= w.cfg.MaxDepth {
		return
	}

	for _, e := range entries {
		name := e.Name()
		if pruned[name] {
			continue
		}
		child, ok := w.childDir(dir, e)
		if !ok {
			continue
		}
		if pattern, ok := w.exclude.match(child, relTo(r.path, child), name); ok {
			w.logger.Debugf("excluded %s (pattern %q)", child, pattern)
			continue
		}
		if !w.group.TryGo(func() error {
			w.visit(r, child, depth+1)
			return nil
		}) {
			w.visit(r, child, depth+1)
		}
	}
}

func (w *walker) record(root, dir string, t core.ProjectType) {
	if !w.include.empty() {
		if _, ok := w.include.match(dir, relTo(root, dir), filepath.Base(dir)); !ok {
			w.logger.Debugf("%s %s not included", t, dir)
			return
		}
	}
	w.coll.add(dir, t)
}

// childDir returns the path to descend into for entry e of dir. Symlinks
// to directories are followed only with FollowSymlinks, and resolved.
func (w *walker) childDir(dir string, e fs.DirEntry) (string, bool) {
	path := filepath.Join(dir, e.Name())
	if e.IsDir() {
		return path, true
	}
	if !w.cfg.FollowSymlinks || e.Type()&fs.ModeSymlink == 0 {
		return "", false
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		w.logger.Debugf("dangling symlink %s: %v", path, err)
		return "", false
	}
	info, err := os.Stat(real)
	return real, err == nil && info.IsDir()
}

// insideProject reports whether dir lies in an artifact directory of a
// project above it, or below any project within the root when nested
// projects are not searched. Only symlinks can lead there.
func (w *walker) insideProject(root, dir string) bool {
	inRoot := relTo(root, dir) != ""
	child := dir
	for parent := filepath.Dir(dir); parent != child; child, parent = parent, filepath.Dir(parent) {
		if inRoot && relTo(root, parent) == "" {
			break
		}
		t, ok := w.projectAt(parent)
		if !ok {
			continue
		}
		if inRoot && w.cfg.Nested == core.NestedStop {
			return true
		}
		if slices.Contains(core.ArtifactDirNames(t), filepath.Base(child)) {
			return true
		}
	}
	return false
}

func (w *walker) projectAt(dir string) (core.ProjectType, bool) {
	if v, ok := w.projects.Load(dir); ok {
		t := v.(core.ProjectType)
		return t, t != 0
	}
	t, _ := core.Classify(isFile(filepath.Join(dir, constants.PubspecFile)), isFile(filepath.Join(dir, constants.CargoFile)))
	w.projects.Store(dir, t)
	return t, t != 0
}

func isFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && !info.IsDir()
}

// relTo returns the slash-separated path of p relative to root, "." for
// the root itself, or "" when p is outside root.
func relTo(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (w *walker) warn(dir string, err error) {
	warning := core.ScanWarning{Path: dir, Kind: core.KindOf(err), Err: err}
	w.logger.Warnf("skipping %s", warning)
	w.coll.warn(warning)
}

// collector is the only state shared between workers. Records are keyed
// by path so the result set does not depend on scheduling.
type collector struct {
	mu       sync.Mutex
	sink     core.EventSink
	records  map[string]core.ProjectRecord
	warnings []core.ScanWarning
	ordinal  int64
}

func newCollector(sink core.EventSink) *collector {
	return &collector{sink: sink, records: make(map[string]core.ProjectRecord)}
}

func (c *collector) add(path string, t core.ProjectType) {
	c.mu.Lock()
	if _, dup := c.records[path]; dup {
		c.mu.Unlock()
		return
	}
	c.ordinal++
	rec := core.NewProjectRecord(path, t, c.ordinal)
	c.records[path] = rec
	c.mu.Unlock()

	c.sink.Emit(core.Event{Kind: core.EventProjectFound, Project: &rec})
}

func (c *collector) warn(w core.ScanWarning) {
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
}

func (c *collector) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := &Result{
		Projects: make([]core.ProjectRecord, 0, len(c.records)),
		Warnings: append([]core.ScanWarning(nil), c.warnings...),
	}
	for _, rec := range c.records {
		res.Projects = append(res.Projects, rec)
	}
	sort.Slice(res.Projects, func(i, j int) bool { return res.Projects[i].Path < res.Projects[j].Path })
	sort.Slice(res.Warnings, func(i, j int) bool { return res.Warnings[i].Path < res.Warnings[j].Path })
	return res
}
