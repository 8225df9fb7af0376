package core

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"frp-clean/pkg/constants"
)

// ProjectType is the ecosystem of a project root. The set is closed: Flutter, Rust and Mixed.
type ProjectType int

const (
	Flutter ProjectType = iota + 1
	Rust
	Mixed
)

// AllProjectTypes lists every ProjectType in declaration order.
var AllProjectTypes = []ProjectType{Flutter, Rust, Mixed}

func (t ProjectType) String() string {
	switch t {
	case Flutter:
		return "Flutter"
	case Rust:
		return "Rust"
	case Mixed:
		return "Mixed"
	}
	return "ProjectType(" + strconv.Itoa(int(t)) + ")"
}

func (t ProjectType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid project type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ProjectType) UnmarshalText(text []byte) error {
	parsed, err := ParseProjectType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t ProjectType) Valid() bool {
	return t >= Flutter && t <= Mixed
}

// ParseProjectType accepts the type name in any case.
func ParseProjectType(s string) (ProjectType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flutter":
		return Flutter, nil
	case "rust":
		return Rust, nil
	case "mixed":
		return Mixed, nil
	}
	return 0, fmt.Errorf("unknown project type %q (want flutter, rust or mixed)", s)
}

// Classify maps marker presence to a project type. ok is false when
// neither marker is present.
func Classify(hasPubspec, hasCargo bool) (t ProjectType, ok bool) {
	switch {
	case hasPubspec && hasCargo:
		return Mixed, true
	case hasPubspec:
		return Flutter, true
	case hasCargo:
		return Rust, true
	}
	return 0, false
}

var (
	flutterArtifacts = []string{
		constants.DartToolDir,
		constants.FlutterBuildDir,
		constants.FlutterPluginsDepsFile,
	}
	rustArtifacts = []string{constants.CargoTargetDir}
)

// ArtifactNames returns the build-output names for t, relative to the
// project root, in removal order.
func ArtifactNames(t ProjectType) []string {
	switch t {
	case Flutter:
		return append([]string(nil), flutterArtifacts...)
	case Rust:
		return append([]string(nil), rustArtifacts...)
	case Mixed:
		names := make([]string, 0, len(flutterArtifacts)+len(rustArtifacts))
		names = append(names, flutterArtifacts...)
		return append(names, rustArtifacts...)
	}
	panic(fmt.Sprintf("core: no artifacts for %v", t))
}

// ArtifactDirNames is the subset of ArtifactNames the scanner never
// descends into.
func ArtifactDirNames(t ProjectType) []string {
	var dirs []string
	for _, name := range ArtifactNames(t) {
		if name != constants.FlutterPluginsDepsFile {
			dirs = append(dirs, name)
		}
	}
	return dirs
}

// ArtifactPaths joins ArtifactNames(t) onto dir.
func ArtifactPaths(dir string, t ProjectType) []string {
	names := ArtifactNames(t)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths
}

// ProjectRecord is a project root found by a scan. Created once per scan and never mutated.
type ProjectRecord struct {
	Path          string      `json:"path"`
	Type          ProjectType `json:"project_type"`
	ArtifactPaths []string    `json:"artifact_paths"`
	DiscoveredAt  int64       `json:"discovered_at"`
}

// NewProjectRecord derives the artifact paths from t.
func NewProjectRecord(path string, t ProjectType, ordinal int64) ProjectRecord {
	return ProjectRecord{
		Path:          path,
		Type:          t,
		ArtifactPaths: ArtifactPaths(path, t),
		DiscoveredAt:  ordinal,
	}
}

func (p ProjectRecord) Name() string {
	return filepath.Base(p.Path)
}

// Parallelism is a worker count. ParallelismAuto resolves to the number
// of logical CPUs; zero and other negative values are invalid.
type Parallelism int

const ParallelismAuto Parallelism = -1

func ParseParallelism(s string) (Parallelism, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") || s == "" {
		return ParallelismAuto, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parallelism must be a positive integer or \"auto\": %w", err)
	}
	return Parallelism(n), nil
}

// Resolve returns the concrete worker count or a ConfigError.
func (p Parallelism) Resolve(field string) (int, error) {
	switch {
	case p == ParallelismAuto:
		return runtime.NumCPU(), nil
	case p > 0:
		return int(p), nil
	}
	return 0, &ConfigError{Field: field, Reason: fmt.Sprintf("must be a positive integer or auto, got %d", int(p))}
}

func (p Parallelism) String() string {
	if p == ParallelismAuto {
		return "auto"
	}
	return strconv.Itoa(int(p))
}

// NestedPolicy decides whether the scanner keeps descending below a
// classified project.
type NestedPolicy int

const (
	// NestedDescend keeps looking for projects in a project's non-artifact
	// subdirectories (monorepos).
	NestedDescend NestedPolicy = iota
	// NestedStop treats a project root as a leaf.
	NestedStop
)

func ParseNestedPolicy(s string) (NestedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "descend":
		return NestedDescend, nil
	case "stop":
		return NestedStop, nil
	}
	return 0, fmt.Errorf("unknown nested project policy %q (want descend or stop)", s)
}

func (n NestedPolicy) String() string {
	if n == NestedStop {
		return "stop"
	}
	return "descend"
}

// NoDepthLimit lets a scan descend without bound.
const NoDepthLimit = -1

// ScanConfig controls one scan.
type ScanConfig struct {
	Roots []string
	// MaxDepth bounds descent; the root is depth 0, so 0 classifies the
	// roots only. Negative means unlimited.
	MaxDepth        int
	ExcludePatterns []string
	// IncludePatterns, when set, keeps only projects whose directory
	// matches one of them. It filters records and never prunes descent.
	IncludePatterns []string
	FollowSymlinks  bool
	Parallelism     Parallelism
	Nested          NestedPolicy
}

// DefaultScanConfig scans roots without a depth limit and with automatic
// parallelism.
func DefaultScanConfig(roots ...string) ScanConfig {
	return ScanConfig{
		Roots:       roots,
		MaxDepth:    NoDepthLimit,
		Parallelism: ParallelismAuto,
	}
}

// ActionKind selects how a project type is cleaned.
type ActionKind int

const (
	ActionRemove ActionKind = iota
	ActionCommand
)

func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "remove":
		return ActionRemove, nil
	case "command":
		return ActionCommand, nil
	}
	return 0, fmt.Errorf("unknown clean mode %q (want remove or command)", s)
}

func (k ActionKind) String() string {
	if k == ActionCommand {
		return "command"
	}
	return "remove"
}

// Command is an external clean tool invocation run in the project root.
// Scope names the project type whose artifacts the command is expected
// to remove.
type Command struct {
	Program string
	Args    []string
	Scope   ProjectType
}

func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Action is the cleanup resolved for one project type.
type Action struct {
	Kind     ActionKind
	Commands []Command
}

// CleanConfig controls one clean. Cancellation is carried by the context passed to
// the cleaner.
type CleanConfig struct {
	DryRun      bool
	Parallelism Parallelism
	// Actions overrides the default removal per project type.
	Actions map[ProjectType]Action
	// Found is the number of projects the scan reported, for the summary.
	// Zero means the records passed to Clean are all that was found.
	Found int
}

// DefaultCleanConfig removes artifacts directly with automatic parallelism.
func DefaultCleanConfig() CleanConfig {
	return CleanConfig{Parallelism: ParallelismAuto}
}

// ActionFor falls back to direct removal when t has no override.
func (c CleanConfig) ActionFor(t ProjectType) Action {
	if a, ok := c.Actions[t]; ok {
		return a
	}
	return Action{Kind: ActionRemove}
}

// CommandActions maps every project type to its ecosystem clean command.
// Mixed projects run both, Flutter first.
func CommandActions(flutterArgs, cargoArgs []string) map[ProjectType]Action {
	flutter := Command{Program: "flutter", Args: flutterArgs, Scope: Flutter}
	cargo := Command{Program: "cargo", Args: cargoArgs, Scope: Rust}
	return map[ProjectType]Action{
		Flutter: {Kind: ActionCommand, Commands: []Command{flutter}},
		Rust:    {Kind: ActionCommand, Commands: []Command{cargo}},
		Mixed:   {Kind: ActionCommand, Commands: []Command{flutter, cargo}},
	}
}

// Outcome classifies a CleanResult.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeSkipped
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// CleanResult is the outcome of cleaning one project.
type CleanResult struct {
	Path       string        `json:"path"`
	Type       ProjectType   `json:"project_type"`
	Outcome    Outcome       `json:"outcome"`
	BytesFreed int64         `json:"bytes_freed"`
	Err        *CleanError   `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
	DryRun     bool          `json:"dry_run"`
}

// Summary aggregates the results of one clean.
type Summary struct {
	Found      int           `json:"found"`    // projects the scan reported
	Selected   int           `json:"selected"` // records handed to the cleaner
	Cleaned    int           `json:"cleaned"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Cancelled  int           `json:"cancelled"`
	BytesFreed int64         `json:"bytes_freed"`
	Duration   time.Duration `json:"duration"`
	DryRun     bool          `json:"dry_run"`
}

// Add folds r into the counters.
func (s *Summary) Add(r CleanResult) {
	switch r.Outcome {
	case OutcomeSuccess:
		s.Cleaned++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeCancelled:
		s.Cancelled++
	}
	s.BytesFreed += r.BytesFreed
}
