package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"frp-clean/pkg/core"
	"frp-clean/pkg/pipeline"
)

// scanFlags are shared by clean and list.
type scanFlags struct {
	types          []string
	exclude        []string
	include        []string
	maxDepth       int
	followSymlinks bool
	scanJobs       string
	nested         string
	json           bool
}

func (f *scanFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.types, "type", "t", nil, "only these project types (flutter, rust, mixed)")
	flags.StringArrayVar(&f.exclude, "exclude", nil, "skip directories matching this pattern (repeatable)")
	flags.StringArrayVar(&f.include, "include", nil, "only report projects whose directory matches this pattern (repeatable)")
	flags.IntVar(&f.maxDepth, "max-depth", core.NoDepthLimit, "do not descend below this depth (0 = the given paths only, -1 = unlimited)")
	flags.BoolVar(&f.followSymlinks, "follow-symlinks", false, "follow symbolic links to directories")
	flags.StringVar(&f.scanJobs, "scan-jobs", "", "parallel scan workers (number or auto)")
	flags.StringVar(&f.nested, "nested", "", "projects inside projects: descend or stop")
	flags.BoolVar(&f.json, "json", false, "print a JSON report instead of text")
}

// scanConfig layers the flags that were set over the config file.
func (f *scanFlags) scanConfig(cmd *cobra.Command, cfg *core.Config, roots []string) (core.ScanConfig, []core.ProjectType, error) {
	scanCfg := cfg.ScanConfig(roots, f.exclude)
	scanCfg.IncludePatterns = f.include
	scanCfg.MaxDepth = f.maxDepth
	if cmd.Flags().Changed("follow-symlinks") {
		scanCfg.FollowSymlinks = f.followSymlinks
	}
	if f.scanJobs != "" {
		p, err := core.ParseParallelism(f.scanJobs)
		if err != nil {
			return scanCfg, nil, &core.ConfigError{Field: "--scan-jobs", Reason: err.Error()}
		}
		scanCfg.Parallelism = p
	}
	if _, err := scanCfg.Parallelism.Resolve("scan parallelism"); err != nil {
		return scanCfg, nil, err
	}
	if f.nested != "" {
		n, err := core.ParseNestedPolicy(f.nested)
		if err != nil {
			return scanCfg, nil, &core.ConfigError{Field: "--nested", Reason: err.Error()}
		}
		scanCfg.Nested = n
	}
	types, err := parseTypes(f.types)
	if err != nil {
		return scanCfg, nil, &core.ConfigError{Field: "--type", Reason: err.Error()}
	}
	return scanCfg, types, nil
}

type cleanFlags struct {
	scanFlags
	dryRun bool
	jobs   string
	mode   string
	yes    bool
}

type cleanReport struct {
	Success  bool               `json:"success"`
	Summary  core.Summary       `json:"summary"`
	Results  []core.CleanResult `json:"results"`
	Warnings []core.ScanWarning `json:"warnings,omitempty"`
}

func newCleanCommand(g *globalOptions) *cobra.Command {
	f := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean <path>...",
		Short: "Scan paths and remove the build artifacts of every project found",
		Example: `  frp-clean clean ~/code
  frp-clean clean --dry-run -t rust ~/code ~/work
  frp-clean clean -y -j 8 --exclude vendor --exclude 'third_party/**' .
  frp-clean clean --include 'apps/*' --max-depth 3 ~/monorepo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd, g, f, args)
		},
	}

	f.register(cmd)
	flags := cmd.Flags()
	flags.BoolVarP(&f.dryRun, "dry-run", "n", false, "report what would be freed without deleting anything")
	flags.StringVarP(&f.jobs, "jobs", "j", "", "parallel clean workers (number or auto)")
	flags.StringVar(&f.mode, "mode", "", "remove artifacts directly (remove) or run flutter/cargo clean (command)")
	flags.BoolVarP(&f.yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func runClean(cmd *cobra.Command, g *globalOptions, f *cleanFlags, roots []string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	scanCfg, types, err := f.scanConfig(cmd, cfg, roots)
	if err != nil {
		return err
	}
	if f.mode != "" {
		if _, err := core.ParseActionKind(f.mode); err != nil {
			return &core.ConfigError{Field: "--mode", Reason: err.Error()}
		}
		cfg.CleanMode = f.mode
	}
	cleanCfg := cfg.CleanConfig(f.dryRun)
	if f.jobs != "" {
		p, err := core.ParseParallelism(f.jobs)
		if err != nil {
			return &core.ConfigError{Field: "--jobs", Reason: err.Error()}
		}
		cleanCfg.Parallelism = p
	}
	if _, err := cleanCfg.Parallelism.Resolve("clean parallelism"); err != nil {
		return err
	}

	logger := g.setupLogger(cfg, cmd.ErrOrStderr())
	defer logger.Close()
	logger.Infof("frp-clean %s: clean %v dry_run=%t mode=%s", Version, roots, f.dryRun, cfg.CleanMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	r := newRenderer(out, renderOptions{
		json:     f.json,
		quiet:    g.quiet,
		verbose:  g.verbose > 0,
		progress: cfg.ShowProgress,
	})
	sink := core.NewChannelSink(64)
	rendered := make(chan struct{})
	go func() {
		r.consume(sink.Events())
		close(rendered)
	}()

	selectors := []pipeline.Selector{pipeline.FilterByType(types...)}
	if !f.dryRun && !f.yes && !f.json && cfg.ConfirmBeforeClean {
		selectors = append(selectors, confirmSelector(r.scanDone, cmd.InOrStdin(), out))
	}

	report, err := pipeline.NewCoordinator(logger, sink).Run(ctx, scanCfg, cleanCfg, selectors...)
	sink.Close()
	<-rendered

	switch {
	case errors.Is(err, pipeline.ErrAborted):
		fmt.Fprintln(out, "Nothing was cleaned.")
		return nil
	case err != nil:
		return err
	}

	if f.json {
		rep := cleanReport{
			Success:  report.Summary.Failed == 0,
			Summary:  report.Summary,
			Results:  report.Results,
			Warnings: report.Scan.Warnings,
		}
		if err := writeJSON(out, rep); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return &ExitError{Code: 130, Err: errors.New("interrupted")}
	}
	if report.Summary.Failed > 0 {
		if f.json {
			return &ExitError{Code: 2}
		}
		return &ExitError{Code: 2, Err: fmt.Errorf("%s failed to clean", plural(report.Summary.Failed, "project"))}
	}
	return nil
}
