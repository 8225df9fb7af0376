// Package cli is the command-line front end: it turns flags and the
// config file into scan and clean configurations and renders the event
// stream of the pipeline.
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"frp-clean/pkg/core"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// ExitError carries a process exit code. A nil Err means the reason was
// already reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

type globalOptions struct {
	verbose    int
	quiet      bool
	noColor    bool
	configPath string
}

// NewRootCommand creates the frp-clean command tree.
func NewRootCommand() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "frp-clean",
		Short: "Find Flutter and Rust projects and remove their build artifacts",
		Long: `frp-clean scans directory trees for Flutter (pubspec.yaml) and Rust
(Cargo.toml) projects and reclaims disk space by removing their build
artifacts (.dart_tool, build, .flutter-plugins-dependencies, target).

Scanning and cleaning both run in parallel. Use --dry-run to see how much
space would be freed without touching anything.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.CountVarP(&g.verbose, "verbose", "v", "increase output verbosity (-vv for debug logs)")
	flags.BoolVar(&g.quiet, "quiet", false, "only print errors and the final summary")
	flags.BoolVar(&g.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&g.configPath, "config", "", "config file (default is <user config dir>/frp-clean/config.yaml)")

	cmd.AddCommand(newCleanCommand(g))
	cmd.AddCommand(newListCommand(g))
	cmd.AddCommand(newConfigCommand(g))

	return cmd
}

func (g *globalOptions) resolveConfigPath() (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	return core.DefaultConfigPath()
}

func (g *globalOptions) loadConfig() (*core.Config, error) {
	path, err := g.resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return core.LoadConfig(path)
}

// setupLogger opens the log file. Verbose runs mirror log lines to
// errOut. A log file that cannot be opened is reported and logging is
// disabled rather than failing the run.
func (g *globalOptions) setupLogger(cfg *core.Config, errOut io.Writer) *core.Logger {
	logCfg, err := cfg.LogConfig()
	if err == nil {
		if g.verbose > 0 && !g.quiet {
			logCfg.Console = errOut
			logCfg.Level = core.LevelInfo
			if g.verbose > 1 {
				logCfg.Level = core.LevelDebug
			}
		}
		var logger *core.Logger
		if logger, err = core.SetupLogger(logCfg); err == nil {
			return logger
		}
	}
	fmt.Fprintf(errOut, "%s logging disabled: %v\n", color.YellowString("warning:"), err)
	return nil
}

func parseTypes(values []string) ([]core.ProjectType, error) {
	types := make([]core.ProjectType, 0, len(values))
	for _, v := range values {
		t, err := core.ParseProjectType(v)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
