package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"frp-clean/pkg/core"
	"frp-clean/pkg/pipeline"
)

type listReport struct {
	Projects []core.ProjectRecord `json:"projects"`
	Warnings []core.ScanWarning   `json:"warnings,omitempty"`
}

func newListCommand(g *globalOptions) *cobra.Command {
	f := &scanFlags{}

	cmd := &cobra.Command{
		Use:     "list <path>...",
		Aliases: []string{"ls"},
		Short:   "Scan paths and list the projects that would be cleaned",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			scanCfg, types, err := f.scanConfig(cmd, cfg, args)
			if err != nil {
				return err
			}

			logger := g.setupLogger(cfg, cmd.ErrOrStderr())
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			r := newRenderer(cmd.ErrOrStderr(), renderOptions{
				json:     f.json,
				quiet:    g.quiet,
				progress: cfg.ShowProgress,
			})
			sink := core.NewChannelSink(64)
			rendered := make(chan struct{})
			go func() {
				r.consume(sink.Events())
				close(rendered)
			}()

			res, err := pipeline.NewCoordinator(logger, sink).Scan(ctx, scanCfg)
			sink.Close()
			<-rendered
			if res == nil {
				return err
			}

			projects, _ := pipeline.FilterByType(types...)(ctx, res.Projects)
			if f.json {
				if jerr := writeJSON(out, listReport{Projects: projects, Warnings: res.Warnings}); jerr != nil {
					return jerr
				}
				return err
			}

			for _, p := range projects {
				fmt.Fprintf(out, "%s %s\n", typeLabel(fmt.Sprintf("%-7s", p.Type)), p.Path)
			}
			if !g.quiet {
				fmt.Fprintf(out, "Total: %s\n", plural(len(projects), "project"))
			}
			return err
		},
	}

	f.register(cmd)
	return cmd
}
