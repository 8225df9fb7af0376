// Package pipeline runs scan, selection and clean as one invocation and
// feeds every event of both phases into a single sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"frp-clean/pkg/cleaner"
	"frp-clean/pkg/core"
	"frp-clean/pkg/scanner"
)

// ErrAborted is returned by a Selector when the user declines to clean.
var ErrAborted = errors.New("clean aborted")

// Selector narrows the scanned projects before cleaning. It must not
// modify the records it is given.
type Selector func(ctx context.Context, found []core.ProjectRecord) ([]core.ProjectRecord, error)

// FilterByType keeps projects of the given types; no types keeps all.
func FilterByType(types ...core.ProjectType) Selector {
	return func(_ context.Context, found []core.ProjectRecord) ([]core.ProjectRecord, error) {
		if len(types) == 0 {
			return found, nil
		}
		keep := make(map[core.ProjectType]bool, len(types))
		for _, t := range types {
			keep[t] = true
		}
		selected := make([]core.ProjectRecord, 0, len(found))
		for _, rec := range found {
			if keep[rec.Type] {
				selected = append(selected, rec)
			}
		}
		return selected, nil
	}
}

// Report collects everything one Run produced.
type Report struct {
	Scan     *scanner.Result
	Selected []core.ProjectRecord
	Results  []core.CleanResult
	Summary  core.Summary
}

// Coordinator wires a scanner and a cleaner to one logger and sink.
type Coordinator struct {
	logger  *core.Logger
	scanner *scanner.Scanner
	cleaner *cleaner.Cleaner
}

// NewCoordinator builds the scanner and cleaner. Extra cleaner options
// (such as a custom Runner) are applied after the shared ones.
func NewCoordinator(logger *core.Logger, sink core.EventSink, cleanerOpts ...cleaner.Option) *Coordinator {
	if sink == nil {
		sink = core.DiscardSink
	}
	opts := append([]cleaner.Option{cleaner.WithLogger(logger), cleaner.WithSink(sink)}, cleanerOpts...)
	return &Coordinator{
		logger:  logger,
		scanner: scanner.New(scanner.WithLogger(logger), scanner.WithSink(sink)),
		cleaner: cleaner.New(opts...),
	}
}

// Scan runs only the scan phase.
func (c *Coordinator) Scan(ctx context.Context, scanCfg core.ScanConfig) (*scanner.Result, error) {
	return c.scanner.Scan(ctx, scanCfg)
}

// Run scans, applies selectors in order and cleans what is left. A
// ConfigError from either phase aborts the run. A cancelled context
// during the scan returns the partial scan without cleaning.
func (c *Coordinator) Run(ctx context.Context, scanCfg core.ScanConfig, cleanCfg core.CleanConfig, selectors ...Selector) (*Report, error) {
	report := &Report{}

	scanned, err := c.scanner.Scan(ctx, scanCfg)
	report.Scan = scanned
	if err != nil {
		return report, err
	}

	selected := scanned.Projects
	for _, sel := range selectors {
		if selected, err = sel(ctx, selected); err != nil {
			c.logger.Infof("selection stopped: %v", err)
			return report, err
		}
	}
	report.Selected = selected
	c.logger.Infof("selected %d of %d projects", len(selected), len(scanned.Projects))

	cleanCfg.Found = len(scanned.Projects)
	results, summary, err := c.cleaner.Clean(ctx, selected, cleanCfg)
	if err != nil {
		return report, fmt.Errorf("clean: %w", err)
	}
	report.Results = results
	report.Summary = summary
	return report, nil
}
