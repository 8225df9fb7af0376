package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"frp-clean/pkg/core"
)

var (
	successMark = color.New(color.FgGreen).SprintFunc()
	failMark    = color.New(color.FgRed).SprintFunc()
	warnMark    = color.New(color.FgYellow).SprintFunc()
	typeLabel   = color.New(color.FgCyan).SprintFunc()
	bold        = color.New(color.Bold).SprintFunc()
)

// renderer prints the event stream for humans. It is driven by a single
// goroutine reading a ChannelSink.
type renderer struct {
	out      io.Writer
	silent   bool // --json: events are not printed at all
	quiet    bool
	verbose  bool
	progress bool // rewrite a single status line while scanning

	found    int
	total    int
	done     int
	scanDone chan struct{}
}

func newRenderer(out io.Writer, opts renderOptions) *renderer {
	return &renderer{
		out:      out,
		silent:   opts.json,
		quiet:    opts.quiet,
		verbose:  opts.verbose,
		progress: opts.progress && !opts.quiet && !opts.json && isTerminal(out),
		scanDone: make(chan struct{}),
	}
}

type renderOptions struct {
	json     bool
	quiet    bool
	verbose  bool
	progress bool
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// consume renders events until the channel is closed.
func (r *renderer) consume(events <-chan core.Event) {
	for e := range events {
		r.handle(e)
	}
	r.markScanDone()
}

func (r *renderer) markScanDone() {
	select {
	case <-r.scanDone:
	default:
		close(r.scanDone)
	}
}

func (r *renderer) handle(e core.Event) {
	if r.silent {
		if e.Kind == core.EventScanCompleted {
			r.markScanDone()
		}
		return
	}

	switch e.Kind {
	case core.EventScanStarted:
		if !r.quiet {
			fmt.Fprintf(r.out, "Scanning %s\n", strings.Join(e.Roots, ", "))
		}

	case core.EventProjectFound:
		r.found++
		switch {
		case r.progress:
			fmt.Fprintf(r.out, "\r  found %d projects...", r.found)
		case r.verbose:
			fmt.Fprintf(r.out, "  found %s %s\n", typeLabel("["+e.Project.Type.String()+"]"), e.Project.Path)
		}

	case core.EventScanCompleted:
		if r.progress {
			fmt.Fprint(r.out, "\r\033[K")
		}
		for _, w := range e.Warnings {
			fmt.Fprintf(r.out, "%s %s\n", warnMark("warning:"), w)
		}
		if !r.quiet {
			fmt.Fprintf(r.out, "Found %s\n", bold(plural(e.Found, "project")))
		}
		r.markScanDone()

	case core.EventCleanStarted:
		r.total = e.Total
		if r.quiet || e.Total == 0 {
			return
		}
		if e.DryRun {
			fmt.Fprintln(r.out, warnMark("Dry run: nothing will be deleted"))
		}
		fmt.Fprintf(r.out, "Cleaning %s\n", plural(e.Total, "project"))

	case core.EventProjectCleaned:
		r.done++
		r.printResult(*e.Result)

	case core.EventCleanCompleted:
		r.printSummary(*e.Summary)
	}
}

func (r *renderer) printResult(res core.CleanResult) {
	counter := fmt.Sprintf("[%d/%d]", r.done, r.total)
	label := typeLabel(res.Type.String())

	switch res.Outcome {
	case core.OutcomeSuccess:
		if r.quiet {
			return
		}
		size := humanize.IBytes(uint64(res.BytesFreed))
		if res.DryRun {
			size = "would free " + size
		}
		fmt.Fprintf(r.out, "%s %s %s %s (%s)\n", counter, successMark("✓"), res.Path, label, size)
	case core.OutcomeFailed:
		fmt.Fprintf(r.out, "%s %s %s %s: %v\n", counter, failMark("✗"), res.Path, label, res.Err)
		if res.Err != nil && len(res.Err.Succeeded) > 0 {
			fmt.Fprintf(r.out, "      removed before failure: %s\n", strings.Join(res.Err.Succeeded, ", "))
		}
	case core.OutcomeSkipped:
		if r.quiet {
			return
		}
		fmt.Fprintf(r.out, "%s %s %s: %s\n", counter, warnMark("-"), res.Path, res.Reason)
	case core.OutcomeCancelled:
		if r.verbose {
			fmt.Fprintf(r.out, "%s %s %s: cancelled\n", counter, warnMark("!"), res.Path)
		}
	}
}

func (r *renderer) printSummary(s core.Summary) {
	if s.Selected == 0 {
		return
	}
	verb := "Freed"
	if s.DryRun {
		verb = "Would free"
	}
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "%s %s in %s\n", bold(verb), bold(humanize.IBytes(uint64(s.BytesFreed))), s.Duration.Round(time.Millisecond))

	parts := []string{successMark(fmt.Sprintf("%d cleaned", s.Cleaned))}
	if s.Failed > 0 {
		parts = append(parts, failMark(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Skipped > 0 {
		parts = append(parts, warnMark(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	if s.Cancelled > 0 {
		parts = append(parts, warnMark(fmt.Sprintf("%d cancelled", s.Cancelled)))
	}
	if s.Found > s.Selected {
		parts = append(parts, fmt.Sprintf("%d of %d found selected", s.Selected, s.Found))
	}
	fmt.Fprintln(r.out, strings.Join(parts, ", "))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
