package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"frp-clean/pkg/core"
	"frp-clean/pkg/pipeline"
)

// confirmSelector asks before anything is deleted. It waits for the
// renderer to finish printing the scan so the question comes last.
func confirmSelector(ready <-chan struct{}, in io.Reader, out io.Writer) pipeline.Selector {
	return func(ctx context.Context, found []core.ProjectRecord) ([]core.ProjectRecord, error) {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if len(found) == 0 {
			return found, nil
		}

		var estimate int64
		for _, rec := range found {
			for _, p := range rec.ArtifactPaths {
				if n, err := core.PathSize(p); err == nil {
					estimate += n
				}
			}
		}

		fmt.Fprintf(out, "Clean %s (about %s)? [y/N] ", plural(len(found), "project"), humanize.IBytes(uint64(estimate)))
		answer, err := readLine(ctx, in)
		if err != nil {
			fmt.Fprintln(out)
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return found, nil
		}
		return nil, pipeline.ErrAborted
	}
}

// readLine returns early when ctx is cancelled; the reading goroutine is
// left blocked on in, which only happens on the way out of the process.
func readLine(ctx context.Context, in io.Reader) (string, error) {
	type line struct {
		s   string
		err error
	}
	ch := make(chan line, 1)
	go func() {
		s, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		ch <- line{s, err}
	}()
	select {
	case l := <-ch:
		if l.err == io.EOF {
			return "", pipeline.ErrAborted
		}
		return l.s, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
