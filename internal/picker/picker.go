// Package picker implements the first-run interactive collection
// prompt (spec.md §4.15), grounded on the teacher's prompt/scan helpers
// in src/misc.go (prompt, promptForChanges) and its isatty-gated TTY
// check in src/commands.go.
package picker

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"

	"github.com/mdsync/outline-sync/internal/remote"
)

// ErrNotInteractive is returned when config.yaml omits collection_id
// and stdin is not a terminal: there is nothing to prompt, so the
// caller must surface this as a ConfigError per spec.md §4.15.
var ErrNotInteractive = fmt.Errorf("collection_id is empty and stdin is not a terminal")

// Pick lists the gateway's collections, prints a numbered menu to out,
// reads a line from in, and returns the chosen collection id. It
// refuses to run unless stdinIsTTY, matching spec.md §4.15's
// non-interactive guard.
func Pick(ctx context.Context, gw remote.Gateway, in *os.File, out io.Writer, stdinIsTTY bool) (string, error) {
	if !stdinIsTTY {
		return "", ErrNotInteractive
	}

	collections, err := gw.ListCollections(ctx)
	if err != nil {
		return "", fmt.Errorf("listing collections: %w", err)
	}
	if len(collections) == 0 {
		return "", fmt.Errorf("no collections available")
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i].Name < collections[j].Name })

	for i, c := range collections {
		fmt.Fprintf(out, "%d) %s\n", i+1, c.Name)
	}
	fmt.Fprint(out, "choose a collection [1]: ")

	var choice int
	if _, err := fmt.Fscanln(in, &choice); err != nil {
		choice = 1
	}
	if choice < 1 || choice > len(collections) {
		choice = 1
	}

	return collections[choice-1].ID, nil
}

// IsTerminal reports whether f is attached to a terminal, the same
// go-isatty check the teacher uses to decide whether prompts are safe.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd())
}
