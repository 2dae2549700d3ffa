package sync

import (
	"fmt"
	"strings"

	"github.com/mdsync/outline-sync/internal/conflict"
)

// ConflictDetected is the terminal, non-error outcome spec.md §4.6/§7
// defines: Phase 3 found at least one divergent edit, so the run halted
// before any mutation. The CLI layer maps this to exit code 0 after
// printing the report; it is returned as an error only so Run's normal
// Go error-propagation path carries it.
type ConflictDetected struct {
	Conflicts []conflict.Conflict
}

func (e *ConflictDetected) Error() string {
	if len(e.Conflicts) == 1 {
		return fmt.Sprintf("sync halted: 1 conflict (%s)", e.Conflicts[0].Path)
	}
	paths := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		paths[i] = c.Path
	}
	return fmt.Sprintf("sync halted: %d conflicts (%s)", len(e.Conflicts), strings.Join(paths, ", "))
}
