// Package engine applies a ChangeSet's deltas against local disk and the
// remote gateway: PushEngine (local -> remote) and PullEngine
// (remote -> local).
package engine

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdsync/outline-sync/internal/frontmatter"
	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
	"github.com/odeke-em/semalim"
)

// Logger receives per-operation progress and non-fatal errors.
type Logger interface {
	Logf(format string, args ...interface{}) (int, error)
}

// StalenessTolerance is the clock-skew guard spec.md §9 calls for:
// 5 seconds between local mtime and remote updatedAt.
const StalenessTolerance = 5 * time.Second

// maxWorkers bounds the per-category concurrency inside one engine run,
// grounded on the teacher's semalim-based worker pool in src/push.go /
// src/pull.go.
const maxWorkers = 8

// canonicalID translates a locally stored id, which may be either a
// document's canonical id or its shortId, into the canonical form, per
// spec.md §9's "two kinds of id" note. If idOrShort does not match any
// previous mapping entry it is returned unchanged, e.g. because the
// document was created earlier in this same run.
func canonicalID(prevMapping map[string]state.DocMapping, idOrShort string) string {
	if _, ok := prevMapping[idOrShort]; ok {
		return idOrShort
	}
	for id, m := range prevMapping {
		if m.ShortID == idOrShort {
			return id
		}
	}
	return idOrShort
}

// frontMatterID picks which form of a document's id to store on disk:
// the shortId if the gateway returned one, else the canonical id
// (DESIGN.md Open Question 4).
func frontMatterID(d remote.Doc) string {
	if d.ShortID != "" {
		return d.ShortID
	}
	return d.ID
}

// titleFromPath implements spec.md §6: index files take their title
// from the containing directory name, non-index files from the
// basename without the .md extension.
func titleFromPath(relPath string) string {
	if path.Base(relPath) == localfs.IndexName {
		dir := path.Dir(relPath)
		if dir == "." {
			return "untitled"
		}
		return path.Base(dir)
	}
	return strings.TrimSuffix(path.Base(relPath), ".md")
}

// runJobs executes fns concurrently, bounded by maxWorkers, and returns
// the first non-nil error for each index that failed (nil entries mark
// success). Each job's own error is also reported to log so the
// category as a whole can continue past it, per spec.md §7's
// "per-operation error; logged; the run continues" rule.
func runJobs(log Logger, label string, fns []func() error) []error {
	errs := make([]error, len(fns))
	if len(fns) == 0 {
		return errs
	}

	jobsChan := make(chan semalim.Job)
	go func() {
		defer close(jobsChan)
		for i, fn := range fns {
			jobsChan <- indexedJob{idx: i, do: fn}
		}
	}()

	n := uint64(maxWorkers)
	if uint64(len(fns)) < n {
		n = uint64(len(fns))
	}
	for result := range semalim.Run(jobsChan, n) {
		idx := result.Value().(int)
		if err := result.Err(); err != nil {
			errs[idx] = err
			if log != nil {
				log.Logf("%s: %v\n", label, err)
			}
		}
	}
	return errs
}

type indexedJob struct {
	idx int
	do  func() error
}

func (j indexedJob) Id() interface{} { return j.idx }

func (j indexedJob) Do() (interface{}, error) {
	return j.idx, j.do()
}

// ctxOrBackground guards against a nil context slipping in from a
// caller that does not itself carry one.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func absPath(root, relPath string) string {
	return filepath.Join(root, filepath.FromSlash(relPath))
}

func writeFrontMatterID(root, relPath, id string) error {
	p := absPath(root, relPath)
	content, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	doc := frontmatter.Parse(content)
	updated := frontmatter.WithID(doc, id)
	return os.WriteFile(p, frontmatter.Serialize(updated), 0o644)
}
