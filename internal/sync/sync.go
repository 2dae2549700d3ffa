// Package sync sequences the five reconciliation phases (Scan, Detect,
// Conflict, Execute, Persist) spec.md §4.10 assigns to the Orchestrator,
// wiring the leaf components (C1-C10) into a single run.
package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mdsync/outline-sync/internal/changes"
	"github.com/mdsync/outline-sync/internal/conflict"
	"github.com/mdsync/outline-sync/internal/engine"
	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/parentconv"
	"github.com/mdsync/outline-sync/internal/pathmap"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

// Logger is the structured run log every phase reports through
// (spec.md §7: "the only information that leaves the run is the log").
type Logger interface {
	Logf(format string, args ...interface{}) (int, error)
}

// Option configures an Orchestrator beyond its required fields.
type Option func(*Orchestrator)

// WithParallelism is an unexercised extension point: spec.md §5 allows
// (but does not require) intra-phase parallelism inside Phase 4 as long
// as the creates/updates/moves/deletes ordering is serialized per
// subtree. The reference Orchestrator keeps Phase 4 synchronous across
// categories (engine.PushEngine/PullEngine already bound per-category
// work to a worker pool); n is recorded on the Orchestrator but Run
// never reads it, so it does not change how Phase 4 executes.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = n }
}

// WithStaleness overrides the push engine's clock-skew guard
// (engine.StalenessTolerance by default) with config.yaml's
// staleness_tolerance_seconds.
func WithStaleness(d time.Duration) Option {
	return func(o *Orchestrator) { o.staleness = d }
}

// WithConflictWindow overrides the SimultaneousEdit threshold
// (conflict.SimultaneousWindow by default) with config.yaml's
// conflict_window_seconds.
func WithConflictWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.conflictWindow = d }
}

// Orchestrator runs one sync invocation against a single collection.
type Orchestrator struct {
	Root         string
	CollectionID string
	Gateway      remote.Gateway
	Log          Logger

	parallelism    int
	staleness      time.Duration
	conflictWindow time.Duration
}

// New constructs an Orchestrator, applying any Options.
func New(root, collectionID string, gw remote.Gateway, log Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Root:           root,
		CollectionID:   collectionID,
		Gateway:        gw,
		Log:            log,
		staleness:      engine.StalenessTolerance,
		conflictWindow: conflict.SimultaneousWindow,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Report summarizes one completed (or halted) run for the CLI layer.
type Report struct {
	Conflicts     []conflict.Conflict
	PushOutcomes  []engine.PushOutcome
	PullOutcomes  []engine.PullOutcome
	DocumentCount int
	LocalCount    int
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.Log != nil {
		o.Log.Logf(format, args...)
	}
}

// Run executes Phase 1 through Phase 5. On ConflictDetected, Run
// returns a non-nil *Report (the conflicts) alongside the
// *ConflictDetected error — per spec.md §7 this is a terminal outcome,
// not a failure: the CLI maps it to exit code 0. Any other non-nil
// error is fatal per spec.md §7 and the sidecar is left untouched so
// the next run retries from the same baseline.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Phase 1: Scan.
	o.logf("phase 1: scan\n")
	prev := state.Load(o.Root)

	current, err := localfs.Scan(o.Root, o.Log)
	if err != nil {
		o.logf("phase 1: local scan failed: %v\n", err)
		return nil, err
	}

	docs, err := o.Gateway.ListDocuments(ctx, o.CollectionID)
	if err != nil {
		o.logf("phase 1: remote listing failed: %v\n", err)
		return nil, err
	}

	hierarchy, err := remote.BuildHierarchy(docs)
	if err != nil {
		o.logf("phase 1: %v\n", err)
		return nil, err
	}

	// Phase 2: Detect.
	o.logf("phase 2: detect\n")
	prevLocal := prev.LocalFilesByPath()
	prevMapping := prev.MappingByID()

	localSet := changes.DetectLocal(prevLocal, prev.IsFirstRun, prev.LastSync, current)
	remoteSet := changes.DetectRemote(prevMapping, prev.LastSync, docs)
	cs := changes.ChangeSet{Local: localSet, Remote: remoteSet}

	// Phase 3: Conflict.
	o.logf("phase 3: conflict\n")
	conflicts := conflict.DetectWithWindow(cs, o.conflictWindow)
	if len(conflicts) > 0 {
		for _, c := range conflicts {
			o.logf("conflict: %s %s (%s): %s\n", c.Kind, c.Path, c.ID, c.Suggestion)
		}
		return &Report{Conflicts: conflicts}, &ConflictDetected{Conflicts: conflicts}
	}

	// Phase 4: Execute.
	o.logf("phase 4: execute\n")
	promotions, demotions := parentconv.Plan(hierarchy, prevMapping)

	pushEngine := &engine.PushEngine{
		Root:         o.Root,
		CollectionID: o.CollectionID,
		Gateway:      o.Gateway,
		Hierarchy:    hierarchy,
		PrevMapping:  prevMapping,
		Log:          o.Log,
		Staleness:    o.staleness,
	}
	pushOutcomes := pushEngine.Run(ctx, localSet)

	assignment := pathmap.Build(hierarchy)
	pullEngine := &engine.PullEngine{
		Root:        o.Root,
		Hierarchy:   hierarchy,
		Assignment:  assignment,
		PrevMapping: prevMapping,
		Log:         o.Log,
	}
	pullOutcomes := pullEngine.Run(ctx, remoteSet, promotions, demotions)

	// Phase 5: Persist.
	o.logf("phase 5: persist\n")
	newState, err := o.snapshot(ctx, docs, hierarchy, assignment, prev.Extra)
	if err != nil {
		o.logf("phase 5: snapshot failed, sidecar not written: %v\n", err)
		return nil, err
	}

	if err := state.Save(o.Root, newState); err != nil {
		o.logf("phase 5: save failed: %v\n", err)
		return nil, err
	}

	return &Report{
		PushOutcomes:  pushOutcomes,
		PullOutcomes:  pullOutcomes,
		DocumentCount: len(newState.DocumentMapping),
		LocalCount:    len(newState.LocalFiles),
	}, nil
}

// snapshot re-lists the remote collection and rescans the local tree so
// the persisted SyncState reflects what is actually on both sides at
// the end of this run, per spec.md §4.4's invariant that
// documentMapping/localFiles mirror the post-run state exactly (not a
// projection computed from Phase 1's now-stale view, which would miss
// documents PushEngine just created). A failure to re-list falls back
// to the Phase 1 listing: the next run's change detector will simply
// re-discover whatever the fallback missed.
func (o *Orchestrator) snapshot(ctx context.Context, fallbackDocs []remote.Doc, fallbackHierarchy *remote.Hierarchy, fallbackAssignment pathmap.Assignment, prevExtra map[string]json.RawMessage) (*state.SyncState, error) {
	docs, err := o.Gateway.ListDocuments(ctx, o.CollectionID)
	hierarchy := fallbackHierarchy
	assignment := fallbackAssignment
	if err != nil {
		o.logf("phase 5: remote re-listing failed, using pre-execute listing: %v\n", err)
		docs = fallbackDocs
	} else if h, herr := remote.BuildHierarchy(docs); herr != nil {
		o.logf("phase 5: %v, using pre-execute hierarchy\n", herr)
		docs = fallbackDocs
	} else {
		hierarchy = h
		assignment = pathmap.Build(hierarchy)
	}

	localFiles, err := localfs.Scan(o.Root, o.Log)
	if err != nil {
		return nil, err
	}

	mapping := make([]state.DocMapping, 0, len(docs))
	for _, d := range docs {
		node := hierarchy.Lookup(d.ID)
		mapping = append(mapping, state.DocMapping{
			ID:        d.ID,
			ShortID:   d.ShortID,
			Title:     d.Title,
			ParentID:  d.ParentID,
			UpdatedAt: d.UpdatedAt,
			LocalPath: assignment[d.ID],
			IsFolder:  node != nil && node.IsParent,
		})
	}

	snaps := make([]state.LocalFileSnapshot, 0, len(localFiles))
	for _, f := range localFiles {
		snaps = append(snaps, state.FromLocalFile(f))
	}

	return &state.SyncState{
		LastSync:        time.Now(),
		CollectionID:    o.CollectionID,
		DocumentMapping: mapping,
		LocalFiles:      snaps,
		Extra:           prevExtra,
	}, nil
}
