// Package remote defines the RemoteGateway contract and the document
// hierarchy derived from a collection listing.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Doc is the unit of remote state: a titled document that may have
// children in the same collection.
type Doc struct {
	ID        string
	ShortID   string
	Title     string
	Text      string
	ParentID  string // empty for a root document
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collection is the top-level remote container scoping a sync run.
type Collection struct {
	ID   string
	Name string
}

// Gateway is the external collaborator the core reconciliation engine
// depends on. Every method may block on network I/O; a failure on any
// single call is reported as a *TransportError rather than panicking or
// aborting the run.
type Gateway interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	ListDocuments(ctx context.Context, collectionID string) ([]Doc, error)
	CreateDocument(ctx context.Context, collectionID, title, text, parentID string) (Doc, error)
	UpdateDocument(ctx context.Context, id string, title, text, parentID *string) (Doc, error)
	DeleteDocument(ctx context.Context, id string) error
}

// TransportError wraps a failed RemoteGateway operation. The run
// continues past it; the affected document is simply retried next run
// because its state entry is not updated.
type TransportError struct {
	Op  string
	ID  string
	Err error
}

func (e *TransportError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("remote %s(%s): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvariantViolation signals a remote response that breaks a documented
// invariant (e.g. a parent-id cycle). Fatal: the run aborts without
// writing state.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Reason
}

// ErrCycle is wrapped inside InvariantViolation when BuildHierarchy
// detects a parent cycle.
var ErrCycle = errors.New("parent-id cycle detected")
