package engine

import (
	"context"
	"fmt"

	"github.com/mdsync/outline-sync/internal/remote"
)

// fakeGateway is an in-memory remote.Gateway for exercising PushEngine
// without a network dependency.
type fakeGateway struct {
	docs      map[string]remote.Doc
	nextID    int
	creates   []remote.Doc
	updates   []remote.Doc
	deletes   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{docs: map[string]remote.Doc{}}
}

func (g *fakeGateway) ListCollections(ctx context.Context) ([]remote.Collection, error) {
	return nil, nil
}

func (g *fakeGateway) ListDocuments(ctx context.Context, collectionID string) ([]remote.Doc, error) {
	var out []remote.Doc
	for _, d := range g.docs {
		out = append(out, d)
	}
	return out, nil
}

func (g *fakeGateway) CreateDocument(ctx context.Context, collectionID, title, text, parentID string) (remote.Doc, error) {
	g.nextID++
	d := remote.Doc{
		ID:       fmt.Sprintf("id-%d", g.nextID),
		Title:    title,
		Text:     text,
		ParentID: parentID,
	}
	g.docs[d.ID] = d
	g.creates = append(g.creates, d)
	return d, nil
}

func (g *fakeGateway) UpdateDocument(ctx context.Context, id string, title, text, parentID *string) (remote.Doc, error) {
	d, ok := g.docs[id]
	if !ok {
		return remote.Doc{}, fmt.Errorf("no such document %s", id)
	}
	if title != nil {
		d.Title = *title
	}
	if text != nil {
		d.Text = *text
	}
	if parentID != nil {
		d.ParentID = *parentID
	}
	g.docs[id] = d
	g.updates = append(g.updates, d)
	return d, nil
}

func (g *fakeGateway) DeleteDocument(ctx context.Context, id string) error {
	delete(g.docs, id)
	g.deletes = append(g.deletes, id)
	return nil
}
