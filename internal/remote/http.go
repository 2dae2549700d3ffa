package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPGateway is the concrete Gateway backed by an Outline-style JSON
// REST API: POST-only mutation endpoints, bearer auth, cursor-free
// offset pagination.
type HTTPGateway struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// PageSize controls documents.list pagination; spec.md §6 requires
	// at least 100 per page.
	PageSize int

	// MaxRetries bounds retries of a 429/5xx response before the call
	// is surfaced as a *TransportError. Zero means use the default.
	MaxRetries int
}

// NewHTTPGateway returns a gateway with the documented defaults applied.
func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		PageSize:   100,
		MaxRetries: 3,
	}
}

type docWire struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"urlId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	ParentID  string    `json:"parentDocumentId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w docWire) toDoc() Doc {
	return Doc{
		ID:        w.ID,
		ShortID:   w.ShortID,
		Title:     w.Title,
		Text:      w.Text,
		ParentID:  w.ParentID,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type collectionWire struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (g *HTTPGateway) ListCollections(ctx context.Context) ([]Collection, error) {
	var resp struct {
		Data []collectionWire `json:"data"`
	}
	if err := g.call(ctx, "collections.list", map[string]any{}, &resp); err != nil {
		return nil, &TransportError{Op: "ListCollections", Err: err}
	}
	out := make([]Collection, 0, len(resp.Data))
	for _, c := range resp.Data {
		out = append(out, Collection{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

func (g *HTTPGateway) ListDocuments(ctx context.Context, collectionID string) ([]Doc, error) {
	pageSize := g.PageSize
	if pageSize < 100 {
		pageSize = 100
	}

	var all []Doc
	offset := 0
	for {
		var resp struct {
			Data []docWire `json:"data"`
		}
		body := map[string]any{
			"collectionId": collectionID,
			"limit":        pageSize,
			"offset":       offset,
		}
		if err := g.call(ctx, "documents.list", body, &resp); err != nil {
			return nil, &TransportError{Op: "ListDocuments", ID: collectionID, Err: err}
		}
		for _, w := range resp.Data {
			all = append(all, w.toDoc())
		}
		if len(resp.Data) < pageSize {
			break
		}
		offset += pageSize
	}
	return all, nil
}

func (g *HTTPGateway) CreateDocument(ctx context.Context, collectionID, title, text, parentID string) (Doc, error) {
	body := map[string]any{
		"collectionId": collectionID,
		"title":        title,
		"text":         text,
		"publish":      true,
	}
	if parentID != "" {
		body["parentDocumentId"] = parentID
	}
	var resp struct {
		Data docWire `json:"data"`
	}
	if err := g.call(ctx, "documents.create", body, &resp); err != nil {
		return Doc{}, &TransportError{Op: "CreateDocument", Err: err}
	}
	return resp.Data.toDoc(), nil
}

func (g *HTTPGateway) UpdateDocument(ctx context.Context, id string, title, text, parentID *string) (Doc, error) {
	body := map[string]any{"id": id}
	if title != nil {
		body["title"] = *title
	}
	if text != nil {
		body["text"] = *text
	}
	if parentID != nil {
		body["parentDocumentId"] = *parentID
	}
	var resp struct {
		Data docWire `json:"data"`
	}
	if err := g.call(ctx, "documents.update", body, &resp); err != nil {
		return Doc{}, &TransportError{Op: "UpdateDocument", ID: id, Err: err}
	}
	return resp.Data.toDoc(), nil
}

func (g *HTTPGateway) DeleteDocument(ctx context.Context, id string) error {
	if err := g.call(ctx, "documents.delete", map[string]any{"id": id}, nil); err != nil {
		return &TransportError{Op: "DeleteDocument", ID: id, Err: err}
	}
	return nil
}

// call issues one POST request against endpoint, retrying a 429 or 5xx
// response up to MaxRetries times with linear backoff. A 4xx other than
// 429 is not retried.
func (g *HTTPGateway) call(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	maxRetries := g.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/"+endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.Token)

		resp, err := g.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, string(respBody))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}
