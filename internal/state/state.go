// Package state loads and persists the sidecar state file that anchors
// the three-way diff between runs.
package state

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mdsync/outline-sync/internal/localfs"
)

// SidecarName is the reserved filename under the sync root.
const SidecarName = localfs.SidecarName

// DocMapping is one previously-known document's last local placement.
type DocMapping struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"short_id"`
	Title     string    `json:"title"`
	ParentID  string    `json:"parent_id"`
	UpdatedAt time.Time `json:"updated_at"`
	LocalPath string    `json:"local_path"`
	IsFolder  bool      `json:"is_folder"`
}

// LocalFileSnapshot is the on-disk shape of localfs.File.
type LocalFileSnapshot struct {
	RelPath        string    `json:"rel_path"`
	ModTime        time.Time `json:"mtime"`
	Size           int64     `json:"size"`
	ContentHash    string    `json:"content_hash"`
	OutlineID      string    `json:"outline_id,omitempty"`
	HasFrontMatter bool      `json:"has_front_matter"`
	IsIndex        bool      `json:"is_index"`
}

// SyncState is the full persisted sidecar document.
type SyncState struct {
	LastSync        time.Time           `json:"last_sync"`
	CollectionID    string              `json:"collection_id"`
	DocumentMapping []DocMapping        `json:"document_mapping"`
	LocalFiles      []LocalFileSnapshot `json:"local_files"`

	// IsFirstRun is true when no sidecar existed on disk (Load
	// returned a zero-value state rather than a parsed one). Not
	// itself persisted; change detection consults it, not LastSync's
	// zero value, so a state file that happens to contain a zero
	// LastSync is never confused with "no state file."
	IsFirstRun bool `json:"-"`

	// Extra holds any top-level key this version of SyncState does not
	// know about, so a sidecar written by a newer or differently
	// configured build round-trips through Load/Save unchanged
	// (spec.md §4.4, "additional fields MUST be preserved").
	Extra map[string]json.RawMessage `json:"-"`
}

// syncStateFields mirrors SyncState's known fields; it is the
// marshal/unmarshal target so MarshalJSON/UnmarshalJSON can merge in
// Extra without recursing into themselves.
type syncStateFields struct {
	LastSync        time.Time           `json:"last_sync"`
	CollectionID    string              `json:"collection_id"`
	DocumentMapping []DocMapping        `json:"document_mapping"`
	LocalFiles      []LocalFileSnapshot `json:"local_files"`
}

var knownSyncStateKeys = map[string]bool{
	"last_sync":        true,
	"collection_id":    true,
	"document_mapping": true,
	"local_files":      true,
}

// UnmarshalJSON decodes the known fields normally and stashes every
// other top-level key in Extra.
func (s *SyncState) UnmarshalJSON(data []byte) error {
	var fields syncStateFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if !knownSyncStateKeys[k] {
			extra[k] = v
		}
	}

	s.LastSync = fields.LastSync
	s.CollectionID = fields.CollectionID
	s.DocumentMapping = fields.DocumentMapping
	s.LocalFiles = fields.LocalFiles
	s.Extra = extra
	return nil
}

// MarshalJSON encodes the known fields plus whatever arrived in Extra.
func (s SyncState) MarshalJSON() ([]byte, error) {
	fields := syncStateFields{
		LastSync:        s.LastSync,
		CollectionID:    s.CollectionID,
		DocumentMapping: s.DocumentMapping,
		LocalFiles:      s.LocalFiles,
	}
	knownJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &out); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if !knownSyncStateKeys[k] {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// Load reads <root>/.outline. A missing or malformed sidecar is not an
// error: it yields an empty, IsFirstRun SyncState, because the very
// first run (or a lost sidecar) must degrade to a safe cold start
// rather than a destructive one (spec.md §9, "state file as pivot").
func Load(root string) *SyncState {
	path := filepath.Join(root, SidecarName)
	data, err := os.ReadFile(path)
	if err != nil {
		return &SyncState{IsFirstRun: true}
	}

	var s SyncState
	if err := json.Unmarshal(data, &s); err != nil {
		return &SyncState{IsFirstRun: true}
	}
	return &s
}

// Save writes a new SyncState to <root>/.outline atomically: write to a
// temp file in the same directory, then rename over the target. The
// window in which the sidecar could be left half-written must not
// survive a crash (spec.md §9, "atomic persistence").
func Save(root string, s *SyncState) error {
	s.IsFirstRun = false

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return err
	}

	target := filepath.Join(root, SidecarName)
	tmp := filepath.Join(root, "."+SidecarName+"."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// FromLocalFile converts a localfs.File into its persisted shape.
func FromLocalFile(f localfs.File) LocalFileSnapshot {
	return LocalFileSnapshot{
		RelPath:        f.RelPath,
		ModTime:        f.ModTime,
		Size:           f.Size,
		ContentHash:    f.ContentHash,
		OutlineID:      f.OutlineID,
		HasFrontMatter: f.HasFrontMatter,
		IsIndex:        f.IsIndex,
	}
}

// ToLocalFile converts a persisted snapshot back into a localfs.File.
func (l LocalFileSnapshot) ToLocalFile() localfs.File {
	return localfs.File{
		RelPath:        l.RelPath,
		ModTime:        l.ModTime,
		Size:           l.Size,
		ContentHash:    l.ContentHash,
		OutlineID:      l.OutlineID,
		HasFrontMatter: l.HasFrontMatter,
		IsIndex:        l.IsIndex,
	}
}

// LocalFilesByPath indexes the previous snapshot by relPath for the
// change detector.
func (s *SyncState) LocalFilesByPath() map[string]localfs.File {
	out := make(map[string]localfs.File, len(s.LocalFiles))
	for _, l := range s.LocalFiles {
		out[l.RelPath] = l.ToLocalFile()
	}
	return out
}

// MappingByID indexes the previous document mapping by id for the
// change detector and the engines.
func (s *SyncState) MappingByID() map[string]DocMapping {
	out := make(map[string]DocMapping, len(s.DocumentMapping))
	for _, m := range s.DocumentMapping {
		out[m.ID] = m
	}
	return out
}
