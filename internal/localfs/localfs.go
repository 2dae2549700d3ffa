// Package localfs scans the local sync tree and produces LocalFile
// snapshots for change detection.
package localfs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdsync/outline-sync/internal/frontmatter"
)

// IndexName is the fixed basename used for a parent document's on-disk
// representative.
const IndexName = "README.md"

// SidecarName is the reserved, never-syncable state file basename.
const SidecarName = ".outline"

// File is an on-disk text file under the sync root.
type File struct {
	RelPath        string // POSIX separators, relative to root
	ModTime        time.Time
	Size           int64
	ContentHash    string
	OutlineID      string
	HasFrontMatter bool
	IsIndex        bool
}

// IOError is a fatal error walking the sync root.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error at %s: %v", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Logger receives non-fatal per-file warnings (unreadable files are
// skipped, not fatal, per spec.md §4.3).
type Logger interface {
	Logf(format string, args ...interface{}) (int, error)
}

// Scan walks root, visiting every regular *.md file except the sidecar
// state file and anything under a dot-prefixed path component. Returns a
// mapping relPath -> File. An unreadable root is a fatal *IOError;
// individual per-file read failures are logged and the file skipped.
func Scan(root string, log Logger) (map[string]File, error) {
	out := make(map[string]File)

	info, err := os.Stat(root)
	if err != nil {
		return nil, &IOError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &IOError{Path: root, Err: fmt.Errorf("not a directory")}
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if log != nil {
				log.Logf("skipping %s: %v\n", path, err)
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if name == SidecarName {
			return nil
		}
		if !strings.HasSuffix(name, ".md") {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			if log != nil {
				log.Logf("skipping %s: %v\n", path, err)
			}
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		f, err := buildFile(path, relPath, d)
		if err != nil {
			if log != nil {
				log.Logf("skipping %s: %v\n", path, err)
			}
			return nil
		}
		out[relPath] = f
		return nil
	})
	if walkErr != nil {
		return nil, &IOError{Path: root, Err: walkErr}
	}

	return out, nil
}

func buildFile(absPath, relPath string, d fs.DirEntry) (File, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return File{}, err
	}
	info, err := d.Info()
	if err != nil {
		return File{}, err
	}

	doc := frontmatter.Parse(content)
	sum := sha256.Sum256(content)

	return File{
		RelPath:        relPath,
		ModTime:        info.ModTime(),
		Size:           info.Size(),
		ContentHash:    hex.EncodeToString(sum[:]),
		OutlineID:      doc.OutlineID(),
		HasFrontMatter: len(doc.Keys) > 0,
		IsIndex:        filepath.Base(relPath) == IndexName,
	}, nil
}

// HashBody returns the sha256 hash of body alone, used by PushEngine to
// compare against a remote document's text independent of front matter.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
