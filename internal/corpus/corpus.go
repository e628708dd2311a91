// Package corpus provides read access to the document tree the service
// answers questions from. Documents are identified by their path relative
// to the corpus root; identities are stable across runs.
package corpus

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lexarch/lexarch/internal/parser"
)

// Corpus is a filesystem-backed document source.
type Corpus struct {
	root string
}

// New creates a corpus rooted at dir.
func New(dir string) *Corpus {
	return &Corpus{root: dir}
}

// Root returns the corpus root directory.
func (c *Corpus) Root() string {
	return c.root
}

// List returns the sorted relative paths of all supported documents,
// searching the tree recursively. A missing root yields an empty list,
// matching a corpus that simply has no documents yet.
func (c *Corpus) List() ([]string, error) {
	if _, err := os.Stat(c.root); os.IsNotExist(err) {
		return nil, nil
	}

	var identities []string
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !parser.IsSupportedExtension(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		identities = append(identities, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus %s: %w", c.root, err)
	}

	sort.Strings(identities)
	return identities, nil
}

// Open returns a reader for a document identity.
func (c *Corpus) Open(identity string) (io.ReadCloser, error) {
	path, err := c.resolve(identity)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// ReadBytes reads a document's raw bytes.
func (c *Corpus) ReadBytes(identity string) ([]byte, error) {
	path, err := c.resolve(identity)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Stat returns file info for a document identity.
func (c *Corpus) Stat(identity string) (os.FileInfo, error) {
	path, err := c.resolve(identity)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// Path resolves an identity to its absolute path, rejecting escapes from
// the corpus root.
func (c *Corpus) Path(identity string) (string, error) {
	return c.resolve(identity)
}

func (c *Corpus) resolve(identity string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(identity))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid document identity %q", identity)
	}
	return filepath.Join(c.root, clean), nil
}
