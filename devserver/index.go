package devserver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gobwas/glob"
)

// Op is the kind of change of a file.
type Op string

const (
	OpAdded   Op = "added"
	OpChanged Op = "changed"
	OpRemoved Op = "removed"
)

// Change is one file that differs from the last fingerprint.
type Change struct {
	Path string `json:"path"`
	Hash string `json:"hash,omitempty"`
	Op   Op     `json:"op"`
}

// FileState is one fingerprinted file.
type FileState struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Index keeps the content fingerprint of every watched file. Paths are
// relative to the root and use forward slashes.
type Index struct {
	root   string
	ignore []glob.Glob

	mu    sync.RWMutex
	files map[string]string
}

// NewIndex creates an empty index of root.
func NewIndex(root string, ignore []string) (*Index, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}
	matchers := make([]glob.Glob, 0, len(ignore))
	for _, pattern := range ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidIgnore, pattern, err)
		}
		matchers = append(matchers, g)
	}
	return &Index{root: root, ignore: matchers, files: make(map[string]string)}, nil
}

// Root returns the indexed directory.
func (i *Index) Root() string { return i.root }

// Ignored reports whether rel matches an ignore pattern. Directories match
// patterns like "node_modules/**" too.
func (i *Index) Ignored(rel string) bool {
	for _, g := range i.ignore {
		if g.Match(rel) || g.Match(rel+"/") {
			return true
		}
	}
	return false
}

// Rel converts an absolute or root-joined path to an index path.
func (i *Index) Rel(p string) (string, error) {
	rel, err := filepath.Rel(i.root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Rescan fingerprints the whole tree and returns what changed since the
// last scan.
func (i *Index) Rescan() ([]Change, error) {
	fresh := make(map[string]string)
	err := filepath.WalkDir(i.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := i.Rel(p)
		if err != nil || rel == "." {
			return err
		}
		if i.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		hash, err := hashFile(p)
		if err != nil {
			return err
		}
		fresh[rel] = hash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", i.root, err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	var changes []Change
	for rel, hash := range fresh {
		old, ok := i.files[rel]
		switch {
		case !ok:
			changes = append(changes, Change{Path: rel, Hash: hash, Op: OpAdded})
		case old != hash:
			changes = append(changes, Change{Path: rel, Hash: hash, Op: OpChanged})
		}
	}
	for rel := range i.files {
		if _, ok := fresh[rel]; !ok {
			changes = append(changes, Change{Path: rel, Op: OpRemoved})
		}
	}
	i.files = fresh
	sort.Slice(changes, func(a, b int) bool { return changes[a].Path < changes[b].Path })
	return changes, nil
}

// Refresh fingerprints one file again. ok is false when nothing changed.
func (i *Index) Refresh(rel string) (change Change, ok bool, err error) {
	if i.Ignored(rel) {
		return Change{}, false, nil
	}
	p := filepath.Join(i.root, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		i.mu.Lock()
		defer i.mu.Unlock()
		if _, known := i.files[rel]; !known {
			return Change{}, false, nil
		}
		delete(i.files, rel)
		return Change{Path: rel, Op: OpRemoved}, true, nil
	}
	if err != nil {
		return Change{}, false, err
	}
	if !info.Mode().IsRegular() {
		return Change{}, false, nil
	}

	hash, err := hashFile(p)
	if err != nil {
		return Change{}, false, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	old, known := i.files[rel]
	if known && old == hash {
		return Change{}, false, nil
	}
	i.files[rel] = hash
	if !known {
		return Change{Path: rel, Hash: hash, Op: OpAdded}, true, nil
	}
	return Change{Path: rel, Hash: hash, Op: OpChanged}, true, nil
}

// Hash returns the fingerprint of rel.
func (i *Index) Hash(rel string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	hash, ok := i.files[rel]
	return hash, ok
}

// Files returns every fingerprinted file, sorted by path.
func (i *Index) Files() []FileState {
	i.mu.RLock()
	files := make([]FileState, 0, len(i.files))
	for rel, hash := range i.files {
		files = append(files, FileState{Path: rel, Hash: hash})
	}
	i.mu.RUnlock()
	sort.Slice(files, func(a, b int) bool { return files[a].Path < files[b].Path })
	return files
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
