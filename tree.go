package zipvault

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Entry is one node of a Tree: either a file, carrying its FileMetadata, or
// a directory, carrying its own metadata plus its children.
type Entry struct {
	Metadata *FileMetadata
	children map[string]*Entry
	names    []string // children's keys, kept sorted for stable traversal
}

func (e *Entry) IsDir() bool { return e.children != nil }

// Tree organizes an archive's entries into a validated hierarchy of nested
// directories and files: it rejects duplicate siblings, entries found
// before their parent directory's entry, and paths with ".." or empty
// components, and it lets files be looked up by path without a linear
// scan. A leading "/" is stripped with a warning rather than rejected, and
// drive-letter prefixes such as "C:" are treated as ordinary names.
type Tree struct {
	root *Entry
}

// NewTreeOptions configures NewTree.
type NewTreeOptions struct {
	// Logger receives non-fatal warnings encountered while building the
	// hierarchy (an orphaned "." path component, a redundant trailing
	// directory marker). Defaults to discarding everything.
	Logger *slog.Logger
}

// NewTree builds a Tree from an archive's entries, validating that they
// together describe a sensible hierarchy. It is equivalent to
// NewTreeWithOptions(entries, nil).
func NewTree(entries []*FileMetadata) (*Tree, error) {
	return NewTreeWithOptions(entries, nil)
}

// NewTreeWithOptions is like NewTree, but lets the caller supply a logger
// for the warnings building the hierarchy can produce.
func NewTreeWithOptions(entries []*FileMetadata, opts *NewTreeOptions) (*Tree, error) {
	logger := discardLogger
	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	}

	root := &Entry{children: map[string]*Entry{}}
	for _, m := range entries {
		if err := insert(root, m, logger); err != nil {
			return nil, err
		}
	}
	return &Tree{root: root}, nil
}

func insert(root *Entry, m *FileMetadata, logger *slog.Logger) error {
	components, base, err := splitHierarchyPath(m.Path, logger)
	if err != nil {
		return err
	}

	dir := root
	for _, c := range components {
		child, ok := dir.children[c]
		if !ok {
			return &HierarchyError{Reason: fmt.Sprintf("%s found before its parent directories", m.Path)}
		}
		if !child.IsDir() {
			return &HierarchyError{Reason: fmt.Sprintf("%s expected %s to be a directory", m.Path, c)}
		}
		dir = child
	}

	if base == "" {
		// Nothing was left of the path once slashes and "." components
		// were dropped (e.g. "/" or "./"), so there is no node to create.
		return nil
	}

	entry := &Entry{Metadata: m}
	if m.IsDir() {
		entry.children = map[string]*Entry{}
	}
	if _, exists := dir.children[base]; exists {
		return &HierarchyError{Reason: fmt.Sprintf("duplicate entry for %s", m.Path)}
	}
	dir.children[base] = entry
	dir.names = insertSorted(dir.names, base)
	return nil
}

func insertSorted(names []string, name string) []string {
	i := sort.SearchStrings(names, name)
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	return names
}

// splitHierarchyPath splits a ZIP entry path into its parent components and
// its base name (the last component). A trailing slash, which marks a
// directory, is dropped first, so "a/b/" yields components ["a"] and base
// "b". Unlike a lookup path from a caller, "." components and a leading
// "/" are not rejected: they are skipped, matching how real-world ZIP
// writers occasionally produce them, and logger receives a warning for
// each such oddity. ".." and empty components are rejected.
func splitHierarchyPath(path string, logger *slog.Logger) (components []string, base string, err error) {
	trimmed := strings.TrimPrefix(path, "/")
	if len(trimmed) != len(path) {
		logger.Warn("leading root marker", "path", path)
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return nil, "", nil
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		switch p {
		case "":
			return nil, "", &HierarchyError{Reason: fmt.Sprintf("%s has an empty path component", path)}
		case "..":
			return nil, "", &HierarchyError{Reason: fmt.Sprintf("parent dir (..) found in path %s", path)}
		case ".":
			// Tolerated: skip it without consuming a tree level.
			logger.Warn("orphaned '.' path component", "path", path)
			continue
		}
		if i == len(parts)-1 {
			base = p
		} else {
			components = append(components, p)
		}
	}
	if base == "" && len(components) > 0 {
		// Every component other than the dropped "." entries was itself
		// a directory marker; treat the last real one as the base so the
		// node for it still gets created.
		logger.Warn("redundant trailing directory marker", "path", path)
		base = components[len(components)-1]
		components = components[:len(components)-1]
	}
	return components, base, nil
}

// Lookup finds the entry at path, which must use forward slashes and no
// "." or ".." components. Unlike the tolerant parsing used while building
// the tree, a caller-supplied path that is malformed in this way is
// rejected outright rather than silently walked through. An empty path,
// a leading "/", and empty components are rejected the same way.
func (t *Tree) Lookup(path string) (*Entry, error) {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	for _, p := range parts {
		switch p {
		case "", ".", "..":
			return nil, &InvalidPathError{Reason: fmt.Sprintf("path %q has an invalid component %q", path, p)}
		}
	}
	dir := t.root
	for i, p := range parts {
		child, ok := dir.children[p]
		if !ok {
			return nil, &NoSuchFileError{Path: path}
		}
		if i < len(parts)-1 {
			if !child.IsDir() {
				return nil, &InvalidPathError{Reason: fmt.Sprintf("%q is a file, expected a directory", path)}
			}
		}
		dir = child
	}
	return dir, nil
}

// All returns an iterator over every entry in the tree, directories before
// their children, siblings in sorted order.
func (t *Tree) All() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		walk(t.root, yield)
	}
}

func walk(e *Entry, yield func(*Entry) bool) bool {
	for _, name := range e.names {
		child := e.children[name]
		if child.Metadata != nil {
			if !yield(child) {
				return false
			}
		}
		if child.IsDir() {
			if !walk(child, yield) {
				return false
			}
		}
	}
	return true
}

// Files returns an iterator over every file (non-directory) entry, in the
// same order as All.
func (t *Tree) Files() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for e := range t.All() {
			if !e.IsDir() {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Directories returns an iterator over every directory entry, in the same
// order as All.
func (t *Tree) Directories() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for e := range t.All() {
			if e.IsDir() {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Glob returns every file entry whose path matches pattern, using
// doublestar's "**" extension to path.Match.
func (t *Tree) Glob(pattern string) ([]*Entry, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &InvalidPathError{Reason: fmt.Sprintf("invalid glob pattern %q", pattern)}
	}
	var matches []*Entry
	for e := range t.Files() {
		ok, err := doublestar.Match(pattern, e.Metadata.Path)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}
