package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zipvault/zipvault"
)

func buildExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive.zip> <destination>",
		Short: "Decompress every file in the archive into destination",
		Args:  cobra.ExactArgs(2),
		RunE:  runExtract,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	archivePath, dest := args[0], args[1]

	a, err := openArchive(archivePath)
	if err != nil {
		return err
	}
	tree, err := zipvault.NewTreeWithOptions(a.Entries(), &zipvault.NewTreeOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("zipvault: build tree: %w", err)
	}

	for dir := range tree.Directories() {
		if err := os.MkdirAll(filepath.Join(dest, dir.Metadata.Path), 0o755); err != nil {
			return err
		}
	}

	sink := &dirSink{root: dest}
	start := cmd.Context()
	if start == nil {
		start = context.Background()
	}
	if err := zipvault.ExtractAll(start, a, tree, sink, zipvault.ExtractAllOptions{Workers: workers}); err != nil {
		return fmt.Errorf("zipvault: extract: %w", err)
	}
	logger.Info("extraction complete", "archive", archivePath, "destination", dest)
	return nil
}

// dirSink implements zipvault.Sink by creating files under a root
// directory, rejecting any entry path that would escape it.
type dirSink struct {
	root string
}

func (s *dirSink) Create(path string) (io.WriteCloser, error) {
	full := filepath.Join(s.root, path)
	if !within(s.root, full) {
		return nil, fmt.Errorf("zipvault: entry %q escapes destination directory", path)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
