package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zipvault/zipvault"
)

var listGlob string

func buildListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <archive.zip>",
		Short: "Print the archive's directory tree",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}
	cmd.Flags().StringVar(&listGlob, "glob", "", "Only list paths matching this doublestar pattern")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openArchive(args[0])
	if err != nil {
		return err
	}

	tree, err := zipvault.NewTreeWithOptions(a.Entries(), &zipvault.NewTreeOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("zipvault: build tree: %w", err)
	}

	if listGlob != "" {
		matches, err := tree.Glob(listGlob)
		if err != nil {
			return err
		}
		for _, e := range matches {
			printEntry(e.Metadata)
		}
		return nil
	}

	for e := range tree.All() {
		printEntry(e.Metadata)
	}
	return nil
}

func printEntry(m *zipvault.FileMetadata) {
	kind := "f"
	if m.IsDir() {
		kind = "d"
	}
	fmt.Fprintf(os.Stdout, "%s %10d %s %s\n", kind, m.Size, m.LastModified.Format("2006-01-02 15:04:05"), m.Path)
}

func openArchive(path string) (*zipvault.Archive, error) {
	data, err := loadArchiveBytes(path)
	if err != nil {
		return nil, err
	}
	opts := zipvault.DefaultOptions()
	opts.StrictLocalHeaderCheck = strict
	opts.Logger = logger
	a, _, err := zipvault.OpenWithPrefix(data, opts)
	if err != nil {
		return nil, fmt.Errorf("zipvault: open %s: %w", path, err)
	}
	return a, nil
}

// loadArchiveBytes reads path into memory, joining it with --prefix-file's
// bytes first if one was given: some self-extracting archives ship their
// stub executable as a separate file from their ZIP body, and MultiReaderAt
// lets the two be materialized as the single contiguous range Open wants
// without a temporary file concatenating them on disk.
func loadArchiveBytes(path string) ([]byte, error) {
	if prefixFile == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("zipvault: read %s: %w", path, err)
		}
		return data, nil
	}

	stub, err := os.Open(prefixFile)
	if err != nil {
		return nil, fmt.Errorf("zipvault: read %s: %w", prefixFile, err)
	}
	defer stub.Close()
	stubInfo, err := stub.Stat()
	if err != nil {
		return nil, fmt.Errorf("zipvault: stat %s: %w", prefixFile, err)
	}

	body, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zipvault: read %s: %w", path, err)
	}
	defer body.Close()
	bodyInfo, err := body.Stat()
	if err != nil {
		return nil, fmt.Errorf("zipvault: stat %s: %w", path, err)
	}

	var joined zipvault.MultiReaderAt
	joined.Add(stub, stubInfo.Size())
	joined.Add(body, bodyInfo.Size())

	data, err := zipvault.MaterializeBytes(context.Background(), &joined, joined.Size())
	if err != nil {
		return nil, fmt.Errorf("zipvault: join %s and %s: %w", prefixFile, path, err)
	}
	return data, nil
}
