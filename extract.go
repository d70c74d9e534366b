package zipvault

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// Sink receives the decompressed bytes of one entry during ExtractAll.
// Implementations must be safe for concurrent use across different paths;
// ExtractAll never calls Sink twice concurrently for the same path.
type Sink interface {
	Create(path string) (io.WriteCloser, error)
}

// ExtractAllOptions configures ExtractAll.
type ExtractAllOptions struct {
	// Workers bounds the number of entries decompressed concurrently.
	// Defaults to 4 when zero or negative.
	Workers int
}

// ExtractAll decompresses every file entry in tree (directories are
// skipped; a caller who needs them created should do so from
// Tree.Directories separately) and writes it to dst, spreading the work
// across a bounded pool of goroutines. It demonstrates the concurrency
// model Archive guarantees: each entry's Open call is independent, so
// multiple entries may be in flight against the same Archive at once.
func ExtractAll(ctx context.Context, a *Archive, tree *Tree, dst Sink, opts ExtractAllOptions) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for entry := range tree.Files() {
		m := entry.Metadata
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return extractOne(a, m, dst)
		})
	}

	return g.Wait()
}

func extractOne(a *Archive, m *FileMetadata, dst Sink) error {
	r, err := a.Open(m)
	if err != nil {
		return fmt.Errorf("zipvault: open %s: %w", m.Path, err)
	}
	defer r.Close()

	w, err := dst.Create(m.Path)
	if err != nil {
		return fmt.Errorf("zipvault: create %s: %w", m.Path, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("zipvault: extract %s: %w", m.Path, err)
	}
	return w.Close()
}
