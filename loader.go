package zipvault

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// ContextReaderAt is like io.ReaderAt, but threads a context.Context
// through so a remote or rate-limited source can honor cancellation.
type ContextReaderAt interface {
	ReadAtContext(ctx context.Context, p []byte, off int64) (n int, err error)
}

// ignoreContext adapts a plain io.ReaderAt to ContextReaderAt by dropping
// the context.
type ignoreContext struct{ r io.ReaderAt }

func (a ignoreContext) ReadAtContext(_ context.Context, p []byte, off int64) (int, error) {
	return a.r.ReadAt(p, off)
}

func asContextReaderAt(r io.ReaderAt) ContextReaderAt {
	if v, ok := r.(ContextReaderAt); ok {
		return v
	}
	return ignoreContext{r: r}
}

type offsetAndPart struct {
	offset int64
	data   ContextReaderAt
}

// MultiReaderAt joins multiple byte-range sources end to end and presents
// them as one. It exists for callers whose archive bytes arrive in several
// pieces — a self-extracting stub fetched separately from the ZIP body, or
// chunks pulled from remote storage — so they can still hand Open or
// OpenWithPrefix (by way of MaterializeBytes) a single contiguous byte range.
type MultiReaderAt struct {
	parts []offsetAndPart
	size  int64
}

// Add appends a part of the given size. Parts must be added in the order
// they appear in the logical byte range; Add must not be called once
// ReadAtContext has been called.
func (m *MultiReaderAt) Add(data io.ReaderAt, size int64) {
	switch {
	case size < 0:
		panic(fmt.Sprintf("zipvault: MultiReaderAt.Add: negative size %d", size))
	case size == 0:
		return
	}
	m.parts = append(m.parts, offsetAndPart{offset: m.size, data: asContextReaderAt(data)})
	m.size += size
}

// AddContext is like Add, but for a source that already implements
// ContextReaderAt and should receive the caller's context on each read.
func (m *MultiReaderAt) AddContext(data ContextReaderAt, size int64) {
	switch {
	case size < 0:
		panic(fmt.Sprintf("zipvault: MultiReaderAt.AddContext: negative size %d", size))
	case size == 0:
		return
	}
	m.parts = append(m.parts, offsetAndPart{offset: m.size, data: data})
	m.size += size
}

// Size returns the total length of all parts added so far.
func (m *MultiReaderAt) Size() int64 { return m.size }

func (m *MultiReaderAt) endOffset(partIndex int) int64 {
	if partIndex == len(m.parts)-1 {
		return m.size
	}
	return m.parts[partIndex+1].offset
}

// ReadAtContext implements ContextReaderAt.
func (m *MultiReaderAt) ReadAtContext(ctx context.Context, p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off >= m.size {
		return 0, io.EOF
	}
	firstPart := sort.Search(len(m.parts), func(i int) bool {
		return m.endOffset(i) > off
	})
	for partIndex := firstPart; partIndex < len(m.parts) && len(p) > 0; partIndex++ {
		if partIndex > firstPart {
			off = m.parts[partIndex].offset
		}
		remaining := m.endOffset(partIndex) - off
		toRead := int64(len(p))
		if toRead > remaining {
			toRead = remaining
		}
		n2, err2 := m.parts[partIndex].data.ReadAtContext(ctx, p[:toRead], off-m.parts[partIndex].offset)
		n += n2
		if err2 != nil {
			return n, err2
		}
		p = p[n2:]
	}
	if len(p) > 0 {
		return n, io.EOF
	}
	return n, nil
}

// ReadAt implements io.ReaderAt using context.Background.
func (m *MultiReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return m.ReadAtContext(context.Background(), p, off)
}

// MaterializeBytes reads all of src (of the given total size) into memory
// and returns it, suitable for handing directly to Open or OpenWithPrefix.
// It is the bridge between a ranged/remote byte source (such as a
// MultiReaderAt) and this package's in-memory Archive.
func MaterializeBytes(ctx context.Context, src ContextReaderAt, size int64) ([]byte, error) {
	buf := make([]byte, size)
	off := int64(0)
	for off < size {
		n, err := src.ReadAtContext(ctx, buf[off:], off)
		off += int64(n)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n == 0 && err == io.EOF && off < size {
			return nil, fmt.Errorf("zipvault: MaterializeBytes: source exhausted at %d of %d bytes", off, size)
		}
	}
	return buf, nil
}
