// Package zipcache wraps a zipvault.Archive with a bounded, read-through
// cache for small entries that get decompressed over and over — a
// directory-listing-adjacent README, a manifest, an icon — without paying
// the DEFLATE cost on every read.
package zipcache

import (
	"bytes"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"

	"github.com/zipvault/zipvault"
)

// chunkSize bounds how large a single cached chunk gets, so a cache entry
// for a large-ish file doesn't require one giant reallocating buffer.
const chunkSize = 32 * 1024

// key identifies one cached entry: an archive's content fingerprint plus
// the entry's path within it.
type key struct {
	fingerprint uint64
	path        string
}

func hashKey(k key) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(k.fingerprint >> (8 * i))
	}
	h.Write(buf[:])
	h.Write([]byte(k.path))
	return h.Sum64()
}

// Cache is a bounded read-through cache over an *zipvault.Archive's
// decompressed entry bytes. It is safe for concurrent use: mu serializes
// every access to the tinylfu cache.
type Cache struct {
	archive   *zipvault.Archive
	threshold int64
	mu        sync.Mutex
	entries   *tinylfu.T[key, [][]byte]
}

// New builds a Cache over archive. threshold is the largest uncompressed
// entry size eligible for caching; larger entries always stream directly
// from the archive. size bounds the number of cached entries (not bytes);
// tinylfu's admission policy decides what's worth keeping under pressure.
func New(archive *zipvault.Archive, size int, threshold int64) *Cache {
	return &Cache{
		archive:   archive,
		threshold: threshold,
		entries:   tinylfu.New[key, [][]byte](size, size*10, hashKey),
	}
}

// Open returns a stream for m's decompressed bytes. For entries at or
// below the cache's threshold, a cache hit returns a seekable stream built
// from previously-stored chunks; a miss decompresses once, fills the
// cache, and serves the freshly-read chunks the same way. Entries above
// the threshold bypass the cache entirely and stream directly from the
// archive, preserving independence from any other concurrent read.
func (c *Cache) Open(m *zipvault.FileMetadata) (io.ReadCloser, error) {
	if m.Size > uint64(c.threshold) {
		return c.archive.Open(m)
	}

	k := key{fingerprint: c.archive.Fingerprint(), path: m.Path}
	c.mu.Lock()
	cached, ok := c.entries.Get(k)
	c.mu.Unlock()
	if ok {
		return &chunkedSeeker{chunks: newChunkedSeekerParts(cached), size: sumLen(cached)}, nil
	}

	r, err := c.archive.Open(m)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	chunks, err := readChunks(r)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries.Add(k, chunks)
	c.mu.Unlock()
	return &chunkedSeeker{chunks: newChunkedSeekerParts(chunks), size: sumLen(chunks)}, nil
}

func readChunks(r io.Reader) ([][]byte, error) {
	var chunks [][]byte
	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunks = append(chunks, buf[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func sumLen(chunks [][]byte) int64 {
	var n int64
	for _, c := range chunks {
		n += int64(len(c))
	}
	return n
}

// chunkedSeeker presents a sequence of cached byte chunks as a single
// io.ReadSeeker, adapted from the teacher library's multi-part reader
// join: instead of seeking within one underlying stream, it seeks across
// however many fixed-size chunks back a cached entry.
type chunkedSeeker struct {
	chunks []io.ReaderAt
	size   int64
	offset int64
}

func newChunkedSeekerParts(chunks [][]byte) []io.ReaderAt {
	parts := make([]io.ReaderAt, len(chunks))
	for i, c := range chunks {
		parts[i] = bytes.NewReader(c)
	}
	return parts
}

func (s *chunkedSeeker) Read(p []byte) (int, error) {
	if s.offset >= s.size {
		return 0, io.EOF
	}
	idx := int(s.offset / chunkSize)
	within := s.offset % chunkSize
	chunk := s.chunks[idx]
	n, err := chunk.ReadAt(p, within)
	s.offset += int64(n)
	if err == io.EOF {
		err = nil
	}
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func (s *chunkedSeeker) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = s.offset + offset
	case io.SeekEnd:
		newOffset = s.size + offset
	}
	if newOffset < 0 || newOffset > s.size {
		return 0, io.ErrUnexpectedEOF
	}
	s.offset = newOffset
	return newOffset, nil
}

func (s *chunkedSeeker) Close() error { return nil }
