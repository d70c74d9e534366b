package zipvault

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiReaderAt_JoinsPartsEndToEnd(t *testing.T) {
	var m MultiReaderAt
	m.Add(bytes.NewReader([]byte("abc")), 3)
	m.Add(bytes.NewReader([]byte("defgh")), 5)
	m.Add(bytes.NewReader([]byte("ij")), 2)

	require.Equal(t, int64(10), m.Size())

	got, err := io.ReadAll(io.NewSectionReader(&m, 0, m.Size()))
	require.NoError(t, err)
	require.Equal(t, "abcdefghij", string(got))
}

func TestMultiReaderAt_ReadAtCrossesPartBoundary(t *testing.T) {
	var m MultiReaderAt
	m.Add(bytes.NewReader([]byte("abc")), 3)
	m.Add(bytes.NewReader([]byte("defgh")), 5)

	buf := make([]byte, 4)
	n, err := m.ReadAt(buf, 1)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "bcde", string(buf))
}

func TestMultiReaderAt_ReadAtPastEndReturnsEOF(t *testing.T) {
	var m MultiReaderAt
	m.Add(bytes.NewReader([]byte("abc")), 3)

	buf := make([]byte, 4)
	_, err := m.ReadAt(buf, 0)
	require.ErrorIs(t, err, io.EOF)
}

func TestMultiReaderAt_ZeroSizePartsAreSkipped(t *testing.T) {
	var m MultiReaderAt
	m.Add(bytes.NewReader(nil), 0)
	m.Add(bytes.NewReader([]byte("x")), 1)

	require.Equal(t, int64(1), m.Size())
	buf := make([]byte, 1)
	n, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "x", string(buf[:n]))
}

func TestMaterializeBytes_ReadsAllSourceBytes(t *testing.T) {
	var m MultiReaderAt
	m.Add(bytes.NewReader([]byte("stub-")), 5)
	m.Add(bytes.NewReader([]byte("archive-body")), 12)

	got, err := MaterializeBytes(context.Background(), &m, m.Size())
	require.NoError(t, err)
	require.Equal(t, "stub-archive-body", string(got))
}

type shortReaderAt struct{}

func (shortReaderAt) ReadAtContext(_ context.Context, p []byte, off int64) (int, error) {
	return 0, io.EOF
}

func TestMaterializeBytes_ExhaustedSourceFails(t *testing.T) {
	_, err := MaterializeBytes(context.Background(), shortReaderAt{}, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exhausted")
}

func TestOpen_JoinedStubAndBody(t *testing.T) {
	data := buildFixture(t, []fixtureFile{{name: "hello.txt", content: []byte("hello, world")}})
	stub := []byte("MZ\x90\x00stub-executable-bytes")

	var m MultiReaderAt
	m.Add(bytes.NewReader(stub), int64(len(stub)))
	m.Add(bytes.NewReader(data), int64(len(data)))

	joined, err := MaterializeBytes(context.Background(), &m, m.Size())
	require.NoError(t, err)

	a, offset, err := OpenWithPrefix(joined, nil)
	require.NoError(t, err)
	require.Equal(t, len(stub), offset)
	require.Len(t, a.Entries(), 1)

	r, err := a.Open(a.Entries()[0])
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello, world", string(got))
}
