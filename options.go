package zipvault

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"

	"golang.org/x/text/encoding/charmap"
)

// discardLogger is the Logger default: a slog.Logger whose handler writes
// every record to io.Discard.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Decompressor turns compressed bytes into a decompressed stream. src is
// positioned at the first compressed byte of an entry and reads at most
// compressedSize bytes from it; the returned io.ReadCloser yields exactly
// uncompressedSize decompressed bytes before returning io.EOF.
type Decompressor func(src io.Reader) (io.ReadCloser, error)

// TextDecoder turns a raw, non-UTF-8 path or comment byte string into text.
// The default implementation interprets bytes as CP437.
type TextDecoder interface {
	Decode(raw []byte) (string, error)
}

// cp437Decoder adapts golang.org/x/text/encoding/charmap's CodePage437
// table to TextDecoder. CodePage437 is the "control as symbols" variant:
// bytes 0x00-0x1f decode to the IBM PC graphic characters historically
// shown in that range rather than to C0 control codes, which matches how
// ZIP-producing tools on DOS and early Windows wrote paths.
type cp437Decoder struct{}

func (cp437Decoder) Decode(raw []byte) (string, error) {
	out, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("cp437: %w", err)
	}
	return string(out), nil
}

// identityDecompressor returns src unchanged, for Store entries.
func identityDecompressor(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// OpenOptions configures an Open call's pluggable capabilities. Nil fields
// are filled from DefaultOptions when the options are used, but
// StrictLocalHeaderCheck is taken as given, so a zero value turns that
// check off; call DefaultOptions and override individual fields, the way
// zipserve callers start from a Template and override individual fields.
type OpenOptions struct {
	// Decompressors maps a compression method to the function that turns
	// its compressed bytes into a decompressed stream. Methods absent from
	// this map surface as UnsupportedArchiveError when an entry using them
	// is opened.
	Decompressors map[CompressionMethod]Decompressor

	// NewHash constructs the running checksum used to verify decompressed
	// bytes against an entry's declared CRC-32.
	NewHash func() hash.Hash32

	// TextDecoder decodes paths and comments not flagged as UTF-8.
	TextDecoder TextDecoder

	// StrictLocalHeaderCheck, when true (the default), re-parses each
	// entry's local file header on Open and rejects the read if its path,
	// method, encrypted flag, sizes, or CRC-32 disagree with the central
	// directory's copy. Sizes and CRC-32 are not compared when the local
	// header defers them to a data descriptor (general purpose bit 3).
	// Setting it false skips that re-parse, trading a layer of tamper and
	// corruption detection for one fewer read of the archive per Open.
	StrictLocalHeaderCheck bool

	// Logger receives non-fatal warnings encountered while parsing the
	// archive itself (for example, a non-zero-length prefix before the
	// logical start of the ZIP). Hierarchy-level warnings encountered
	// while building a Tree go to NewTreeOptions.Logger instead. Defaults
	// to discarding everything.
	Logger *slog.Logger
}

// DefaultOptions returns the options Open uses when called with a nil
// *OpenOptions: Store and Deflate decompression, IEEE CRC-32, CP437 text
// decoding, strict local-header verification, and a discarding logger.
func DefaultOptions() *OpenOptions {
	return &OpenOptions{
		Decompressors: map[CompressionMethod]Decompressor{
			Store:   identityDecompressor,
			Deflate: deflateDecompressor,
		},
		NewHash:                func() hash.Hash32 { return crc32.NewIEEE() },
		TextDecoder:            cp437Decoder{},
		StrictLocalHeaderCheck: true,
		Logger:                 discardLogger,
	}
}

// withDefaults fills any nil field of o from DefaultOptions, tolerating a
// nil receiver. StrictLocalHeaderCheck is copied as given.
func (o *OpenOptions) withDefaults() *OpenOptions {
	d := DefaultOptions()
	if o == nil {
		return d
	}
	merged := *o
	if merged.Decompressors == nil {
		merged.Decompressors = d.Decompressors
	}
	if merged.NewHash == nil {
		merged.NewHash = d.NewHash
	}
	if merged.TextDecoder == nil {
		merged.TextDecoder = d.TextDecoder
	}
	if merged.Logger == nil {
		merged.Logger = d.Logger
	}
	return &merged
}
