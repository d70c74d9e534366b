package zipvault

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// CompressionMethod identifies how an entry's bytes are stored in the
// archive. Only Store and Deflate are assigned a Decompressor by default;
// anything else surfaces as an UnsupportedArchiveError when the entry is
// opened, not when the archive is opened.
type CompressionMethod uint16

const (
	Store   CompressionMethod = 0
	Deflate CompressionMethod = 8
)

func (m CompressionMethod) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// FileMetadata describes one entry of an archive, synthesized from its
// central directory record (and, on read, cross-checked against its local
// file header). It never holds compressed bytes itself; Archive.Open reads
// the entry's bytes from header_offset using the metadata recorded here.
type FileMetadata struct {
	Path              string
	Size              uint64
	CompressedSize    uint64
	CompressionMethod CompressionMethod
	CRC32             uint32
	Encrypted         bool
	LastModified      time.Time
	HeaderOffset      uint64

	// UnixMode holds the entry's Unix permission and type bits, if it was
	// archived by a tool that recorded them (source host Unix or macOS).
	// No attempt is made to translate DOS/FAT attributes into Unix mode
	// bits for entries archived elsewhere; such entries leave this nil.
	UnixMode *uint16
}

func (m *FileMetadata) IsDir() bool {
	return len(m.Path) > 0 && m.Path[len(m.Path)-1] == '/'
}

func (m *FileMetadata) IsFile() bool { return !m.IsDir() }

// metadataFromCentralDirectoryEntry synthesizes FileMetadata from a parsed
// central directory record, decoding its path with dec and applying any
// Zip64 extra-field override.
func metadataFromCentralDirectoryEntry(e *centralDirectoryEntry, dec TextDecoder) (*FileMetadata, error) {
	path, err := decodePath(e.path, e.flags, dec)
	if err != nil {
		return nil, err
	}
	if e.diskNumber != 0 {
		return nil, &UnsupportedArchiveError{
			Reason: fmt.Sprintf("multi-disk archives are not supported: %s claims to be on disk %d", path, e.diskNumber),
		}
	}
	m := &FileMetadata{
		Path:              path,
		Size:              uint64(e.uncompressedSize),
		CompressedSize:    uint64(e.compressedSize),
		CompressionMethod: CompressionMethod(e.compressionMethod),
		CRC32:             e.crc32,
		Encrypted:         e.flags&flagEncrypted != 0,
		LastModified:      decodeMSDOSTime(e.lastModifiedTime, e.lastModifiedDate),
		HeaderOffset:      uint64(e.headerOffset),
		UnixMode:          unixMode(e.sourceVersion, e.externalFileAttributes),
	}
	if err := applyZip64ExtraField(m, e.extraField); err != nil {
		return nil, err
	}
	return m, nil
}

// Creator host identifiers from the "version made by" field's high byte
// (APPNOTE 4.4.2.1). Only the two that ever populate Unix-style permission
// bits in the high 16 bits of external_file_attributes matter here.
const (
	creatorUnix   = 3
	creatorMacOSX = 19
)

// unixMode extracts Unix permission and type bits from a central
// directory entry's external attributes, when its creator host recorded
// them there. Entries from any other host (FAT, NTFS, VFAT, ...) return
// nil rather than a guessed translation of their own attribute scheme.
func unixMode(sourceVersion uint16, externalAttrs uint32) *uint16 {
	switch sourceVersion >> 8 {
	case creatorUnix, creatorMacOSX:
		m := uint16(externalAttrs >> 16)
		return &m
	default:
		return nil
	}
}

// metadataFromLocalFileHeader synthesizes FileMetadata from a local file
// header, used to cross-check a central directory entry right before
// reading its bytes. headerOffset comes from the central directory, since
// the local header doesn't record its own archive position.
func metadataFromLocalFileHeader(h *localFileHeader, headerOffset uint64, dec TextDecoder) (*FileMetadata, error) {
	path, err := decodePath(h.path, h.flags, dec)
	if err != nil {
		return nil, err
	}
	m := &FileMetadata{
		Path:              path,
		Size:              uint64(h.uncompressedSize),
		CompressedSize:    uint64(h.compressedSize),
		CompressionMethod: CompressionMethod(h.compressionMethod),
		CRC32:             h.crc32,
		Encrypted:         h.flags&flagEncrypted != 0,
		LastModified:      decodeMSDOSTime(h.lastModifiedTime, h.lastModifiedDate),
		HeaderOffset:      headerOffset,
	}
	if err := applyZip64ExtraField(m, h.extraField); err != nil {
		return nil, err
	}
	return m, nil
}

// decodePath decodes a raw path according to the UTF-8 flag bit, falling
// back to dec (CP437 by default) when it is unset.
func decodePath(raw []byte, flags uint16, dec TextDecoder) (string, error) {
	if flags&flagUTF8 != 0 {
		if !utf8.Valid(raw) {
			return "", &EncodingError{Err: fmt.Errorf("path %q is not valid UTF-8 despite the UTF-8 flag", raw)}
		}
		return string(raw), nil
	}
	s, err := dec.Decode(raw)
	if err != nil {
		return "", &EncodingError{Err: err}
	}
	return s, nil
}

// decodeMSDOSTime decodes the 2-second-resolution DOS timestamp pair used
// throughout the ZIP format.
func decodeMSDOSTime(t, d uint16) time.Time {
	second := int(t&0x1f) * 2
	minute := int((t >> 5) & 0x3f)
	hour := int((t >> 11) & 0x1f)

	day := int(d & 0x1f)
	month := int((d >> 5) & 0xf)
	year := int((d>>9)&0x7f) + 1980

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// applyZip64ExtraField walks an entry's extra field and, for the Zip64
// record (tag 0x0001), overrides whichever of size/compressedSize/
// headerOffset were saturated at 0xffffffff in the fixed-width record. The
// override fields are present only for the ones that were saturated, and
// always in that fixed order; any leftover bytes after applying them
// indicate a disk-number field we don't support.
func applyZip64ExtraField(m *FileMetadata, extra []byte) error {
	for len(extra) > 0 {
		if len(extra) < 4 {
			return &InvalidArchiveError{Reason: "extra field record header truncated"}
		}
		c := cursor{b: extra}
		tag := c.uint16()
		fieldLen := int(c.uint16())
		if len(c.remaining()) < fieldLen {
			return &InvalidArchiveError{Reason: "extra field record overruns its container"}
		}
		field := c.remaining()[:fieldLen]
		rest := c.remaining()[fieldLen:]

		if tag == zip64ExtraID {
			fc := cursor{b: field}
			amountLeft := fieldLen
			if m.Size == uint32Max {
				if amountLeft < 8 {
					return &InvalidArchiveError{Reason: "Zip64 extra field missing uncompressed size override"}
				}
				m.Size = fc.uint64()
				amountLeft -= 8
			}
			if m.CompressedSize == uint32Max {
				if amountLeft < 8 {
					return &InvalidArchiveError{Reason: "Zip64 extra field missing compressed size override"}
				}
				m.CompressedSize = fc.uint64()
				amountLeft -= 8
			}
			if m.HeaderOffset == uint32Max {
				if amountLeft < 8 {
					return &InvalidArchiveError{Reason: "Zip64 extra field missing header offset override"}
				}
				m.HeaderOffset = fc.uint64()
				amountLeft -= 8
			}
			if amountLeft != 0 {
				return &InvalidArchiveError{Reason: "Zip64 extra field carries an unsupported disk number"}
			}
		}

		extra = rest
	}
	return nil
}
