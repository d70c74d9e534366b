// Binary record parsing for the ZIP format: little-endian decoding of the
// fixed-width record shapes defined by APPNOTE-6.3.6, plus the magic-number
// searches used to locate them.
//
// Adapted from zipserve's writeBuf (struct.go, writer.go): the same
// slice-and-advance trick that wrote fields there now reads them.
package zipvault

import (
	"bytes"
	"encoding/binary"
)

// Magic numbers, first four bytes of each record.
var (
	eocdrMagic           = [4]byte{'P', 'K', 5, 6}
	zip64EOCDRMagic       = [4]byte{'P', 'K', 6, 6}
	zip64EOCDRLocatorMagic = [4]byte{'P', 'K', 6, 7}
	centralDirectoryMagic = [4]byte{'P', 'K', 1, 2}
	localFileHeaderMagic  = [4]byte{'P', 'K', 3, 4}
)

const (
	eocdrFixedLen           = 22
	zip64EOCDRLocatorLen    = 20
	zip64EOCDRFixedLen      = 56
	centralDirectoryFixedLen = 46
	localFileHeaderFixedLen = 30

	uint16Max = 1<<16 - 1
	uint32Max = 1<<32 - 1

	zip64ExtraID = 0x0001

	flagEncrypted = 1 << 0
	flagUTF8      = 1 << 11
)

// cursor reads little-endian fields off the front of a byte slice,
// shrinking it as it goes. It is the mirror image of zipserve's writeBuf.
type cursor struct {
	b []byte
}

func (c *cursor) remaining() []byte { return c.b }

func (c *cursor) bytes(n int) []byte {
	v := c.b[:n]
	c.b = c.b[n:]
	return v
}

func (c *cursor) uint8() uint8 {
	v := c.b[0]
	c.b = c.b[1:]
	return v
}

func (c *cursor) uint16() uint16 {
	v := binary.LittleEndian.Uint16(c.b)
	c.b = c.b[2:]
	return v
}

func (c *cursor) uint32() uint32 {
	v := binary.LittleEndian.Uint32(c.b)
	c.b = c.b[4:]
	return v
}

func (c *cursor) uint64() uint64 {
	v := binary.LittleEndian.Uint64(c.b)
	c.b = c.b[8:]
	return v
}

// findEOCDR searches backward through data for the End Of Central Directory
// Record's magic number. The last occurrence wins, since entry data earlier
// in the file could coincidentally contain the magic; a magic number inside
// the EOCDR's own trailing comment would likewise be taken as the record.
func findEOCDR(data []byte) (int, error) {
	i := bytes.LastIndex(data, eocdrMagic[:])
	if i < 0 {
		return 0, &InvalidArchiveError{Reason: "no End Of Central Directory Record found"}
	}
	return i, nil
}

// findZip64EOCDR searches forward through data (which should start at the
// Zip64 EOCDR's nominal offset) for its first occurrence.
func findZip64EOCDR(data []byte) (int, error) {
	i := bytes.Index(data, zip64EOCDRMagic[:])
	if i < 0 {
		return 0, &InvalidArchiveError{Reason: "no Zip64 End Of Central Directory Record found"}
	}
	return i, nil
}

// endOfCentralDirectory holds the parsed contents of the End Of Central
// Directory Record (APPNOTE 4.3.16).
type endOfCentralDirectory struct {
	diskNumber                uint16
	diskWithCentralDirectory  uint16
	entriesOnThisDisk         uint16
	entries                   uint16
	centralDirectorySize      uint32
	centralDirectoryOffset    uint32
	comment                   []byte
}

func parseEOCDR(data []byte) (*endOfCentralDirectory, error) {
	if len(data) < eocdrFixedLen || !bytes.Equal(data[:4], eocdrMagic[:]) {
		return nil, &InvalidArchiveError{Reason: "End Of Central Directory Record has wrong magic"}
	}
	c := cursor{b: data[4:]}
	e := &endOfCentralDirectory{
		diskNumber:               c.uint16(),
		diskWithCentralDirectory: c.uint16(),
		entriesOnThisDisk:        c.uint16(),
		entries:                  c.uint16(),
		centralDirectorySize:     c.uint32(),
		centralDirectoryOffset:   c.uint32(),
	}
	commentLen := int(c.uint16())
	if len(c.remaining()) < commentLen {
		return nil, &InvalidArchiveError{Reason: "End Of Central Directory Record comment length overruns archive"}
	}
	e.comment = c.bytes(commentLen)
	return e, nil
}

// zip64EOCDRLocator holds the parsed contents of the Zip64 End Of Central
// Directory Locator (APPNOTE 4.3.15), a fixed 20-byte record that
// immediately precedes the EOCDR on Zip64 archives.
type zip64EOCDRLocator struct {
	diskWithCentralDirectory uint32
	zip64EOCDROffset         uint64
	disks                    uint32
}

// parseZip64EOCDRLocator returns nil (not an error) when data doesn't begin
// with the locator's magic: a classic (non-Zip64) archive has something
// else there, most commonly the tail of the last central directory entry.
func parseZip64EOCDRLocator(data []byte) *zip64EOCDRLocator {
	if len(data) < zip64EOCDRLocatorLen || !bytes.Equal(data[:4], zip64EOCDRLocatorMagic[:]) {
		return nil
	}
	c := cursor{b: data[4:]}
	return &zip64EOCDRLocator{
		diskWithCentralDirectory: c.uint32(),
		zip64EOCDROffset:         c.uint64(),
		disks:                    c.uint32(),
	}
}

// zip64EndOfCentralDirectory holds the parsed contents of the Zip64 End Of
// Central Directory Record (APPNOTE 4.3.14): a 56-byte fixed part plus
// optional extensible data whose length is self-described.
type zip64EndOfCentralDirectory struct {
	sourceVersion            uint16
	minimumExtractVersion    uint16
	diskNumber               uint32
	diskWithCentralDirectory uint32
	entriesOnThisDisk        uint64
	entries                  uint64
	centralDirectorySize     uint64
	centralDirectoryOffset   uint64
	extensibleData           []byte
}

func parseZip64EOCDR(data []byte) (*zip64EndOfCentralDirectory, error) {
	if len(data) < zip64EOCDRFixedLen || !bytes.Equal(data[:4], zip64EOCDRMagic[:]) {
		return nil, &InvalidArchiveError{Reason: "Zip64 End Of Central Directory Record has wrong magic"}
	}
	c := cursor{b: data[4:]}
	recordSize := c.uint64()
	e := &zip64EndOfCentralDirectory{
		sourceVersion:            c.uint16(),
		minimumExtractVersion:    c.uint16(),
		diskNumber:               c.uint32(),
		diskWithCentralDirectory: c.uint32(),
		entriesOnThisDisk:        c.uint64(),
		entries:                  c.uint64(),
		centralDirectorySize:     c.uint64(),
		centralDirectoryOffset:   c.uint64(),
	}

	// 4.3.14.1: "size of zip64 end of central directory record" SHOULD be
	// the size of the remaining record and SHOULD NOT include the leading
	// 12 bytes (the signature and the size field itself).
	// extensibleDataLength = recordSize + 12 - fixedSize
	if recordSize+12 < zip64EOCDRFixedLen {
		return nil, &InvalidArchiveError{Reason: "Zip64 End Of Central Directory Record declares an impossible size"}
	}
	extensibleDataLength := recordSize + 12 - zip64EOCDRFixedLen
	if uint64(len(c.remaining())) != extensibleDataLength {
		return nil, &InvalidArchiveError{Reason: "Zip64 End Of Central Directory Record extensible data length mismatch"}
	}
	e.extensibleData = c.remaining()
	return e, nil
}

// centralDirectoryEntry holds the parsed contents of one Central Directory
// File Header (APPNOTE 4.3.12).
type centralDirectoryEntry struct {
	sourceVersion           uint16
	minimumExtractVersion   uint16
	flags                   uint16
	compressionMethod       uint16
	lastModifiedTime        uint16
	lastModifiedDate        uint16
	crc32                   uint32
	compressedSize          uint32
	uncompressedSize        uint32
	diskNumber              uint16
	internalFileAttributes  uint16
	externalFileAttributes  uint32
	headerOffset            uint32
	path                    []byte
	extraField              []byte
	comment                 []byte
}

// parseCentralDirectoryEntry parses one record and advances *data past it,
// so callers can loop until the declared entry count is exhausted.
func parseCentralDirectoryEntry(data *[]byte) (*centralDirectoryEntry, error) {
	b := *data
	if len(b) < 4 || !bytes.Equal(b[:4], centralDirectoryMagic[:]) {
		return nil, &InvalidArchiveError{Reason: "central directory entry has wrong magic"}
	}
	if len(b) < centralDirectoryFixedLen {
		return nil, &InvalidArchiveError{Reason: "central directory entry truncated"}
	}
	c := cursor{b: b[4:]}
	e := &centralDirectoryEntry{
		sourceVersion:         c.uint16(),
		minimumExtractVersion: c.uint16(),
		flags:                 c.uint16(),
		compressionMethod:     c.uint16(),
		lastModifiedTime:      c.uint16(),
		lastModifiedDate:      c.uint16(),
		crc32:                 c.uint32(),
		compressedSize:        c.uint32(),
		uncompressedSize:      c.uint32(),
	}
	pathLen := int(c.uint16())
	extraLen := int(c.uint16())
	commentLen := int(c.uint16())
	e.diskNumber = c.uint16()
	e.internalFileAttributes = c.uint16()
	e.externalFileAttributes = c.uint32()
	e.headerOffset = c.uint32()

	tail := c.remaining()
	if len(tail) < pathLen+extraLen+commentLen {
		return nil, &InvalidArchiveError{Reason: "central directory entry's variable-length fields overrun archive"}
	}
	e.path, tail = tail[:pathLen], tail[pathLen:]
	e.extraField, tail = tail[:extraLen], tail[extraLen:]
	e.comment, tail = tail[:commentLen], tail[commentLen:]

	*data = tail
	return e, nil
}

// localFileHeader holds the parsed contents of one Local File Header
// (APPNOTE 4.3.7), which immediately precedes an entry's compressed bytes.
type localFileHeader struct {
	minimumExtractVersion uint16
	flags                 uint16
	compressionMethod     uint16
	lastModifiedTime      uint16
	lastModifiedDate      uint16
	crc32                 uint32
	compressedSize        uint32
	uncompressedSize      uint32
	path                  []byte
	extraField            []byte
}

// parseLocalFileHeader parses the header at the front of data and returns
// it along with the number of bytes it occupied, so the caller can slice
// past it to reach the compressed payload.
func parseLocalFileHeader(data []byte) (*localFileHeader, int, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], localFileHeaderMagic[:]) {
		return nil, 0, &InvalidArchiveError{Reason: "local file header has wrong magic"}
	}
	if len(data) < localFileHeaderFixedLen {
		return nil, 0, &InvalidArchiveError{Reason: "local file header truncated"}
	}
	c := cursor{b: data[4:]}
	h := &localFileHeader{
		minimumExtractVersion: c.uint16(),
		flags:                 c.uint16(),
		compressionMethod:     c.uint16(),
		lastModifiedTime:      c.uint16(),
		lastModifiedDate:      c.uint16(),
		crc32:                 c.uint32(),
		compressedSize:        c.uint32(),
		uncompressedSize:      c.uint32(),
	}
	pathLen := int(c.uint16())
	extraLen := int(c.uint16())

	tail := c.remaining()
	if len(tail) < pathLen+extraLen {
		return nil, 0, &InvalidArchiveError{Reason: "local file header's variable-length fields overrun archive"}
	}
	h.path, tail = tail[:pathLen], tail[pathLen:]
	h.extraField, tail = tail[:extraLen], tail[extraLen:]

	consumed := len(data) - len(tail)
	return h, consumed, nil
}
