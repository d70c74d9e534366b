package zipvault

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Archive is a parsed, read-only view of a ZIP container held entirely in
// memory. Once constructed it is immutable and safe for concurrent use:
// any number of goroutines may call Open on it at once, each getting back
// an independent decompression stream.
type Archive struct {
	data             []byte
	entries          []*FileMetadata
	centralDirectory []byte
	opts             *OpenOptions
}

// Entries returns every entry found in the archive's central directory, in
// the order they appear there. No effort is made to deduplicate paths or
// otherwise validate the hierarchy they describe; build a Tree for that.
func (a *Archive) Entries() []*FileMetadata { return a.entries }

// Open parses data as a ZIP archive with no prepended bytes, using default
// options. It is equivalent to OpenWithOptions(data, nil).
func Open(data []byte) (*Archive, error) {
	return OpenWithOptions(data, nil)
}

// OpenWithOptions parses data as a ZIP archive with no prepended bytes. If
// opts is nil, DefaultOptions is used.
func OpenWithOptions(data []byte, opts *OpenOptions) (*Archive, error) {
	a, offset, err := openWithPrefix(data, opts)
	if err != nil {
		return nil, err
	}
	if offset != 0 {
		return nil, &PrependedWithUnknownBytesError{N: offset}
	}
	return a, nil
}

// OpenWithPrefix parses data as a ZIP archive that may carry an arbitrary
// byte prefix before the logical start of the archive (for example, the
// stub executable of a self-extracting archive). It returns the parsed
// archive and the length of that prefix.
func OpenWithPrefix(data []byte, opts *OpenOptions) (*Archive, int, error) {
	return openWithPrefix(data, opts)
}

func openWithPrefix(data []byte, opts *OpenOptions) (*Archive, int, error) {
	o := opts.withDefaults()

	eocdrPos, err := findEOCDR(data)
	if err != nil {
		return nil, 0, err
	}
	eocdr, err := parseEOCDR(data[eocdrPos:])
	if err != nil {
		return nil, 0, err
	}
	if eocdr.diskNumber != eocdr.diskWithCentralDirectory {
		return nil, 0, &UnsupportedArchiveError{Reason: fmt.Sprintf(
			"multi-disk archives are not supported: disk %d != disk with central directory %d",
			eocdr.diskNumber, eocdr.diskWithCentralDirectory)}
	}
	if eocdr.entries != eocdr.entriesOnThisDisk {
		return nil, 0, &UnsupportedArchiveError{Reason: fmt.Sprintf(
			"multi-disk archives are not supported: %d entries != %d entries on this disk",
			eocdr.entries, eocdr.entriesOnThisDisk)}
	}

	var (
		archiveOffset                 int
		nominalCentralDirectoryOffset int
		entryCount                    uint64
	)

	locatorPos := eocdrPos - zip64EOCDRLocatorLen
	var locator *zip64EOCDRLocator
	if locatorPos >= 0 {
		locator = parseZip64EOCDRLocator(data[locatorPos:])
	}

	if locator != nil {
		if uint32(eocdr.diskNumber) != locator.diskWithCentralDirectory {
			return nil, 0, &UnsupportedArchiveError{Reason: fmt.Sprintf(
				"multi-disk archives are not supported: disk %d != disk with Zip64 central directory %d",
				eocdr.diskNumber, locator.diskWithCentralDirectory)}
		}
		if locator.disks != 1 {
			return nil, 0, &UnsupportedArchiveError{Reason: fmt.Sprintf(
				"multi-disk archives are not supported: Zip64 EOCDR locator reports %d disks", locator.disks)}
		}

		searchStart := int(locator.zip64EOCDROffset)
		if searchStart < 0 || searchStart > locatorPos {
			return nil, 0, &InvalidArchiveError{Reason: "Zip64 End Of Central Directory Record offset is out of range"}
		}
		searchSpace := data[searchStart:locatorPos]

		zip64Pos, err := findZip64EOCDR(searchSpace)
		if err != nil {
			return nil, 0, err
		}
		// The search started at the locator's declared offset, so the
		// position found within that window is the prefix length.
		archiveOffset = zip64Pos
		zip64EOCDR, err := parseZip64EOCDR(searchSpace[zip64Pos:])
		if err != nil {
			return nil, 0, err
		}

		nominalCentralDirectoryOffset = int(zip64EOCDR.centralDirectoryOffset)
		entryCount = zip64EOCDR.entries
	} else {
		archiveOffset, nominalCentralDirectoryOffset, entryCount, err = classicOffsets(eocdr, eocdrPos)
		if err != nil {
			return nil, 0, err
		}
	}

	if archiveOffset < 0 || archiveOffset > len(data) {
		return nil, 0, &InvalidArchiveError{Reason: "computed archive offset is out of range"}
	}
	if archiveOffset != 0 {
		o.Logger.Warn("archive has a prepended prefix", "bytes", archiveOffset)
	}
	body := data[archiveOffset:]

	if nominalCentralDirectoryOffset < 0 || nominalCentralDirectoryOffset > len(body) {
		return nil, 0, &InvalidArchiveError{Reason: "central directory offset is out of range"}
	}
	centralDirectory := body[nominalCentralDirectoryOffset:]
	cdStart := centralDirectory

	entries := make([]*FileMetadata, 0, entryCount)
	for i := uint64(0); i < entryCount; i++ {
		cde, err := parseCentralDirectoryEntry(&centralDirectory)
		if err != nil {
			return nil, 0, err
		}
		m, err := metadataFromCentralDirectoryEntry(cde, o.TextDecoder)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, m)
	}

	a := &Archive{
		data:             body,
		entries:          entries,
		centralDirectory: cdStart[:len(cdStart)-len(centralDirectory)],
		opts:             o,
	}
	return a, archiveOffset, nil
}

// classicOffsets computes the archive offset and nominal central directory
// position for an archive without a Zip64 locator: the offset is the
// difference between where the central directory actually sits (just
// before the EOCDR, by its declared size) and where the EOCDR claims it
// sits.
func classicOffsets(eocdr *endOfCentralDirectory, eocdrPos int) (archiveOffset, nominalOffset int, entryCount uint64, err error) {
	actualCDPos := eocdrPos - int(eocdr.centralDirectorySize)
	nominalOffset = int(eocdr.centralDirectoryOffset)
	archiveOffset = actualCDPos - nominalOffset
	if actualCDPos < 0 || archiveOffset < 0 {
		return 0, 0, 0, &InvalidArchiveError{Reason: "invalid central directory size or offset"}
	}
	return archiveOffset, nominalOffset, uint64(eocdr.entries), nil
}

// EntryReader is the decompressing, checksum-verifying stream returned by
// Archive.Open.
type EntryReader struct {
	src io.ReadCloser
}

func (r *EntryReader) Read(p []byte) (int, error) { return r.src.Read(p) }
func (r *EntryReader) Close() error                { return r.src.Close() }

// Open returns a decompressing, checksum-verifying stream for one entry.
// Multiple entries may be opened and read concurrently; each call returns
// an independent reader with no shared mutable state.
func (a *Archive) Open(m *FileMetadata) (*EntryReader, error) {
	if m.HeaderOffset > uint64(len(a.data)) {
		return nil, &InvalidArchiveError{Reason: fmt.Sprintf("%s's local header offset is out of range", m.Path)}
	}
	fileSlice := a.data[m.HeaderOffset:]
	header, consumed, err := parseLocalFileHeader(fileSlice)
	if err != nil {
		return nil, err
	}

	if a.opts.StrictLocalHeaderCheck {
		localMeta, err := metadataFromLocalFileHeader(header, m.HeaderOffset, a.opts.TextDecoder)
		if err != nil {
			return nil, err
		}
		if header.flags&(1<<3) != 0 {
			// General purpose bit 3: CRC-32 and sizes follow the compressed
			// bytes in a data descriptor and the local header holds zeros
			// for them, so only the central directory's values count.
			localMeta.CRC32, localMeta.Size, localMeta.CompressedSize = m.CRC32, m.Size, m.CompressedSize
		}
		if err := crossCheck(m, localMeta); err != nil {
			return nil, err
		}
	}

	if m.Encrypted {
		return nil, &UnsupportedArchiveError{Reason: fmt.Sprintf("%s is encrypted", m.Path)}
	}

	body := fileSlice[consumed:]
	if uint64(len(body)) < m.CompressedSize {
		return nil, &InvalidArchiveError{Reason: fmt.Sprintf("%s's compressed bytes are truncated", m.Path)}
	}

	rc, err := openEntryReader(m, bytes.NewReader(body), a.opts)
	if err != nil {
		return nil, err
	}
	return &EntryReader{src: rc}, nil
}

// crossCheck compares a central directory entry's metadata against the
// local file header read immediately before its bytes, catching the case
// of a corrupted or deliberately mismatched archive. Path is compared as
// the decoded string, not the raw path bytes, since the two records may
// legitimately use different encodings (flags, not content) to arrive at
// the same name.
func crossCheck(cde, local *FileMetadata) error {
	switch {
	case cde.Path != local.Path:
		return &InvalidArchiveError{Reason: fmt.Sprintf(
			"%s: central directory path disagrees with local header path %q", cde.Path, local.Path)}
	case cde.CompressionMethod != local.CompressionMethod:
		return &InvalidArchiveError{Reason: fmt.Sprintf(
			"%s: central directory compression method %s disagrees with local header %s",
			cde.Path, cde.CompressionMethod, local.CompressionMethod)}
	case cde.CRC32 != local.CRC32:
		return &InvalidArchiveError{Reason: fmt.Sprintf(
			"%s: central directory CRC-32 disagrees with local header", cde.Path)}
	case cde.Size != local.Size:
		return &InvalidArchiveError{Reason: fmt.Sprintf(
			"%s: central directory uncompressed size disagrees with local header", cde.Path)}
	case cde.CompressedSize != local.CompressedSize:
		return &InvalidArchiveError{Reason: fmt.Sprintf(
			"%s: central directory compressed size disagrees with local header", cde.Path)}
	case cde.Encrypted != local.Encrypted:
		return &InvalidArchiveError{Reason: fmt.Sprintf(
			"%s: central directory encrypted flag disagrees with local header", cde.Path)}
	}
	return nil
}

// Fingerprint returns a stable, non-cryptographic hash of the archive's raw
// central directory bytes, suitable as a cache key for the parsed archive
// without re-parsing it.
func (a *Archive) Fingerprint() uint64 {
	return xxhash.Sum64(a.centralDirectory)
}
