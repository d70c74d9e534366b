package zipvault

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
)

// buildZip64Fixture hand-assembles a minimal single-entry Zip64 archive:
// a local file header and central directory entry whose 32-bit size
// fields are saturated at 0xffffffff, with the true sizes carried in a
// Zip64 extra field, followed by a Zip64 End Of Central Directory Record,
// its locator, and a classic EOCDR. Stdlib archive/zip's writer only
// emits Zip64 records once a file genuinely crosses the 4 GiB boundary,
// which is impractical to materialize in a test, so this constructs the
// bytes directly instead.
func buildZip64Fixture(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	crc := crc32.ChecksumIEEE(content)
	size := uint64(len(content))

	var buf []byte

	localHeaderOffset := uint64(len(buf))

	// Local file header, with saturated size fields and a Zip64 extra
	// field carrying the real size and compressed size (header offset
	// is only ever overridden in the central directory copy).
	localExtra := zip64ExtraBytes(size, size, nil)
	buf = appendBytes(buf, localFileHeaderMagic[:])
	buf = appendU16(buf, zipVersion45)
	buf = appendU16(buf, 0) // flags
	buf = appendU16(buf, uint16(Store))
	buf = appendU16(buf, 0) // time
	buf = appendU16(buf, 0) // date
	buf = appendU32(buf, crc)
	buf = appendU32(buf, uint32Max)
	buf = appendU32(buf, uint32Max)
	buf = appendU16(buf, uint16(len(name)))
	buf = appendU16(buf, uint16(len(localExtra)))
	buf = appendBytes(buf, []byte(name))
	buf = appendBytes(buf, localExtra)
	buf = appendBytes(buf, content)

	centralDirectoryOffset := uint64(len(buf))

	centralExtra := zip64ExtraBytes(size, size, &localHeaderOffset)
	buf = appendBytes(buf, centralDirectoryMagic[:])
	buf = appendU16(buf, uint16(creatorUnix)<<8|zipVersion45) // version made by: Unix, 4.5
	buf = appendU16(buf, zipVersion45)                        // version needed to extract
	buf = appendU16(buf, 0) // flags
	buf = appendU16(buf, uint16(Store))
	buf = appendU16(buf, 0) // time
	buf = appendU16(buf, 0) // date
	buf = appendU32(buf, crc)
	buf = appendU32(buf, uint32Max)
	buf = appendU32(buf, uint32Max)
	buf = appendU16(buf, uint16(len(name)))
	buf = appendU16(buf, uint16(len(centralExtra)))
	buf = appendU16(buf, 0) // comment length
	buf = appendU16(buf, 0) // disk number
	buf = appendU16(buf, 0) // internal attrs
	buf = appendU32(buf, 0o100644<<16)
	buf = appendU32(buf, uint32Max) // header offset, overridden below
	buf = appendBytes(buf, []byte(name))
	buf = appendBytes(buf, centralExtra)

	centralDirectorySize := uint64(len(buf)) - centralDirectoryOffset

	zip64EOCDROffset := uint64(len(buf))
	buf = appendBytes(buf, zip64EOCDRMagic[:])
	buf = appendU64(buf, zip64EOCDRFixedLen-12)
	buf = appendU16(buf, zipVersion45)
	buf = appendU16(buf, zipVersion45)
	buf = appendU32(buf, 0) // disk number
	buf = appendU32(buf, 0) // disk with central directory
	buf = appendU64(buf, 1) // entries on this disk
	buf = appendU64(buf, 1) // entries
	buf = appendU64(buf, centralDirectorySize)
	buf = appendU64(buf, centralDirectoryOffset)

	buf = appendBytes(buf, zip64EOCDRLocatorMagic[:])
	buf = appendU32(buf, 0) // disk with zip64 EOCDR
	buf = appendU64(buf, zip64EOCDROffset)
	buf = appendU32(buf, 1) // total disks

	buf = appendBytes(buf, eocdrMagic[:])
	buf = appendU16(buf, 0) // disk number, must agree with the Zip64 locator
	buf = appendU16(buf, 0) // disk with central directory
	buf = appendU16(buf, 0xffff) // entries on this disk, superseded by the Zip64 record
	buf = appendU16(buf, 0xffff) // entries, superseded by the Zip64 record
	buf = appendU32(buf, uint32Max)
	buf = appendU32(buf, uint32Max)
	buf = appendU16(buf, 0) // comment length

	return buf
}

// zip64ExtraBytes builds a Zip64 extra field record carrying whichever of
// size/compressedSize/headerOffset the caller wants overridden, in the
// fixed order the format requires.
func zip64ExtraBytes(size, compressedSize uint64, headerOffset *uint64) []byte {
	var data []byte
	data = appendU64(data, size)
	data = appendU64(data, compressedSize)
	if headerOffset != nil {
		data = appendU64(data, *headerOffset)
	}
	var out []byte
	out = appendU16(out, zip64ExtraID)
	out = appendU16(out, uint16(len(data)))
	out = appendBytes(out, data)
	return out
}

func appendBytes(b, v []byte) []byte { return append(b, v...) }

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

const zipVersion45 = 45
