package zipvault

import (
	"testing"
	"time"
)

func TestDecodeMSDOSTime(t *testing.T) {
	// 2021-03-04 13:52:10, encoded per the DOS date/time bitfields.
	d := uint16((2021-1980)<<9 | 3<<5 | 4)
	tm := uint16(13<<11 | 52<<5 | 5) // seconds/2 = 5 -> 10 seconds

	got := decodeMSDOSTime(tm, d)
	want := time.Date(2021, time.March, 4, 13, 52, 10, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("decodeMSDOSTime() = %v, want %v", got, want)
	}
}

func TestDecodeMSDOSTime_ZeroIsZeroValue(t *testing.T) {
	got := decodeMSDOSTime(0, 0)
	if !got.IsZero() {
		t.Fatalf("decodeMSDOSTime(0, 0) = %v, want zero time", got)
	}
}

func TestApplyZip64ExtraField_OverridesSaturatedFields(t *testing.T) {
	m := &FileMetadata{
		Size:           uint32Max,
		CompressedSize: uint32Max,
		HeaderOffset:   uint32Max,
	}

	var buf []byte
	buf = appendU16(buf, zip64ExtraID)
	buf = appendU16(buf, 24) // 3 * 8 bytes
	buf = appendU64(buf, 5_000_000_000)
	buf = appendU64(buf, 4_000_000_000)
	buf = appendU64(buf, 123456)

	if err := applyZip64ExtraField(m, buf); err != nil {
		t.Fatalf("applyZip64ExtraField: %v", err)
	}
	if m.Size != 5_000_000_000 || m.CompressedSize != 4_000_000_000 || m.HeaderOffset != 123456 {
		t.Fatalf("applyZip64ExtraField: got %+v", m)
	}
}

func TestApplyZip64ExtraField_LeavesUnsaturatedFieldsAlone(t *testing.T) {
	m := &FileMetadata{Size: 10, CompressedSize: 5, HeaderOffset: 0}

	var buf []byte
	buf = appendU16(buf, zip64ExtraID)
	buf = appendU16(buf, 0)

	if err := applyZip64ExtraField(m, buf); err != nil {
		t.Fatalf("applyZip64ExtraField: %v", err)
	}
	if m.Size != 10 || m.CompressedSize != 5 || m.HeaderOffset != 0 {
		t.Fatalf("applyZip64ExtraField modified fields it shouldn't have: %+v", m)
	}
}

func TestApplyZip64ExtraField_UnrelatedTagIsSkipped(t *testing.T) {
	m := &FileMetadata{Size: 10}

	var buf []byte
	buf = appendU16(buf, 0x5455) // extended timestamp, not Zip64
	buf = appendU16(buf, 5)
	buf = append(buf, 0, 1, 2, 3, 4)

	if err := applyZip64ExtraField(m, buf); err != nil {
		t.Fatalf("applyZip64ExtraField: %v", err)
	}
	if m.Size != 10 {
		t.Fatalf("applyZip64ExtraField: unrelated tag changed Size to %d", m.Size)
	}
}

func TestUnixMode(t *testing.T) {
	cases := []struct {
		name           string
		sourceVersion  uint16
		externalAttrs  uint32
		wantNil        bool
		wantPermission uint16
	}{
		{name: "unix", sourceVersion: creatorUnix << 8, externalAttrs: 0o100644 << 16, wantPermission: 0o100644},
		{name: "macos", sourceVersion: creatorMacOSX << 8, externalAttrs: 0o040755 << 16, wantPermission: 0o040755},
		{name: "fat", sourceVersion: 0, externalAttrs: 0x10, wantNil: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := unixMode(c.sourceVersion, c.externalAttrs)
			if c.wantNil {
				if got != nil {
					t.Fatalf("unixMode() = %v, want nil", *got)
				}
				return
			}
			if got == nil || *got != c.wantPermission {
				t.Fatalf("unixMode() = %v, want %o", got, c.wantPermission)
			}
		})
	}
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}
