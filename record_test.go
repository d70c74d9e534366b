package zipvault

import (
	"errors"
	"testing"
)

func TestFindEOCDR(t *testing.T) {
	data := buildFixture(t, []fixtureFile{{name: "a.txt", content: []byte("hello")}})

	pos, err := findEOCDR(data)
	if err != nil {
		t.Fatalf("findEOCDR: %v", err)
	}
	if string(data[pos:pos+4]) != "PK\x05\x06" {
		t.Fatalf("findEOCDR returned position %d, not at the EOCDR magic", pos)
	}
}

func TestFindEOCDR_LastOccurrenceWins(t *testing.T) {
	data := buildFixture(t, nil)
	// Append a second EOCDR magic after the real record, so the data
	// holds two occurrences.
	data = append(data, "PK\x05\x06junk"...)

	pos, err := findEOCDR(data)
	if err != nil {
		t.Fatalf("findEOCDR: %v", err)
	}
	// LastIndex must find the later (appended) occurrence.
	last := -1
	for i := 0; i+4 <= len(data); i++ {
		if string(data[i:i+4]) == "PK\x05\x06" {
			last = i
		}
	}
	if pos != last {
		t.Fatalf("findEOCDR returned %d, want the last occurrence %d", pos, last)
	}
}

func TestFindEOCDR_Missing(t *testing.T) {
	_, err := findEOCDR([]byte("not a zip file"))
	var invalidErr *InvalidArchiveError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("findEOCDR: got %v, want *InvalidArchiveError", err)
	}
}

func TestParseEOCDR_Truncated(t *testing.T) {
	data := append(eocdrMagic[:], 0, 0, 0)
	_, err := parseEOCDR(data)
	if err == nil {
		t.Fatal("parseEOCDR: expected error on truncated record")
	}
}

func TestParseZip64EOCDRLocator_WrongMagicReturnsNil(t *testing.T) {
	data := make([]byte, zip64EOCDRLocatorLen)
	copy(data, centralDirectoryMagic[:])
	if loc := parseZip64EOCDRLocator(data); loc != nil {
		t.Fatalf("parseZip64EOCDRLocator: got %+v, want nil", loc)
	}
}

func TestParseCentralDirectoryEntry_AdvancesPastItself(t *testing.T) {
	data := buildFixture(t, []fixtureFile{
		{name: "one.txt", content: []byte("1")},
		{name: "two.txt", content: []byte("2")},
	})

	eocdrPos, err := findEOCDR(data)
	if err != nil {
		t.Fatal(err)
	}
	eocdr, err := parseEOCDR(data[eocdrPos:])
	if err != nil {
		t.Fatal(err)
	}
	cd := data[eocdr.centralDirectoryOffset:]

	var names []string
	for i := uint16(0); i < eocdr.entries; i++ {
		e, err := parseCentralDirectoryEntry(&cd)
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		names = append(names, string(e.path))
	}
	if len(names) != 2 || names[0] != "one.txt" || names[1] != "two.txt" {
		t.Fatalf("got names %v", names)
	}
}
