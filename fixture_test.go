package zipvault

import (
	"archive/zip"
	"bytes"
	"testing"
)

// fixtureFile describes one entry to write into a test archive.
type fixtureFile struct {
	name    string
	content []byte
	method  uint16
}

// buildFixture writes a ZIP archive containing files using stdlib
// archive/zip's writer, the same cross-validation-in-reverse approach the
// teacher library's own zip_test.go uses (there, to check its writer
// against stdlib's reader; here, to check this reader against stdlib's
// writer).
func buildFixture(t *testing.T, files []fixtureFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:   f.name,
			Method: f.method,
		})
		if err != nil {
			t.Fatalf("CreateHeader(%s): %v", f.name, err)
		}
		if _, err := fw.Write(f.content); err != nil {
			t.Fatalf("Write(%s): %v", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}
