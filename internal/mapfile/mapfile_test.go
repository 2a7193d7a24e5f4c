package mapfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	name := filepath.Join(t.TempDir(), "object")
	if err := os.WriteFile(name, []byte("\x7fELF mapped"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 11 {
		t.Fatalf("len %d", f.Len())
	}
	b := make([]byte, 6)
	if n, err := f.ReadAt(b, 5); n != 6 || err != nil || string(b) != "mapped" {
		t.Fatalf("read %d %q %v", n, b, err)
	}
	if n, err := f.ReadAt(b, 8); n != 3 || err != io.EOF {
		t.Fatalf("short read %d %v", n, err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err = f.ReadAt(b, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("read after close: %v", err)
	}

	if _, err = Open(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}
