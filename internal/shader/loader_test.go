package shader

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/rhi"
)

func TestLoaderReusesModules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.spv")
	if err := os.WriteFile(path, spirvBytes(binary.LittleEndian, 8), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(DefaultLoaderCapacity)
	first, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if first != second {
		t.Error("second Load decoded the file again")
	}
	if st := l.Stats(); st.Hits != 1 || st.Len != 1 {
		t.Errorf("Stats() = %+v, want 1 hit and 1 entry", st)
	}

	// A rewritten file is decoded again.
	if err := os.WriteFile(path, spirvBytes(binary.LittleEndian, 9, 0), 0o600); err != nil {
		t.Fatal(err)
	}
	third, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load() after rewrite error = %v", err)
	}
	if third == first || third.Header.Bound != 9 {
		t.Errorf("Load() after rewrite returned stale module, bound %d", third.Header.Bound)
	}

	l.Purge()
	if l.Stats().Len != 0 {
		t.Error("Purge left modules behind")
	}
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(4)

	if _, err := l.Load(filepath.Join(dir, "missing.spv")); !errors.Is(err, rhi.ErrIO) {
		t.Errorf("missing file error = %v, want rhi.ErrIO", err)
	}

	bad := filepath.Join(dir, "bad.spv")
	if err := os.WriteFile(bad, []byte{1, 2, 3, 4}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(bad); !errors.Is(err, ErrInvalidSPIRV) {
		t.Errorf("bad file error = %v, want ErrInvalidSPIRV", err)
	}
	if l.Stats().Len != 0 {
		t.Error("failed load was cached")
	}
}
