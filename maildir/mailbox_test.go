package maildir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesSubdirs(t *testing.T) {
	root := t.TempDir()
	mb, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, dir := range []string{mb.TmpDir(), mb.NewDir(), mb.CurDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
	if mb.Root() != root {
		t.Errorf("Root() = %q, want %q", mb.Root(), root)
	}
}

func TestOpenIdempotent(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(root); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	marker := filepath.Join(root, "tmp", "keepme")
	if err := os.WriteFile(marker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if _, err := Open(root); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("marker file lost across repeat Open: %v", err)
	}
}
