package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRunLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ksymmap.json")
	data := `{"main.rs":[{"addr":4198400,"line":12},{"addr":4198408,"line":13}],"pci.rs":[{"addr":4202496,"line":8}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runLookup(&out, &lookupParams{mapPath: path, addrs: []string{"0x401000", "4198412", "0x402abc", "0x1000"}})
	if err != nil {
		t.Fatalf("runLookup: %v", err)
	}
	want := "0x401000 main.rs:12\n0x40100c main.rs:13\n0x402abc pci.rs:8\n0x1000 ???\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n got: %q\nwant: %q", out.String(), want)
	}

	t.Run("invalid_address", func(t *testing.T) {
		if err := runLookup(&bytes.Buffer{}, &lookupParams{mapPath: path, addrs: []string{"zz"}}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown_extension", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "ksymmap.txt")
		if err := os.WriteFile(other, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := runLookup(&bytes.Buffer{}, &lookupParams{mapPath: other, addrs: []string{"0x401000"}}); err == nil {
			t.Fatalf("expected error")
		}
	})
}
