package fsatomic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := sample{Name: "policy", Value: 0.5}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var out sample
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	for i := 0; i < 5; i++ {
		if err := WriteJSON(path, sample{Value: float64(i)}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected only state.json, got %d entries", len(entries))
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := WriteJSON(path, sample{Name: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSON(path, sample{Name: "new"}); err != nil {
		t.Fatal(err)
	}

	var out sample
	if err := ReadJSON(path, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "new" {
		t.Errorf("name = %q, want new", out.Name)
	}
}

func TestReadMissingFile(t *testing.T) {
	var out sample
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
