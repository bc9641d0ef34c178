package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCatalog(t *testing.T) {
	doc := []byte(`
items:
  - id: lamp
    title: Desk Lamp
    starting_price: 45
    duration: 90s
  - id: chair
    title: Office Chair
    starting_price: 120.5
    duration: 2m
`)

	entries, err := ParseCatalog(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Duration != 90*time.Second {
		t.Errorf("expected 90s, got %s", entries[0].Duration)
	}
	if entries[1].StartingPrice != 120.5 {
		t.Errorf("expected 120.5, got %v", entries[1].StartingPrice)
	}
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"empty":        "items: []",
		"missing id":   "items:\n  - title: x\n    starting_price: 1\n    duration: 1m",
		"duplicate id": "items:\n  - {id: a, starting_price: 1, duration: 1m}\n  - {id: a, starting_price: 2, duration: 1m}",
		"zero price":   "items:\n  - {id: a, starting_price: 0, duration: 1m}",
		"no duration":  "items:\n  - {id: a, starting_price: 5}",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.yaml")
	doc := "items:\n  - {id: vase, title: Vase, starting_price: 30, duration: 45s}\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[0].ID != "vase" || entries[0].Title != "Vase" {
		t.Errorf("unexpected entry %+v", entries[0])
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultCatalogIsValid(t *testing.T) {
	if err := ValidateCatalog(DefaultCatalog()); err != nil {
		t.Fatal(err)
	}
}
