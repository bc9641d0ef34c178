package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes one lot that is created on every store initialization.
type CatalogEntry struct {
	ID            string        `yaml:"id"`
	Title         string        `yaml:"title"`
	StartingPrice float64       `yaml:"starting_price"`
	Duration      time.Duration `yaml:"duration"`
}

// DefaultCatalog returns the built-in demo lots.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{ID: "item-1", Title: "Air Purifier", StartingPrice: 210, Duration: 4 * time.Minute},
		{ID: "item-2", Title: "Mechanical Keyboard", StartingPrice: 160, Duration: 3 * time.Minute},
		{ID: "item-3", Title: "Noise Cancelling Earbuds", StartingPrice: 190, Duration: 4 * time.Minute},
		{ID: "item-4", Title: "Smart Light Kit", StartingPrice: 140, Duration: 3 * time.Minute},
	}
}

type catalogFile struct {
	Items []CatalogEntry `yaml:"items"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) ([]CatalogEntry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := ValidateCatalog(file.Items); err != nil {
		return nil, err
	}
	return file.Items, nil
}

// ValidateCatalog checks that entries are usable as auction lots.
func ValidateCatalog(entries []CatalogEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidCatalog)
	}

	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidCatalog, i)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidCatalog, e.ID)
		}
		seen[e.ID] = true

		if e.StartingPrice <= 0 {
			return fmt.Errorf("%w: item %q starting price must be positive", ErrInvalidCatalog, e.ID)
		}
		if e.Duration <= 0 {
			return fmt.Errorf("%w: item %q duration must be positive", ErrInvalidCatalog, e.ID)
		}
	}
	return nil
}
