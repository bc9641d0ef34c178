package main

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/store"
	"github.com/mcdev12/liveauction/go/internal/config"
)

// loadCatalog returns the configured catalog, or the built-in demo lots
// when no ITEMS_FILE is set.
func loadCatalog(cfg config.Config) ([]store.CatalogEntry, error) {
	if cfg.ItemsFile == "" {
		return store.DefaultCatalog(), nil
	}

	catalog, err := store.LoadCatalog(cfg.ItemsFile)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("path", cfg.ItemsFile).
		Int("items", len(catalog)).
		Msg("loaded item catalog")
	return catalog, nil
}
