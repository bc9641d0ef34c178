package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/liveauction/go/internal/models"
)

// BidResult is the outcome of an accepted bid
type BidResult struct {
	Item             models.Item
	PreviousBidderID *string // highest bidder before this bid, nil if none
	Generation       uint64  // generation the bid was applied to
}

// Store is the authoritative in-memory item set.
//
// Item mutations are expected to be serialized per item by the caller; the
// mutex only guarantees that readers never observe a half-applied bid.
type Store struct {
	mu         sync.RWMutex
	catalog    []CatalogEntry
	items      map[string]*models.Item
	order      []string
	generation uint64
}

// New creates an empty store for the given catalog. Call Initialize before use.
func New(catalog []CatalogEntry) *Store {
	entries := make([]CatalogEntry, len(catalog))
	copy(entries, catalog)

	return &Store{
		catalog: entries,
		items:   make(map[string]*models.Item),
	}
}

// Initialize replaces the whole item set with fresh lots ending relative to
// now and returns the new generation.
func (s *Store) Initialize(now time.Time) uint64 {
	items := make(map[string]*models.Item, len(s.catalog))
	order := make([]string, 0, len(s.catalog))
	for _, e := range s.catalog {
		items[e.ID] = &models.Item{
			ID:            e.ID,
			Title:         e.Title,
			StartingPrice: e.StartingPrice,
			CurrentBid:    e.StartingPrice,
			EndTime:       now.Add(e.Duration),
		}
		order = append(order, e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = items
	s.order = order
	s.generation++
	return s.generation
}

// Generation returns the current generation, 0 before the first Initialize.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Get returns a copy of the item.
func (s *Store) Get(itemID string) (models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return models.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return item.Clone(), nil
}

// List returns copies of all items in catalog order.
func (s *Store) List() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

// ApplyBid validates and applies a bid. Checks run in order: unknown item,
// deadline passed, amount not above the current bid.
func (s *Store) ApplyBid(itemID string, amount float64, bidderID string, now time.Time) (BidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return BidResult{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Ended(now) {
		return BidResult{}, fmt.Errorf("%w: %s closed at %s", ErrAuctionEnded, itemID, item.EndTime.Format(time.RFC3339))
	}
	if amount <= item.CurrentBid {
		return BidResult{}, fmt.Errorf("%w: %.2f does not exceed current bid %.2f", ErrBidTooLow, amount, item.CurrentBid)
	}

	previous := item.HighestBidderID
	bidder := bidderID
	item.CurrentBid = amount
	item.HighestBidderID = &bidder

	return BidResult{Item: item.Clone(), PreviousBidderID: previous, Generation: s.generation}, nil
}

// WinnerOf returns the final result for an item once its deadline has
// passed. The boolean is false while the auction is still running.
func (s *Store) WinnerOf(itemID string, now time.Time) (models.Winner, bool, error) {
	item, err := s.Get(itemID)
	if err != nil {
		return models.Winner{}, false, err
	}
	if !item.Ended(now) {
		return models.Winner{}, false, nil
	}

	return models.Winner{
		ItemID:   item.ID,
		WinnerID: item.HighestBidderID,
		FinalBid: item.CurrentBid,
		EndedAt:  item.EndTime,
	}, true, nil
}
