package store

import "errors"

var (
	// ErrItemNotFound is returned when no item has the requested id
	ErrItemNotFound = errors.New("item not found")
	// ErrAuctionEnded is returned when a bid arrives at or after the item's deadline
	ErrAuctionEnded = errors.New("auction ended")
	// ErrBidTooLow is returned when a bid does not strictly exceed the current bid
	ErrBidTooLow = errors.New("bid too low")
	// ErrInvalidCatalog is returned when a catalog file fails validation
	ErrInvalidCatalog = errors.New("invalid catalog")
)
