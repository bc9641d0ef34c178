package models

import (
	"time"
)

// Item represents a single auction lot.
type Item struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	StartingPrice   float64   `json:"starting_price"`
	CurrentBid      float64   `json:"current_bid"`
	HighestBidderID *string   `json:"highest_bidder_id"` // nil until a bid is accepted
	EndTime         time.Time `json:"end_time"`
}

// Ended reports whether the item's deadline has passed at now.
func (i Item) Ended(now time.Time) bool {
	return !now.Before(i.EndTime)
}

// Clone returns a copy that shares no pointers with i.
func (i Item) Clone() Item {
	if i.HighestBidderID != nil {
		id := *i.HighestBidderID
		i.HighestBidderID = &id
	}
	return i
}

// Winner describes the outcome of an ended auction.
type Winner struct {
	ItemID   string    `json:"item_id"`
	WinnerID *string   `json:"winner_id"` // nil when nobody bid
	FinalBid float64   `json:"final_bid"`
	EndedAt  time.Time `json:"ended_at"`
}
