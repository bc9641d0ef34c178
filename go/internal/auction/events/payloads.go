package events

import (
	"time"
)

// ErrorCode classifies a rejected bid for the client.
type ErrorCode string

const (
	ErrorCodeItemNotFound   ErrorCode = "ItemNotFound"
	ErrorCodeAuctionEnded   ErrorCode = "AuctionEnded"
	ErrorCodeBidTooLow      ErrorCode = "BidTooLow"
	ErrorCodeInvalidRequest ErrorCode = "InvalidRequest"
	ErrorCodeInternal       ErrorCode = "InternalError"
)

// ServerTimePayload is sent to each new connection for clock offset estimation
type ServerTimePayload struct {
	ServerTime time.Time `json:"server_time"`
}

// UpdateBidPayload is broadcast to everyone when a bid is accepted
type UpdateBidPayload struct {
	ItemID          string    `json:"item_id"`
	CurrentBid      float64   `json:"current_bid"`
	HighestBidderID *string   `json:"highest_bidder_id"`
	ServerTime      time.Time `json:"server_time"`
}

// BidAcceptedPayload confirms a bid to its submitter
type BidAcceptedPayload struct {
	ItemID     string  `json:"item_id"`
	CurrentBid float64 `json:"current_bid"`
}

// BidErrorPayload tells the submitter why a bid was rejected
type BidErrorPayload struct {
	ItemID  string    `json:"item_id"`
	Error   ErrorCode `json:"error"`
	Message string    `json:"message,omitempty"`
}

// AuctionEndedPayload is broadcast once per item per generation
type AuctionEndedPayload struct {
	ItemID   string    `json:"item_id"`
	WinnerID *string   `json:"winner_id"`
	FinalBid float64   `json:"final_bid"`
	EndedAt  time.Time `json:"ended_at"`
}

// OutbidPayload is sent to the bidder who just lost the lead on an item
type OutbidPayload struct {
	ItemID          string  `json:"item_id"`
	CurrentBid      float64 `json:"current_bid"`
	HighestBidderID string  `json:"highest_bidder_id"`
}

// PlaceBidPayload is the client's bid submission. Amount is a pointer so a
// missing amount can be told apart from zero.
type PlaceBidPayload struct {
	ItemID   string   `json:"item_id"`
	Amount   *float64 `json:"amount"`
	BidderID string   `json:"bidder_id"`
}
