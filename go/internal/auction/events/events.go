// Package events defines the messages exchanged with auction clients.
// Payload types live here so the hub, the scheduler and the mirror can share
// them without importing each other.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of auction event
type EventType string

const (
	// server -> client
	EventTypeServerTime    EventType = "SERVER_TIME"
	EventTypeUpdateBid     EventType = "UPDATE_BID"
	EventTypeBidAccepted   EventType = "BID_ACCEPTED"
	EventTypeBidError      EventType = "BID_ERROR"
	EventTypeAuctionEnded  EventType = "AUCTION_ENDED"
	EventTypeAuctionsReset EventType = "AUCTIONS_RESET"
	EventTypeOutbid        EventType = "OUTBID"

	// client -> server
	EventTypePlaceBid EventType = "PLACE_BID"
)

// Event is the envelope for every websocket message
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New wraps payload in an envelope stamped with at.
func New(eventType EventType, at time.Time, payload interface{}) (*Event, error) {
	ev := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: at,
	}
	if payload == nil {
		return ev, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev.Data = data
	return ev, nil
}

// ItemID extracts the item id from events that carry one, for routing and
// partitioning. Returns "" otherwise.
func (e *Event) ItemID() string {
	if len(e.Data) == 0 {
		return ""
	}
	var probe struct {
		ItemID string `json:"item_id"`
	}
	if err := json.Unmarshal(e.Data, &probe); err != nil {
		return ""
	}
	return probe.ItemID
}

// ParsePayload decodes a server event into its payload struct.
func ParsePayload(event *Event) (interface{}, error) {
	var target interface{}
	switch event.Type {
	case EventTypeServerTime:
		target = &ServerTimePayload{}
	case EventTypeUpdateBid:
		target = &UpdateBidPayload{}
	case EventTypeBidAccepted:
		target = &BidAcceptedPayload{}
	case EventTypeBidError:
		target = &BidErrorPayload{}
	case EventTypeAuctionEnded:
		target = &AuctionEndedPayload{}
	case EventTypeOutbid:
		target = &OutbidPayload{}
	case EventTypePlaceBid:
		target = &PlaceBidPayload{}
	case EventTypeAuctionsReset:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err := json.Unmarshal(event.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return target, nil
}
