package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/gateway"
	"github.com/mcdev12/liveauction/go/internal/auction/timesync"
	"github.com/mcdev12/liveauction/go/internal/models"
)

// Strategy controls how aggressively a bot bids
type Strategy struct {
	Increment float64
	Ceiling   float64       // never bid above this
	Cutoff    time.Duration // stop bidding when less than this remains
}

// nextBid returns the amount to bid over current, or false when the bot
// should give up on the item.
func nextBid(s Strategy, current float64, remaining time.Duration) (float64, bool) {
	if remaining <= s.Cutoff {
		return 0, false
	}
	next := current + s.Increment
	if next > s.Ceiling {
		return 0, false
	}
	return next, true
}

// Results is shared by every bot in a run
type Results struct {
	Accepted atomic.Int32
	Rejected atomic.Int32
	Outbid   atomic.Int32

	mu      sync.Mutex
	winners map[string]*string
}

func NewResults() *Results {
	return &Results{winners: make(map[string]*string)}
}

func (r *Results) recordEnd(p *events.AuctionEndedPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winners[p.ItemID] = p.WinnerID
}

func (r *Results) Winners() map[string]*string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*string, len(r.winners))
	for k, v := range r.winners {
		out[k] = v
	}
	return out
}

// Bot is a single simulated bidder holding one websocket connection
type Bot struct {
	ID       string
	strategy Strategy
	results  *Results
	tracker  *timesync.Tracker

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu    sync.Mutex
	items map[string]models.Item
	open  int
}

func NewBot(id string, strategy Strategy, results *Results, items []models.Item) *Bot {
	b := &Bot{
		ID:       id,
		strategy: strategy,
		results:  results,
		tracker:  timesync.NewTracker(clockwork.NewRealClock()),
		items:    make(map[string]models.Item, len(items)),
	}
	for _, item := range items {
		b.items[item.ID] = item
	}
	b.open = len(items)
	return b
}

// Dial connects the bot to the server's websocket endpoint.
func (b *Bot) Dial(ctx context.Context, server string) error {
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"bidder_id": {b.ID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	b.conn = conn
	return nil
}

// Run opens a bid on every item and then reacts to server events until
// every item has ended or ctx is done.
func (b *Bot) Run(ctx context.Context) {
	defer b.conn.Close()

	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()

	b.mu.Lock()
	opening := make([]models.Item, 0, len(b.items))
	for _, item := range b.items {
		opening = append(opening, item)
	}
	b.mu.Unlock()
	for _, item := range opening {
		b.raise(item.ID)
	}

	for {
		var ev events.Event
		if err := b.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("bot", b.ID).Msg("connection closed")
			}
			return
		}
		if done := b.handle(&ev); done {
			return
		}
	}
}

func (b *Bot) handle(ev *events.Event) bool {
	if ev.Type == events.EventTypeAuctionsReset {
		// Deadlines and prices this bot knows about are gone.
		log.Warn().Str("bot", b.ID).Msg("auctions were reset, stopping")
		return true
	}

	payload, err := events.ParsePayload(ev)
	if err != nil {
		log.Debug().Err(err).Str("bot", b.ID).Msg("ignoring event")
		return false
	}

	switch p := payload.(type) {
	case *events.ServerTimePayload:
		offset := b.tracker.Observe(p.ServerTime)
		log.Debug().Str("bot", b.ID).Dur("offset", offset).Msg("clock synced")

	case *events.UpdateBidPayload:
		b.tracker.Observe(p.ServerTime)
		b.mu.Lock()
		if item, ok := b.items[p.ItemID]; ok {
			item.CurrentBid = p.CurrentBid
			item.HighestBidderID = p.HighestBidderID
			b.items[p.ItemID] = item
		}
		b.mu.Unlock()

	case *events.BidAcceptedPayload:
		b.results.Accepted.Add(1)

	case *events.BidErrorPayload:
		b.results.Rejected.Add(1)
		if p.Error == events.ErrorCodeBidTooLow {
			b.raise(p.ItemID)
		}

	case *events.OutbidPayload:
		b.results.Outbid.Add(1)
		b.raise(p.ItemID)

	case *events.AuctionEndedPayload:
		b.results.recordEnd(p)
		b.mu.Lock()
		if _, ok := b.items[p.ItemID]; ok {
			delete(b.items, p.ItemID)
			b.open--
		}
		done := b.open == 0
		b.mu.Unlock()
		return done
	}
	return false
}

// raise bids over the last known price if the strategy allows it.
func (b *Bot) raise(itemID string) {
	b.mu.Lock()
	item, ok := b.items[itemID]
	b.mu.Unlock()
	if !ok {
		return
	}

	amount, ok := nextBid(b.strategy, item.CurrentBid, b.tracker.Remaining(item.EndTime))
	if !ok {
		log.Debug().Str("bot", b.ID).Str("item_id", itemID).Msg("dropping out")
		return
	}

	ev, err := events.New(events.EventTypePlaceBid, b.tracker.ServerNow(), events.PlaceBidPayload{
		ItemID:   itemID,
		Amount:   &amount,
		BidderID: b.ID,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build bid")
		return
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(ev); err != nil {
		log.Warn().Err(err).Str("bot", b.ID).Msg("failed to send bid")
	}
}

// fetchItems seeds the bots from GET /items.
func fetchItems(ctx context.Context, server string) (gateway.ItemsResponse, error) {
	var out gateway.ItemsResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/items", nil)
	if err != nil {
		return out, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("fetch items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("fetch items: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode items: %w", err)
	}
	return out, nil
}
