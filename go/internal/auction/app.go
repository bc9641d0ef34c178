package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/lockqueue"
	"github.com/mcdev12/liveauction/go/internal/auction/scheduler"
	"github.com/mcdev12/liveauction/go/internal/auction/store"
	"github.com/mcdev12/liveauction/go/internal/models"
)

// ErrInvalidRequest is returned for malformed bids; they never reach the store.
var ErrInvalidRequest = errors.New("invalid bid request")

// Notifier defines what the app needs from the broadcast hub
type Notifier interface {
	Broadcast(ev *events.Event)
	SendTo(connectionID string, ev *events.Event)
	SendToBidder(bidderID string, ev *events.Event)
}

// Submission is a bid as received from a client connection.
type Submission struct {
	ConnectionID string
	ItemID       string
	Amount       *float64
	BidderID     string
}

// App handles auction business logic
type App struct {
	store    *store.Store
	queue    *lockqueue.Queue
	sched    *scheduler.Scheduler
	notifier Notifier
	clock    clockwork.Clock
}

// NewApp creates the auction app. The scheduler shares the app's queue so
// end announcements are ordered with bids on the same item.
func NewApp(catalog []store.CatalogEntry, notifier Notifier, clock clockwork.Clock) *App {
	st := store.New(catalog)
	queue := lockqueue.New()

	return &App{
		store:    st,
		queue:    queue,
		sched:    scheduler.New(st, queue, notifier, clock),
		notifier: notifier,
		clock:    clock,
	}
}

// Start creates the first generation of items and arms their deadlines.
func (a *App) Start() uint64 {
	return a.sched.Start()
}

// Stop cancels outstanding deadline timers.
func (a *App) Stop() {
	a.sched.Stop()
}

// Reset replaces every item with a fresh lot and starts a new generation.
// This is an unauthenticated demo hook.
func (a *App) Reset() uint64 {
	gen := a.sched.Reset()
	log.Info().Uint64("generation", gen).Msg("auctions reset")
	return gen
}

// ListItems returns the server instant and a snapshot of every item, for
// clients seeding their initial state.
func (a *App) ListItems() (time.Time, []models.Item) {
	return a.clock.Now(), a.store.List()
}

// GetItem returns a snapshot of one item.
func (a *App) GetItem(itemID string) (models.Item, error) {
	return a.store.Get(itemID)
}

// Winner returns the result of an auction once its deadline has passed.
func (a *App) Winner(itemID string) (models.Winner, bool, error) {
	return a.store.WinnerOf(itemID, a.clock.Now())
}

// PendingItems returns how many items currently have queued actions.
func (a *App) PendingItems() int {
	return a.queue.Pending()
}

// PlaceBid validates a submission and applies it under the item's lock.
// Acceptance is broadcast before the next queued action for the item runs,
// so every observer sees bids in acceptance order. Any rejection is sent
// only to the submitting connection.
func (a *App) PlaceBid(ctx context.Context, sub Submission) (models.Item, error) {
	item, err := a.placeBid(ctx, sub)
	if err != nil {
		a.reject(sub, err)
		return models.Item{}, err
	}
	return item, nil
}

func (a *App) placeBid(ctx context.Context, sub Submission) (models.Item, error) {
	sub.ItemID = strings.TrimSpace(sub.ItemID)
	if err := validate(sub); err != nil {
		return models.Item{}, err
	}

	bidderID := strings.TrimSpace(sub.BidderID)
	if bidderID == "" {
		bidderID = sub.ConnectionID
	}
	amount := *sub.Amount

	return lockqueue.Do(a.queue, sub.ItemID, func() (models.Item, error) {
		if err := ctx.Err(); err != nil {
			return models.Item{}, err
		}

		res, err := a.store.ApplyBid(sub.ItemID, amount, bidderID, a.clock.Now())
		if err != nil {
			return models.Item{}, err
		}

		if err := a.publishAccepted(sub.ConnectionID, bidderID, res); err != nil {
			return models.Item{}, err
		}
		return res.Item, nil
	})
}

// publishAccepted announces an applied bid unless a reset replaced its
// generation in the meantime, in which case the bid is reported as ended.
func (a *App) publishAccepted(connectionID, bidderID string, res store.BidResult) error {
	published := a.sched.PublishAccepted(res.Generation, func() {
		a.announceAccepted(connectionID, bidderID, res)
	})
	if !published {
		return fmt.Errorf("%w: %s was reset before the bid was confirmed", store.ErrAuctionEnded, res.Item.ID)
	}
	return nil
}

func validate(sub Submission) error {
	if sub.ItemID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidRequest)
	}
	if sub.Amount == nil {
		return fmt.Errorf("%w: amount is required", ErrInvalidRequest)
	}
	// Zero and negative amounts are left to the store, which rejects them as too low.
	amount := *sub.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrInvalidRequest)
	}
	return nil
}

// announceAccepted runs inside the item's queued action.
func (a *App) announceAccepted(connectionID, bidderID string, res store.BidResult) {
	now := a.clock.Now()
	item := res.Item

	if ev := buildEvent(events.EventTypeUpdateBid, now, events.UpdateBidPayload{
		ItemID:          item.ID,
		CurrentBid:      item.CurrentBid,
		HighestBidderID: item.HighestBidderID,
		ServerTime:      now,
	}); ev != nil {
		a.notifier.Broadcast(ev)
	}

	if ev := buildEvent(events.EventTypeBidAccepted, now, events.BidAcceptedPayload{
		ItemID:     item.ID,
		CurrentBid: item.CurrentBid,
	}); ev != nil {
		a.notifier.SendTo(connectionID, ev)
	}

	if prev := res.PreviousBidderID; prev != nil && *prev != bidderID {
		if ev := buildEvent(events.EventTypeOutbid, now, events.OutbidPayload{
			ItemID:          item.ID,
			CurrentBid:      item.CurrentBid,
			HighestBidderID: bidderID,
		}); ev != nil {
			a.notifier.SendToBidder(*prev, ev)
		}
	}

	log.Info().
		Str("item_id", item.ID).
		Str("bidder_id", bidderID).
		Float64("amount", item.CurrentBid).
		Msg("bid accepted")
}

func (a *App) reject(sub Submission, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The submitter went away; there is nobody to tell.
		log.Debug().
			Err(err).
			Str("item_id", sub.ItemID).
			Str("connection_id", sub.ConnectionID).
			Msg("bid abandoned")
		return
	}

	code := ErrorCode(err)

	level := zerolog.DebugLevel
	if code == events.ErrorCodeInternal {
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).
		Err(err).
		Str("item_id", sub.ItemID).
		Str("connection_id", sub.ConnectionID).
		Str("code", string(code)).
		Msg("bid rejected")

	if ev := buildEvent(events.EventTypeBidError, a.clock.Now(), events.BidErrorPayload{
		ItemID:  sub.ItemID,
		Error:   code,
		Message: err.Error(),
	}); ev != nil {
		a.notifier.SendTo(sub.ConnectionID, ev)
	}
}

func buildEvent(eventType events.EventType, at time.Time, payload interface{}) *events.Event {
	ev, err := events.New(eventType, at, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return nil
	}
	return ev
}

// ErrorCode maps a bid error onto the code reported to clients.
func ErrorCode(err error) events.ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return events.ErrorCodeInvalidRequest
	case errors.Is(err, store.ErrItemNotFound):
		return events.ErrorCodeItemNotFound
	case errors.Is(err, store.ErrAuctionEnded):
		return events.ErrorCodeAuctionEnded
	case errors.Is(err, store.ErrBidTooLow):
		return events.ErrorCodeBidTooLow
	default:
		return events.ErrorCodeInternal
	}
}
