package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/lockqueue"
	"github.com/mcdev12/liveauction/go/internal/models"
)

// ItemStore defines what the scheduler needs from the auction store
type ItemStore interface {
	Initialize(now time.Time) uint64
	Get(itemID string) (models.Item, error)
	List() []models.Item
}

// Broadcaster delivers an event to every connected observer
type Broadcaster interface {
	Broadcast(ev *events.Event)
}

// Scheduler moves each item from active to ended exactly once per
// generation and owns the set of items already announced.
//
// Every armed timer carries the generation it was created for. A reset stops
// outstanding timers and starts a new generation; any callback that still
// slips through finds a generation mismatch and does nothing.
type Scheduler struct {
	store ItemStore
	queue *lockqueue.Queue
	hub   Broadcaster
	clock clockwork.Clock

	mu         sync.Mutex
	generation uint64
	announced  map[string]bool
	timers     map[string]clockwork.Timer
	stopped    bool
}

// New creates a scheduler. Call Start to create the first generation.
func New(store ItemStore, queue *lockqueue.Queue, hub Broadcaster, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		store:     store,
		queue:     queue,
		hub:       hub,
		clock:     clock,
		announced: make(map[string]bool),
		timers:    make(map[string]clockwork.Timer),
	}
}

// Start initializes the store and arms a deadline for every item.
func (s *Scheduler) Start() uint64 {
	return s.reinitialize(false)
}

// Reset replaces the item set with a new generation, re-arms every deadline
// and tells all observers to reload.
func (s *Scheduler) Reset() uint64 {
	return s.reinitialize(true)
}

// Generation returns the generation timers are currently armed for.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Announced reports whether the item's end has been broadcast in the
// current generation.
func (s *Scheduler) Announced(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announced[itemID]
}

// Stop cancels all outstanding timers. Later firings are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.cancelTimers()
	log.Info().Uint64("generation", s.generation).Msg("auction scheduler stopped")
}

// PublishAccepted runs publish while holding the lock Reset takes, but only
// if generation is still current. A bid applied to a generation that has
// since been reset must not reach observers, who already reloaded. Returns
// false when publish was skipped.
func (s *Scheduler) PublishAccepted(generation uint64, publish func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		log.Debug().
			Uint64("bid_generation", generation).
			Uint64("generation", s.generation).
			Msg("suppressing bid from a reset generation")
		return false
	}
	publish()
	return true
}

func (s *Scheduler) reinitialize(announceReset bool) uint64 {
	s.mu.Lock()

	s.cancelTimers()
	now := s.clock.Now()
	gen := s.store.Initialize(now)
	s.generation = gen
	s.announced = make(map[string]bool)
	s.stopped = false

	var due []string
	for _, item := range s.store.List() {
		delay := item.EndTime.Sub(now)
		if delay <= 0 {
			due = append(due, item.ID)
			continue
		}
		s.arm(gen, item.ID, delay)
	}

	if announceReset {
		s.broadcast(events.EventTypeAuctionsReset, nil)
	}
	armed := len(s.timers)
	s.mu.Unlock()

	log.Info().
		Uint64("generation", gen).
		Int("armed", armed).
		Int("due", len(due)).
		Bool("reset", announceReset).
		Msg("auction deadlines scheduled")

	// Items already past their deadline are announced right away.
	for _, id := range due {
		s.Announce(gen, id)
	}
	return gen
}

// Announce broadcasts AUCTION_ENDED for the item if it belongs to the
// current generation, has reached its deadline and has not been announced
// yet. It runs through the item's queue so it lands after any bid already in
// flight. Returns true if this call made the announcement.
func (s *Scheduler) Announce(generation uint64, itemID string) bool {
	announced, _ := lockqueue.Do(s.queue, itemID, func() (bool, error) {
		return s.announce(generation, itemID), nil
	})
	return announced
}

func (s *Scheduler) announce(generation uint64, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || generation != s.generation {
		log.Debug().
			Str("item_id", itemID).
			Uint64("timer_generation", generation).
			Uint64("generation", s.generation).
			Msg("ignoring stale auction end")
		return false
	}
	if s.announced[itemID] {
		return false
	}

	item, err := s.store.Get(itemID)
	if err != nil {
		log.Warn().Err(err).Str("item_id", itemID).Msg("cannot announce end of unknown item")
		return false
	}

	now := s.clock.Now()
	if !item.Ended(now) {
		// Fired early; wait for the real deadline.
		s.arm(generation, itemID, item.EndTime.Sub(now))
		return false
	}

	s.announced[itemID] = true
	delete(s.timers, itemID)

	s.broadcast(events.EventTypeAuctionEnded, events.AuctionEndedPayload{
		ItemID:   item.ID,
		WinnerID: item.HighestBidderID,
		FinalBid: item.CurrentBid,
		EndedAt:  item.EndTime,
	})

	logEvent := log.Info().
		Str("item_id", itemID).
		Uint64("generation", generation).
		Float64("final_bid", item.CurrentBid)
	if item.HighestBidderID != nil {
		logEvent = logEvent.Str("winner_id", *item.HighestBidderID)
	}
	logEvent.Msg("auction ended")
	return true
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(generation uint64, itemID string, delay time.Duration) {
	if existing, ok := s.timers[itemID]; ok {
		existing.Stop()
	}
	s.timers[itemID] = s.clock.AfterFunc(delay, func() {
		s.Announce(generation, itemID)
	})

	log.Debug().
		Str("item_id", itemID).
		Uint64("generation", generation).
		Dur("delay", delay).
		Msg("armed auction deadline")
}

// cancelTimers must be called with s.mu held.
func (s *Scheduler) cancelTimers() {
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// broadcast must be called with s.mu held so no end announcement can
// interleave with a reset.
func (s *Scheduler) broadcast(eventType events.EventType, payload interface{}) {
	ev, err := events.New(eventType, s.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	s.hub.Broadcast(ev)
}
