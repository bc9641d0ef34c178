package timesync

// Clock sync is a naive point estimate, not a round-trip protocol.
//
// The server stamps SERVER_TIME (on connect) and UPDATE_BID (on every
// accepted bid) with its current instant. A client recomputes
//
//	offset = serverInstant - localInstantAtReceipt
//
// on each such message and renders countdowns as endTime - (local + offset).
// The server deadline stays authoritative; the countdown is display only.

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
)

// Service reports the server clock to clients.
type Service struct {
	clock clockwork.Clock
}

// NewService creates a time service backed by clock.
func NewService(clock clockwork.Clock) *Service {
	return &Service{clock: clock}
}

// Now returns the current server instant.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// ServerTimeEvent builds the SERVER_TIME message sent to a new connection.
func (s *Service) ServerTimeEvent() (*events.Event, error) {
	now := s.clock.Now()
	return events.New(events.EventTypeServerTime, now, events.ServerTimePayload{ServerTime: now})
}

// Offset estimates how far the server clock is ahead of the local clock.
func Offset(serverInstant, localAtReceipt time.Time) time.Duration {
	return serverInstant.Sub(localAtReceipt)
}

// Remaining returns the time left until endTime as seen through offset,
// never negative.
func Remaining(endTime, localNow time.Time, offset time.Duration) time.Duration {
	left := endTime.Sub(localNow.Add(offset))
	if left < 0 {
		return 0
	}
	return left
}

// Tracker keeps the latest offset seen by a client.
type Tracker struct {
	clock  clockwork.Clock
	mu     sync.RWMutex
	offset time.Duration
}

// NewTracker creates a tracker that reads local time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Observe records a server instant received just now and returns the new offset.
func (t *Tracker) Observe(serverInstant time.Time) time.Duration {
	offset := Offset(serverInstant, t.clock.Now())

	t.mu.Lock()
	t.offset = offset
	t.mu.Unlock()
	return offset
}

// Offset returns the most recent estimate.
func (t *Tracker) Offset() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.offset
}

// ServerNow returns the local estimate of the server clock.
func (t *Tracker) ServerNow() time.Time {
	return t.clock.Now().Add(t.Offset())
}

// Remaining returns the time left until endTime on the estimated server clock.
func (t *Tracker) Remaining(endTime time.Time) time.Duration {
	return Remaining(endTime, t.clock.Now(), t.Offset())
}
