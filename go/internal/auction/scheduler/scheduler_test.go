package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/lockqueue"
	"github.com/mcdev12/liveauction/go/internal/auction/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Broadcast(ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// waitForEnded polls until n AUCTION_ENDED events were recorded. Fake clock
// callbacks run on their own goroutines, so delivery is asynchronous.
func (r *recorder) waitForEnded(t *testing.T, n int) []*events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.ofType(events.EventTypeAuctionEnded); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d AUCTION_ENDED events, got %d", n, len(r.ofType(events.EventTypeAuctionEnded)))
	return nil
}

// settle gives stray callbacks a chance to run before asserting absence.
func settle() { time.Sleep(50 * time.Millisecond) }

type fixture struct {
	clock *clockwork.FakeClock
	store *store.Store
	queue *lockqueue.Queue
	hub   *recorder
	sched *Scheduler
}

func newFixture(catalog []store.CatalogEntry) *fixture {
	f := &fixture{
		clock: clockwork.NewFakeClockAt(epoch),
		store: store.New(catalog),
		queue: lockqueue.New(),
		hub:   &recorder{},
	}
	f.sched = New(f.store, f.queue, f.hub, f.clock)
	return f
}

func endedItem(t *testing.T, ev *events.Event) *events.AuctionEndedPayload {
	t.Helper()
	p, err := events.ParsePayload(ev)
	if err != nil {
		t.Fatal(err)
	}
	return p.(*events.AuctionEndedPayload)
}

func TestAuctionsEndAtTheirDeadlines(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	gen := f.sched.Start()
	if gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}

	f.clock.Advance(2 * time.Minute)
	settle()
	if n := len(f.hub.ofType(events.EventTypeAuctionEnded)); n != 0 {
		t.Fatalf("nothing should end before 3m, got %d", n)
	}

	f.clock.Advance(time.Minute)
	ended := f.hub.waitForEnded(t, 2)
	seen := map[string]bool{}
	for _, ev := range ended {
		seen[endedItem(t, ev).ItemID] = true
	}
	if !seen["item-2"] || !seen["item-4"] {
		t.Errorf("expected the 3m lots to end first, got %v", seen)
	}

	f.clock.Advance(time.Minute)
	f.hub.waitForEnded(t, 4)

	// Manual re-trigger is a no-op once announced.
	if f.sched.Announce(gen, "item-1") {
		t.Error("second announcement must be a no-op")
	}
	settle()
	if n := len(f.hub.ofType(events.EventTypeAuctionEnded)); n != 4 {
		t.Errorf("expected exactly 4 announcements, got %d", n)
	}
}

func TestAnnouncementCarriesWinner(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	f.sched.Start()

	if _, err := f.store.ApplyBid("item-2", 200, "dana", f.clock.Now()); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(3 * time.Minute)
	f.hub.waitForEnded(t, 2)

	var found bool
	for _, ev := range f.hub.ofType(events.EventTypeAuctionEnded) {
		p := endedItem(t, ev)
		if p.ItemID != "item-2" {
			continue
		}
		found = true
		if p.WinnerID == nil || *p.WinnerID != "dana" || p.FinalBid != 200 {
			t.Errorf("unexpected announcement %+v", p)
		}
		if !p.EndedAt.Equal(epoch.Add(3 * time.Minute)) {
			t.Errorf("expected ended_at at the deadline, got %s", p.EndedAt)
		}
	}
	if !found {
		t.Fatal("item-2 was not announced")
	}
	if !f.sched.Announced("item-2") || f.sched.Announced("item-1") {
		t.Error("announced set does not match")
	}
}

func TestConcurrentAnnouncementsFireOnce(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	gen := f.sched.Start()

	f.clock.Advance(5 * time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.sched.Announce(gen, "item-1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	f.hub.waitForEnded(t, 4)
	settle()

	count := 0
	for _, ev := range f.hub.ofType(events.EventTypeAuctionEnded) {
		if endedItem(t, ev).ItemID == "item-1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one announcement for item-1, got %d", count)
	}
	if wins > 1 {
		t.Errorf("expected at most one manual call to win, got %d", wins)
	}
}

func TestItemsPastDeadlineAreAnnouncedImmediately(t *testing.T) {
	f := newFixture([]store.CatalogEntry{
		{ID: "expired", Title: "Expired", StartingPrice: 10, Duration: 0},
		{ID: "live", Title: "Live", StartingPrice: 10, Duration: time.Minute},
	})
	f.sched.Start()

	ended := f.hub.waitForEnded(t, 1)
	if endedItem(t, ended[0]).ItemID != "expired" {
		t.Errorf("expected the expired lot, got %s", endedItem(t, ended[0]).ItemID)
	}
	settle()
	if n := len(f.hub.ofType(events.EventTypeAuctionEnded)); n != 1 {
		t.Errorf("live lot must not end yet, got %d events", n)
	}
}

func TestEarlyAnnounceRearmsInsteadOfEnding(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	gen := f.sched.Start()

	if f.sched.Announce(gen, "item-2") {
		t.Fatal("announce before the deadline must not end the auction")
	}
	f.clock.Advance(3 * time.Minute)
	f.hub.waitForEnded(t, 2)
	settle()
	if n := len(f.hub.ofType(events.EventTypeAuctionEnded)); n != 2 {
		t.Errorf("expected 2 announcements, got %d", n)
	}
}

func TestResetSuppressesPreviousGeneration(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	oldGen := f.sched.Start()

	if _, err := f.store.ApplyBid("item-1", 500, "erin", f.clock.Now()); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Minute)
	newGen := f.sched.Reset()
	if newGen != oldGen+1 || f.sched.Generation() != newGen {
		t.Fatalf("expected generation %d, got %d", oldGen+1, newGen)
	}
	if len(f.hub.ofType(events.EventTypeAuctionsReset)) != 1 {
		t.Error("expected one AUCTIONS_RESET broadcast")
	}

	item, _ := f.store.Get("item-1")
	if item.CurrentBid != 210 || item.HighestBidderID != nil {
		t.Errorf("expected fresh item after reset, got %+v", item)
	}
	if want := epoch.Add(5 * time.Minute); !item.EndTime.Equal(want) {
		t.Errorf("expected new deadline %s, got %s", want, item.EndTime)
	}

	// The old 3m deadline passes; nothing from the old generation may appear.
	f.clock.Advance(2*time.Minute + 30*time.Second)
	settle()
	if n := len(f.hub.ofType(events.EventTypeAuctionEnded)); n != 0 {
		t.Fatalf("stale generation announced %d auctions", n)
	}

	// A straggling callback tagged with the old generation is ignored.
	f.clock.Advance(5 * time.Minute)
	if f.sched.Announce(oldGen, "item-1") {
		t.Error("stale announce must not add an event")
	}

	ended := f.hub.waitForEnded(t, 4)
	settle()
	if len(f.hub.ofType(events.EventTypeAuctionEnded)) != 4 {
		t.Errorf("expected one announcement per item, got %d", len(f.hub.ofType(events.EventTypeAuctionEnded)))
	}
	for _, ev := range ended {
		p := endedItem(t, ev)
		if p.WinnerID != nil {
			t.Errorf("%s: no bid was placed in the new generation, got winner %s", p.ItemID, *p.WinnerID)
		}
	}
}

func TestStaleGenerationAnnounceIsNoop(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	oldGen := f.sched.Start()
	f.sched.Reset()

	f.clock.Advance(10 * time.Minute)
	if f.sched.Announce(oldGen, "item-3") {
		t.Error("announce tagged with an old generation must be ignored")
	}
}

func TestStopCancelsTimers(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	gen := f.sched.Start()
	f.sched.Stop()

	f.clock.Advance(10 * time.Minute)
	settle()
	if n := len(f.hub.ofType(events.EventTypeAuctionEnded)); n != 0 {
		t.Errorf("expected no announcements after Stop, got %d", n)
	}
	if f.sched.Announce(gen, "item-1") {
		t.Error("announce after Stop must be ignored")
	}
}

func TestPublishAcceptedOnlyForCurrentGeneration(t *testing.T) {
	f := newFixture(store.DefaultCatalog())
	oldGen := f.sched.Start()

	ran := 0
	if !f.sched.PublishAccepted(oldGen, func() { ran++ }) || ran != 1 {
		t.Fatal("publish for the current generation must run")
	}

	f.sched.Reset()
	if f.sched.PublishAccepted(oldGen, func() { ran++ }) {
		t.Error("publish for a reset generation must be skipped")
	}
	if ran != 1 {
		t.Errorf("publish callback ran %d times, want 1", ran)
	}
	if !f.sched.PublishAccepted(f.sched.Generation(), func() { ran++ }) || ran != 2 {
		t.Error("publish for the new generation must run")
	}
}
