package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*events.Event
	failures  int
	closed    bool
}

func (p *fakePublisher) Publish(ctx context.Context, ev *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) snapshot() ([]*events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.Event(nil), p.published...), p.closed
}

func updateBid(t *testing.T, itemID string, amount float64) *events.Event {
	t.Helper()
	ev, err := events.New(events.EventTypeUpdateBid, time.Now(), events.UpdateBidPayload{
		ItemID:     itemID,
		CurrentBid: amount,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWorkerPublishesInOfferOrder(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWorker(pub, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := 1; i <= 5; i++ {
		w.Offer(updateBid(t, "item-1", float64(200+i)))
	}
	waitFor(t, func() bool {
		got, _ := pub.snapshot()
		return len(got) == 5
	})

	got, _ := pub.snapshot()
	for i, ev := range got {
		p, _ := events.ParsePayload(ev)
		if want := float64(201 + i); p.(*events.UpdateBidPayload).CurrentBid != want {
			t.Errorf("event %d: expected %v, got %v", i, want, p.(*events.UpdateBidPayload).CurrentBid)
		}
	}

	cancel()
	<-done
	if _, closed := pub.snapshot(); !closed {
		t.Error("publisher should be closed when the worker stops")
	}
}

func TestWorkerRetriesFailedPublish(t *testing.T) {
	pub := &fakePublisher{failures: 2}
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	w := NewWorker(pub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Offer(updateBid(t, "item-2", 170))
	waitFor(t, func() bool {
		got, _ := pub.snapshot()
		return len(got) == 1
	})
}

func TestOfferDropsWhenBufferIsFull(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWorker(pub, Config{BufferSize: 2})

	// Not running, so nothing drains the buffer.
	start := time.Now()
	for i := 0; i < 10; i++ {
		w.Offer(updateBid(t, "item-1", float64(300+i)))
	}
	if time.Since(start) > time.Second {
		t.Error("Offer must never block")
	}
	if len(w.queue) != 2 {
		t.Errorf("expected a full buffer of 2, got %d", len(w.queue))
	}
}

func TestKafkaMessageIsKeyedByItem(t *testing.T) {
	msg, err := Message(updateBid(t, "item-3", 195))
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "item-3" {
		t.Errorf("expected key item-3, got %q", msg.Key)
	}

	reset, _ := events.New(events.EventTypeAuctionsReset, time.Now(), nil)
	msg, err = Message(reset)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != string(events.EventTypeAuctionsReset) {
		t.Errorf("reset events should be keyed by type, got %q", msg.Key)
	}
}

func TestSubjectsFallUnderStream(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)
	if len(sc.Subjects) != 1 || sc.Subjects[0] != "auction.events.>" {
		t.Fatalf("unexpected stream subjects %v", sc.Subjects)
	}
	if got := Subject(cfg.SubjectPrefix, updateBid(t, "item-1", 250)); got != "auction.events.UPDATE_BID" {
		t.Errorf("unexpected subject %s", got)
	}
}
