package mirror

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
)

type Config struct {
	BufferSize     int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     1024,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Worker drains offered events into a Publisher on its own goroutine, so
// the broadcast path never waits on the external stream.
type Worker struct {
	publisher Publisher
	config    Config
	queue     chan *events.Event
}

func NewWorker(publisher Publisher, cfg Config) *Worker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan *events.Event, cfg.BufferSize),
	}
}

// Offer queues an event without blocking. Events are dropped when the
// buffer is full.
func (w *Worker) Offer(ev *events.Event) {
	select {
	case w.queue <- ev:
	default:
		log.Warn().
			Str("event_id", ev.ID).
			Str("event_type", string(ev.Type)).
			Msg("mirror buffer full, dropping event")
	}
}

// Run publishes queued events until ctx is done, then closes the publisher.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Int("buffer", cap(w.queue)).Msg("event mirror started")
	defer func() {
		if err := w.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close mirror publisher")
		}
		log.Info().Msg("event mirror stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.queue:
			if err := w.publishWithRetry(ctx, ev); err != nil {
				log.Error().
					Err(err).
					Str("event_id", ev.ID).
					Str("event_type", string(ev.Type)).
					Msg("failed to mirror event")
			}
		}
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, ev *events.Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, w.config.PublishTimeout)
		err := w.publisher.Publish(pubCtx, ev)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("event_id", ev.ID).
			Int("attempt", attempt+1).
			Msg("failed to mirror event, retrying")
	}
	return lastErr
}
