// Package mirror copies broadcast auction events to an external stream so
// other systems can follow the auction without holding a websocket.
package mirror

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
)

// Publisher delivers one event to an external stream
type Publisher interface {
	Publish(ctx context.Context, ev *events.Event) error
	Close() error
}

// LogPublisher only logs events; used when no backend is configured
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, ev *events.Event) error {
	log.Debug().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("item_id", ev.ItemID()).
		Msg("mirrored event")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
