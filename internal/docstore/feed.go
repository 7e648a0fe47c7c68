package docstore

import (
	"context"
	"sync"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/bus"
)

const feedBuffer = 256

// Feed is the in-process push channel over the store's bus.
type Feed struct {
	bus *bus.Bus
}

var _ backend.Realtime = (*Feed)(nil)

// NewFeed creates a push channel reading from b.
func NewFeed(b *bus.Bus) *Feed {
	return &Feed{bus: b}
}

// Subscribe delivers events on channel to fn from a dedicated goroutine
// until cancel is called or ctx is done. cancel is safe to call repeatedly.
func (f *Feed) Subscribe(ctx context.Context, channel string, fn func(backend.Event)) (func(), error) {
	ch, unsub := f.bus.Subscribe(feedBuffer, channel)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsub()
			close(stop)
		})
	}

	go func() {
		for {
			select {
			case evt := <-ch:
				fn(FromBus(evt))
			case <-stop:
				return
			case <-ctx.Done():
				cancel()
				return
			}
		}
	}()
	return cancel, nil
}

// FromBus converts a bus event to a backend event, decoding its operation kinds.
func FromBus(evt bus.Event) backend.Event {
	return backend.Event{
		Labels:    evt.Labels,
		Channels:  evt.Channels,
		Ops:       backend.ParseOps(evt.Labels),
		Timestamp: evt.Timestamp,
		Payload:   evt.Payload,
	}
}
