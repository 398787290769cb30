package eventbus

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
)

// Handler receives a delivered event. Delivered events are read-only by
// contract; handlers must not mutate them. Synchronous handlers run
// under the bus lock and must stay fast and non-blocking; move heavy
// work to an async subscription.
type Handler func(e *models.Event)

// Subscription is the cancellable handle returned by Subscribe. An
// inactive subscription receives nothing.
type Subscription struct {
	id       string
	channels []models.ChannelType
	handler  Handler
	async    bool
	active   atomic.Bool
}

func newSubscription(channels []models.ChannelType, h Handler, async bool) *Subscription {
	s := &Subscription{
		id:       uuid.NewString(),
		channels: append([]models.ChannelType(nil), channels...),
		handler:  h,
		async:    async,
	}
	s.active.Store(true)
	return s
}

// ID returns the subscription identity.
func (s *Subscription) ID() string { return s.id }

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool { return s.active.Load() }

// Channels returns the channel set the subscription covers.
func (s *Subscription) Channels() []models.ChannelType {
	return append([]models.ChannelType(nil), s.channels...)
}

// Cancel deactivates the subscription without detaching it from the
// bus; Unsubscribe does both.
func (s *Subscription) Cancel() { s.active.Store(false) }
