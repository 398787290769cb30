package eventbus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

// ErrClosed is returned by publish calls after Close.
var ErrClosed = errors.New("eventbus: closed")

// Option configures Bus.
type Option func(*Bus)

// WithBufferSize sets the per-channel in-memory recent buffer capacity.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithAsyncQueueSize sets the async delivery queue capacity.
func WithAsyncQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.asyncSize = n
		}
	}
}

// Bus is a channel-based pub/sub with a durable append-only log and a
// bounded recent buffer per channel.
//
// Publish is synchronous and holds the bus's single coarse lock across
// persistence, buffering and delivery to synchronous subscribers; a
// slow synchronous handler delays every concurrent publisher, and a
// synchronous handler must never publish back into the bus. Async
// subscribers are served by one dispatcher goroutine fed from a
// bounded FIFO queue, so async delivery is serialized and ordered
// independently of synchronous delivery.
//
// Durability is best-effort and decoupled from delivery: a failed
// append is logged and counted, and subscribers still see the event.
type Bus struct {
	dir       string
	bufSize   int
	asyncSize int
	lg        *logger.Logger
	metrics   repository.Metrics

	mu        sync.Mutex
	logs      map[models.ChannelType]*channelLog
	buffers   map[models.ChannelType]*ring
	subs      map[models.ChannelType][]*Subscription
	published uint64
	delivered uint64
	dropped   uint64
	closed    bool

	asyncCh chan *models.Event
	wg      sync.WaitGroup
}

// New creates a bus persisting channel logs under dir.
func New(dir string, lg *logger.Logger, m repository.Metrics, opts ...Option) (*Bus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bus dir: %w", err)
	}
	b := &Bus{
		dir:       dir,
		bufSize:   1000,
		asyncSize: 1024,
		lg:        lg,
		metrics:   m,
		logs:      make(map[models.ChannelType]*channelLog),
		buffers:   make(map[models.ChannelType]*ring),
		subs:      make(map[models.ChannelType][]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.asyncCh = make(chan *models.Event, b.asyncSize)
	b.wg.Add(1)
	go b.dispatchAsync()
	return b, nil
}

// Publish seals an event, appends it to the channel log (best effort),
// buffers it, and delivers it to synchronous subscribers in
// registration order. The event is also queued for async subscribers;
// if the async queue is full the async copy is dropped and counted.
func (b *Bus) Publish(channel models.ChannelType, payload interface{}, source string) (*models.Event, error) {
	return b.publish(channel, payload, source, false)
}

// PublishAsync is Publish with a loss-free async hand-off: when the
// async queue is full the caller blocks until the dispatcher drains it
// instead of dropping the async copy.
func (b *Bus) PublishAsync(channel models.ChannelType, payload interface{}, source string) (*models.Event, error) {
	return b.publish(channel, payload, source, true)
}

func (b *Bus) publish(channel models.ChannelType, payload interface{}, source string, blockAsync bool) (*models.Event, error) {
	e, err := models.NewEvent(channel, payload, source)
	if err != nil {
		b.metrics.RecordError("bus_marshal")
		return nil, err
	}

	start := time.Now()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}

	if cl, lerr := b.logFor(channel); lerr != nil {
		b.metrics.RecordError("bus_persist")
		b.lg.Error("bus: open channel log failed", logger.String("channel", string(channel)), logger.Error(lerr))
	} else if aerr := cl.append(e); aerr != nil {
		b.metrics.RecordError("bus_persist")
		b.lg.Error("bus: persist failed, delivering anyway", logger.String("event_id", e.ID), logger.Error(aerr))
	}

	b.bufferFor(channel).push(e)
	b.published++
	b.metrics.RecordEventPublished(string(channel))

	for _, s := range b.subs[channel] {
		if !s.Active() || s.async {
			continue
		}
		b.invoke(s, e)
		b.delivered++
		b.metrics.RecordEventDelivered(string(channel))
	}

	queued := true
	select {
	case b.asyncCh <- e:
	default:
		queued = false
	}
	if !queued && !blockAsync {
		b.dropped++
		b.metrics.RecordError("bus_async_drop")
	}
	b.mu.Unlock()

	if !queued && blockAsync {
		// Under sustained backlog this hand-off can interleave with
		// other blocked publishers; the queue size bounds how often.
		b.asyncCh <- e
	}

	b.metrics.RecordLatency("bus_publish", time.Since(start).Seconds())
	return e, nil
}

// Subscribe attaches a synchronous handler to the given channels.
func (b *Bus) Subscribe(channels []models.ChannelType, h Handler) *Subscription {
	return b.attach(newSubscription(channels, h, false))
}

// SubscribeAsync attaches a handler served by the async dispatcher.
func (b *Bus) SubscribeAsync(channels []models.ChannelType, h Handler) *Subscription {
	return b.attach(newSubscription(channels, h, true))
}

func (b *Bus) attach(s *Subscription) *Subscription {
	b.mu.Lock()
	for _, ch := range s.channels {
		b.subs[ch] = append(b.subs[ch], s)
	}
	b.mu.Unlock()
	return s
}

// Unsubscribe deactivates the subscription and detaches it from all of
// its channels.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	s.Cancel()
	b.mu.Lock()
	for _, ch := range s.channels {
		list := b.subs[ch]
		kept := list[:0]
		for _, cur := range list {
			if cur != s {
				kept = append(kept, cur)
			}
		}
		b.subs[ch] = kept
	}
	b.mu.Unlock()
}

// Replay returns log-ordered events from the durable log within the
// [from, to] window, up to limit. Corrupt or checksum-mismatched lines
// are skipped with a warning.
func (b *Bus) Replay(channel models.ChannelType, from, to time.Time, limit int) ([]*models.Event, error) {
	rl := &channelLog{path: b.logPath(channel)}
	return rl.replay(from, to, limit, b.lg)
}

// Recent returns the last n events of the in-memory buffer only.
func (b *Bus) Recent(channel models.ChannelType, n int) []*models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.buffers[channel]
	if !ok {
		return nil
	}
	return r.last(n)
}

// ChannelStats is the per-channel slice of Stats.
type ChannelStats struct {
	Subscribers int `json:"subscribers"`
	Buffered    int `json:"buffered"`
}

// Stats is the bus observability snapshot.
type Stats struct {
	Published    uint64                  `json:"published"`
	Delivered    uint64                  `json:"delivered"`
	DroppedAsync uint64                  `json:"dropped_async"`
	Channels     map[string]ChannelStats `json:"channels"`
}

// Stats snapshots counters and per-channel subscriber/buffer counts.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{
		Published:    b.published,
		Delivered:    b.delivered,
		DroppedAsync: b.dropped,
		Channels:     make(map[string]ChannelStats),
	}
	for ch, list := range b.subs {
		cs := st.Channels[string(ch)]
		for _, s := range list {
			if s.Active() {
				cs.Subscribers++
			}
		}
		st.Channels[string(ch)] = cs
	}
	for ch, r := range b.buffers {
		cs := st.Channels[string(ch)]
		cs.Buffered = r.len()
		st.Channels[string(ch)] = cs
	}
	return st
}

// Close stops the async dispatcher and closes the channel logs.
// In-flight async deliveries are drained first.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.asyncCh)
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, cl := range b.logs {
		if err := cl.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) dispatchAsync() {
	defer b.wg.Done()
	for e := range b.asyncCh {
		b.mu.Lock()
		list := make([]*Subscription, 0, len(b.subs[e.Type]))
		for _, s := range b.subs[e.Type] {
			if s.Active() && s.async {
				list = append(list, s)
			}
		}
		b.mu.Unlock()

		for _, s := range list {
			b.invoke(s, e)
			b.mu.Lock()
			b.delivered++
			b.mu.Unlock()
			b.metrics.RecordEventDelivered(string(e.Type))
		}
	}
}

// invoke runs one handler with panic isolation: a failing subscriber
// never affects delivery to the others or the publisher.
func (b *Bus) invoke(s *Subscription, e *models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordError("bus_subscriber")
			b.lg.Error("bus: subscriber panic",
				logger.String("subscription", s.id),
				logger.String("event_id", e.ID),
				logger.Any("panic", r))
		}
	}()
	s.handler(e)
}

func (b *Bus) logFor(channel models.ChannelType) (*channelLog, error) {
	if cl, ok := b.logs[channel]; ok {
		return cl, nil
	}
	cl, err := openChannelLog(b.dir, channel)
	if err != nil {
		return nil, err
	}
	b.logs[channel] = cl
	return cl, nil
}

func (b *Bus) logPath(channel models.ChannelType) string {
	return filepath.Join(b.dir, fmt.Sprintf("%s.jsonl", channel))
}

func (b *Bus) bufferFor(channel models.ChannelType) *ring {
	if r, ok := b.buffers[channel]; ok {
		return r
	}
	r := newRing(b.bufSize)
	b.buffers[channel] = r
	return r
}

// ring is a fixed-capacity buffer evicting oldest first.
type ring struct {
	buf  []*models.Event
	head int
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]*models.Event, capacity)}
}

func (r *ring) push(e *models.Event) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[(r.head+r.n)%len(r.buf)] = e
	if r.n < len(r.buf) {
		r.n++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

func (r *ring) len() int { return r.n }

func (r *ring) last(n int) []*models.Event {
	if n > r.n {
		n = r.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]*models.Event, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+r.n-n+i)%len(r.buf)]
	}
	return out
}
