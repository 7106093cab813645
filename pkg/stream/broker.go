package stream

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

const subscriberBuffer = 64

// Transport attaches a subscriber to the external event source for one
// correlation id. Open must not return until the subscription handshake is
// confirmed; it keeps delivering events through deliver until the returned
// detach func is called or the source closes the channel.
type Transport interface {
	Open(ctx context.Context, correlationID string, deliver func(Event)) (detach func(), err error)
}

type subscription struct {
	ch            chan Event
	state         SessionState
	lastEventType string
	detach        func()
}

// Broker fans lifecycle and progress events out to the session waiting on
// them, keyed by correlation id. One subscription per id; exactly one
// terminal event closes it, and events arriving after closure are dropped
// silently.
type Broker struct {
	mu        sync.Mutex
	subs      map[string]*subscription
	transport Transport
	logger    logr.Logger
}

// NewBroker creates a Broker. transport may be nil, in which case events
// only arrive through direct Publish calls (in-process producers, tests).
func NewBroker(transport Transport, logger logr.Logger) *Broker {
	return &Broker{
		subs:      make(map[string]*subscription),
		transport: transport,
		logger:    logger,
	}
}

// Subscribe registers interest in events for the correlation id and returns
// the channel they will be delivered on. The channel is closed after the
// terminal event or on Unsubscribe/CloseAll.
func (b *Broker) Subscribe(correlationID string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.subs[correlationID]; ok {
		return existing.ch
	}
	sub := &subscription{
		ch:    make(chan Event, subscriberBuffer),
		state: StatePending,
	}
	b.subs[correlationID] = sub
	return sub.ch
}

// OpenStream attaches the wire transport for the id. It resolves once the
// transport confirms the handshake. Streaming is best-effort enrichment:
// connection failures are logged, never surfaced to the tool call.
func (b *Broker) OpenStream(ctx context.Context, correlationID string) {
	if b.transport == nil {
		return
	}

	detach, err := b.transport.Open(ctx, correlationID, b.Publish)
	if err != nil {
		b.logger.Error(err, "event stream connection failed, continuing without live progress",
			"correlationId", correlationID)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[correlationID]
	if !ok {
		// Subscriber went away between Subscribe and OpenStream.
		detach()
		return
	}
	sub.detach = detach
	if sub.state == StatePending {
		sub.state = StateOpen
	}
}

// Publish routes an event to the subscriber for its correlation id. Output
// events are forwarded verbatim, in order, with no deduplication. A terminal
// event is delivered and then deterministically closes the subscription.
// Events for unknown or already-closed ids are dropped silently.
func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	sub, ok := b.subs[event.CorrelationID]
	if !ok {
		b.mu.Unlock()
		return
	}

	sub.lastEventType = event.Type
	switch {
	case event.Type == EventConnected:
		if sub.state == StatePending {
			sub.state = StateOpen
		}
	case event.Terminal():
		sub.state = StateClosed
	default:
		sub.state = StateActive
	}

	select {
	case sub.ch <- event:
	default:
		b.logger.Info("subscriber buffer full, dropping event",
			"correlationId", event.CorrelationID, "type", event.Type)
	}

	if event.Terminal() {
		delete(b.subs, event.CorrelationID)
		b.mu.Unlock()
		b.release(sub)
		return
	}
	b.mu.Unlock()
}

// Unsubscribe drops the subscription for the id. The underlying remote
// operation keeps running; only delivery of its output stops.
func (b *Broker) Unsubscribe(correlationID string) {
	b.mu.Lock()
	sub, ok := b.subs[correlationID]
	if ok {
		delete(b.subs, correlationID)
	}
	b.mu.Unlock()
	if ok {
		sub.state = StateClosed
		b.release(sub)
	}
}

// SessionState returns the lifecycle state and last event type recorded for
// the id, with ok=false once the subscription is gone.
func (b *Broker) SessionState(correlationID string) (state SessionState, lastEventType string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[correlationID]
	if !ok {
		return StateClosed, "", false
	}
	return sub.state, sub.lastEventType, true
}

// CloseAll terminates every open subscription. Used at shutdown; per
// subscription errors are swallowed.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for id, sub := range subs {
		b.logger.V(1).Info("closing stream subscription", "correlationId", id)
		b.release(sub)
	}
}

func (b *Broker) release(sub *subscription) {
	if sub.detach != nil {
		sub.detach()
		sub.detach = nil
	}
	close(sub.ch)
}
