package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// mailboxSize bounds each subscriber's event buffer. Metric events beyond
// it are dropped for that subscriber; reliable events wait for room.
const mailboxSize = 256

// Subscription is one consumer's attachment to the hub. Events carries
// frames in publish order; Done is closed when the subscription is
// detached.
type Subscription struct {
	id      string
	events  chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped reports how many Metric events this subscriber missed because
// its mailbox was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) detach() {
	s.once.Do(func() { close(s.done) })
}

// Hub broadcasts run events to every attached subscriber. Metric events
// are best-effort per subscriber; authentication and terminal events are
// delivered to every subscriber still attached at publish time. There is
// no replay: a late subscriber only sees events published after it
// attached.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe attaches a new consumer. The first event on the returned
// subscription is always Connected carrying the subscriber id.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		events: make(chan Event, mailboxSize),
		done:   make(chan struct{}),
	}
	sub.events <- Event{Name: EventConnected, Data: Welcome{SubscriberID: sub.id}}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe detaches a consumer. Safe to call more than once; a
// detached subscriber never blocks a publish.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.detach()
	if dropped := sub.Dropped(); dropped > 0 {
		h.logger.WithFields(logrus.Fields{
			"subscriber": sub.id,
			"dropped":    dropped,
		}).Debug("stream subscriber detached with dropped metric events")
	}
}

func (h *Hub) SubscribersCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Metric fans a sample out to all subscribers without ever blocking the
// caller: a full mailbox drops the sample for that subscriber only.
func (h *Hub) Metric(sample Sample) {
	ev := Event{Name: EventMetricReceived, Data: sample}
	for _, sub := range h.snapshot() {
		select {
		case sub.events <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// publishReliable waits for room in each mailbox so no attached
// subscriber misses the event. A subscriber detached mid-wait releases
// the publisher immediately.
func (h *Hub) publishReliable(ev Event) {
	for _, sub := range h.snapshot() {
		select {
		case sub.events <- ev:
		case <-sub.done:
		}
	}
}

func (h *Hub) AuthStarted(runToken string) {
	h.publishReliable(Event{Name: EventAuthenticationStarted, Data: AuthStatus{RunToken: runToken}})
}

func (h *Hub) AuthSucceeded(runToken string) {
	h.publishReliable(Event{Name: EventAuthenticationSuccess, Data: AuthStatus{RunToken: runToken}})
}

func (h *Hub) AuthFailed(runToken string, err error) {
	h.publishReliable(Event{Name: EventAuthenticationFailed, Data: AuthError{RunToken: runToken, Error: err.Error()}})
}

// Completed publishes the run's final aggregate. Callers must publish it
// only after every Metric for the run has been enqueued.
func (h *Hub) Completed(result Result) {
	h.publishReliable(Event{Name: EventTestCompleted, Data: result})
}

func (h *Hub) RunFailed(runToken string, err error) {
	h.publishReliable(Event{Name: EventTestError, Data: RunError{RunToken: runToken, Error: err.Error()}})
}
