// Package notify provides the change-event surface emitted by the history
// components.
//
// Delivery is synchronous and fire-and-forget: Emit calls every matching
// observer in turn before returning. An observer that panics is logged and
// skipped; the remaining observers still run.
//
// Hold and Release let a caller buffer emissions around a multi-step
// operation so observers only see the final state.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Topic names an event stream.
type Topic string

// Topics emitted by the history components.
const (
	TopicHistoryChanged Topic = "history:changed"
	TopicActionUpdated  Topic = "action:updated"
)

// HistoryChanged is the payload of TopicHistoryChanged.
type HistoryChanged struct {
	CanUndo bool
	CanRedo bool
	Count   int
}

// ActionUpdated is the payload of TopicActionUpdated.
type ActionUpdated struct {
	ID      string
	Changes []string
}

// Event is a single emission.
type Event struct {
	Topic   Topic
	Payload any
}

// Observer is called when an event is emitted.
type Observer func(event Event)

// Emitter is the narrow interface components emit through.
type Emitter interface {
	Emit(event Event)
}

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	topic    Topic
	notifier *Notifier
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// Topic returns the subscribed topic, empty for global subscriptions.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Notifier manages event subscriptions.
type Notifier struct {
	mu sync.RWMutex

	// Global observers that receive all events
	globalObservers map[uint64]Observer

	// Topic-specific observers
	topicObservers map[Topic]map[uint64]Observer

	nextID uint64

	// Buffering state for Hold/Release
	holdDepth int
	pending   []Event

	closed bool
	logger *zap.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used to report observer panics.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		globalObservers: make(map[uint64]Observer),
		topicObservers:  make(map[Topic]map[uint64]Observer),
		logger:          zap.NewNop(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Subscribe registers an observer for all events.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.globalObservers[id] = observer

	return &Subscription{id: id, notifier: n}
}

// SubscribeTopic registers an observer for one topic.
// Subscribing to a prefix such as "history" also receives "history:changed".
func (n *Notifier) SubscribeTopic(topic Topic, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	if n.topicObservers[topic] == nil {
		n.topicObservers[topic] = make(map[uint64]Observer)
	}
	n.topicObservers[topic][id] = observer

	return &Subscription{id: id, topic: topic, notifier: n}
}

// Emit delivers an event to all matching observers, or buffers it while
// the notifier is held.
func (n *Notifier) Emit(event Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	if n.holdDepth > 0 {
		n.pending = append(n.pending, event)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	n.deliver(event)
}

// HistoryChangedEvent builds a history:changed event.
func HistoryChangedEvent(canUndo, canRedo bool, count int) Event {
	return Event{
		Topic:   TopicHistoryChanged,
		Payload: HistoryChanged{CanUndo: canUndo, CanRedo: canRedo, Count: count},
	}
}

// ActionUpdatedEvent builds an action:updated event.
func ActionUpdatedEvent(id string, changes []string) Event {
	return Event{
		Topic:   TopicActionUpdated,
		Payload: ActionUpdated{ID: id, Changes: changes},
	}
}

// Hold starts buffering emissions. Holds nest; events are delivered when
// the outermost hold is released.
func (n *Notifier) Hold() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.holdDepth++
}

// Release ends a hold. When the outermost hold is released the buffered
// events are delivered in order, with runs of consecutive history:changed
// events collapsed to the last one.
func (n *Notifier) Release() {
	n.mu.Lock()
	if n.holdDepth == 0 {
		n.mu.Unlock()
		return
	}
	n.holdDepth--
	if n.holdDepth > 0 {
		n.mu.Unlock()
		return
	}
	events := coalesce(n.pending)
	n.pending = nil
	n.mu.Unlock()

	for _, event := range events {
		n.deliver(event)
	}
}

// Held reports whether emissions are currently buffered.
func (n *Notifier) Held() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.holdDepth > 0
}

// Close drops all subscriptions and buffered events. Emit after Close is a
// no-op. It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.pending = nil
	n.globalObservers = make(map[uint64]Observer)
	n.topicObservers = make(map[Topic]map[uint64]Observer)
}

// unsubscribe removes an observer by ID.
func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.globalObservers, id)

	for topic, observers := range n.topicObservers {
		delete(observers, id)
		if len(observers) == 0 {
			delete(n.topicObservers, topic)
		}
	}
}

// deliver sends an event to all matching observers in subscription order.
func (n *Notifier) deliver(event Event) {
	n.mu.RLock()

	matched := make(map[uint64]Observer)
	for id, obs := range n.globalObservers {
		matched[id] = obs
	}
	for topic, topicObs := range n.topicObservers {
		if topic == event.Topic || isParentTopic(topic, event.Topic) {
			for id, obs := range topicObs {
				matched[id] = obs
			}
		}
	}

	n.mu.RUnlock()

	ids := make([]uint64, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Call observers outside the lock
	for _, id := range ids {
		n.safeCall(id, matched[id], event)
	}
}

func (n *Notifier) safeCall(id uint64, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("observer panicked",
				zap.Uint64("subscription", id),
				zap.String("topic", string(event.Topic)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	obs(event)
}

// isParentTopic checks if parent is a prefix topic of child.
// e.g., "history" is parent of "history:changed".
func isParentTopic(parent, child Topic) bool {
	if parent == "" {
		return true
	}
	return strings.HasPrefix(string(child), string(parent)+":")
}

// coalesce collapses runs of consecutive history:changed events.
func coalesce(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Topic == TopicHistoryChanged && len(out) > 0 && out[len(out)-1].Topic == TopicHistoryChanged {
			out[len(out)-1] = e
			continue
		}
		out = append(out, e)
	}
	return out
}
