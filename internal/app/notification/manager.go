// Package notification provides the topic broadcaster pushing state changes
// to connected clients.
package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/infra/metrics"
)

// Topic is an audience of events.
type Topic string

const (
	TopicPlayer Topic = "player" // The player device
	TopicFront  Topic = "front"  // Front-end observers
)

// Event types.
const (
	TypePlaylistEntry = "playlist_entry"
	TypeIdle          = "idle"
	TypeCommand       = "command"
	TypePlayerStatus  = "player_status"
	TypePlayerError   = "player_error"
	TypeKaraoke       = "karaoke"
	TypePlaylist      = "playlist"
)

// Event is a server-stamped notification.
type Event struct {
	Type       string    `json:"type"`
	Data       any       `json:"data,omitempty"`
	Date       time.Time `json:"date"`
	SequenceNo uint64    `json:"sequence_no"`
}

// Subscriber receives events. Deliver must not block: a subscriber that
// cannot keep up reports false and is unsubscribed, since every later
// event would reach it with a gap.
type Subscriber interface {
	Deliver(Event) bool
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id  string
	sub Subscriber
}

// Manager manages topic subscriptions and broadcasting.
type Manager struct {
	mu            sync.Mutex
	subscriptions map[Topic]map[string]*subscription
	sequenceNo    uint64
	now           func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: map[Topic]map[string]*subscription{
			TopicPlayer: {},
			TopicFront:  {},
		},
		now: time.Now,
	}
}

// Subscribe adds a subscriber to a topic and returns the subscription ID.
func (m *Manager) Subscribe(topic Topic, sub Subscriber) string {
	id, _ := m.SubscribeAt(topic, sub)
	return id
}

// SubscribeAt is Subscribe that also returns the sequence number of the last
// event broadcast before the subscription. The subscriber receives exactly
// the events numbered after it.
func (m *Manager) SubscribeAt(topic Topic, sub Subscriber) (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	if m.subscriptions[topic] == nil {
		m.subscriptions[topic] = make(map[string]*subscription)
	}
	m.subscriptions[topic][id] = &subscription{id: id, sub: sub}
	metrics.Subscribers.WithLabelValues(string(topic)).Inc()
	return id, m.sequenceNo
}

// Unsubscribe removes a subscription. Once it returns, the subscriber
// receives no further events.
func (m *Manager) Unsubscribe(topic Topic, subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(topic, subscriptionID)
}

func (m *Manager) remove(topic Topic, subscriptionID string) {
	if _, ok := m.subscriptions[topic][subscriptionID]; !ok {
		return
	}
	delete(m.subscriptions[topic], subscriptionID)
	metrics.Subscribers.WithLabelValues(string(topic)).Dec()
}

// Broadcast sends an event to every subscriber of the topic.
// Broadcasts are serialized so that each subscriber sees events in sequence
// order.
func (m *Manager) Broadcast(topic Topic, eventType string, data any) Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequenceNo++
	ev := Event{
		Type:       eventType,
		Data:       data,
		Date:       m.now(),
		SequenceNo: m.sequenceNo,
	}

	for id, s := range m.subscriptions[topic] {
		if !s.sub.Deliver(ev) {
			zlog.Warn().Msgf("notification: subscriber cannot keep up, unsubscribing: topic=%s type=%s subscription=%s", topic, eventType, s.id)
			m.remove(topic, id)
		}
	}
	metrics.Broadcasts.WithLabelValues(string(topic), eventType).Inc()
	return ev
}

// SubscriberCount returns the number of subscribers of a topic.
func (m *Manager) SubscriberCount(topic Topic) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions[topic])
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, subs := range m.subscriptions {
		metrics.Subscribers.WithLabelValues(string(topic)).Sub(float64(len(subs)))
		m.subscriptions[topic] = make(map[string]*subscription)
	}
}

// Recorder is a Subscriber keeping every event, for tests and tooling.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Deliver records the event.
func (r *Recorder) Deliver(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(eventType string) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}
