// Package events carries the panel's outbound push events from the reader
// pipeline to whoever listens: browser websockets, and optionally Redis
// pub/sub and MQTT.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names on the push channel.
const (
	EventTagDetected  = "tag_detected"
	EventInventoryEnd = "inventory_end"
	EventStatus       = "status"
)

// TagDetected is emitted once per raw sighting, independent of aggregation.
type TagDetected struct {
	EPC       string `json:"epc"`
	Antenna   int    `json:"antenna"`
	RSSI      int    `json:"rssi"`
	Timestamp string `json:"timestamp"`
}

// InventoryEnd is emitted when the inventory loop terminates for any
// reason: explicit stop, forced stop, or fatal error.
type InventoryEnd struct {
	Reason string `json:"reason"`
}

// StatusNotice is a free-form connectivity or state notice.
type StatusNotice struct {
	Message string `json:"message"`
}

// Sink delivers one event to one backend. Publish must not block the
// caller for long; sinks buffer or drop on their own.
type Sink interface {
	Publish(event string, payload interface{})
	Close() error
}

// Broker fans events out to all registered sinks.
type Broker struct {
	log *logrus.Entry

	mu    sync.RWMutex
	sinks []Sink
}

func NewBroker(log *logrus.Entry) *Broker {
	return &Broker{log: log}
}

// Attach registers a sink. Nil sinks are ignored.
func (b *Broker) Attach(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish delivers the event to every sink.
func (b *Broker) Publish(event string, payload interface{}) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(event, payload)
	}
}

// Close closes all sinks.
func (b *Broker) Close() error {
	b.mu.Lock()
	sinks := b.sinks
	b.sinks = nil
	b.mu.Unlock()

	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
