package server

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/telemetry"
)

// Broker fans out flow ledger events to websocket subscribers.
// Slow subscribers drop events rather than blocking the collector.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewBroker creates a broker. Wire it to the collector with
// collector.OnEvent(broker.Publish).
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan []byte]struct{})}
}

// Publish serializes a flow event and broadcasts it.
func (b *Broker) Publish(ev telemetry.FlowEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("broker: marshal flow event")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- data:
		default:
			// Subscriber buffer full; drop rather than block.
		}
	}
}

// Subscribe returns a channel of JSON-encoded flow events.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast path.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// SubscriberCount reports active live feed connections.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
