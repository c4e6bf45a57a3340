package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/meitarbe/cognetivy/internal/model"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// Broker fans out appended run events to SSE subscribers. Observe is
// registered as a storage.EventObserver, so every durable append from this
// process reaches every interested subscriber.
type Broker struct {
	logger *slog.Logger

	mu sync.RWMutex
	// subscribers maps each channel to its run filter ("" means all runs).
	subscribers map[chan []byte]string
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]string),
	}
}

// streamedEvent is the SSE data payload for one appended event.
type streamedEvent struct {
	RunID string      `json:"run_id"`
	Event model.Event `json:"event"`
}

// Observe formats an appended event and broadcasts it. Its signature matches
// storage.EventObserver.
func (b *Broker) Observe(_ context.Context, runID string, ev model.Event) {
	data, err := json.Marshal(streamedEvent{RunID: runID, Event: ev})
	if err != nil {
		b.logger.Warn("broker: marshal event", "run_id", runID, "error", err)
		return
	}
	b.broadcast(runID, formatSSE(string(ev.Type), string(data)))
}

// Subscribe returns a channel that receives SSE-formatted events for runID,
// or for every run when runID is empty. The caller must call Unsubscribe
// when done.
func (b *Broker) Subscribe(runID string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = runID
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

// broadcast sends an event to every subscriber whose filter matches runID.
// Subscribers with a full buffer miss the event rather than block the
// appending caller.
func (b *Broker) broadcast(runID string, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if filter != "" && filter != runID {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Debug("broker: subscriber buffer full, dropping event", "run_id", runID)
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
