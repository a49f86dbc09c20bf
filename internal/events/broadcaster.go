// Package events fans progress events out to every connected observer.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dammysspp/YT-SP/internal/models"
)

// DefaultBuffer is the per-client event buffer used when none is configured.
const DefaultBuffer = 100

// Client is one subscribed observer. Events are read from Events() until the
// channel is closed by Unsubscribe.
type Client struct {
	ID string
	ch chan models.Event
}

// Events returns the client's receive channel.
func (c *Client) Events() <-chan models.Event {
	return c.ch
}

// Broadcaster delivers each published event to all subscribed clients.
// Publish never blocks: a client whose buffer is full loses its oldest
// pending event, never anyone else's.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int
}

// New creates a broadcaster with the given per-client buffer size.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		clients: make(map[string]*Client),
		buffer:  buffer,
	}
}

// Subscribe registers a new observer. The synthetic "connected" event is
// queued before the client is visible to publishers, so it is always the
// first event the observer reads.
func (b *Broadcaster) Subscribe() *Client {
	c := &Client{
		ID: uuid.NewString(),
		ch: make(chan models.Event, b.buffer),
	}
	c.ch <- models.Event{Type: "connected", ClientID: c.ID}

	b.mu.Lock()
	b.clients[c.ID] = c
	b.mu.Unlock()
	return c
}

// Unsubscribe removes the observer and closes its channel.
func (b *Broadcaster) Unsubscribe(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c.ID]; !ok {
		return
	}
	delete(b.clients, c.ID)
	close(c.ch)
}

// Publish stamps the event and delivers it to every current subscriber.
// Slow or absent readers only ever drop their own oldest events.
func (b *Broadcaster) Publish(ev models.Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().Format(time.RFC3339)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		// Buffer full: drop the oldest pending event to make room. Another
		// publisher can steal the freed slot, so keep dropping until this
		// event lands; it is never the one discarded.
		for {
			select {
			case c.ch <- ev:
			default:
				select {
				case <-c.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// ClientCount returns the number of connected observers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
