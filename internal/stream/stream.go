// Package stream fans audit events out to live subscribers, backing the
// portal's activity feed.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event is a single activity item pushed to subscribers.
type Event struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	At             time.Time      `json:"at"`
}

type subscriber struct {
	ch    chan Event
	orgID string
}

// Hub is an in-process fan-out of events. Publishing never blocks: a
// subscriber whose buffer is full misses events rather than slowing the
// writer.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	buf  int
}

// NewHub returns a Hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		buf:  buffer,
	}
}

// Subscribe returns a channel of events scoped to orgID. The subscription
// ends when ctx is done; the channel is closed at that point.
func (h *Hub) Subscribe(ctx context.Context, orgID string) <-chan Event {
	sub := &subscriber{
		ch:    make(chan Event, h.buf),
		orgID: orgID,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch
}

// Publish delivers the event to every subscriber in its organization.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.orgID != e.OrganizationID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Slow consumer; drop rather than block the publisher.
		}
	}
}

// Subscribers reports the current subscription count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
