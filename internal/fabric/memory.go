package fabric

import (
	"context"
	"sync"
)

// room groups the subscribers of one channel. Its mutex serializes
// publishes so that every subscriber observes the same order.
type room struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

func newRoom() *room {
	return &room{subs: make(map[string]Subscriber)}
}

func (r *room) add(sub Subscriber) {
	r.mu.Lock()
	r.subs[sub.SubscriberID()] = sub
	r.mu.Unlock()
}

// remove deletes sub and reports whether the room is now empty.
func (r *room) remove(sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, sub.SubscriberID())
	return len(r.subs) == 0
}

func (r *room) broadcast(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		sub.Deliver(frame)
	}
}

func (r *room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Hub is an in-process Fabric.
type Hub struct {
	mu    sync.Mutex
	rooms map[Channel]*room
}

var _ Fabric = (*Hub)(nil)

// NewHub creates an empty in-process fabric.
func NewHub() *Hub {
	return &Hub{rooms: make(map[Channel]*room)}
}

// Join subscribes sub to ch.
func (h *Hub) Join(_ context.Context, ch Channel, sub Subscriber) error {
	h.mu.Lock()
	r, ok := h.rooms[ch]
	if !ok {
		r = newRoom()
		h.rooms[ch] = r
	}
	// Added under the hub lock so an emptying Leave cannot drop the room
	// between lookup and insert.
	r.add(sub)
	h.mu.Unlock()
	return nil
}

// Leave unsubscribes sub from ch and drops the channel once empty.
func (h *Hub) Leave(_ context.Context, ch Channel, sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[ch]
	if !ok {
		return nil
	}
	if r.remove(sub) {
		delete(h.rooms, ch)
	}
	return nil
}

// Publish delivers frame to every current subscriber of ch.
func (h *Hub) Publish(_ context.Context, ch Channel, frame []byte) error {
	h.mu.Lock()
	r, ok := h.rooms[ch]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	r.broadcast(frame)
	return nil
}

// Subscribers returns the number of subscribers of ch.
func (h *Hub) Subscribers(ch Channel) int {
	h.mu.Lock()
	r, ok := h.rooms[ch]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return r.size()
}

// Channels returns the number of channels with at least one subscriber.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close is a no-op for the in-process fabric.
func (h *Hub) Close() error {
	return nil
}
