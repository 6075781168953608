package core

import (
	"errors"
	"sync"

	"github.com/vovakirdan/pairchat/internal/store"
)

var (
	// ErrSlowConsumer stops a client whose outbound queue is full.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrClientClosed is returned when sending to a stopped client.
	ErrClientClosed = errors.New("client closed")
)

// DefaultBuffer is the outbound queue size used when none is configured.
const DefaultBuffer = 64

// Client is one connected socket as seen by the core layer. Every frame for
// the peer, direct or fanned out, goes through a single bounded queue so
// the writer sees them in enqueue order.
type Client struct {
	ID   string
	User *store.User

	out  chan []byte
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewClient constructs a client for an authenticated user.
func NewClient(id string, user *store.User, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Client{
		ID:   id,
		User: user,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// SubscriberID implements fabric.Subscriber.
func (c *Client) SubscriberID() string {
	return c.ID
}

// Deliver implements fabric.Subscriber. It never blocks; a full queue stops
// the client.
func (c *Client) Deliver(frame []byte) {
	_ = c.Send(frame)
}

// Send queues a frame for the peer.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.out <- frame:
		return nil
	default:
		c.Stop(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

// Outbound returns the queue drained by the socket writer.
func (c *Client) Outbound() <-chan []byte {
	return c.out
}

// Done is closed once the client is stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Stop marks the client as finished. Only the first reason is kept.
func (c *Client) Stop(reason error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// Err returns the reason passed to the first Stop call.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
