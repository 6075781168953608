package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisFabric shares channels between processes through Redis pub/sub.
// Each process holds one subscription connection; frames received on it are
// handed to a local Hub, which fans them out to the sessions of this process.
type RedisFabric struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *Hub
	log    *zerolog.Logger

	mu      sync.Mutex
	refs    map[Channel]int
	pending map[Channel]chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Fabric = (*RedisFabric)(nil)

// NewRedis starts the receive loop on client. The caller keeps ownership of
// client and closes it after Close.
func NewRedis(client *redis.Client, logger *zerolog.Logger) *RedisFabric {
	ctx, cancel := context.WithCancel(context.Background())
	f := &RedisFabric{
		client:  client,
		pubsub:  client.Subscribe(ctx),
		local:   NewHub(),
		log:     logger,
		refs:    make(map[Channel]int),
		pending: make(map[Channel]chan struct{}),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go f.receive(ctx)
	return f
}

// Join subscribes sub locally and, for the first local subscriber, on Redis.
// It returns once Redis has confirmed the subscription.
func (f *RedisFabric) Join(ctx context.Context, ch Channel, sub Subscriber) error {
	if err := f.local.Join(ctx, ch, sub); err != nil {
		return err
	}

	f.mu.Lock()
	f.refs[ch]++
	ready, waiting := f.pending[ch]
	if f.refs[ch] == 1 {
		ready = make(chan struct{})
		waiting = true
		f.pending[ch] = ready
		if err := f.pubsub.Subscribe(ctx, string(ch)); err != nil {
			delete(f.pending, ch)
			f.mu.Unlock()
			_ = f.Leave(ctx, ch, sub)
			return fmt.Errorf("redis subscribe %s: %w", ch, err)
		}
	}
	f.mu.Unlock()

	if !waiting {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		_ = f.Leave(context.WithoutCancel(ctx), ch, sub)
		return fmt.Errorf("redis subscribe %s: %w", ch, ctx.Err())
	case <-f.done:
		return errors.New("fabric closed")
	}
}

// Leave unsubscribes sub locally and drops the Redis subscription once no
// local subscriber remains.
func (f *RedisFabric) Leave(ctx context.Context, ch Channel, sub Subscriber) error {
	if err := f.local.Leave(ctx, ch, sub); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.refs[ch]
	if !ok {
		return nil
	}
	if n > 1 {
		f.refs[ch] = n - 1
		return nil
	}
	delete(f.refs, ch)
	delete(f.pending, ch)
	if err := f.pubsub.Unsubscribe(ctx, string(ch)); err != nil {
		return fmt.Errorf("redis unsubscribe %s: %w", ch, err)
	}
	return nil
}

// Publish sends frame to every process subscribed to ch.
func (f *RedisFabric) Publish(ctx context.Context, ch Channel, frame []byte) error {
	if err := f.client.Publish(ctx, string(ch), frame).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ch, err)
	}
	return nil
}

// Close stops the receive loop and closes the subscription connection.
func (f *RedisFabric) Close() error {
	f.cancel()
	err := f.pubsub.Close()
	<-f.done
	return err
}

func (f *RedisFabric) receive(ctx context.Context) {
	defer close(f.done)

	for {
		msg, err := f.pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			f.log.Warn().Err(err).Msg("redis fabric receive")
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				f.confirm(Channel(m.Channel))
			}
		case *redis.Message:
			_ = f.local.Publish(ctx, Channel(m.Channel), []byte(m.Payload))
		}
	}
}

func (f *RedisFabric) confirm(ch Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ready, ok := f.pending[ch]; ok {
		close(ready)
		delete(f.pending, ch)
	}
}
