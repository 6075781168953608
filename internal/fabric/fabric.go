// Package fabric is the publish/subscribe substrate sessions use to reach
// each other. Frames travel as already-encoded JSON so every backend can
// forward them verbatim.
package fabric

import (
	"context"

	"github.com/vovakirdan/pairchat/internal/store"
)

// Channel names a publish/subscribe route.
type Channel string

const notificationSuffix = "__notifications"

// ChatChannel is the channel shared by the sessions of one conversation.
func ChatChannel(key store.ConversationKey) Channel {
	return Channel(key)
}

// NotificationChannel is the private channel of one user.
func NotificationChannel(username string) Channel {
	return Channel(username + notificationSuffix)
}

// Subscriber receives frames published to the channels it joined.
// Deliver must not block.
type Subscriber interface {
	SubscriberID() string
	Deliver(frame []byte)
}

// Fabric routes published frames to every current subscriber of a channel.
// Frames published to the same channel reach each subscriber in publish order.
type Fabric interface {
	// Join subscribes sub to ch. Once Join returns, sub receives every frame
	// subsequently published to ch.
	Join(ctx context.Context, ch Channel, sub Subscriber) error

	// Leave unsubscribes sub from ch. Leaving a channel that sub never
	// joined is a no-op.
	Leave(ctx context.Context, ch Channel, sub Subscriber) error

	// Publish fans frame out to all subscribers of ch.
	Publish(ctx context.Context, ch Channel, frame []byte) error

	// Close releases backend resources.
	Close() error
}
