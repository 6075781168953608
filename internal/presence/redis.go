package presence

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "pairchat:presence:"
	// memberSeparator cannot occur in a handle.
	memberSeparator = "|"
)

// DefaultLease is how long a Redis entry survives without a refresh.
const DefaultLease = 3 * RefreshInterval

// Redis keeps presence in one sorted set per conversation so every process
// sees the same members. Members are "<handle>|<session>" scored by their
// lease deadline in unix milliseconds. Expired members are pruned on read
// and the whole key expires once its newest lease does, so a process that
// dies without cleaning up leaves nothing behind for long.
type Redis struct {
	client *redis.Client
	lease  time.Duration
	now    func() time.Time
}

var _ Store = (*Redis)(nil)

// NewRedis wraps client with DefaultLease. The caller keeps ownership of
// client.
func NewRedis(client *redis.Client) *Redis {
	return NewRedisWithLease(client, DefaultLease)
}

// NewRedisWithLease wraps client with a custom lease.
func NewRedisWithLease(client *redis.Client, lease time.Duration) *Redis {
	return &Redis{client: client, lease: lease, now: time.Now}
}

func key(conversationID int64) string {
	return keyPrefix + strconv.FormatInt(conversationID, 10)
}

func member(username, sessionID string) string {
	return username + memberSeparator + sessionID
}

func (r *Redis) Add(ctx context.Context, conversationID int64, username, sessionID string) error {
	k := key(conversationID)
	deadline := r.now().Add(r.lease)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, redis.Z{Score: float64(deadline.UnixMilli()), Member: member(username, sessionID)})
		p.PExpire(ctx, k, r.lease)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence add: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, conversationID int64, username, sessionID string) error {
	if err := r.client.ZRem(ctx, key(conversationID), member(username, sessionID)).Err(); err != nil {
		return fmt.Errorf("presence remove: %w", err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context, conversationID int64) ([]string, error) {
	k := key(conversationID)
	var members *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(r.now().UnixMilli(), 10))
		members = p.ZRange(ctx, k, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}

	users := make([]string, 0, len(members.Val()))
	for _, m := range members.Val() {
		username, _, _ := strings.Cut(m, memberSeparator)
		users = append(users, username)
	}
	slices.Sort(users)
	return slices.Compact(users), nil
}

func (r *Redis) Count(ctx context.Context, conversationID int64) (int, error) {
	users, err := r.List(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return len(users), nil
}
