package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/warp/class-booking/enrollment"
)

// RedisNotifier publishes booking events on a Redis pub/sub channel.
// Events go to "<prefix>:<routing key>", e.g. "booking:booking.promoted".
type RedisNotifier struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisOption func(*RedisNotifier)

func WithChannelPrefix(prefix string) RedisOption {
	return func(n *RedisNotifier) { n.prefix = strings.Trim(prefix, ":") }
}

func NewRedisNotifier(rdb redis.UniversalClient, opts ...RedisOption) *RedisNotifier {
	n := &RedisNotifier{rdb: rdb, prefix: "booking"}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *RedisNotifier) NotifyPromotion(ctx context.Context, userID enrollment.UserID, classID enrollment.ClassID) error {
	return n.publish(ctx, newEvent(RKBookingPromoted, userID, classID))
}

func (n *RedisNotifier) NotifyBooked(ctx context.Context, userID enrollment.UserID, classID enrollment.ClassID) error {
	return n.publish(ctx, newEvent(RKBookingConfirmed, userID, classID))
}

// Channel returns the channel a routing key is published on.
func (n *RedisNotifier) Channel(key string) string {
	if n.prefix == "" {
		return key
	}
	return n.prefix + ":" + key
}

func (n *RedisNotifier) publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.Channel(ev.Type), b).Err()
}
