package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"chatwarden/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	moderatorChannelPrefix = "notifications:moderator:"
	broadcastChannel       = "notifications:broadcast"
)

// ErrNoRedis is returned by Send when the notifier has no Redis client.
var ErrNoRedis = errors.New("notifier: redis not configured")

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishModerator sends a raw payload to a moderator's channel.
func (n *Notifier) PublishModerator(ctx context.Context, moderatorID int64, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ModeratorChannel(moderatorID), payload).Err()
}

// PublishBroadcast sends a notification payload to all connected moderators.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, broadcastChannel, payload).Err()
}

// Send implements Transport over Redis pub/sub. Publishing with no subscriber
// still counts as delivered; the moderator catches up through the API.
func (n *Notifier) Send(ctx context.Context, moderatorID int64, payload Payload) error {
	if n.rdb == nil {
		return ErrNoRedis
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, ModeratorChannel(moderatorID), body).Err()
}

// StartPatternSubscriber subscribes to moderator and broadcast channels and calls
// onMessage for each incoming message until ctx is cancelled.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, moderatorChannelPrefix+"*", broadcastChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.L().Error("panic in notification subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// ModeratorChannel derives the Redis channel name for a moderator.
func ModeratorChannel(moderatorID int64) string {
	return moderatorChannelPrefix + strconv.FormatInt(moderatorID, 10)
}

// parseModeratorChannel is the inverse of ModeratorChannel.
func parseModeratorChannel(channel string) (int64, bool) {
	rest, ok := strings.CutPrefix(channel, moderatorChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
