package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/evauthz"
)

const unknownBadgeChannel = "evauthz.unknown-badge"

// UnknownBadgeMessage is published for every provisioned badge.
type UnknownBadgeMessage struct {
	TenantID  string    `json:"tenant_id"`
	StationID string    `json:"station_id,omitempty"`
	TagID     string    `json:"tag_id"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}

// RedisNotifier publishes unknown-badge notices on a Redis channel for the
// notification service to deliver.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = unknownBadgeChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) NotifyUnknownBadge(ctx context.Context, station *evauthz.ChargingStation, tagID string, user *evauthz.User) error {
	msg := UnknownBadgeMessage{TagID: tagID, At: time.Now().UTC()}
	if station != nil {
		msg.StationID = station.ID
		msg.TenantID = station.TenantID
	}
	if user != nil {
		msg.UserID = user.ID
		msg.TenantID = user.TenantID
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, raw).Err()
}

// Listen delivers published notices to fn until ctx is done.
func (n *RedisNotifier) Listen(ctx context.Context, fn func(UnknownBadgeMessage)) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg UnknownBadgeMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil {
					fn(msg)
				}
			}
		}
	}()
	return nil
}
