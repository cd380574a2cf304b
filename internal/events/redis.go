package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisSink mirrors every push event onto a Redis channel so other services
// on the host can follow tag traffic without holding a websocket.
type RedisSink struct {
	log     *logrus.Entry
	client  *redis.Client
	channel string
}

func NewRedisSink(log *logrus.Entry, addr, channel string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{"addr": addr, "channel": channel}).Info("redis event sink enabled")
	return &RedisSink{log: log, client: client, channel: channel}, nil
}

func (s *RedisSink) Publish(event string, payload interface{}) {
	body, err := json.Marshal(wsMessage{Event: event, Data: payload})
	if err != nil {
		s.log.WithError(err).Error("marshal redis event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		s.log.WithError(err).Warn("redis publish failed")
	}
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
