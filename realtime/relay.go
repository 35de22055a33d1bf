package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type envelope struct {
	Origin string `json:"origin"`
	Event  *Event `json:"event"`
}

// Relay carries events between instances over Redis pub/sub. Events that
// originate on this instance are not delivered twice.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	manager *Manager
	log     *logger.Logger
}

// NewRelay creates a relay bound to manager.
func NewRelay(client *redis.Client, channel string, manager *Manager, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.Discard()
	}
	origin, err := nanoid.New()
	if err != nil {
		origin = channel
	}
	return &Relay{client: client, channel: channel, origin: origin, manager: manager, log: log}
}

// Origin returns this instance's relay id.
func (r *Relay) Origin() string { return r.origin }

// Forward implements Forwarder.
func (r *Relay) Forward(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run consumes relayed events until ctx ends. ready, if non-nil, is closed
// once the subscription is confirmed.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.WithFields(ctx, logrus.Fields{"error": err}).Warn("invalid relay payload")
				continue
			}
			if env.Origin == r.origin || env.Event == nil {
				continue
			}
			r.manager.Deliver(ctx, env.Event)
		}
	}
}
