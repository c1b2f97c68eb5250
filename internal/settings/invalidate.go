package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/models"
)

// Invalidation announces that a cached setting changed on some instance.
type Invalidation struct {
	Key    models.SettingKey `json:"key"`
	Scope  models.Scope      `json:"scope"`
	Origin string            `json:"origin"`
	At     time.Time         `json:"at"`
}

// RedisInvalidator fans cache invalidations out to every instance through a
// Redis pub/sub channel. Messages published by this instance are ignored on
// receipt since the local cache was already invalidated.
type RedisInvalidator struct {
	log        *logger.Logger
	client     *redis.Client
	channel    string
	origin     string
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

// DialRedis connects to Redis and verifies the connection with a ping.
func DialRedis(ctx context.Context, address, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("settings: redis ping %s: %w", address, err)
	}
	return rdb, nil
}

// NewRedisInvalidator creates an invalidator on channel.
func NewRedisInvalidator(log *logger.Logger, client *redis.Client, channel string) *RedisInvalidator {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisInvalidator{
		log:     log.With("component", "RedisInvalidator"),
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

// Origin identifies this instance in published messages.
func (ri *RedisInvalidator) Origin() string {
	return ri.origin
}

// Publish sends ev to every subscriber.
func (ri *RedisInvalidator) Publish(ctx context.Context, ev Invalidation) error {
	payload, err := ri.encode(ev)
	if err != nil {
		return err
	}
	if err := ri.client.Publish(ctx, ri.channel, payload).Err(); err != nil {
		return fmt.Errorf("settings: publish invalidation: %w", err)
	}
	return nil
}

// Start subscribes to the channel and calls onInvalidate for every message
// from another instance until Stop is called or ctx ends.
func (ri *RedisInvalidator) Start(ctx context.Context, onInvalidate func(Invalidation)) error {
	ctx, cancel := context.WithCancel(ctx)
	ri.mu.Lock()
	ri.cancelFunc = cancel
	ri.mu.Unlock()

	pubsub := ri.client.Subscribe(ctx, ri.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		return fmt.Errorf("settings: subscribe %s: %w", ri.channel, err)
	}
	ri.log.Info("subscribed to invalidations", "channel", ri.channel)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				ri.log.Debug("invalidation subscriber stopping")
				return
			case msg, ok := <-ch:
				if !ok {
					ri.log.Debug("invalidation channel closed")
					return
				}
				ri.handle(msg.Payload, onInvalidate)
			}
		}
	}()
	return nil
}

// Stop ends the subscription started by Start.
func (ri *RedisInvalidator) Stop() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if ri.cancelFunc != nil {
		ri.cancelFunc()
		ri.cancelFunc = nil
	}
}

func (ri *RedisInvalidator) handle(payload string, onInvalidate func(Invalidation)) {
	ev, err := decodeInvalidation(payload)
	if err != nil {
		ri.log.Warn("failed to decode invalidation", "error", err)
		return
	}
	if ev.Origin == ri.origin {
		return
	}
	onInvalidate(ev)
}

func (ri *RedisInvalidator) encode(ev Invalidation) (string, error) {
	ev.Origin = ri.origin
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("settings: encode invalidation: %w", err)
	}
	return string(raw), nil
}

func decodeInvalidation(payload string) (Invalidation, error) {
	var ev Invalidation
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return ev, nil
}
