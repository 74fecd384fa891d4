package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Bus is the cross-process publish/subscribe fabric. Topics are named
// per room. Publish delivers the payload to every subscribed process,
// including the publisher's own subscription; delivery is asynchronous
// and not durable across bus restarts.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Unsubscribe(topic string) error
	Close() error
}

// subscriberBuffer bounds the per-topic delivery channel. A slow local
// fan-out drops delivery rather than stalling the bus dispatcher.
const subscriberBuffer = 256

type RedisBus struct {
	rdb    *redis.Client
	mu     sync.Mutex
	topics map[string]*redis.PubSub
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{
		rdb:    rdb,
		topics: make(map[string]*redis.PubSub),
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", topic, err)
	}

	return nil
}

// Subscribe opens one pub/sub subscription for the topic. The returned
// channel closes on Unsubscribe. At most one subscription per topic is
// held per process; the caller serializes Subscribe/Unsubscribe.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[topic]; ok {
		return nil, fmt.Errorf("already subscribed to %q", topic)
	}

	pubsub := b.rdb.Subscribe(ctx, topic)
	// wait for the subscription to be confirmed so events published
	// immediately after joining are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %q: %w", topic, err)
	}

	b.topics[topic] = pubsub

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()

	return out, nil
}

func (b *RedisBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pubsub, ok := b.topics[topic]
	if !ok {
		return nil
	}

	delete(b.topics, topic)
	return pubsub.Close()
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for topic, pubsub := range b.topics {
		if cerr := pubsub.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close subscription %q: %w", topic, cerr)
		}
		delete(b.topics, topic)
	}

	return err
}
