package bus

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus for single-process deployments and
// tests. It honors the same contract as RedisBus: per-topic delivery in
// publish order, one subscription per topic per process.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]chan []byte
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]chan []byte),
	}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	ch, ok := b.topics[topic]
	if !ok {
		// no local subscriber; nothing to deliver
		return nil
	}

	select {
	case ch <- payload:
	default:
		return fmt.Errorf("subscriber buffer full for %q", topic)
	}

	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if _, ok := b.topics[topic]; ok {
		return nil, fmt.Errorf("already subscribed to %q", topic)
	}

	ch := make(chan []byte, subscriberBuffer)
	b.topics[topic] = ch

	return ch, nil
}

func (b *MemoryBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.topics[topic]; ok {
		delete(b.topics, topic)
		close(ch)
	}

	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, ch := range b.topics {
		delete(b.topics, topic)
		close(ch)
	}
	b.closed = true

	return nil
}
