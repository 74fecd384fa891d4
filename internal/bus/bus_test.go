package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, "chat.moonlit-grove")
	require.NoError(t, err, "expected subscribe to succeed")

	payloads := [][]byte{
		[]byte(`{"type":"chat","message":"one"}`),
		[]byte(`{"type":"chat","message":"two"}`),
		[]byte(`{"type":"chat","message":"three"}`),
	}
	for _, p := range payloads {
		require.NoError(t, b.Publish(ctx, "chat.moonlit-grove", p))
	}

	// events arrive in publish order
	for i, want := range payloads {
		select {
		case got := <-ch:
			assert.Equal(t, want, got, "expected event %d in publish order", i)
		default:
			t.Fatalf("expected event %d to be delivered", i)
		}
	}
}

func TestMemoryBusTopicIsolation(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	grove, err := b.Subscribe(ctx, "chat.moonlit-grove")
	require.NoError(t, err)
	hollow, err := b.Subscribe(ctx, "chat.elder-hollow")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "chat.moonlit-grove", []byte("hello")))

	assert.Len(t, grove, 1, "expected delivery on the published topic")
	assert.Empty(t, hollow, "expected no delivery on other topics")
}

func TestMemoryBusDuplicateSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "chat.moonlit-grove")
	require.NoError(t, err)

	_, err = b.Subscribe(ctx, "chat.moonlit-grove")
	assert.Error(t, err, "expected duplicate subscribe to fail")
}

func TestMemoryBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, "chat.moonlit-grove")
	require.NoError(t, err)

	require.NoError(t, b.Unsubscribe("chat.moonlit-grove"))

	_, open := <-ch
	assert.False(t, open, "expected delivery channel to close on unsubscribe")

	// publishing to a topic with no subscriber is a no-op
	assert.NoError(t, b.Publish(ctx, "chat.moonlit-grove", []byte("late")))
}

func TestMemoryBusPublishAfterClose(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, b.Close())

	err := b.Publish(ctx, "chat.moonlit-grove", []byte("x"))
	assert.Error(t, err, "expected publish on a closed bus to fail loudly")
}
