package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeEscalated, Data: 7})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		assert.Equal(t, TypeEscalated, ev.Type)
		assert.Equal(t, 7, ev.Data)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	assert.Equal(t, "a", (<-ch).Type)
	assert.EqualValues(t, 1, b.Dropped())
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: "after"})
	assert.Zero(t, b.Dropped())
}
