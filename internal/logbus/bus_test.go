package logbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutToMultipleSubscribers(t *testing.T) {
	b := New()

	ch1, stop1 := b.Subscribe(7)
	ch2, stop2 := b.Subscribe(7)
	defer stop1()
	defer stop2()

	b.Publish(Event{RunID: 7, Level: LevelInfo, Message: "hello"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		e := <-ch
		assert.EqualValues(t, 7, e.RunID)
		assert.Equal(t, "hello", e.Message)
		assert.False(t, e.Timestamp.IsZero(), "publish stamps events")
	}
}

func TestSubscribersFilterOnRunID(t *testing.T) {
	b := New()

	ch, stop := b.Subscribe(1)
	defer stop()

	b.Publish(Event{RunID: 2, Message: "other run"})
	b.Publish(Event{RunID: 1, Message: "mine"})

	e := <-ch
	assert.Equal(t, "mine", e.Message)
	assert.Empty(t, ch)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New()

	ch, stop := b.Subscribe(1)
	defer stop()

	// Overflow the buffer by one without draining.
	for i := 0; i <= subscriberBuffer; i++ {
		b.Publish(Event{RunID: 1, ProgressCurrent: i})
	}

	e := <-ch
	assert.Equal(t, 1, e.ProgressCurrent, "the oldest event was evicted")

	// Drain and check the newest event survived.
	last := e
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, subscriberBuffer, last.ProgressCurrent)
}

func TestCompleteMarker(t *testing.T) {
	b := New()

	ch, stop := b.Subscribe(3)
	defer stop()

	b.Publish(Event{RunID: 3, Message: "working"})
	b.Complete(3)

	e := <-ch
	assert.False(t, e.Complete)
	e = <-ch
	assert.True(t, e.Complete)
	assert.EqualValues(t, 3, e.RunID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()

	ch, stop := b.Subscribe(1)
	require.Equal(t, 1, b.SubscriberCount())

	stop()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{RunID: 1, Message: "late"})

	// A second stop is a no-op.
	stop()
}
