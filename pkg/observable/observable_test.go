package observable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

func TestGetReturnsCurrentValue(t *testing.T) {
	v := New(42)
	assert.Equal(t, 42, v.Get())

	v.Set(7)
	assert.Equal(t, 7, v.Get())
}

func TestSubscribeReceivesCurrentValueFirst(t *testing.T) {
	v := New("initial")
	ch, cancel := v.Subscribe()
	defer cancel()

	assert.Equal(t, "initial", receive(t, ch))
}

func TestSetNotifiesSubscribers(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	defer cancel()
	receive(t, ch)

	v.Set(1)
	assert.Equal(t, 1, receive(t, ch))
}

func TestSlowSubscriberSeesLatestValue(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	// Nothing consumed the initial value; intermediate sets are replaced.
	v.Set(1)
	v.Set(2)
	v.Set(3)

	assert.Equal(t, 3, receive(t, ch))
}

func TestSetNeverBlocksOnSlowSubscriber(t *testing.T) {
	v := New(0)
	_, cancel := v.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			v.Set(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Set blocked on an unread subscriber")
	}
}

func TestCancelClosesChannelAndStopsDelivery(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	receive(t, ch)

	cancel()
	cancel() // safe to call again

	_, ok := <-ch
	assert.False(t, ok)

	// Further sets still work with no subscriber registered.
	v.Set(9)
	assert.Equal(t, 9, v.Get())
}

func TestMultipleSubscribers(t *testing.T) {
	v := New("a")
	ch1, cancel1 := v.Subscribe()
	defer cancel1()
	ch2, cancel2 := v.Subscribe()
	defer cancel2()

	require.Equal(t, "a", receive(t, ch1))
	require.Equal(t, "a", receive(t, ch2))

	v.Set("b")
	assert.Equal(t, "b", receive(t, ch1))
	assert.Equal(t, "b", receive(t, ch2))
}
