package asciicall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFlag_SetAndGet(t *testing.T) {
	var flag = NewWatchFlag(false)

	assert.False(t, flag.Get())

	flag.Set(true)
	assert.True(t, flag.Get())

	flag.Set(false)
	assert.False(t, flag.Get())
}

func TestWatchFlag_ChangedFiresOnTransition(t *testing.T) {
	var flag = NewWatchFlag(false)
	var changed = flag.Changed()

	flag.Set(true)

	select {
	case <-changed:
	default:
		t.Fatal("transition did not close the change channel")
	}
}

func TestWatchFlag_NoOpSetDoesNotFire(t *testing.T) {
	var flag = NewWatchFlag(true)
	var changed = flag.Changed()

	flag.Set(true)

	select {
	case <-changed:
		t.Fatal("redundant set closed the change channel")
	default:
	}
}

func TestWatchFlag_AwaitTrue(t *testing.T) {
	var flag = NewWatchFlag(false)
	var cancel = make(chan struct{})

	var result = make(chan bool, 1)
	go func() {
		result <- flag.AwaitTrue(cancel)
	}()

	time.Sleep(10 * time.Millisecond)
	flag.Set(true)

	select {
	case v := <-result:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("AwaitTrue never woke up")
	}
}

func TestWatchFlag_AwaitTrueCancelled(t *testing.T) {
	var flag = NewWatchFlag(false)
	var cancel = make(chan struct{})

	var result = make(chan bool, 1)
	go func() {
		result <- flag.AwaitTrue(cancel)
	}()

	close(cancel)

	select {
	case v := <-result:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("AwaitTrue ignored cancellation")
	}
}

// When the channel is full the oldest frame goes, not the newest.
func TestPublishDropOldest(t *testing.T) {
	var ch = make(chan *AsciiFrame, 2)

	var f1, _ = NewAsciiFrame(1, 1, '1')
	var f2, _ = NewAsciiFrame(1, 1, '2')
	var f3, _ = NewAsciiFrame(1, 1, '3')

	PublishDropOldest(ch, f1)
	PublishDropOldest(ch, f2)
	PublishDropOldest(ch, f3)

	require.Len(t, ch, 2)
	assert.Equal(t, byte('2'), (<-ch).Cell(0, 0))
	assert.Equal(t, byte('3'), (<-ch).Cell(0, 0))
}
