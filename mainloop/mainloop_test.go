package mainloop

import (
	"context"
	"testing"
	"time"

	"github.com/dh1tw/tunnelsink/fdsem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T) *Mainloop {
	t.Helper()
	ml, err := New()
	require.NoError(t, err)
	t.Cleanup(ml.Close)
	return ml
}

func TestIOEvent(t *testing.T) {
	ml := newLoop(t)

	sem, err := fdsem.New()
	require.NoError(t, err)
	defer sem.Close()

	calls := 0
	_, err = ml.IONew(sem.Fd(), IOEventInput, func(api API, e *IOEvent, fd int, events IOEventFlags) {
		assert.Equal(t, sem.Fd(), fd)
		assert.NotZero(t, events&IOEventInput)
		sem.AfterPoll()
		calls++
	})
	require.NoError(t, err)

	sem.Post()
	require.NoError(t, ml.Iterate(time.Second))
	assert.Equal(t, 1, calls)

	// nothing posted, the callback must not run again
	require.NoError(t, ml.Iterate(10*time.Millisecond))
	assert.Equal(t, 1, calls)
}

func TestIOFreeInsideCallback(t *testing.T) {
	ml := newLoop(t)

	sem, err := fdsem.New()
	require.NoError(t, err)
	defer sem.Close()

	var second *IOEvent
	secondCalls := 0

	_, err = ml.IONew(sem.Fd(), IOEventInput, func(api API, e *IOEvent, fd int, events IOEventFlags) {
		api.IOFree(e)
		api.IOFree(second)
	})
	require.NoError(t, err)

	second, err = ml.IONew(sem.Fd(), IOEventInput, func(api API, e *IOEvent, fd int, events IOEventFlags) {
		secondCalls++
	})
	require.NoError(t, err)

	sem.Post()
	require.NoError(t, ml.Iterate(time.Second))
	require.NoError(t, ml.Iterate(10*time.Millisecond))
	assert.Equal(t, 0, secondCalls)
}

func TestOnceFromOtherGoroutine(t *testing.T) {
	ml := newLoop(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		ml.Once(func() {
			ml.Quit(7)
		})
	}()

	ret, err := ml.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, ret)
}

func TestRunCancelled(t *testing.T) {
	ml := newLoop(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ret, err := ml.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, ret)
}

func TestClosed(t *testing.T) {
	ml, err := New()
	require.NoError(t, err)
	ml.Close()
	ml.Close()

	assert.Equal(t, ErrClosed, ml.Iterate(0))
	_, err = ml.IONew(0, IOEventInput, func(API, *IOEvent, int, IOEventFlags) {})
	assert.Equal(t, ErrClosed, err)
}
