package fdsem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMakesFdReadable(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Wait(0)
	require.NoError(t, err)
	assert.False(t, ok, "fresh semaphore must not be signalled")

	s.Post()
	s.Post() // coalesced

	ok, err = s.Wait(time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	s.AfterPoll()
	assert.False(t, s.Pending())

	ok, err = s.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "wake-up must be consumed by AfterPoll")
}

func TestPostFromOtherGoroutine(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Post()
	}()

	ok, err := s.Wait(-1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseTwice(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// no-ops on a closed semaphore
	s.Post()
	s.AfterPoll()

	_, err = s.Wait(0)
	assert.ErrorIs(t, err, ErrClosed)
}
