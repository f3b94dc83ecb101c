package rtpoll

import (
	"testing"
	"time"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	p := New()
	defer p.Free()

	start := time.Now()
	p.SetTimerRelative(20 * time.Millisecond)

	ok, err := p.Run()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.TimerElapsed())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	p.SetTimerRelative(0)
	p.DisableTimer()
	p.SetTimerAbsolute(time.Now())
	_, err = p.Run()
	require.NoError(t, err)
	assert.True(t, p.TimerElapsed())
}

func TestPriorityOrder(t *testing.T) {
	p := New()
	defer p.Free()

	var order []Priority
	for _, prio := range []Priority{PriorityLate, PriorityEarly, PriorityNormal} {
		i := p.NewItem(prio)
		i.SetWorkCallback(func(i *Item) (bool, error) {
			order = append(order, i.Priority())
			return false, nil
		})
	}

	p.SetTimerRelative(0)
	_, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, []Priority{PriorityEarly, PriorityNormal, PriorityLate}, order)
}

func TestWorkEndsCycle(t *testing.T) {
	p := New()
	defer p.Free()

	laterCalled := false
	p.NewItem(PriorityEarly).SetWorkCallback(func(*Item) (bool, error) {
		return true, nil
	})
	p.NewItem(PriorityLate).SetWorkCallback(func(*Item) (bool, error) {
		laterCalled = true
		return false, nil
	})

	// no timer armed: Run must not reach poll
	ok, err := p.Run()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, laterCalled)
}

func TestBeforeRefusesSleep(t *testing.T) {
	p := New()
	defer p.Free()

	afterCalled := 0
	early := p.NewItem(PriorityEarly)
	early.SetBeforeCallback(func(*Item) bool { return true })
	early.SetAfterCallback(func(*Item) { afterCalled++ })

	late := p.NewItem(PriorityLate)
	late.SetBeforeCallback(func(*Item) bool { return false })
	late.SetAfterCallback(func(*Item) { t.Error("after callback of refusing item executed") })

	ok, err := p.Run()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, afterCalled)
}

func TestItemFree(t *testing.T) {
	p := New()
	defer p.Free()

	calls := 0
	i := p.NewItem(PriorityNormal)
	i.SetWorkCallback(func(*Item) (bool, error) {
		calls++
		return false, nil
	})
	i.Free()
	i.Free()

	p.SetTimerRelative(0)
	_, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestQuit(t *testing.T) {
	p := New()
	defer p.Free()

	p.Quit()
	ok, err := p.Run()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAsyncMsgqItems(t *testing.T) {
	inq, err := asyncmsgq.New(4)
	require.NoError(t, err)
	defer inq.Close()

	outq, err := asyncmsgq.New(4)
	require.NoError(t, err)
	defer outq.Close()

	p := New()
	defer p.Free()
	NewAsyncMsgqRead(p, PriorityEarly, inq)
	NewAsyncMsgqWrite(p, PriorityLate, outq)

	var codes []int
	obj := asyncmsgq.ObjectFunc(func(code int, data interface{}, offset int64, chunk *audio.Msg) int {
		codes = append(codes, code)
		return 0
	})

	require.NoError(t, inq.Post(obj, 1, nil, 0, nil, nil))
	require.NoError(t, inq.Post(obj, 2, nil, 0, nil, nil))

	for k := 0; k < 2; k++ {
		ok, err := p.Run()
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, []int{1, 2}, codes)

	require.NoError(t, inq.Post(nil, asyncmsgq.MessageShutdown, nil, 0, nil, nil))
	ok, err := p.Run()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, inq.WriteBeforePoll())
}
