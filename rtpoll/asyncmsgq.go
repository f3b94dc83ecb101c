package rtpoll

import (
	"github.com/dh1tw/tunnelsink/asyncmsgq"
)

// NewAsyncMsgqRead adds an item consuming messages from q. One message is
// dispatched per cycle. A shutdown message without target is acknowledged
// and makes the poll set quit.
func NewAsyncMsgqRead(p *RTPoll, prio Priority, q *asyncmsgq.Queue) *Item {
	i := p.NewItem(prio, q.ReadFd())

	i.SetWorkCallback(func(i *Item) (bool, error) {
		msg, ok := q.TryGet()
		if !ok {
			return false, nil
		}

		if msg.IsShutdown() {
			q.Done(0)
			i.rtp.Quit()
			return true, nil
		}

		q.Done(asyncmsgq.Dispatch(msg))
		return true, nil
	})

	i.SetBeforeCallback(func(*Item) bool {
		return q.ReadBeforePoll()
	})

	i.SetAfterCallback(func(*Item) {
		q.ReadAfterPoll()
	})

	return i
}

// NewAsyncMsgqWrite adds an item releasing the slots of q once the
// consumer completed them.
func NewAsyncMsgqWrite(p *RTPoll, prio Priority, q *asyncmsgq.Queue) *Item {
	i := p.NewItem(prio, q.WriteFd())

	i.SetBeforeCallback(func(*Item) bool {
		return q.WriteBeforePoll()
	})

	i.SetAfterCallback(func(*Item) {
		q.WriteAfterPoll()
	})

	return i
}
