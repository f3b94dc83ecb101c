package transport

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Header fields carrying the frame metadata.
const (
	HeaderStream   = "Tunnel-Stream"
	HeaderSeq      = "Tunnel-Seq"
	HeaderCodec    = "Tunnel-Codec"
	HeaderRate     = "Tunnel-Rate"
	HeaderChannels = "Tunnel-Channels"
	HeaderFrames   = "Tunnel-Frames"
)

// Nats publishes every frame as one message on a nats subject.
type Nats struct {
	sync.Mutex
	options  Options
	conn     *nats.Conn
	streamID string
	seq      uint64
	lastErr  error
	closed   bool
}

// NewNats connects to the nats broker.
func NewNats(opts ...Option) (*Nats, error) {

	n := &Nats{
		options: Options{
			Server:  "localhost",
			Port:    4222,
			Subject: "tunnelsink.audio",
			Name:    "tunnelsink",
			Timeout: time.Second * 3,
		},
		streamID: uuid.New().String(),
	}

	for _, option := range opts {
		option(&n.options)
	}

	if n.options.Subject == "" {
		return nil, fmt.Errorf("transport: subject must not be empty")
	}

	// start from default nats config and add the common options
	nopts := nats.GetDefaultOptions()
	nopts.Servers = []string{fmt.Sprintf("nats://%s:%v", n.options.Server, n.options.Port)}
	nopts.User = n.options.Username
	nopts.Password = n.options.Password
	nopts.Name = n.options.Name
	nopts.Timeout = n.options.Timeout

	nopts.DisconnectedErrCB = func(conn *nats.Conn, err error) {
		n.Lock()
		defer n.Unlock()
		if err == nil {
			err = fmt.Errorf("disconnected")
		}
		n.lastErr = err
		log.Printf("transport: connection to nats broker lost: %v", err)
	}

	nopts.ReconnectedCB = func(conn *nats.Conn) {
		n.Lock()
		defer n.Unlock()
		n.lastErr = nil
		log.Printf("transport: reconnected to nats broker %s", conn.ConnectedUrl())
	}

	nopts.AsyncErrorCB = func(conn *nats.Conn, sub *nats.Subscription, err error) {
		if sub != nil {
			log.Printf("transport: error on subscription %s: %v", sub.Subject, err)
			return
		}
		log.Printf("transport: %v", err)
	}

	conn, err := nopts.Connect()
	if err != nil {
		return nil, fmt.Errorf("transport: unable to connect to %s: %v", nopts.Servers[0], err)
	}

	n.conn = conn
	return n, nil
}

// StreamID returns the id of the stream published by this transport.
func (n *Nats) StreamID() string {
	return n.streamID
}

// Send publishes a frame. The stream id and sequence number of the frame
// are assigned by the transport. While the broker is unreachable Send
// returns the disconnect error.
func (n *Nats) Send(f Frame) error {
	n.Lock()
	if n.closed {
		n.Unlock()
		return ErrClosed
	}
	if n.lastErr != nil {
		err := n.lastErr
		n.Unlock()
		return fmt.Errorf("transport: %w", err)
	}
	f.StreamID = n.streamID
	f.Seq = n.seq
	n.seq++
	n.Unlock()

	if err := n.conn.PublishMsg(FrameToMsg(n.options.Subject, f)); err != nil {
		return fmt.Errorf("transport: publish: %w", err)
	}
	return nil
}

// Subscribe calls cb for every frame received on the transport's
// subject. Messages which are not frames are logged and dropped.
func (n *Nats) Subscribe(cb func(Frame)) (*nats.Subscription, error) {
	return n.conn.Subscribe(n.options.Subject, func(msg *nats.Msg) {
		f, err := FrameFromMsg(msg)
		if err != nil {
			log.Println(err)
			return
		}
		cb(f)
	})
}

// Close flushes pending frames and closes the connection. Calling Close
// more than once is safe.
func (n *Nats) Close() error {
	n.Lock()
	if n.closed {
		n.Unlock()
		return nil
	}
	n.closed = true
	n.Unlock()

	var err error
	if n.conn.IsConnected() {
		err = n.conn.FlushTimeout(time.Second)
	}
	n.conn.Close()
	if err != nil {
		return fmt.Errorf("transport: flush: %v", err)
	}
	return nil
}

// FrameToMsg packs a frame into a nats message for subject.
func FrameToMsg(subject string, f Frame) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Header.Set(HeaderStream, f.StreamID)
	msg.Header.Set(HeaderSeq, strconv.FormatUint(f.Seq, 10))
	msg.Header.Set(HeaderCodec, f.Codec)
	msg.Header.Set(HeaderRate, strconv.FormatUint(uint64(f.Samplerate), 10))
	msg.Header.Set(HeaderChannels, strconv.Itoa(f.Channels))
	msg.Header.Set(HeaderFrames, strconv.Itoa(f.Frames))
	msg.Data = f.Payload
	return msg
}

// FrameFromMsg unpacks a frame received from nats.
func FrameFromMsg(msg *nats.Msg) (Frame, error) {

	if msg.Header == nil {
		return Frame{}, fmt.Errorf("transport: message on %s without header", msg.Subject)
	}

	f := Frame{
		StreamID: msg.Header.Get(HeaderStream),
		Codec:    msg.Header.Get(HeaderCodec),
		Payload:  msg.Data,
	}

	if f.Codec == "" {
		return Frame{}, fmt.Errorf("transport: message on %s without codec", msg.Subject)
	}

	seq, err := strconv.ParseUint(msg.Header.Get(HeaderSeq), 10, 64)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: invalid %s header: %v", HeaderSeq, err)
	}
	f.Seq = seq

	rate, err := strconv.ParseUint(msg.Header.Get(HeaderRate), 10, 32)
	if err != nil || rate == 0 {
		return Frame{}, fmt.Errorf("transport: invalid %s header '%s'", HeaderRate, msg.Header.Get(HeaderRate))
	}
	f.Samplerate = uint32(rate)

	chs, err := strconv.Atoi(msg.Header.Get(HeaderChannels))
	if err != nil || chs < 1 {
		return Frame{}, fmt.Errorf("transport: invalid %s header '%s'", HeaderChannels, msg.Header.Get(HeaderChannels))
	}
	f.Channels = chs

	frames, err := strconv.Atoi(msg.Header.Get(HeaderFrames))
	if err != nil || frames < 0 {
		return Frame{}, fmt.Errorf("transport: invalid %s header '%s'", HeaderFrames, msg.Header.Get(HeaderFrames))
	}
	f.Frames = frames

	return f, nil
}
