package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenctl/lumen/internal/metrics"
)

// Timeouts and limits (spec.md §4.6, §5).
const (
	AckTimeout     = 200 * time.Millisecond
	WriteTimeout   = 100 * time.Millisecond
	MaxRetries     = 5
	ReconnectDelay = 5 * time.Second
	MaxSendBuffer  = 100
)

// ErrBufferFull is returned by Send when the outgoing buffer is at
// MaxSendBuffer capacity.
var ErrBufferFull = errors.New("serial: outgoing buffer full")

// Opener opens (or reopens) the underlying byte stream. Link calls it in
// Start and on every reconnect attempt.
type Opener func() (io.ReadWriteCloser, error)

// InboundEvent is a decoded EVENT surfaced to the Link's owner (the
// Connection Supervisor).
type InboundEvent struct {
	ID, Data1, Data2 uint32
}

type senderState int

const (
	stateIdle senderState = iota
	stateWaiting
	stateDisconnected
)

type pendingEvent struct {
	id, data1, data2 uint32
}

// Link implements the half-duplex framed serial protocol of spec.md §4.6:
// sender and receiver state machines sharing one reconnectable stream.
type Link struct {
	opener     Opener
	checksums  bool
	allowList  map[uint32]struct{} // nil disables filtering
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	stream  io.ReadWriteCloser
	writeMu sync.Mutex

	state       senderState
	outQueue    []pendingEvent
	sentAt      time.Time
	retries     int
	lastAttempt time.Time

	wake chan struct{}

	Incoming chan InboundEvent

	done    chan struct{}
	stopped chan struct{}
}

// Option configures a Link via functional options.
type Option func(*Link)

// WithChecksums enables the optional XOR checksum field on every frame.
func WithChecksums(enabled bool) Option {
	return func(l *Link) { l.checksums = enabled }
}

// WithAllowList restricts outgoing events to ids; absent events are
// silently dropped by Send (spec.md §4.6).
func WithAllowList(ids []uint32) Option {
	return func(l *Link) {
		m := make(map[uint32]struct{}, len(ids))
		for _, id := range ids {
			m[id] = struct{}{}
		}
		l.allowList = m
	}
}

// WithLogger configures the Link's structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// WithClock substitutes a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Link) { l.now = now }
}

// New constructs a Link. It does not open the stream; that happens when
// Start is called, so construction can never block or fail.
func New(opener Opener, opts ...Option) *Link {
	l := &Link{
		opener:   opener,
		logger:   zap.NewNop(),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		Incoming: make(chan InboundEvent, 128),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start opens the stream and launches the reader/sender goroutines.
func (l *Link) Start() error {
	stream, err := l.opener()
	if err != nil {
		l.state = stateDisconnected
		l.lastAttempt = l.now()
		go l.runSender()
		return nil // reconnect loop will retry; matches spec's link-local recovery, not a fatal error
	}
	l.stream = stream
	go l.runReader()
	go l.runSender()
	return nil
}

// Stop signals shutdown. It attempts to finish any in-flight write up to
// WriteTimeout before exiting (spec.md §5 cancellation).
func (l *Link) Stop() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	<-l.stopped
	l.mu.Lock()
	if l.stream != nil {
		l.stream.Close()
	}
	l.mu.Unlock()
}

// Send enqueues an outgoing EVENT. Returns ErrBufferFull if the outgoing
// buffer is at capacity; returns nil (silently dropping) if an allow-list
// is configured and id is absent from it.
func (l *Link) Send(id, data1, data2 uint32) error {
	if l.allowList != nil {
		if _, ok := l.allowList[id]; !ok {
			return nil
		}
	}
	l.mu.Lock()
	if len(l.outQueue) >= MaxSendBuffer {
		l.mu.Unlock()
		return ErrBufferFull
	}
	l.outQueue = append(l.outQueue, pendingEvent{id: id, data1: data1, data2: data2})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// writeFrame writes frame to the current stream, bounded at WriteTimeout
// (spec.md §5 "attempts to finish any in-flight write up to WriteTimeout").
// The write runs on its own goroutine so a stream wedged mid-Write cannot
// block the sender state machine — and therefore Stop — past the timeout;
// dropStream (called by every writeFrame caller on error) closes the
// stream, which unblocks most implementations' pending Write call too.
func (l *Link) writeFrame(frame []byte) error {
	l.mu.Lock()
	stream := l.stream
	l.mu.Unlock()
	if stream == nil {
		return errors.New("serial: no stream")
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	result := make(chan error, 1)
	go func() {
		_, err := stream.Write(frame)
		result <- err
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(WriteTimeout):
		return fmt.Errorf("serial: write exceeded %s", WriteTimeout)
	}
}

// runSender drives the sender state machine of spec.md §4.6.
func (l *Link) runSender() {
	defer close(l.stopped)

	for {
		var timerC <-chan time.Time
		timer := time.NewTimer(time.Hour)
		timer.Stop()

		l.mu.Lock()
		state := l.state
		var wait time.Duration
		switch state {
		case stateWaiting:
			wait = AckTimeout - l.now().Sub(l.sentAt)
		case stateDisconnected:
			wait = ReconnectDelay - l.now().Sub(l.lastAttempt)
		}
		l.mu.Unlock()

		if state != stateIdle {
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-l.done:
			timer.Stop()
			return
		case <-l.wake:
			l.handleWake()
		case <-timerC:
			l.handleTimeout()
		}
		timer.Stop()
	}
}

func (l *Link) handleWake() {
	l.mu.Lock()
	if l.state != stateIdle || len(l.outQueue) == 0 {
		l.mu.Unlock()
		return
	}
	head := l.outQueue[0]
	l.mu.Unlock()
	l.transmit(head, true)
}

func (l *Link) handleTimeout() {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	switch state {
	case stateWaiting:
		l.mu.Lock()
		if len(l.outQueue) == 0 {
			l.state = stateIdle
			l.mu.Unlock()
			return
		}
		head := l.outQueue[0]
		retries := l.retries
		l.mu.Unlock()

		if retries >= MaxRetries {
			l.dropStream()
			return
		}
		l.mu.Lock()
		l.retries++
		l.mu.Unlock()
		metrics.LinkRetries.WithLabelValues("serial").Inc()
		l.transmit(head, false)
	case stateDisconnected:
		l.attemptReconnect()
	}
}

// transmit writes head's frame. fresh indicates this is a fresh send
// (from Idle) vs a retransmission (retry count already bumped by caller).
func (l *Link) transmit(head pendingEvent, fresh bool) {
	frame := EncodeEvent(head.id, head.data1, head.data2, l.checksums)
	if err := l.writeFrame(frame); err != nil {
		l.logger.Warn("serial write failed", zap.Error(err))
		l.dropStream()
		return
	}
	l.mu.Lock()
	l.state = stateWaiting
	l.sentAt = l.now()
	if fresh {
		l.retries = 0
	}
	l.mu.Unlock()
}

func (l *Link) dropStream() {
	l.mu.Lock()
	if l.stream != nil {
		l.stream.Close()
		l.stream = nil
	}
	l.state = stateDisconnected
	l.lastAttempt = l.now()
	l.mu.Unlock()
	metrics.LinkDisconnects.WithLabelValues("serial").Inc()
	l.logger.Warn("serial link disconnected")
}

func (l *Link) attemptReconnect() {
	metrics.LinkRetries.WithLabelValues("serial-reconnect").Inc()
	stream, err := l.opener()
	l.mu.Lock()
	l.lastAttempt = l.now()
	if err != nil {
		l.mu.Unlock()
		l.logger.Warn("serial reconnect failed", zap.Error(err))
		return
	}
	l.stream = stream
	l.state = stateIdle
	l.mu.Unlock()
	l.logger.Info("serial link reconnected")
	go l.runReader()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// runReader decodes inbound bytes until the stream errors or closes; each
// reconnect relaunches a fresh runReader against the new stream.
func (l *Link) runReader() {
	l.mu.Lock()
	stream := l.stream
	l.mu.Unlock()
	if stream == nil {
		return
	}
	br := bufio.NewReader(stream)
	var dec Decoder

	for {
		b, err := br.ReadByte()
		if err != nil {
			return // stream closed/broken; sender side will notice on next write
		}
		msg, ok, err := dec.Feed(b)
		if err != nil {
			l.logger.Warn("serial decode error", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if msg.IsEvent {
			l.handleInboundEvent(msg)
		} else {
			l.handleInboundAck(msg)
		}
	}
}

func (l *Link) handleInboundEvent(msg DecodedMessage) {
	var checksum *uint32
	if msg.HasChecksum {
		c := msg.Checksum
		checksum = &c
	}
	if err := l.writeFrame(EncodeAck(checksum)); err != nil {
		l.logger.Warn("serial ack write failed", zap.Error(err))
	}

	select {
	case l.Incoming <- InboundEvent{ID: msg.ID, Data1: msg.Data1, Data2: msg.Data2}:
	default:
		l.logger.Warn("serial inbound buffer full, dropping event")
	}
}

func (l *Link) handleInboundAck(msg DecodedMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateWaiting || len(l.outQueue) == 0 {
		return
	}
	if l.checksums && msg.HasChecksum {
		head := l.outQueue[0]
		want := head.id ^ head.data1 ^ head.data2
		if msg.Checksum != want {
			l.logger.Warn("serial ack checksum mismatch")
			return
		}
	}
	l.outQueue = l.outQueue[1:]
	l.retries = 0
	if len(l.outQueue) > 0 {
		next := l.outQueue[0]
		l.mu.Unlock()
		l.transmit(next, true)
		l.mu.Lock()
	} else {
		l.state = stateIdle
	}
}
