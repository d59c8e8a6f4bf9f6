// Package pubsub implements the Pub/Sub Link of spec.md §4.7: a
// multi-part event fabric with a binding (authoritative) or connecting
// (peer) role, the latter suppressing its own echoes via a pair of FIFO
// filters. Built on an embedded NATS server for the binding role and the
// NATS client for the connecting role, grounded on the nats-server/v2 and
// nats.go modules carried by the example corpus.
package pubsub

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const readyTimeout = 5 * time.Second

// Role distinguishes the authoritative (binding) endpoint from a peer
// (connecting) endpoint.
type Role int

const (
	RoleBinding Role = iota
	RoleConnecting
)

// Option configures a Link via functional options.
type Option func(*Link)

// WithLogger configures the Link's structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// Link is one endpoint of the pub/sub fabric.
type Link struct {
	role    Role
	subject string
	logger  *zap.Logger

	srv *server.Server // binding only
	nc  *nats.Conn
	sub *nats.Subscription

	mu        sync.Mutex
	filterOut echoFilter // connecting only
	filterIn  echoFilter // connecting only

	Incoming chan Message
}

// NewBinding starts an embedded NATS server on addr (host:port) and
// subscribes to subject. The binding link never filters: spec.md §4.7
// "primary instances are expected to be the authority."
func NewBinding(addr, subject string, opts ...Option) (*Link, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}
	srv, err := server.NewServer(&server.Options{Host: host, Port: port, NoSigs: true, NoLog: true})
	if err != nil {
		return nil, fmt.Errorf("pubsub: start embedded server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(readyTimeout) {
		return nil, fmt.Errorf("pubsub: embedded server not ready after %s", readyTimeout)
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("pubsub: connect to embedded server: %w", err)
	}

	l := newLink(RoleBinding, subject, opts...)
	l.srv = srv
	l.nc = nc
	if err := l.subscribe(); err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, err
	}
	return l, nil
}

// ClientURL returns the embedded broker's connect URL for a binding Link,
// so other peers (NewConnecting) can dial the fabric this instance
// authors. Empty for a connecting Link, which owns no embedded server.
func (l *Link) ClientURL() string {
	if l.srv == nil {
		return ""
	}
	return l.srv.ClientURL()
}

// NewConnecting dials an existing fabric at url as a peer endpoint.
func NewConnecting(url, subject string, opts ...Option) (*Link, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	l := newLink(RoleConnecting, subject, opts...)
	l.nc = nc
	if err := l.subscribe(); err != nil {
		nc.Close()
		return nil, err
	}
	return l, nil
}

func newLink(role Role, subject string, opts ...Option) *Link {
	l := &Link{
		role:     role,
		subject:  subject,
		logger:   zap.NewNop(),
		Incoming: make(chan Message, 128),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Link) subscribe() error {
	msgCh := make(chan *nats.Msg, 128)
	sub, err := l.nc.ChanSubscribe(l.subject, msgCh)
	if err != nil {
		return fmt.Errorf("pubsub: subscribe: %w", err)
	}
	l.sub = sub
	go l.runReceiver(msgCh)
	return nil
}

// Close tears down the subscription, client connection, and (for a
// binding link) the embedded server.
func (l *Link) Close() error {
	if l.sub != nil {
		l.sub.Unsubscribe()
	}
	if l.nc != nil {
		l.nc.Close()
	}
	if l.srv != nil {
		l.srv.Shutdown()
	}
	return nil
}

// Send transmits an event this process originates. For a connecting link
// it is entered into filter_out so a later echo of the same event is
// suppressed (spec.md §4.7 "On send: append to filter_out").
func (l *Link) Send(m Message) error {
	if l.role == RoleConnecting {
		l.mu.Lock()
		l.filterOut.push(m)
		l.mu.Unlock()
	}
	return l.publish(m)
}

// Echo re-transmits an event that originated elsewhere (the Connection
// Supervisor's broadcast fan-out). For a connecting link, if this same
// link is the one that surfaced the event, it is dropped rather than
// bounced back (spec.md §4.7 "On echo: if head of filter_in matches, drop
// and remove; else send").
func (l *Link) Echo(m Message) error {
	if l.role == RoleConnecting {
		l.mu.Lock()
		match := l.filterIn.matchHead(m)
		l.mu.Unlock()
		if match {
			return nil
		}
	}
	return l.publish(m)
}

func (l *Link) publish(m Message) error {
	return l.nc.Publish(l.subject, marshal(m))
}

func (l *Link) runReceiver(msgCh <-chan *nats.Msg) {
	for raw := range msgCh {
		m, err := unmarshal(raw.Data)
		if err != nil {
			l.logger.Warn("pubsub decode error", zap.Error(err))
			continue
		}

		if l.role == RoleConnecting {
			l.mu.Lock()
			if l.filterOut.matchHead(m) {
				l.mu.Unlock()
				continue // our own echo coming back
			}
			if dropped := l.filterIn.push(m); dropped {
				l.logger.Warn("pubsub filter_in overflow, dropped oldest entry")
			}
			l.mu.Unlock()
		}

		select {
		case l.Incoming <- m:
		default:
			l.logger.Warn("pubsub inbound buffer full, dropping event")
		}
	}
}

func marshal(m Message) []byte {
	parts := Encode(m)
	return bytes.Join(parts, []byte{','})
}

func unmarshal(data []byte) (Message, error) {
	return Decode(bytes.Split(data, []byte{','}))
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("pubsub: invalid bind address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("pubsub: invalid bind address %q", addr)
	}
	return host, port, nil
}
