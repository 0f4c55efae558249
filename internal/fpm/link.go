// SPDX-License-Identifier:Apache-2.0

// Package fpm carries the Forwarding Plane Manager channel: the TCP
// connection over which the routing stack streams netlink-encoded route and
// link updates. One peer at a time; the message framing is a 4-byte header
// (protocol version, payload type, big-endian total length) in front of raw
// netlink messages.
package fpm

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/eapache/queue"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"syscall"
)

const (
	// DefaultPort is the port zebra's FPM module dials.
	DefaultPort = 2620

	headerSize  = 4
	version     = 1
	typeNetlink = 1
	maxMsgLen   = 4096
)

// ErrConnectionClosed is returned by Link.Recv when the peer has gone away.
// The caller is expected to tear the session down and wait for a new peer.
var ErrConnectionClosed = errors.New("fpm connection closed")

// Listener waits for the routing stack to connect.
type Listener struct {
	logger log.Logger
	ln     net.Listener
}

func Listen(addr string, logger log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &Listener{logger: logger, ln: ln}, nil
}

// Accept blocks until a peer connects and returns the established link.
func (l *Listener) Accept() (*Link, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "accepting fpm connection")
	}
	stats.connections.Inc()
	level.Info(l.logger).Log("event", "connected", "peer", conn.RemoteAddr(), "msg", "fpm client connected")
	return newLink(conn, l.logger), nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

// Link is one established FPM connection. A background reader deframes
// incoming messages and buffers them; the event loop drains them with Recv.
// Link is a selector.Selectable.
type Link struct {
	logger log.Logger
	conn   net.Conn
	events chan struct{}

	mu      sync.Mutex
	pending *queue.Queue
	closed  bool
}

func newLink(conn net.Conn, logger log.Logger) *Link {
	l := &Link{
		logger:  logger,
		conn:    conn,
		events:  make(chan struct{}, 1),
		pending: queue.New(),
	}
	go l.read()
	return l
}

func (l *Link) read() {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		l.notify()
	}()

	hdr := make([]byte, headerSize)
	body := make([]byte, maxMsgLen)
	for {
		if _, err := io.ReadFull(l.conn, hdr); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				level.Warn(l.logger).Log("op", "read", "error", err, "msg", "fpm header read failed")
			}
			return
		}
		if hdr[0] != version || hdr[1] != typeNetlink {
			level.Warn(l.logger).Log("op", "read", "version", hdr[0], "type", hdr[1], "msg", "unsupported fpm frame, dropping connection")
			return
		}
		length := int(binary.BigEndian.Uint16(hdr[2:]))
		if length < headerSize || length > maxMsgLen {
			level.Warn(l.logger).Log("op", "read", "length", length, "msg", "bad fpm frame length, dropping connection")
			return
		}
		payload := body[:length-headerSize]
		if _, err := io.ReadFull(l.conn, payload); err != nil {
			level.Warn(l.logger).Log("op", "read", "error", err, "msg", "fpm payload read failed")
			return
		}
		stats.frames.Inc()

		msgs, err := syscall.ParseNetlinkMessage(payload)
		if err != nil {
			level.Warn(l.logger).Log("op", "parse", "error", err, "msg", "malformed netlink payload, skipping frame")
			continue
		}

		l.mu.Lock()
		for i := range msgs {
			l.pending.Add(msgs[i])
		}
		l.mu.Unlock()
		stats.messages.Add(float64(len(msgs)))
		l.notify()
	}
}

func (l *Link) notify() {
	select {
	case l.events <- struct{}{}:
	default:
	}
}

// Recv drains all buffered netlink messages, in arrival order. Once the peer
// has disconnected and the buffer is drained, the error is
// ErrConnectionClosed; the returned messages (if any) are still valid and
// must be processed before the session is abandoned.
func (l *Link) Recv() ([]syscall.NetlinkMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]syscall.NetlinkMessage, 0, l.pending.Length())
	for l.pending.Length() > 0 {
		msgs = append(msgs, l.pending.Remove().(syscall.NetlinkMessage))
	}
	if l.closed {
		return msgs, ErrConnectionClosed
	}
	return msgs, nil
}

func (l *Link) Events() <-chan struct{} { return l.events }

func (l *Link) Readable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Length() > 0 || l.closed
}

func (l *Link) Priority() int { return 0 }

func (l *Link) Close() error {
	return l.conn.Close()
}
