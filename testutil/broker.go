// Package testutil provides an in-process broker stub for protocol-level
// tests. It speaks just enough of the wire protocol to drive a client:
// INFO on accept, PONG for PING, and channels exposing the SUB, UNSUB and
// PUB traffic a test wants to assert on or script replies against.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// SubEvent records one SUB frame received by the broker.
type SubEvent struct {
	Sid     uint64
	Subject string
	Queue   string
}

// UnsubEvent records one UNSUB frame. Max is 0 for immediate removal.
type UnsubEvent struct {
	Sid uint64
	Max int
}

// PubEvent records one PUB or HPUB frame. For HPUB the payload includes
// the raw header block.
type PubEvent struct {
	Subject string
	Reply   string
	Payload []byte
	Headers bool
}

// Broker is the stub. Channels are buffered; tests must consume the
// traffic they generate.
type Broker struct {
	t testing.TB
	l net.Listener

	Subs     chan SubEvent
	Unsubs   chan UnsubEvent
	Pubs     chan PubEvent
	Pings    chan struct{}
	Accepted chan *Conn

	closed   atomic.Bool
	mutePong atomic.Bool
}

// Conn is one accepted client connection, with serialized frame sends.
type Conn struct {
	c  net.Conn
	mu sync.Mutex
}

// NewBroker starts a stub broker on a loopback port. It stops via test
// cleanup.
func NewBroker(t testing.TB) *Broker {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("testutil: listen: %v", err)
	}
	b := &Broker{
		t:        t,
		l:        l,
		Subs:     make(chan SubEvent, 64),
		Unsubs:   make(chan UnsubEvent, 64),
		Pubs:     make(chan PubEvent, 64),
		Pings:    make(chan struct{}, 64),
		Accepted: make(chan *Conn, 8),
	}
	go b.acceptLoop()
	t.Cleanup(b.Stop)
	return b
}

// URL returns the endpoint clients should connect to.
func (b *Broker) URL() string {
	return "nats://" + b.l.Addr().String()
}

// ScriptPongs stops the automatic PONG reply. Tests that need precise
// pong correlation answer each recorded Pings entry via Conn.Send.
func (b *Broker) ScriptPongs() {
	b.mutePong.Store(true)
}

// Stop closes the listener. Live connections stay up until closed
// individually.
func (b *Broker) Stop() {
	if b.closed.CompareAndSwap(false, true) {
		_ = b.l.Close()
	}
}

func (b *Broker) acceptLoop() {
	for {
		conn, err := b.l.Accept()
		if err != nil {
			return
		}
		bc := &Conn{c: conn}
		select {
		case b.Accepted <- bc:
		default:
		}
		go b.serve(bc)
	}
}

func (b *Broker) serve(bc *Conn) {
	defer func() { _ = bc.c.Close() }()

	bc.Send(`INFO {"server_id":"testutil","proto":1,"headers":true,"max_payload":1048576}` + "\r\n")

	r := bufio.NewReader(bc.c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		op, args, _ := strings.Cut(line, " ")
		switch strings.ToUpper(op) {
		case "CONNECT", "PONG":
		case "PING":
			select {
			case b.Pings <- struct{}{}:
			default:
			}
			if !b.mutePong.Load() {
				bc.Send("PONG\r\n")
			}
		case "SUB":
			f := strings.Fields(args)
			ev := SubEvent{Subject: f[0]}
			if len(f) == 3 {
				ev.Queue = f[1]
				ev.Sid, _ = strconv.ParseUint(f[2], 10, 64)
			} else {
				ev.Sid, _ = strconv.ParseUint(f[1], 10, 64)
			}
			b.Subs <- ev
		case "UNSUB":
			f := strings.Fields(args)
			ev := UnsubEvent{}
			ev.Sid, _ = strconv.ParseUint(f[0], 10, 64)
			if len(f) == 2 {
				ev.Max, _ = strconv.Atoi(f[1])
			}
			b.Unsubs <- ev
		case "PUB":
			f := strings.Fields(args)
			ev := PubEvent{Subject: f[0]}
			var size int
			if len(f) == 3 {
				ev.Reply = f[1]
				size, _ = strconv.Atoi(f[2])
			} else {
				size, _ = strconv.Atoi(f[1])
			}
			ev.Payload = make([]byte, size+2)
			if _, err := io.ReadFull(r, ev.Payload); err != nil {
				return
			}
			ev.Payload = ev.Payload[:size]
			b.Pubs <- ev
		case "HPUB":
			f := strings.Fields(args)
			ev := PubEvent{Subject: f[0], Headers: true}
			var total int
			if len(f) == 4 {
				ev.Reply = f[1]
				total, _ = strconv.Atoi(f[3])
			} else {
				total, _ = strconv.Atoi(f[2])
			}
			ev.Payload = make([]byte, total+2)
			if _, err := io.ReadFull(r, ev.Payload); err != nil {
				return
			}
			ev.Payload = ev.Payload[:total]
			b.Pubs <- ev
		}
	}
}

// Send writes raw bytes to the client.
func (bc *Conn) Send(s string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	_, _ = bc.c.Write([]byte(s))
}

// SendMsg delivers a MSG frame for sid.
func (bc *Conn) SendMsg(subject string, sid uint64, reply, payload string) {
	if reply != "" {
		bc.Send(fmt.Sprintf("MSG %s %d %s %d\r\n%s\r\n", subject, sid, reply, len(payload), payload))
		return
	}
	bc.Send(fmt.Sprintf("MSG %s %d %d\r\n%s\r\n", subject, sid, len(payload), payload))
}

// SendHMsg delivers an HMSG frame with the given raw header block.
func (bc *Conn) SendHMsg(subject string, sid uint64, reply, headerBlock, payload string) {
	if reply != "" {
		bc.Send(fmt.Sprintf("HMSG %s %d %s %d %d\r\n%s%s\r\n",
			subject, sid, reply, len(headerBlock), len(headerBlock)+len(payload), headerBlock, payload))
		return
	}
	bc.Send(fmt.Sprintf("HMSG %s %d %d %d\r\n%s%s\r\n",
		subject, sid, len(headerBlock), len(headerBlock)+len(payload), headerBlock, payload))
}

// SendStatus delivers an HMSG frame carrying only a status header block.
func (bc *Conn) SendStatus(subject string, sid uint64, code int, description string) {
	block := "NATS/1.0 " + strconv.Itoa(code)
	if description != "" {
		block += " " + description
	}
	block += "\r\n\r\n"
	bc.SendHMsg(subject, sid, "", block, "")
}

// Close drops the connection, simulating a broker-side failure.
func (bc *Conn) Close() {
	_ = bc.c.Close()
}
