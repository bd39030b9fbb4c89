package client

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/wire"
)

// Ack payload bodies.
var (
	ackAck        = []byte("+ACK")
	ackNak        = []byte("-NAK")
	ackInProgress = []byte("+WPI")
	ackTerm       = []byte("+TERM")
)

// Msg is one delivered message.
type Msg struct {
	Subject     string
	Reply       string
	Header      wire.Header
	Data        []byte
	Status      wire.Status
	Description string

	sub   *Subscription
	acked atomic.Bool
}

// Respond publishes data to the message's reply subject.
func (m *Msg) Respond(data []byte) error {
	if m.sub == nil || m.sub.c == nil {
		return errors.ErrMsgNotBound
	}
	if m.Reply == "" {
		return errors.WrapInvalid(
			errors.ErrBadSubject, "Msg", "Respond", "message has no reply subject")
	}
	return m.sub.c.Publish(m.Reply, data)
}

// IsNoResponders reports whether this message is the broker's synthetic
// reply for a request published to a subject with no subscribers. Such
// replies carry status 503 and no payload.
func (m *Msg) IsNoResponders() bool {
	return len(m.Data) == 0 && m.Status == wire.StatusNoResponders
}

// IsFlowControl reports a flow control request from a push consumer stream.
// The consumption engine answers these; applications normally never see one.
func (m *Msg) IsFlowControl() bool {
	return m.Status == wire.StatusControl && m.Description == "FlowControl Request"
}

// IsIdleHeartbeat reports an idle heartbeat from a push consumer stream.
func (m *Msg) IsIdleHeartbeat() bool {
	return m.Status == wire.StatusControl && m.Description == "Idle Heartbeat"
}

// Ack acknowledges the message. Fire and forget: the ack is published but
// not confirmed. Acking twice returns ErrMsgAlreadyAcked, except after a
// successful DoubleAck where it is a no-op.
func (m *Msg) Ack() error {
	return m.ackVariant(ackAck, "ack", false)
}

// DoubleAck acknowledges the message and waits for the broker to confirm
// the ack was processed. Calling it (or Ack) again afterwards is a no-op.
func (m *Msg) DoubleAck(ctx context.Context) error {
	if m.sub == nil || m.sub.c == nil {
		return errors.ErrMsgNotBound
	}
	if m.Reply == "" {
		return errors.ErrNoAckPolicy
	}
	if m.acked.Load() {
		return nil
	}
	if _, err := m.sub.c.Request(ctx, m.Reply, ackAck); err != nil {
		return err
	}
	m.acked.Store(true)
	m.countAck("ack")
	return nil
}

// Nak negatively acknowledges the message, asking for redelivery. A
// non-zero delay defers the redelivery.
func (m *Msg) Nak(delay time.Duration) error {
	payload := ackNak
	if delay > 0 {
		payload = append([]byte(nil), ackNak...)
		payload = append(payload, ` {"delay": `...)
		payload = strconv.AppendInt(payload, delay.Nanoseconds(), 10)
		payload = append(payload, '}')
	}
	return m.ackVariant(payload, "nak", false)
}

// InProgress signals the message is still being worked on, resetting the
// redelivery timer. It does not consume the ack; the message can still be
// acked or naked afterwards.
func (m *Msg) InProgress() error {
	return m.ackVariant(ackInProgress, "progress", true)
}

// Term acknowledges the message negatively and permanently; it is never
// redelivered.
func (m *Msg) Term() error {
	return m.ackVariant(ackTerm, "term", false)
}

func (m *Msg) ackVariant(payload []byte, kind string, progress bool) error {
	if m.sub == nil || m.sub.c == nil {
		return errors.ErrMsgNotBound
	}
	if m.Reply == "" {
		return errors.ErrNoAckPolicy
	}
	if progress {
		if m.acked.Load() {
			return errors.ErrMsgAlreadyAcked
		}
	} else if !m.acked.CompareAndSwap(false, true) {
		return errors.ErrMsgAlreadyAcked
	}
	if err := m.sub.c.Publish(m.Reply, payload); err != nil {
		if !progress {
			m.acked.Store(false)
		}
		return err
	}
	m.countAck(kind)
	return nil
}

func (m *Msg) countAck(kind string) {
	if mm := m.sub.c.metrics; mm != nil {
		mm.AcksSent.WithLabelValues(kind).Inc()
	}
}
