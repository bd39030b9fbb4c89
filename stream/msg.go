package stream

import (
	"context"
	"time"

	"github.com/c360/natswire/client"
	"github.com/c360/natswire/errors"
)

// Msg is a message delivered through a consumer. It carries the underlying
// delivery plus the consumer's ack policy, so ack calls can be rejected
// up front when the policy does not allow them.
type Msg struct {
	*client.Msg

	ackPolicy AckPolicy
}

func wrapMsg(m *client.Msg, policy AckPolicy) *Msg {
	return &Msg{Msg: m, ackPolicy: policy}
}

// Metadata decodes the delivery metadata from the message's ack subject.
func (m *Msg) Metadata() (*MsgMetadata, error) {
	if m.Reply == "" {
		return nil, errors.ErrMsgNotBound
	}
	return ParseMetadata(m.Reply)
}

func (m *Msg) checkPolicy() error {
	if m.ackPolicy == AckNone {
		return errors.ErrNoAckPolicy
	}
	return nil
}

// Ack acknowledges the message. With the cumulative ack policy this also
// acknowledges every earlier unacked delivery on the same consumer.
func (m *Msg) Ack() error {
	if err := m.checkPolicy(); err != nil {
		return err
	}
	return m.Msg.Ack()
}

// DoubleAck acknowledges the message and waits for broker confirmation.
func (m *Msg) DoubleAck(ctx context.Context) error {
	if err := m.checkPolicy(); err != nil {
		return err
	}
	return m.Msg.DoubleAck(ctx)
}

// Nak asks for redelivery, after delay when non-zero.
func (m *Msg) Nak(delay time.Duration) error {
	if err := m.checkPolicy(); err != nil {
		return err
	}
	return m.Msg.Nak(delay)
}

// InProgress resets the redelivery timer without consuming the ack.
func (m *Msg) InProgress() error {
	if err := m.checkPolicy(); err != nil {
		return err
	}
	return m.Msg.InProgress()
}

// Term rejects the message permanently.
func (m *Msg) Term() error {
	if err := m.checkPolicy(); err != nil {
		return err
	}
	return m.Msg.Term()
}
