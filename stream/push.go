package stream

import (
	"context"

	"github.com/c360/natswire/client"
)

// PushConsumer consumes a broker-driven delivery subject. Flow control
// requests are answered immediately and idle heartbeats are swallowed, so
// callers only ever observe data messages.
type PushConsumer struct {
	e      *Engine
	stream string
	name   string
	policy AckPolicy
	sub    *client.Subscription
}

// Next returns the next data message, blocking until one arrives or ctx
// ends.
func (p *PushConsumer) Next(ctx context.Context) (*Msg, error) {
	for {
		m, err := p.sub.Next(ctx)
		if err != nil {
			return nil, err
		}
		if m.IsFlowControl() {
			p.replyFlowControl(m)
			continue
		}
		if m.IsIdleHeartbeat() {
			continue
		}
		return wrapMsg(m, p.policy), nil
	}
}

// replyFlowControl answers a flow control request so the broker resumes
// delivery. A failed reply is only logged; the broker will ask again.
func (p *PushConsumer) replyFlowControl(m *client.Msg) {
	if m.Reply == "" {
		return
	}
	if err := p.e.c.Publish(m.Reply, nil); err != nil {
		p.e.logger.Warn("flow control reply failed",
			"stream", p.stream, "consumer", p.name, "error", err)
	}
}

// Pending reports buffered, undelivered messages.
func (p *PushConsumer) Pending() int {
	return p.sub.Pending()
}

// Stop unsubscribes from the delivery subject. The consumer itself stays
// on the broker.
func (p *PushConsumer) Stop() error {
	return p.sub.Unsubscribe()
}
