package client

import (
	"context"
	"sync/atomic"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/pkg/buffer"
	"github.com/c360/natswire/subject"
	"github.com/c360/natswire/wire"
)

// Subscription is one registered interest in a subject. Messages arrive on
// a bounded pending queue drained by the subscriber at its own pace; the
// shared reader goroutine never blocks on a slow subscriber.
type Subscription struct {
	Subject string
	Queue   string

	sid     uint64
	c       *Client
	pending buffer.Queue[*Msg]

	// Remaining-delivery budget installed by AutoUnsubscribe. Zero means
	// unlimited.
	max       atomic.Int64
	delivered atomic.Int64

	closed atomic.Bool
}

// Subscribe registers interest in subj. Wildcards are allowed.
func (c *Client) Subscribe(subj string) (*Subscription, error) {
	return c.subscribe(subj, "")
}

// QueueSubscribe registers interest in subj as part of the named queue
// group; the broker delivers each message to one group member.
func (c *Client) QueueSubscribe(subj, group string) (*Subscription, error) {
	if !subject.ValidToken(group) {
		return nil, errors.WrapInvalid(
			errors.ErrBadSubject, "Client", "QueueSubscribe", "validate queue group")
	}
	return c.subscribe(subj, group)
}

func (c *Client) subscribe(subj, group string) (*Subscription, error) {
	if err := subject.Validate(subj); err != nil {
		return nil, err
	}

	switch c.Status() {
	case StatusClosed:
		return nil, errors.ErrConnectionClosed
	case StatusDraining:
		return nil, errors.ErrConnectionDrain
	}

	s := &Subscription{
		Subject: subj,
		Queue:   group,
		sid:     c.nextSid.Add(1),
		c:       c,
	}
	q, err := buffer.NewRing[*Msg](c.pendingLimit,
		buffer.WithOverflowPolicy[*Msg](buffer.DropOldest),
		buffer.WithDropCallback[*Msg](func(*Msg) { c.slowConsumer(s) }),
	)
	if err != nil {
		return nil, err
	}
	s.pending = q

	c.subs.Store(s.sid, s)
	if m := c.metrics; m != nil {
		m.Subscriptions.Inc()
	}

	// Emit SUB now when live; a reconnect replays it from the registry.
	c.mu.Lock()
	if c.w != nil && c.Status() == StatusReady {
		if err := c.w.Subscribe(s.sid, subj, group); err != nil {
			c.mu.Unlock()
			c.subs.Delete(s.sid)
			return nil, err
		}
	}
	c.mu.Unlock()
	c.kickFlusher()

	return s, nil
}

// Next blocks until a message is available, the subscription ends, or ctx
// is done.
func (s *Subscription) Next(ctx context.Context) (*Msg, error) {
	for {
		if msg, ok := s.pending.Read(); ok {
			return msg, nil
		}
		if s.closed.Load() {
			if msg, ok := s.pending.Read(); ok {
				return msg, nil
			}
			if s.budgetExhausted() {
				return nil, errors.ErrMaxMessages
			}
			return nil, errors.ErrSubscriptionClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.pending.Notify():
		}
	}
}

// Pending reports messages waiting for the subscriber.
func (s *Subscription) Pending() int {
	return s.pending.Size()
}

// Unsubscribe retires the subscription immediately. Messages already
// delivered to the pending queue remain readable.
func (s *Subscription) Unsubscribe() error {
	if s.c == nil {
		return errors.ErrSubscriptionClosed
	}
	if !s.closeLocal() {
		return errors.ErrSubscriptionClosed
	}
	s.c.removeSub(s)

	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.w != nil && s.c.Status() == StatusReady {
		if err := s.c.w.Unsubscribe(s.sid, 0); err != nil {
			return err
		}
		s.c.kickFlusherLocked()
	}
	return nil
}

// AutoUnsubscribe installs a total-delivery budget of n messages, counting
// messages already delivered. When the budget is exhausted the
// subscription closes itself.
func (s *Subscription) AutoUnsubscribe(n int) error {
	if s.c == nil || s.closed.Load() {
		return errors.ErrSubscriptionClosed
	}
	if n <= 0 {
		return errors.WrapInvalid(
			errors.ErrInvalidConfig, "Subscription", "AutoUnsubscribe", "budget must be positive")
	}
	s.max.Store(int64(n))
	if s.delivered.Load() >= int64(n) {
		return s.Unsubscribe()
	}

	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.w != nil && s.c.Status() == StatusReady {
		remaining := int(int64(n) - s.delivered.Load())
		if err := s.c.w.Unsubscribe(s.sid, remaining); err != nil {
			return err
		}
		s.c.kickFlusherLocked()
	}
	return nil
}

func (s *Subscription) budgetExhausted() bool {
	max := s.max.Load()
	return max > 0 && s.delivered.Load() >= max
}

// dispatch routes one inbound message frame to its subscription. Unknown
// sids are dropped: they belong to subscriptions retired in this
// generation or replaced by a newer one.
func (c *Client) dispatch(f wire.MsgFrame) {
	s, ok := c.subs.Load(f.Sid)
	if !ok {
		return
	}

	msg := &Msg{
		Subject:     f.Subject,
		Reply:       f.Reply,
		Header:      f.Header,
		Data:        f.Payload,
		Status:      f.Status,
		Description: f.Description,
		sub:         s,
	}

	// Inbox deliveries route to the pending request table instead of a
	// subscriber queue.
	if s == c.respSub() {
		c.deliverResponse(msg)
		return
	}

	delivered := s.delivered.Add(1)
	if max := s.max.Load(); max > 0 && delivered > max {
		return
	}

	_ = s.pending.Write(msg)
	if m := c.metrics; m != nil {
		m.MsgsIn.Inc()
		m.BytesIn.Add(float64(len(f.Payload)))
	}

	if max := s.max.Load(); max > 0 && delivered == max {
		s.closeLocal()
		c.removeSub(s)
	}
}

// closeLocal marks the subscription finished and wakes blocked readers,
// without emitting UNSUB. Reports whether this call did the transition.
func (s *Subscription) closeLocal() bool {
	if s.closed.CompareAndSwap(false, true) {
		_ = s.pending.Close()
		return true
	}
	return false
}

func (c *Client) removeSub(s *Subscription) {
	if _, present := c.subs.LoadAndDelete(s.sid); present {
		if m := c.metrics; m != nil {
			m.Subscriptions.Dec()
		}
	}
	s.closeLocal()
}

func (c *Client) slowConsumer(s *Subscription) {
	if m := c.metrics; m != nil {
		m.SlowConsumers.Inc()
	}
	c.logger.Warn("slow consumer, dropping oldest pending message",
		"subject", s.Subject, "sid", s.sid)
	c.emit(Event{Kind: EventSlowConsumer, Err: errors.ErrSlowConsumer, Subscription: s})
}
