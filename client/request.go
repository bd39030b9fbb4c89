package client

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/c360/natswire/errors"
)

const inboxPrefix = "_INBOX."

// Request publishes data on subj and waits for the first reply. The reply
// arrives on this client's shared inbox subscription; a per-request token
// correlates it. A broker-synthesized 503 reply maps to ErrNoResponders.
func (c *Client) Request(ctx context.Context, subj string, data []byte) (*Msg, error) {
	return c.RequestMsg(ctx, &Msg{Subject: subj, Data: data})
}

// RequestMsg is Request with headers.
func (c *Client) RequestMsg(ctx context.Context, msg *Msg) (*Msg, error) {
	start := time.Now()

	reply, ch, err := c.registerRequest()
	if err != nil {
		return nil, err
	}
	defer c.retireRequest(reply)

	if err := c.publish(msg.Subject, reply, msg.Header, msg.Data); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.ErrRequestTimeout
		}
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.ErrConnectionLost
		}
		if resp.IsNoResponders() {
			return nil, errors.ErrNoResponders
		}
		if m := c.metrics; m != nil {
			m.RequestDuration.Observe(time.Since(start).Seconds())
		}
		return resp, nil
	}
}

// registerRequest ensures the shared inbox subscription exists for the
// current generation and installs a reply channel keyed by a fresh token.
// Registration happens before the publish so a fast responder cannot win
// the race against the requester.
func (c *Client) registerRequest() (reply string, ch chan *Msg, err error) {
	c.mu.Lock()
	if c.statusLocked() == StatusClosed {
		c.mu.Unlock()
		return "", nil, errors.ErrConnectionClosed
	}

	if c.respPrefix == "" {
		if err := c.setupResponderLocked(); err != nil {
			c.mu.Unlock()
			return "", nil, err
		}
	}

	token := strconv.FormatUint(c.respToken, 36)
	c.respToken++
	reply = c.respPrefix + token
	c.mu.Unlock()

	ch = make(chan *Msg, 1)
	c.resp.Store(token, ch)
	if m := c.metrics; m != nil {
		m.PendingRequests.Inc()
	}
	return reply, ch, nil
}

func (c *Client) retireRequest(reply string) {
	token := reply[strings.LastIndexByte(reply, '.')+1:]
	if _, present := c.resp.LoadAndDelete(token); present {
		if m := c.metrics; m != nil {
			m.PendingRequests.Dec()
		}
	}
}

// setupResponderLocked creates the generation's inbox namespace and the
// single wildcard subscription multiplexing all replies.
func (c *Client) setupResponderLocked() error {
	prefix := inboxPrefix + c.inboxToken + "."
	sid := c.nextSid.Add(1)

	s := &Subscription{
		Subject: prefix + ">",
		sid:     sid,
		c:       c,
	}
	c.subs.Store(sid, s)
	c.respSubVal.Store(s)
	c.respPrefix = prefix

	if c.w != nil && c.statusLocked() == StatusReady {
		if err := c.w.Subscribe(sid, s.Subject, ""); err != nil {
			return err
		}
		c.kickFlusherLocked()
	}
	return nil
}

func (c *Client) respSub() *Subscription {
	return c.respSubVal.Load()
}

// deliverResponse hands an inbox delivery to its waiting requester.
// Replies whose request already retired, or second replies to the same
// request, are dropped.
func (c *Client) deliverResponse(msg *Msg) {
	token := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]
	ch, present := c.resp.LoadAndDelete(token)
	if !present {
		return
	}
	if m := c.metrics; m != nil {
		m.PendingRequests.Dec()
		m.MsgsIn.Inc()
		m.BytesIn.Add(float64(len(msg.Data)))
	}
	ch <- msg
}

// failPendingRequests closes every in-flight reply channel. Called with the
// client mutex held when a connection generation dies; requesters observe
// ErrConnectionLost.
func (c *Client) failPendingRequestsLocked() {
	c.resp.Range(func(token string, ch chan *Msg) bool {
		if _, present := c.resp.LoadAndDelete(token); present {
			close(ch)
			if m := c.metrics; m != nil {
				m.PendingRequests.Dec()
			}
		}
		return true
	})

	// Retire the inbox namespace; the next request on the new generation
	// rebuilds it under a fresh token.
	if s := c.respSubVal.Load(); s != nil {
		c.subs.Delete(s.sid)
		c.respSubVal.Store(nil)
	}
	c.respPrefix = ""
}
