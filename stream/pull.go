package stream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/natswire/client"
	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/wire"
)

// DefaultFetchExpires is the server-side lifetime of a pull request when
// the caller does not set one.
const DefaultFetchExpires = 30 * time.Second

// expiryGrace is how long past a request's expiry the client keeps
// waiting for the broker's terminating status before giving up locally.
const expiryGrace = time.Second

// PullConsumer issues explicit pull requests against a consumer and
// exposes the replies as bounded batches or a refilling sequence.
type PullConsumer struct {
	e           *Engine
	stream      string
	name        string
	policy      AckPolicy
	nextSubject string
}

// pullRequest is the body published on the consumer's next subject.
type pullRequest struct {
	Batch    int   `json:"batch"`
	MaxBytes int   `json:"max_bytes,omitempty"`
	Expires  int64 `json:"expires,omitempty"`
	NoWait   bool  `json:"no_wait,omitempty"`
}

type fetchOpts struct {
	maxBytes int
	expires  time.Duration
	noWait   bool
}

// FetchOpt tunes one Fetch call.
type FetchOpt func(*fetchOpts) error

// FetchMaxBytes caps the total payload bytes of the batch; the broker
// ends the batch once the budget is exhausted.
func FetchMaxBytes(n int) FetchOpt {
	return func(o *fetchOpts) error {
		if n <= 0 {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "PullConsumer", "FetchMaxBytes", "byte budget must be positive")
		}
		o.maxBytes = n
		return nil
	}
}

// FetchExpires bounds how long the broker holds the request open waiting
// for messages.
func FetchExpires(d time.Duration) FetchOpt {
	return func(o *fetchOpts) error {
		if d <= 0 {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "PullConsumer", "FetchExpires", "expiry must be positive")
		}
		o.expires = d
		return nil
	}
}

// FetchNoWait makes the broker answer immediately with whatever is
// available instead of holding the request open.
func FetchNoWait() FetchOpt {
	return func(o *fetchOpts) error {
		o.noWait = true
		return nil
	}
}

// Batch is the result of one Fetch. Messages is closed when the batch
// ends; Error reports why, and is nil for every normal ending (batch
// filled, byte budget spent, or request expiry).
type Batch struct {
	msgs chan *Msg

	mu  sync.Mutex
	err error
}

// Messages returns the channel batch messages arrive on.
func (b *Batch) Messages() <-chan *Msg {
	return b.msgs
}

// Error reports the terminal error of the batch, if any. Meaningful once
// Messages has been drained.
func (b *Batch) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Batch) finish(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	close(b.msgs)
}

// Fetch issues one pull request for up to batch messages and returns the
// replies as a finite sequence. The sequence ends when the batch or byte
// budget is exhausted or the request expires broker side, whichever comes
// first. A consumer-deleted status surfaces through Batch.Error.
func (p *PullConsumer) Fetch(ctx context.Context, batch int, opts ...FetchOpt) (*Batch, error) {
	if batch <= 0 {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "PullConsumer", "Fetch", "batch must be positive")
	}
	o := fetchOpts{expires: DefaultFetchExpires}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	inbox := newInbox()
	sub, err := p.e.c.Subscribe(inbox)
	if err != nil {
		return nil, err
	}
	if err := p.request(inbox, batch, o); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	b := &Batch{msgs: make(chan *Msg, batch)}
	go p.collect(ctx, sub, b, batch, o.expires)
	return b, nil
}

func (p *PullConsumer) request(inbox string, batch int, o fetchOpts) error {
	req := pullRequest{
		Batch:    batch,
		MaxBytes: o.maxBytes,
		NoWait:   o.noWait,
	}
	if !o.noWait {
		req.Expires = o.expires.Nanoseconds()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.WrapInvalid(err, "PullConsumer", "request", "encode pull request")
	}
	return p.e.c.PublishMsg(&client.Msg{
		Subject: p.nextSubject,
		Reply:   inbox,
		Data:    payload,
	})
}

// collect drains one pull request's replies into the batch. It owns the
// inbox subscription and retires it when the batch ends.
func (p *PullConsumer) collect(ctx context.Context, sub *client.Subscription, b *Batch, batch int, expires time.Duration) {
	defer func() { _ = sub.Unsubscribe() }()

	// The broker terminates the request at expiry with a status frame;
	// the local guard only fires if that frame never arrives.
	guard, cancel := context.WithTimeout(ctx, expires+expiryGrace)
	defer cancel()

	received := 0
	for received < batch {
		m, err := sub.Next(guard)
		if err != nil {
			if guard.Err() != nil && ctx.Err() == nil {
				b.finish(nil)
				return
			}
			b.finish(err)
			return
		}
		done, err := p.terminal(m)
		if err != nil {
			b.finish(err)
			return
		}
		if done {
			b.finish(nil)
			return
		}
		if m.Status == wire.StatusControl {
			continue
		}
		received++
		b.msgs <- wrapMsg(m, p.policy)
	}
	b.finish(nil)
}

// terminal classifies a status reply that ends the pull request. No
// messages, request expiry and exceeded limits are normal endings;
// a deleted consumer is fatal for the sequence.
func (p *PullConsumer) terminal(m *client.Msg) (bool, error) {
	switch m.Status {
	case wire.StatusNoMessages, wire.StatusRequestTimeout:
		return true, nil
	case wire.StatusExceededLimits:
		if m.Description == "Consumer Deleted" {
			return true, errors.WrapFatal(
				errors.ErrConsumerDeleted, "PullConsumer", "terminal", "consumer deleted mid pull")
		}
		return true, nil
	}
	return false, nil
}

// MessagesOpt tunes a Messages iterator.
type MessagesOpt func(*messagesOpts) error

type messagesOpts struct {
	batch     int
	threshold int
	expires   time.Duration
	maxBytes  int
}

// WithBatchSize sets how many messages each underlying pull request asks
// for.
func WithBatchSize(n int) MessagesOpt {
	return func(o *messagesOpts) error {
		if n <= 0 {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "PullConsumer", "WithBatchSize", "batch must be positive")
		}
		o.batch = n
		return nil
	}
}

// WithRefillThreshold sets the outstanding-message level below which the
// iterator issues the next pull request.
func WithRefillThreshold(n int) MessagesOpt {
	return func(o *messagesOpts) error {
		if n < 0 {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "PullConsumer", "WithRefillThreshold", "threshold cannot be negative")
		}
		o.threshold = n
		return nil
	}
}

// WithMessagesExpires sets the per-request expiry for the iterator's pull
// requests.
func WithMessagesExpires(d time.Duration) MessagesOpt {
	return func(o *messagesOpts) error {
		if d <= 0 {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "PullConsumer", "WithMessagesExpires", "expiry must be positive")
		}
		o.expires = d
		return nil
	}
}

// MessageIterator is an effectively unbounded sequence of messages fed by
// transparently refilled pull requests. It runs until Stop is called or
// the broker reports the consumer gone.
type MessageIterator struct {
	p       *PullConsumer
	sub     *client.Subscription
	inbox   string
	opts    messagesOpts
	pending int
	stopped atomic.Bool
}

// Messages starts a refilling pull sequence. The first request goes out
// immediately; later ones are issued as the outstanding count drops below
// the refill threshold.
func (p *PullConsumer) Messages(opts ...MessagesOpt) (*MessageIterator, error) {
	o := messagesOpts{
		batch:   100,
		expires: DefaultFetchExpires,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.threshold == 0 {
		o.threshold = o.batch / 2
	}
	if o.threshold >= o.batch {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "PullConsumer", "Messages", "refill threshold must be below the batch size")
	}

	inbox := newInbox()
	sub, err := p.e.c.Subscribe(inbox)
	if err != nil {
		return nil, err
	}
	return &MessageIterator{
		p:     p,
		sub:   sub,
		inbox: inbox,
		opts:  o,
	}, nil
}

// Next returns the next message, issuing pull requests as needed. It
// blocks until a message arrives or ctx ends. A deleted consumer is fatal
// and stops the iterator.
func (it *MessageIterator) Next(ctx context.Context) (*Msg, error) {
	if it.stopped.Load() {
		return nil, errors.ErrSubscriptionClosed
	}
	for {
		if it.pending <= it.opts.threshold {
			o := fetchOpts{maxBytes: it.opts.maxBytes, expires: it.opts.expires}
			if err := it.p.request(it.inbox, it.opts.batch, o); err != nil {
				return nil, err
			}
			it.pending += it.opts.batch
		}

		m, err := it.sub.Next(ctx)
		if err != nil {
			if stderrors.Is(err, errors.ErrSubscriptionClosed) {
				it.stopped.Store(true)
			}
			return nil, err
		}
		if done, terr := it.p.terminal(m); done {
			// One outstanding request ended; force a refill on the
			// next pass. Which request ended is not identified, so
			// the count restarts conservatively.
			it.pending = 0
			if terr != nil {
				it.Stop()
				return nil, terr
			}
			continue
		}
		if m.Status == wire.StatusControl {
			continue
		}
		if it.pending > 0 {
			it.pending--
		}
		return wrapMsg(m, it.p.policy), nil
	}
}

// Stop ends the sequence and retires the inbox subscription. Messages
// already buffered are discarded.
func (it *MessageIterator) Stop() {
	if it.stopped.CompareAndSwap(false, true) {
		_ = it.sub.Unsubscribe()
	}
}
