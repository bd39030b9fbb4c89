package stream

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/natswire/client"
	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/pkg/retry"
)

// Header carrying the consumer sequence of the last delivery, set on idle
// heartbeats.
const lastConsumerSeqHeader = "Nats-Last-Consumer"

// DefaultOrderedHeartbeat is the idle heartbeat requested for ordered
// consumers when the config does not set one.
const DefaultOrderedHeartbeat = 5 * time.Second

// DefaultMaxRecreateAttempts bounds consecutive gap recoveries before the
// consumer gives up. The counter resets on every successful delivery.
const DefaultMaxRecreateAttempts = 10

// OrderedConfig configures an ordered consumer. The redelivery window
// across a recovery is bounded by MaxRecreateAttempts and the Backoff
// curve: each recreation restarts delivery at the last delivered stream
// sequence plus one, so a message is re-observed only when the broker
// cannot resume exactly there.
type OrderedConfig struct {
	// FilterSubject limits the consumer to matching stream subjects.
	FilterSubject string

	// Starting position for the first consumer incarnation. Recreated
	// incarnations always resume by start sequence instead.
	DeliverPolicy DeliverPolicy
	OptStartSeq   uint64
	OptStartTime  *time.Time

	// Heartbeat is the requested idle heartbeat interval. Missing
	// heartbeats are treated as lost deliveries.
	Heartbeat time.Duration

	// MaxRecreateAttempts caps consecutive recreations; zero means
	// DefaultMaxRecreateAttempts.
	MaxRecreateAttempts int

	// Backoff paces recreation attempts; the zero value means the
	// recovery preset.
	Backoff retry.Config
}

// OrderedConsumer is a push consumer that guarantees in-order delivery
// with no permanent gaps. On a sequence gap, a missed heartbeat or a
// reconnect it silently deletes and recreates its ephemeral consumer from
// the last delivered stream sequence. Delivery across a recovery is
// at least once, never exactly once.
//
// Next must be called from one goroutine at a time; Stop may be called
// from any.
type OrderedConsumer struct {
	e      *Engine
	stream string
	cfg    OrderedConfig

	mu   sync.Mutex
	sub  *client.Subscription
	name string

	consumerSeq uint64
	streamSeq   uint64
	attempts    int
	delay       time.Duration

	stopped atomic.Bool
}

// OrderedConsumer creates an ephemeral ordered consumer on streamName.
func (e *Engine) OrderedConsumer(ctx context.Context, streamName string, cfg OrderedConfig) (*OrderedConsumer, error) {
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = DefaultOrderedHeartbeat
	}
	if cfg.MaxRecreateAttempts == 0 {
		cfg.MaxRecreateAttempts = DefaultMaxRecreateAttempts
	}
	if cfg.Backoff == (retry.Config{}) {
		cfg.Backoff = retry.Recovery()
	}

	o := &OrderedConsumer{
		e:      e,
		stream: streamName,
		cfg:    cfg,
	}
	if err := o.bind(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// consumerConfig builds the config for one incarnation. The first starts
// where OrderedConfig says; later ones resume after the last delivered
// stream sequence.
func (o *OrderedConsumer) consumerConfig(inbox string) ConsumerConfig {
	cc := ConsumerConfig{
		FilterSubject:     o.cfg.FilterSubject,
		DeliverSubject:    inbox,
		DeliverPolicy:     o.cfg.DeliverPolicy,
		OptStartSeq:       o.cfg.OptStartSeq,
		OptStartTime:      o.cfg.OptStartTime,
		AckPolicy:         AckNone,
		FlowControl:       true,
		Heartbeat:         o.cfg.Heartbeat,
		MemoryStorage:     true,
		Replicas:          1,
		InactiveThreshold: 5 * time.Minute,
	}
	if o.streamSeq > 0 {
		cc.DeliverPolicy = DeliverByStartSequence
		cc.OptStartSeq = o.streamSeq + 1
		cc.OptStartTime = nil
	}
	return cc
}

// bind subscribes a fresh delivery inbox and creates the consumer behind
// it. The subscription goes up first so no delivery can be missed.
func (o *OrderedConsumer) bind(ctx context.Context) error {
	inbox := newInbox()
	sub, err := o.e.c.Subscribe(inbox)
	if err != nil {
		return err
	}
	info, err := o.e.createConsumer(ctx, o.stream, o.consumerConfig(inbox))
	if err != nil {
		_ = sub.Unsubscribe()
		return err
	}

	o.mu.Lock()
	o.sub = sub
	o.name = info.Name
	o.consumerSeq = 0
	o.mu.Unlock()
	return nil
}

func (o *OrderedConsumer) currentSub() *client.Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sub
}

// Next returns the next message in stream order, recovering from gaps
// transparently. Messages from ordered consumers are never acked; their
// ack methods return ErrNoAckPolicy.
func (o *OrderedConsumer) Next(ctx context.Context) (*Msg, error) {
	for {
		sub := o.currentSub()
		if sub == nil || o.stopped.Load() {
			return nil, errors.ErrSubscriptionClosed
		}

		wait, cancel := context.WithTimeout(ctx, 3*o.cfg.Heartbeat)
		m, err := sub.Next(wait)
		cancel()
		if err != nil {
			if wait.Err() != nil && ctx.Err() == nil && !o.stopped.Load() {
				// Heartbeats stopped arriving; assume the consumer or
				// its deliveries are gone.
				if rerr := o.recover(ctx); rerr != nil {
					return nil, rerr
				}
				continue
			}
			return nil, err
		}

		if m.IsFlowControl() {
			if m.Reply != "" {
				_ = o.e.c.Publish(m.Reply, nil)
			}
			continue
		}
		if m.IsIdleHeartbeat() {
			if last, ok := heartbeatLastSeq(m.Header.Get(lastConsumerSeqHeader)); ok && last != o.consumerSeq {
				if rerr := o.recover(ctx); rerr != nil {
					return nil, rerr
				}
			}
			continue
		}

		meta, err := ParseMetadata(m.Reply)
		if err != nil {
			o.e.logger.Warn("ordered delivery without ack subject, dropping",
				"stream", o.stream, "consumer", o.name, "subject", m.Subject)
			continue
		}
		if meta.Sequence.Consumer != o.consumerSeq+1 {
			if rerr := o.recover(ctx); rerr != nil {
				return nil, rerr
			}
			continue
		}

		o.consumerSeq = meta.Sequence.Consumer
		o.streamSeq = meta.Sequence.Stream
		o.attempts = 0
		o.delay = 0
		return wrapMsg(m, AckNone), nil
	}
}

func heartbeatLastSeq(v string) (uint64, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// recover replaces the current consumer incarnation with a fresh one
// resuming after the last delivered stream sequence. Attempts are
// consecutive: any successful delivery resets the budget.
func (o *OrderedConsumer) recover(ctx context.Context) error {
	for {
		o.attempts++
		if o.attempts > o.cfg.MaxRecreateAttempts {
			o.Stop()
			return errors.WrapFatal(
				errors.ErrOrderedRecoveryGave, "OrderedConsumer", "recover", "recreate attempts exhausted")
		}

		o.delay = o.cfg.Backoff.NextDelay(o.delay)
		timer := time.NewTimer(o.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		o.teardown()
		if err := o.bind(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.e.logger.Warn("ordered consumer recreation failed",
				"stream", o.stream, "attempt", o.attempts, "error", err)
			continue
		}

		if m := o.e.metrics; m != nil {
			m.ConsumerRecreations.Inc()
		}
		o.e.logger.Info("ordered consumer recreated",
			"stream", o.stream, "consumer", o.name, "resume_after", o.streamSeq)
		return nil
	}
}

// teardown retires the current subscription and deletes the consumer
// broker side, best effort.
func (o *OrderedConsumer) teardown() {
	o.mu.Lock()
	sub, name := o.sub, o.name
	o.sub, o.name = nil, ""
	o.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if name != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.e.deleteConsumer(ctx, o.stream, name); err != nil {
			o.e.logger.Debug("ordered consumer delete failed",
				"stream", o.stream, "consumer", name, "error", err)
		}
	}
}

// Stop ends the sequence, retiring the subscription and the broker-side
// consumer.
func (o *OrderedConsumer) Stop() {
	if o.stopped.CompareAndSwap(false, true) {
		o.teardown()
	}
}
