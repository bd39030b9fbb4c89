package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360/natswire/client"
	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/metric"
)

// Engine drives stream-backed consumption over an existing connection. It
// owns no sockets of its own; every consumer it hands out issues its admin
// calls, pull requests and acks through the one client it was built with,
// so closing the client invalidates all consumers at once.
type Engine struct {
	c       *client.Client
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "Engine", "WithLogger", "nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithMetrics wires the engine's counters into a metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(e *Engine) error {
		e.metrics = r.Core
		return nil
	}
}

// New builds an Engine on top of an established client.
func New(c *client.Client, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "Engine", "New", "nil client")
	}
	e := &Engine{
		c:      c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// newInbox returns a unique subject for consumer deliveries and pull
// replies.
func newInbox() string {
	return "_INBOX." + uuid.NewString()
}

// PullConsumer binds to an existing pull consumer, fetching its config so
// later ack calls can be checked against the ack policy.
func (e *Engine) PullConsumer(ctx context.Context, streamName, consumer string) (*PullConsumer, error) {
	info, err := e.consumerInfo(ctx, streamName, consumer)
	if err != nil {
		return nil, err
	}
	if !info.Config.IsPull() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: consumer %q has a deliver subject, use PushConsumer",
				errors.ErrInvalidConfig, consumer),
			"Engine", "PullConsumer", "bind pull consumer")
	}
	return &PullConsumer{
		e:           e,
		stream:      streamName,
		name:        consumer,
		policy:      info.Config.AckPolicy,
		nextSubject: fmt.Sprintf(apiConsumerNext, streamName, consumer),
	}, nil
}

// PushConsumer binds to an existing push consumer and subscribes to its
// delivery subject, joining the deliver group when the consumer has one.
func (e *Engine) PushConsumer(ctx context.Context, streamName, consumer string) (*PushConsumer, error) {
	info, err := e.consumerInfo(ctx, streamName, consumer)
	if err != nil {
		return nil, err
	}
	if info.Config.IsPull() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: consumer %q has no deliver subject, use PullConsumer",
				errors.ErrInvalidConfig, consumer),
			"Engine", "PushConsumer", "bind push consumer")
	}

	var sub *client.Subscription
	if g := info.Config.DeliverGroup; g != "" {
		sub, err = e.c.QueueSubscribe(info.Config.DeliverSubject, g)
	} else {
		sub, err = e.c.Subscribe(info.Config.DeliverSubject)
	}
	if err != nil {
		return nil, err
	}
	return &PushConsumer{
		e:      e,
		stream: streamName,
		name:   consumer,
		policy: info.Config.AckPolicy,
		sub:    sub,
	}, nil
}
