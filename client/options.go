package client

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/metric"
	"github.com/c360/natswire/pkg/retry"
)

// Defaults applied by Connect before options run.
const (
	DefaultTimeout         = 5 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultMaxPingsOut     = 2
	DefaultMaxReconnects   = 60
	DefaultDrainTimeout    = 30 * time.Second
	DefaultPendingLimit    = 8192
	DefaultReconnectJitter = 2 * time.Second
	DefaultEventBuffer     = 64
)

// Option is a functional option for configuring the Client.
type Option func(*Client) error

// WithServers adds explicit endpoints to the candidate pool in addition to
// the URL passed to Connect.
func WithServers(urls ...string) Option {
	return func(c *Client) error {
		c.servers = append(c.servers, urls...)
		return nil
	}
}

// WithName sets the client name sent to the broker.
func WithName(name string) Option {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithLogger sets a structured logger for connection lifecycle logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithTimeout sets the per-endpoint connect timeout, covering dial, TLS
// upgrade and the INFO/CONNECT exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.ErrInvalidConfig
		}
		c.timeout = d
		return nil
	}
}

// WithPingInterval sets the keepalive probe interval.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.ErrInvalidConfig
		}
		c.pingInterval = d
		return nil
	}
}

// WithMaxPingsOut sets how many keepalive probes may remain unanswered
// before the connection is declared stale.
func WithMaxPingsOut(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return errors.ErrInvalidConfig
		}
		c.maxPingsOut = n
		return nil
	}
}

// WithMaxReconnects bounds reconnect attempts per outage. -1 means
// unbounded.
func WithMaxReconnects(n int) Option {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectPolicy replaces the backoff schedule used between full
// passes over the server pool.
func WithReconnectPolicy(cfg retry.Config) Option {
	return func(c *Client) error {
		c.reconnectPolicy = cfg
		return nil
	}
}

// WithDrainTimeout bounds how long Drain waits for in-flight work.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.ErrInvalidConfig
		}
		c.drainTimeout = d
		return nil
	}
}

// WithPendingLimit sets the per-subscription delivery queue capacity, in
// messages. Overflow drops the oldest pending message and raises a
// slow-consumer event.
func WithPendingLimit(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return errors.ErrInvalidConfig
		}
		c.pendingLimit = n
		return nil
	}
}

// WithUserPassword sets username and password authentication.
func WithUserPassword(user, password string) Option {
	return func(c *Client) error {
		c.user = user
		c.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithNKey sets nkey seed authentication. The seed stays in memory only
// long enough to sign each connection nonce.
func WithNKey(seed []byte) Option {
	return func(c *Client) error {
		c.nkeySeed = seed
		return nil
	}
}

// WithCredentials sets JWT plus nkey authentication from a decorated
// credentials file.
func WithCredentials(path string) Option {
	return func(c *Client) error {
		c.credsPath = path
		return nil
	}
}

// WithTLS forces a TLS upgrade with the given configuration, even when the
// broker does not require one.
func WithTLS(conf *tls.Config) Option {
	return func(c *Client) error {
		c.tlsConfig = conf
		c.tlsRequired = true
		return nil
	}
}

// WithVerbose enables verify mode: every client frame is acknowledged by
// the broker and CONNECT waits for +OK.
func WithVerbose() Option {
	return func(c *Client) error {
		c.verbose = true
		return nil
	}
}

// WithNoEcho asks the broker not to deliver messages published by this
// connection back to its own subscriptions.
func WithNoEcho() Option {
	return func(c *Client) error {
		c.noEcho = true
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation using the provided
// registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}
		c.metrics = registry.Core
		return nil
	}
}
