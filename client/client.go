// Package client implements the connection layer: server pool rotation,
// the connection lifecycle state machine, subscription dispatch and the
// request/reply primitive.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/metric"
	"github.com/c360/natswire/pkg/retry"
	"github.com/c360/natswire/subject"
	"github.com/c360/natswire/wire"
)

// Version is reported to the broker in CONNECT.
const Version = "1.0.0"

// maxPendingBytes bounds the outbound buffer carried across a reconnect.
const maxPendingBytes = 8 << 20

// Client is one logical connection to a broker cluster. It survives
// individual socket failures by reconnecting and replaying its
// subscription set; at most one socket is live at a time.
type Client struct {
	// Configuration, set by options before any connection exists.
	servers         []string
	name            string
	logger          *slog.Logger
	timeout         time.Duration
	pingInterval    time.Duration
	maxPingsOut     int
	maxReconnects   int
	reconnectPolicy retry.Config
	drainTimeout    time.Duration
	pendingLimit    int
	user            string
	password        string
	token           string
	nkeySeed        []byte
	credsPath       string
	tlsConfig       *tls.Config
	tlsRequired     bool
	verbose         bool
	noEcho          bool
	metrics         *metric.Metrics

	pool *serverPool

	// Connection state. mu serializes state transitions and the write
	// side of the live socket.
	mu         sync.Mutex
	statusVal  atomic.Int32
	conn       net.Conn
	w          *wire.Writer
	info       wire.ServerInfo
	generation uint64
	connDone   chan struct{}
	pingsOut   int
	pongs      []chan struct{}

	// Outbound frames encoded while no socket is live, replayed on the
	// next Ready transition.
	pendingBuf *bytes.Buffer
	pendingW   *wire.Writer

	// Subscription registry.
	subs    *xsync.Map[uint64, *Subscription]
	nextSid atomic.Uint64

	// Request correlation.
	resp       *xsync.Map[string, chan *Msg]
	respPrefix string
	respToken  uint64
	respSubVal atomic.Pointer[Subscription]
	inboxToken string

	flushCh chan struct{}
	events  chan Event
	done    chan struct{}
	closed  atomic.Bool
}

// Connect establishes a connection to url (and any endpoints added with
// WithServers) and returns a ready client. The first endpoint pass is
// synchronous; failure of every candidate returns ErrNoServers.
func Connect(url string, opts ...Option) (*Client, error) {
	c := &Client{
		logger:          slog.Default(),
		timeout:         DefaultTimeout,
		pingInterval:    DefaultPingInterval,
		maxPingsOut:     DefaultMaxPingsOut,
		maxReconnects:   DefaultMaxReconnects,
		reconnectPolicy: retry.Reconnect(),
		drainTimeout:    DefaultDrainTimeout,
		pendingLimit:    DefaultPendingLimit,
		subs:            xsync.NewMap[uint64, *Subscription](),
		resp:            xsync.NewMap[string, chan *Msg](),
		flushCh:         make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	c.servers = []string{url}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "Connect", "apply option")
		}
	}
	c.events = make(chan Event, DefaultEventBuffer)
	c.pendingBuf = &bytes.Buffer{}
	c.pendingW = wire.NewWriter(c.pendingBuf)

	pool, err := newServerPool(c.servers, c.reconnectPolicy)
	if err != nil {
		return nil, err
	}
	c.pool = pool

	var lastErr error
	for range pool.size() {
		e, _ := pool.next()
		if lastErr = c.connectTo(e); lastErr == nil {
			pool.markConnected(e)
			c.emit(Event{Kind: EventConnected, URL: e.url.String()})
			return c, nil
		}
		pool.markFailed(e)
		c.countConnectError(lastErr)
		c.logger.Warn("connect attempt failed", "url", e.url.String(), "error", lastErr)
	}
	c.setStatus(StatusClosed)
	return nil, errors.WrapTransient(
		fmt.Errorf("%w: %v", errors.ErrNoServers, lastErr),
		"Client", "Connect", "exhausted initial endpoint pass")
}

// Status returns the connection lifecycle state.
func (c *Client) Status() Status {
	return Status(c.statusVal.Load())
}

func (c *Client) statusLocked() Status {
	return Status(c.statusVal.Load())
}

func (c *Client) setStatus(s Status) {
	c.statusVal.Store(int32(s))
	if m := c.metrics; m != nil {
		m.ConnectionStatus.Set(float64(s))
	}
}

// ConnectedURL returns the endpoint of the live connection, or "".
func (c *Client) ConnectedURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// MaxPayload returns the payload ceiling advertised by the connected
// broker, or 0 before the first INFO.
func (c *Client) MaxPayload() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.MaxPayload
}

// connectTo runs the full handshake against one endpoint and, on success,
// installs the socket as the new connection generation.
func (c *Client) connectTo(e *endpoint) error {
	c.setStatus(StatusConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	conn, err := c.dialEndpoint(ctx, e)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.timeout)
	_ = conn.SetDeadline(deadline)

	conn, p, w, info, err := c.handshake(conn, e)
	if err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.w = w
	c.info = info
	c.generation++
	c.inboxToken = uuid.NewString()
	c.pingsOut = 0
	c.connDone = make(chan struct{})
	gen := c.generation
	done := c.connDone
	c.setStatus(StatusReady)

	if err := c.replayStateLocked(); err != nil {
		c.teardownLocked()
		c.setStatus(StatusDisconnected)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.kickFlusher()

	go c.readLoop(p, gen)
	go c.flushLoop(gen, done)
	go c.keepaliveLoop(gen, done)
	return nil
}

// handshake consumes INFO, performs the TLS upgrade when required, sends
// CONNECT and waits for the PONG (and +OK in verify mode) that proves the
// broker accepted it.
func (c *Client) handshake(conn net.Conn, e *endpoint) (net.Conn, *wire.Parser, *wire.Writer, wire.ServerInfo, error) {
	var none wire.ServerInfo

	p := wire.NewParser(conn)
	f, err := p.Next()
	if err != nil {
		return conn, nil, nil, none, errors.WrapTransient(err, "Client", "handshake", "read INFO")
	}
	infoF, ok := f.(wire.InfoFrame)
	if !ok {
		return conn, nil, nil, none, errors.WrapFatal(
			fmt.Errorf("%w: first frame was not INFO", errors.ErrProtocol),
			"Client", "handshake", "read INFO")
	}
	info := infoF.Info
	if len(info.ConnectURLs) > 0 {
		c.pool.merge(info.ConnectURLs)
	}

	websocketEndpoint := e.url.Scheme == "ws" || e.url.Scheme == "wss"
	if (info.TLSRequired || c.tlsRequired) && !websocketEndpoint {
		upgraded, err := c.upgradeTLS(conn, e.url.Hostname())
		if err != nil {
			return conn, nil, nil, none, err
		}
		conn = upgraded
		p = wire.NewParser(conn)
	}

	c.setStatus(StatusAuthenticating)

	ci := wire.ConnectInfo{
		Verbose:      c.verbose,
		TLSRequired:  info.TLSRequired || c.tlsRequired,
		Headers:      true,
		NoResponders: true,
		Echo:         !c.noEcho,
		Lang:         "go",
		Version:      Version,
		Protocol:     1,
		Name:         c.name,
	}
	if err := c.fillAuth(&ci, info.Nonce); err != nil {
		return conn, nil, nil, none, err
	}

	w := wire.NewWriter(writeDeadlineConn{Conn: conn, timeout: c.timeout})
	w.SetMaxPayload(info.MaxPayload)
	if err := w.Connect(ci); err != nil {
		return conn, nil, nil, none, err
	}
	if err := w.Ping(); err != nil {
		return conn, nil, nil, none, err
	}
	if err := w.Flush(); err != nil {
		return conn, nil, nil, none, errors.WrapTransient(err, "Client", "handshake", "flush CONNECT")
	}

	// In verify mode +OK precedes the PONG; either way PONG completes the
	// handshake. An -ERR here is an authentication or authorization
	// rejection.
	for {
		f, err := p.Next()
		if err != nil {
			return conn, nil, nil, none, errors.WrapTransient(err, "Client", "handshake", "await PONG")
		}
		switch f := f.(type) {
		case wire.PongFrame:
			return conn, p, w, info, nil
		case wire.OKFrame:
			continue
		case wire.ErrFrame:
			return conn, nil, nil, none, authError(f.Message)
		default:
			continue
		}
	}
}

func authError(msg string) error {
	lower := strings.ToLower(msg)
	base := errors.ErrAuthorization
	if strings.Contains(lower, "expired") {
		base = errors.ErrAuthExpired
	}
	return errors.WrapFatal(
		fmt.Errorf("%w: %s", base, msg), "Client", "handshake", "authenticate")
}

// replayStateLocked re-emits the standing state onto a fresh connection:
// every open subscription with any remaining delivery budget, the inbox
// subscription when requests are active, and frames buffered while
// disconnected.
func (c *Client) replayStateLocked() error {
	var err error
	c.subs.Range(func(sid uint64, s *Subscription) bool {
		if s.closed.Load() {
			return true
		}
		if e := c.w.Subscribe(sid, s.Subject, s.Queue); e != nil {
			err = e
			return false
		}
		if max := s.max.Load(); max > 0 {
			remaining := max - s.delivered.Load()
			if remaining <= 0 {
				return true
			}
			if e := c.w.Unsubscribe(sid, int(remaining)); e != nil {
				err = e
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	if c.pendingBuf.Len() > 0 {
		if err := c.w.WriteRaw(c.pendingBuf.Bytes()); err != nil {
			return err
		}
		c.pendingBuf.Reset()
	}
	return nil
}

// readLoop owns the parser for one connection generation.
func (c *Client) readLoop(p *wire.Parser, gen uint64) {
	for {
		f, err := p.Next()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}
		switch f := f.(type) {
		case wire.MsgFrame:
			c.dispatch(f)
		case wire.PingFrame:
			c.mu.Lock()
			if c.w != nil {
				_ = c.w.Pong()
			}
			c.mu.Unlock()
			c.kickFlusher()
		case wire.PongFrame:
			c.processPong()
		case wire.InfoFrame:
			c.processInfo(f.Info)
		case wire.ErrFrame:
			if fatal := c.processErr(f.Message); fatal != nil {
				c.handleDisconnect(gen, fatal)
				return
			}
		case wire.OKFrame:
			// Verify-mode acknowledgement, nothing to correlate it with.
		}
	}
}

func (c *Client) processPong() {
	c.mu.Lock()
	c.pingsOut = 0
	if m := c.metrics; m != nil {
		m.PingsOutstanding.Set(0)
	}
	var ch chan struct{}
	if len(c.pongs) > 0 {
		ch = c.pongs[0]
		c.pongs = c.pongs[1:]
	}
	c.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (c *Client) processInfo(info wire.ServerInfo) {
	if len(info.ConnectURLs) > 0 {
		c.pool.merge(info.ConnectURLs)
	}
	c.mu.Lock()
	if info.MaxPayload > 0 {
		c.info.MaxPayload = info.MaxPayload
		if c.w != nil {
			c.w.SetMaxPayload(info.MaxPayload)
		}
	}
	c.mu.Unlock()
	if info.LameDuckMode {
		c.logger.Info("broker entering lame duck mode", "server", info.ServerID)
	}
}

// processErr decides whether a broker error tears the connection down.
// Returns nil for errors scoped to a single operation.
func (c *Client) processErr(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "authorization") ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "account"):
		return authError(msg)
	case strings.Contains(lower, "stale connection"):
		return errors.ErrStaleConnection
	case strings.Contains(lower, "permissions violation") ||
		strings.Contains(lower, "invalid subject"):
		c.logger.Warn("broker rejected operation", "error", msg)
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("%w: %s", errors.ErrProtocol, msg)})
		return nil
	case strings.Contains(lower, "maximum payload"):
		c.emit(Event{Kind: EventError, Err: errors.ErrMaxPayload})
		return nil
	default:
		return errors.WrapTransient(
			fmt.Errorf("broker error: %s", msg), "Client", "readLoop", "handle broker error")
	}
}

// flushLoop pushes coalesced writes to the socket whenever a writer
// signals. One instance runs per connection generation.
func (c *Client) flushLoop(gen uint64, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.flushCh:
		}
		c.mu.Lock()
		var err error
		if c.w != nil && c.generation == gen && c.w.Buffered() > 0 {
			err = c.w.Flush()
		}
		c.mu.Unlock()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}
	}
}

// keepaliveLoop probes the broker on PingInterval. A probe budget overrun
// declares the connection stale.
func (c *Client) keepaliveLoop(gen uint64, done chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		if c.generation != gen || c.w == nil || c.statusLocked() != StatusReady {
			c.mu.Unlock()
			return
		}
		c.pingsOut++
		if m := c.metrics; m != nil {
			m.PingsOutstanding.Set(float64(c.pingsOut))
		}
		if c.pingsOut > c.maxPingsOut {
			c.mu.Unlock()
			c.handleDisconnect(gen, errors.ErrStaleConnection)
			return
		}
		// Placeholder slot keeps the pong queue aligned with every PING
		// written, so a keepalive PONG never releases a Flush waiter.
		c.pongs = append(c.pongs, nil)
		_ = c.w.Ping()
		c.mu.Unlock()
		c.kickFlusher()
	}
}

// teardownLocked closes the live socket and invalidates everything scoped
// to its generation.
func (c *Client) teardownLocked() {
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.w = nil
	c.failPendingRequestsLocked()
	for _, ch := range c.pongs {
		if ch != nil {
			close(ch)
		}
	}
	c.pongs = nil
}

// handleDisconnect is the single funnel for connection failure: reader
// errors, flush errors, stale keepalive and fatal broker errors all land
// here. The generation check makes duplicate reports harmless.
func (c *Client) handleDisconnect(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed.Load() || c.generation != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	st := c.statusLocked()
	c.teardownLocked()
	if st == StatusDraining {
		c.mu.Unlock()
		c.closeClient(cause)
		return
	}
	c.setStatus(StatusReconnecting)
	c.mu.Unlock()

	c.logger.Warn("connection lost", "error", cause)
	c.emit(Event{Kind: EventDisconnected, Err: cause})
	go c.reconnectLoop(cause)
}

// reconnectLoop rotates the server pool until a connection lands or the
// reconnect budget is spent.
func (c *Client) reconnectLoop(cause error) {
	attempts := 0
	for {
		if c.closed.Load() {
			return
		}
		if c.maxReconnects >= 0 && attempts >= c.maxReconnects {
			c.logger.Error("reconnect budget exhausted", "attempts", attempts, "cause", cause)
			c.emit(Event{Kind: EventConnectionLost, Err: cause})
			c.closeClient(cause)
			return
		}
		e, wait := c.pool.next()
		if wait > 0 {
			select {
			case <-c.done:
				return
			case <-time.After(wait):
			}
		}
		attempts++
		if err := c.connectTo(e); err != nil {
			c.pool.markFailed(e)
			c.countConnectError(err)
			c.logger.Debug("reconnect attempt failed",
				"url", e.url.String(), "attempt", attempts, "error", err)
			continue
		}
		c.pool.markConnected(e)
		if m := c.metrics; m != nil {
			m.Reconnects.Inc()
		}
		c.logger.Info("reconnected", "url", e.url.String(), "attempts", attempts)
		c.emit(Event{Kind: EventReconnected, URL: e.url.String()})
		return
	}
}

func (c *Client) countConnectError(err error) {
	if m := c.metrics; m == nil {
		return
	}
	kind := "transport"
	switch {
	case errors.IsFatal(err):
		kind = "fatal"
	case errors.IsInvalid(err):
		kind = "invalid"
	}
	c.metrics.ConnectErrors.WithLabelValues(kind).Inc()
}

// Publish sends data on subj, fire and forget.
func (c *Client) Publish(subj string, data []byte) error {
	return c.publish(subj, "", nil, data)
}

// PublishMsg sends msg, honoring its Reply and Header fields.
func (c *Client) PublishMsg(msg *Msg) error {
	return c.publish(msg.Subject, msg.Reply, msg.Header, msg.Data)
}

func (c *Client) publish(subj, reply string, hdr wire.Header, data []byte) error {
	if err := subject.ValidateLiteral(subj); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.statusLocked() {
	case StatusClosed:
		c.mu.Unlock()
		return errors.ErrConnectionClosed
	case StatusReady:
		err := c.w.Publish(subj, reply, hdr, data)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	default:
		// No live socket; buffer the frame for replay after reconnect.
		if c.pendingBuf.Len()+len(data) > maxPendingBytes {
			c.mu.Unlock()
			return errors.WrapTransient(
				errors.ErrConnectionLost, "Client", "publish", "reconnect buffer full")
		}
		err := c.pendingW.Publish(subj, reply, hdr, data)
		if err == nil {
			err = c.pendingW.Flush()
		}
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}

	if m := c.metrics; m != nil {
		m.MsgsOut.Inc()
		m.BytesOut.Add(float64(len(data)))
	}
	c.kickFlusher()
	return nil
}

// Flush performs a PING round trip, proving every previously written frame
// reached the broker.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.statusLocked() != StatusReady || c.w == nil {
		st := c.statusLocked()
		c.mu.Unlock()
		if st == StatusClosed {
			return errors.ErrConnectionClosed
		}
		return errors.ErrConnectionLost
	}
	ch := make(chan struct{})
	c.pongs = append(c.pongs, ch)
	err := c.w.Ping()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.kickFlusher()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	}
	// The channel also closes when the connection dies mid-flush.
	if c.Status() != StatusReady {
		return errors.ErrConnectionLost
	}
	return nil
}

func (c *Client) kickFlusher() {
	select {
	case c.flushCh <- struct{}{}:
	default:
	}
}

// kickFlusherLocked is kickFlusher for call sites already holding mu; the
// signal channel itself needs no lock.
func (c *Client) kickFlusherLocked() {
	c.kickFlusher()
}

// Drain stops new subscriptions, lets delivered messages and in-flight
// requests complete within the drain timeout, then closes the client.
func (c *Client) Drain() error {
	c.mu.Lock()
	switch c.statusLocked() {
	case StatusClosed:
		c.mu.Unlock()
		return errors.ErrConnectionClosed
	case StatusDraining:
		c.mu.Unlock()
		return errors.ErrConnectionDrain
	}
	c.setStatus(StatusDraining)

	// Stop broker deliveries for every subscription; queued messages
	// remain readable until the deadline.
	if c.w != nil {
		c.subs.Range(func(sid uint64, s *Subscription) bool {
			if s != c.respSub() && !s.closed.Load() {
				_ = c.w.Unsubscribe(sid, 0)
			}
			return true
		})
	}
	c.mu.Unlock()
	c.kickFlusher()

	deadline := time.Now().Add(c.drainTimeout)
	for time.Now().Before(deadline) {
		if c.drainComplete() {
			break
		}
		select {
		case <-c.done:
			return errors.ErrConnectionClosed
		case <-time.After(50 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	_ = c.Flush(ctx)
	cancel()
	c.closeClient(nil)
	return nil
}

// drainComplete reports whether every subscription queue is empty and no
// request is in flight.
func (c *Client) drainComplete() bool {
	inflight := 0
	c.resp.Range(func(string, chan *Msg) bool {
		inflight++
		return false
	})
	if inflight > 0 {
		return false
	}
	empty := true
	c.subs.Range(func(_ uint64, s *Subscription) bool {
		if s != c.respSub() && s.Pending() > 0 {
			empty = false
			return false
		}
		return true
	})
	return empty
}

// Close tears the connection down immediately. Pending requests fail,
// subscriptions close, buffered messages are dropped.
func (c *Client) Close() {
	c.closeClient(nil)
}

func (c *Client) closeClient(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	c.teardownLocked()
	c.setStatus(StatusClosed)
	c.pendingBuf.Reset()
	close(c.done)
	c.mu.Unlock()

	c.subs.Range(func(_ uint64, s *Subscription) bool {
		s.closeLocal()
		return true
	})

	if cause != nil {
		c.logger.Error("client closed", "cause", cause)
	}
	c.emit(Event{Kind: EventClosed, Err: cause})
}
