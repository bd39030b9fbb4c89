package client

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/natswire/errors"
)

// dialEndpoint opens the raw transport for e. TCP endpoints come back
// plaintext; a required TLS upgrade happens after INFO. WebSocket endpoints
// handle TLS inside the handshake and need no upgrade.
func (c *Client) dialEndpoint(ctx context.Context, e *endpoint) (net.Conn, error) {
	switch e.url.Scheme {
	case "ws", "wss":
		return c.dialWebsocket(ctx, e.url)
	default:
		d := net.Dialer{Timeout: c.timeout}
		conn, err := d.DialContext(ctx, "tcp", e.url.Host)
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "dial", "dial endpoint")
		}
		return conn, nil
	}
}

// upgradeTLS wraps conn in a TLS client session. Called before any protocol
// bytes beyond INFO have been exchanged.
func (c *Client) upgradeTLS(conn net.Conn, host string) (net.Conn, error) {
	conf := c.tlsConfig
	if conf == nil {
		conf = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		conf = conf.Clone()
	}
	if conf.ServerName == "" {
		conf.ServerName = host
	}
	tc := tls.Client(conn, conf)
	if err := tc.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := tc.Handshake(); err != nil {
		return nil, errors.WrapTransient(err, "Client", "upgradeTLS", "tls handshake")
	}
	if err := tc.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return tc, nil
}

// dialWebsocket opens a WebSocket session carrying the protocol stream in
// binary frames.
func (c *Client) dialWebsocket(ctx context.Context, u *url.URL) (net.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.timeout,
		TLSClientConfig:  c.tlsConfig,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "dialWebsocket", "websocket handshake")
	}
	return &wsConn{ws: ws}, nil
}

// writeDeadlineConn bounds every write. A peer that stops reading makes
// socket writes block once the kernel buffers fill, and the blocked
// writer holds the client mutex; the deadline turns the stall into an
// error the disconnect path can act on.
type writeDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (w writeDeadlineConn) Write(p []byte) (int, error) {
	_ = w.Conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.Conn.Write(p)
}

// wsConn adapts a WebSocket session to net.Conn. The protocol stream maps
// onto binary messages; message boundaries carry no meaning and reads
// continue across them.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.reader == nil {
			t, r, err := w.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if t != websocket.BinaryMessage && t != websocket.TextMessage {
				continue
			}
			w.reader = r
		}
		n, err := w.reader.Read(p)
		if err == io.EOF {
			w.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	return w.ws.Close()
}

func (w *wsConn) LocalAddr() net.Addr  { return w.ws.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr { return w.ws.RemoteAddr() }

func (w *wsConn) SetDeadline(t time.Time) error {
	if err := w.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return w.ws.SetWriteDeadline(t)
}

func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.ws.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.ws.SetWriteDeadline(t) }
