package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/pkg/retry"
)

const defaultPort = "4222"

// endpoint is one candidate broker address.
type endpoint struct {
	url      *url.URL
	implicit bool // learned from INFO connect_urls, not configured
	lastFail time.Time
}

// serverPool holds the ordered, deduplicated candidate list and decides
// which endpoint a (re)connect attempt should try next. Endpoints that
// failed recently sit out a cool-down; a completed pass over the whole
// pool inserts a jittered backoff delay before the next pass.
type serverPool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	idx       int
	cooldown  time.Duration
	policy    retry.Config
	delay     time.Duration
}

func newServerPool(urls []string, policy retry.Config) (*serverPool, error) {
	p := &serverPool{
		cooldown: DefaultReconnectJitter,
		policy:   policy,
	}
	for _, raw := range urls {
		u, err := parseServerURL(raw)
		if err != nil {
			return nil, err
		}
		p.add(u, false)
	}
	if len(p.endpoints) == 0 {
		return nil, errors.ErrNoServers
	}
	return p, nil
}

func parseServerURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "nats://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "serverPool", "parse", "parse server url")
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unsupported scheme %q", u.Scheme),
			"serverPool", "parse", "parse server url")
	}
	if u.Port() == "" && (u.Scheme == "nats" || u.Scheme == "tls") {
		u.Host = u.Hostname() + ":" + defaultPort
	}
	return u, nil
}

// add inserts u unless an endpoint with the same host:port exists.
func (p *serverPool) add(u *url.URL, implicit bool) {
	for _, e := range p.endpoints {
		if e.url.Host == u.Host {
			return
		}
	}
	p.endpoints = append(p.endpoints, &endpoint{url: u, implicit: implicit})
}

// merge folds broker-advertised cluster addresses into the pool. Learned
// addresses keep the scheme of the first configured endpoint.
func (p *serverPool) merge(connectURLs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return
	}
	scheme := p.endpoints[0].url.Scheme
	for _, host := range connectURLs {
		u, err := parseServerURL(scheme + "://" + host)
		if err != nil {
			continue
		}
		p.add(u, true)
	}
}

// next returns the endpoint to try and how long to wait before trying it.
// Endpoints inside their cool-down are skipped unless every endpoint is
// cooling down, in which case the rotation proceeds anyway. Completing a
// full pass advances the pass backoff; success resets it.
func (p *serverPool) next() (*endpoint, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wait time.Duration
	n := len(p.endpoints)
	for scanned := 0; scanned < n; scanned++ {
		if p.idx >= n {
			p.idx = 0
			p.delay = p.policy.NextDelay(p.delay)
			wait = p.delay
		}
		e := p.endpoints[p.idx]
		p.idx++
		if time.Since(e.lastFail) >= p.cooldown {
			return e, wait
		}
	}

	// Everything is cooling down; take the next in rotation after the
	// pass delay.
	if p.idx >= n {
		p.idx = 0
		p.delay = p.policy.NextDelay(p.delay)
		wait = p.delay
	}
	e := p.endpoints[p.idx]
	p.idx++
	if wait < p.cooldown {
		wait = p.cooldown
	}
	return e, wait
}

func (p *serverPool) markFailed(e *endpoint) {
	p.mu.Lock()
	e.lastFail = time.Now()
	p.mu.Unlock()
}

func (p *serverPool) markConnected(e *endpoint) {
	p.mu.Lock()
	e.lastFail = time.Time{}
	p.delay = 0
	p.idx = 0
	p.mu.Unlock()
}

func (p *serverPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}
