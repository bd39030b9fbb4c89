package stream

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natswire/client"
	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/testutil"
)

const testWait = 5 * time.Second

// harness is a connected client plus engine against the stub broker, with
// the plumbing to script admin API replies.
type harness struct {
	t    *testing.T
	b    *testutil.Broker
	conn *testutil.Conn
	c    *client.Client
	e    *Engine

	// sid of the client's reply-inbox wildcard subscription, learned
	// from the first request it sends.
	apiSid uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := testutil.NewBroker(t)
	c, err := client.Connect(b.URL(), client.WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	var conn *testutil.Conn
	select {
	case conn = <-b.Accepted:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for broker connection")
	}

	e, err := New(c)
	require.NoError(t, err)
	return &harness{t: t, b: b, conn: conn, c: c, e: e}
}

func (h *harness) waitSub() testutil.SubEvent {
	h.t.Helper()
	select {
	case ev := <-h.b.Subs:
		return ev
	case <-time.After(testWait):
		h.t.Fatal("timed out waiting for SUB")
		return testutil.SubEvent{}
	}
}

func (h *harness) waitUnsub() testutil.UnsubEvent {
	h.t.Helper()
	select {
	case ev := <-h.b.Unsubs:
		return ev
	case <-time.After(testWait):
		h.t.Fatal("timed out waiting for UNSUB")
		return testutil.UnsubEvent{}
	}
}

func (h *harness) waitPub() testutil.PubEvent {
	h.t.Helper()
	select {
	case ev := <-h.b.Pubs:
		return ev
	case <-time.After(testWait):
		h.t.Fatal("timed out waiting for PUB")
		return testutil.PubEvent{}
	}
}

// serveAPI waits for the next admin API request, asserts its subject and
// answers it. SUB events in between are skipped; the reply-inbox wildcard
// subscription teaches the harness where replies go.
func (h *harness) serveAPI(wantSubject, response string) testutil.PubEvent {
	h.t.Helper()
	deadline := time.After(testWait)
	for {
		select {
		case sub := <-h.b.Subs:
			if strings.HasPrefix(sub.Subject, "_INBOX.") && strings.HasSuffix(sub.Subject, ".>") {
				h.apiSid = sub.Sid
			}
		case pub := <-h.b.Pubs:
			require.Equal(h.t, wantSubject, pub.Subject)
			require.NotEmpty(h.t, pub.Reply)
			if h.apiSid == 0 {
				// The wildcard SUB precedes the PUB on the wire, but
				// when both channels are ready the select above picks
				// one at random; check for the queued SUB before
				// concluding it never happened.
				select {
				case sub := <-h.b.Subs:
					if strings.HasPrefix(sub.Subject, "_INBOX.") && strings.HasSuffix(sub.Subject, ".>") {
						h.apiSid = sub.Sid
					}
				default:
				}
			}
			require.NotZero(h.t, h.apiSid, "no reply inbox subscription seen")
			h.conn.SendMsg(pub.Reply, h.apiSid, "", response)
			return pub
		case <-deadline:
			h.t.Fatalf("timed out waiting for api request %s", wantSubject)
			return testutil.PubEvent{}
		}
	}
}

func consumerInfoJSON(streamName, name, config string) string {
	return fmt.Sprintf(
		`{"type":"io.nats.jetstream.api.v1.consumer_info_response","stream_name":%q,"name":%q,"config":%s}`,
		streamName, name, config)
}

const deleteOKJSON = `{"type":"io.nats.jetstream.api.v1.consumer_delete_response","success":true}`

// ackReply builds a short-layout ack subject for a delivery.
func ackReply(streamName, consumer string, delivered, sseq, cseq uint64) string {
	return fmt.Sprintf("$JS.ACK.%s.%s.%d.%d.%d.%d.0",
		streamName, consumer, delivered, sseq, cseq, time.Now().UnixNano())
}

func (h *harness) bindPull(streamName, consumer, config string) *PullConsumer {
	h.t.Helper()
	type res struct {
		pc  *PullConsumer
		err error
	}
	ch := make(chan res, 1)
	go func() {
		pc, err := h.e.PullConsumer(context.Background(), streamName, consumer)
		ch <- res{pc, err}
	}()
	h.serveAPI("$JS.API.CONSUMER.INFO."+streamName+"."+consumer,
		consumerInfoJSON(streamName, consumer, config))
	r := <-ch
	require.NoError(h.t, r.err)
	return r.pc
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestWithLoggerRejectsNil(t *testing.T) {
	h := newHarness(t)
	_, err := New(h.c, WithLogger(nil))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestConsumerNotFound(t *testing.T) {
	h := newHarness(t)

	type res struct {
		pc  *PullConsumer
		err error
	}
	ch := make(chan res, 1)
	go func() {
		pc, err := h.e.PullConsumer(context.Background(), "EVENTS", "missing")
		ch <- res{pc, err}
	}()
	h.serveAPI("$JS.API.CONSUMER.INFO.EVENTS.missing",
		`{"type":"io.nats.jetstream.api.v1.consumer_info_response","error":{"code":404,"err_code":10014,"description":"consumer not found"}}`)

	r := <-ch
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, errors.ErrConsumerNotFound)
	assert.Nil(t, r.pc)
}

func TestPullConsumerRejectsPushConfig(t *testing.T) {
	h := newHarness(t)

	ch := make(chan error, 1)
	go func() {
		_, err := h.e.PullConsumer(context.Background(), "EVENTS", "pusher")
		ch <- err
	}()
	h.serveAPI("$JS.API.CONSUMER.INFO.EVENTS.pusher",
		consumerInfoJSON("EVENTS", "pusher",
			`{"deliver_policy":"all","ack_policy":"explicit","deliver_subject":"push.deliver"}`))

	err := <-ch
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
