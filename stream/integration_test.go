package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/natswire/client"
)

// startJSBroker starts a broker container with streaming enabled and, via
// raw admin calls, a stream plus a durable pull consumer for the test to
// drive. Stream administration beyond what the engine needs is not part
// of this module, so the fixtures go through plain requests.
func startJSBroker(ctx context.Context, t *testing.T) *client.Client {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	c, err := client.Connect(fmt.Sprintf("nats://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func adminRequest(ctx context.Context, t *testing.T, c *client.Client, subj, body string) {
	t.Helper()
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := c.Request(rctx, subj, []byte(body))
	require.NoError(t, err)
	assert.NotContains(t, string(resp.Data), `"error"`, "admin call failed: %s", resp.Data)
}

func TestIntegrationPullFetch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	c := startJSBroker(ctx, t)

	adminRequest(ctx, t, c, "$JS.API.STREAM.CREATE.IT",
		`{"name":"IT","subjects":["it.orders.>"],"storage":"memory"}`)
	adminRequest(ctx, t, c, "$JS.API.CONSUMER.DURABLE.CREATE.IT.workers",
		`{"stream_name":"IT","config":{"durable_name":"workers","ack_policy":"explicit"}}`)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Publish(fmt.Sprintf("it.orders.%d", i), []byte(fmt.Sprintf("order-%d", i))))
	}
	require.NoError(t, c.Flush(ctx))

	e, err := New(c)
	require.NoError(t, err)
	pc, err := e.PullConsumer(ctx, "IT", "workers")
	require.NoError(t, err)

	// Ten requested, three available: the batch ends without waiting for
	// the expiry.
	start := time.Now()
	batch, err := pc.Fetch(ctx, 10, FetchExpires(5*time.Second))
	require.NoError(t, err)

	var got []*Msg
	for m := range batch.Messages() {
		got = append(got, m)
		require.NoError(t, m.Ack())
	}
	require.NoError(t, batch.Error())
	require.Len(t, got, 3)
	assert.Less(t, time.Since(start), 4*time.Second)

	for i, m := range got {
		assert.Equal(t, fmt.Sprintf("order-%d", i), string(m.Data))
		meta, err := m.Metadata()
		require.NoError(t, err)
		assert.Equal(t, "IT", meta.Stream)
		assert.Equal(t, uint64(i+1), meta.Sequence.Stream)
	}

	// The consumer is drained now; an immediate no-wait fetch comes back
	// empty without an error.
	batch, err = pc.Fetch(ctx, 10, FetchNoWait())
	require.NoError(t, err)
	for range batch.Messages() {
		t.Fatal("unexpected message from drained consumer")
	}
	assert.NoError(t, batch.Error())
}

func TestIntegrationOrderedConsumer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	c := startJSBroker(ctx, t)

	adminRequest(ctx, t, c, "$JS.API.STREAM.CREATE.ORD",
		`{"name":"ORD","subjects":["it.feed.>"],"storage":"memory"}`)

	const n = 25
	for i := 0; i < n; i++ {
		require.NoError(t, c.Publish("it.feed.tick", []byte(fmt.Sprintf("tick-%d", i))))
	}
	require.NoError(t, c.Flush(ctx))

	e, err := New(c)
	require.NoError(t, err)
	oc, err := e.OrderedConsumer(ctx, "ORD", OrderedConfig{})
	require.NoError(t, err)
	defer oc.Stop()

	for i := 0; i < n; i++ {
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		m, err := oc.Next(rctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("tick-%d", i), string(m.Data))

		meta, err := m.Metadata()
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), meta.Sequence.Stream)
	}
}
