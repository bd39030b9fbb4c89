package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startNATSBroker starts a disposable broker container for integration
// tests against a real server.
func startNATSBroker(ctx context.Context, t *testing.T, extraArgs ...string) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          extraArgs,
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

	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	// Give the server a moment to finish starting.
	time.Sleep(100 * time.Millisecond)
	return url
}

func TestIntegrationConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := startNATSBroker(ctx, t)

	c, err := Connect(url, WithName("natswire-integration"))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, StatusReady, c.Status())
	assert.Positive(t, c.MaxPayload())
	require.NoError(t, c.Flush(ctx))
}

func TestIntegrationPublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := startNATSBroker(ctx, t)

	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.Subscribe("it.events.*")
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Publish(fmt.Sprintf("it.events.%d", i), []byte(fmt.Sprintf("payload-%d", i))))
	}

	for i := 0; i < 10; i++ {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		m, err := sub.Next(rctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("it.events.%d", i), m.Subject)
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(m.Data))
	}
}

func TestIntegrationRequestReply(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := startNATSBroker(ctx, t)

	responder, err := Connect(url)
	require.NoError(t, err)
	defer responder.Close()

	sub, err := responder.Subscribe("it.echo")
	require.NoError(t, err)
	require.NoError(t, responder.Flush(ctx))

	go func() {
		for {
			m, err := sub.Next(context.Background())
			if err != nil {
				return
			}
			_ = m.Respond(append([]byte("echo:"), m.Data...))
		}
	}()

	requester, err := Connect(url)
	require.NoError(t, err)
	defer requester.Close()

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := requester.Request(rctx, "it.echo", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(resp.Data))
}

func TestIntegrationNoResponders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := startNATSBroker(ctx, t)

	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = c.Request(rctx, "it.nobody.home", []byte("anyone"))
	require.Error(t, err)
}

func TestIntegrationQueueGroupSplitsWork(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := startNATSBroker(ctx, t)

	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	s1, err := c.QueueSubscribe("it.work", "pool")
	require.NoError(t, err)
	s2, err := c.QueueSubscribe("it.work", "pool")
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx))

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, c.Publish("it.work", []byte("job")))
	}
	require.NoError(t, c.Flush(ctx))
	time.Sleep(200 * time.Millisecond)

	total := s1.Pending() + s2.Pending()
	assert.Equal(t, n, total, "queue group must split, not duplicate, deliveries")
}
