package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natswire/metric"
)

func TestRing_WriteRead(t *testing.T) {
	q, err := NewRing[int](4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Write(i))
	}
	assert.Equal(t, 3, q.Size())

	for i := 1; i <= 3; i++ {
		v, ok := q.Read()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := q.Read()
	assert.False(t, ok)
}

func TestRing_DropOldest(t *testing.T) {
	var dropped []int
	q, err := NewRing(3,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback(func(item int) { dropped = append(dropped, item) }),
	)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Write(i))
	}

	// 1 and 2 were evicted; 3, 4, 5 remain in order.
	assert.Equal(t, []int{1, 2}, dropped)
	got := q.ReadBatch(10)
	assert.Equal(t, []int{3, 4, 5}, got)
	assert.Equal(t, int64(2), q.Stats().Drops())
}

func TestRing_DropNewest(t *testing.T) {
	q, err := NewRing(2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)

	require.NoError(t, q.Write(1))
	require.NoError(t, q.Write(2))
	require.NoError(t, q.Write(3)) // dropped

	got := q.ReadBatch(10)
	assert.Equal(t, []int{1, 2}, got)
}

func TestRing_NotifyWakesBlockedReader(t *testing.T) {
	q, err := NewRing[string](4)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		for {
			if v, ok := q.Read(); ok {
				got <- v
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-q.Notify():
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Write("hello"))

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-ctx.Done():
		t.Fatal("reader was not woken")
	}
}

func TestRing_NoLostWakeup(t *testing.T) {
	// A write landing between a failed Read and the select must leave a
	// token on the notify channel.
	q, err := NewRing[int](1)
	require.NoError(t, err)

	_, ok := q.Read()
	require.False(t, ok)

	require.NoError(t, q.Write(7))

	select {
	case <-q.Notify():
	default:
		t.Fatal("notify token missing after write")
	}
}

func TestRing_CloseRejectsWrites(t *testing.T) {
	q, err := NewRing[int](2)
	require.NoError(t, err)
	require.NoError(t, q.Write(1))
	require.NoError(t, q.Close())

	assert.Error(t, q.Write(2))

	// Pending items remain readable after close.
	v, ok := q.Read()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRing_Clear(t *testing.T) {
	var dropped []int
	q, err := NewRing(4, WithDropCallback(func(item int) { dropped = append(dropped, item) }))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Write(i))
	}
	q.Clear()

	assert.Equal(t, 0, q.Size())
	assert.Equal(t, []int{1, 2, 3}, dropped)
}

func TestRing_ConcurrentWriters(t *testing.T) {
	q, err := NewRing[int](128)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := range 100 {
				_ = q.Write(base*100 + i)
			}
		}(w)
	}
	wg.Wait()

	// 800 writes into capacity 128: everything beyond capacity was dropped
	// oldest-first, the queue holds exactly its capacity.
	assert.Equal(t, 128, q.Size())
	assert.Equal(t, int64(800), q.Stats().Writes())
	assert.Equal(t, int64(800-128), q.Stats().Drops())
}

func TestRing_MetricsExport(t *testing.T) {
	reg := metric.NewRegistry()
	q, err := NewRing(2, WithMetrics[int](reg, "testqueue"))
	require.NoError(t, err)

	require.NoError(t, q.Write(1))
	require.NoError(t, q.Write(2))
	require.NoError(t, q.Write(3)) // overflow

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "natswire_queue_drops_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "drop counter not exported")
}

func TestRing_DuplicateMetricsPrefixFails(t *testing.T) {
	reg := metric.NewRegistry()
	_, err := NewRing(2, WithMetrics[int](reg, "dup"))
	require.NoError(t, err)

	_, err = NewRing(2, WithMetrics[int](reg, "dup"))
	assert.Error(t, err)
}
