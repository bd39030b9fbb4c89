// Package buffer provides generic, thread-safe bounded queues with overflow policies.
//
// # Overview
//
// The package offers a single queue shape, the circular ring:
//
//   - Fixed capacity with DropOldest or DropNewest overflow policies
//   - Statistics always collected for observability
//   - Optional Prometheus export via functional options
//   - A Notify channel supporting blocking consumers without the queue
//     owning their goroutines
//
// Inside natswire, rings back every subscription delivery queue (DropOldest
// with a drop callback that raises slow-consumer notifications) and the
// client's outbound event stream.
//
// # Blocking reads
//
// Read never blocks. A consumer that wants to wait combines Read with
// Notify:
//
//	for {
//	    if msg, ok := q.Read(); ok {
//	        return msg, nil
//	    }
//	    select {
//	    case <-ctx.Done():
//	        return nil, ctx.Err()
//	    case <-q.Notify():
//	    }
//	}
//
// The Notify channel has capacity one: a write that lands between the failed
// Read and the select leaves a token behind, so no wakeup is lost.
package buffer
