// Package natswire is a client library for subject-based publish/subscribe
// messaging with an at-least-once, stream-backed consumption layer on top.
//
// # Architecture
//
// The module is organized in layers, each its own package:
//
//	┌─────────────────────────────────────┐
//	│        stream (consumers)           │  Pull, push and ordered
//	│  fetch, ack state machine, gap      │  consumers over streams
//	│  recovery, consumer lifecycle       │
//	└─────────────────────────────────────┘
//	           ↓ built on
//	┌─────────────────────────────────────┐
//	│        client (transport)           │  Connection state machine,
//	│  server pool, keepalive, dispatch,  │  subscriptions, request/
//	│  request primitive, event stream    │  reply, reconnect
//	└─────────────────────────────────────┘
//	           ↓ encodes with
//	┌─────────────────────────────────────┐
//	│          wire (codec)               │  Frame parser and writer,
//	│  INFO/MSG/HMSG/PUB/HPUB/SUB/...     │  header blocks, status
//	└─────────────────────────────────────┘
//
// Supporting packages: subject (validation and wildcard matching), errors
// (classified error handling), metric (Prometheus instrumentation), config
// (YAML/env configuration loading), pkg/retry (jittered backoff), pkg/buffer
// (bounded queues with overflow policies), pkg/tlsutil (TLS material).
//
// # Quick start
//
//	nc, err := client.Connect("nats://127.0.0.1:4222")
//	if err != nil {
//	    return err
//	}
//	defer nc.Close()
//
//	sub, err := nc.Subscribe("orders.>")
//	if err != nil {
//	    return err
//	}
//	for {
//	    msg, err := sub.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    process(msg)
//	}
//
// Stream-backed consumption with acknowledgements:
//
//	eng, _ := stream.New(nc)
//	pc, _ := eng.PullConsumer(ctx, "ORDERS", "workers")
//	batch, _ := pc.Fetch(ctx, 10, stream.FetchExpires(500*time.Millisecond))
//	for msg := range batch.Messages() {
//	    handle(msg)
//	    msg.Ack()
//	}
//
// # Guarantees
//
// The client keeps live subscriptions across reconnects: any subscription
// that was not explicitly unsubscribed before a connection failure is
// replayed to the next server. Request/reply and acknowledgement calls
// suspend only the calling goroutine and honor context deadlines. Ordered
// consumers recover sequence gaps transparently with at-least-once delivery
// across the recovery path; per-message acknowledgements are published at
// most once per message.
//
// Connection lifecycle and delivery problems (disconnects, reconnects, slow
// consumers, server errors) are reported on a single ordered event stream,
// see the client package's Events API.
package natswire
