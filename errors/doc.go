// Package errors provides standardized error handling for the natswire client.
//
// # Overview
//
// The package implements a three-class error classification system for a
// messaging client that must distinguish how a failure is handled, not just
// what failed: Transient (temporary, drives reconnect or may be retried by
// the caller), Invalid (bad input or configuration, returned directly and
// never retried), and Fatal (unrecoverable for the current connection
// generation, tears the connection down).
//
// # Error Classification
//
// The client's error taxonomy maps onto the classes as follows:
//
//   - Transient: mid-session I/O failures, keepalive timeouts, request
//     timeouts, "no messages available" pull statuses
//   - Invalid: bad subjects, wrong ack policy, payload over the advertised
//     maximum, invalid consumer configuration
//   - Fatal: protocol violations (declared-length mismatches), authorization
//     rejections, expired credentials
//
// The classification integrates with Go's standard error handling patterns,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if sub.isClosed() {
//	    return errors.ErrSubscriptionClosed
//	}
//
// Wrap errors with component context and a classification:
//
//	if err := c.dial(addr); err != nil {
//	    return errors.WrapTransient(err, "Client", "connect", "dial server")
//	}
//
// Branch on classification rather than string matching:
//
//	if errors.IsFatal(err) {
//	    c.tearDown(err)
//	}
package errors
