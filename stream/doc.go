// Package stream implements stream-backed consumption on top of the
// client package: pull consumers with explicit fetch and refilling
// sequences, push consumers with flow control and heartbeat handling,
// and ordered consumers that recover from delivery gaps by recreating
// their ephemeral consumer.
//
// The package talks to the broker's consumer API only as far as the
// engine itself needs: creating and deleting ephemeral consumers and
// reading consumer info. General stream administration is a different
// concern and lives outside this module.
package stream
