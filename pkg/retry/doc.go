// Package retry provides exponential backoff with jitter for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff and
// optional jitter. Inside natswire it backs the two places the engine retries
// automatically: the transport-level reconnect loop and the ordered-consumer
// gap-recovery loop. Everything else surfaces failures to the caller.
//
// # Core Functions
//
//   - Do: Execute a function with retry and exponential backoff
//   - DoWithResult: Same, returning both result and error
//   - Config.NextDelay: Single backoff step for callers owning their own loop
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (general operations)
//   - Reconnect(): 60 attempts, 50ms-2s delay (connection re-establishment)
//   - Recovery(): 10 attempts, 100ms-3s delay (consumer gap recovery)
//
// # Usage
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return eng.recreateConsumer(ctx)
//	})
//
// Marking an error non-retryable short-circuits the loop:
//
//	return retry.NonRetryable(errors.ErrInvalidConfig)
//
// Loops that manage their own sleep (the server pool walks candidates between
// backoff steps) use NextDelay directly:
//
//	delay = cfg.NextDelay(delay)
package retry
