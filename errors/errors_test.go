package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestClassify_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"request timeout", ErrRequestTimeout, ErrorTransient},
		{"stale connection", ErrStaleConnection, ErrorTransient},
		{"deadline exceeded", context.DeadlineExceeded, ErrorTransient},
		{"bad subject", ErrBadSubject, ErrorInvalid},
		{"wrong ack policy", ErrNoAckPolicy, ErrorInvalid},
		{"max payload", ErrMaxPayload, ErrorInvalid},
		{"protocol violation", ErrProtocol, ErrorFatal},
		{"header mismatch", ErrHeaderMismatch, ErrorFatal},
		{"authorization", ErrAuthorization, ErrorFatal},
		{"unknown error defaults transient", stderrors.New("boom"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_WrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("read loop: %w", ErrHeaderMismatch)
	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, ErrorFatal, Classify(wrapped))
}

func TestWrap_Format(t *testing.T) {
	base := stderrors.New("dial tcp: connection refused")
	err := Wrap(base, "Client", "connect", "dial server")
	require.Error(t, err)
	assert.Equal(t, "Client.connect: dial server failed: dial tcp: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Client", "connect", "dial"))
	assert.NoError(t, WrapTransient(nil, "Client", "connect", "dial"))
	assert.NoError(t, WrapInvalid(nil, "Client", "connect", "dial"))
	assert.NoError(t, WrapFatal(nil, "Client", "connect", "dial"))
}

func TestWrapTransient_Classification(t *testing.T) {
	err := WrapTransient(stderrors.New("io timeout"), "Client", "flush", "write frame")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Client", ce.Component)
	assert.Equal(t, "flush", ce.Operation)
	assert.True(t, IsTransient(err))
	assert.False(t, IsFatal(err))
}

func TestWrapFatal_OverridesContentClassification(t *testing.T) {
	// A fatal wrap must classify fatal even when the inner error would
	// otherwise look transient.
	err := WrapFatal(ErrConnectionTimeout, "parser", "readOp", "header length check")
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
}

func TestWrapInvalid_Unwrap(t *testing.T) {
	err := WrapInvalid(ErrBadSubject, "Subscription", "subscribe", "validate subject")
	assert.True(t, stderrors.Is(err, ErrBadSubject))
	assert.True(t, IsInvalid(err))
}
