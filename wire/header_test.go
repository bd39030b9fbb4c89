package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	h := Header{}
	h.Add("Content-Type", "application/json")

	assert.Equal(t, "application/json", h.Get("content-type"))
	assert.Equal(t, "application/json", h.Get("CONTENT-TYPE"))

	// Adding under a different casing appends to the stored key.
	h.Add("content-type", "text/plain")
	assert.Equal(t, []string{"application/json", "text/plain"}, h.Values("Content-Type"))
}

func TestHeaderSetReplacesAllCasings(t *testing.T) {
	h := Header{}
	h.Add("X-Key", "1")
	h.Set("x-key", "2")
	assert.Equal(t, []string{"2"}, h.Values("X-Key"))

	h.Del("X-KEY")
	assert.Empty(t, h.Values("x-key"))
}

func TestHeaderEncodePreservesCasing(t *testing.T) {
	h := Header{}
	h.Add("X-CuStOm", "v")
	block := encodeHeader(0, "", h)
	assert.Equal(t, "NATS/1.0\r\nX-CuStOm: v\r\n\r\n", string(block))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{}
	h.Add("A", "1")
	h.Add("A", "2")
	h.Add("B", "x y z")

	status, desc, got, err := decodeHeader(encodeHeader(StatusNoMessages, "No Messages", h))
	require.NoError(t, err)
	assert.Equal(t, StatusNoMessages, status)
	assert.Equal(t, "No Messages", desc)
	assert.Equal(t, []string{"1", "2"}, got.Values("A"))
	assert.Equal(t, "x y z", got.Get("B"))
}

func TestDecodeHeaderRejectsBadBlocks(t *testing.T) {
	_, _, _, err := decodeHeader([]byte("NATS/1.0\r\nno terminator"))
	assert.Error(t, err)

	_, _, _, err = decodeHeader([]byte("HTTP/1.1\r\n\r\n"))
	assert.Error(t, err)

	_, _, _, err = decodeHeader([]byte("NATS/1.0\r\nmalformed line\r\n\r\n"))
	assert.Error(t, err)

	_, _, _, err = decodeHeader([]byte("NATS/1.0 abc\r\n\r\n"))
	assert.Error(t, err)
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "no responders", StatusNoResponders.String())
	assert.Equal(t, "control", StatusControl.String())
	assert.Equal(t, "418", Status(418).String())
}
