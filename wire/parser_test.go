package wire

import (
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natswire/errors"
)

func parseOne(t *testing.T, input string) Frame {
	t.Helper()
	f, err := NewParser(strings.NewReader(input)).Next()
	require.NoError(t, err)
	return f
}

func TestParseInfo(t *testing.T) {
	f := parseOne(t, `INFO {"server_id":"abc","proto":1,"max_payload":1048576,"headers":true,"connect_urls":["10.0.0.1:4222","10.0.0.2:4222"]}`+"\r\n")
	info, ok := f.(InfoFrame)
	require.True(t, ok)
	assert.Equal(t, "abc", info.Info.ServerID)
	assert.Equal(t, int64(1048576), info.Info.MaxPayload)
	assert.True(t, info.Info.Headers)
	assert.Equal(t, []string{"10.0.0.1:4222", "10.0.0.2:4222"}, info.Info.ConnectURLs)
}

func TestParseMsg(t *testing.T) {
	f := parseOne(t, "MSG foo.bar 7 5\r\nhello\r\n")
	msg, ok := f.(MsgFrame)
	require.True(t, ok)
	assert.Equal(t, "foo.bar", msg.Subject)
	assert.Equal(t, uint64(7), msg.Sid)
	assert.Empty(t, msg.Reply)
	assert.Equal(t, []byte("hello"), msg.Payload)
}

func TestParseMsgWithReply(t *testing.T) {
	f := parseOne(t, "MSG foo 1 _INBOX.abc.1 0\r\n\r\n")
	msg := f.(MsgFrame)
	assert.Equal(t, "_INBOX.abc.1", msg.Reply)
	assert.Empty(t, msg.Payload)
}

func TestParseMsgPayloadWithCRLFInside(t *testing.T) {
	payload := "line1\r\nMSG fake 9 3\r\n"
	input := "MSG foo 1 " + itoa(len(payload)) + "\r\n" + payload + "\r\n"
	msg := parseOne(t, input).(MsgFrame)
	assert.Equal(t, []byte(payload), msg.Payload)
}

func TestParseHMsg(t *testing.T) {
	block := "NATS/1.0\r\nFoo: bar\r\nFoo: baz\r\nContent-Type: text/plain\r\n\r\n"
	input := "HMSG orders 3 reply.to " + itoa(len(block)) + " " + itoa(len(block)+4) + "\r\n" +
		block + "data\r\n"
	msg := parseOne(t, input).(MsgFrame)
	assert.Equal(t, "orders", msg.Subject)
	assert.Equal(t, "reply.to", msg.Reply)
	assert.Equal(t, []byte("data"), msg.Payload)
	assert.Equal(t, []string{"bar", "baz"}, msg.Header.Values("Foo"))
	assert.Equal(t, "text/plain", msg.Header.Get("content-type"))
	assert.Equal(t, Status(0), msg.Status)
}

func TestParseHMsgStatusOnly(t *testing.T) {
	block := "NATS/1.0 503\r\n\r\n"
	input := "HMSG req 1 " + itoa(len(block)) + " " + itoa(len(block)) + "\r\n" + block + "\r\n"
	msg := parseOne(t, input).(MsgFrame)
	assert.Equal(t, StatusNoResponders, msg.Status)
	assert.Empty(t, msg.Payload)
}

func TestParseHMsgStatusWithDescription(t *testing.T) {
	block := "NATS/1.0 100 Idle Heartbeat\r\n\r\n"
	input := "HMSG c.deliver 2 " + itoa(len(block)) + " " + itoa(len(block)) + "\r\n" + block + "\r\n"
	msg := parseOne(t, input).(MsgFrame)
	assert.Equal(t, StatusControl, msg.Status)
	assert.Equal(t, "Idle Heartbeat", msg.Description)
}

func TestParseHMsgHeaderLengthMismatch(t *testing.T) {
	// Declared header length cuts the block before its blank line.
	block := "NATS/1.0\r\nFoo: bar\r\n\r\n"
	short := len(block) - 2
	input := "HMSG x 1 " + itoa(short) + " " + itoa(len(block)) + "\r\n" + block + "\r\n"
	_, err := NewParser(strings.NewReader(input)).Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHeaderMismatch)
}

func TestParseHMsgHeaderLongerThanTotal(t *testing.T) {
	_, err := NewParser(strings.NewReader("HMSG x 1 10 5\r\n")).Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHeaderMismatch)
}

func TestParseControlFrames(t *testing.T) {
	p := NewParser(strings.NewReader("PING\r\nPONG\r\n+OK\r\n-ERR 'Authorization Violation'\r\n"))

	f, err := p.Next()
	require.NoError(t, err)
	assert.IsType(t, PingFrame{}, f)

	f, err = p.Next()
	require.NoError(t, err)
	assert.IsType(t, PongFrame{}, f)

	f, err = p.Next()
	require.NoError(t, err)
	assert.IsType(t, OKFrame{}, f)

	f, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, ErrFrame{Message: "Authorization Violation"}, f)
}

func TestParseSkipsUnknownOps(t *testing.T) {
	p := NewParser(strings.NewReader("BOGUS something here\r\nPING\r\n"))
	f, err := p.Next()
	require.NoError(t, err)
	assert.IsType(t, PingFrame{}, f)
}

func TestParseBadSid(t *testing.T) {
	_, err := NewParser(strings.NewReader("MSG foo notanum 3\r\nabc\r\n")).Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)
}

func TestParseTruncatedPayload(t *testing.T) {
	_, err := NewParser(strings.NewReader("MSG foo 1 10\r\nshort")).Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseMissingPayloadCRLF(t *testing.T) {
	_, err := NewParser(strings.NewReader("MSG foo 1 3\r\nabcXY")).Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
