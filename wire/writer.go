package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/c360/natswire/errors"
)

// Writer encodes client-to-broker frames onto a buffered stream. Callers
// serialize access; Flush pushes coalesced frames to the wire.
type Writer struct {
	w          *bufio.Writer
	maxPayload atomic.Int64

	// OutBytes counts encoded bytes, for instrumentation.
	OutBytes int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 32 * 1024)}
}

// SetMaxPayload installs the broker-advertised payload ceiling. Zero means
// unknown and disables the check.
func (w *Writer) SetMaxPayload(n int64) {
	w.maxPayload.Store(n)
}

// Connect encodes a CONNECT frame.
func (w *Writer) Connect(info ConnectInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "wire", "Connect", "encode connect info")
	}
	return w.writeLine("CONNECT ", string(payload))
}

// Publish encodes a PUB frame, or an HPUB frame when hdr is non-empty.
func (w *Writer) Publish(subject, reply string, hdr Header, payload []byte) error {
	if max := w.maxPayload.Load(); max > 0 && int64(len(payload)) > max {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", errors.ErrMaxPayload, len(payload), max)
	}
	if len(hdr) > 0 {
		return w.hpub(subject, reply, hdr, payload)
	}

	w.writeString("PUB ")
	w.writeString(subject)
	w.writeString(" ")
	if reply != "" {
		w.writeString(reply)
		w.writeString(" ")
	}
	w.writeString(strconv.Itoa(len(payload)))
	w.writeString(crlf)
	w.write(payload)
	w.writeString(crlf)
	return w.err()
}

func (w *Writer) hpub(subject, reply string, hdr Header, payload []byte) error {
	block := encodeHeader(0, "", hdr)

	w.writeString("HPUB ")
	w.writeString(subject)
	w.writeString(" ")
	if reply != "" {
		w.writeString(reply)
		w.writeString(" ")
	}
	w.writeString(strconv.Itoa(len(block)))
	w.writeString(" ")
	w.writeString(strconv.Itoa(len(block) + len(payload)))
	w.writeString(crlf)
	w.write(block)
	w.write(payload)
	w.writeString(crlf)
	return w.err()
}

// Subscribe encodes a SUB frame. queue may be empty.
func (w *Writer) Subscribe(sid uint64, subject, queue string) error {
	if queue != "" {
		return w.writeLine("SUB ", subject, " ", queue, " ", formatSid(sid))
	}
	return w.writeLine("SUB ", subject, " ", formatSid(sid))
}

// Unsubscribe encodes an UNSUB frame. max > 0 sets a remaining-delivery
// budget instead of removing the subscription immediately.
func (w *Writer) Unsubscribe(sid uint64, max int) error {
	if max > 0 {
		return w.writeLine("UNSUB ", formatSid(sid), " ", strconv.Itoa(max))
	}
	return w.writeLine("UNSUB ", formatSid(sid))
}

// Ping encodes a PING frame.
func (w *Writer) Ping() error {
	return w.writeLine("PING")
}

// Pong encodes a PONG frame.
func (w *Writer) Pong() error {
	return w.writeLine("PONG")
}

// WriteRaw splices pre-encoded frames into the stream. Used to replay
// frames buffered while no connection was live.
func (w *Writer) WriteRaw(b []byte) error {
	w.write(b)
	return w.err()
}

// Flush pushes buffered frames to the underlying stream.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Buffered reports bytes waiting for a flush.
func (w *Writer) Buffered() int {
	return w.w.Buffered()
}

func (w *Writer) writeLine(parts ...string) error {
	for _, p := range parts {
		w.writeString(p)
	}
	w.writeString(crlf)
	return w.err()
}

func (w *Writer) writeString(s string) {
	n, _ := w.w.WriteString(s)
	w.OutBytes += int64(n)
}

func (w *Writer) write(b []byte) {
	n, _ := w.w.Write(b)
	w.OutBytes += int64(n)
}

// err exposes the sticky bufio error after a frame is fully encoded, so
// partial frames never hit the wire interleaved with the error check.
func (w *Writer) err() error {
	if _, err := w.w.Write(nil); err != nil {
		return err
	}
	return nil
}

func formatSid(sid uint64) string {
	return strconv.FormatUint(sid, 10)
}
