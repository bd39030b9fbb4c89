package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/c360/natswire/errors"
)

// Frame is one decoded broker-to-client protocol unit.
type Frame interface {
	frame()
}

// InfoFrame carries the broker's ServerInfo payload.
type InfoFrame struct {
	Info ServerInfo
}

// MsgFrame is a delivered message, from either MSG or HMSG.
type MsgFrame struct {
	Subject     string
	Sid         uint64
	Reply       string
	Status      Status
	Description string
	Header      Header
	Payload     []byte
}

// PingFrame is a broker keepalive probe.
type PingFrame struct{}

// PongFrame answers a client PING.
type PongFrame struct{}

// OKFrame acknowledges a client frame in verbose mode.
type OKFrame struct{}

// ErrFrame carries a broker error. Whether it is fatal for the connection
// is decided by the caller from the message text.
type ErrFrame struct {
	Message string
}

func (InfoFrame) frame() {}
func (MsgFrame) frame()  {}
func (PingFrame) frame() {}
func (PongFrame) frame() {}
func (OKFrame) frame()   {}
func (ErrFrame) frame()  {}

// Parser decodes the broker-to-client side of the protocol incrementally.
// Payload boundaries come only from the declared byte counts; the parser
// never scans payload bytes for delimiters. It is not safe for concurrent
// use; a single reader goroutine owns it.
type Parser struct {
	r *bufio.Reader

	// InBytes counts raw bytes consumed, for instrumentation.
	InBytes int64
}

// NewParser wraps r. The buffered reader is sized for typical frames;
// larger payloads are read directly.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next blocks until a full frame is available and returns it. Unknown frame
// kinds are skipped without failing the stream. Protocol violations return
// an error wrapping errors.ErrProtocol; the connection is not recoverable
// after one.
func (p *Parser) Next() (Frame, error) {
	for {
		line, err := p.readLine()
		if err != nil {
			return nil, err
		}
		op, args := splitOp(line)
		switch {
		case strings.EqualFold(op, "MSG"):
			return p.parseMsg(args)
		case strings.EqualFold(op, "HMSG"):
			return p.parseHMsg(args)
		case strings.EqualFold(op, "PING"):
			return PingFrame{}, nil
		case strings.EqualFold(op, "PONG"):
			return PongFrame{}, nil
		case strings.EqualFold(op, "INFO"):
			var info ServerInfo
			if err := json.Unmarshal([]byte(args), &info); err != nil {
				return nil, fmt.Errorf("%w: bad INFO payload: %v", errors.ErrProtocol, err)
			}
			return InfoFrame{Info: info}, nil
		case op == "+OK":
			return OKFrame{}, nil
		case op == "-ERR":
			return ErrFrame{Message: strings.Trim(args, "'")}, nil
		default:
			// Unknown op, skip the line and keep the stream alive.
			continue
		}
	}
}

// parseMsg handles: <subject> <sid> [reply] <#bytes>
func (p *Parser) parseMsg(args string) (Frame, error) {
	fields := strings.Fields(args)
	var f MsgFrame
	var size int
	var err error
	switch len(fields) {
	case 3:
		f.Subject = fields[0]
		f.Sid, err = parseSid(fields[1])
		if err != nil {
			return nil, err
		}
		size, err = parseSize(fields[2])
	case 4:
		f.Subject = fields[0]
		f.Sid, err = parseSid(fields[1])
		if err != nil {
			return nil, err
		}
		f.Reply = fields[2]
		size, err = parseSize(fields[3])
	default:
		return nil, fmt.Errorf("%w: MSG wants 3 or 4 args, got %d", errors.ErrProtocol, len(fields))
	}
	if err != nil {
		return nil, err
	}
	f.Payload, err = p.readPayload(size)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// parseHMsg handles: <subject> <sid> [reply] <#hdr-bytes> <#total-bytes>
func (p *Parser) parseHMsg(args string) (Frame, error) {
	fields := strings.Fields(args)
	var f MsgFrame
	var hdrSize, total int
	var err error
	switch len(fields) {
	case 4:
		f.Subject = fields[0]
		f.Sid, err = parseSid(fields[1])
		if err != nil {
			return nil, err
		}
		hdrSize, err = parseSize(fields[2])
		if err != nil {
			return nil, err
		}
		total, err = parseSize(fields[3])
	case 5:
		f.Subject = fields[0]
		f.Sid, err = parseSid(fields[1])
		if err != nil {
			return nil, err
		}
		f.Reply = fields[2]
		hdrSize, err = parseSize(fields[3])
		if err != nil {
			return nil, err
		}
		total, err = parseSize(fields[4])
	default:
		return nil, fmt.Errorf("%w: HMSG wants 4 or 5 args, got %d", errors.ErrProtocol, len(fields))
	}
	if err != nil {
		return nil, err
	}
	if hdrSize > total {
		return nil, fmt.Errorf("%w: header length %d exceeds total %d",
			errors.ErrHeaderMismatch, hdrSize, total)
	}

	raw, err := p.readPayload(total)
	if err != nil {
		return nil, err
	}
	block := raw[:hdrSize]
	f.Payload = raw[hdrSize:]

	// The declared header length must land exactly on the blank line that
	// terminates the block. A mismatch means the stream framing cannot be
	// trusted; the caller tears the connection down rather than resync.
	f.Status, f.Description, f.Header, err = decodeHeader(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrHeaderMismatch, err)
	}
	return f, nil
}

// readPayload reads exactly size bytes plus the trailing CRLF.
func (p *Parser) readPayload(size int) ([]byte, error) {
	buf := make([]byte, size+2)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return nil, err
	}
	p.InBytes += int64(size + 2)
	if buf[size] != '\r' || buf[size+1] != '\n' {
		return nil, fmt.Errorf("%w: payload not CRLF terminated", errors.ErrProtocol)
	}
	return buf[:size], nil
}

func (p *Parser) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	p.InBytes += int64(len(line))
	return strings.TrimRight(line, "\r\n"), nil
}

func splitOp(line string) (op, args string) {
	op, args, _ = strings.Cut(line, " ")
	return op, strings.TrimSpace(args)
}

func parseSid(s string) (uint64, error) {
	sid, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad sid %q", errors.ErrProtocol, s)
	}
	return sid, nil
}

func parseSize(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad length %q", errors.ErrProtocol, s)
	}
	return n, nil
}
