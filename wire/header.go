package wire

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/natswire/errors"
)

const (
	headerLine = "NATS/1.0"
	crlf       = "\r\n"
)

// Header carries message metadata as multi-value key pairs. Keys are matched
// case-insensitively but stored and encoded with the casing they were added
// with.
type Header map[string][]string

// Add appends value to the values stored under key, reusing the stored
// casing of an existing matching key.
func (h Header) Add(key, value string) {
	if stored, ok := h.lookup(key); ok {
		h[stored] = append(h[stored], value)
		return
	}
	h[key] = append(h[key], value)
}

// Set replaces all values stored under key.
func (h Header) Set(key, value string) {
	if stored, ok := h.lookup(key); ok {
		delete(h, stored)
	}
	h[key] = []string{value}
}

// Get returns the first value stored under key, or "".
func (h Header) Get(key string) string {
	if vs := h.Values(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns all values stored under key.
func (h Header) Values(key string) []string {
	if stored, ok := h.lookup(key); ok {
		return h[stored]
	}
	return nil
}

// Del removes all values stored under key.
func (h Header) Del(key string) {
	if stored, ok := h.lookup(key); ok {
		delete(h, stored)
	}
}

func (h Header) lookup(key string) (string, bool) {
	if _, ok := h[key]; ok {
		return key, true
	}
	for k := range h {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}

// encodeHeader renders the header block including the status line and the
// terminating blank line. Keys are emitted in sorted order so the encoding
// is deterministic.
func encodeHeader(status Status, description string, h Header) []byte {
	var buf bytes.Buffer
	buf.WriteString(headerLine)
	if status != 0 {
		buf.WriteByte(' ')
		buf.WriteString(strconv.Itoa(int(status)))
		if description != "" {
			buf.WriteByte(' ')
			buf.WriteString(description)
		}
	}
	buf.WriteString(crlf)

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString(crlf)
		}
	}
	buf.WriteString(crlf)
	return buf.Bytes()
}

// decodeHeader parses a complete header block. The block must start with the
// version line and end with a blank line exactly at len(block).
func decodeHeader(block []byte) (Status, string, Header, error) {
	if !bytes.HasSuffix(block, []byte(crlf+crlf)) {
		return 0, "", nil, fmt.Errorf("%w: header block not terminated", errors.ErrProtocol)
	}
	lines := strings.Split(strings.TrimSuffix(string(block), crlf+crlf), crlf)

	version := lines[0]
	if !strings.HasPrefix(version, headerLine) {
		return 0, "", nil, fmt.Errorf("%w: bad header version line %q", errors.ErrProtocol, version)
	}
	var status Status
	var description string
	if rest := strings.TrimSpace(version[len(headerLine):]); rest != "" {
		code, desc, _ := strings.Cut(rest, " ")
		n, err := strconv.Atoi(code)
		if err != nil {
			return 0, "", nil, fmt.Errorf("%w: bad status code %q", errors.ErrProtocol, code)
		}
		status = Status(n)
		description = strings.TrimSpace(desc)
	}

	var h Header
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found || key == "" {
			return 0, "", nil, fmt.Errorf("%w: bad header field %q", errors.ErrProtocol, line)
		}
		if h == nil {
			h = Header{}
		}
		h.Add(key, strings.TrimSpace(value))
	}
	return status, description, h, nil
}
