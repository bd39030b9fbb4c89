package stream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/subject"
)

const ackSubjectPrefix = "$JS.ACK."

// SequencePair holds the stream and consumer sequence of one delivery.
type SequencePair struct {
	Stream   uint64
	Consumer uint64
}

// MsgMetadata is the delivery metadata encoded in a message's ack subject.
// Domain and AccountHash are empty on older brokers that emit the short
// ack subject layout.
type MsgMetadata struct {
	Domain       string
	AccountHash  string
	Stream       string
	Consumer     string
	NumDelivered uint64
	Sequence     SequencePair
	Timestamp    time.Time
	NumPending   uint64
}

func badAckSubject(reply, detail string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: ack subject %q: %s", errors.ErrBadSubject, reply, detail),
		"stream", "ParseMetadata", "parse ack subject")
}

// ParseMetadata decodes the delivery metadata from an ack subject. Two
// layouts exist: the short one with 9 tokens and the extended one with 11
// or more, which prefixes a domain and account hash and may append extra
// tokens newer brokers add. A "_" domain token means no domain.
//
// Acks themselves never need this; the ack subject stays an opaque reply
// subject for publishing. Parsing is only for callers that want sequences,
// delivery counts or pending counts, and for ordered gap tracking.
func ParseMetadata(reply string) (*MsgMetadata, error) {
	if !strings.HasPrefix(reply, ackSubjectPrefix) {
		return nil, badAckSubject(reply, "missing $JS.ACK prefix")
	}

	tokens := subject.Tokens(reply)
	var meta MsgMetadata

	// Skip the leading "$JS" and "ACK" tokens.
	rest := tokens[2:]
	switch {
	case len(rest) >= 9:
		if rest[0] != "_" {
			meta.Domain = rest[0]
		}
		meta.AccountHash = rest[1]
		rest = rest[2:]
	case len(rest) == 7:
		// Short layout, no domain or account hash.
	default:
		return nil, badAckSubject(reply, "unexpected token count")
	}

	meta.Stream = rest[0]
	meta.Consumer = rest[1]

	nums := make([]uint64, 5)
	for i, tok := range rest[2:7] {
		n, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return nil, badAckSubject(reply, "non-numeric token "+tok)
		}
		nums[i] = n
	}
	meta.NumDelivered = nums[0]
	meta.Sequence = SequencePair{Stream: nums[1], Consumer: nums[2]}
	meta.Timestamp = time.Unix(0, int64(nums[3]))
	meta.NumPending = nums[4]

	return &meta, nil
}
