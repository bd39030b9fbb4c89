package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/natswire/errors"
	"github.com/c360/natswire/subject"
)

// DeliverPolicy selects where in the stream a consumer starts.
type DeliverPolicy int

const (
	DeliverAll DeliverPolicy = iota
	DeliverLast
	DeliverNew
	DeliverByStartSequence
	DeliverByStartTime
	DeliverLastPerSubject
)

var deliverPolicyNames = map[DeliverPolicy]string{
	DeliverAll:             "all",
	DeliverLast:            "last",
	DeliverNew:             "new",
	DeliverByStartSequence: "by_start_sequence",
	DeliverByStartTime:     "by_start_time",
	DeliverLastPerSubject:  "last_per_subject",
}

func (p DeliverPolicy) String() string {
	if s, ok := deliverPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("deliver_policy(%d)", int(p))
}

func (p DeliverPolicy) MarshalJSON() ([]byte, error) {
	s, ok := deliverPolicyNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown deliver policy %d", int(p))
	}
	return json.Marshal(s)
}

func (p *DeliverPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range deliverPolicyNames {
		if v == s {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown deliver policy %q", s)
}

// AckPolicy selects how deliveries must be acknowledged.
type AckPolicy int

const (
	// AckExplicit requires each delivered message to be acked individually.
	AckExplicit AckPolicy = iota

	// AckAll acknowledges every message up to and including the acked one.
	AckAll

	// AckNone requires no acknowledgement; manual ack calls are rejected.
	AckNone
)

var ackPolicyNames = map[AckPolicy]string{
	AckExplicit: "explicit",
	AckAll:      "all",
	AckNone:     "none",
}

func (p AckPolicy) String() string {
	if s, ok := ackPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("ack_policy(%d)", int(p))
}

func (p AckPolicy) MarshalJSON() ([]byte, error) {
	s, ok := ackPolicyNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown ack policy %d", int(p))
	}
	return json.Marshal(s)
}

func (p *AckPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range ackPolicyNames {
		if v == s {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown ack policy %q", s)
}

// ConsumerConfig describes one consumer. It is validated once at
// construction and treated as immutable afterwards; the engine never
// mutates a config it was given.
type ConsumerConfig struct {
	Durable       string `json:"durable_name,omitempty"`
	Name          string `json:"name,omitempty"`
	Description   string `json:"description,omitempty"`
	FilterSubject string `json:"filter_subject,omitempty"`

	DeliverPolicy DeliverPolicy `json:"deliver_policy"`
	OptStartSeq   uint64        `json:"opt_start_seq,omitempty"`
	OptStartTime  *time.Time    `json:"opt_start_time,omitempty"`

	AckPolicy     AckPolicy     `json:"ack_policy"`
	AckWait       time.Duration `json:"ack_wait,omitempty"`
	MaxDeliver    int           `json:"max_deliver,omitempty"`
	MaxAckPending int           `json:"max_ack_pending,omitempty"`

	// Push delivery. Empty DeliverSubject means a pull consumer.
	DeliverSubject string        `json:"deliver_subject,omitempty"`
	DeliverGroup   string        `json:"deliver_group,omitempty"`
	FlowControl    bool          `json:"flow_control,omitempty"`
	Heartbeat      time.Duration `json:"idle_heartbeat,omitempty"`

	// Pull limits.
	MaxWaiting      int `json:"max_waiting,omitempty"`
	MaxRequestBatch int `json:"max_batch,omitempty"`

	InactiveThreshold time.Duration `json:"inactive_threshold,omitempty"`
	MemoryStorage     bool          `json:"mem_storage,omitempty"`
	Replicas          int           `json:"num_replicas,omitempty"`
}

// IsPull reports whether the config describes a pull consumer.
func (cfg *ConsumerConfig) IsPull() bool {
	return cfg.DeliverSubject == ""
}

func invalidConfig(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"ConsumerConfig", "Validate", "validate consumer config")
}

// Validate rejects configs the broker would refuse or the engine cannot
// serve, with an error naming the offending combination.
func (cfg *ConsumerConfig) Validate() error {
	if cfg.FilterSubject != "" {
		if err := subject.Validate(cfg.FilterSubject); err != nil {
			return invalidConfig("filter subject %q: %v", cfg.FilterSubject, err)
		}
	}
	if cfg.Durable != "" && !subject.ValidToken(cfg.Durable) {
		return invalidConfig("durable name %q is not a valid token", cfg.Durable)
	}
	if cfg.Name != "" && !subject.ValidToken(cfg.Name) {
		return invalidConfig("consumer name %q is not a valid token", cfg.Name)
	}
	if cfg.Durable != "" && cfg.Name != "" && cfg.Durable != cfg.Name {
		return invalidConfig("durable name %q conflicts with name %q", cfg.Durable, cfg.Name)
	}

	switch cfg.DeliverPolicy {
	case DeliverByStartSequence:
		if cfg.OptStartSeq == 0 {
			return invalidConfig("deliver policy by_start_sequence requires a start sequence")
		}
		if cfg.OptStartTime != nil {
			return invalidConfig("start time set with deliver policy by_start_sequence")
		}
	case DeliverByStartTime:
		if cfg.OptStartTime == nil || cfg.OptStartTime.IsZero() {
			return invalidConfig("deliver policy by_start_time requires a start time")
		}
		if cfg.OptStartSeq != 0 {
			return invalidConfig("start sequence set with deliver policy by_start_time")
		}
	default:
		if cfg.OptStartSeq != 0 {
			return invalidConfig("start sequence requires deliver policy by_start_sequence")
		}
		if cfg.OptStartTime != nil {
			return invalidConfig("start time requires deliver policy by_start_time")
		}
	}

	if cfg.AckPolicy == AckNone {
		if cfg.AckWait != 0 {
			return invalidConfig("ack wait is meaningless with ack policy none")
		}
		if cfg.MaxAckPending != 0 {
			return invalidConfig("max ack pending is meaningless with ack policy none")
		}
	}
	if cfg.AckWait < 0 {
		return invalidConfig("ack wait cannot be negative")
	}
	if cfg.MaxDeliver < 0 {
		return invalidConfig("max deliver cannot be negative")
	}

	if cfg.IsPull() {
		if cfg.DeliverGroup != "" {
			return invalidConfig("deliver group requires a deliver subject")
		}
		if cfg.FlowControl {
			return invalidConfig("flow control requires a deliver subject")
		}
		if cfg.Heartbeat != 0 {
			return invalidConfig("idle heartbeat requires a deliver subject")
		}
	} else {
		if err := subject.ValidateLiteral(cfg.DeliverSubject); err != nil {
			return invalidConfig("deliver subject %q: %v", cfg.DeliverSubject, err)
		}
		if cfg.DeliverGroup != "" && !subject.ValidToken(cfg.DeliverGroup) {
			return invalidConfig("deliver group %q is not a valid token", cfg.DeliverGroup)
		}
		if cfg.MaxWaiting != 0 {
			return invalidConfig("max waiting applies to pull consumers only")
		}
		if cfg.MaxRequestBatch != 0 {
			return invalidConfig("max batch applies to pull consumers only")
		}
		if cfg.FlowControl && cfg.Heartbeat == 0 {
			return invalidConfig("flow control requires an idle heartbeat")
		}
	}

	return nil
}
