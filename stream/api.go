package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/natswire/errors"
)

// Admin API subjects. Only the calls the consumption engine itself needs
// are implemented; general stream administration is out of scope.
const (
	apiPrefix         = "$JS.API."
	apiConsumerCreate = apiPrefix + "CONSUMER.CREATE.%s"
	apiConsumerDelete = apiPrefix + "CONSUMER.DELETE.%s.%s"
	apiConsumerInfo   = apiPrefix + "CONSUMER.INFO.%s.%s"
	apiConsumerNext   = apiPrefix + "CONSUMER.MSG.NEXT.%s.%s"
)

// Error codes the engine distinguishes.
const (
	apiCodeConsumerNotFound = 10014
	apiCodeStreamNotFound   = 10059
)

// APIError is the error object carried in admin API responses.
type APIError struct {
	Code        int    `json:"code"`
	ErrCode     int    `json:"err_code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%d): %s", e.Code, e.ErrCode, e.Description)
}

// Unwrap maps well-known broker error codes onto package sentinels so
// callers can test with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.ErrCode {
	case apiCodeConsumerNotFound:
		return errors.ErrConsumerNotFound
	case apiCodeStreamNotFound:
		return errors.ErrConsumerNotFound
	}
	return nil
}

type apiResponse struct {
	Type  string    `json:"type"`
	Error *APIError `json:"error,omitempty"`
}

// SequenceInfo is a stream/consumer sequence pair from consumer state.
type SequenceInfo struct {
	ConsumerSeq uint64     `json:"consumer_seq"`
	StreamSeq   uint64     `json:"stream_seq"`
	Last        *time.Time `json:"last_active,omitempty"`
}

// ConsumerInfo is the broker's view of one consumer.
type ConsumerInfo struct {
	Stream         string         `json:"stream_name"`
	Name           string         `json:"name"`
	Created        time.Time      `json:"created"`
	Config         ConsumerConfig `json:"config"`
	Delivered      SequenceInfo   `json:"delivered"`
	AckFloor       SequenceInfo   `json:"ack_floor"`
	NumAckPending  int            `json:"num_ack_pending"`
	NumRedelivered int            `json:"num_redelivered"`
	NumWaiting     int            `json:"num_waiting"`
	NumPending     uint64         `json:"num_pending"`
}

type consumerCreateRequest struct {
	Stream string         `json:"stream_name"`
	Config ConsumerConfig `json:"config"`
}

type consumerCreateResponse struct {
	apiResponse
	ConsumerInfo
}

type consumerDeleteResponse struct {
	apiResponse
	Success bool `json:"success"`
}

type consumerInfoResponse struct {
	apiResponse
	ConsumerInfo
}

// apiRequest performs one admin API round trip: marshal the request, send
// it through the request primitive, decode the envelope and surface any
// embedded API error.
func (e *Engine) apiRequest(ctx context.Context, subj string, req, resp any) error {
	var payload []byte
	if req != nil {
		var err error
		payload, err = json.Marshal(req)
		if err != nil {
			return errors.WrapInvalid(err, "Engine", "apiRequest", "encode api request")
		}
	}

	msg, err := e.c.Request(ctx, subj, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return errors.Wrap(err, "Engine", "apiRequest", "decode api response")
	}
	return nil
}

func (e *Engine) createConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (*ConsumerInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var resp consumerCreateResponse
	subj := fmt.Sprintf(apiConsumerCreate, streamName)
	if err := e.apiRequest(ctx, subj, &consumerCreateRequest{Stream: streamName, Config: cfg}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Wrap(resp.Error, "Engine", "createConsumer", "create consumer")
	}
	return &resp.ConsumerInfo, nil
}

func (e *Engine) deleteConsumer(ctx context.Context, streamName, consumer string) error {
	var resp consumerDeleteResponse
	subj := fmt.Sprintf(apiConsumerDelete, streamName, consumer)
	if err := e.apiRequest(ctx, subj, nil, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.Wrap(resp.Error, "Engine", "deleteConsumer", "delete consumer")
	}
	return nil
}

func (e *Engine) consumerInfo(ctx context.Context, streamName, consumer string) (*ConsumerInfo, error) {
	var resp consumerInfoResponse
	subj := fmt.Sprintf(apiConsumerInfo, streamName, consumer)
	if err := e.apiRequest(ctx, subj, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Wrap(resp.Error, "Engine", "consumerInfo", "fetch consumer info")
	}
	return &resp.ConsumerInfo, nil
}
