package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform wrapper of every backend response body.
type Envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func decodeEnvelope(status int, body []byte) (*Envelope, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &Envelope{}, nil
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrInvalidResponse, status, err)
	}
	return &env, nil
}

// unwrap applies the envelope policy: HTTP errors and "error" envelopes
// become *APIError, otherwise data is decoded into out.
func unwrap(status int, body []byte, out any) error {
	env, err := decodeEnvelope(status, body)
	if err != nil {
		if status >= 400 {
			return &APIError{Status: status, Message: string(bytes.TrimSpace(body))}
		}
		return err
	}

	if status >= 400 || env.Status == StatusError {
		return &APIError{
			Status:  status,
			Code:    env.Code,
			Message: env.Message,
			Details: env.Details,
		}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: data: %v", ErrInvalidResponse, err)
	}
	return nil
}
