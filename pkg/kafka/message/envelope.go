// Package message defines the versioned envelope every fee stream message travels in.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnexpectedType = errors.New("unexpected message type")

type Envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"id,omitempty"`
	TS      string          `json:"ts,omitempty"` // RFC 3339
	Data    json.RawMessage `json:"data"`
}

func Open(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Seal marshals payload into a new envelope.
func Seal(msgType string, version int, id, ts string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return &Envelope{
		Type:    msgType,
		Version: version,
		ID:      id,
		TS:      ts,
		Data:    data,
	}, nil
}

// Expect checks the envelope carries msgType at a version no newer than maxVersion.
func (e *Envelope) Expect(msgType string, maxVersion int) error {
	if e.Type != msgType {
		return fmt.Errorf("%w: got %q, want %q", ErrUnexpectedType, e.Type, msgType)
	}
	if e.Version < 1 || e.Version > maxVersion {
		return fmt.Errorf("unsupported %s version %d", msgType, e.Version)
	}
	return nil
}
