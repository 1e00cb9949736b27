// Package protocol defines the request/response envelope shared by every
// transport of the sprite server.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/spriteserver/internal/core/models"
)

// MaxMessageSize bounds one encoded envelope.
const MaxMessageSize = 1 << 20

// Method names a remote operation.
type Method string

const (
	MethodGetWidth     Method = "GetWidth"
	MethodGetHeight    Method = "GetHeight"
	MethodCreateEntity Method = "CreateEntity"
	MethodListEntities Method = "ListEntities"
	// MethodWatch subscribes the connection to a snapshot after every tick.
	// Only stream-oriented transports support it.
	MethodWatch Method = "Watch"
)

func (m Method) Valid() bool {
	switch m {
	case MethodGetWidth, MethodGetHeight, MethodCreateEntity, MethodListEntities, MethodWatch:
		return true
	default:
		return false
	}
}

// MessageType tells requests, responses and server pushes apart on the wire.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
	TypePush     MessageType = "push"
)

// Message is the single envelope every transport carries.
type Message struct {
	Type   MessageType     `json:"type"`
	ID     uuid.UUID       `json:"id"`
	Method Method          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// CreateParams are the parameters of CreateEntity.
type CreateParams struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SnapshotResult is the result of ListEntities and the payload of a watch
// push.
type SnapshotResult struct {
	Tick    uint64          `json:"tick"`
	Hash    uint64          `json:"hash,string"`
	Sprites []models.Sprite `json:"sprites"`
}

// NewRequest builds a request with a fresh ID. params may be nil.
func NewRequest(method Method, params any) (*Message, error) {
	msg := &Message{Type: TypeRequest, ID: uuid.New(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
		}
		msg.Params = raw
	}
	return msg, nil
}

// NewResult answers req with result. A nil result yields an empty success.
func NewResult(req *Message, result any) *Message {
	msg := &Message{Type: TypeResponse, ID: req.ID, Method: req.Method}
	if result == nil {
		return msg
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return NewError(req, CodeInternal, err.Error())
	}
	msg.Result = raw
	return msg
}

// NewError answers req with a coded failure. req may be nil when the request
// could not be decoded at all.
func NewError(req *Message, code Code, message string) *Message {
	msg := &Message{Type: TypeResponse, Error: &Error{Code: code, Message: message}}
	if req != nil {
		msg.ID = req.ID
		msg.Method = req.Method
	}
	return msg
}

// NewPush builds an unsolicited message for the watch registered by the
// request watchID.
func NewPush(watchID uuid.UUID, snap SnapshotResult) (*Message, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return &Message{Type: TypePush, ID: watchID, Method: MethodWatch, Result: raw}, nil
}

// DecodeParams unmarshals request parameters into v.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("%w: missing params for %s", ErrInvalidParams, m.Method)
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// DecodeResult unmarshals a response into v, or returns its remote error.
// v may be nil for results the caller ignores.
func (m *Message) DecodeResult(v any) error {
	if m.Error != nil {
		return m.Error
	}
	if v == nil || len(m.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Result, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	return nil
}

// Encode serializes msg for the wire.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return data, nil
}

// Decode parses and validates one envelope.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Message) Validate() error {
	switch m.Type {
	case TypeRequest:
		if m.ID == uuid.Nil {
			return fmt.Errorf("%w: request without id", ErrInvalidMessage)
		}
		if m.Method == "" {
			return fmt.Errorf("%w: request without method", ErrInvalidMessage)
		}
	case TypeResponse, TypePush:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}
