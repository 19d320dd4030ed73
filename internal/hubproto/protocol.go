// Package hubproto implements the JSON hub protocol spoken between chat
// clients and the hub: a handshake followed by typed frames, each record
// terminated by 0x1E.
package hubproto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

const RecordSeparator byte = 0x1E

const (
	ProtocolName    = "json"
	ProtocolVersion = 1
)

// Frame types.
const (
	TypeInvocation = 1
	TypeStreamItem = 2
	TypeCompletion = 3
	TypePing       = 6
	TypeClose      = 7
)

type HandshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type HandshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// Message is any frame after the handshake. Unused fields stay empty.
type Message struct {
	Type           int               `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// NegotiateResponse answers POST {hub}/negotiate before a long polling
// connection.
type NegotiateResponse struct {
	ConnectionID        string               `json:"connectionId"`
	ConnectionToken     string               `json:"connectionToken,omitempty"`
	NegotiateVersion    int                  `json:"negotiateVersion"`
	AvailableTransports []AvailableTransport `json:"availableTransports"`
	Error               string               `json:"error,omitempty"`
}

type AvailableTransport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

// Encode marshals v and appends the record separator.
func Encode(v any) ([]byte, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(b, RecordSeparator), nil
}

// Split cuts data into complete records and returns the unterminated rest.
func Split(data []byte) (records [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(data, RecordSeparator)
		if i < 0 {
			return records, data
		}
		if i > 0 {
			records = append(records, data[:i])
		}
		data = data[i+1:]
	}
}

func Decode(record []byte) (Message, error) {
	var m Message
	if err := sonic.Unmarshal(record, &m); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	return m, nil
}

// NewInvocation builds an invocation frame. An empty id asks for no
// completion.
func NewInvocation(id, target string, args ...any) (Message, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := sonic.Marshal(a)
		if err != nil {
			return Message{}, fmt.Errorf("encode argument %d of %s: %w", i, target, err)
		}
		raw = append(raw, b)
	}
	return Message{
		Type:         TypeInvocation,
		InvocationID: id,
		Target:       target,
		Arguments:    raw,
	}, nil
}

func NewCompletion(id string, err error) Message {
	m := Message{Type: TypeCompletion, InvocationID: id}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

func Ping() Message {
	return Message{Type: TypePing}
}

func CloseFrame(reason string, allowReconnect bool) Message {
	return Message{Type: TypeClose, Error: reason, AllowReconnect: allowReconnect}
}
