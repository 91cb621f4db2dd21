// Package channel implements the websocket capture request protocol.
//
// The client sends the capture URL as its first text message and then
// "ping" every few seconds. The server answers with "id:<job id>", a
// "status<json>" message after every job change, and ends either with a
// status whose done flag is set or with "error: <reason>".
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/user/capturedriver/pkg/capture"
)

const (
	prefixID     = "id:"
	prefixStatus = "status"
	prefixError  = "error"

	// PingMessage is the keepalive sent by clients.
	PingMessage = "ping"
)

// MessageType identifies a server message.
type MessageType int

const (
	MessageID MessageType = iota
	MessageStatus
	MessageError
)

// Message is a decoded server message.
type Message struct {
	Type   MessageType
	ID     string
	Status capture.Snapshot
	Reason string
}

// ErrUnknownMessage is returned for frames that match no message type.
var ErrUnknownMessage = errors.New("unknown channel message")

// EncodeID encodes the job id announcement.
func EncodeID(id string) []byte {
	return []byte(prefixID + id)
}

// EncodeStatus encodes a job snapshot.
func EncodeStatus(snap capture.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return append([]byte(prefixStatus), data...), nil
}

// EncodeError encodes a terminal failure.
func EncodeError(reason string) []byte {
	return []byte(prefixError + ": " + reason)
}

// Decode parses a server message.
func Decode(data []byte) (Message, error) {
	s := string(data)
	switch {
	case strings.HasPrefix(s, prefixID):
		return Message{Type: MessageID, ID: strings.TrimPrefix(s, prefixID)}, nil
	case strings.HasPrefix(s, prefixStatus):
		var snap capture.Snapshot
		if err := json.Unmarshal(data[len(prefixStatus):], &snap); err != nil {
			return Message{}, fmt.Errorf("decode status: %w", err)
		}
		return Message{Type: MessageStatus, Status: snap}, nil
	case s == prefixError || strings.HasPrefix(s, prefixError+":"):
		reason := strings.TrimSpace(strings.TrimPrefix(s, prefixError+":"))
		if s == prefixError {
			reason = ""
		}
		return Message{Type: MessageError, Reason: reason}, nil
	default:
		return Message{}, fmt.Errorf("%w: %.32q", ErrUnknownMessage, s)
	}
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return "capture failed"
	}
	return "capture failed: " + e.Reason
}
