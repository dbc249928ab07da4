package logstore

import (
	"encoding/json"
	"time"

	"github.com/loykin/wrapmcp/internal/protocol"
)

// Kind tags a log entry with the event it records.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
	KindStderr   Kind = "stderr"
)

// ParseKind validates a kind string from a filter. Empty input means "no
// filter".
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindRequest, KindResponse, KindError, KindStderr, "":
		return Kind(s), true
	default:
		return "", false
	}
}

// Entry is one immutable interaction record. Which optional fields are set
// depends on Kind:
//
//	request:  Tool, Payload (arguments)
//	response: Tool, CorrelationID, Payload (result), Elapsed
//	error:    Tool, CorrelationID, Text (message), Elapsed
//	stderr:   Text (one captured line)
type Entry struct {
	Seq           uint64               `json:"seq"`
	Timestamp     time.Time            `json:"timestamp"`
	Kind          Kind                 `json:"kind"`
	Tool          protocol.ToolName    `json:"tool_name,omitempty"`
	CorrelationID protocol.RequestID   `json:"request_id,omitempty"`
	Payload       json.RawMessage      `json:"payload,omitempty"`
	Text          string               `json:"text,omitempty"`
	Elapsed       time.Duration        `json:"elapsed,omitempty"`
}

// searchText returns the content the keyword filter matches against.
func (e *Entry) searchText() string {
	if len(e.Payload) > 0 {
		return string(e.Tool) + " " + string(e.Payload) + " " + e.Text
	}
	return string(e.Tool) + " " + e.Text
}
