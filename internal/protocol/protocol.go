package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello         = "HELLO"
	TypeWelcome       = "WELCOME"
	TypeSelect        = "SELECT"
	TypePreview       = "PREVIEW"
	TypeCommit        = "COMMIT"
	TypeDiscard       = "DISCARD"
	TypeCancelItem    = "CANCEL_ITEM"
	TypeSetQuantity   = "SET_QUANTITY"
	TypeAck           = "ACK"
	TypePreviewResult = "PREVIEW_RESULT"
	TypePostingStatus = "POSTING_STATUS"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
