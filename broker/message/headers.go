package message

import (
	"time"

	"github.com/google/uuid"
)

// MessageHeader contains the metadata describing the message itself: its
// type, routing information, timings and sequencing.
type MessageHeader struct {
	ID               uuid.UUID        `json:"messageId"`
	CorrelationID    *uuid.UUID       `json:"correlationId,omitempty"`
	MessageClass     MessageClassEnum `json:"messageClass"`
	MessageType      MessageTypeEnum  `json:"messageType"`
	ReturnAddress    string           `json:"returnAddress,omitempty"`
	MessageTimings   MessageTimings   `json:"messageTimings"`
	MessageSequence  MessageSequence  `json:"messageSequence"`
	MessageHistory   []MessageHistory `json:"messageHistory,omitempty"`
	Version          string           `json:"version"`
	ErrorCode        string           `json:"errorCode,omitempty"`
	ErrorDescription string           `json:"errorDescription,omitempty"`
	Generator        string           `json:"generator"`
}

type MessageTimings struct {
	PublishedTimestamp  time.Time  `json:"publishedTimestamp"`
	ExpirationTimestamp *time.Time `json:"expirationTimestamp,omitempty"`
}

// Expired reports whether the message should no longer be acted upon.
func (t MessageTimings) Expired(now time.Time) bool {
	return t.ExpirationTimestamp != nil && now.After(*t.ExpirationTimestamp)
}

type MessageSequence struct {
	Sequence uuid.UUID `json:"sequence"`
	Position int       `json:"position"`
	Total    int       `json:"total"`
}

type MessageHistory struct {
	MachineID      string    `json:"machineId"`
	MachineAddress string    `json:"machineAddress"`
	Timestamp      time.Time `json:"timestamp"`
}
