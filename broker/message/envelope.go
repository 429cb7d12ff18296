package message

import (
	"encoding/json"
	"fmt"
)

// Envelope reads messages superficially only to extract the core attributes.
// It enables users to look up enough information to perform validation
// while avoiding other potential decoding issues that we prefer to defer.
type Envelope struct {
	MessageHeader json.RawMessage `json:"messageHeader"`
	MessageBody   json.RawMessage `json:"messageBody"`
	Attributes    Attributes      `json:"-"`
}

// Open returns the Envelope of a message stream.
func Open(stream []byte) (*Envelope, error) {
	e := Envelope{Attributes: Attributes{}}

	if err := json.Unmarshal(stream, &e); err != nil {
		return nil, fmt.Errorf("error decoding header/body streams: %v", err)
	}

	if err := e.inspect(); err != nil {
		return nil, fmt.Errorf("error decoding envelope attributes: %v", err)
	}

	return &e, nil
}

type Attributes struct {
	Version       string `json:"version"`
	MessageType   string `json:"messageType"`
	CorrelationID string `json:"correlationId"`
}

// inspect extracts the main headers (version, type, correlation).
func (e *Envelope) inspect() error {
	if len(e.MessageHeader) == 0 {
		return fmt.Errorf("header is missing")
	}

	if err := json.Unmarshal(e.MessageHeader, &e.Attributes); err != nil {
		return err
	}

	if e.Attributes.Version == "" {
		return fmt.Errorf("version header is empty or missing")
	}

	if e.Attributes.MessageType == "" {
		return fmt.Errorf("message type header is empty or missing")
	}

	return nil
}

// Type returns the message type named by the envelope.
func (e *Envelope) Type() MessageTypeEnum {
	return MessageTypeEnum(e.Attributes.MessageType)
}

// DatasetDocument returns the dataset document carried by create and update
// commands, or nil for other types.
func (e *Envelope) DatasetDocument() (json.RawMessage, error) {
	switch e.Type() {
	case MessageTypeDatasetCreate, MessageTypeDatasetUpdate:
	default:
		return nil, nil
	}
	var body struct {
		Dataset json.RawMessage `json:"dataset"`
	}
	if err := json.Unmarshal(e.MessageBody, &body); err != nil {
		return nil, fmt.Errorf("error decoding body: %v", err)
	}
	if len(body.Dataset) == 0 {
		return nil, fmt.Errorf("dataset document is missing")
	}
	return body.Dataset, nil
}
