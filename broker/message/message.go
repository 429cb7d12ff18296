package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/version"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Message represents the messages exchanged with the catalog.
type Message struct {
	// MessageHeader carries the message headers.
	MessageHeader MessageHeader

	// MessageBody carries the message payload.
	MessageBody interface{}
}

// New returns a pointer to a new message with a new ID.
func New(t MessageTypeEnum, c MessageClassEnum) *Message {
	now := time.Now().UTC()
	expires := now.AddDate(0, 1, 0) // One month later.
	return &Message{
		MessageHeader: MessageHeader{
			ID:           uuid.New(),
			MessageClass: c,
			MessageType:  t,
			MessageTimings: MessageTimings{
				PublishedTimestamp:  now,
				ExpirationTimestamp: &expires,
			},
			MessageSequence: MessageSequence{
				Sequence: uuid.New(),
				Position: 1,
				Total:    1,
			},
			Version:   Version,
			Generator: version.AppVersion(),
		},
		MessageBody: typedBody(t),
	}
}

// NewEvent returns the event message announcing e.
func NewEvent(e catalog.Event) (*Message, error) {
	var t MessageTypeEnum
	switch e.Kind {
	case catalog.EventDatasetCreated:
		t = MessageTypeDatasetCreated
	case catalog.EventDatasetUpdated:
		t = MessageTypeDatasetUpdated
	case catalog.EventDatasetDeleted:
		t = MessageTypeDatasetDeleted
	default:
		return nil, errors.Errorf("unknown event kind %q", e.Kind)
	}
	msg := New(t, MessageClassEvent)
	msg.MessageBody = &DatasetEvent{
		DatasetID: e.DatasetID,
		CatalogID: e.CatalogID,
		State:     e.State,
	}
	return msg, nil
}

// messageAlias is proxy type for Message. Using json.RawMessage in order to:
// - Delay JSON decoding.
// - Precompute JSON encoding.
type messageAlias struct {
	MessageHeader json.RawMessage `json:"messageHeader"`
	MessageBody   json.RawMessage `json:"messageBody"`
}

func (m *Message) ID() string {
	return m.MessageHeader.ID.String()
}

// TagError records err in the error headers. Errors coming from the catalog
// are tagged with their kind.
func (m *Message) TagError(err error) {
	if err == nil {
		return
	}
	var tagged *Error
	switch {
	case errors.As(err, &tagged):
		m.MessageHeader.ErrorCode = tagged.Code
		m.MessageHeader.ErrorDescription = tagged.Err.Error()
	default:
		kind := catalog.ErrorKind(err)
		if kind == "internal" {
			kind = ErrorCodeUnknown
		}
		m.MessageHeader.ErrorCode = kind
		m.MessageHeader.ErrorDescription = err.Error()
	}
}

// Error carries an explicit error code for the error headers.
type Error struct {
	Code string
	Err  error
}

// NewError returns an Error with the given code.
func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON implements Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	header, err := json.Marshal(m.MessageHeader)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(m.MessageBody)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&messageAlias{
		MessageHeader: json.RawMessage(header),
		MessageBody:   json.RawMessage(body),
	})
}

// UnmarshalJSON implements Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	msg := messageAlias{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if err := json.Unmarshal(msg.MessageHeader, &m.MessageHeader); err != nil {
		return err
	}
	m.MessageBody = typedBody(m.MessageHeader.MessageType)
	if m.MessageBody == nil {
		return errors.Errorf("unknown message type %q", m.MessageHeader.MessageType)
	}
	return json.Unmarshal(msg.MessageBody, m.MessageBody)
}

// typedBody returns an interface{} type where the type of the underlying value
// is chosen after the header message type.
func typedBody(t MessageTypeEnum) interface{} {
	var body interface{}
	switch t {
	case MessageTypeDatasetCreate:
		body = new(DatasetCreateRequest)
	case MessageTypeDatasetUpdate:
		body = new(DatasetUpdateRequest)
	case MessageTypeDatasetPublish,
		MessageTypeDatasetCreateDraft,
		MessageTypeDatasetCreateVersion,
		MessageTypeDatasetCreatePreservationVersion:
		body = new(DatasetRequest)
	case MessageTypeDatasetDelete:
		body = new(DatasetDeleteRequest)
	case MessageTypeDatasetCreated, MessageTypeDatasetUpdated, MessageTypeDatasetDeleted:
		body = new(DatasetEvent)
	}
	return body
}
