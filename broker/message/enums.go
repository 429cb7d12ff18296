package message

// Version of the message format produced and accepted by this package.
const Version = "1.0.0"

// MessageClassEnum tells commands from events.
type MessageClassEnum string

const (
	MessageClassCommand MessageClassEnum = "Command"
	MessageClassEvent   MessageClassEnum = "Event"
)

func (c MessageClassEnum) String() string { return string(c) }

// MessageTypeEnum identifies the body of a message.
type MessageTypeEnum string

const (
	MessageTypeDatasetCreate                    MessageTypeEnum = "DatasetCreate"
	MessageTypeDatasetUpdate                    MessageTypeEnum = "DatasetUpdate"
	MessageTypeDatasetPublish                   MessageTypeEnum = "DatasetPublish"
	MessageTypeDatasetCreateDraft               MessageTypeEnum = "DatasetCreateDraft"
	MessageTypeDatasetCreateVersion             MessageTypeEnum = "DatasetCreateVersion"
	MessageTypeDatasetCreatePreservationVersion MessageTypeEnum = "DatasetCreatePreservationVersion"
	MessageTypeDatasetDelete                    MessageTypeEnum = "DatasetDelete"

	MessageTypeDatasetCreated MessageTypeEnum = "DatasetCreated"
	MessageTypeDatasetUpdated MessageTypeEnum = "DatasetUpdated"
	MessageTypeDatasetDeleted MessageTypeEnum = "DatasetDeleted"
)

func (t MessageTypeEnum) String() string { return string(t) }

// Known reports whether t has a body type registered.
func (t MessageTypeEnum) Known() bool {
	return typedBody(t) != nil
}

// Error codes set in the errorCode header of messages routed to the error
// topic. Lifecycle failures use the kind reported by the catalog instead,
// e.g. "validation" or "conflict".
const (
	ErrorCodeInvalidMessage = "GENERR001"
	ErrorCodeHandlerPanic   = "GENERR006"
	ErrorCodeUnknown        = "Unknown"
)
