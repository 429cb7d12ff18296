package message

import (
	"encoding/json"
	"fmt"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
)

// Dataset Create

// DatasetCreateRequest represents the body of the message. Dataset is the
// dataset document, decoded by the receiver once validated.
type DatasetCreateRequest struct {
	Dataset json.RawMessage `json:"dataset"`
}

// DatasetCreateRequest returns the body of the message.
func (m Message) DatasetCreateRequest() (*DatasetCreateRequest, error) {
	body, ok := m.MessageBody.(*DatasetCreateRequest)
	if !ok {
		return nil, fmt.Errorf("DatasetCreateRequest(): interface conversion error")
	}
	return body, nil
}

// Dataset Update

// DatasetUpdateRequest represents the body of the message. The document
// must carry the id of the dataset being updated.
type DatasetUpdateRequest struct {
	Dataset json.RawMessage `json:"dataset"`
}

// DatasetUpdateRequest returns the body of the message.
func (m Message) DatasetUpdateRequest() (*DatasetUpdateRequest, error) {
	body, ok := m.MessageBody.(*DatasetUpdateRequest)
	if !ok {
		return nil, fmt.Errorf("DatasetUpdateRequest(): interface conversion error")
	}
	return body, nil
}

// Publish, CreateDraft, CreateVersion and CreatePreservationVersion

// DatasetRequest represents the body of commands that only name a dataset.
type DatasetRequest struct {
	DatasetID uuid.UUID `json:"datasetId"`
}

// DatasetRequest returns the body of the message.
func (m Message) DatasetRequest() (*DatasetRequest, error) {
	body, ok := m.MessageBody.(*DatasetRequest)
	if !ok {
		return nil, fmt.Errorf("DatasetRequest(): interface conversion error")
	}
	return body, nil
}

// Dataset Delete

// DatasetDeleteRequest represents the body of the message. Flush removes
// the records instead of marking them as removed.
type DatasetDeleteRequest struct {
	DatasetID uuid.UUID `json:"datasetId"`
	Flush     bool      `json:"flush,omitempty"`
}

// DatasetDeleteRequest returns the body of the message.
func (m Message) DatasetDeleteRequest() (*DatasetDeleteRequest, error) {
	body, ok := m.MessageBody.(*DatasetDeleteRequest)
	if !ok {
		return nil, fmt.Errorf("DatasetDeleteRequest(): interface conversion error")
	}
	return body, nil
}

// Events

// DatasetEvent represents the body of the DatasetCreated, DatasetUpdated
// and DatasetDeleted events.
type DatasetEvent struct {
	DatasetID uuid.UUID     `json:"datasetId"`
	CatalogID string        `json:"dataCatalog,omitempty"`
	State     catalog.State `json:"state"`
}

// DatasetEvent returns the body of the message.
func (m Message) DatasetEvent() (*DatasetEvent, error) {
	body, ok := m.MessageBody.(*DatasetEvent)
	if !ok {
		return nil, fmt.Errorf("DatasetEvent(): interface conversion error")
	}
	return body, nil
}
