package message_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/internal/testutil"
	"github.com/JiscSD/rdss-metadata-catalog/version"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := message.New(message.MessageTypeDatasetPublish, message.MessageClassCommand)

	assert.NotEqual(t, uuid.Nil, m.MessageHeader.ID)
	assert.Equal(t, m.MessageHeader.ID.String(), m.ID())
	assert.Equal(t, message.Version, m.MessageHeader.Version)
	assert.Equal(t, version.AppVersion(), m.MessageHeader.Generator)
	assert.Equal(t, 1, m.MessageHeader.MessageSequence.Total)
	require.NotNil(t, m.MessageHeader.MessageTimings.ExpirationTimestamp)
	assert.False(t, m.MessageHeader.MessageTimings.Expired(time.Now()))
	assert.True(t, m.MessageHeader.MessageTimings.Expired(time.Now().AddDate(0, 2, 0)))

	_, err := m.DatasetRequest()
	assert.NoError(t, err)
	_, err = m.DatasetDeleteRequest()
	assert.Error(t, err)
}

func TestUnmarshalCreate(t *testing.T) {
	m := &message.Message{}
	require.NoError(t, json.Unmarshal(testutil.Fixture(t, "messages/dataset_create.json"), m))

	assert.Equal(t, "9e1c4b7a-2f0d-4c55-a9f6-2f7d9f1b6a01", m.ID())
	assert.Equal(t, message.MessageClassCommand, m.MessageHeader.MessageClass)
	assert.Equal(t, "arn:aws:sns:eu-west-2:123456789012:depositor", m.MessageHeader.ReturnAddress)
	assert.True(t, m.MessageHeader.MessageTimings.Expired(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)))

	body, err := m.DatasetCreateRequest()
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Dataset, &doc))
	assert.Equal(t, "urn:nbn:fi:att:data-catalog-ida", doc["data_catalog"])
}

func TestUnmarshalPublish(t *testing.T) {
	m := &message.Message{}
	require.NoError(t, json.Unmarshal(testutil.Fixture(t, "messages/dataset_publish.json"), m))

	body, err := m.DatasetRequest()
	require.NoError(t, err)
	assert.Equal(t, "5680e8e0-28a5-4b20-948e-fd0d08781e0b", body.DatasetID.String())
	assert.Nil(t, m.MessageHeader.MessageTimings.ExpirationTimestamp)
}

func TestUnmarshalUnknownType(t *testing.T) {
	blob := []byte(`{"messageHeader": {"messageType": "MetadataCreate", "version": "1.0.0"}, "messageBody": {}}`)
	err := json.Unmarshal(blob, &message.Message{})
	assert.EqualError(t, err, `unknown message type "MetadataCreate"`)
}

func TestMarshalKeepsBody(t *testing.T) {
	id := uuid.New()
	m := message.New(message.MessageTypeDatasetDelete, message.MessageClassCommand)
	m.MessageBody = &message.DatasetDeleteRequest{DatasetID: id, Flush: true}

	blob, err := json.Marshal(m)
	require.NoError(t, err)

	back := &message.Message{}
	require.NoError(t, json.Unmarshal(blob, back))
	body, err := back.DatasetDeleteRequest()
	require.NoError(t, err)
	assert.Equal(t, id, body.DatasetID)
	assert.True(t, body.Flush)
	assert.Equal(t, m.ID(), back.ID())
}

func TestNewEvent(t *testing.T) {
	id := uuid.New()
	tests := map[string]struct {
		kind     catalog.EventKind
		wantType message.MessageTypeEnum
	}{
		"Created": {catalog.EventDatasetCreated, message.MessageTypeDatasetCreated},
		"Updated": {catalog.EventDatasetUpdated, message.MessageTypeDatasetUpdated},
		"Deleted": {catalog.EventDatasetDeleted, message.MessageTypeDatasetDeleted},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := message.NewEvent(catalog.Event{Kind: tc.kind, DatasetID: id, CatalogID: "c", State: catalog.StatePublished})
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, m.MessageHeader.MessageType)
			assert.Equal(t, message.MessageClassEvent, m.MessageHeader.MessageClass)

			body, err := m.DatasetEvent()
			require.NoError(t, err)
			assert.Equal(t, id, body.DatasetID)
			assert.Equal(t, catalog.StatePublished, body.State)
		})
	}

	_, err := message.NewEvent(catalog.Event{Kind: "DatasetArchived"})
	assert.Error(t, err)
}

func TestTagError(t *testing.T) {
	tests := map[string]struct {
		err      error
		wantCode string
		wantDesc string
	}{
		"Nil leaves headers untouched": {
			err: nil,
		},
		"Validation": {
			err:      catalog.NewValidationError("state", "Dataset is already published."),
			wantCode: "validation",
			wantDesc: "validation failed: state: Dataset is already published.",
		},
		"Conflict": {
			err:      errors.Wrap(&catalog.ConflictError{Field: "next_draft", Message: "Dataset already has a draft."}, "create draft"),
			wantCode: "conflict",
			wantDesc: "create draft: conflict on next_draft: Dataset already has a draft.",
		},
		"Not found": {
			err:      catalog.ErrNotFound,
			wantCode: "not_found",
			wantDesc: "not found",
		},
		"Explicit code": {
			err:      message.NewError(message.ErrorCodeHandlerPanic, errors.New("boom")),
			wantCode: message.ErrorCodeHandlerPanic,
			wantDesc: "boom",
		},
		"Anything else": {
			err:      errors.New("disk full"),
			wantCode: message.ErrorCodeUnknown,
			wantDesc: "disk full",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := message.New(message.MessageTypeDatasetPublish, message.MessageClassCommand)
			m.TagError(tc.err)
			assert.Equal(t, tc.wantCode, m.MessageHeader.ErrorCode)
			assert.Equal(t, tc.wantDesc, m.MessageHeader.ErrorDescription)
		})
	}
}
