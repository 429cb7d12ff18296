package broker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/cenkalti/backoff/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishEvent(t *testing.T) {
	prev := eventBackOff
	eventBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	defer func() { eventBackOff = prev }()

	event := catalog.Event{Kind: catalog.EventDatasetUpdated, DatasetID: uuid.New(), CatalogID: "c", State: catalog.StatePublished}

	tests := map[string]struct {
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		"Published": {
			wantCalls: 1,
		},
		"Transient failures are retried": {
			errs:      []error{errors.New("timeout"), awserr.New(sns.ErrCodeThrottledException, "slow down", nil)},
			wantCalls: 3,
		},
		"Retries are bounded": {
			errs:      []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
			wantErr:   true,
			wantCalls: 3,
		},
		"Permanent failures are not retried": {
			errs:      []error{awserr.New(sns.ErrCodeNotFoundException, "no such topic", nil)},
			wantErr:   true,
			wantCalls: 1,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tb := newTestBroker(t, nil)
			tb.sns.errs = tc.errs

			err := tb.PublishEvent(context.Background(), event)

			assert.Equal(t, tc.wantCalls, tb.sns.calls)
			if tc.wantErr {
				assert.Error(t, err)
				assert.Empty(t, tb.sns.published)
				return
			}
			require.NoError(t, err)
			require.Len(t, tb.sns.published, 1)
			assert.Equal(t, mainARN, aws.StringValue(tb.sns.published[0].TopicArn))

			msg := &message.Message{}
			require.NoError(t, json.Unmarshal([]byte(aws.StringValue(tb.sns.published[0].Message)), msg))
			assert.Equal(t, message.MessageTypeDatasetUpdated, msg.MessageHeader.MessageType)
			body, err := msg.DatasetEvent()
			require.NoError(t, err)
			assert.Equal(t, event.DatasetID, body.DatasetID)
		})
	}
}

func TestPublishEventWithoutTopic(t *testing.T) {
	tb := newTestBroker(t, nil)
	tb.snsTopicMainARN = ""

	err := tb.PublishEvent(context.Background(), catalog.Event{Kind: catalog.EventDatasetCreated, DatasetID: uuid.New()})

	assert.NoError(t, err)
	assert.Zero(t, tb.sns.calls)
}
