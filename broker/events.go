package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ catalog.EventPublisher = (*Broker)(nil)

// permanentPublishErrors are SNS error codes not worth retrying.
var permanentPublishErrors = map[string]bool{
	sns.ErrCodeAuthorizationErrorException: true,
	sns.ErrCodeInvalidParameterException:   true,
	sns.ErrCodeNotFoundException:           true,
}

// eventBackOff returns the retry strategy used to publish events.
var eventBackOff = func() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     200 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Clock:               backoff.SystemClock,
	}
}

// PublishEvent announces e in the main topic. It implements
// catalog.EventPublisher.
func (b *Broker) PublishEvent(ctx context.Context, e catalog.Event) error {
	if b.snsTopicMainARN == "" {
		b.logger.WithField("event", e.Kind).Debug("Main topic not configured, event discarded")
		return nil
	}

	msg, err := message.NewEvent(e)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "event could not be encoded")
	}

	bo := eventBackOff()
	bo.Reset()
	err = backoff.Retry(
		func() error {
			err := b.publishMessage(ctx, b.snsTopicMainARN, string(payload))
			var aerr awserr.Error
			if errors.As(err, &aerr) && permanentPublishErrors[aerr.Code()] {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(bo, ctx),
	)
	if err != nil {
		return errors.Wrapf(err, "event %s for dataset %s could not be published", e.Kind, e.DatasetID)
	}

	b.logger.WithFields(logrus.Fields{
		"event":     e.Kind,
		"dataset":   e.DatasetID,
		"messageID": msg.ID(),
	}).Debug("Event published")
	return nil
}
