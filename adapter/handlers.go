package adapter

import (
	"context"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// handleDatasetCreate handles the reception of Dataset Create messages.
func (c *Adapter) handleDatasetCreate(ctx context.Context, msg *message.Message) error {
	body, err := msg.DatasetCreateRequest()
	if err != nil {
		return err
	}
	d, err := c.documents.Decode(body.Dataset)
	if err != nil {
		return err
	}
	d, err = c.svc.Create(ctx, d)
	if err != nil {
		return errors.Wrap(err, "dataset cannot be created")
	}
	c.associate(ctx, msg, d)
	return nil
}

// handleDatasetUpdate handles the reception of Dataset Update messages. The
// document replaces the stored dataset named by its id.
func (c *Adapter) handleDatasetUpdate(ctx context.Context, msg *message.Message) error {
	body, err := msg.DatasetUpdateRequest()
	if err != nil {
		return err
	}
	d, err := c.documents.Decode(body.Dataset)
	if err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		id, err := c.correlatedDataset(ctx, msg, uuid.Nil)
		if err != nil {
			return err
		}
		d.ID = id
	}
	if _, err := c.svc.Update(ctx, d); err != nil {
		return errors.Wrapf(err, "dataset %s cannot be updated", d.ID)
	}
	return nil
}

func (c *Adapter) handleDatasetPublish(ctx context.Context, msg *message.Message) error {
	id, err := c.datasetID(ctx, msg)
	if err != nil {
		return err
	}
	if _, err := c.svc.Publish(ctx, id); err != nil {
		return errors.Wrapf(err, "dataset %s cannot be published", id)
	}
	return nil
}

func (c *Adapter) handleDatasetCreateDraft(ctx context.Context, msg *message.Message) error {
	id, err := c.datasetID(ctx, msg)
	if err != nil {
		return err
	}
	draft, err := c.svc.CreateDraft(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "draft of dataset %s cannot be created", id)
	}
	c.associate(ctx, msg, draft)
	return nil
}

func (c *Adapter) handleDatasetCreateVersion(ctx context.Context, msg *message.Message) error {
	id, err := c.datasetID(ctx, msg)
	if err != nil {
		return err
	}
	nv, err := c.svc.CreateNewVersion(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "new version of dataset %s cannot be created", id)
	}
	c.associate(ctx, msg, nv)
	return nil
}

func (c *Adapter) handleDatasetCreatePreservationVersion(ctx context.Context, msg *message.Message) error {
	id, err := c.datasetID(ctx, msg)
	if err != nil {
		return err
	}
	pv, err := c.svc.CreatePreservationVersion(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "preservation version of dataset %s cannot be created", id)
	}
	c.associate(ctx, msg, pv)
	return nil
}

func (c *Adapter) handleDatasetDelete(ctx context.Context, msg *message.Message) error {
	body, err := msg.DatasetDeleteRequest()
	if err != nil {
		return err
	}
	id, err := c.correlatedDataset(ctx, msg, body.DatasetID)
	if err != nil {
		return err
	}
	if err := c.svc.Delete(ctx, id, body.Flush); err != nil {
		return errors.Wrapf(err, "dataset %s cannot be deleted", id)
	}
	return nil
}

// datasetID returns the dataset named by a command that only carries an id.
func (c *Adapter) datasetID(ctx context.Context, msg *message.Message) (uuid.UUID, error) {
	body, err := msg.DatasetRequest()
	if err != nil {
		return uuid.Nil, err
	}
	return c.correlatedDataset(ctx, msg, body.DatasetID)
}

// correlatedDataset returns id when given. Otherwise the dataset is the one
// produced by the command named in the correlationId header.
func (c *Adapter) correlatedDataset(ctx context.Context, msg *message.Message, id uuid.UUID) (uuid.UUID, error) {
	if id != uuid.Nil {
		return id, nil
	}
	if msg.MessageHeader.CorrelationID == nil {
		return uuid.Nil, catalog.NewValidationError("datasetId", "A dataset id or a correlation id is required.")
	}
	ref, err := c.storage.GetDataset(ctx, msg.MessageHeader.CorrelationID.String())
	if errors.Is(err, ErrUnknownMessage) {
		return uuid.Nil, catalog.NewValidationError("correlationId", "The correlated message did not produce a dataset.")
	}
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "correlated dataset cannot be looked up")
	}
	id, err = uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "correlated dataset %q is invalid", ref)
	}
	return id, nil
}

// associate records the dataset produced by msg.
func (c *Adapter) associate(ctx context.Context, msg *message.Message, d *catalog.Dataset) {
	logger := c.logger.WithFields(logrus.Fields{"message": msg.ID(), "dataset": d.ID})
	if err := c.storage.AssociateDataset(ctx, msg.ID(), d.ID.String()); err != nil {
		// The operation has committed, we don't want to fail the message.
		logger.Errorf("Error trying to persist the dataset reference: %v", err)
		return
	}
	logger.Debug("Dataset reference persisted.")
}
