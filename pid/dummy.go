package pid

import (
	"context"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DummyDOIPrefix is the prefix of identifiers minted by DummyClient.
const DummyDOIPrefix = "10.82614"

// DummyClient mints random identifiers without contacting any service. It
// is meant for development environments.
type DummyClient struct {
	logger logrus.FieldLogger
}

var _ catalog.PIDIssuer = (*DummyClient)(nil)

func NewDummyClient(logger logrus.FieldLogger) *DummyClient {
	return &DummyClient{logger: logger}
}

func (c *DummyClient) CreateURN(_ context.Context, datasetID uuid.UUID) (string, error) {
	pid := "urn:nbn:fi:fd-dummy-" + uuid.New().String()
	c.logger.WithFields(logrus.Fields{"dataset": datasetID, "pid": pid}).Debug("Dummy URN created")
	return pid, nil
}

func (c *DummyClient) CreateDOI(_ context.Context, d *catalog.Dataset) (string, error) {
	pid := doiScheme + DummyDOIPrefix + "/" + uuid.New().String()
	c.logger.WithFields(logrus.Fields{"dataset": d.ID, "pid": pid}).Debug("Dummy DOI created")
	return pid, nil
}

func (c *DummyClient) UpdateDOIMetadata(_ context.Context, doi string, d *catalog.Dataset) error {
	c.logger.WithFields(logrus.Fields{"dataset": d.ID, "pid": doi}).Debug("Dummy DOI metadata updated")
	return nil
}
