package adapter

import (
	"github.com/JiscSD/rdss-metadata-catalog/broker"
	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/document"

	"github.com/sirupsen/logrus"
)

// Broker is the part of broker.Broker used by the adapter.
type Broker interface {
	Subscribe(t message.MessageTypeEnum, h broker.MessageHandler)
	Run()
	Stop()
}

var _ Broker = (*broker.Broker)(nil)

// Adapter is the command side of the catalog.
//
// It subscribes to the lifecycle commands delivered by the broker, runs
// them against the lifecycle service and remembers which dataset each
// command produced so that later commands can refer to it by correlation.
type Adapter struct {
	logger    logrus.FieldLogger
	broker    Broker
	svc       *catalog.Service
	documents *document.Validator
	storage   Storage

	stop chan chan struct{}
}

func New(
	logger logrus.FieldLogger,
	broker Broker,
	svc *catalog.Service,
	documents *document.Validator,
	storage Storage) *Adapter {

	c := &Adapter{
		logger:    logger,
		broker:    broker,
		svc:       svc,
		documents: documents,
		storage:   storage,
		stop:      make(chan chan struct{}),
	}

	c.broker.Subscribe(message.MessageTypeDatasetCreate, c.handleDatasetCreate)
	c.broker.Subscribe(message.MessageTypeDatasetUpdate, c.handleDatasetUpdate)
	c.broker.Subscribe(message.MessageTypeDatasetPublish, c.handleDatasetPublish)
	c.broker.Subscribe(message.MessageTypeDatasetCreateDraft, c.handleDatasetCreateDraft)
	c.broker.Subscribe(message.MessageTypeDatasetCreateVersion, c.handleDatasetCreateVersion)
	c.broker.Subscribe(message.MessageTypeDatasetCreatePreservationVersion, c.handleDatasetCreatePreservationVersion)
	c.broker.Subscribe(message.MessageTypeDatasetDelete, c.handleDatasetDelete)

	return c
}

func (c *Adapter) Run() {
	go c.broker.Run()
	c.loop()
}

func (c *Adapter) loop() {
	ch := <-c.stop
	c.broker.Stop()
	close(ch)
}

func (c *Adapter) Stop() {
	ch := make(chan struct{})
	c.stop <- ch
	<-ch
}
