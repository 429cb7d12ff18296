package catalog

import (
	"context"

	"github.com/google/uuid"
)

// PIDIssuer mints and maintains persistent identifiers. Any error it
// returns is treated as the service being unavailable.
type PIDIssuer interface {
	CreateURN(ctx context.Context, datasetID uuid.UUID) (string, error)
	CreateDOI(ctx context.Context, d *Dataset) (string, error)
	UpdateDOIMetadata(ctx context.Context, doi string, d *Dataset) error
}

type EventKind string

const (
	EventDatasetCreated EventKind = "DatasetCreated"
	EventDatasetUpdated EventKind = "DatasetUpdated"
	EventDatasetDeleted EventKind = "DatasetDeleted"
)

// Event announces a committed change to downstream indexers and caches.
type Event struct {
	Kind      EventKind `json:"kind"`
	DatasetID uuid.UUID `json:"dataset_id"`
	CatalogID string    `json:"data_catalog,omitempty"`
	State     State     `json:"state"`
}

// EventPublisher delivers events. Delivery failures are logged by the
// service and never fail the operation that produced the event.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e Event) error
}

// NopEventPublisher discards every event.
type NopEventPublisher struct{}

var _ EventPublisher = NopEventPublisher{}

func (NopEventPublisher) PublishEvent(context.Context, Event) error { return nil }
