package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the transactional record store behind the catalog.
type Store interface {
	// RunInTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Row locks taken through the Tx
	// are held until then.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of record operations available inside a transaction.
type Tx interface {
	// LockDataset takes a row lock on the dataset. It is a no-op when the
	// dataset does not exist. It fails with *LockUnavailableError when the
	// lock cannot be acquired in time.
	LockDataset(ctx context.Context, id uuid.UUID) error

	// LockVersionSet takes a row lock on a version set.
	LockVersionSet(ctx context.Context, id uuid.UUID) error

	// GetDataset returns the dataset including removed ones, or ErrNotFound.
	GetDataset(ctx context.Context, id uuid.UUID) (*Dataset, error)
	InsertDataset(ctx context.Context, d *Dataset) error
	UpdateDataset(ctx context.Context, d *Dataset) error

	// DeleteDataset removes the dataset row for good.
	DeleteDataset(ctx context.Context, id uuid.UUID) error

	// NextDraft returns the linked draft of the dataset, or nil.
	NextDraft(ctx context.Context, id uuid.UUID) (*Dataset, error)

	// ListVersionSet returns every member of a version set, removed ones
	// included, ordered by version and creation time.
	ListVersionSet(ctx context.Context, id uuid.UUID) ([]*Dataset, error)

	CreateVersionSet(ctx context.Context, vs *VersionSet) error

	CreatePermissions(ctx context.Context, p *Permissions) error
	GetPermissions(ctx context.Context, id uuid.UUID) (*Permissions, error)
	UpdatePermissions(ctx context.Context, p *Permissions) error

	// PIDInUse reports whether another dataset of the catalog uses pid.
	PIDInUse(ctx context.Context, catalogID, pid string, exclude uuid.UUID) (bool, error)

	// DatasetsByNormalizedDOI lists the datasets other than exclude whose
	// identifier normalizes to doi.
	DatasetsByNormalizedDOI(ctx context.Context, doi string, exclude uuid.UUID) ([]*Dataset, error)

	// ClaimDOI makes the normalized doi the one held by the dataset,
	// releasing any previous claim. An empty doi only releases. A doi held by
	// another dataset fails with *ValidationError, at the latest on commit.
	ClaimDOI(ctx context.Context, datasetID uuid.UUID, doi string) error

	InsertSnapshot(ctx context.Context, s *Snapshot) error
	DeleteSnapshots(ctx context.Context, datasetID uuid.UUID, state State) error
	ListSnapshots(ctx context.Context, datasetID uuid.UUID) ([]*Snapshot, error)
}

// Snapshot is an immutable copy of a dataset taken after a save.
type Snapshot struct {
	ID                uuid.UUID `json:"id"`
	DatasetID         uuid.UUID `json:"dataset_id"`
	Reason            string    `json:"reason"`
	State             State     `json:"state"`
	PublishedRevision int       `json:"published_revision"`
	DraftRevision     int       `json:"draft_revision"`
	Created           time.Time `json:"created"`
	Dataset           *Dataset  `json:"dataset"`
}
