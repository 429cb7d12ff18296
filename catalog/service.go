package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Service implements the dataset lifecycle: creation, publication, linked
// drafts, new versions, preservation copies and deletion.
//
// Every operation runs in a single store transaction. Structural operations
// lock the dataset row first so that concurrent operations on one dataset
// are serialized. Events and DOI metadata refreshes are dispatched after the
// transaction commits.
type Service struct {
	logger                logrus.FieldLogger
	store                 Store
	catalogs              CatalogLookup
	pids                  PIDIssuer
	events                EventPublisher
	metrics               *Metrics
	preservationCatalogID string
	now                   func() time.Time
}

type Option func(*Service)

// WithPreservationCatalog overrides the catalog receiving preservation
// copies.
func WithPreservationCatalog(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.preservationCatalogID = id
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a usable Service. events and metrics may be nil.
func NewService(
	logger logrus.FieldLogger, store Store, catalogs CatalogLookup,
	pids PIDIssuer, events EventPublisher, metrics *Metrics, opts ...Option) *Service {
	s := &Service{
		logger:                logger,
		store:                 store,
		catalogs:              catalogs,
		pids:                  pids,
		events:                events,
		metrics:               metrics,
		preservationCatalogID: DefaultPreservationCatalogID,
		now:                   time.Now,
	}
	if s.events == nil {
		s.events = NopEventPublisher{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome collects the side effects of an operation until it commits.
type outcome struct {
	events     []Event
	doiRefresh []*Dataset
}

func (o *outcome) emit(kind EventKind, d *Dataset) {
	o.events = append(o.events, Event{Kind: kind, DatasetID: d.ID, CatalogID: d.CatalogID, State: d.State})
}

func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx, o *outcome) error) error {
	var o *outcome
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		o = &outcome{}
		return fn(ctx, tx, o)
	})
	s.metrics.observe(op, err)
	logger := s.logger.WithField("operation", op)
	if err != nil {
		logger.WithField("kind", ErrorKind(err)).Debug("Operation failed: ", err)
		return err
	}
	logger.Debug("Operation committed")
	s.dispatch(ctx, o)
	return nil
}

func (s *Service) dispatch(ctx context.Context, o *outcome) {
	for _, d := range o.doiRefresh {
		err := s.pids.UpdateDOIMetadata(ctx, d.PersistentIdentifier, d)
		s.metrics.observePID(PIDTypeDOI, err)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"dataset": d.ID,
				"pid":     d.PersistentIdentifier,
			}).Error("DOI metadata could not be updated: ", err)
		}
	}
	for _, e := range o.events {
		if err := s.events.PublishEvent(ctx, e); err != nil {
			s.logger.WithFields(logrus.Fields{
				"dataset": e.DatasetID,
				"event":   e.Kind,
			}).Warn("Event could not be published: ", err)
		}
	}
}

// policy resolves the catalog of d. Datasets without a catalog have no
// policy.
func (s *Service) policy(ctx context.Context, catalogID string) (*CatalogPolicy, error) {
	if catalogID == "" {
		return nil, nil
	}
	p, err := s.catalogs.Catalog(ctx, catalogID)
	if errors.Is(err, ErrNotFound) {
		return nil, NewValidationError("data_catalog", fmt.Sprintf("Data catalog %s does not exist.", catalogID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog lookup failed")
	}
	return p, nil
}

// loadForUpdate locks and reads a dataset.
func loadForUpdate(ctx context.Context, tx Tx, id uuid.UUID) (*Dataset, error) {
	if err := tx.LockDataset(ctx, id); err != nil {
		return nil, err
	}
	return tx.GetDataset(ctx, id)
}

// Get returns a dataset that has not been removed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var d *Dataset
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		d, err = tx.GetDataset(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if d.Removed != nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// Create stores a new dataset. The dataset always starts as a draft; when
// its state is set to published it is published within the same operation.
// The stored copy is returned and in is left unchanged.
func (s *Service) Create(ctx context.Context, in *Dataset) (*Dataset, error) {
	if err := validateRequestedState(in.State); err != nil {
		return nil, err
	}
	publish := in.State == StatePublished
	d := in.Clone()
	err := s.run(ctx, "create", func(ctx context.Context, tx Tx, o *outcome) error {
		policy, err := s.policy(ctx, d.CatalogID)
		if err != nil {
			return err
		}
		now := s.now()
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.tracker = tracker{}
		d.State = StateDraft
		d.DraftOf = nil
		d.VersionSetID = nil
		d.PublishedRevision = 0
		d.DraftRevision = 0
		d.PIDGeneratedByFairdata = false
		d.Removed = nil
		d.Created = now
		d.Modified = now
		if d.Version == 0 {
			d.Version = 1
		}
		d.ensureChildIDs()

		verr := validatePIDInput(d, policy)
		verr.Merge(validateGeneratePID(d, policy))
		if err := verr.OrNil(); err != nil {
			return err
		}

		perms := &Permissions{ID: uuid.New(), Editors: []string{}}
		if d.MetadataOwner.User != "" {
			perms.Editors = append(perms.Editors, d.MetadataOwner.User)
		}
		if err := tx.CreatePermissions(ctx, perms); err != nil {
			return errors.Wrap(err, "permissions could not be created")
		}
		d.PermissionsID = &perms.ID

		if err := s.save(ctx, tx, d, policy); err != nil {
			return err
		}
		if publish {
			if _, err := s.publish(ctx, tx, d, o); err != nil {
				return err
			}
		}
		o.emit(EventDatasetCreated, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Update replaces the editable fields of a dataset. Setting the state of a
// draft to published publishes it.
func (s *Service) Update(ctx context.Context, d *Dataset) (*Dataset, error) {
	if err := validateRequestedState(d.State); err != nil {
		return nil, err
	}
	var result *Dataset
	err := s.run(ctx, "update", func(ctx context.Context, tx Tx, o *outcome) error {
		current, err := loadForUpdate(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if current.Removed != nil {
			return &ConflictError{Field: "removed", Message: "Removed datasets cannot be updated."}
		}
		policy, err := s.policy(ctx, d.CatalogID)
		if err != nil {
			return err
		}

		upd := d.Clone()
		upd.tracker = current.tracker
		upd.Created = current.Created
		upd.PublishedRevision = current.PublishedRevision
		upd.DraftRevision = current.DraftRevision
		upd.DraftOf = current.DraftOf
		upd.VersionSetID = current.VersionSetID
		upd.PermissionsID = current.PermissionsID
		upd.Version = current.Version
		upd.MetadataOwner = current.MetadataOwner
		upd.PIDGeneratedByFairdata = current.PIDGeneratedByFairdata
		upd.Removed = current.Removed
		upd.IsLegacy = current.IsLegacy
		upd.Deprecated = current.Deprecated
		upd.Preservation = keepPreservationLinks(current.Preservation, upd.Preservation)
		if upd.State == "" {
			upd.State = current.State
		}
		upd.ensureChildIDs()
		upd.attachChildren()

		publish := current.State == StateDraft && upd.State == StatePublished
		if publish {
			upd.State = StateDraft
		}

		verr := validatePIDInput(upd, policy)
		verr.Merge(validateGeneratePID(upd, policy))
		if err := verr.OrNil(); err != nil {
			return err
		}
		if err := s.save(ctx, tx, upd, policy); err != nil {
			return err
		}
		result = upd

		if publish {
			published, err := s.publish(ctx, tx, upd, o)
			if err != nil {
				return err
			}
			result = published
		} else if needsDOIRefresh(upd) {
			o.doiRefresh = append(o.doiRefresh, upd.Clone())
		}
		o.emit(EventDatasetUpdated, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateRequestedState accepts the states a caller may ask for. An empty
// state keeps the current one.
func validateRequestedState(state State) error {
	switch state {
	case "", StateDraft, StatePublished:
		return nil
	}
	return NewValidationError("state", fmt.Sprintf("Value must be %s or %s.", StateDraft, StatePublished))
}

// keepPreservationLinks returns the preservation record to store for an
// update. The record ID and the links to the preservation copy or origin are
// owned by the catalog and never taken from the caller.
func keepPreservationLinks(current, upd *Preservation) *Preservation {
	if upd == nil {
		if current != nil && (current.DatasetVersion != nil || current.DatasetOriginVersion != nil) {
			return current.clone()
		}
		return nil
	}
	if current == nil {
		upd.ID = uuid.Nil
		upd.DatasetVersion = nil
		upd.DatasetOriginVersion = nil
		return upd
	}
	upd.ID = current.ID
	upd.DatasetVersion = cloneUUID(current.DatasetVersion)
	upd.DatasetOriginVersion = cloneUUID(current.DatasetOriginVersion)
	return upd
}

// Delete removes a dataset. Published datasets are soft deleted unless
// flush is set; drafts are always hard deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, flush bool) error {
	return s.run(ctx, "delete", func(ctx context.Context, tx Tx, o *outcome) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.State == StateDraft || flush {
			if err := tx.DeleteDataset(ctx, d.ID); err != nil {
				return errors.Wrap(err, "dataset could not be deleted")
			}
			o.emit(EventDatasetDeleted, d)
			return nil
		}
		if d.Removed != nil {
			return nil
		}
		now := s.now()
		d.Removed = &now
		if d.AccessRights != nil {
			d.AccessRights.Removed = &now
		}
		if err := tx.UpdateDataset(ctx, d); err != nil {
			return errors.Wrap(err, "dataset could not be removed")
		}
		o.emit(EventDatasetDeleted, d)
		return nil
	})
}

// Revisions returns the stored snapshots of a dataset, oldest first.
func (s *Service) Revisions(ctx context.Context, id uuid.UUID) ([]*Snapshot, error) {
	var snapshots []*Snapshot
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetDataset(ctx, id); err != nil {
			return err
		}
		var err error
		snapshots, err = tx.ListSnapshots(ctx, id)
		return err
	})
	return snapshots, err
}

// Revision returns the snapshot taken at the given publication.
func (s *Service) Revision(ctx context.Context, id uuid.UUID, publishedRevision int) (*Snapshot, error) {
	snapshots, err := s.Revisions(ctx, id)
	if err != nil {
		return nil, err
	}
	reason := publishedReason(publishedRevision)
	for _, snap := range snapshots {
		if snap.Reason == reason {
			return snap, nil
		}
	}
	return nil, ErrNotFound
}

// Permissions returns the permissions record shared by a dataset and its
// linked draft.
func (s *Service) Permissions(ctx context.Context, id uuid.UUID) (*Permissions, error) {
	var p *Permissions
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.GetDataset(ctx, id)
		if err != nil {
			return err
		}
		if d.PermissionsID == nil {
			return ErrNotFound
		}
		p, err = tx.GetPermissions(ctx, *d.PermissionsID)
		return err
	})
	return p, err
}

// UpdatePermissions replaces the editors of a dataset.
func (s *Service) UpdatePermissions(ctx context.Context, id uuid.UUID, editors []string) (*Permissions, error) {
	var p *Permissions
	err := s.run(ctx, "update_permissions", func(ctx context.Context, tx Tx, o *outcome) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.PermissionsID == nil {
			return ErrNotFound
		}
		p, err = tx.GetPermissions(ctx, *d.PermissionsID)
		if err != nil {
			return err
		}
		p.Editors = cloneSlice(editors)
		if p.Editors == nil {
			p.Editors = []string{}
		}
		return tx.UpdatePermissions(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func needsDOIRefresh(d *Dataset) bool {
	return d.State == StatePublished &&
		d.PIDGeneratedByFairdata &&
		d.GeneratePIDOnPublish == PIDTypeDOI &&
		d.PersistentIdentifier != ""
}

// ensureChildIDs assigns identifiers to owned rows that lack one.
func (d *Dataset) ensureChildIDs() {
	fill := func(id *uuid.UUID) {
		if *id == uuid.Nil {
			*id = uuid.New()
		}
	}
	if d.AccessRights != nil {
		fill(&d.AccessRights.ID)
		for i := range d.AccessRights.License {
			fill(&d.AccessRights.License[i].ID)
		}
	}
	if d.Preservation != nil {
		fill(&d.Preservation.ID)
	}
	for i := range d.OtherIdentifiers {
		fill(&d.OtherIdentifiers[i].ID)
	}
	for i := range d.Actors {
		fill(&d.Actors[i].ID)
	}
	for i := range d.Provenance {
		p := &d.Provenance[i]
		fill(&p.ID)
		if p.Spatial != nil {
			fill(&p.Spatial.ID)
		}
		if p.Temporal != nil {
			fill(&p.Temporal.ID)
		}
		for j := range p.Variables {
			fill(&p.Variables[j].ID)
		}
		for j := range p.IsAssociatedWith {
			fill(&p.IsAssociatedWith[j].ID)
		}
	}
	for i := range d.Projects {
		fill(&d.Projects[i].ID)
		for j := range d.Projects[i].Funding {
			fill(&d.Projects[i].Funding[j].ID)
		}
	}
	if d.FileSet != nil {
		fill(&d.FileSet.ID)
	}
	for i := range d.Spatial {
		fill(&d.Spatial[i].ID)
	}
	for i := range d.Temporal {
		fill(&d.Temporal[i].ID)
	}
	for i := range d.RemoteResources {
		fill(&d.RemoteResources[i].ID)
	}
	for i := range d.Relations {
		fill(&d.Relations[i].ID)
	}
	d.attachChildren()
}
