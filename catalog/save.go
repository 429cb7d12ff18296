package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func publishedReason(n int) string {
	return fmt.Sprintf("%s-%d", StatePublished, n)
}

func revisionReason(d *Dataset) string {
	if d.State == StatePublished {
		return publishedReason(d.PublishedRevision)
	}
	return fmt.Sprintf("%s-%d.%d", d.State, d.PublishedRevision, d.DraftRevision)
}

// save validates and persists d, bumping its revision counters and storing
// a snapshot. Nothing is written when validation fails.
func (s *Service) save(ctx context.Context, tx Tx, d *Dataset, policy *CatalogPolicy) error {
	if !d.IsNew() && d.PreviousState() == StatePublished && d.State != StatePublished {
		return NewValidationError("state", "Cannot change value into non-published.")
	}

	verr := &ValidationError{}
	uerr, err := s.validateUnique(ctx, tx, d, policy)
	if err != nil {
		return err
	}
	verr.Merge(uerr)
	verr.Merge(validateCatalog(d, policy))
	verr.Merge(validatePreservation(d))

	publicState, err := s.publicCumulativeState(ctx, tx, d)
	if err != nil {
		return err
	}
	now := s.now()
	verr.Merge(updateCumulativeState(d, publicState, now))
	if err := verr.OrNil(); err != nil {
		return err
	}

	if d.VersionSetID == nil {
		vs := &VersionSet{ID: uuid.New(), Created: now}
		if err := tx.CreateVersionSet(ctx, vs); err != nil {
			return errors.Wrap(err, "version set could not be created")
		}
		d.VersionSetID = &vs.ID
	}

	switch d.State {
	case StateDraft:
		d.DraftRevision++
	case StatePublished:
		d.PublishedRevision++
		d.DraftRevision = 0
		if err := validatePublished(d, policy, true).OrNil(); err != nil {
			return err
		}
	}
	d.Modified = now

	if d.IsNew() {
		err = tx.InsertDataset(ctx, d)
	} else {
		err = tx.UpdateDataset(ctx, d)
	}
	if err != nil {
		return err
	}
	if err := tx.ClaimDOI(ctx, d.ID, guardedDOI(d, policy)); err != nil {
		return err
	}
	d.MarkLoaded()

	snap := &Snapshot{
		ID:                uuid.New(),
		DatasetID:         d.ID,
		Reason:            revisionReason(d),
		State:             d.State,
		PublishedRevision: d.PublishedRevision,
		DraftRevision:     d.DraftRevision,
		Created:           now,
		Dataset:           d.Clone(),
	}
	return errors.Wrap(tx.InsertSnapshot(ctx, snap), "snapshot could not be stored")
}

// guardedDOI returns the normalized DOI of d that must stay unique across
// the non-external catalogs, or "" when d holds none.
func guardedDOI(d *Dataset, policy *CatalogPolicy) string {
	if policy == nil || policy.IsExternal {
		return ""
	}
	return NormalizeDOI(d.PersistentIdentifier)
}

// publicCumulativeState returns the cumulative state d is bound by: the
// persisted state of a published dataset or the state of the dataset a
// linked draft belongs to.
func (s *Service) publicCumulativeState(ctx context.Context, tx Tx, d *Dataset) (*CumulativeState, error) {
	if d.State == StatePublished {
		if prev, ok := d.PreviousCumulativeState(); ok {
			return &prev, nil
		}
		return nil, nil
	}
	if d.DraftOf != nil {
		original, err := tx.GetDataset(ctx, *d.DraftOf)
		if err != nil {
			return nil, errors.Wrap(err, "original of draft could not be loaded")
		}
		state := original.CumulativeState
		return &state, nil
	}
	return nil, nil
}

// validateUnique checks that the identifier of d is unique within its
// catalog, and that a DOI is unique across every non-external catalog.
func (s *Service) validateUnique(ctx context.Context, tx Tx, d *Dataset, policy *CatalogPolicy) (*ValidationError, error) {
	verr := &ValidationError{}
	if d.PersistentIdentifier == "" || d.CatalogID == "" {
		return verr, nil
	}
	used, err := tx.PIDInUse(ctx, d.CatalogID, d.PersistentIdentifier, d.ID)
	if err != nil {
		return nil, errors.Wrap(err, "identifier uniqueness check failed")
	}
	if used {
		verr.Add("persistent_identifier", "Data catalog is not allowed to have multiple datasets with same value.")
		return verr, nil
	}

	doi := NormalizeDOI(d.PersistentIdentifier)
	if doi == "" || policy == nil || policy.IsExternal {
		return verr, nil
	}
	others, err := tx.DatasetsByNormalizedDOI(ctx, doi, d.ID)
	if err != nil {
		return nil, errors.Wrap(err, "DOI uniqueness check failed")
	}
	for _, other := range others {
		if other.CatalogID == "" {
			continue
		}
		op, err := s.catalogs.Catalog(ctx, other.CatalogID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "catalog lookup failed")
		}
		if !op.IsExternal {
			verr.Add("persistent_identifier", "DOI is already in use by another dataset.")
			break
		}
	}
	return verr, nil
}
