package catalog

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreateDraft creates a linked draft of a published dataset. The draft
// shares the version set and permissions of the dataset and carries a
// placeholder identifier until it is merged.
func (s *Service) CreateDraft(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var draft *Dataset
	err := s.run(ctx, "create_draft", func(ctx context.Context, tx Tx, o *outcome) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkNewDraftAllowed(ctx, tx, d); err != nil {
			return err
		}
		policy, err := s.policy(ctx, d.CatalogID)
		if err != nil {
			return err
		}

		draft = d.copyAsNew(s.now())
		draft.DraftOf = &d.ID
		draft.VersionSetID = cloneUUID(d.VersionSetID)
		draft.PermissionsID = cloneUUID(d.PermissionsID)
		draft.PIDGeneratedByFairdata = d.PIDGeneratedByFairdata
		if d.PersistentIdentifier != "" {
			draft.PersistentIdentifier = DraftPIDPrefix + d.PersistentIdentifier
		}
		if err := s.save(ctx, tx, draft, policy); err != nil {
			return err
		}
		o.emit(EventDatasetCreated, draft)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func checkNewDraftAllowed(ctx context.Context, tx Tx, d *Dataset) error {
	if d.Removed != nil {
		return &ConflictError{Field: "removed", Message: "Cannot create a draft of a removed dataset."}
	}
	if d.State != StatePublished {
		return NewValidationError("state", "Dataset needs to be published before creating a new draft.")
	}
	next, err := tx.NextDraft(ctx, d.ID)
	if err != nil {
		return errors.Wrap(err, "draft lookup failed")
	}
	if next != nil {
		return &ConflictError{Field: "next_draft", Message: "Dataset already has a draft."}
	}
	return nil
}

// CreateNewVersion creates the next version of the latest dataset of a
// version set as an independent draft in the same set.
func (s *Service) CreateNewVersion(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var nv *Dataset
	err := s.run(ctx, "create_version", func(ctx context.Context, tx Tx, o *outcome) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		var members []*Dataset
		if d.VersionSetID != nil {
			if err := tx.LockVersionSet(ctx, *d.VersionSetID); err != nil {
				return err
			}
			members, err = tx.ListVersionSet(ctx, *d.VersionSetID)
			if err != nil {
				return errors.Wrap(err, "version set could not be loaded")
			}
		}

		var policy *CatalogPolicy
		if d.CatalogID != "" {
			policy, err = s.catalogs.Catalog(ctx, d.CatalogID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return errors.Wrap(err, "catalog lookup failed")
			}
		}
		if err := denyVersioning(d, policy, members); err != nil {
			return err
		}

		latest := d.Version
		for _, m := range members {
			if m.Version > latest {
				latest = m.Version
			}
		}

		nv = d.copyAsNew(s.now())
		nv.Version = latest + 1
		nv.VersionSetID = cloneUUID(d.VersionSetID)
		nv.PermissionsID = cloneUUID(d.PermissionsID)
		nv.Issued = nil
		nv.CumulationStarted = nil
		nv.CumulationEnded = nil
		nv.Deprecated = nil
		if nv.CumulativeState == CumulativeStateClosed {
			nv.CumulativeState = CumulativeStateNotCumulative
		}
		if err := s.save(ctx, tx, nv, policy); err != nil {
			return err
		}
		o.emit(EventDatasetCreated, nv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nv, nil
}

// denyVersioning collects every reason a new version of d cannot be made.
func denyVersioning(d *Dataset, policy *CatalogPolicy, members []*Dataset) error {
	verr := &ValidationError{}
	if d.IsLegacy {
		verr.Add("dataset", "Cannot create a new version of a legacy dataset.")
	}
	if policy == nil || !policy.DatasetVersioningEnabled {
		verr.Add("data_catalog", "Data catalog doesn't support versioning.")
	}
	if d.Removed != nil {
		verr.Add("removed", "Cannot make a new version of a removed dataset.")
	}
	if d.State == StateDraft {
		verr.Add("state", "Cannot make a new version of a draft.")
	}
	if next := nextExistingVersion(d, members); next != nil {
		if next.State == StateDraft {
			verr.Add("dataset_versions", "There is an existing draft of a new version of this dataset.")
		} else {
			verr.Add("dataset_versions", "Newer version of this dataset exists. Only the latest existing version of the dataset can be used to make a new version.")
		}
	}
	return verr.OrNil()
}

// nextExistingVersion returns the earliest created, not removed member with a
// higher version than d.
func nextExistingVersion(d *Dataset, members []*Dataset) *Dataset {
	var next *Dataset
	for _, m := range members {
		if m.ID == d.ID || m.Removed != nil || m.Version <= d.Version {
			continue
		}
		if next == nil || m.Created.Before(next.Created) {
			next = m
		}
	}
	return next
}

// Versions returns the published, non-removed members of the version set of
// a dataset, ordered by creation time.
func (s *Service) Versions(ctx context.Context, id uuid.UUID) ([]*Dataset, error) {
	var out []*Dataset
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.GetDataset(ctx, id)
		if err != nil {
			return err
		}
		if d.VersionSetID == nil {
			return nil
		}
		members, err := tx.ListVersionSet(ctx, *d.VersionSetID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.State == StatePublished && m.Removed == nil {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}
