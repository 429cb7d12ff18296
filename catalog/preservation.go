package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OtherIdentifier types used to cross-link a dataset and its preservation
// copy.
const (
	IdentifierTypePreservationVersion = "preservation_version"
	IdentifierTypeOriginVersion       = "origin_version"
)

// CreatePreservationVersion copies a dataset in preservation into the
// preservation catalog, publishes the copy with a DOI and cross-links both
// datasets. The copy starts a version set of its own.
func (s *Service) CreatePreservationVersion(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var fork *Dataset
	err := s.run(ctx, "create_preservation_version", func(ctx context.Context, tx Tx, o *outcome) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkPreservationVersionAllowed(d); err != nil {
			return err
		}

		pasPolicy, err := s.catalogs.Catalog(ctx, s.preservationCatalogID)
		if errors.Is(err, ErrNotFound) {
			return NewValidationError("data_catalog", fmt.Sprintf("Preservation data catalog %s does not exist.", s.preservationCatalogID))
		}
		if err != nil {
			return errors.Wrap(err, "catalog lookup failed")
		}
		policy, err := s.policy(ctx, d.CatalogID)
		if err != nil {
			return err
		}

		now := s.now()
		fork = d.copyAsNew(now)
		fork.CatalogID = pasPolicy.ID
		fork.VersionSetID = nil
		fork.Version = 1
		fork.GeneratePIDOnPublish = PIDTypeDOI
		fork.CumulationStarted = nil
		fork.CumulationEnded = nil
		if fork.CumulativeState == CumulativeStateClosed {
			fork.CumulativeState = CumulativeStateNotCumulative
		}
		if fork.FileSet != nil {
			fork.FileSet.StorageService = PreservationStorageService
		}
		fork.Preservation = &Preservation{
			ID:                     uuid.New(),
			State:                  d.Preservation.State,
			StateModified:          &now,
			Contract:               d.Preservation.Contract,
			PreservationIdentifier: d.Preservation.PreservationIdentifier,
			Description:            cloneStrings(d.Preservation.Description),
			DatasetOriginVersion:   &d.ID,
		}
		if d.PersistentIdentifier != "" {
			fork.OtherIdentifiers = append(fork.OtherIdentifiers, OtherIdentifier{
				ID:             uuid.New(),
				Notation:       d.PersistentIdentifier,
				IdentifierType: IdentifierTypeOriginVersion,
			})
		}

		perms := &Permissions{ID: uuid.New(), Editors: []string{}}
		if d.PermissionsID != nil {
			p, err := tx.GetPermissions(ctx, *d.PermissionsID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return errors.Wrap(err, "permissions could not be loaded")
			}
			if p != nil {
				perms.Editors = cloneSlice(p.Editors)
			}
		}
		if err := tx.CreatePermissions(ctx, perms); err != nil {
			return errors.Wrap(err, "permissions could not be created")
		}
		fork.PermissionsID = &perms.ID

		if err := s.save(ctx, tx, fork, pasPolicy); err != nil {
			return err
		}
		if _, err := s.publish(ctx, tx, fork, o); err != nil {
			return err
		}

		d.Preservation.DatasetVersion = &fork.ID
		d.Preservation.State = PreservationStateNone
		d.Preservation.StateModified = &now
		if fork.PersistentIdentifier != "" {
			d.OtherIdentifiers = append(d.OtherIdentifiers, OtherIdentifier{
				ID:             uuid.New(),
				Notation:       fork.PersistentIdentifier,
				IdentifierType: IdentifierTypePreservationVersion,
			})
		}
		if err := s.save(ctx, tx, d, policy); err != nil {
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"dataset": d.ID,
			"fork":    fork.ID,
			"pid":     fork.PersistentIdentifier,
		}).Debug("Preservation version created")
		o.emit(EventDatasetCreated, fork)
		o.emit(EventDatasetUpdated, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fork, nil
}

func checkPreservationVersionAllowed(d *Dataset) error {
	if d.Removed != nil {
		return &ConflictError{Field: "removed", Message: "Cannot create a preservation version of a removed dataset."}
	}
	if d.State != StatePublished {
		return NewValidationError("state", "Dataset needs to be published before creating a preservation version.")
	}
	p := d.Preservation
	if p == nil || p.State <= PreservationStateNone {
		return NewValidationError("preservation", "Dataset is not in preservation.")
	}
	if p.DatasetVersion != nil {
		return &ConflictError{Field: "preservation", Message: "Dataset already has a preservation version."}
	}
	if p.DatasetOriginVersion != nil {
		return &ConflictError{Field: "preservation", Message: "Dataset is itself a preservation version."}
	}
	return nil
}
