package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Publish publishes a draft. Publishing a linked draft merges it into the
// dataset it drafts, deletes the draft and returns the merged dataset.
func (s *Service) Publish(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var result *Dataset
	err := s.run(ctx, "publish", func(ctx context.Context, tx Tx, o *outcome) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Removed != nil {
			return &ConflictError{Field: "removed", Message: "Removed datasets cannot be published."}
		}
		result, err = s.publish(ctx, tx, d, o)
		if err != nil {
			return err
		}
		o.emit(EventDatasetUpdated, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// publish runs the draft to published transition of a locked dataset.
func (s *Service) publish(ctx context.Context, tx Tx, d *Dataset, o *outcome) (*Dataset, error) {
	if d.IsLinkedDraft() {
		original, err := loadForUpdate(ctx, tx, *d.DraftOf)
		if err != nil {
			return nil, errors.Wrap(err, "original of draft could not be loaded")
		}
		if original.Removed != nil {
			return nil, &ConflictError{Field: "draft_of", Message: "Original dataset has been removed."}
		}
		if err := s.mergeDraft(ctx, tx, original); err != nil {
			return nil, err
		}
		if needsDOIRefresh(original) {
			o.doiRefresh = append(o.doiRefresh, original.Clone())
		}
		return original, nil
	}

	if d.State == StatePublished {
		return nil, NewValidationError("state", "Dataset is already published.")
	}

	policy, err := s.policy(ctx, d.CatalogID)
	if err != nil {
		return nil, err
	}

	d.State = StatePublished
	if d.PersistentIdentifier == "" {
		// Identifiers are only minted for otherwise valid datasets.
		verr := validatePublished(d, policy, false)
		verr.Merge(validateCatalog(d, policy))
		if err := verr.OrNil(); err != nil {
			return nil, err
		}
		if err := s.assignPID(ctx, d, policy); err != nil {
			return nil, err
		}
	}
	if d.Issued == nil {
		now := s.now()
		d.Issued = &now
	}
	if err := tx.DeleteSnapshots(ctx, d.ID, StateDraft); err != nil {
		return nil, errors.Wrap(err, "draft revisions could not be deleted")
	}
	if err := s.save(ctx, tx, d, policy); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"dataset":  d.ID,
		"pid":      d.PersistentIdentifier,
		"revision": d.PublishedRevision,
	}).Debug("Dataset published")
	return d, nil
}

// assignPID mints an identifier when the dataset asks for one. A failure
// aborts the publication; an identifier minted before a later failure is
// not revoked.
func (s *Service) assignPID(ctx context.Context, d *Dataset, policy *CatalogPolicy) error {
	if d.GeneratePIDOnPublish == PIDTypeNone {
		return nil
	}
	if err := validateGeneratePID(d, policy).OrNil(); err != nil {
		return err
	}

	var (
		pid string
		err error
	)
	switch d.GeneratePIDOnPublish {
	case PIDTypeURN:
		pid, err = s.pids.CreateURN(ctx, d.ID)
	case PIDTypeDOI:
		pid, err = s.pids.CreateDOI(ctx, d)
	}
	s.metrics.observePID(d.GeneratePIDOnPublish, err)
	if err != nil {
		return &ServiceUnavailableError{Service: "PID service", Err: err}
	}
	if pid == "" {
		return &ServiceUnavailableError{Service: "PID service", Err: errors.New("empty identifier returned")}
	}
	d.PersistentIdentifier = pid
	d.PIDGeneratedByFairdata = true
	return nil
}

// mergeDraft folds the linked draft of original into it and deletes the
// draft. File checks run before anything is modified.
func (s *Service) mergeDraft(ctx context.Context, tx Tx, original *Dataset) error {
	draft, err := tx.NextDraft(ctx, original.ID)
	if err != nil {
		return errors.Wrap(err, "draft could not be loaded")
	}
	if draft == nil {
		return NewValidationError("state", "Dataset does not have a draft.")
	}
	if draft.Deprecated != nil {
		return NewValidationError("state", "Draft is deprecated.")
	}
	if err := checkMergeFiles(original, draft); err != nil {
		return err
	}

	policy, err := s.policy(ctx, draft.CatalogID)
	if err != nil {
		return err
	}

	applyMerge(original, draft)

	// The draft gives up its unique values before the original takes them.
	draft.DraftOf = nil
	draft.PersistentIdentifier = ""
	if err := tx.UpdateDataset(ctx, draft); err != nil {
		return errors.Wrap(err, "draft could not be detached")
	}
	if err := s.save(ctx, tx, original, policy); err != nil {
		return err
	}
	if err := tx.DeleteDataset(ctx, draft.ID); err != nil {
		return errors.Wrap(err, "draft could not be deleted")
	}
	s.logger.WithFields(logrus.Fields{
		"dataset":  original.ID,
		"draft":    draft.ID,
		"revision": original.PublishedRevision,
	}).Debug("Draft merged")
	return nil
}
