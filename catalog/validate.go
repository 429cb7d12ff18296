package catalog

import (
	"fmt"
	"strings"
	"time"
)

// validatePublished checks that d is acceptable for publishing. All failed
// rules are collected.
func validatePublished(d *Dataset, policy *CatalogPolicy, requirePID bool) *ValidationError {
	verr := &ValidationError{}

	if d.CatalogID == "" || policy == nil {
		verr.Add("data_catalog", "Dataset has to have a data catalog when publishing.")
	}
	if requirePID && policy != nil && policy.RequiresPID() && d.PersistentIdentifier == "" {
		verr.Add("persistent_identifier", "Dataset has to have a persistent identifier when publishing.")
	}
	if d.AccessRights == nil {
		verr.Add("access_rights", "Dataset has to have access rights when publishing.")
	}
	if len(d.Description) == 0 {
		verr.Add("description", "Dataset has to have a description when publishing.")
	}

	for _, a := range d.Actors {
		if len(a.Roles) == 0 {
			verr.Add("actors", "Every actor has to have at least one role.")
			break
		}
	}

	// Legacy datasets harvested from external catalogs may lack creators.
	harvested := policy != nil && policy.IsExternal
	if !(d.IsLegacy && harvested) {
		if countRole(d.Actors, RoleCreator) == 0 {
			verr.Add("actors", "An actor with creator role is required.")
		}
	}
	if !d.IsLegacy {
		if countRole(d.Actors, RolePublisher) != 1 {
			verr.Add("actors", "Exactly one actor with publisher role is required.")
		}
		if ar := d.AccessRights; ar != nil {
			if len(ar.License) == 0 {
				verr.Add("access_rights", "Dataset has to have a license when publishing.")
			}
			open := ar.AccessType == AccessTypeOpen
			if !open && len(ar.RestrictionGrounds) == 0 {
				verr.Add("access_rights", "Dataset access rights has to contain restriction grounds if access type is not 'Open'.")
			}
			if open && len(ar.RestrictionGrounds) > 0 {
				verr.Add("access_rights", "Open datasets do not accept restriction grounds.")
			}
		}
	}

	return verr
}

func countRole(actors []Actor, role string) int {
	var n int
	for _, a := range actors {
		if a.HasRole(role) {
			n++
		}
	}
	return n
}

// validateCatalog runs the catalog specific rules that apply on every save.
func validateCatalog(d *Dataset, policy *CatalogPolicy) *ValidationError {
	verr := &ValidationError{}
	if policy == nil {
		return verr
	}
	if len(d.RemoteResources) > 0 && !policy.AllowRemoteResources {
		verr.Add("remote_resources", fmt.Sprintf("Data catalog %s does not allow remote resources.", policy.ID))
	}
	if d.FileSet != nil && !policy.AllowsStorageService(d.FileSet.StorageService) {
		verr.Add("fileset", fmt.Sprintf("Data catalog %s does not allow files from service %s.", policy.ID, d.FileSet.StorageService))
	}
	return verr
}

// validatePreservation enforces that an initialized preservation record
// references a contract.
func validatePreservation(d *Dataset) *ValidationError {
	verr := &ValidationError{}
	if p := d.Preservation; p != nil && p.State >= PreservationStateInitialized && p.Contract == "" {
		verr.Add("preservation", "Preservation contract is required when preservation state is set.")
	}
	return verr
}

// updateCumulativeState checks the cumulative state transition and stamps
// the cumulation timestamps of published datasets. publicState is the
// cumulative state visible to the public: the persisted one for published
// datasets, the original's for linked drafts and nil otherwise.
func updateCumulativeState(d *Dataset, publicState *CumulativeState, now time.Time) *ValidationError {
	allowed := map[CumulativeState]bool{}
	if publicState == nil {
		allowed[CumulativeStateNotCumulative] = true
		allowed[CumulativeStateActive] = true
	} else {
		allowed[*publicState] = true
		if *publicState == CumulativeStateActive {
			allowed[CumulativeStateClosed] = true
		}
	}
	if !allowed[d.CumulativeState] {
		return NewValidationError("cumulative_state", fmt.Sprintf("Cannot change state to %s.", d.CumulativeState))
	}

	if d.State == StatePublished {
		switch d.CumulativeState {
		case CumulativeStateActive:
			if d.CumulationStarted == nil {
				d.CumulationStarted = &now
			}
		case CumulativeStateClosed:
			if d.CumulationEnded == nil {
				d.CumulationEnded = &now
			}
		}
	}
	return nil
}

// validatePIDInput checks an identifier supplied by a caller on create or
// update against the catalog policy and the persisted record.
func validatePIDInput(d *Dataset, policy *CatalogPolicy) *ValidationError {
	verr := &ValidationError{}

	if d.tracker.loaded && d.tracker.pidGenerated && d.PersistentIdentifier != d.tracker.pid {
		verr.Add("persistent_identifier", "Generated persistent identifier cannot be changed.")
		return verr
	}
	if d.PersistentIdentifier == "" || d.PersistentIdentifier == d.tracker.pid {
		return verr
	}

	if strings.HasPrefix(d.PersistentIdentifier, DraftPIDPrefix) {
		verr.Add("persistent_identifier", fmt.Sprintf("Prefix %q is reserved.", DraftPIDPrefix))
	}
	if d.GeneratePIDOnPublish != PIDTypeNone {
		verr.Add("persistent_identifier", "Persistent identifier cannot be set when generate_pid_on_publish is set.")
	}
	if d.PIDGeneratedByFairdata {
		verr.Add("persistent_identifier", "Dataset already has a generated persistent identifier.")
	}
	if policy != nil && !policy.AllowExternalPID {
		verr.Add("persistent_identifier", fmt.Sprintf("Data catalog %s does not allow external persistent identifiers.", policy.ID))
	}
	return verr
}

// validateGeneratePID checks the requested identifier type against the
// catalog.
func validateGeneratePID(d *Dataset, policy *CatalogPolicy) *ValidationError {
	verr := &ValidationError{}
	if d.GeneratePIDOnPublish == PIDTypeNone || policy == nil {
		return verr
	}
	if d.GeneratePIDOnPublish != PIDTypeURN && d.GeneratePIDOnPublish != PIDTypeDOI {
		verr.Add("generate_pid_on_publish", fmt.Sprintf("Unknown identifier type %q.", d.GeneratePIDOnPublish))
		return verr
	}
	if !policy.AllowsPIDType(d.GeneratePIDOnPublish) {
		verr.Add("generate_pid_on_publish", fmt.Sprintf("Data catalog %s does not allow generating %s identifiers.", policy.ID, d.GeneratePIDOnPublish))
	}
	return verr
}

// NormalizeDOI lowercases a DOI and strips resolver and scheme prefixes.
// It returns the empty string for identifiers that are not DOIs.
func NormalizeDOI(pid string) string {
	s := strings.ToLower(strings.TrimSpace(pid))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if !strings.HasPrefix(s, "10.") {
		return ""
	}
	return s
}
