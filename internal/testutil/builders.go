// Package testutil contains dataset builders, fakes and fixture helpers
// shared by the tests of this module.
package testutil

import (
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/policy"
)

// Catalog identifiers used by the tests.
const (
	CatalogIDA       = "urn:nbn:fi:att:data-catalog-ida"
	CatalogHarvested = "urn:nbn:fi:att:data-catalog-harvested"
	CatalogNoVersion = "urn:nbn:fi:att:data-catalog-att"
	CatalogPAS       = catalog.DefaultPreservationCatalogID
)

// Catalogs returns the policies used by the tests.
func Catalogs() *policy.Static {
	return policy.NewStatic(
		&catalog.CatalogPolicy{
			ID:                       CatalogIDA,
			DatasetVersioningEnabled: true,
			AllowedPIDTypes:          []catalog.PIDType{catalog.PIDTypeURN, catalog.PIDTypeDOI},
			AllowGeneratedPID:        true,
			StorageServices:          []string{"ida"},
		},
		&catalog.CatalogPolicy{
			ID:                   CatalogHarvested,
			IsExternal:           true,
			AllowExternalPID:     true,
			AllowRemoteResources: true,
		},
		&catalog.CatalogPolicy{
			ID:                CatalogNoVersion,
			AllowedPIDTypes:   []catalog.PIDType{catalog.PIDTypeURN},
			AllowGeneratedPID: true,
			StorageServices:   []string{"ida"},
		},
		&catalog.CatalogPolicy{
			ID:                CatalogPAS,
			AllowedPIDTypes:   []catalog.PIDType{catalog.PIDTypeDOI},
			AllowGeneratedPID: true,
			StorageServices:   []string{catalog.PreservationStorageService},
		},
	)
}

// DatasetOption customizes a dataset built by NewDataset.
type DatasetOption func(*catalog.Dataset)

// NewDataset returns an unsaved dataset that passes publish validation in
// CatalogIDA and asks for a URN on publication.
func NewDataset(opts ...DatasetOption) *catalog.Dataset {
	d := &catalog.Dataset{
		CatalogID:            CatalogIDA,
		Title:                map[string]string{"en": "Ocean temperature measurements"},
		Description:          map[string]string{"en": "Hourly temperature readings."},
		Keyword:              []string{"ocean"},
		GeneratePIDOnPublish: catalog.PIDTypeURN,
		MetadataOwner:        catalog.MetadataOwner{User: "owner", Organization: "uni.example.org"},
		Language:             []string{"http://lexvo.org/id/iso639-3/eng"},
		AccessRights: &catalog.AccessRights{
			AccessType: catalog.AccessTypeOpen,
			License:    []catalog.License{{URL: "http://uri.suomi.fi/codelist/fairdata/license/code/CC-BY-4.0"}},
		},
		Actors: []catalog.Actor{
			{Roles: []string{catalog.RoleCreator}, Person: &catalog.Person{Name: "Kat Winter"}},
			{Roles: []string{catalog.RolePublisher}, Organization: &catalog.Organization{PrefLabel: map[string]string{"en": "University"}}},
		},
		Provenance: []catalog.Provenance{
			{Title: map[string]string{"en": "Collected"}, Variables: []catalog.Variable{{Label: map[string]string{"en": "temperature"}}}},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithFiles attaches a file set in the given storage service.
func WithFiles(storage string, files ...string) DatasetOption {
	return func(d *catalog.Dataset) {
		d.FileSet = &catalog.FileSet{StorageService: storage, Files: files}
	}
}

// WithCatalog moves the dataset to another catalog.
func WithCatalog(id string) DatasetOption {
	return func(d *catalog.Dataset) {
		d.CatalogID = id
	}
}

// WithPIDType sets the identifier type generated on publication.
func WithPIDType(t catalog.PIDType) DatasetOption {
	return func(d *catalog.Dataset) {
		d.GeneratePIDOnPublish = t
	}
}

// WithCumulativeState sets the cumulative state.
func WithCumulativeState(s catalog.CumulativeState) DatasetOption {
	return func(d *catalog.Dataset) {
		d.CumulativeState = s
	}
}

// WithPreservation puts the dataset in preservation under contract.
func WithPreservation(state catalog.PreservationState, contract string) DatasetOption {
	return func(d *catalog.Dataset) {
		d.Preservation = &catalog.Preservation{State: state, Contract: contract}
	}
}

// Published marks the dataset to be published on creation.
func Published() DatasetOption {
	return func(d *catalog.Dataset) {
		d.State = catalog.StatePublished
	}
}
