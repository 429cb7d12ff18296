package catalog

import "context"

// DefaultPreservationCatalogID is the well-known catalog that receives
// preservation copies.
const DefaultPreservationCatalogID = "urn:nbn:fi:att:data-catalog-pas"

// PreservationStorageService is the storage scope of preservation copies.
const PreservationStorageService = "pas"

// CatalogPolicy is the subset of data catalog settings the lifecycle rules
// depend on.
type CatalogPolicy struct {
	ID                       string    `json:"id"`
	DatasetVersioningEnabled bool      `json:"dataset_versioning_enabled"`
	IsExternal               bool      `json:"is_external"`
	AllowedPIDTypes          []PIDType `json:"allowed_pid_types"`
	AllowExternalPID         bool      `json:"allow_external_pid"`
	AllowGeneratedPID        bool      `json:"allow_generated_pid"`
	AllowRemoteResources     bool      `json:"allow_remote_resources"`
	StorageServices          []string  `json:"storage_services"`
}

// RequiresPID reports whether published datasets of the catalog must carry
// a persistent identifier.
func (p *CatalogPolicy) RequiresPID() bool {
	return p.AllowGeneratedPID || p.AllowExternalPID
}

// AllowsPIDType reports whether the catalog can mint identifiers of type t.
func (p *CatalogPolicy) AllowsPIDType(t PIDType) bool {
	if !p.AllowGeneratedPID {
		return false
	}
	for _, item := range p.AllowedPIDTypes {
		if item == t {
			return true
		}
	}
	return false
}

// AllowsStorageService reports whether file sets of the given storage
// service can be attached to datasets of the catalog.
func (p *CatalogPolicy) AllowsStorageService(s string) bool {
	for _, item := range p.StorageServices {
		if item == s {
			return true
		}
	}
	return false
}

// CatalogLookup resolves catalog policies by id. Implementations return
// ErrNotFound for unknown catalogs.
type CatalogLookup interface {
	Catalog(ctx context.Context, id string) (*CatalogPolicy, error)
}
