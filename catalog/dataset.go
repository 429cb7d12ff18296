package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// State of a dataset record.
type State string

const (
	StateDraft     State = "draft"
	StatePublished State = "published"
)

func (s State) String() string { return string(s) }

// CumulativeState tells whether files may be added to a published dataset
// without creating a new version.
type CumulativeState int

const (
	CumulativeStateNotCumulative CumulativeState = 0
	CumulativeStateActive        CumulativeState = 1
	CumulativeStateClosed        CumulativeState = 2
)

func (s CumulativeState) String() string {
	switch s {
	case CumulativeStateNotCumulative:
		return "NOT_CUMULATIVE"
	case CumulativeStateActive:
		return "ACTIVE"
	case CumulativeStateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// PIDType is the kind of persistent identifier minted on publication.
type PIDType string

const (
	PIDTypeNone PIDType = ""
	PIDTypeURN  PIDType = "URN"
	PIDTypeDOI  PIDType = "DOI"
)

// DraftPIDPrefix marks the placeholder identifier of a linked draft.
const DraftPIDPrefix = "draft:"

// Actor roles counted by publish validation.
const (
	RoleCreator   = "creator"
	RolePublisher = "publisher"
)

// AccessTypeOpen is the reference data URL of the "open" access type.
const AccessTypeOpen = "http://uri.suomi.fi/codelist/fairdata/access_type/code/open"

// PreservationState is the position of a dataset in the digital
// preservation workflow. Values are ordered.
type PreservationState int

const (
	PreservationStateNone                             PreservationState = -1
	PreservationStateInitialized                      PreservationState = 0
	PreservationStateGeneratingTechnicalMetadata      PreservationState = 10
	PreservationStateTechnicalMetadataGenerated       PreservationState = 20
	PreservationStateTechnicalMetadataGeneratedFailed PreservationState = 30
	PreservationStateInvalidMetadata                  PreservationState = 40
	PreservationStateMetadataValidationFailed         PreservationState = 50
	PreservationStateValidatedMetadataUpdated         PreservationState = 60
	PreservationStateValidatingMetadata               PreservationState = 65
	PreservationStateRejectedByUser                   PreservationState = 70
	PreservationStateMetadataConfirmed                PreservationState = 75
	PreservationStateAcceptedToPAS                    PreservationState = 80
	PreservationStateInPackagingService               PreservationState = 90
	PreservationStatePackagingFailed                  PreservationState = 100
	PreservationStateSIPInIngestion                   PreservationState = 110
	PreservationStateInPAS                            PreservationState = 120
	PreservationStateRejectedFromPAS                  PreservationState = 130
	PreservationStateInDissemination                  PreservationState = 140
)

// MetadataOwner identifies who owns the metadata of a dataset.
type MetadataOwner struct {
	User         string `json:"user"`
	Organization string `json:"organization"`
}

// Dataset is the central record of the catalog.
//
// Owned child rows (actors, provenance, file set, ...) travel with the
// dataset. Version sets and permissions are separate records referenced by
// id so that a linked draft can share them with its original.
type Dataset struct {
	ID        uuid.UUID         `json:"id"`
	CatalogID string            `json:"data_catalog,omitempty"`
	Title     map[string]string `json:"title"`

	Description           map[string]string `json:"description,omitempty"`
	Keyword               []string          `json:"keyword,omitempty"`
	BibliographicCitation string            `json:"bibliographic_citation,omitempty"`
	Issued                *time.Time        `json:"issued,omitempty"`

	State             State           `json:"state"`
	PublishedRevision int             `json:"published_revision"`
	DraftRevision     int             `json:"draft_revision"`
	Version           int             `json:"version"`
	CumulativeState   CumulativeState `json:"cumulative_state"`
	CumulationStarted *time.Time      `json:"cumulation_started,omitempty"`
	CumulationEnded   *time.Time      `json:"cumulation_ended,omitempty"`

	VersionSetID  *uuid.UUID `json:"dataset_versions,omitempty"`
	DraftOf       *uuid.UUID `json:"draft_of,omitempty"`
	PermissionsID *uuid.UUID `json:"permissions,omitempty"`

	PersistentIdentifier   string  `json:"persistent_identifier,omitempty"`
	GeneratePIDOnPublish   PIDType `json:"generate_pid_on_publish,omitempty"`
	PIDGeneratedByFairdata bool    `json:"pid_generated_by_fairdata"`

	MetadataOwner  MetadataOwner `json:"metadata_owner"`
	LastModifiedBy string        `json:"last_modified_by,omitempty"`
	Created        time.Time     `json:"created"`
	Modified       time.Time     `json:"modified"`
	Removed        *time.Time    `json:"removed,omitempty"`
	Deprecated     *time.Time    `json:"deprecated,omitempty"`
	IsLegacy       bool          `json:"is_legacy"`

	AccessRights *AccessRights `json:"access_rights,omitempty"`
	Preservation *Preservation `json:"preservation,omitempty"`

	// Reference data terms, shared and never copied.
	Language       []string `json:"language,omitempty"`
	Theme          []string `json:"theme,omitempty"`
	FieldOfScience []string `json:"field_of_science,omitempty"`
	Infrastructure []string `json:"infrastructure,omitempty"`

	OtherIdentifiers []OtherIdentifier `json:"other_identifiers,omitempty"`
	Actors           []Actor           `json:"actors,omitempty"`
	Provenance       []Provenance      `json:"provenance,omitempty"`
	Projects         []Project         `json:"projects,omitempty"`
	FileSet          *FileSet          `json:"fileset,omitempty"`
	Spatial          []Spatial         `json:"spatial,omitempty"`
	Temporal         []Temporal        `json:"temporal,omitempty"`
	RemoteResources  []RemoteResource  `json:"remote_resources,omitempty"`
	Relations        []EntityRelation  `json:"relation,omitempty"`

	tracker tracker
}

// IsLinkedDraft reports whether the dataset is a draft of a published one.
func (d *Dataset) IsLinkedDraft() bool {
	return d.State == StateDraft && d.DraftOf != nil
}

// HasDraftPID reports whether the identifier is the linked-draft placeholder.
func (d *Dataset) HasDraftPID() bool {
	return strings.HasPrefix(d.PersistentIdentifier, DraftPIDPrefix)
}

// FileIDs returns the identifiers of the files in the dataset file set.
func (d *Dataset) FileIDs() []string {
	if d.FileSet == nil {
		return nil
	}
	return d.FileSet.Files
}

// HasFiles reports whether the dataset has a non-empty file set.
func (d *Dataset) HasFiles() bool {
	return len(d.FileIDs()) > 0
}

// AccessRights is owned 1:1 by a dataset.
type AccessRights struct {
	ID                 uuid.UUID         `json:"id"`
	AccessType         string            `json:"access_type,omitempty"`
	License            []License         `json:"license,omitempty"`
	RestrictionGrounds []string          `json:"restriction_grounds,omitempty"`
	AvailableDate      *time.Time        `json:"available,omitempty"`
	Description        map[string]string `json:"description,omitempty"`
	Removed            *time.Time        `json:"removed,omitempty"`
}

type License struct {
	ID          uuid.UUID         `json:"id"`
	URL         string            `json:"url"`
	CustomURL   string            `json:"custom_url,omitempty"`
	Description map[string]string `json:"description,omitempty"`
}

// Preservation carries the long-term preservation status of a dataset.
//
// DatasetVersion points from an origin dataset to its preservation copy and
// DatasetOriginVersion points back.
type Preservation struct {
	ID                     uuid.UUID         `json:"id"`
	State                  PreservationState `json:"state"`
	StateModified          *time.Time        `json:"state_modified,omitempty"`
	Contract               string            `json:"contract,omitempty"`
	PreservationIdentifier string            `json:"preservation_identifier,omitempty"`
	Description            map[string]string `json:"description,omitempty"`
	ReasonDescription      string            `json:"reason_description,omitempty"`
	DatasetVersion         *uuid.UUID        `json:"dataset_version,omitempty"`
	DatasetOriginVersion   *uuid.UUID        `json:"dataset_origin_version,omitempty"`
}

// OtherIdentifier cross-links a dataset to an identifier it has elsewhere.
type OtherIdentifier struct {
	ID             uuid.UUID `json:"id"`
	Notation       string    `json:"notation"`
	IdentifierType string    `json:"identifier_type,omitempty"`
}

type Person struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Organization struct {
	PrefLabel map[string]string `json:"pref_label,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// Actor is a person and/or organization acting in one or more roles.
type Actor struct {
	ID           uuid.UUID     `json:"id"`
	DatasetID    uuid.UUID     `json:"dataset"`
	Roles        []string      `json:"roles"`
	Person       *Person       `json:"person,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}

// HasRole reports whether the actor has the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Variable struct {
	ID    uuid.UUID         `json:"id"`
	Label map[string]string `json:"pref_label"`
}

// Provenance describes a lifecycle event of the dataset.
type Provenance struct {
	ID                 uuid.UUID         `json:"id"`
	DatasetID          uuid.UUID         `json:"dataset"`
	Title              map[string]string `json:"title,omitempty"`
	Description        map[string]string `json:"description,omitempty"`
	LifecycleEvent     string            `json:"lifecycle_event,omitempty"`
	EventOutcome       string            `json:"event_outcome,omitempty"`
	Spatial            *Spatial          `json:"spatial,omitempty"`
	Temporal           *Temporal         `json:"temporal,omitempty"`
	Variables          []Variable        `json:"variables,omitempty"`
	IsAssociatedWith   []Actor           `json:"is_associated_with,omitempty"`
	OutcomeDescription map[string]string `json:"outcome_description,omitempty"`
}

type Funding struct {
	ID                uuid.UUID     `json:"id"`
	Funder            *Organization `json:"funder,omitempty"`
	FunderType        string        `json:"funder_type,omitempty"`
	FundingIdentifier string        `json:"funding_identifier,omitempty"`
}

type Project struct {
	ID                         uuid.UUID         `json:"id"`
	DatasetID                  uuid.UUID         `json:"dataset"`
	Title                      map[string]string `json:"title,omitempty"`
	ProjectIdentifier          string            `json:"project_identifier,omitempty"`
	Funding                    []Funding         `json:"funding,omitempty"`
	ParticipatingOrganizations []Organization    `json:"participating_organizations,omitempty"`
}

// FileSet is the file selection of a dataset within one storage project.
type FileSet struct {
	ID             uuid.UUID `json:"id"`
	DatasetID      uuid.UUID `json:"dataset"`
	StorageService string    `json:"storage_service"`
	CSCProject     string    `json:"csc_project,omitempty"`
	Files          []string  `json:"files,omitempty"`
}

type Spatial struct {
	ID             uuid.UUID `json:"id"`
	GeographicName string    `json:"geographic_name,omitempty"`
	Reference      string    `json:"reference,omitempty"`
	CustomWKT      []string  `json:"custom_wkt,omitempty"`
}

type Temporal struct {
	ID        uuid.UUID  `json:"id"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

type RemoteResource struct {
	ID          uuid.UUID         `json:"id"`
	Title       map[string]string `json:"title,omitempty"`
	AccessURL   string            `json:"access_url,omitempty"`
	DownloadURL string            `json:"download_url,omitempty"`
	UseCategory string            `json:"use_category,omitempty"`
	FileType    string            `json:"file_type,omitempty"`
}

type EntityRelation struct {
	ID           uuid.UUID `json:"id"`
	Identifier   string    `json:"entity_identifier"`
	RelationType string    `json:"relation_type"`
}

// VersionSet groups the datasets of one version lineage.
type VersionSet struct {
	ID      uuid.UUID `json:"id"`
	Created time.Time `json:"created"`
}

// Permissions lists the users allowed to edit a dataset. It is shared by a
// dataset and its linked draft.
type Permissions struct {
	ID      uuid.UUID `json:"id"`
	Editors []string  `json:"editors"`
}
