package catalog

// mergeKind describes how a field of a linked draft is folded into the
// dataset it drafts.
type mergeKind int

const (
	// mergeScalar assigns the value directly.
	mergeScalar mergeKind = iota

	// mergeReplaceSet replaces a set of shared reference terms wholesale.
	mergeReplaceSet

	// mergeRepoint drops the rows owned by the original and re-points the
	// rows of the draft at the original.
	mergeRepoint

	// mergeMoveUnique moves a unique one-to-one record. It is cleared on the
	// draft before the original takes it.
	mergeMoveUnique
)

func (k mergeKind) String() string {
	switch k {
	case mergeScalar:
		return "scalar"
	case mergeReplaceSet:
		return "replace-set"
	case mergeRepoint:
		return "repoint"
	case mergeMoveUnique:
		return "move-unique"
	default:
		return "unknown"
	}
}

type mergeField struct {
	name  string
	kind  mergeKind
	apply func(dst, src *Dataset)
}

// mergeIgnored lists the Dataset fields that a merge never touches:
// identity, lineage pointers, ownership and revision bookkeeping.
var mergeIgnored = map[string]bool{
	"ID":                true,
	"State":             true,
	"PublishedRevision": true,
	"DraftRevision":     true,
	"Created":           true,
	"DraftOf":           true,
	"VersionSetID":      true,
	"PermissionsID":     true,
	"MetadataOwner":     true,
	"Preservation":      true,
}

// mergeTable enumerates every merged field of Dataset. A field added to
// Dataset must be added here or to mergeIgnored.
var mergeTable = []mergeField{
	{"CatalogID", mergeScalar, func(dst, src *Dataset) { dst.CatalogID = src.CatalogID }},
	{"Title", mergeScalar, func(dst, src *Dataset) { dst.Title = src.Title }},
	{"Description", mergeScalar, func(dst, src *Dataset) { dst.Description = src.Description }},
	{"Keyword", mergeScalar, func(dst, src *Dataset) { dst.Keyword = src.Keyword }},
	{"BibliographicCitation", mergeScalar, func(dst, src *Dataset) { dst.BibliographicCitation = src.BibliographicCitation }},
	{"Issued", mergeScalar, func(dst, src *Dataset) { dst.Issued = src.Issued }},
	{"Version", mergeScalar, func(dst, src *Dataset) { dst.Version = src.Version }},
	{"CumulativeState", mergeScalar, func(dst, src *Dataset) { dst.CumulativeState = src.CumulativeState }},
	{"CumulationStarted", mergeScalar, func(dst, src *Dataset) { dst.CumulationStarted = src.CumulationStarted }},
	{"CumulationEnded", mergeScalar, func(dst, src *Dataset) { dst.CumulationEnded = src.CumulationEnded }},
	{"PersistentIdentifier", mergeScalar, func(dst, src *Dataset) {
		if !src.HasDraftPID() {
			dst.PersistentIdentifier = src.PersistentIdentifier
		}
	}},
	{"GeneratePIDOnPublish", mergeScalar, func(dst, src *Dataset) { dst.GeneratePIDOnPublish = src.GeneratePIDOnPublish }},
	{"PIDGeneratedByFairdata", mergeScalar, func(dst, src *Dataset) { dst.PIDGeneratedByFairdata = src.PIDGeneratedByFairdata }},
	{"LastModifiedBy", mergeScalar, func(dst, src *Dataset) { dst.LastModifiedBy = src.LastModifiedBy }},
	{"Modified", mergeScalar, func(dst, src *Dataset) { dst.Modified = src.Modified }},
	{"Removed", mergeScalar, func(dst, src *Dataset) { dst.Removed = src.Removed }},
	{"Deprecated", mergeScalar, func(dst, src *Dataset) { dst.Deprecated = src.Deprecated }},
	{"IsLegacy", mergeScalar, func(dst, src *Dataset) { dst.IsLegacy = src.IsLegacy }},

	{"Language", mergeReplaceSet, func(dst, src *Dataset) { dst.Language = cloneSlice(src.Language) }},
	{"Theme", mergeReplaceSet, func(dst, src *Dataset) { dst.Theme = cloneSlice(src.Theme) }},
	{"FieldOfScience", mergeReplaceSet, func(dst, src *Dataset) { dst.FieldOfScience = cloneSlice(src.FieldOfScience) }},
	{"Infrastructure", mergeReplaceSet, func(dst, src *Dataset) { dst.Infrastructure = cloneSlice(src.Infrastructure) }},

	{"OtherIdentifiers", mergeRepoint, func(dst, src *Dataset) { dst.OtherIdentifiers = src.OtherIdentifiers }},
	{"Actors", mergeRepoint, func(dst, src *Dataset) { dst.Actors = src.Actors }},
	{"Provenance", mergeRepoint, func(dst, src *Dataset) { dst.Provenance = src.Provenance }},
	{"Projects", mergeRepoint, func(dst, src *Dataset) { dst.Projects = src.Projects }},
	{"FileSet", mergeRepoint, func(dst, src *Dataset) { dst.FileSet = src.FileSet }},
	{"Spatial", mergeRepoint, func(dst, src *Dataset) { dst.Spatial = src.Spatial }},
	{"Temporal", mergeRepoint, func(dst, src *Dataset) { dst.Temporal = src.Temporal }},
	{"RemoteResources", mergeRepoint, func(dst, src *Dataset) { dst.RemoteResources = src.RemoteResources }},
	{"Relations", mergeRepoint, func(dst, src *Dataset) { dst.Relations = src.Relations }},

	{"AccessRights", mergeMoveUnique, func(dst, src *Dataset) {
		dst.AccessRights = src.AccessRights
		src.AccessRights = nil
	}},
}

// applyMerge folds draft into original following mergeTable. Rows moved to
// the original are detached from the draft.
func applyMerge(original, draft *Dataset) {
	for _, f := range mergeTable {
		f.apply(original, draft)
		if f.kind == mergeRepoint {
			original.attachChildren()
		}
	}
	draft.Actors = nil
	draft.Provenance = nil
	draft.Projects = nil
	draft.FileSet = nil
	draft.OtherIdentifiers = nil
	draft.Spatial = nil
	draft.Temporal = nil
	draft.RemoteResources = nil
	draft.Relations = nil
}

// fileDelta returns the files removed from and added to original by draft.
func fileDelta(original, draft *Dataset) (removed, added []string) {
	have := map[string]bool{}
	for _, f := range original.FileIDs() {
		have[f] = true
	}
	want := map[string]bool{}
	for _, f := range draft.FileIDs() {
		want[f] = true
		if !have[f] {
			added = append(added, f)
		}
	}
	for _, f := range original.FileIDs() {
		if !want[f] {
			removed = append(removed, f)
		}
	}
	return removed, added
}

// checkMergeFiles rejects merges that would remove files, or add files to a
// dataset that is not actively cumulative.
func checkMergeFiles(original, draft *Dataset) error {
	removed, added := fileDelta(original, draft)
	if len(removed) > 0 {
		return &ConflictError{Field: "fileset", Message: "Merging changes would remove files, which is not allowed."}
	}
	if len(added) > 0 && original.CumulativeState != CumulativeStateActive {
		return &ConflictError{Field: "fileset", Message: "Merging changes would add files, which is not allowed."}
	}
	return nil
}
