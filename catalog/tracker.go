package catalog

// tracker remembers the lifecycle fields of a dataset as they were when the
// record was read from the store.
type tracker struct {
	loaded            bool
	state             State
	publishedRevision int
	draftRevision     int
	cumulativeState   CumulativeState
	pid               string
	pidGenerated      bool
}

// MarkLoaded records the current lifecycle fields as the persisted ones.
// Stores call it on every dataset they return.
func (d *Dataset) MarkLoaded() {
	d.tracker = tracker{
		loaded:            true,
		state:             d.State,
		publishedRevision: d.PublishedRevision,
		draftRevision:     d.DraftRevision,
		cumulativeState:   d.CumulativeState,
		pid:               d.PersistentIdentifier,
		pidGenerated:      d.PIDGeneratedByFairdata,
	}
}

// IsNew reports whether the dataset has never been persisted.
func (d *Dataset) IsNew() bool {
	return !d.tracker.loaded
}

// PreviousState returns the persisted state, or the empty state for new
// records.
func (d *Dataset) PreviousState() State {
	return d.tracker.state
}

// PreviousCumulativeState returns the persisted cumulative state.
func (d *Dataset) PreviousCumulativeState() (CumulativeState, bool) {
	return d.tracker.cumulativeState, d.tracker.loaded
}
