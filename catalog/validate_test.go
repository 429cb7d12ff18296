package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDOI(t *testing.T) {
	tests := map[string]string{
		"doi:10.1234/ABC":                 "10.1234/abc",
		"https://doi.org/10.1234/abc":     "10.1234/abc",
		"http://dx.doi.org/10.1234/Abc":   "10.1234/abc",
		"  10.1234/abc ":                  "10.1234/abc",
		"urn:nbn:fi:att:1":                "",
		"https://example.org/10.1234/abc": "",
		"":                                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDOI(in), in)
	}
}

func TestUpdateCumulativeState(t *testing.T) {
	ptr := func(s CumulativeState) *CumulativeState { return &s }
	tests := map[string]struct {
		public  *CumulativeState
		next    CumulativeState
		wantErr bool
	}{
		"New dataset may start active":        {nil, CumulativeStateActive, false},
		"New dataset cannot start closed":     {nil, CumulativeStateClosed, true},
		"Active may close":                    {ptr(CumulativeStateActive), CumulativeStateClosed, false},
		"Active may stay active":              {ptr(CumulativeStateActive), CumulativeStateActive, false},
		"Closed cannot reopen":                {ptr(CumulativeStateClosed), CumulativeStateActive, true},
		"Not cumulative cannot become active": {ptr(CumulativeStateNotCumulative), CumulativeStateActive, true},
		"Active cannot become not cumulative": {ptr(CumulativeStateActive), CumulativeStateNotCumulative, true},
		"Not cumulative stays not cumulative": {ptr(CumulativeStateNotCumulative), CumulativeStateNotCumulative, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d := &Dataset{State: StateDraft, CumulativeState: tc.next}
			verr := updateCumulativeState(d, tc.public, time.Now())
			if tc.wantErr {
				require.NotNil(t, verr)
				assert.Contains(t, verr.Fields, "cumulative_state")
				return
			}
			assert.Nil(t, verr)
		})
	}
}

func TestUpdateCumulativeStateStampsPublished(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	draft := &Dataset{State: StateDraft, CumulativeState: CumulativeStateActive}
	require.Nil(t, updateCumulativeState(draft, nil, now))
	assert.Nil(t, draft.CumulationStarted)

	published := &Dataset{State: StatePublished, CumulativeState: CumulativeStateActive}
	require.Nil(t, updateCumulativeState(published, nil, now))
	require.NotNil(t, published.CumulationStarted)
	assert.Equal(t, now, *published.CumulationStarted)

	active := CumulativeStateActive
	published.CumulativeState = CumulativeStateClosed
	later := now.Add(time.Hour)
	require.Nil(t, updateCumulativeState(published, &active, later))
	assert.Equal(t, now, *published.CumulationStarted)
	assert.Equal(t, later, *published.CumulationEnded)
}

func TestValidatePublishedRequiresPID(t *testing.T) {
	d := &Dataset{
		CatalogID:    "c",
		Description:  map[string]string{"en": "d"},
		AccessRights: &AccessRights{AccessType: AccessTypeOpen, License: []License{{URL: "l"}}},
		Actors: []Actor{
			{Roles: []string{RoleCreator, RolePublisher}},
		},
	}

	generated := &CatalogPolicy{ID: "c", AllowGeneratedPID: true}
	verr := validatePublished(d, generated, true)
	assert.Equal(t, []string{"Dataset has to have a persistent identifier when publishing."}, verr.Fields["persistent_identifier"])
	assert.True(t, validatePublished(d, generated, false).Empty())

	noPIDs := &CatalogPolicy{ID: "c"}
	assert.True(t, validatePublished(d, noPIDs, true).Empty())
}

func TestValidatePublishedPublisherCount(t *testing.T) {
	d := &Dataset{
		CatalogID:    "c",
		Description:  map[string]string{"en": "d"},
		AccessRights: &AccessRights{AccessType: AccessTypeOpen, License: []License{{URL: "l"}}},
		Actors: []Actor{
			{Roles: []string{RoleCreator, RolePublisher}},
			{Roles: []string{RolePublisher}},
		},
	}
	verr := validatePublished(d, &CatalogPolicy{ID: "c"}, false)
	assert.Equal(t, []string{"Exactly one actor with publisher role is required."}, verr.Fields["actors"])

	d.IsLegacy = true
	assert.True(t, validatePublished(d, &CatalogPolicy{ID: "c"}, false).Empty())
}

func TestValidatePIDInput(t *testing.T) {
	external := &CatalogPolicy{ID: "h", AllowExternalPID: true}

	loaded := &Dataset{PersistentIdentifier: "urn:1", PIDGeneratedByFairdata: true}
	loaded.MarkLoaded()
	assert.True(t, validatePIDInput(loaded, external).Empty(), "unchanged identifier")

	loaded.PersistentIdentifier = ""
	verr := validatePIDInput(loaded, external)
	assert.Equal(t, []string{"Generated persistent identifier cannot be changed."}, verr.Fields["persistent_identifier"])

	fresh := &Dataset{PersistentIdentifier: "urn:x", PIDGeneratedByFairdata: true}
	verr = validatePIDInput(fresh, external)
	assert.Equal(t, []string{"Dataset already has a generated persistent identifier."}, verr.Fields["persistent_identifier"])
}

func TestValidateGeneratePID(t *testing.T) {
	policy := &CatalogPolicy{ID: "c", AllowGeneratedPID: true, AllowedPIDTypes: []PIDType{PIDTypeURN}}

	assert.True(t, validateGeneratePID(&Dataset{GeneratePIDOnPublish: PIDTypeURN}, policy).Empty())
	assert.Contains(t, validateGeneratePID(&Dataset{GeneratePIDOnPublish: PIDTypeDOI}, policy).Fields, "generate_pid_on_publish")
	assert.Contains(t, validateGeneratePID(&Dataset{GeneratePIDOnPublish: "ARK"}, policy).Fields, "generate_pid_on_publish")
	assert.True(t, validateGeneratePID(&Dataset{}, policy).Empty())
}

func TestValidatePreservation(t *testing.T) {
	assert.True(t, validatePreservation(&Dataset{}).Empty())
	assert.True(t, validatePreservation(&Dataset{Preservation: &Preservation{State: PreservationStateNone}}).Empty())
	assert.False(t, validatePreservation(&Dataset{Preservation: &Preservation{State: PreservationStateInitialized}}).Empty())
	assert.True(t, validatePreservation(&Dataset{Preservation: &Preservation{State: PreservationStateInitialized, Contract: "c"}}).Empty())
}

func TestValidationError(t *testing.T) {
	verr := NewValidationError("b", "second")
	verr.Add("a", "first")
	verr.Merge(NewValidationError("a", "again"))

	assert.Equal(t, []string{"first", "again"}, verr.Fields["a"])
	assert.Equal(t, "validation failed: a: first again; b: second", verr.Error())
	assert.Equal(t, "validation", ErrorKind(verr))

	var empty *ValidationError
	assert.NoError(t, (&ValidationError{}).OrNil())
	assert.True(t, empty.Empty())
}
