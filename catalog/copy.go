package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Clone returns a deep copy of the dataset that keeps every identifier,
// including those of the owned child rows.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	c := *d
	c.Title = cloneStrings(d.Title)
	c.Description = cloneStrings(d.Description)
	c.Keyword = cloneSlice(d.Keyword)
	c.Issued = cloneTime(d.Issued)
	c.CumulationStarted = cloneTime(d.CumulationStarted)
	c.CumulationEnded = cloneTime(d.CumulationEnded)
	c.VersionSetID = cloneUUID(d.VersionSetID)
	c.DraftOf = cloneUUID(d.DraftOf)
	c.PermissionsID = cloneUUID(d.PermissionsID)
	c.Removed = cloneTime(d.Removed)
	c.Deprecated = cloneTime(d.Deprecated)
	c.Language = cloneSlice(d.Language)
	c.Theme = cloneSlice(d.Theme)
	c.FieldOfScience = cloneSlice(d.FieldOfScience)
	c.Infrastructure = cloneSlice(d.Infrastructure)
	c.AccessRights = d.AccessRights.clone()
	c.Preservation = d.Preservation.clone()
	c.OtherIdentifiers = cloneSlice(d.OtherIdentifiers)
	c.Actors = cloneActors(d.Actors)
	c.Provenance = nil
	for _, p := range d.Provenance {
		c.Provenance = append(c.Provenance, p.clone())
	}
	c.Projects = nil
	for _, p := range d.Projects {
		c.Projects = append(c.Projects, p.clone())
	}
	c.FileSet = d.FileSet.clone()
	c.Spatial = nil
	for _, s := range d.Spatial {
		c.Spatial = append(c.Spatial, s.clone())
	}
	c.Temporal = nil
	for _, t := range d.Temporal {
		c.Temporal = append(c.Temporal, t.clone())
	}
	c.RemoteResources = nil
	for _, r := range d.RemoteResources {
		r.Title = cloneStrings(r.Title)
		c.RemoteResources = append(c.RemoteResources, r)
	}
	c.Relations = cloneSlice(d.Relations)
	return &c
}

// copyAsNew produces an unsaved draft that duplicates the owned relations of
// d under fresh identifiers. Reference data terms are re-attached as they
// are. The caller adjusts lineage fields afterwards.
func (d *Dataset) copyAsNew(now time.Time) *Dataset {
	c := d.Clone()
	c.ID = uuid.New()
	c.tracker = tracker{}
	c.State = StateDraft
	c.PublishedRevision = 0
	c.DraftRevision = 0
	c.Created = now
	c.Modified = now
	c.PersistentIdentifier = ""
	c.PIDGeneratedByFairdata = false
	c.DraftOf = nil
	c.Preservation = nil
	c.Removed = nil

	if c.AccessRights != nil {
		c.AccessRights.ID = uuid.New()
		for i := range c.AccessRights.License {
			c.AccessRights.License[i].ID = uuid.New()
		}
	}
	for i := range c.OtherIdentifiers {
		c.OtherIdentifiers[i].ID = uuid.New()
	}
	reidActors(c.Actors, c.ID)
	for i := range c.Provenance {
		p := &c.Provenance[i]
		p.ID = uuid.New()
		p.DatasetID = c.ID
		if p.Spatial != nil {
			p.Spatial.ID = uuid.New()
		}
		if p.Temporal != nil {
			p.Temporal.ID = uuid.New()
		}
		for j := range p.Variables {
			p.Variables[j].ID = uuid.New()
		}
		reidActors(p.IsAssociatedWith, c.ID)
	}
	for i := range c.Projects {
		p := &c.Projects[i]
		p.ID = uuid.New()
		p.DatasetID = c.ID
		for j := range p.Funding {
			p.Funding[j].ID = uuid.New()
		}
	}
	if c.FileSet != nil {
		c.FileSet.ID = uuid.New()
		c.FileSet.DatasetID = c.ID
	}
	for i := range c.Spatial {
		c.Spatial[i].ID = uuid.New()
	}
	for i := range c.Temporal {
		c.Temporal[i].ID = uuid.New()
	}
	for i := range c.RemoteResources {
		c.RemoteResources[i].ID = uuid.New()
	}
	for i := range c.Relations {
		c.Relations[i].ID = uuid.New()
	}
	return c
}

func reidActors(actors []Actor, datasetID uuid.UUID) {
	for i := range actors {
		actors[i].ID = uuid.New()
		actors[i].DatasetID = datasetID
	}
}

// attachChildren points every owned child row at the dataset id.
func (d *Dataset) attachChildren() {
	for i := range d.Actors {
		d.Actors[i].DatasetID = d.ID
	}
	for i := range d.Provenance {
		d.Provenance[i].DatasetID = d.ID
		for j := range d.Provenance[i].IsAssociatedWith {
			d.Provenance[i].IsAssociatedWith[j].DatasetID = d.ID
		}
	}
	for i := range d.Projects {
		d.Projects[i].DatasetID = d.ID
	}
	if d.FileSet != nil {
		d.FileSet.DatasetID = d.ID
	}
}

func (a *AccessRights) clone() *AccessRights {
	if a == nil {
		return nil
	}
	c := *a
	c.License = nil
	for _, l := range a.License {
		l.Description = cloneStrings(l.Description)
		c.License = append(c.License, l)
	}
	c.RestrictionGrounds = cloneSlice(a.RestrictionGrounds)
	c.AvailableDate = cloneTime(a.AvailableDate)
	c.Description = cloneStrings(a.Description)
	c.Removed = cloneTime(a.Removed)
	return &c
}

func (p *Preservation) clone() *Preservation {
	if p == nil {
		return nil
	}
	c := *p
	c.StateModified = cloneTime(p.StateModified)
	c.Description = cloneStrings(p.Description)
	c.DatasetVersion = cloneUUID(p.DatasetVersion)
	c.DatasetOriginVersion = cloneUUID(p.DatasetOriginVersion)
	return &c
}

func (f *FileSet) clone() *FileSet {
	if f == nil {
		return nil
	}
	c := *f
	c.Files = cloneSlice(f.Files)
	return &c
}

func (p Provenance) clone() Provenance {
	p.Title = cloneStrings(p.Title)
	p.Description = cloneStrings(p.Description)
	p.OutcomeDescription = cloneStrings(p.OutcomeDescription)
	if p.Spatial != nil {
		s := p.Spatial.clone()
		p.Spatial = &s
	}
	if p.Temporal != nil {
		t := p.Temporal.clone()
		p.Temporal = &t
	}
	variables := p.Variables
	p.Variables = nil
	for _, v := range variables {
		v.Label = cloneStrings(v.Label)
		p.Variables = append(p.Variables, v)
	}
	p.IsAssociatedWith = cloneActors(p.IsAssociatedWith)
	return p
}

func (p Project) clone() Project {
	p.Title = cloneStrings(p.Title)
	funding := p.Funding
	p.Funding = nil
	for _, f := range funding {
		f.Funder = f.Funder.clone()
		p.Funding = append(p.Funding, f)
	}
	orgs := p.ParticipatingOrganizations
	p.ParticipatingOrganizations = nil
	for _, o := range orgs {
		p.ParticipatingOrganizations = append(p.ParticipatingOrganizations, *o.clone())
	}
	return p
}

func (s Spatial) clone() Spatial {
	s.CustomWKT = cloneSlice(s.CustomWKT)
	return s
}

func (t Temporal) clone() Temporal {
	t.StartDate = cloneTime(t.StartDate)
	t.EndDate = cloneTime(t.EndDate)
	return t
}

func (o *Organization) clone() *Organization {
	if o == nil {
		return nil
	}
	c := *o
	c.PrefLabel = cloneStrings(o.PrefLabel)
	return &c
}

func cloneActors(actors []Actor) []Actor {
	if actors == nil {
		return nil
	}
	out := make([]Actor, 0, len(actors))
	for _, a := range actors {
		a.Roles = cloneSlice(a.Roles)
		if a.Person != nil {
			p := *a.Person
			a.Person = &p
		}
		a.Organization = a.Organization.clone()
		out = append(out, a)
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
