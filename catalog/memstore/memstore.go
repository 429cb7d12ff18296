// Package memstore provides an in-process catalog.Store.
//
// Transactions read committed records and buffer their writes until commit.
// Row locks are held per dataset or version set until the transaction ends,
// so a transaction that waits for a lock reads the state committed by the
// previous holder.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var _ catalog.Store = (*Store)(nil)

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithNoWait makes row locks fail immediately when they are held.
func WithNoWait(nowait bool) Option {
	return func(s *Store) { s.nowait = nowait }
}

type Store struct {
	mu          sync.RWMutex
	datasets    map[uuid.UUID]*catalog.Dataset
	versionSets map[uuid.UUID]*catalog.VersionSet
	permissions map[uuid.UUID]*catalog.Permissions
	snapshots   map[uuid.UUID][]*catalog.Snapshot
	doiClaims   map[string]uuid.UUID

	locks       *lockTable
	lockTimeout time.Duration
	nowait      bool
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		datasets:    map[uuid.UUID]*catalog.Dataset{},
		versionSets: map[uuid.UUID]*catalog.VersionSet{},
		permissions: map[uuid.UUID]*catalog.Permissions{},
		snapshots:   map[uuid.UUID][]*catalog.Snapshot{},
		doiClaims:   map[string]uuid.UUID{},
		locks:       newLockTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx implements catalog.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx catalog.Tx) error) error {
	tx := newTx(s)
	defer tx.releaseLocks()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(tx); err != nil {
		return err
	}
	if err := s.checkClaims(tx); err != nil {
		return err
	}

	for id := range tx.deleted {
		delete(s.datasets, id)
		delete(s.snapshots, id)
		s.releaseClaimLocked(id)
	}
	for id, doi := range tx.claims {
		if tx.deleted[id] {
			continue
		}
		s.releaseClaimLocked(id)
		if doi != "" {
			s.doiClaims[doi] = id
		}
	}
	for id, d := range tx.datasets {
		s.datasets[id] = d
	}
	for id, vs := range tx.versionSets {
		s.versionSets[id] = vs
	}
	for id, p := range tx.permissions {
		s.permissions[id] = p
	}
	for id, list := range tx.snapshots {
		if tx.deleted[id] {
			continue
		}
		s.snapshots[id] = list
	}
	return nil
}

// checkUnique enforces the unique (catalog, identifier) pair for the
// datasets written by tx. It runs with s.mu held.
func (s *Store) checkUnique(tx *tx) error {
	for _, d := range tx.datasets {
		if d.PersistentIdentifier == "" || d.CatalogID == "" {
			continue
		}
		for _, other := range s.mergedLocked(tx) {
			if other.ID == d.ID {
				continue
			}
			if other.CatalogID == d.CatalogID && other.PersistentIdentifier == d.PersistentIdentifier {
				return catalog.NewValidationError("persistent_identifier",
					"Data catalog is not allowed to have multiple datasets with same value.")
			}
		}
	}
	return nil
}

// checkClaims rejects DOI claims that collide with a claim held by another
// dataset, committed or made within tx. It runs with s.mu held.
func (s *Store) checkClaims(tx *tx) error {
	claimed := map[string]uuid.UUID{}
	for id, doi := range tx.claims {
		if doi == "" || tx.deleted[id] {
			continue
		}
		if other, ok := claimed[doi]; ok && other != id {
			return errDOIInUse()
		}
		claimed[doi] = id
		owner, ok := s.doiClaims[doi]
		if !ok || owner == id || tx.deleted[owner] {
			continue
		}
		if next, ok := tx.claims[owner]; ok && next != doi {
			continue
		}
		return errDOIInUse()
	}
	return nil
}

func errDOIInUse() error {
	return catalog.NewValidationError("persistent_identifier", "DOI is already in use by another dataset.")
}

func (s *Store) releaseClaimLocked(id uuid.UUID) {
	for doi, owner := range s.doiClaims {
		if owner == id {
			delete(s.doiClaims, doi)
		}
	}
}

// mergedLocked returns the datasets as seen by tx. It must be called with
// s.mu held. Returned records are shared and must not be modified.
func (s *Store) mergedLocked(tx *tx) []*catalog.Dataset {
	out := make([]*catalog.Dataset, 0, len(s.datasets)+len(tx.datasets))
	for id, d := range s.datasets {
		if tx.deleted[id] {
			continue
		}
		if _, ok := tx.datasets[id]; ok {
			continue
		}
		out = append(out, d)
	}
	for id, d := range tx.datasets {
		if tx.deleted[id] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Len returns the number of committed datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

type tx struct {
	store       *Store
	datasets    map[uuid.UUID]*catalog.Dataset
	deleted     map[uuid.UUID]bool
	versionSets map[uuid.UUID]*catalog.VersionSet
	permissions map[uuid.UUID]*catalog.Permissions
	snapshots   map[uuid.UUID][]*catalog.Snapshot
	claims      map[uuid.UUID]string
	held        []string
}

var _ catalog.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		store:       s,
		datasets:    map[uuid.UUID]*catalog.Dataset{},
		deleted:     map[uuid.UUID]bool{},
		versionSets: map[uuid.UUID]*catalog.VersionSet{},
		permissions: map[uuid.UUID]*catalog.Permissions{},
		snapshots:   map[uuid.UUID][]*catalog.Snapshot{},
		claims:      map[uuid.UUID]string{},
	}
}

func (t *tx) lock(ctx context.Context, key string) error {
	for _, h := range t.held {
		if h == key {
			return nil
		}
	}
	if err := t.store.locks.acquire(ctx, key, t.store.nowait, t.store.lockTimeout); err != nil {
		return &catalog.LockUnavailableError{Resource: key, Err: err}
	}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) releaseLocks() {
	for _, key := range t.held {
		t.store.locks.release(key)
	}
	t.held = nil
}

func (t *tx) LockDataset(ctx context.Context, id uuid.UUID) error {
	if !t.exists(id) {
		return nil
	}
	return t.lock(ctx, "dataset:"+id.String())
}

func (t *tx) LockVersionSet(ctx context.Context, id uuid.UUID) error {
	return t.lock(ctx, "version_set:"+id.String())
}

func (t *tx) exists(id uuid.UUID) bool {
	if t.deleted[id] {
		return false
	}
	if _, ok := t.datasets[id]; ok {
		return true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.datasets[id]
	return ok
}

func (t *tx) GetDataset(ctx context.Context, id uuid.UUID) (*catalog.Dataset, error) {
	if t.deleted[id] {
		return nil, catalog.ErrNotFound
	}
	if d, ok := t.datasets[id]; ok {
		return loaded(d), nil
	}
	t.store.mu.RLock()
	d, ok := t.store.datasets[id]
	t.store.mu.RUnlock()
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return loaded(d), nil
}

func loaded(d *catalog.Dataset) *catalog.Dataset {
	c := d.Clone()
	c.MarkLoaded()
	return c
}

func (t *tx) InsertDataset(ctx context.Context, d *catalog.Dataset) error {
	if t.exists(d.ID) {
		return errors.Errorf("dataset %s already exists", d.ID)
	}
	delete(t.deleted, d.ID)
	t.datasets[d.ID] = d.Clone()
	return nil
}

func (t *tx) UpdateDataset(ctx context.Context, d *catalog.Dataset) error {
	if !t.exists(d.ID) {
		return catalog.ErrNotFound
	}
	t.datasets[d.ID] = d.Clone()
	return nil
}

func (t *tx) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if !t.exists(id) {
		return catalog.ErrNotFound
	}
	delete(t.datasets, id)
	delete(t.snapshots, id)
	delete(t.claims, id)
	t.deleted[id] = true
	return nil
}

func (t *tx) all() []*catalog.Dataset {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.mergedLocked(t)
}

func (t *tx) NextDraft(ctx context.Context, id uuid.UUID) (*catalog.Dataset, error) {
	for _, d := range t.all() {
		if d.DraftOf != nil && *d.DraftOf == id {
			return loaded(d), nil
		}
	}
	return nil, nil
}

func (t *tx) ListVersionSet(ctx context.Context, id uuid.UUID) ([]*catalog.Dataset, error) {
	var out []*catalog.Dataset
	for _, d := range t.all() {
		if d.VersionSetID != nil && *d.VersionSetID == id {
			out = append(out, loaded(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (t *tx) CreateVersionSet(ctx context.Context, vs *catalog.VersionSet) error {
	c := *vs
	t.versionSets[vs.ID] = &c
	return nil
}

func (t *tx) CreatePermissions(ctx context.Context, p *catalog.Permissions) error {
	c := clonePermissions(p)
	t.permissions[p.ID] = c
	return nil
}

func (t *tx) GetPermissions(ctx context.Context, id uuid.UUID) (*catalog.Permissions, error) {
	if p, ok := t.permissions[id]; ok {
		return clonePermissions(p), nil
	}
	t.store.mu.RLock()
	p, ok := t.store.permissions[id]
	t.store.mu.RUnlock()
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return clonePermissions(p), nil
}

func (t *tx) UpdatePermissions(ctx context.Context, p *catalog.Permissions) error {
	if _, err := t.GetPermissions(ctx, p.ID); err != nil {
		return err
	}
	t.permissions[p.ID] = clonePermissions(p)
	return nil
}

func clonePermissions(p *catalog.Permissions) *catalog.Permissions {
	c := &catalog.Permissions{ID: p.ID, Editors: make([]string, len(p.Editors))}
	copy(c.Editors, p.Editors)
	return c
}

func (t *tx) PIDInUse(ctx context.Context, catalogID, pid string, exclude uuid.UUID) (bool, error) {
	for _, d := range t.all() {
		if d.ID != exclude && d.CatalogID == catalogID && d.PersistentIdentifier == pid {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) DatasetsByNormalizedDOI(ctx context.Context, doi string, exclude uuid.UUID) ([]*catalog.Dataset, error) {
	var out []*catalog.Dataset
	for _, d := range t.all() {
		if d.ID != exclude && d.PersistentIdentifier != "" && catalog.NormalizeDOI(d.PersistentIdentifier) == doi {
			out = append(out, loaded(d))
		}
	}
	return out, nil
}

// ClaimDOI records doi as held by the dataset. Collisions are detected when
// the transaction commits.
func (t *tx) ClaimDOI(ctx context.Context, datasetID uuid.UUID, doi string) error {
	t.claims[datasetID] = doi
	return nil
}

// snapshotList returns the copy-on-write snapshot list of a dataset.
func (t *tx) snapshotList(id uuid.UUID) []*catalog.Snapshot {
	if list, ok := t.snapshots[id]; ok {
		return list
	}
	t.store.mu.RLock()
	committed := t.store.snapshots[id]
	t.store.mu.RUnlock()
	list := make([]*catalog.Snapshot, len(committed))
	copy(list, committed)
	t.snapshots[id] = list
	return list
}

func (t *tx) InsertSnapshot(ctx context.Context, s *catalog.Snapshot) error {
	c := *s
	c.Dataset = s.Dataset.Clone()
	t.snapshots[s.DatasetID] = append(t.snapshotList(s.DatasetID), &c)
	return nil
}

func (t *tx) DeleteSnapshots(ctx context.Context, datasetID uuid.UUID, state catalog.State) error {
	list := t.snapshotList(datasetID)
	kept := make([]*catalog.Snapshot, 0, len(list))
	for _, s := range list {
		if s.State != state {
			kept = append(kept, s)
		}
	}
	t.snapshots[datasetID] = kept
	return nil
}

func (t *tx) ListSnapshots(ctx context.Context, datasetID uuid.UUID) ([]*catalog.Snapshot, error) {
	list := t.snapshotList(datasetID)
	out := make([]*catalog.Snapshot, 0, len(list))
	for _, s := range list {
		c := *s
		c.Dataset = s.Dataset.Clone()
		out = append(out, &c)
	}
	return out, nil
}
