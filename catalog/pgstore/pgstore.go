// Package pgstore implements catalog.Store on PostgreSQL.
//
// Row locks are taken with SELECT ... FOR UPDATE, optionally NOWAIT, and
// bounded by the transaction's lock_timeout. Lock and unique constraint
// failures are translated into the catalog error types.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const driverName = "pgx"

var _ catalog.Store = (*Store)(nil)

type Option func(*Store)

// WithNoWait makes row locks fail immediately when they are held.
func WithNoWait(nowait bool) Option {
	return func(s *Store) { s.nowait = nowait }
}

// WithLockTimeout bounds how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// Store is a catalog.Store backed by a PostgreSQL database.
type Store struct {
	db          *sql.DB
	logger      logrus.FieldLogger
	nowait      bool
	lockTimeout time.Duration
}

// Open connects to the database at dsn.
func Open(ctx context.Context, logger logrus.FieldLogger, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return New(db, logger, opts...), nil
}

// New returns a Store using db.
func New(db *sql.DB, logger logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables and indexes used by the store.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "execute ddl")
		}
	}
	s.logger.Info("Database schema is up to date")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx implements catalog.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx catalog.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rerr := sqlTx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
				s.logger.Warn("Rollback failed: ", rerr)
			}
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "set lock timeout")
		}
	}

	if err := fn(ctx, &tx{tx: sqlTx, nowait: s.nowait}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(err, "commit")
	}
	return nil
}

type tx struct {
	tx     *sql.Tx
	nowait bool
}

var _ catalog.Tx = (*tx)(nil)

func (t *tx) lockClause() string {
	if t.nowait {
		return "FOR UPDATE NOWAIT"
	}
	return "FOR UPDATE"
}

func (t *tx) LockDataset(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := t.tx.QueryRowContext(ctx, "SELECT id FROM datasets WHERE id = $1 "+t.lockClause(), id).Scan(&got)
	if err == sql.ErrNoRows {
		return nil
	}
	return translate(err, "dataset:"+id.String())
}

func (t *tx) LockVersionSet(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := t.tx.QueryRowContext(ctx, "SELECT id FROM version_sets WHERE id = $1 "+t.lockClause(), id).Scan(&got)
	if err == sql.ErrNoRows {
		return nil
	}
	return translate(err, "version_set:"+id.String())
}

func (t *tx) GetDataset(ctx context.Context, id uuid.UUID) (*catalog.Dataset, error) {
	var doc []byte
	err := t.tx.QueryRowContext(ctx, "SELECT document FROM datasets WHERE id = $1", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, translate(err, "dataset:"+id.String())
	}
	return decodeDataset(doc)
}

func (t *tx) InsertDataset(ctx context.Context, d *catalog.Dataset) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode dataset")
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO datasets (id, catalog_id, persistent_identifier, normalized_doi, state,
			draft_of, version_set_id, version, created, removed, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.CatalogID, d.PersistentIdentifier, catalog.NormalizeDOI(d.PersistentIdentifier), string(d.State),
		d.DraftOf, d.VersionSetID, d.Version, d.Created, d.Removed, doc)
	return translate(err, "dataset:"+d.ID.String())
}

func (t *tx) UpdateDataset(ctx context.Context, d *catalog.Dataset) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode dataset")
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE datasets SET catalog_id = $2, persistent_identifier = $3, normalized_doi = $4, state = $5,
			draft_of = $6, version_set_id = $7, version = $8, created = $9, removed = $10, document = $11
		WHERE id = $1`,
		d.ID, d.CatalogID, d.PersistentIdentifier, catalog.NormalizeDOI(d.PersistentIdentifier), string(d.State),
		d.DraftOf, d.VersionSetID, d.Version, d.Created, d.Removed, doc)
	if err != nil {
		return translate(err, "dataset:"+d.ID.String())
	}
	return expectRow(res)
}

func (t *tx) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM datasets WHERE id = $1", id)
	if err != nil {
		return translate(err, "dataset:"+id.String())
	}
	return expectRow(res)
}

func (t *tx) NextDraft(ctx context.Context, id uuid.UUID) (*catalog.Dataset, error) {
	var doc []byte
	err := t.tx.QueryRowContext(ctx, "SELECT document FROM datasets WHERE draft_of = $1 LIMIT 1", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "dataset:"+id.String())
	}
	return decodeDataset(doc)
}

func (t *tx) ListVersionSet(ctx context.Context, id uuid.UUID) ([]*catalog.Dataset, error) {
	return t.queryDatasets(ctx,
		"SELECT document FROM datasets WHERE version_set_id = $1 ORDER BY version, created", id)
}

func (t *tx) CreateVersionSet(ctx context.Context, vs *catalog.VersionSet) error {
	_, err := t.tx.ExecContext(ctx, "INSERT INTO version_sets (id, created) VALUES ($1, $2)", vs.ID, vs.Created)
	return translate(err, "version_set:"+vs.ID.String())
}

func (t *tx) CreatePermissions(ctx context.Context, p *catalog.Permissions) error {
	editors, err := json.Marshal(nonNil(p.Editors))
	if err != nil {
		return errors.Wrap(err, "encode editors")
	}
	_, err = t.tx.ExecContext(ctx, "INSERT INTO permissions (id, editors) VALUES ($1, $2)", p.ID, editors)
	return translate(err, "permissions:"+p.ID.String())
}

func (t *tx) GetPermissions(ctx context.Context, id uuid.UUID) (*catalog.Permissions, error) {
	var editors []byte
	err := t.tx.QueryRowContext(ctx, "SELECT editors FROM permissions WHERE id = $1", id).Scan(&editors)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, translate(err, "permissions:"+id.String())
	}
	p := &catalog.Permissions{ID: id}
	if err := json.Unmarshal(editors, &p.Editors); err != nil {
		return nil, errors.Wrap(err, "decode editors")
	}
	return p, nil
}

func (t *tx) UpdatePermissions(ctx context.Context, p *catalog.Permissions) error {
	editors, err := json.Marshal(nonNil(p.Editors))
	if err != nil {
		return errors.Wrap(err, "encode editors")
	}
	res, err := t.tx.ExecContext(ctx, "UPDATE permissions SET editors = $2 WHERE id = $1", p.ID, editors)
	if err != nil {
		return translate(err, "permissions:"+p.ID.String())
	}
	return expectRow(res)
}

func (t *tx) PIDInUse(ctx context.Context, catalogID, pid string, exclude uuid.UUID) (bool, error) {
	var used bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM datasets
			WHERE catalog_id = $1 AND persistent_identifier = $2 AND id <> $3
		)`, catalogID, pid, exclude).Scan(&used)
	return used, translate(err, "datasets")
}

func (t *tx) DatasetsByNormalizedDOI(ctx context.Context, doi string, exclude uuid.UUID) ([]*catalog.Dataset, error) {
	return t.queryDatasets(ctx,
		"SELECT document FROM datasets WHERE normalized_doi = $1 AND id <> $2", doi, exclude)
}

func (t *tx) ClaimDOI(ctx context.Context, datasetID uuid.UUID, doi string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM doi_claims WHERE dataset_id = $1", datasetID); err != nil {
		return translate(err, "doi_claims")
	}
	if doi == "" {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, "INSERT INTO doi_claims (doi, dataset_id) VALUES ($1, $2)", doi, datasetID)
	return translate(err, "doi_claims")
}

func (t *tx) InsertSnapshot(ctx context.Context, s *catalog.Snapshot) error {
	doc, err := json.Marshal(s.Dataset)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO dataset_snapshots (id, dataset_id, reason, state, published_revision, draft_revision, created, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.DatasetID, s.Reason, string(s.State), s.PublishedRevision, s.DraftRevision, s.Created, doc)
	return translate(err, "snapshot:"+s.ID.String())
}

func (t *tx) DeleteSnapshots(ctx context.Context, datasetID uuid.UUID, state catalog.State) error {
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM dataset_snapshots WHERE dataset_id = $1 AND state = $2", datasetID, string(state))
	return translate(err, "dataset:"+datasetID.String())
}

func (t *tx) ListSnapshots(ctx context.Context, datasetID uuid.UUID) ([]*catalog.Snapshot, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, reason, state, published_revision, draft_revision, created, document
		FROM dataset_snapshots
		WHERE dataset_id = $1
		ORDER BY created, published_revision, draft_revision`, datasetID)
	if err != nil {
		return nil, translate(err, "dataset:"+datasetID.String())
	}
	defer func() { _ = rows.Close() }()

	var out []*catalog.Snapshot
	for rows.Next() {
		s := &catalog.Snapshot{DatasetID: datasetID}
		var (
			state string
			doc   []byte
		)
		if err := rows.Scan(&s.ID, &s.Reason, &state, &s.PublishedRevision, &s.DraftRevision, &s.Created, &doc); err != nil {
			return nil, errors.Wrap(err, "scan snapshot")
		}
		s.State = catalog.State(state)
		if s.Dataset, err = decodeDataset(doc); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate snapshots")
}

func (t *tx) queryDatasets(ctx context.Context, query string, args ...interface{}) ([]*catalog.Dataset, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "datasets")
	}
	defer func() { _ = rows.Close() }()

	var out []*catalog.Dataset
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "scan dataset")
		}
		d, err := decodeDataset(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, errors.Wrap(rows.Err(), "iterate datasets")
}

func decodeDataset(doc []byte) (*catalog.Dataset, error) {
	d := &catalog.Dataset{}
	if err := json.Unmarshal(doc, d); err != nil {
		return nil, errors.Wrap(err, "decode dataset")
	}
	d.MarkLoaded()
	return d, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// translate maps driver errors onto the catalog error types.
func translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return errors.Wrap(err, resource)
	}
	switch pgErr.Code {
	case pgerrcode.LockNotAvailable:
		return &catalog.LockUnavailableError{Resource: resource, Err: err}
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "datasets_catalog_pid_key":
			return catalog.NewValidationError("persistent_identifier",
				"Data catalog is not allowed to have multiple datasets with same value.")
		case "doi_claims_pkey":
			return catalog.NewValidationError("persistent_identifier", "DOI is already in use by another dataset.")
		case "datasets_draft_of_key":
			return &catalog.ConflictError{Field: "next_draft", Message: "Dataset already has a draft."}
		}
	}
	return errors.Wrap(err, resource)
}
