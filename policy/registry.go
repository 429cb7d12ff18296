// Package policy provides catalog.CatalogLookup implementations.
package policy

import (
	"context"
	"sync"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// DefaultReloadInterval is used when the registry is created with a zero
// interval.
const DefaultReloadInterval = 30 * time.Second

// Registry keeps the catalog policies stored in a DynamoDB table in memory
// and reloads them periodically.
type Registry struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         logrus.FieldLogger
	dynamodbClient dynamodbiface.DynamoDBAPI
	dynamodbTable  string
	interval       time.Duration
	reloadCh       chan struct{}
	stopCh         chan chan struct{}
	r              map[string]*catalog.CatalogPolicy
	sync.RWMutex
}

var _ catalog.CatalogLookup = (*Registry)(nil)

// NewRegistry returns a usable registry. It fails when the first load does.
func NewRegistry(logger logrus.FieldLogger, dynamodbClient dynamodbiface.DynamoDBAPI, dynamodbTable string, interval time.Duration) (*Registry, error) {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	r := &Registry{
		logger:         logger,
		dynamodbClient: dynamodbClient,
		dynamodbTable:  dynamodbTable,
		interval:       interval,
		reloadCh:       make(chan struct{}),
		stopCh:         make(chan chan struct{}),
		r:              make(map[string]*catalog.CatalogPolicy),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	if err := r.load(); err != nil {
		r.cancel()
		return nil, errors.Wrap(err, "registry failed to load from source")
	}
	go r.loop()
	return r, nil
}

// load scans the table and replaces the in-memory policies. Scans are
// paginated.
func (r *Registry) load() error {
	var items []map[string]*dynamodb.AttributeValue
	err := r.dynamodbClient.ScanPagesWithContext(r.ctx, &dynamodb.ScanInput{
		TableName:      aws.String(r.dynamodbTable),
		ConsistentRead: aws.Bool(true),
	}, func(page *dynamodb.ScanOutput, last bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return errors.Wrap(err, "failed to scan registry")
	}
	if len(items) < 1 {
		r.logger.WithField("table", r.dynamodbTable).Warn("Registry has been loaded but it is empty")
	}
	recs := []map[string]interface{}{}
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &recs); err != nil {
		return errors.Wrap(err, "failed to unmarshal registry records")
	}
	newMap := make(map[string]*catalog.CatalogPolicy, len(recs))
	for _, rec := range recs {
		p, err := fromRecord(rec)
		if err != nil {
			return err
		}
		newMap[p.ID] = p
	}
	r.Lock()
	r.r = newMap
	r.Unlock()
	return nil
}

// fromRecord converts a loosely typed table item. Flags may be stored as
// booleans, numbers or strings.
func fromRecord(rec map[string]interface{}) (*catalog.CatalogPolicy, error) {
	id := cast.ToString(rec["id"])
	if id == "" {
		return nil, errors.New("registry record without id")
	}
	p := &catalog.CatalogPolicy{
		ID:                       id,
		DatasetVersioningEnabled: cast.ToBool(rec["datasetVersioningEnabled"]),
		IsExternal:               cast.ToBool(rec["isExternal"]),
		AllowExternalPID:         cast.ToBool(rec["allowExternalPid"]),
		AllowGeneratedPID:        cast.ToBool(rec["allowGeneratedPid"]),
		AllowRemoteResources:     cast.ToBool(rec["allowRemoteResources"]),
		StorageServices:          cast.ToStringSlice(rec["storageServices"]),
	}
	for _, t := range cast.ToStringSlice(rec["allowedPidTypes"]) {
		switch catalog.PIDType(t) {
		case catalog.PIDTypeURN, catalog.PIDTypeDOI:
			p.AllowedPIDTypes = append(p.AllowedPIDTypes, catalog.PIDType(t))
		default:
			return nil, errors.Errorf("registry record %s has unknown pid type %q", id, t)
		}
	}
	return p, nil
}

func (r *Registry) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case ch := <-r.stopCh:
			r.cancel()
			close(ch)
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.reloadCh:
		}
		if err := r.load(); err != nil {
			r.logger.Error("Registry reload failed: ", err)
		}
	}
}

// Catalog implements catalog.CatalogLookup.
func (r *Registry) Catalog(_ context.Context, id string) (*catalog.CatalogPolicy, error) {
	r.RLock()
	defer r.RUnlock()
	p, ok := r.r[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *Registry) Log() {
	r.RLock()
	defer r.RUnlock()
	for id, p := range r.r {
		r.logger.WithFields(logrus.Fields{
			"catalog":    id,
			"versioning": p.DatasetVersioningEnabled,
			"external":   p.IsExternal,
			"pidTypes":   p.AllowedPIDTypes,
			"storage":    p.StorageServices,
		}).Warn("Registry entry found")
	}
}

// Reload is a non-blocking request to reload the registry. The operation is
// omitted if it is already happening.
func (r *Registry) Reload() {
	select {
	case r.reloadCh <- struct{}{}:
		r.logger.Warn("Reloading registry")
	default:
		r.logger.Warn("The registry is currently reloading the entries")
	}
}

func (r *Registry) Stop() {
	ch := make(chan struct{})
	r.stopCh <- ch
	<-ch
}
