package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/JiscSD/rdss-metadata-catalog/broker"
	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/catalog/memstore"
	"github.com/JiscSD/rdss-metadata-catalog/document"
	"github.com/JiscSD/rdss-metadata-catalog/internal/testutil"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokerStub keeps the subscriptions so tests can deliver messages.
type brokerStub struct {
	handlers map[message.MessageTypeEnum]broker.MessageHandler
	stopped  bool
}

func (b *brokerStub) Subscribe(t message.MessageTypeEnum, h broker.MessageHandler) {
	if b.handlers == nil {
		b.handlers = map[message.MessageTypeEnum]broker.MessageHandler{}
	}
	b.handlers[t] = h
}

func (b *brokerStub) Run()  {}
func (b *brokerStub) Stop() { b.stopped = true }

func (b *brokerStub) deliver(ctx context.Context, m *message.Message) error {
	return b.handlers[m.MessageHeader.MessageType](ctx, m)
}

// memStorage is an in-memory Storage.
type memStorage struct {
	mu  sync.Mutex
	err error
	m   map[string]string
}

func (s *memStorage) AssociateDataset(_ context.Context, messageID, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[messageID] = datasetID
	return nil
}

func (s *memStorage) GetDataset(_ context.Context, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.m[messageID]
	if !ok {
		return "", ErrUnknownMessage
	}
	return id, nil
}

type fixture struct {
	adapter *Adapter
	broker  *brokerStub
	svc     *catalog.Service
	storage *memStorage
	events  *testutil.RecordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	documents, err := document.NewValidator()
	require.NoError(t, err)
	f := &fixture{
		broker:  &brokerStub{},
		storage: &memStorage{},
		events:  &testutil.RecordingPublisher{},
	}
	f.svc = catalog.NewService(logger, memstore.New(), testutil.Catalogs(), &testutil.FakePIDIssuer{}, f.events, nil)
	f.adapter = New(logger, f.broker, f.svc, documents, f.storage)
	return f
}

func createMessage(t *testing.T, dataset *catalog.Dataset) *message.Message {
	t.Helper()
	doc, err := document.Encode(dataset)
	require.NoError(t, err)
	m := message.New(message.MessageTypeDatasetCreate, message.MessageClassCommand)
	m.MessageBody = &message.DatasetCreateRequest{Dataset: doc}
	return m
}

func requestMessage(t message.MessageTypeEnum, id uuid.UUID, correlation *message.Message) *message.Message {
	m := message.New(t, message.MessageClassCommand)
	m.MessageBody = &message.DatasetRequest{DatasetID: id}
	if correlation != nil {
		cid := correlation.MessageHeader.ID
		m.MessageHeader.CorrelationID = &cid
	}
	return m
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)

	for _, typ := range []message.MessageTypeEnum{
		message.MessageTypeDatasetCreate,
		message.MessageTypeDatasetUpdate,
		message.MessageTypeDatasetPublish,
		message.MessageTypeDatasetCreateDraft,
		message.MessageTypeDatasetCreateVersion,
		message.MessageTypeDatasetCreatePreservationVersion,
		message.MessageTypeDatasetDelete,
	} {
		assert.Contains(t, f.broker.handlers, typ)
	}
	assert.Len(t, f.broker.handlers, 7)
}

func TestCreateFromFixture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := &message.Message{}
	require.NoError(t, json.Unmarshal(testutil.Fixture(t, "messages/dataset_create.json"), m))
	require.NoError(t, f.broker.deliver(ctx, m))

	ref, err := f.storage.GetDataset(ctx, m.ID())
	require.NoError(t, err)
	d, err := f.svc.Get(ctx, uuid.MustParse(ref))
	require.NoError(t, err)
	assert.Equal(t, catalog.StatePublished, d.State)
	assert.Equal(t, "Sea ice thickness 2019-2021", d.Title["en"])
	require.Len(t, f.events.Events(), 1)
	assert.Equal(t, catalog.EventDatasetCreated, f.events.Events()[0].Kind)
}

func TestLifecycleByCorrelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	create := createMessage(t, testutil.NewDataset(testutil.WithFiles("ida", "f1")))
	require.NoError(t, f.broker.deliver(ctx, create))
	ref, err := f.storage.GetDataset(ctx, create.ID())
	require.NoError(t, err)
	id := uuid.MustParse(ref)

	publish := requestMessage(message.MessageTypeDatasetPublish, uuid.Nil, create)
	require.NoError(t, f.broker.deliver(ctx, publish))
	d, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatePublished, d.State)

	draftMsg := requestMessage(message.MessageTypeDatasetCreateDraft, id, nil)
	require.NoError(t, f.broker.deliver(ctx, draftMsg))
	draftRef, err := f.storage.GetDataset(ctx, draftMsg.ID())
	require.NoError(t, err)
	draft, err := f.svc.Get(ctx, uuid.MustParse(draftRef))
	require.NoError(t, err)
	assert.Equal(t, id, *draft.DraftOf)

	// The draft is edited through an update correlated to the draft command.
	draft.Title = map[string]string{"en": "Edited in a draft"}
	doc, err := document.Encode(draft)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &raw))
	delete(raw, "id")
	doc, err = json.Marshal(raw)
	require.NoError(t, err)
	update := message.New(message.MessageTypeDatasetUpdate, message.MessageClassCommand)
	update.MessageBody = &message.DatasetUpdateRequest{Dataset: doc}
	cid := draftMsg.MessageHeader.ID
	update.MessageHeader.CorrelationID = &cid
	require.NoError(t, f.broker.deliver(ctx, update))

	require.NoError(t, f.broker.deliver(ctx, requestMessage(message.MessageTypeDatasetPublish, draft.ID, nil)))
	d, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Edited in a draft", d.Title["en"])

	version := requestMessage(message.MessageTypeDatasetCreateVersion, id, nil)
	require.NoError(t, f.broker.deliver(ctx, version))
	versionRef, err := f.storage.GetDataset(ctx, version.ID())
	require.NoError(t, err)
	nv, err := f.svc.Get(ctx, uuid.MustParse(versionRef))
	require.NoError(t, err)
	assert.Equal(t, *d.VersionSetID, *nv.VersionSetID)

	del := message.New(message.MessageTypeDatasetDelete, message.MessageClassCommand)
	del.MessageBody = &message.DatasetDeleteRequest{DatasetID: nv.ID}
	require.NoError(t, f.broker.deliver(ctx, del))
	_, err = f.svc.Get(ctx, nv.ID)
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestCreatePreservationVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Create(ctx, testutil.NewDataset(
		testutil.WithFiles("ida", "f1"),
		testutil.WithPreservation(catalog.PreservationStateInitialized, "urn:uuid:contract"),
		testutil.Published()))
	require.NoError(t, err)

	m := requestMessage(message.MessageTypeDatasetCreatePreservationVersion, d.ID, nil)
	require.NoError(t, f.broker.deliver(ctx, m))

	ref, err := f.storage.GetDataset(ctx, m.ID())
	require.NoError(t, err)
	fork, err := f.svc.Get(ctx, uuid.MustParse(ref))
	require.NoError(t, err)
	assert.Equal(t, testutil.CatalogPAS, fork.CatalogID)
}

func TestHandlerFailures(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		msg      func(t *testing.T, f *fixture) *message.Message
		wantKind string
	}{
		"Invalid document": {
			msg: func(t *testing.T, f *fixture) *message.Message {
				m := message.New(message.MessageTypeDatasetCreate, message.MessageClassCommand)
				m.MessageBody = &message.DatasetCreateRequest{Dataset: json.RawMessage(`{"title": "x"}`)}
				return m
			},
			wantKind: "validation",
		},
		"No dataset id nor correlation": {
			msg: func(t *testing.T, f *fixture) *message.Message {
				return requestMessage(message.MessageTypeDatasetPublish, uuid.Nil, nil)
			},
			wantKind: "validation",
		},
		"Correlation without dataset": {
			msg: func(t *testing.T, f *fixture) *message.Message {
				other := message.New(message.MessageTypeDatasetPublish, message.MessageClassCommand)
				return requestMessage(message.MessageTypeDatasetPublish, uuid.Nil, other)
			},
			wantKind: "validation",
		},
		"Unknown dataset": {
			msg: func(t *testing.T, f *fixture) *message.Message {
				return requestMessage(message.MessageTypeDatasetCreateDraft, uuid.New(), nil)
			},
			wantKind: "not_found",
		},
		"Publishing twice": {
			msg: func(t *testing.T, f *fixture) *message.Message {
				d, err := f.svc.Create(ctx, testutil.NewDataset(testutil.Published()))
				require.NoError(t, err)
				return requestMessage(message.MessageTypeDatasetPublish, d.ID, nil)
			},
			wantKind: "validation",
		},
		"Draft of an unpublished dataset": {
			msg: func(t *testing.T, f *fixture) *message.Message {
				d, err := f.svc.Create(ctx, testutil.NewDataset())
				require.NoError(t, err)
				return requestMessage(message.MessageTypeDatasetCreateDraft, d.ID, nil)
			},
			wantKind: "validation",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			err := f.broker.deliver(ctx, tc.msg(t, f))
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, catalog.ErrorKind(err))
		})
	}
}

func TestAssociationFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t)
	f.storage.err = errors.New("throttled")

	err := f.broker.deliver(context.Background(), createMessage(t, testutil.NewDataset()))

	assert.NoError(t, err)
	assert.Len(t, f.events.Events(), 1)
}

func TestRunAndStop(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		f.adapter.Run()
		close(done)
	}()

	f.adapter.Stop()
	<-done
	assert.True(t, f.broker.stopped)
}
