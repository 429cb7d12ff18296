package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/google/uuid"
)

// FakePIDIssuer mints sequential identifiers and records its calls. Set Err
// to make every call fail.
type FakePIDIssuer struct {
	mu         sync.Mutex
	n          int
	Err        error
	URNs       []uuid.UUID
	DOIs       []uuid.UUID
	DOIUpdates []string
}

var _ catalog.PIDIssuer = (*FakePIDIssuer)(nil)

func (f *FakePIDIssuer) CreateURN(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.n++
	f.URNs = append(f.URNs, id)
	return fmt.Sprintf("urn:nbn:fi:att:test-%d", f.n), nil
}

func (f *FakePIDIssuer) CreateDOI(_ context.Context, d *catalog.Dataset) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.n++
	f.DOIs = append(f.DOIs, d.ID)
	return fmt.Sprintf("doi:10.23729/test-%d", f.n), nil
}

func (f *FakePIDIssuer) UpdateDOIMetadata(_ context.Context, doi string, _ *catalog.Dataset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.DOIUpdates = append(f.DOIUpdates, doi)
	return nil
}

// Calls returns the number of identifiers minted.
func (f *FakePIDIssuer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.URNs) + len(f.DOIs)
}

// RecordingPublisher keeps every event published.
type RecordingPublisher struct {
	mu     sync.Mutex
	Err    error
	events []catalog.Event
}

var _ catalog.EventPublisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) PublishEvent(_ context.Context, e catalog.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.Err
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []catalog.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]catalog.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Reset forgets the recorded events.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
