package policy

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Static is a fixed set of catalog policies.
type Static struct {
	mu sync.RWMutex
	m  map[string]*catalog.CatalogPolicy
}

var _ catalog.CatalogLookup = (*Static)(nil)

func NewStatic(policies ...*catalog.CatalogPolicy) *Static {
	s := &Static{m: map[string]*catalog.CatalogPolicy{}}
	for _, p := range policies {
		s.Put(p)
	}
	return s
}

// LoadStatic reads a JSON array of catalog policies.
func LoadStatic(fs afero.Fs, path string) (*Static, error) {
	blob, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read catalog policies from %s", path)
	}
	var policies []*catalog.CatalogPolicy
	if err := json.Unmarshal(blob, &policies); err != nil {
		return nil, errors.Wrapf(err, "cannot decode catalog policies from %s", path)
	}
	for _, p := range policies {
		if p.ID == "" {
			return nil, errors.Errorf("catalog policy without id in %s", path)
		}
	}
	return NewStatic(policies...), nil
}

// Put adds or replaces a policy.
func (s *Static) Put(p *catalog.CatalogPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.m[p.ID] = &c
}

func (s *Static) Catalog(_ context.Context, id string) (*catalog.CatalogPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	c := *p
	return &c, nil
}
