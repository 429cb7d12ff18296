package policy_test

import (
	"context"
	"testing"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/policy"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStatic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/catalogs.json", []byte(`[
		{"id": "ida", "dataset_versioning_enabled": true, "allow_generated_pid": true, "allowed_pid_types": ["URN"], "storage_services": ["ida"]},
		{"id": "urn:nbn:fi:att:data-catalog-pas", "allow_generated_pid": true, "allowed_pid_types": ["DOI"], "storage_services": ["pas"]}
	]`), 0644))

	s, err := policy.LoadStatic(fs, "/etc/catalogs.json")
	require.NoError(t, err)

	p, err := s.Catalog(context.Background(), "ida")
	require.NoError(t, err)
	assert.True(t, p.AllowsPIDType(catalog.PIDTypeURN))
	assert.False(t, p.AllowsPIDType(catalog.PIDTypeDOI))
	assert.True(t, p.AllowsStorageService("ida"))

	_, err = s.Catalog(context.Background(), "missing")
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestLoadStaticErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte(`{`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/noid.json", []byte(`[{"is_external": true}]`), 0644))

	tests := map[string]string{
		"Missing file":      "/missing.json",
		"Invalid JSON":      "/bad.json",
		"Policy without id": "/noid.json",
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := policy.LoadStatic(fs, path)
			assert.Error(t, err)
		})
	}
}

func TestStaticReturnsCopies(t *testing.T) {
	s := policy.NewStatic(&catalog.CatalogPolicy{ID: "c", StorageServices: []string{"ida"}})
	p, err := s.Catalog(context.Background(), "c")
	require.NoError(t, err)
	p.ID = "changed"

	again, err := s.Catalog(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "c", again.ID)
}
