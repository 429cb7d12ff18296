package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveAppEnvs(t *testing.T) {
	have := removeAppEnvs([]string{
		"HOME=/root",
		"RDSS_METADATA_CATALOG_CATALOG_STORE=postgres",
		"AWS_REGION=us-east-1",
	})
	assert.Equal(t, []string{"HOME=/root", "AWS_REGION=us-east-1"}, have)
}

func TestExecArguments(t *testing.T) {
	cmd := Server("-v", "debug").WithConfig("/etc/catalog.toml").WithEnv([]string{"A=1"}).exec(context.Background())
	assert.Equal(t, []string{binary, "server", "--config", "/etc/catalog.toml", "-v", "debug"}, cmd.Args)
	assert.Contains(t, cmd.Env, "A=1")
}
