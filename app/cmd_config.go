package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// maskedKeys are replaced by secretMask whenever the configuration is
// printed.
var maskedKeys = []string{"pid.api_key", "catalog.postgres_dsn"}

// NewCmdConfig prints the effective configuration, defaults and environment
// included, as TOML. The values of maskedKeys are never printed.
func NewCmdConfig(out io.Writer, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective catalog configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doConfig(out, config)
		},
	}
}

func doConfig(out io.Writer, config *Config) error {
	fmt.Fprintf(out, "# rdss-metadata-catalog configuration (masked: %s)\n", strings.Join(maskedKeys, ", "))
	_, err := fmt.Fprintf(out, "%s", config)
	return err
}
