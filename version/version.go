// Package version holds build information set by the linker.
package version

import "fmt"

// VERSION is replaced at build time, e.g.:
//
//	go build -ldflags "-X github.com/JiscSD/rdss-metadata-catalog/version.VERSION=v1.2.0"
var VERSION = "dev"

// AppVersion identifies this program in the generator header of the
// messages it produces.
func AppVersion() string {
	return fmt.Sprintf("rdss-metadata-catalog %s", VERSION)
}
