// Package integration runs the catalog server against AWS services emulated
// by localstack. The rdss-metadata-catalog binary must be in PATH.
//
// `go test` flags supported:
//
//   -debug
//
//    Enable debug mode.
//
// Example: go test -v ./integration/... -debug
//
package integration
