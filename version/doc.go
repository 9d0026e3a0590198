// Package version reports the verfs build.
//
// Release builds inject Version, Commit and Date with -ldflags:
//
//	-X github.com/dendrascience/verfs/version.Version=v0.3.0
//
// Builds without them (go install, go run) fall back to the module version
// and VCS stamps that the Go toolchain records in the binary.
package version
