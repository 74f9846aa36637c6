// Package version holds the software version reported by the buoy in the
// sw-version header of every upload.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/buoylink/buoylink/pkg/version.Version=...".
var Version = "0.3.0"
