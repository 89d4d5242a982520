// Package version exposes the build version injected at link time.
package version

// version is overridden at build time via -ldflags.
var version = "dev"

// Value returns the build version string.
func Value() string {
	return version
}
