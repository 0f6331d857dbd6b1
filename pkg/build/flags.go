// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata linked into the binary at compile time
// (name, timestamp, commit and version). The CLI uses it for --version and
// the startup banner.
//
//	go build -ldflags "-X spectral/pkg/build.buildName=spectral \
//	    -X spectral/pkg/build.buildVersion=0.2.0 ..."
//
// A binary built without any of the flags (go run, go test) is treated as a
// development build and reports "dev" values.
package build

import "fmt"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String returns a one-line summary suitable for logs.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

const devValue = "dev"

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "spectral",
		Description: "Real-time spectral analysis engine",
		Time:        devValue,
		Commit:      devValue,
		Version:     devValue,
	}
)

// Initialize copies the ldflags variables into the build information. When
// no flag was provided the development defaults are kept. A partially
// flagged build is a packaging mistake and returns an error naming the first
// missing flag.
func Initialize() error {
	if buildName == "" && buildTime == "" && buildCommit == "" && buildVersion == "" {
		return nil
	}
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
