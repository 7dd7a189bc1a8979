// Package version provides version metadata for the application.
package version

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Masterminds/semver/v3"
)

// These variables are injected at build time using -ldflags.
var (
	// Version holds the current version of assessor.
	Version = "dev"
	// Commit holds the current version commit of assessor.
	Commit = "none"
	// BuildDate holds the build date of assessor.
	BuildDate = "unknown"
	// StartDate holds the start time of the process.
	StartDate = time.Now()
)

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version"`
	Tag       string `json:"tag,omitempty"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("Assessor %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns version information as a Struct. Tag is set when Version is
// a semantic version.
func Get() Struct {
	s := Struct{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if v, err := semver.NewVersion(Version); err == nil {
		s.Tag = "v" + v.String()
	}
	return s
}

// IsRelease reports whether Version is a semantic version without a
// prerelease suffix.
func IsRelease() bool {
	v, err := semver.NewVersion(Version)
	return err == nil && v.Prerelease() == ""
}
