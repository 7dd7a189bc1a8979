package version

import (
	"strings"
	"testing"
	"time"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	old := Version
	Version = v
	t.Cleanup(func() { Version = old })
}

func TestInfo_ReturnsFormattedString(t *testing.T) {
	info := Info()

	if !strings.Contains(info, "Assessor") {
		t.Errorf("Expected info to contain 'Assessor', got: %s", info)
	}
	if !strings.Contains(info, Version) {
		t.Errorf("Expected info to contain version '%s'", Version)
	}
	if !strings.Contains(info, Commit) {
		t.Errorf("Expected info to contain commit '%s'", Commit)
	}
}

func TestGet_ReturnsCorrectStruct(t *testing.T) {
	v := Get()

	if v.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, v.Version)
	}
	if v.Commit != Commit {
		t.Errorf("Expected commit %s, got %s", Commit, v.Commit)
	}
	if v.GoVersion == "" || v.Platform == "" {
		t.Errorf("Expected runtime fields, got %+v", v)
	}
}

func TestGet_Tag(t *testing.T) {
	withVersion(t, "dev")
	if tag := Get().Tag; tag != "" {
		t.Errorf("dev build must not carry a tag, got %q", tag)
	}

	withVersion(t, "1.4.0")
	if tag := Get().Tag; tag != "v1.4.0" {
		t.Errorf("Expected v1.4.0, got %q", tag)
	}
}

func TestIsRelease(t *testing.T) {
	tests := map[string]bool{
		"dev":        false,
		"1.2.3":      true,
		"v1.2.3":     true,
		"1.3.0-rc.1": false,
	}
	for v, want := range tests {
		withVersion(t, v)
		if got := IsRelease(); got != want {
			t.Errorf("IsRelease(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestStartDate_IsInitialized(t *testing.T) {
	if time.Since(StartDate) > time.Minute {
		t.Errorf("StartDate is too old: %s", StartDate)
	}
}
