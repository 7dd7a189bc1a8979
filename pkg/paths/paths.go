// Package paths locates per-user assessor files.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const configFileName = "config.yaml"

// ConfigDir returns the config directory for assessor.
// Order: XDG_CONFIG_HOME/assessor, platform-specific fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "assessor")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "Assessor")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "assessor")
}

// DefaultConfigFile returns ConfigDir/config.yaml when that file exists
// and "" otherwise, so a missing file never fails a run.
func DefaultConfigFile() string {
	p := filepath.Join(ConfigDir(), configFileName)
	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		return p
	}
	return ""
}
