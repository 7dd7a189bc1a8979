package tomcat

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/vulntor/assessor/pkg/middleware"
)

const serverInfoEntry = "org/apache/catalina/util/ServerInfo.properties"

var errNoVersion = errors.New("no version found in RELEASE-NOTES or lib/catalina.jar")

// readVersion reads the engine name and version from home/RELEASE-NOTES,
// falling back to the ServerInfo.properties entry of lib/catalina.jar.
func (p *Parser) readVersion(ctx context.Context, home string) (string, string, error) {
	notes, found, err := middleware.ReadOptional(ctx, p.src, path.Join(home, "RELEASE-NOTES"))
	if err != nil {
		return "", "", err
	}
	if found {
		if name, version := ParseReleaseNotes(string(notes)); version != "" {
			return name, version, nil
		}
	}

	jar, found, err := middleware.ReadOptional(ctx, p.src, path.Join(home, "lib", "catalina.jar"))
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", errNoVersion
	}
	return ParseServerInfo(jar)
}

// ParseReleaseNotes finds the "Apache Tomcat Version 9.0.83" line.
func ParseReleaseNotes(text string) (name, version string) {
	for _, line := range strings.Split(text, "\n") {
		before, after, ok := strings.Cut(line, "Version")
		if !ok || !strings.Contains(before, "Tomcat") {
			continue
		}
		if v := strings.TrimSpace(after); v != "" {
			return strings.TrimSpace(before), strings.Fields(v)[0]
		}
	}
	return "", ""
}

// ParseServerInfo reads the version from catalina.jar. server.info
// ("Apache Tomcat/9.0.83") is preferred; server.number drops its fourth
// component.
func ParseServerInfo(jar []byte) (name, version string, err error) {
	zr, err := zip.NewReader(bytes.NewReader(jar), int64(len(jar)))
	if err != nil {
		return "", "", fmt.Errorf("catalina.jar: %w", err)
	}
	f, err := zr.Open(serverInfoEntry)
	if err != nil {
		return "", "", fmt.Errorf("catalina.jar: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", fmt.Errorf("catalina.jar: %w", err)
	}

	props := middleware.ParseProperties(string(data))
	if info := props["server.info"]; info != "" {
		n, v, ok := strings.Cut(info, "/")
		if ok && v != "" {
			return strings.TrimSpace(n), strings.TrimSpace(v), nil
		}
	}
	if number := props["server.number"]; number != "" {
		parts := strings.Split(number, ".")
		if len(parts) == 4 {
			parts = parts[:3]
		}
		return "Apache Tomcat", strings.Join(parts, "."), nil
	}
	return "", "", errNoVersion
}
