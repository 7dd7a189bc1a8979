package middleware

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/vulntor/assessor/pkg/conn"
)

// Entry is one directory entry of a Source.
type Entry struct {
	Name string
	Dir  bool
}

// Source reads configuration artifacts by slash separated path. Missing
// files are reported with an error matching fs.ErrNotExist.
type Source interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	ReadDir(ctx context.Context, name string) ([]Entry, error)
}

// IsNotExist reports whether err means the artifact does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

type fsSource struct {
	fsys fs.FS
}

// FromFS reads artifacts from fsys. Absolute paths are taken relative to
// the root of fsys, so a copy of a remote tree can be parsed with the
// remote paths.
func FromFS(fsys fs.FS) Source {
	return fsSource{fsys: fsys}
}

func fsPath(name string) string {
	p := strings.TrimPrefix(path.Clean("/"+name), "/")
	if p == "" {
		return "."
	}
	return p
}

func (s fsSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fs.ReadFile(s.fsys, fsPath(name))
}

func (s fsSource) ReadDir(ctx context.Context, name string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	des, err := fs.ReadDir(s.fsys, fsPath(name))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		out = append(out, Entry{Name: de.Name(), Dir: de.IsDir()})
	}
	return out, nil
}

// RemoteSource reads artifacts over an open session with cat and ls.
type RemoteSource struct {
	runner  conn.Runner
	elevate bool
}

// Remote returns a Source reading through runner.
func Remote(runner conn.Runner) *RemoteSource {
	return &RemoteSource{runner: runner}
}

// WithElevation prefixes every command with sudo when on is true.
func (s *RemoteSource) WithElevation(on bool) *RemoteSource {
	s.elevate = on
	return s
}

func (s *RemoteSource) run(ctx context.Context, op, name, command string) (string, error) {
	if s.elevate {
		command = conn.Elevate(command)
	}
	out, err := s.runner.Execute(ctx, command)
	if err != nil {
		return "", err
	}
	if out.ExitCode != 0 || (out.Stdout == "" && out.Failed()) {
		return "", &fs.PathError{Op: op, Path: name, Err: remoteCause(out)}
	}
	return out.Stdout, nil
}

func remoteCause(out conn.Output) error {
	msg := out.Message()
	switch {
	case strings.Contains(msg, "No such file"), strings.Contains(msg, "cannot find"):
		return fs.ErrNotExist
	case strings.Contains(msg, "Permission denied"):
		return fs.ErrPermission
	}
	return errors.New(msg)
}

// ReadFile runs cat on name.
func (s *RemoteSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	out, err := s.run(ctx, "read", name, "cat "+conn.ShellQuote(name))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// ReadDir lists name with ls -1 -p; a trailing slash marks directories.
func (s *RemoteSource) ReadDir(ctx context.Context, name string) ([]Entry, error) {
	out, err := s.run(ctx, "readdir", name, "ls -1 -p "+conn.ShellQuote(name))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(line, "/"), Dir: true})
			continue
		}
		entries = append(entries, Entry{Name: line})
	}
	return entries, nil
}

// Glob expands a wildcard in the last element of pattern. Patterns
// without wildcards are returned as they are; a missing directory yields
// no matches.
func Glob(ctx context.Context, src Source, pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	dir, base := path.Split(pattern)
	dir = path.Clean(dir)
	if strings.ContainsAny(dir, "*?[") {
		return nil, fmt.Errorf("wildcards are only supported in the last path element: %q", pattern)
	}
	if _, err := path.Match(base, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	entries, err := src.ReadDir(ctx, dir)
	if err != nil {
		if IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var matches []string
	for _, e := range entries {
		if e.Dir {
			continue
		}
		if ok, _ := path.Match(base, e.Name); ok {
			matches = append(matches, path.Join(dir, e.Name))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Subdirs lists the directory names under dir. A missing dir is empty.
func Subdirs(ctx context.Context, src Source, dir string) ([]string, error) {
	entries, err := src.ReadDir(ctx, dir)
	if err != nil {
		if IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Dir {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadOptional reads name and reports found=false, without error, when it
// does not exist.
func ReadOptional(ctx context.Context, src Source, name string) (data []byte, found bool, err error) {
	data, err = src.ReadFile(ctx, name)
	if err != nil {
		if IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
