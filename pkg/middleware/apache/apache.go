// Package apache parses Apache HTTP Server configuration into an instance
// tree.
package apache

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/middleware"
)

// Enclosure types kept on the instance. Other enclosures are walked but
// not stored.
const (
	IfModule    = "IfModule"
	VirtualHost = "VirtualHost"
	Directory   = "Directory"
	Files       = "Files"
	Location    = "Location"
	Proxy       = "Proxy"
)

// Module is one LoadModule directive.
type Module struct {
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
}

// Host is one VirtualHost block.
type Host struct {
	Address      string   `json:"address" yaml:"address"`
	ServerName   string   `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	DocumentRoot string   `json:"document_root,omitempty" yaml:"document_root,omitempty"`
	SSL          bool     `json:"ssl" yaml:"ssl"`
	Lines        []string `json:"lines" yaml:"lines"`
}

// Instance is an assembled httpd configuration. Enclosures maps an
// enclosure type to its blocks keyed by their value.
type Instance struct {
	ConfigPath   string                         `json:"config_path" yaml:"config_path"`
	ServerRoot   string                         `json:"server_root" yaml:"server_root"`
	ConfigFiles  []middleware.ConfigFile        `json:"config_files" yaml:"config_files"`
	Defines      map[string]string              `json:"defines" yaml:"defines"`
	Includes     []string                       `json:"includes,omitempty" yaml:"includes,omitempty"`
	Listen       []int                          `json:"listen" yaml:"listen"`
	ServerName   string                         `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	ServerAdmin  string                         `json:"server_admin,omitempty" yaml:"server_admin,omitempty"`
	DocumentRoot string                         `json:"document_root,omitempty" yaml:"document_root,omitempty"`
	User         string                         `json:"user,omitempty" yaml:"user,omitempty"`
	Group        string                         `json:"group,omitempty" yaml:"group,omitempty"`
	Modules      []Module                       `json:"modules" yaml:"modules"`
	RunningType  string                         `json:"running_type,omitempty" yaml:"running_type,omitempty"`
	SSL          bool                           `json:"ssl" yaml:"ssl"`
	KeepAlive    map[string]string              `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty"`
	Settings     map[string]string              `json:"settings,omitempty" yaml:"settings,omitempty"`
	LogFormats   []string                       `json:"log_formats,omitempty" yaml:"log_formats,omitempty"`
	ErrorDocs    map[string]string              `json:"error_documents,omitempty" yaml:"error_documents,omitempty"`
	Connectors   []string                       `json:"connector_files,omitempty" yaml:"connector_files,omitempty"`
	Hosts        []Host                         `json:"virtual_hosts,omitempty" yaml:"virtual_hosts,omitempty"`
	Enclosures   map[string]map[string][]string `json:"enclosures" yaml:"enclosures"`
	Warnings     []string                       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Runtime      middleware.Runtime             `json:"runtime" yaml:"runtime"`
}

// Kind implements middleware.Instance.
func (i *Instance) Kind() middleware.Kind { return middleware.KindApache }

// Records implements middleware.Instance.
func (i *Instance) Records() []middleware.Record { return []middleware.Record{ToRecord(i)} }

// Enclosure returns the lines stored for the given enclosure type and key.
func (i *Instance) Enclosure(typ, key string) []string {
	return i.Enclosures[typ][key]
}

var (
	keepAliveKeys = map[string]bool{"KeepAlive": true, "MaxKeepAliveRequests": true, "KeepAliveTimeout": true}
	settingKeys   = map[string]bool{"UseCanonicalName": true, "ServerTokens": true, "TraceEnable": true, "HostnameLookups": true, "ServerSignature": true}
	connectorKeys = map[string]bool{"WebSpherePluginConfig": true, "JkWorkersFile": true, "JkMountFile": true}
	mpmTypes      = map[string]string{"mpm_event_module": "Event", "mpm_prefork_module": "Prefork", "mpm_worker_module": "Worker"}
	storedTypes   = map[string]bool{IfModule: true, VirtualHost: true, Directory: true, Files: true, Location: true, Proxy: true}
)

// Parser reads httpd.conf and its includes from a Source.
type Parser struct {
	src    middleware.Source
	logger zerolog.Logger
}

// NewParser returns a parser reading from src.
func NewParser(src middleware.Source) *Parser {
	return &Parser{src: src, logger: logging.Component("middleware.apache")}
}

// WithLogger replaces the logger.
func (p *Parser) WithLogger(logger zerolog.Logger) *Parser {
	p.logger = logger
	return p
}

// Parse is shorthand for NewParser(src).Parse(ctx, confPath).
func Parse(ctx context.Context, src middleware.Source, confPath string) (*Instance, error) {
	return NewParser(src).Parse(ctx, confPath)
}

type file struct {
	path  string
	lines []string
}

// Parse reads confPath, resolves Define variables, expands one level of
// Include directives relative to ServerRoot and walks every enclosure.
// Problems that leave the instance usable are listed in Warnings.
func (p *Parser) Parse(ctx context.Context, confPath string) (*Instance, error) {
	if strings.TrimSpace(confPath) == "" {
		return nil, middleware.NewInsufficientInputError("apache config path is empty", nil)
	}
	data, err := p.src.ReadFile(ctx, confPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, middleware.NewReadError(confPath, err)
	}
	root := file{path: confPath, lines: logicalLines(string(data))}
	if len(root.lines) == 0 {
		return nil, middleware.NewInsufficientInputError(confPath+" has no directives", nil)
	}

	inst := &Instance{
		ConfigPath: confPath,
		Defines:    map[string]string{},
		KeepAlive:  map[string]string{},
		Settings:   map[string]string{},
		ErrorDocs:  map[string]string{},
		Enclosures: map[string]map[string][]string{},
	}
	inst.ConfigFiles = append(inst.ConfigFiles, middleware.ConfigFile{Path: confPath, Content: string(data)})

	// First pass: symbol table, ServerRoot and includes of the root file.
	var includes []string
	for _, line := range root.lines {
		name, args := directive(line)
		switch name {
		case "Define":
			define(inst.Defines, args)
		case "ServerRoot":
			inst.ServerRoot = unquote(substitute(inst.Defines, args))
		case "Include", "IncludeOptional":
			includes = append(includes, unquote(substitute(inst.Defines, args)))
		}
	}
	if inst.ServerRoot == "" {
		inst.ServerRoot = defaultServerRoot(confPath)
	}

	files := []file{root}
	for _, inc := range includes {
		inst.Includes = append(inst.Includes, inc)
		pattern := inc
		if !path.IsAbs(pattern) {
			pattern = path.Join(inst.ServerRoot, pattern)
		}
		matches, err := middleware.Glob(ctx, p.src, pattern)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			inst.warn("include %s: %v", inc, err)
			continue
		}
		for _, m := range matches {
			b, found, err := middleware.ReadOptional(ctx, p.src, m)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				inst.warn("include %s: %v", m, err)
				continue
			}
			if !found {
				p.logger.Debug().Str("include", m).Msg("include not found")
				continue
			}
			inst.ConfigFiles = append(inst.ConfigFiles, middleware.ConfigFile{Path: m, Content: string(b)})
			f := file{path: m, lines: logicalLines(string(b))}
			for _, line := range f.lines {
				if name, args := directive(line); name == "Define" {
					define(inst.Defines, args)
				}
			}
			files = append(files, f)
		}
	}

	// Second pass: directives and enclosures with variables resolved.
	var sslEngine, sslCert bool
	for _, f := range files {
		w := newWalker(inst)
		for _, raw := range f.lines {
			line := substitute(inst.Defines, raw)
			if w.walk(line) {
				continue
			}
			name, args := directive(line)
			inHost := w.inside(VirtualHost)
			switch {
			case name == "Listen":
				inst.addListen(args)
			case name == "ServerName" && !inHost:
				inst.ServerName = unquote(args)
			case name == "ServerAdmin" && !inHost:
				inst.ServerAdmin = unquote(args)
			case name == "DocumentRoot" && !inHost:
				inst.DocumentRoot = unquote(args)
			case name == "User":
				inst.User = unquote(args)
			case name == "Group":
				inst.Group = unquote(args)
			case name == "LoadModule":
				if fields := strings.Fields(args); len(fields) >= 2 {
					inst.Modules = append(inst.Modules, Module{Name: fields[0], Location: unquote(fields[1])})
				}
			case name == "LogFormat":
				inst.LogFormats = append(inst.LogFormats, args)
			case name == "ErrorDocument":
				if code, target, ok := strings.Cut(args, " "); ok {
					inst.ErrorDocs[code] = unquote(strings.TrimSpace(target))
				}
			case name == "SSLEngine":
				sslEngine = sslEngine || strings.EqualFold(args, "on")
			case strings.HasPrefix(name, "SSLCertificate"):
				sslCert = true
			case keepAliveKeys[name]:
				inst.KeepAlive[name] = args
			case settingKeys[name]:
				inst.Settings[name] = args
			case connectorKeys[name]:
				inst.Connectors = append(inst.Connectors, unquote(args))
			}
		}
		if unclosed := w.unclosed(); unclosed != "" {
			inst.warn("%s: enclosure <%s> is not closed", f.path, unclosed)
		}
	}
	inst.SSL = sslEngine && sslCert
	inst.RunningType = runningType(inst.Modules)
	return inst, nil
}

func (i *Instance) warn(format string, args ...any) {
	i.Warnings = append(i.Warnings, fmt.Sprintf(format, args...))
}

func (i *Instance) addListen(args string) {
	f := strings.Fields(args)
	if len(f) == 0 {
		return
	}
	port, err := listenPort(f[0])
	if err != nil {
		i.warn("Listen %s: %v", args, err)
		return
	}
	i.Listen = middleware.AppendPort(i.Listen, port)
}

// listenPort reads "80", "0.0.0.0:80" or "[::]:443".
func listenPort(s string) (int, error) {
	if j := strings.LastIndex(s, ":"); j >= 0 {
		s = s[j+1:]
	}
	return strconv.Atoi(s)
}

func runningType(mods []Module) string {
	found := ""
	for _, m := range mods {
		if t, ok := mpmTypes[m.Name]; ok {
			if found != "" {
				return ""
			}
			found = t
		}
	}
	return found
}

// defaultServerRoot is the parent of the conf directory, or the directory
// of confPath when it is not called conf.
func defaultServerRoot(confPath string) string {
	dir := path.Dir(confPath)
	if path.Base(dir) == "conf" {
		return path.Dir(dir)
	}
	return dir
}

// logicalLines trims, drops comments and blanks, and joins lines ending
// in a backslash.
func logicalLines(text string) []string {
	var (
		out     []string
		pending string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if pending == "" && (line == "" || strings.HasPrefix(line, "#")) {
			continue
		}
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSpace(strings.TrimSuffix(line, `\`)) + " "
			continue
		}
		out = append(out, strings.TrimSpace(pending+line))
		pending = ""
	}
	if pending != "" {
		out = append(out, strings.TrimSpace(pending))
	}
	return out
}

// directive splits a line into its name and the remaining arguments.
func directive(line string) (name, args string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

func define(defines map[string]string, args string) {
	f := strings.Fields(args)
	switch len(f) {
	case 0:
	case 1:
		defines[f[0]] = ""
	default:
		defines[f[0]] = unquote(substitute(defines, strings.Join(f[1:], " ")))
	}
}

var varRef = regexp.MustCompile(`\$\{\s*([^}\s]+)\s*\}`)

// substitute replaces ${name} with its Define value. Unknown names stay.
func substitute(defines map[string]string, s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := varRef.FindStringSubmatch(ref)[1]
		if v, ok := defines[name]; ok {
			return v
		}
		return ref
	})
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
