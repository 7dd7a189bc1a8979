// Package tomcat reads an Apache Tomcat instance (CATALINA_BASE) from its
// conf directory, webapp directories and release artifacts.
package tomcat

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/middleware"
)

// Resource is a JNDI resource. Passwords are never read.
type Resource struct {
	Name            string `json:"name" yaml:"name"`
	Auth            string `json:"auth,omitempty" yaml:"auth,omitempty"`
	Type            string `json:"type,omitempty" yaml:"type,omitempty"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	Factory         string `json:"factory,omitempty" yaml:"factory,omitempty"`
	Pathname        string `json:"pathname,omitempty" yaml:"pathname,omitempty"`
	URL             string `json:"url,omitempty" yaml:"url,omitempty"`
	Username        string `json:"username,omitempty" yaml:"username,omitempty"`
	DriverClassName string `json:"driver_class_name,omitempty" yaml:"driver_class_name,omitempty"`
	MaxTotal        int    `json:"max_total,omitempty" yaml:"max_total,omitempty"`
}

// Connector is one <Connector> of a service.
type Connector struct {
	Service           string `json:"service" yaml:"service"`
	Port              int    `json:"port" yaml:"port"`
	Protocol          string `json:"protocol" yaml:"protocol"`
	RedirectPort      int    `json:"redirect_port,omitempty" yaml:"redirect_port,omitempty"`
	SSLEnabled        bool   `json:"ssl_enabled" yaml:"ssl_enabled"`
	Scheme            string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Executor          string `json:"executor,omitempty" yaml:"executor,omitempty"`
	Address           string `json:"address,omitempty" yaml:"address,omitempty"`
	ConnectionTimeout int    `json:"connection_timeout,omitempty" yaml:"connection_timeout,omitempty"`
	MaxThreads        int    `json:"max_threads,omitempty" yaml:"max_threads,omitempty"`
}

// Executor is a shared thread pool.
type Executor struct {
	Service         string `json:"service" yaml:"service"`
	Name            string `json:"name" yaml:"name"`
	NamePrefix      string `json:"name_prefix,omitempty" yaml:"name_prefix,omitempty"`
	MaxThreads      int    `json:"max_threads,omitempty" yaml:"max_threads,omitempty"`
	MinSpareThreads int    `json:"min_spare_threads,omitempty" yaml:"min_spare_threads,omitempty"`
}

// Context is an explicit <Context> of a host.
type Context struct {
	Path       string `json:"path" yaml:"path"`
	DocBase    string `json:"doc_base,omitempty" yaml:"doc_base,omitempty"`
	Reloadable bool   `json:"reloadable" yaml:"reloadable"`
}

// Host is a virtual host with its webapp directory listing.
type Host struct {
	Service    string    `json:"service" yaml:"service"`
	Name       string    `json:"name" yaml:"name"`
	AppBase    string    `json:"app_base" yaml:"app_base"`
	UnpackWARs bool      `json:"unpack_wars" yaml:"unpack_wars"`
	AutoDeploy bool      `json:"auto_deploy" yaml:"auto_deploy"`
	Apps       []string  `json:"apps" yaml:"apps"`
	Contexts   []Context `json:"contexts,omitempty" yaml:"contexts,omitempty"`
}

// Engine is the Catalina engine of a service.
type Engine struct {
	Service     string `json:"service" yaml:"service"`
	Name        string `json:"name" yaml:"name"`
	DefaultHost string `json:"default_host" yaml:"default_host"`
	JvmRoute    string `json:"jvm_route,omitempty" yaml:"jvm_route,omitempty"`
}

// DeployApp is one application deployed by a host, either from its
// appBase directory or from an explicit context.
type DeployApp struct {
	Service     string `json:"service" yaml:"service"`
	Application string `json:"application" yaml:"application"`
	ContextPath string `json:"context_path" yaml:"context_path"`
	DeployPath  string `json:"deploy_path" yaml:"deploy_path"`
	AutoDeploy  bool   `json:"auto_deploy" yaml:"auto_deploy"`
	Reloadable  bool   `json:"reloadable" yaml:"reloadable"`
}

// User is a tomcat-users.xml account without its password.
type User struct {
	Username string   `json:"username" yaml:"username"`
	Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Instance is an assembled Tomcat instance.
type Instance struct {
	Base            string                  `json:"base" yaml:"base"`
	Home            string                  `json:"home" yaml:"home"`
	EngineName      string                  `json:"engine_name,omitempty" yaml:"engine_name,omitempty"`
	Version         string                  `json:"version,omitempty" yaml:"version,omitempty"`
	ShutdownPort    int                     `json:"shutdown_port,omitempty" yaml:"shutdown_port,omitempty"`
	Listeners       []string                `json:"listeners,omitempty" yaml:"listeners,omitempty"`
	Options         []string                `json:"options,omitempty" yaml:"options,omitempty"`
	Properties      map[string]string       `json:"properties,omitempty" yaml:"properties,omitempty"`
	GlobalResources []Resource              `json:"global_resources,omitempty" yaml:"global_resources,omitempty"`
	Resources       []Resource              `json:"resources,omitempty" yaml:"resources,omitempty"`
	Connectors      []Connector             `json:"connectors" yaml:"connectors"`
	Executors       []Executor              `json:"executors,omitempty" yaml:"executors,omitempty"`
	Engines         []Engine                `json:"engines" yaml:"engines"`
	Hosts           []Host                  `json:"hosts" yaml:"hosts"`
	DeployApps      []DeployApp             `json:"deploy_apps" yaml:"deploy_apps"`
	Roles           []string                `json:"roles,omitempty" yaml:"roles,omitempty"`
	Users           []User                  `json:"users,omitempty" yaml:"users,omitempty"`
	ConfigFiles     []middleware.ConfigFile `json:"config_files" yaml:"config_files"`
	Warnings        []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Runtime         middleware.Runtime      `json:"runtime" yaml:"runtime"`
}

// Kind implements middleware.Instance.
func (i *Instance) Kind() middleware.Kind { return middleware.KindTomcat }

// Records implements middleware.Instance.
func (i *Instance) Records() []middleware.Record { return []middleware.Record{ToRecord(i)} }

func (i *Instance) warn(format string, args ...any) {
	i.Warnings = append(i.Warnings, fmt.Sprintf(format, args...))
}

// Parser reads a Tomcat instance from a Source.
type Parser struct {
	src     middleware.Source
	home    string
	options []string
	logger  zerolog.Logger
}

// NewParser returns a parser reading from src.
func NewParser(src middleware.Source) *Parser {
	return &Parser{src: src, logger: logging.Component("middleware.tomcat")}
}

// WithHome sets CATALINA_HOME when it differs from CATALINA_BASE. The
// version is read from the home directory.
func (p *Parser) WithHome(home string) *Parser {
	p.home = home
	return p
}

// WithOptions supplies the JVM arguments of the running instance. -D
// system properties take part in ${var} resolution and datasource
// discovery.
func (p *Parser) WithOptions(options []string) *Parser {
	p.options = options
	return p
}

// WithLogger replaces the logger.
func (p *Parser) WithLogger(logger zerolog.Logger) *Parser {
	p.logger = logger
	return p
}

// Parse is shorthand for NewParser(src).Parse(ctx, base).
func Parse(ctx context.Context, src middleware.Source, base string) (*Instance, error) {
	return NewParser(src).Parse(ctx, base)
}

// Parse reads base/conf/server.xml and the optional context.xml,
// tomcat-users.xml and catalina.properties, lists each host's appBase and
// resolves the engine version.
func (p *Parser) Parse(ctx context.Context, base string) (*Instance, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, middleware.NewInsufficientInputError("tomcat base path is empty", nil)
	}
	home := p.home
	if home == "" {
		home = base
	}
	inst := &Instance{Base: base, Home: home, Options: p.options}

	serverPath := path.Join(base, "conf", "server.xml")
	data, err := p.src.ReadFile(ctx, serverPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, middleware.NewReadError(serverPath, err)
	}
	var server serverXML
	if err := middleware.DecodeXML(data, &server); err != nil {
		return nil, middleware.NewMalformedError(serverPath, err)
	}
	inst.ConfigFiles = append(inst.ConfigFiles, middleware.ConfigFile{Path: serverPath, Content: middleware.Redact(string(data))})

	if err := p.loadProperties(ctx, inst); err != nil {
		return nil, err
	}
	p.mapServer(inst, &server)

	if err := p.loadContext(ctx, inst); err != nil {
		return nil, err
	}
	if err := p.loadUsers(ctx, inst); err != nil {
		return nil, err
	}
	if err := p.loadApps(ctx, inst, &server); err != nil {
		return nil, err
	}
	inst.Resources = append(inst.Resources, optionDataSources(p.options)...)

	name, version, err := p.readVersion(ctx, home)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		inst.warn("version: %v", err)
	}
	inst.EngineName, inst.Version = name, version

	p.logger.Debug().
		Str("base", base).
		Str("version", inst.Version).
		Int("connectors", len(inst.Connectors)).
		Int("apps", len(inst.DeployApps)).
		Msg("tomcat instance parsed")
	return inst, nil
}

// loadProperties merges conf/catalina.properties with -D options. Options
// win.
func (p *Parser) loadProperties(ctx context.Context, inst *Instance) error {
	props := map[string]string{}
	propsPath := path.Join(inst.Base, "conf", "catalina.properties")
	data, found, err := middleware.ReadOptional(ctx, p.src, propsPath)
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		inst.warn("%s: %v", propsPath, err)
	case found:
		props = middleware.ParseProperties(string(data))
	}
	for k, v := range middleware.SystemProperties(p.options) {
		props[k] = v
	}
	inst.Properties = props
	return nil
}

func (p *Parser) mapServer(inst *Instance, server *serverXML) {
	inst.ShutdownPort = p.port(inst, "Server port", server.Port)
	for _, l := range server.Listeners {
		inst.Listeners = append(inst.Listeners, l.ClassName)
	}
	for _, r := range server.GlobalResources {
		inst.GlobalResources = append(inst.GlobalResources, toResource(r))
	}

	inst.Connectors = []Connector{}
	inst.Engines = []Engine{}
	for _, svc := range server.Services {
		for _, c := range svc.Connectors {
			protocol := c.Protocol
			if protocol == "" {
				protocol = "HTTP/1.1"
			}
			inst.Connectors = append(inst.Connectors, Connector{
				Service:           svc.Name,
				Port:              p.port(inst, "Connector port", c.Port),
				Protocol:          protocol,
				RedirectPort:      p.port(inst, "Connector redirectPort", c.RedirectPort),
				SSLEnabled:        cast.ToBool(c.SSLEnabled),
				Scheme:            c.Scheme,
				Executor:          c.Executor,
				Address:           c.Address,
				ConnectionTimeout: cast.ToInt(middleware.Expand(c.ConnectionTimeout, inst.Properties)),
				MaxThreads:        cast.ToInt(middleware.Expand(c.MaxThreads, inst.Properties)),
			})
		}
		for _, e := range svc.Executors {
			inst.Executors = append(inst.Executors, Executor{
				Service:         svc.Name,
				Name:            e.Name,
				NamePrefix:      e.NamePrefix,
				MaxThreads:      cast.ToInt(e.MaxThreads),
				MinSpareThreads: cast.ToInt(e.MinSpareThreads),
			})
		}
		inst.Engines = append(inst.Engines, Engine{
			Service:     svc.Name,
			Name:        svc.Engine.Name,
			DefaultHost: svc.Engine.DefaultHost,
			JvmRoute:    svc.Engine.JvmRoute,
		})
	}
}

// port resolves a ${var} port attribute. Unresolved or invalid values are
// recorded as warnings and yield 0.
func (p *Parser) port(inst *Instance, what, raw string) int {
	if raw == "" {
		return 0
	}
	v := middleware.Expand(raw, inst.Properties)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		inst.warn("%s %q cannot be resolved", what, raw)
		return 0
	}
	if n < 0 {
		// -1 disables the shutdown port.
		return 0
	}
	return n
}

func toResource(r resourceXML) Resource {
	return Resource{
		Name:            r.Name,
		Auth:            r.Auth,
		Type:            r.Type,
		Description:     r.Description,
		Factory:         r.Factory,
		Pathname:        r.Pathname,
		URL:             r.URL,
		Username:        r.Username,
		DriverClassName: r.DriverClassName,
		MaxTotal:        cast.ToInt(r.MaxTotal),
	}
}

func (p *Parser) loadContext(ctx context.Context, inst *Instance) error {
	ctxPath := path.Join(inst.Base, "conf", "context.xml")
	data, found, err := middleware.ReadOptional(ctx, p.src, ctxPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		inst.warn("%s: %v", ctxPath, err)
		return nil
	}
	if !found {
		return nil
	}
	var doc contextFileXML
	if err := middleware.DecodeXML(data, &doc); err != nil {
		inst.warn("%s: %v", ctxPath, err)
		return nil
	}
	inst.ConfigFiles = append(inst.ConfigFiles, middleware.ConfigFile{Path: ctxPath, Content: middleware.Redact(string(data))})
	for _, r := range doc.Resources {
		inst.Resources = append(inst.Resources, toResource(r))
	}
	return nil
}

// loadUsers keeps role names and usernames only; the file content itself
// is not retained.
func (p *Parser) loadUsers(ctx context.Context, inst *Instance) error {
	usersPath := path.Join(inst.Base, "conf", "tomcat-users.xml")
	data, found, err := middleware.ReadOptional(ctx, p.src, usersPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		inst.warn("%s: %v", usersPath, err)
		return nil
	}
	if !found {
		return nil
	}
	var doc usersXML
	if err := middleware.DecodeXML(data, &doc); err != nil {
		inst.warn("%s: %v", usersPath, err)
		return nil
	}
	for _, r := range doc.Roles {
		inst.Roles = append(inst.Roles, r.Name)
	}
	for _, u := range doc.Users {
		user := User{Username: u.Username}
		for _, r := range strings.Split(u.Roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				user.Roles = append(user.Roles, r)
			}
		}
		inst.Users = append(inst.Users, user)
	}
	return nil
}

func (p *Parser) loadApps(ctx context.Context, inst *Instance, server *serverXML) error {
	inst.Hosts = []Host{}
	inst.DeployApps = []DeployApp{}
	for _, svc := range server.Services {
		for _, h := range svc.Engine.Hosts {
			host := Host{
				Service:    svc.Name,
				Name:       h.Name,
				AppBase:    h.AppBase,
				UnpackWARs: h.UnpackWARs == "" || cast.ToBool(h.UnpackWARs),
				AutoDeploy: h.AutoDeploy == "" || cast.ToBool(h.AutoDeploy),
				Apps:       []string{},
			}
			if host.AppBase == "" {
				host.AppBase = "webapps"
			}
			for _, c := range h.Contexts {
				host.Contexts = append(host.Contexts, Context{Path: c.Path, DocBase: c.DocBase, Reloadable: cast.ToBool(c.Reloadable)})
			}

			appBase := p.resolve(inst.Base, host.AppBase)
			apps, err := p.listApps(ctx, appBase)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				inst.warn("list %s: %v", appBase, err)
			}
			host.Apps = append(host.Apps, apps...)
			inst.Hosts = append(inst.Hosts, host)
			inst.DeployApps = append(inst.DeployApps, deployApps(host, appBase)...)
		}
	}
	return nil
}

func (p *Parser) resolve(root, name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(root, name)
}

// listApps returns exploded directories and WAR archives under appBase.
// A WAR next to its exploded directory is listed once.
func (p *Parser) listApps(ctx context.Context, appBase string) ([]string, error) {
	entries, err := p.src.ReadDir(ctx, appBase)
	if err != nil {
		if middleware.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	seen := map[string]bool{}
	var apps []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			apps = append(apps, name)
		}
	}
	for _, e := range entries {
		if e.Dir {
			add(e.Name)
		}
	}
	for _, e := range entries {
		if !e.Dir && strings.HasSuffix(e.Name, ".war") {
			add(strings.TrimSuffix(e.Name, ".war"))
		}
	}
	return apps, nil
}

// deployApps merges the appBase listing with explicit contexts. Entries
// are keyed by deploy path; a context overrides the directory defaults.
func deployApps(host Host, appBase string) []DeployApp {
	var apps []DeployApp
	index := map[string]int{}
	for _, name := range host.Apps {
		ctxPath := "/" + name
		if name == "ROOT" {
			ctxPath = "/"
		}
		deployPath := path.Join(appBase, name)
		index[deployPath] = len(apps)
		apps = append(apps, DeployApp{
			Service:     host.Service,
			Application: applicationName(ctxPath),
			ContextPath: ctxPath,
			DeployPath:  deployPath,
			AutoDeploy:  host.AutoDeploy,
		})
	}
	for _, c := range host.Contexts {
		if c.DocBase == "" {
			continue
		}
		deployPath := c.DocBase
		if !path.IsAbs(deployPath) {
			deployPath = path.Join(appBase, deployPath)
		}
		app := DeployApp{
			Service:     host.Service,
			Application: applicationName(c.Path),
			ContextPath: c.Path,
			DeployPath:  deployPath,
			AutoDeploy:  host.AutoDeploy,
			Reloadable:  c.Reloadable,
		}
		if i, ok := index[deployPath]; ok {
			apps[i] = app
			continue
		}
		index[deployPath] = len(apps)
		apps = append(apps, app)
	}
	return apps
}

func applicationName(ctxPath string) string {
	if ctxPath == "" || ctxPath == "/" {
		return "ROOT"
	}
	return strings.TrimPrefix(ctxPath, "/")
}

// optionDataSources builds a DataSource resource from -D options whose
// names mention a datasource, such as -Dapp.datasource.url=jdbc:...
func optionDataSources(options []string) []Resource {
	var ds *Resource
	for key, value := range middleware.SystemProperties(options) {
		lower := strings.ToLower(key)
		if !strings.Contains(lower, "datasource") {
			continue
		}
		if ds == nil {
			ds = &Resource{Type: "DataSource", Auth: "Options"}
		}
		switch {
		case strings.Contains(lower, "url"):
			ds.URL = value
			ds.Name = middleware.JDBCDatabase(value)
		case strings.Contains(lower, "username"):
			ds.Username = value
		}
	}
	if ds == nil {
		return nil
	}
	return []Resource{*ds}
}
