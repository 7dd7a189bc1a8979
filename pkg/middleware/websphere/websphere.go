// Package websphere reads an IBM WebSphere Application Server installation
// into a profiles, cells, nodes and servers tree.
package websphere

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/middleware"
)

// Server types found in serverindex.xml.
const (
	ApplicationServer = "APPLICATION_SERVER"
	NodeAgent         = "NODE_AGENT"
	DeploymentManager = "DEPLOYMENT_MANAGER"
)

// Endpoint names of the web container.
const (
	EndpointHTTP  = "WC_defaulthost"
	EndpointHTTPS = "WC_defaulthost_secure"
)

// Engine describes the installed product.
type Engine struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	BuildDate  string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	BuildLevel string `json:"build_level,omitempty" yaml:"build_level,omitempty"`
}

// Endpoint is a named server endpoint.
type Endpoint struct {
	Name string `json:"name" yaml:"name"`
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Property is a JVM system property.
type Property struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// JVM holds the jvmEntries of a server process definition.
type JVM struct {
	InitialHeapMB    int        `json:"initial_heap_mb,omitempty" yaml:"initial_heap_mb,omitempty"`
	MaxHeapMB        int        `json:"max_heap_mb,omitempty" yaml:"max_heap_mb,omitempty"`
	VerboseGC        bool       `json:"verbose_gc" yaml:"verbose_gc"`
	GenericArguments string     `json:"generic_arguments,omitempty" yaml:"generic_arguments,omitempty"`
	SystemProperties []Property `json:"system_properties,omitempty" yaml:"system_properties,omitempty"`
	BootClasspath    []string   `json:"boot_classpath,omitempty" yaml:"boot_classpath,omitempty"`
}

// Application is a deployed application of a server.
type Application struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// Server is one server of a node.
type Server struct {
	Name         string        `json:"name" yaml:"name"`
	Type         string        `json:"type,omitempty" yaml:"type,omitempty"`
	Cluster      string        `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Endpoints    []Endpoint    `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Applications []Application `json:"applications,omitempty" yaml:"applications,omitempty"`
	JVM          *JVM          `json:"jvm,omitempty" yaml:"jvm,omitempty"`
	StdoutLog    string        `json:"stdout_log,omitempty" yaml:"stdout_log,omitempty"`
	StderrLog    string        `json:"stderr_log,omitempty" yaml:"stderr_log,omitempty"`
	DataSources  []DataSource  `json:"data_sources,omitempty" yaml:"data_sources,omitempty"`
}

// Port returns the port of the named endpoint, or 0.
func (s Server) Port(endpoint string) int {
	for _, e := range s.Endpoints {
		if e.Name == endpoint {
			return e.Port
		}
	}
	return 0
}

// Node is one node of a cell.
type Node struct {
	Name        string       `json:"name" yaml:"name"`
	HostName    string       `json:"host_name,omitempty" yaml:"host_name,omitempty"`
	Servers     []Server     `json:"servers" yaml:"servers"`
	DataSources []DataSource `json:"data_sources,omitempty" yaml:"data_sources,omitempty"`
}

// Member is a cluster member.
type Member struct {
	Node   string `json:"node" yaml:"node"`
	Server string `json:"server" yaml:"server"`
	Weight int    `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Cluster is a server cluster of a cell.
type Cluster struct {
	Name      string   `json:"name" yaml:"name"`
	NodeGroup string   `json:"node_group,omitempty" yaml:"node_group,omitempty"`
	Members   []Member `json:"members" yaml:"members"`
}

// Cell is one cell of a profile.
type Cell struct {
	Name        string       `json:"name" yaml:"name"`
	Nodes       []Node       `json:"nodes" yaml:"nodes"`
	Clusters    []Cluster    `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	DataSources []DataSource `json:"data_sources,omitempty" yaml:"data_sources,omitempty"`
}

// Profile is a WebSphere profile.
type Profile struct {
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	Default  bool   `json:"default" yaml:"default"`
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Cells    []Cell `json:"cells" yaml:"cells"`
}

// Instance is an assembled WebSphere installation.
type Instance struct {
	InstallRoot string                  `json:"install_root" yaml:"install_root"`
	Engine      Engine                  `json:"engine" yaml:"engine"`
	Profiles    []Profile               `json:"profiles" yaml:"profiles"`
	ConfigFiles []middleware.ConfigFile `json:"config_files" yaml:"config_files"`
	Warnings    []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Runtime     middleware.Runtime      `json:"runtime" yaml:"runtime"`

	// ServerRuntimes holds per server process facts keyed by server name.
	ServerRuntimes map[string]middleware.Runtime `json:"server_runtimes,omitempty" yaml:"server_runtimes,omitempty"`
}

// Kind implements middleware.Instance.
func (i *Instance) Kind() middleware.Kind { return middleware.KindWebSphere }

// Records implements middleware.Instance.
func (i *Instance) Records() []middleware.Record { return ToRecords(i) }

func (i *Instance) warn(format string, args ...any) {
	i.Warnings = append(i.Warnings, fmt.Sprintf(format, args...))
}

// Parser reads a WebSphere installation from a Source.
type Parser struct {
	src    middleware.Source
	logger zerolog.Logger
}

// NewParser returns a parser reading from src.
func NewParser(src middleware.Source) *Parser {
	return &Parser{src: src, logger: logging.Component("middleware.websphere")}
}

// WithLogger replaces the logger.
func (p *Parser) WithLogger(logger zerolog.Logger) *Parser {
	p.logger = logger
	return p
}

// Parse is shorthand for NewParser(src).Parse(ctx, installRoot).
func Parse(ctx context.Context, src middleware.Source, installRoot string) (*Instance, error) {
	return NewParser(src).Parse(ctx, installRoot)
}

// Parse reads the product file and walks every profile. Missing optional
// descriptors shrink the tree and are reported as warnings.
func (p *Parser) Parse(ctx context.Context, installRoot string) (*Instance, error) {
	installRoot = strings.TrimRight(strings.TrimSpace(installRoot), "/")
	if installRoot == "" {
		return nil, middleware.NewInsufficientInputError("websphere install root is empty", nil)
	}
	inst := &Instance{InstallRoot: installRoot, Profiles: []Profile{}}

	productFound, err := p.loadEngine(ctx, inst)
	if err != nil {
		return nil, err
	}
	profiles, err := p.profiles(ctx, inst)
	if err != nil {
		return nil, err
	}
	if !productFound && len(profiles) == 0 {
		return nil, middleware.NewInsufficientInputError("no WebSphere product or profiles under "+installRoot, nil)
	}

	for _, prof := range profiles {
		cellNames, err := p.subdirs(ctx, inst, path.Join(prof.Path, "config", "cells"))
		if err != nil {
			return nil, err
		}
		for _, cellName := range cellNames {
			cell, err := p.cell(ctx, inst, path.Join(prof.Path, "config", "cells", cellName), cellName)
			if err != nil {
				return nil, err
			}
			prof.Cells = append(prof.Cells, cell)
		}
		inst.Profiles = append(inst.Profiles, prof)
	}

	p.logger.Debug().
		Str("install_root", installRoot).
		Str("version", inst.Engine.Version).
		Int("profiles", len(inst.Profiles)).
		Int("warnings", len(inst.Warnings)).
		Msg("websphere installation parsed")
	return inst, nil
}

// read returns the content of an optional descriptor and records it as a
// config file. Context errors abort; other read errors become warnings.
func (p *Parser) read(ctx context.Context, inst *Instance, name string) ([]byte, bool, error) {
	data, found, err := middleware.ReadOptional(ctx, p.src, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		inst.warn("%s: %v", name, err)
		return nil, false, nil
	}
	if found {
		inst.ConfigFiles = append(inst.ConfigFiles, middleware.ConfigFile{Path: name, Content: middleware.Redact(string(data))})
	}
	return data, found, nil
}

func (p *Parser) subdirs(ctx context.Context, inst *Instance, dir string) ([]string, error) {
	names, err := middleware.Subdirs(ctx, p.src, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		inst.warn("list %s: %v", dir, err)
		return nil, nil
	}
	return names, nil
}

func (p *Parser) loadEngine(ctx context.Context, inst *Instance) (bool, error) {
	name := path.Join(inst.InstallRoot, "properties", "version", "WAS.product")
	data, found, err := p.read(ctx, inst, name)
	if err != nil || !found {
		return false, err
	}
	var prod productXML
	if err := middleware.DecodeXML(data, &prod); err != nil {
		inst.warn("%s: %v", name, err)
		return true, nil
	}
	inst.Engine = Engine{
		Name:       prod.Name,
		ID:         prod.ID,
		Version:    strings.TrimSpace(prod.Version),
		BuildDate:  prod.Build.Date,
		BuildLevel: prod.Build.Level,
	}
	return true, nil
}

// profiles reads properties/profileRegistry.xml and falls back to the
// directories under profiles/.
func (p *Parser) profiles(ctx context.Context, inst *Instance) ([]Profile, error) {
	name := path.Join(inst.InstallRoot, "properties", "profileRegistry.xml")
	data, found, err := p.read(ctx, inst, name)
	if err != nil {
		return nil, err
	}
	if found {
		var reg profileRegistryXML
		if err := middleware.DecodeXML(data, &reg); err != nil {
			inst.warn("%s: %v", name, err)
		} else if len(reg.Profiles) > 0 {
			var out []Profile
			for _, r := range reg.Profiles {
				prof := Profile{Name: r.Name, Path: r.Path, Default: cast.ToBool(r.IsDefault), Template: r.Template}
				if prof.Path == "" {
					prof.Path = path.Join(inst.InstallRoot, "profiles", r.Name)
				}
				out = append(out, prof)
			}
			return out, nil
		}
	}

	names, err := p.subdirs(ctx, inst, path.Join(inst.InstallRoot, "profiles"))
	if err != nil {
		return nil, err
	}
	var out []Profile
	for _, n := range names {
		out = append(out, Profile{Name: n, Path: path.Join(inst.InstallRoot, "profiles", n)})
	}
	return out, nil
}

func (p *Parser) cell(ctx context.Context, inst *Instance, dir, name string) (Cell, error) {
	cell := Cell{Name: name, Nodes: []Node{}}

	clusterNames, err := p.subdirs(ctx, inst, path.Join(dir, "clusters"))
	if err != nil {
		return cell, err
	}
	for _, cn := range clusterNames {
		file := path.Join(dir, "clusters", cn, "cluster.xml")
		data, found, err := p.read(ctx, inst, file)
		if err != nil {
			return cell, err
		}
		if !found {
			continue
		}
		err = middleware.EachXML(data, "ServerCluster", func(c *clusterXML) {
			cl := Cluster{Name: c.Name, NodeGroup: c.NodeGroupName, Members: []Member{}}
			for _, m := range c.Members {
				cl.Members = append(cl.Members, Member{Node: m.NodeName, Server: m.MemberName, Weight: cast.ToInt(m.Weight)})
			}
			cell.Clusters = append(cell.Clusters, cl)
		})
		if err != nil {
			inst.warn("%s: %v", file, err)
		}
	}

	if cell.DataSources, err = p.dataSources(ctx, inst, dir, "cell"); err != nil {
		return cell, err
	}

	nodeNames, err := p.subdirs(ctx, inst, path.Join(dir, "nodes"))
	if err != nil {
		return cell, err
	}
	for _, nn := range nodeNames {
		node, err := p.node(ctx, inst, path.Join(dir, "nodes", nn), nn, cell.Clusters)
		if err != nil {
			return cell, err
		}
		cell.Nodes = append(cell.Nodes, node)
	}
	return cell, nil
}

func (p *Parser) node(ctx context.Context, inst *Instance, dir, name string, clusters []Cluster) (Node, error) {
	node := Node{Name: name, Servers: []Server{}}
	index := map[string]int{}

	file := path.Join(dir, "serverindex.xml")
	data, found, err := p.read(ctx, inst, file)
	if err != nil {
		return node, err
	}
	if found {
		var si serverIndexXML
		if err := middleware.DecodeXML(data, &si); err != nil {
			inst.warn("%s: %v", file, err)
		} else {
			node.HostName = si.HostName
			for _, e := range si.Entries {
				srv := Server{Name: e.ServerName, Type: e.ServerType}
				for _, ep := range e.Endpoints {
					srv.Endpoints = append(srv.Endpoints, Endpoint{Name: ep.Name, Host: ep.EndPoint.Host, Port: cast.ToInt(ep.EndPoint.Port)})
				}
				for _, app := range e.DeployedApplications {
					srv.Applications = append(srv.Applications, Application{Name: applicationName(app), Path: app})
				}
				index[srv.Name] = len(node.Servers)
				node.Servers = append(node.Servers, srv)
			}
		}
	}

	if node.DataSources, err = p.dataSources(ctx, inst, dir, "node"); err != nil {
		return node, err
	}

	serverNames, err := p.subdirs(ctx, inst, path.Join(dir, "servers"))
	if err != nil {
		return node, err
	}
	for _, sn := range serverNames {
		i, ok := index[sn]
		if !ok {
			i = len(node.Servers)
			index[sn] = i
			node.Servers = append(node.Servers, Server{Name: sn})
		}
		if err := p.server(ctx, inst, path.Join(dir, "servers", sn), &node.Servers[i]); err != nil {
			return node, err
		}
	}

	for i := range node.Servers {
		node.Servers[i].Cluster = clusterOf(clusters, name, node.Servers[i].Name)
	}
	return node, nil
}

func (p *Parser) server(ctx context.Context, inst *Instance, dir string, srv *Server) error {
	file := path.Join(dir, "server.xml")
	data, found, err := p.read(ctx, inst, file)
	if err != nil {
		return err
	}
	if found {
		err = middleware.EachXML(data, "Server", func(s *processServerXML) {
			for _, def := range s.Definitions {
				srv.StdoutLog = def.IORedirect.Stdout
				srv.StderrLog = def.IORedirect.Stderr
				srv.JVM = toJVM(def.JVM)
			}
		})
		if err != nil {
			inst.warn("%s: %v", file, err)
		}
	}

	srv.DataSources, err = p.dataSources(ctx, inst, dir, "server")
	if err != nil {
		return err
	}
	if srv.JVM != nil {
		srv.DataSources = append(srv.DataSources, optionDataSources(strings.Fields(srv.JVM.GenericArguments))...)
	}
	return nil
}

func toJVM(x jvmXML) *JVM {
	jvm := &JVM{
		InitialHeapMB:    cast.ToInt(x.InitialHeapSize),
		MaxHeapMB:        cast.ToInt(x.MaximumHeapSize),
		VerboseGC:        cast.ToBool(x.VerboseGC),
		GenericArguments: strings.TrimSpace(x.GenericJvmArguments),
		BootClasspath:    x.BootClasspath,
	}
	for _, sp := range x.SystemProperties {
		jvm.SystemProperties = append(jvm.SystemProperties, Property{Name: sp.Name, Value: sp.Value})
	}
	return jvm
}

// applicationName reads the application from a deployedApplications entry
// such as "DefaultApplication.ear/deployments/DefaultApplication".
func applicationName(entry string) string {
	if _, after, ok := strings.Cut(entry, "/deployments/"); ok && after != "" {
		return after
	}
	first, _, _ := strings.Cut(entry, "/")
	return strings.TrimSuffix(first, ".ear")
}

func clusterOf(clusters []Cluster, node, server string) string {
	for _, c := range clusters {
		for _, m := range c.Members {
			if m.Node == node && m.Server == server {
				return c.Name
			}
		}
	}
	return ""
}
