// Package nginx parses nginx configuration into an instance tree.
package nginx

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

// maxIncludeDepth bounds nested include expansion.
const maxIncludeDepth = 8

// General holds main context directives.
type General struct {
	User               string   `json:"user,omitempty" yaml:"user,omitempty"`
	WorkerProcesses    string   `json:"worker_processes,omitempty" yaml:"worker_processes,omitempty"`
	WorkerRlimitNofile int      `json:"worker_rlimit_nofile,omitempty" yaml:"worker_rlimit_nofile,omitempty"`
	ErrorLog           string   `json:"error_log,omitempty" yaml:"error_log,omitempty"`
	PID                string   `json:"pid,omitempty" yaml:"pid,omitempty"`
	Includes           []string `json:"includes,omitempty" yaml:"includes,omitempty"`
}

// Events holds the events block.
type Events struct {
	Use               string `json:"use,omitempty" yaml:"use,omitempty"`
	WorkerConnections int    `json:"worker_connections,omitempty" yaml:"worker_connections,omitempty"`
	MultiAccept       string `json:"multi_accept,omitempty" yaml:"multi_accept,omitempty"`
	AcceptMutex       string `json:"accept_mutex,omitempty" yaml:"accept_mutex,omitempty"`
}

// Location is one location block.
type Location struct {
	URI         string              `json:"uri" yaml:"uri"`
	Root        string              `json:"root,omitempty" yaml:"root,omitempty"`
	Expires     string              `json:"expires,omitempty" yaml:"expires,omitempty"`
	FastCGIPass string              `json:"fastcgi_pass,omitempty" yaml:"fastcgi_pass,omitempty"`
	Proxy       map[string][]string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// Server is one server block of http or stream.
type Server struct {
	Listen     []string            `json:"listen" yaml:"listen"`
	ServerName string              `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	Root       string              `json:"root,omitempty" yaml:"root,omitempty"`
	AccessLog  string              `json:"access_log,omitempty" yaml:"access_log,omitempty"`
	SSL        map[string]string   `json:"ssl,omitempty" yaml:"ssl,omitempty"`
	Proxy      map[string][]string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Locations  []Location          `json:"locations,omitempty" yaml:"locations,omitempty"`
}

// UpstreamServer is one server line of an upstream.
type UpstreamServer struct {
	Address string `json:"address" yaml:"address"`
	Option  string `json:"option,omitempty" yaml:"option,omitempty"`
}

// Upstream is one upstream block.
type Upstream struct {
	Name    string           `json:"name" yaml:"name"`
	Servers []UpstreamServer `json:"servers" yaml:"servers"`
}

// Context is the http or stream block.
type Context struct {
	Settings  map[string][]string `json:"settings,omitempty" yaml:"settings,omitempty"`
	Servers   []Server            `json:"servers" yaml:"servers"`
	Upstreams []Upstream          `json:"upstreams,omitempty" yaml:"upstreams,omitempty"`
}

// Listener is one bound address.
type Listener struct {
	Address string `json:"address" yaml:"address"`
	Port    int    `json:"port" yaml:"port"`
	SSL     bool   `json:"ssl" yaml:"ssl"`
	Stream  bool   `json:"stream" yaml:"stream"`
	UDP     bool   `json:"udp,omitempty" yaml:"udp,omitempty"`
}

// Instance is an assembled nginx configuration.
type Instance struct {
	ConfigPath  string                  `json:"config_path" yaml:"config_path"`
	ConfigFiles []middleware.ConfigFile `json:"config_files" yaml:"config_files"`
	General     General                 `json:"general" yaml:"general"`
	Events      Events                  `json:"events" yaml:"events"`
	HTTP        *Context                `json:"http,omitempty" yaml:"http,omitempty"`
	Stream      *Context                `json:"stream,omitempty" yaml:"stream,omitempty"`
	Listeners   []Listener              `json:"listeners" yaml:"listeners"`
	SSL         bool                    `json:"ssl" yaml:"ssl"`
	Warnings    []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Runtime     middleware.Runtime      `json:"runtime" yaml:"runtime"`

	// Tree is the include-expanded directive tree.
	Tree []*Directive `json:"-" yaml:"-"`
}

// Kind implements middleware.Instance.
func (i *Instance) Kind() middleware.Kind { return middleware.KindNginx }

// Records implements middleware.Instance.
func (i *Instance) Records() []middleware.Record { return []middleware.Record{ToRecord(i)} }

// ListenPorts lists distinct bound ports in order of appearance.
func (i *Instance) ListenPorts() []int {
	var ports []int
	for _, l := range i.Listeners {
		ports = middleware.AppendPort(ports, l.Port)
	}
	return ports
}

func (i *Instance) warn(format string, args ...any) {
	i.Warnings = append(i.Warnings, fmt.Sprintf(format, args...))
}

// Parser reads nginx.conf and its includes from a Source.
type Parser struct {
	src    middleware.Source
	logger zerolog.Logger
}

// NewParser returns a parser reading from src.
func NewParser(src middleware.Source) *Parser {
	return &Parser{src: src, logger: logging.Component("middleware.nginx")}
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

// Parse reads confPath, expands include directives relative to its
// directory and maps the main, events, http and stream contexts.
func (p *Parser) Parse(ctx context.Context, confPath string) (*Instance, error) {
	if strings.TrimSpace(confPath) == "" {
		return nil, middleware.NewInsufficientInputError("nginx config path is empty", nil)
	}
	data, err := p.src.ReadFile(ctx, confPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, middleware.NewReadError(confPath, err)
	}
	tree, err := parse(confPath, string(data))
	if err != nil {
		return nil, middleware.NewMalformedError(confPath, err)
	}

	inst := &Instance{ConfigPath: confPath}
	inst.ConfigFiles = append(inst.ConfigFiles, middleware.ConfigFile{Path: confPath, Content: string(data)})
	x := &expander{parser: p, inst: inst, base: path.Dir(confPath)}
	tree, err = x.expand(ctx, tree, 0)
	if err != nil {
		return nil, err
	}
	inst.Tree = tree

	p.mapMain(inst, tree)
	p.logger.Debug().
		Str("config", confPath).
		Int("files", len(inst.ConfigFiles)).
		Int("listeners", len(inst.Listeners)).
		Int("warnings", len(inst.Warnings)).
		Msg("nginx configuration parsed")
	return inst, nil
}

type expander struct {
	parser *Parser
	inst   *Instance
	base   string
}

// expand replaces include directives with the directives of the files
// they name. Only context errors abort; unreadable includes are warnings.
func (x *expander) expand(ctx context.Context, dirs []*Directive, depth int) ([]*Directive, error) {
	out := make([]*Directive, 0, len(dirs))
	for _, d := range dirs {
		if d.IsBlock() {
			inner, err := x.expand(ctx, d.Block, depth)
			if err != nil {
				return nil, err
			}
			d.Block = inner
			out = append(out, d)
			continue
		}
		if d.Name != "include" || len(d.Args) == 0 {
			out = append(out, d)
			continue
		}

		if depth == 0 {
			x.inst.General.Includes = append(x.inst.General.Includes, d.Args[0])
		}
		if depth >= maxIncludeDepth {
			x.inst.warn("%s:%d: include nesting deeper than %d", d.File, d.Line, maxIncludeDepth)
			continue
		}
		pattern := d.Args[0]
		if !path.IsAbs(pattern) {
			pattern = path.Join(x.base, pattern)
		}
		files, err := middleware.Glob(ctx, x.parser.src, pattern)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			x.inst.warn("include %s: %v", d.Args[0], err)
			continue
		}
		for _, f := range files {
			data, found, err := middleware.ReadOptional(ctx, x.parser.src, f)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				x.inst.warn("include %s: %v", f, err)
				continue
			}
			if !found {
				x.inst.warn("include %s: not found", f)
				continue
			}
			x.inst.ConfigFiles = append(x.inst.ConfigFiles, middleware.ConfigFile{Path: f, Content: string(data)})
			included, err := parse(f, string(data))
			if err != nil {
				x.inst.warn("include %v", err)
				continue
			}
			included, err = x.expand(ctx, included, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, included...)
		}
	}
	return out, nil
}

func (p *Parser) mapMain(inst *Instance, tree []*Directive) {
	main := params(tree)
	inst.General.User = first(main, "user")
	inst.General.WorkerProcesses = first(main, "worker_processes")
	inst.General.ErrorLog = first(main, "error_log")
	inst.General.PID = first(main, "pid")
	inst.General.WorkerRlimitNofile = p.toInt(inst, "worker_rlimit_nofile", first(main, "worker_rlimit_nofile"))

	for _, d := range tree {
		if !d.IsBlock() {
			continue
		}
		switch d.Name {
		case "events":
			ev := params(d.Block)
			inst.Events = Events{
				Use:               first(ev, "use"),
				WorkerConnections: p.toInt(inst, "worker_connections", first(ev, "worker_connections")),
				MultiAccept:       first(ev, "multi_accept"),
				AcceptMutex:       first(ev, "accept_mutex"),
			}
		case "http":
			inst.HTTP = mapContext(inst, d.Block, false)
		case "stream":
			inst.Stream = mapContext(inst, d.Block, true)
		}
	}
}

func (p *Parser) toInt(inst *Instance, name, v string) int {
	if v == "" || v == "auto" {
		return 0
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		inst.warn("%s %q: %v", name, v, err)
		return 0
	}
	return n
}

func mapContext(inst *Instance, dirs []*Directive, stream bool) *Context {
	c := &Context{Settings: params(dirs), Servers: []Server{}}
	for _, d := range dirs {
		if !d.IsBlock() {
			continue
		}
		switch d.Name {
		case "server":
			s := mapServer(d)
			c.Servers = append(c.Servers, s)
			inst.addListeners(s, stream)
		case "upstream":
			c.Upstreams = append(c.Upstreams, mapUpstream(d))
		}
	}
	return c
}

func mapServer(d *Directive) Server {
	ps := params(d.Block)
	s := Server{
		Listen:     ps["listen"],
		ServerName: strings.Join(ps["server_name"], " "),
		Root:       first(ps, "root"),
		AccessLog:  first(ps, "access_log"),
		SSL:        prefixed(ps, "ssl"),
		Proxy:      prefixedAll(ps, "proxy"),
	}
	for _, b := range d.Block {
		if b.IsBlock() && b.Name == "location" {
			lp := params(b.Block)
			s.Locations = append(s.Locations, Location{
				URI:         b.Value(),
				Root:        first(lp, "root"),
				Expires:     first(lp, "expires"),
				FastCGIPass: first(lp, "fastcgi_pass"),
				Proxy:       prefixedAll(lp, "proxy"),
			})
		}
	}
	return s
}

func mapUpstream(d *Directive) Upstream {
	u := Upstream{Name: d.Value()}
	for _, b := range d.Block {
		if b.IsBlock() || b.Name != "server" || len(b.Args) == 0 {
			continue
		}
		u.Servers = append(u.Servers, UpstreamServer{Address: b.Args[0], Option: strings.Join(b.Args[1:], " ")})
	}
	return u
}

func (i *Instance) addListeners(s Server, stream bool) {
	listen := s.Listen
	if len(listen) == 0 && !stream {
		listen = []string{"80"}
	}
	sslOn := strings.EqualFold(s.SSL["ssl"], "on")
	for _, l := range listen {
		f := strings.Fields(l)
		if len(f) == 0 {
			continue
		}
		port, ok := listenPort(f[0])
		if !ok {
			continue
		}
		ln := Listener{Address: f[0], Port: port, SSL: sslOn, Stream: stream}
		for _, opt := range f[1:] {
			switch opt {
			case "ssl":
				ln.SSL = true
			case "udp":
				ln.UDP = true
			}
		}
		i.SSL = i.SSL || ln.SSL
		i.Listeners = append(i.Listeners, ln)
	}
}

// listenPort reads the port of a listen address. A bare host listens on
// 80; unix sockets have no port.
func listenPort(addr string) (int, bool) {
	if strings.HasPrefix(addr, "unix:") {
		return 0, false
	}
	if n, err := strconv.Atoi(addr); err == nil {
		return n, true
	}
	if strings.HasSuffix(addr, "]") {
		return 80, true
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		n, err := strconv.Atoi(addr[i+1:])
		return n, err == nil
	}
	return 80, true
}

// params collects the simple directives of a block by name.
func params(dirs []*Directive) map[string][]string {
	out := map[string][]string{}
	for _, d := range dirs {
		if !d.IsBlock() {
			out[d.Name] = append(out[d.Name], d.Value())
		}
	}
	return out
}

func first(ps map[string][]string, name string) string {
	if v := ps[name]; len(v) > 0 {
		return v[len(v)-1]
	}
	return ""
}

func prefixed(ps map[string][]string, prefix string) map[string]string {
	var out map[string]string
	for k := range ps {
		if strings.HasPrefix(k, prefix) {
			if out == nil {
				out = map[string]string{}
			}
			out[k] = first(ps, k)
		}
	}
	return out
}

func prefixedAll(ps map[string][]string, prefix string) map[string][]string {
	var out map[string][]string
	for k, v := range ps {
		if strings.HasPrefix(k, prefix) {
			if out == nil {
				out = map[string][]string{}
			}
			out[k] = v
		}
	}
	return out
}
