package tomcat

import (
	"path"
	"strings"

	"github.com/vulntor/assessor/pkg/middleware"
)

// ToRecord maps inst to its discovery record. Each connector contributes
// its port once; the protocol is SSL, AJP or HTTP.
func ToRecord(inst *Instance) middleware.Record {
	rec := middleware.Record{
		Kind:           middleware.KindTomcat,
		Name:           path.Base(inst.Base),
		Path:           inst.Base,
		Detail:         inst.Base,
		Ports:          []int{},
		Protocols:      []string{},
		EngineVersion:  inst.Version,
		RuntimeVersion: inst.Runtime.JavaVersion,
		Running:        inst.Runtime.Running,
	}
	if rec.EngineVersion == "" {
		rec.EngineVersion = inst.Runtime.Version
	}
	for _, c := range inst.Connectors {
		n := len(rec.Ports)
		rec.Ports = middleware.AppendPort(rec.Ports, c.Port)
		if len(rec.Ports) > n {
			rec.Protocols = append(rec.Protocols, c.protocolLabel())
		}
	}
	if rec.Running {
		rec.RunUser = inst.Runtime.RunUser
	}
	return rec
}

func (c Connector) protocolLabel() string {
	switch {
	case c.SSLEnabled || strings.EqualFold(c.Scheme, "https"):
		return "SSL"
	case strings.Contains(strings.ToUpper(c.Protocol), "AJP"):
		return "AJP"
	default:
		return "HTTP"
	}
}

// Interface is a datasource reference found in the instance resources.
type Interface struct {
	Type     string `json:"type" yaml:"type"`
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
}

// Interfaces lists the DataSource resources of the instance.
func (i *Instance) Interfaces() []Interface {
	var out []Interface
	for _, group := range [][]Resource{i.GlobalResources, i.Resources} {
		for _, r := range group {
			if !strings.Contains(r.Type, "DataSource") {
				continue
			}
			out = append(out, Interface{Type: middleware.InterfaceType(r.Name, r.URL), Name: r.Name, URL: r.URL, Username: r.Username})
		}
	}
	return out
}
