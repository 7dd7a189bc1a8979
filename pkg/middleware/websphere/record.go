package websphere

import (
	"path"
	"strings"

	"github.com/vulntor/assessor/pkg/middleware"
)

// ToRecords maps every application server of inst to a discovery record.
// Node agents and deployment managers are not reported. Each record carries
// the web container ports of its own server.
func ToRecords(inst *Instance) []middleware.Record {
	out := []middleware.Record{}
	for _, prof := range inst.Profiles {
		for _, cell := range prof.Cells {
			for _, node := range cell.Nodes {
				for _, srv := range node.Servers {
					if srv.Type != ApplicationServer {
						continue
					}
					out = append(out, serverRecord(inst, prof, cell, node, srv))
				}
			}
		}
	}
	return out
}

func serverRecord(inst *Instance, prof Profile, cell Cell, node Node, srv Server) middleware.Record {
	rec := middleware.Record{
		Kind:           middleware.KindWebSphere,
		Name:           srv.Name,
		Path:           path.Join(prof.Path, "config", "cells", cell.Name, "nodes", node.Name, "servers", srv.Name),
		Detail:         strings.Join([]string{prof.Name, cell.Name, node.Name, srv.Name}, "|"),
		Ports:          []int{},
		Protocols:      []string{},
		EngineVersion:  inst.Engine.Version,
		RuntimeVersion: inst.Runtime.JavaVersion,
	}
	for _, ep := range []struct{ name, proto string }{{EndpointHTTP, "HTTP"}, {EndpointHTTPS, "SSL"}} {
		n := len(rec.Ports)
		rec.Ports = middleware.AppendPort(rec.Ports, srv.Port(ep.name))
		if len(rec.Ports) > n {
			rec.Protocols = append(rec.Protocols, ep.proto)
		}
	}

	rt, ok := inst.ServerRuntimes[srv.Name]
	if !ok {
		rt = inst.Runtime
	}
	rec.Running = rt.Running
	if rec.Running {
		rec.RunUser = rt.RunUser
	}
	if rt.JavaVersion != "" {
		rec.RuntimeVersion = rt.JavaVersion
	}
	return rec
}

// Interface is a data source reference of a server, with its scope.
type Interface struct {
	Type     string `json:"type" yaml:"type"`
	Scope    string `json:"scope" yaml:"scope"`
	Server   string `json:"server,omitempty" yaml:"server,omitempty"`
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
}

// Interfaces lists the data sources of the installation, cell scope first.
func (i *Instance) Interfaces() []Interface {
	var out []Interface
	add := func(server string, list []DataSource) {
		for _, ds := range list {
			name := ds.JNDIName
			if name == "" {
				name = ds.Name
			}
			out = append(out, Interface{
				Type:     middleware.InterfaceType(name, ds.URL),
				Scope:    ds.Scope,
				Server:   server,
				Name:     name,
				URL:      ds.URL,
				Username: ds.Username,
			})
		}
	}
	for _, prof := range i.Profiles {
		for _, cell := range prof.Cells {
			add("", cell.DataSources)
			for _, node := range cell.Nodes {
				add("", node.DataSources)
				for _, srv := range node.Servers {
					add(srv.Name, srv.DataSources)
				}
			}
		}
	}
	return out
}
