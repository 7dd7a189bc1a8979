package nginx

import (
	"path"
	"strings"

	"github.com/vulntor/assessor/pkg/middleware"
)

// ToRecord maps inst to its discovery record. A port is SSL when any
// listener on it enables ssl or it looks like an https port; stream
// ports report TCP or UDP.
func ToRecord(inst *Instance) middleware.Record {
	name := strings.TrimSuffix(path.Base(inst.ConfigPath), path.Ext(inst.ConfigPath))
	if name == "" || name == "." || name == "/" {
		name = "nginx"
	}
	rec := middleware.Record{
		Kind:          middleware.KindNginx,
		Name:          name,
		Path:          path.Dir(inst.ConfigPath),
		Detail:        inst.ConfigPath,
		Ports:         inst.ListenPorts(),
		EngineVersion: inst.Runtime.Version,
		Running:       inst.Runtime.Running || inst.Runtime.RunUser != "",
	}
	rec.Protocols = make([]string, 0, len(rec.Ports))
	for _, port := range rec.Ports {
		rec.Protocols = append(rec.Protocols, inst.protocol(port))
	}
	if rec.Running {
		rec.RunUser = inst.Runtime.RunUser
	}
	return rec
}

func (i *Instance) protocol(port int) string {
	proto := middleware.WebProtocol(port)
	for _, l := range i.Listeners {
		if l.Port != port {
			continue
		}
		switch {
		case l.SSL:
			return "SSL"
		case l.Stream && l.UDP:
			proto = "UDP"
		case l.Stream:
			proto = "TCP"
		}
	}
	return proto
}
