package apache

import (
	"path"

	"github.com/vulntor/assessor/pkg/middleware"
)

// ToRecord maps inst to its discovery record. The run user is only
// reported for a running server.
func ToRecord(inst *Instance) middleware.Record {
	rec := middleware.Record{
		Kind:          middleware.KindApache,
		Name:          inst.ServerName,
		Path:          inst.ServerRoot,
		Detail:        inst.ConfigPath,
		Ports:         append([]int(nil), inst.Listen...),
		Protocols:     make([]string, 0, len(inst.Listen)),
		EngineVersion: inst.Runtime.Version,
		Running:       inst.Runtime.Running,
	}
	if rec.Name == "" {
		rec.Name = path.Base(inst.ServerRoot)
	}
	for _, p := range inst.Listen {
		rec.Protocols = append(rec.Protocols, middleware.WebProtocol(p))
	}
	if rec.Running {
		rec.RunUser = inst.Runtime.RunUser
	}
	return rec
}
