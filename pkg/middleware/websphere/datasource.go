package websphere

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"github.com/vulntor/assessor/pkg/middleware"
)

// builtinDataSources ship with every profile and are not reported.
var builtinDataSources = []string{"built-in-derby-datasource", "OTiSDataSource", "DefaultEJBTimerDataSource"}

// DataSource is a JDBC data source defined in resources.xml or through
// -D options of a server JVM.
type DataSource struct {
	Scope      string `json:"scope" yaml:"scope"`
	Name       string `json:"name" yaml:"name"`
	JNDIName   string `json:"jndi_name,omitempty" yaml:"jndi_name,omitempty"`
	Provider   string `json:"provider,omitempty" yaml:"provider,omitempty"`
	AuthAlias  string `json:"auth_alias,omitempty" yaml:"auth_alias,omitempty"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	MinConns   int    `json:"min_connections,omitempty" yaml:"min_connections,omitempty"`
	MaxConns   int    `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	TimeoutSec int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// dataSources reads dir/resources.xml. scope is cell, node or server.
func (p *Parser) dataSources(ctx context.Context, inst *Instance, dir, scope string) ([]DataSource, error) {
	file := path.Join(dir, "resources.xml")
	data, found, err := p.read(ctx, inst, file)
	if err != nil || !found {
		return nil, err
	}
	var out []DataSource
	err = middleware.EachXML(data, "JDBCProvider", func(prov *jdbcProviderXML) {
		for _, f := range prov.Factories {
			if slices.Contains(builtinDataSources, f.Name) {
				continue
			}
			props := map[string]string{}
			for _, rp := range f.Properties {
				props[rp.Name] = rp.Value
			}
			out = append(out, DataSource{
				Scope:      scope,
				Name:       f.Name,
				JNDIName:   f.JndiName,
				Provider:   prov.Name,
				AuthAlias:  f.AuthDataAlias,
				URL:        ConnectionURL(prov.ImplementationClassName, props),
				MinConns:   cast.ToInt(f.Pool.Min),
				MaxConns:   cast.ToInt(f.Pool.Max),
				TimeoutSec: cast.ToInt(f.Pool.Timeout),
			})
		}
	})
	if err != nil {
		inst.warn("%s: %v", file, err)
	}
	return out, nil
}

// ConnectionURL rebuilds a JDBC URL from the resource properties of a data
// source. DB2 and SQL Server providers store host, port and database
// separately; others carry a URL property.
func ConnectionURL(implClass string, props map[string]string) string {
	server, port, db := props["serverName"], props["portNumber"], props["databaseName"]
	lower := strings.ToLower(implClass)
	hostPort := server
	if port != "" {
		hostPort += ":" + port
	}
	switch {
	case strings.Contains(lower, "com.ibm.db2.jdbc.app"):
		return "jdbc:db2:" + db
	case strings.Contains(lower, "com.ibm.as400"):
		return "jdbc:as400://" + server
	case strings.Contains(lower, "ibm"):
		return "jdbc:db2://" + hostPort + "/" + db
	case strings.Contains(lower, "sqlserver"):
		return "jdbc:sqlserver://" + hostPort + ";DatabaseName=" + db
	default:
		return props["URL"]
	}
}

// optionDataSources builds a data source from -D options of a server JVM
// whose names mention a datasource.
func optionDataSources(args []string) []DataSource {
	var ds *DataSource
	for key, value := range middleware.SystemProperties(args) {
		lower := strings.ToLower(key)
		if !strings.Contains(lower, "datasource") {
			continue
		}
		if ds == nil {
			ds = &DataSource{Scope: "options"}
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
	return []DataSource{*ds}
}
