package assessexec

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/middleware"
	"github.com/vulntor/assessor/pkg/middleware/apache"
	"github.com/vulntor/assessor/pkg/middleware/nginx"
	"github.com/vulntor/assessor/pkg/middleware/tomcat"
	"github.com/vulntor/assessor/pkg/middleware/websphere"
)

// MiddlewareSpec locates one middleware installation on a host.
type MiddlewareSpec struct {
	Kind middleware.Kind `yaml:"kind" json:"kind"`
	// Path is the main config file for apache and nginx, CATALINA_BASE for
	// tomcat and the install root for websphere.
	Path    string   `yaml:"path" json:"path"`
	Home    string   `yaml:"home,omitempty" json:"home,omitempty"`
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`
	// Binary prints the server version with -v (apache, nginx).
	Binary string `yaml:"binary,omitempty" json:"binary,omitempty"`
	// Java prints the JVM version with -version (tomcat, websphere).
	Java string `yaml:"java,omitempty" json:"java,omitempty"`
	// Marker identifies the server process in ps output.
	Marker string `yaml:"marker,omitempty" json:"marker,omitempty"`
}

// Validate reports an unknown kind or a missing path before any remote
// call is made.
func (s MiddlewareSpec) Validate() error {
	kind, err := middleware.ParseKind(string(s.Kind))
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.Path) == "" {
		return middleware.NewInsufficientInputError(fmt.Sprintf("%s path is empty", kind), nil)
	}
	return nil
}

// ParseMiddleware reads the installation described by spec from src. When
// runner is not nil the running process and the engine and JVM versions
// are probed too; probe failures leave the runtime empty.
func ParseMiddleware(ctx context.Context, src middleware.Source, runner conn.Runner, spec MiddlewareSpec) (middleware.Instance, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	kind, _ := middleware.ParseKind(string(spec.Kind))

	switch kind {
	case middleware.KindApache:
		inst, err := apache.Parse(ctx, src, spec.Path)
		if err != nil {
			return nil, err
		}
		rt, err := probe(ctx, runner, spec, "httpd", "apache2")
		if err != nil {
			return nil, err
		}
		inst.Runtime = rt
		return inst, nil

	case middleware.KindNginx:
		inst, err := nginx.Parse(ctx, src, spec.Path)
		if err != nil {
			return nil, err
		}
		rt, err := probe(ctx, runner, spec, "nginx: master")
		if err != nil {
			return nil, err
		}
		inst.Runtime = rt
		return inst, nil

	case middleware.KindTomcat:
		inst, err := tomcat.NewParser(src).WithHome(spec.Home).WithOptions(spec.Options).Parse(ctx, spec.Path)
		if err != nil {
			return nil, err
		}
		rt, err := probe(ctx, runner, spec, "-Dcatalina.base="+inst.Base)
		if err != nil {
			return nil, err
		}
		inst.Runtime = rt
		return inst, nil

	default:
		inst, err := websphere.Parse(ctx, src, spec.Path)
		if err != nil {
			return nil, err
		}
		if spec.Java == "" {
			spec.Java = path.Join(inst.InstallRoot, "java", "bin", "java")
		}
		if err := probeWebSphere(ctx, runner, spec, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}
}

// probe fills a Runtime from ps, the version banner and java -version.
// Only context and connectivity errors are returned.
func probe(ctx context.Context, runner conn.Runner, spec MiddlewareSpec, markers ...string) (middleware.Runtime, error) {
	var rt middleware.Runtime
	if runner == nil {
		return rt, nil
	}
	if spec.Marker != "" {
		markers = []string{spec.Marker}
	}
	for _, m := range markers {
		found, err := middleware.ProbeProcess(ctx, runner, m)
		if err != nil {
			return rt, err
		}
		if found.Running {
			rt = found
			break
		}
	}
	if spec.Binary != "" {
		out, err := runner.Execute(ctx, conn.ShellQuote(spec.Binary)+" -v 2>&1")
		if err != nil {
			return rt, err
		}
		_, rt.Version = middleware.ParseServerVersion(out.Stdout + "\n" + out.Stderr)
	}
	if spec.Java != "" {
		if err := javaVersion(ctx, runner, spec.Java, &rt); err != nil {
			return rt, err
		}
	}
	return rt, nil
}

func javaVersion(ctx context.Context, runner conn.Runner, java string, rt *middleware.Runtime) error {
	out, err := runner.Execute(ctx, conn.ShellQuote(java)+" -version 2>&1")
	if err != nil {
		return err
	}
	rt.JavaVersion, rt.JavaVendor = middleware.ParseJavaVersion(out.Stdout + "\n" + out.Stderr)
	return nil
}

// probeWebSphere looks up every application server process by its
// "cell node server" argument tail.
func probeWebSphere(ctx context.Context, runner conn.Runner, spec MiddlewareSpec, inst *websphere.Instance) error {
	if runner == nil {
		return nil
	}
	out, err := runner.Execute(ctx, "ps -eo user,args")
	if err != nil {
		return err
	}
	if err := javaVersion(ctx, runner, spec.Java, &inst.Runtime); err != nil {
		return err
	}
	inst.Runtime.Version = inst.Engine.Version

	for _, prof := range inst.Profiles {
		for _, cell := range prof.Cells {
			for _, node := range cell.Nodes {
				for _, srv := range node.Servers {
					marker := strings.Join([]string{cell.Name, node.Name, srv.Name}, " ")
					rt := middleware.ParseProcessList(out.Stdout, marker)
					if !rt.Running {
						continue
					}
					if inst.ServerRuntimes == nil {
						inst.ServerRuntimes = map[string]middleware.Runtime{}
					}
					rt.JavaVersion, rt.JavaVendor = inst.Runtime.JavaVersion, inst.Runtime.JavaVendor
					inst.ServerRuntimes[srv.Name] = rt
					inst.Runtime.Running = true
					inst.Runtime.RunUser = rt.RunUser
				}
			}
		}
	}
	return nil
}
