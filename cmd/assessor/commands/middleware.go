package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/bind"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/middleware"
)

func newMiddlewareCommand() *cobra.Command {
	var (
		spec   assessexec.MiddlewareSpec
		kind   string
		sudo   bool
		detail bool
	)

	cmd := &cobra.Command{
		Use:   "middleware",
		Short: "Parse one middleware installation",
		Long: `Parse an Apache, Nginx, Tomcat or WebSphere installation and print its
discovery records.

Without --host the files are read from the local file system and no
process or version probes run. With --host the files are read over the
remote shell; --sudo reads them through sudo.`,
		Example: `  # Local nginx
  assessor middleware --kind nginx --path /etc/nginx/nginx.conf

  # Remote Tomcat with a separate CATALINA_HOME
  assessor middleware --kind tomcat --path /srv/tomcat/base --home /opt/tomcat \
    --host 10.0.0.5 --user root --key ~/.ssh/id_ed25519

  # Full parsed instance instead of records
  assessor middleware --kind websphere --path /opt/IBM/WebSphere/AppServer --detail -o yaml`,
		GroupID: "assess",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			logger := log.With().Str("command", "middleware").Logger()

			parsed, err := middleware.ParseKind(kind)
			if err != nil {
				return report(cmd, err)
			}
			spec.Kind = parsed
			if err := spec.Validate(); err != nil {
				return report(cmd, err)
			}

			var (
				src    middleware.Source
				runner conn.Runner
			)
			if host, _ := cmd.Flags().GetString("host"); host == "" {
				src = middleware.FromFS(os.DirFS("/"))
			} else {
				target, err := bind.BindTarget(cmd)
				if err != nil {
					return report(cmd, err)
				}
				if err := target.Validate(); err != nil {
					return report(cmd, err)
				}
				session, err := dialer(ctx, loadedConfig(ctx)).Dial(ctx, target)
				if err != nil {
					return report(cmd, conn.WrapConnectivity(target, err))
				}
				defer func() {
					if err := session.Close(); err != nil {
						logger.Debug().Err(err).Msg("Failed to close session")
					}
				}()
				src = middleware.Remote(session).WithElevation(sudo)
				runner = session
			}

			inst, err := assessexec.ParseMiddleware(ctx, src, runner, spec)
			if err != nil {
				return report(cmd, err)
			}
			logger.Info().Str("kind", string(spec.Kind)).Str("path", spec.Path).Int("records", len(inst.Records())).Msg("Middleware parsed")

			f := getFormatter(cmd)
			if detail {
				if f.Mode() == format.ModeTable {
					return f.PrintYAML(inst)
				}
				return f.Print(inst)
			}
			return format.PrintRecords(f, inst.Records())
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", fmt.Sprintf("Middleware kind (%s)", kindList()))
	cmd.Flags().StringVar(&spec.Path, "path", "", "Main config file (apache, nginx), CATALINA_BASE (tomcat) or install root (websphere)")
	cmd.Flags().StringVar(&spec.Home, "home", "", "CATALINA_HOME when it differs from the base (tomcat)")
	cmd.Flags().StringArrayVar(&spec.Options, "option", nil, "JVM option of the running server, e.g. -Dport.http=8080 (repeatable)")
	cmd.Flags().StringVar(&spec.Binary, "binary", "", "Server binary printing its version with -v (apache, nginx)")
	cmd.Flags().StringVar(&spec.Java, "java", "", "Java binary printing the JVM version (tomcat, websphere)")
	cmd.Flags().StringVar(&spec.Marker, "marker", "", "Text identifying the server process in ps output")
	cmd.Flags().BoolVar(&sudo, "sudo", false, "Read remote files through sudo")
	cmd.Flags().BoolVar(&detail, "detail", false, "Print the parsed instance instead of records")
	bind.AddTargetFlags(cmd)

	return cmd
}

func kindList() string {
	kinds := middleware.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
