// Package bind turns command line flags and inventory files into the
// parameters the assessment service works with.
package bind

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/conn"
)

// AddTargetFlags registers the flags read by BindTarget.
func AddTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Host name or address")
	cmd.Flags().Int("port", 0, "Port (default: ssh.port or winrm.port)")
	cmd.Flags().StringP("user", "u", "", "Login user")
	cmd.Flags().String("password", "", "Login password")
	cmd.Flags().String("key", "", "Private key file")
	cmd.Flags().String("passphrase", "", "Private key passphrase")
	cmd.Flags().String("root-password", "", "Root password used to switch user when sudo is unavailable")
	cmd.Flags().String("transport", string(conn.TransportSSH), "Transport (ssh, winrm)")
}

// BindTarget reads the connection flags. The private key is loaded from
// --key; secrets are not validated here so that the service reports every
// invalid target the same way.
func BindTarget(cmd *cobra.Command) (conn.Target, error) {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	keyFile, _ := cmd.Flags().GetString("key")
	passphrase, _ := cmd.Flags().GetString("passphrase")
	rootPassword, _ := cmd.Flags().GetString("root-password")
	transport, _ := cmd.Flags().GetString("transport")

	t := conn.Target{
		Address:      strings.TrimSpace(host),
		Port:         port,
		Username:     user,
		Password:     password,
		Passphrase:   passphrase,
		RootPassword: rootPassword,
		Transport:    conn.Transport(strings.ToLower(transport)),
	}
	if keyFile != "" {
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return t, conn.NewInvalidTargetError(fmt.Errorf("read private key: %w", err))
		}
		t.PrivateKey = key
	}
	return t, nil
}

// ParseMiddlewareFlag parses "kind=path". The kind and path themselves are
// checked by the service before it dials.
func ParseMiddlewareFlag(value string) (assessexec.MiddlewareSpec, error) {
	kind, path, ok := strings.Cut(value, "=")
	if !ok {
		return assessexec.MiddlewareSpec{}, fmt.Errorf("invalid middleware %q (want kind=path)", value)
	}
	return assessexec.MiddlewareSpec{
		Kind: middlewareKind(kind),
		Path: strings.TrimSpace(path),
	}, nil
}

// BindMiddlewareSpecs parses every --middleware value.
func BindMiddlewareSpecs(cmd *cobra.Command) ([]assessexec.MiddlewareSpec, error) {
	values, _ := cmd.Flags().GetStringArray("middleware")
	specs := make([]assessexec.MiddlewareSpec, 0, len(values))
	for _, v := range values {
		spec, err := ParseMiddlewareFlag(v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
