package bind

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/middleware"
	"gopkg.in/yaml.v3"
)

// Inventory is the batch input file.
//
//	defaults:
//	  username: audit
//	  key_file: ~/.ssh/id_ed25519
//	hosts:
//	  - address: 10.0.0.0/29
//	  - address: 10.0.0.5
//	    middleware:
//	      - kind: tomcat
//	        path: /opt/tomcat
type Inventory struct {
	Defaults HostDefaults `yaml:"defaults"`
	Hosts    []HostEntry  `yaml:"hosts"`
}

// HostDefaults fill fields a host entry leaves empty.
type HostDefaults struct {
	Username     string         `yaml:"username"`
	Password     string         `yaml:"password"`
	KeyFile      string         `yaml:"key_file"`
	Passphrase   string         `yaml:"passphrase"`
	RootPassword string         `yaml:"root_password"`
	Port         int            `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Transport    conn.Transport `yaml:"transport" validate:"omitempty,oneof=ssh winrm"`
}

// HostEntry is one host of the inventory.
type HostEntry struct {
	assessexec.Params `yaml:",inline"`
	KeyFile           string `yaml:"key_file"`
}

var validate = validator.New()

// LoadInventory reads path and returns one Params per host with defaults
// applied. Addresses given as CIDR or range expand to one host each.
// Relative key files resolve against the inventory directory.
func LoadInventory(path string) ([]assessexec.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}
	if err := validate.Struct(inv.Defaults); err != nil {
		return nil, conn.NewInvalidTargetError(fmt.Errorf("inventory defaults: %w", err))
	}
	if len(inv.Hosts) == 0 {
		return nil, assessexec.ErrNoHosts
	}

	base := filepath.Dir(path)
	keys := map[string][]byte{}
	readKey := func(name string) ([]byte, error) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(base, name)
		}
		if k, ok := keys[name]; ok {
			return k, nil
		}
		k, err := os.ReadFile(name)
		if err != nil {
			return nil, conn.NewInvalidTargetError(fmt.Errorf("read private key: %w", err))
		}
		keys[name] = k
		return k, nil
	}

	params := make([]assessexec.Params, 0, len(inv.Hosts))
	for i, h := range inv.Hosts {
		p := h.Params
		if strings.TrimSpace(p.Target.Address) == "" {
			return nil, conn.NewInvalidTargetError(fmt.Errorf("inventory host %d has no address", i+1))
		}
		applyDefaults(&p.Target, inv.Defaults)

		keyFile := h.KeyFile
		if keyFile == "" && len(p.Target.PrivateKey) == 0 {
			keyFile = inv.Defaults.KeyFile
		}
		if keyFile != "" {
			key, err := readKey(keyFile)
			if err != nil {
				return nil, err
			}
			p.Target.PrivateKey = key
		}
		for j := range p.Middleware {
			p.Middleware[j].Kind = middlewareKind(string(p.Middleware[j].Kind))
		}

		addrs, err := ExpandAddress(p.Target.Address)
		if err != nil {
			return nil, conn.NewInvalidTargetError(fmt.Errorf("inventory host %d: %w", i+1, err))
		}
		for k, addr := range addrs {
			host := p
			host.Target.Address = addr
			host.Middleware = slices.Clone(p.Middleware)
			if len(addrs) > 1 && p.RunID != "" {
				host.RunID = fmt.Sprintf("%s-%d", p.RunID, k+1)
			}
			params = append(params, host)
		}
	}
	return params, nil
}

func applyDefaults(t *conn.Target, d HostDefaults) {
	if t.Username == "" {
		t.Username = d.Username
	}
	if t.Password == "" {
		t.Password = d.Password
	}
	if t.Passphrase == "" {
		t.Passphrase = d.Passphrase
	}
	if t.RootPassword == "" {
		t.RootPassword = d.RootPassword
	}
	if t.Port == 0 {
		t.Port = d.Port
	}
	if t.Transport == "" {
		t.Transport = d.Transport
	}
}

func middlewareKind(s string) middleware.Kind {
	return middleware.Kind(strings.ToLower(strings.TrimSpace(s)))
}
