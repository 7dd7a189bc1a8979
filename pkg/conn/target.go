// Package conn describes how to reach a remote host and runs commands on it
// over SSH or WinRM behind a single transport-agnostic contract.
package conn

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Transport selects the remote shell protocol.
type Transport string

const (
	TransportSSH   Transport = "ssh"
	TransportWinRM Transport = "winrm"
)

// Target is the immutable description of one host: where it lives, who we
// log in as and the optional secret used to switch to root.
type Target struct {
	Address      string    `yaml:"address" json:"address" validate:"required"`
	Port         int       `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Username     string    `yaml:"username" json:"username" validate:"required"`
	Password     string    `yaml:"password" json:"-"`
	PrivateKey   []byte    `yaml:"private_key" json:"-"`
	Passphrase   string    `yaml:"passphrase" json:"-"`
	RootPassword string    `yaml:"root_password" json:"-"`
	Transport    Transport `yaml:"transport" json:"transport" validate:"omitempty,oneof=ssh winrm"`
}

var validate = validator.New()

// Validate reports missing connection data before any remote call is made.
func (t Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		return NewInvalidTargetError(err)
	}
	if t.Password == "" && len(t.PrivateKey) == 0 {
		return NewInvalidTargetError(fmt.Errorf("password or private key required for %s", t.Username))
	}
	if t.IsWindows() && t.Password == "" {
		return NewInvalidTargetError(fmt.Errorf("winrm requires a password"))
	}
	return nil
}

// IsRoot reports whether the login identity is already root.
func (t Target) IsRoot() bool {
	return t.Username == "root"
}

// IsWindows reports whether the target is reached over WinRM.
func (t Target) IsWindows() bool {
	return t.Transport == TransportWinRM
}

// TransportOrDefault returns the transport, defaulting to SSH.
func (t Target) TransportOrDefault() Transport {
	if t.Transport == "" {
		return TransportSSH
	}
	return t.Transport
}

// HostPort joins address and port, falling back to def when no port is set.
func (t Target) HostPort(def int) string {
	port := t.Port
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(strings.TrimSpace(t.Address), strconv.Itoa(port))
}

// String never includes secrets.
func (t Target) String() string {
	return fmt.Sprintf("%s@%s (%s)", t.Username, t.HostPort(0), t.TransportOrDefault())
}

// MarshalZerologObject logs the target without any credential material.
func (t Target) MarshalZerologObject(e *zerolog.Event) {
	e.Str("address", t.Address).
		Int("port", t.Port).
		Str("user", t.Username).
		Str("transport", string(t.TransportOrDefault()))
}
