package privilege

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/conn/conntest"
	"github.com/vulntor/assessor/pkg/logging"
)

func target(user string) conn.Target {
	return conn.Target{Address: "10.0.0.5", Username: user, Password: "pw"}
}

func TestProbe_Root(t *testing.T) {
	session := conntest.NewSession()
	dialer := &conntest.Dialer{Session: session}

	d, err := NewProber(dialer).Probe(context.Background(), target("root"))
	require.NoError(t, err)
	assert.True(t, d.Privileged)
	assert.False(t, d.Elevate)
	assert.Empty(t, session.Executed())
	assert.True(t, session.Closed(), "transient session is released")
}

func TestProbe_UIDZero(t *testing.T) {
	session := conntest.NewSession().On("id -u", "0\n")

	d, err := NewProber(&conntest.Dialer{Session: session}).Probe(context.Background(), target("toor"))
	require.NoError(t, err)
	assert.True(t, d.Privileged)
	assert.Equal(t, "uname -r", d.Wrap("uname -r"))
}

func TestProbe_Sudo(t *testing.T) {
	session := conntest.NewSession().
		On("id -u", "1000\n").
		On("sudo -n echo 'deploy'", "deploy\n")

	d, err := NewProber(&conntest.Dialer{Session: session}).Probe(context.Background(), target("deploy"))
	require.NoError(t, err)
	assert.False(t, d.Privileged)
	assert.True(t, d.Elevate)
	assert.Equal(t, MethodSudo, d.Method)
	assert.True(t, d.Effective())
	assert.Equal(t, "sudo cat /etc/shadow", d.Wrap("sudo cat /etc/shadow"))
}

func TestProbe_SwitchUser(t *testing.T) {
	session := conntest.NewSession().
		On("id -u", "1000\n").
		OnFail("sudo -n echo 'deploy'", "sudo: a password is required").
		OnRoot("whoami", "Password: \nroot\n")
	session.RootSecret = "s3cret-root"

	tgt := target("deploy")
	tgt.RootPassword = "s3cret-root"

	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter("privilege", zerolog.DebugLevel, &buf)

	d, err := NewProber(&conntest.Dialer{Session: session}).WithLogger(logger).Probe(context.Background(), tgt)
	require.NoError(t, err)
	assert.True(t, d.Elevate)
	assert.Equal(t, MethodSwitchUser, d.Method)
	assert.Equal(t, "cat /etc/shadow", d.Wrap("cat /etc/shadow"))
	assert.NotContains(t, buf.String(), "s3cret-root")
	assert.NotContains(t, buf.String(), "\"pw\"")
}

func TestProbe_WrongRootSecret(t *testing.T) {
	session := conntest.NewSession().On("id -u", "1000\n")
	session.RootSecret = "right"

	tgt := target("deploy")
	tgt.RootPassword = "wrong"

	ok, err := NewProber(&conntest.Dialer{Session: session}).CanElevate(context.Background(), tgt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbe_NoElevation(t *testing.T) {
	session := conntest.NewSession().On("id -u", "1000\n")

	d, err := NewProber(&conntest.Dialer{Session: session}).Probe(context.Background(), target("guest"))
	require.NoError(t, err)
	assert.False(t, d.Effective())
	assert.Equal(t, MethodNone, d.Method)
}

func TestProbe_DialFailureIsConnectivity(t *testing.T) {
	dialer := &conntest.Dialer{Err: errors.New("connection refused")}

	_, err := NewProber(dialer).Probe(context.Background(), target("deploy"))
	require.Error(t, err)
	assert.ErrorIs(t, err, conn.ErrConnectivity)
}

func TestProbe_TransportFailureIsConnectivity(t *testing.T) {
	session := conntest.NewSession().OnError("id -u", errors.New("channel closed"))

	_, err := NewProber(&conntest.Dialer{Session: session}).IsAlreadyPrivileged(context.Background(), target("deploy"))
	require.Error(t, err)
	assert.ErrorIs(t, err, conn.ErrConnectivity)
	assert.True(t, session.Closed())
}

func TestProbe_CanceledPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProber(&conntest.Dialer{Session: conntest.NewSession()}).Probe(ctx, target("deploy"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, conn.ErrConnectivity)
}

func TestProbe_WindowsAdministrator(t *testing.T) {
	session := conntest.NewSession().On(
		"([Security.Principal.WindowsPrincipal][Security.Principal.WindowsIdentity]::GetCurrent()).IsInRole([Security.Principal.WindowsBuiltInRole]::Administrator)",
		"True\r\n",
	)

	tgt := target("Administrator")
	tgt.Transport = conn.TransportWinRM

	d, err := NewProber(&conntest.Dialer{Session: session}).Probe(context.Background(), tgt)
	require.NoError(t, err)
	assert.True(t, d.Privileged)
	assert.Zero(t, session.Count("sudo"))
}
