package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/conn/conntest"
	"github.com/vulntor/assessor/pkg/distro"
	"github.com/vulntor/assessor/pkg/privilege"
)

var deploy = conn.Target{Address: "10.0.0.5", Username: "deploy", Password: "pw"}

func smallCatalog() catalog.Catalog {
	return catalog.New(distro.FamilyDebian,
		catalog.Entry{Key: catalog.Hostname, Command: "uname -n"},
		catalog.Entry{Key: catalog.Kernel, Command: "uname -r"},
		catalog.Entry{Key: catalog.Crontab1, Command: "find /var/spool/cron -type f"},
		catalog.Entry{Key: catalog.Uptime, Command: "uptime"},
	)
}

func TestRun_OneResultPerKey(t *testing.T) {
	session := conntest.NewSession().
		On("uname -n", "web01\n").
		On("uname -r", "5.15.0\n").
		OnFail("find /var/spool/cron -type f", "find: '/var/spool/cron': Permission denied").
		OnPanic("uptime")

	for _, parallelism := range []int{1, 4} {
		results, err := New(Options{Parallelism: parallelism}).Run(context.Background(), session, smallCatalog(), privilege.Decision{}, deploy)
		require.NoError(t, err)
		require.Len(t, results, 4)

		out, ok := results.Stdout(catalog.Hostname)
		assert.True(t, ok)
		assert.Equal(t, "web01\n", out)

		assert.True(t, results.Failed(catalog.Crontab1))
		assert.Contains(t, results[catalog.Crontab1].Message, "Permission denied")

		assert.True(t, results[catalog.Uptime].Err)
		assert.Contains(t, results[catalog.Uptime].Message, "panic")

		assert.Len(t, results.Errors(), 2)
	}
}

func TestRun_StderrWithOutputIsSuccess(t *testing.T) {
	session := conntest.NewSession().OnOutput("uname -n", conn.Output{Stdout: "web01", Stderr: "warning: locale", ExitCode: 1})
	cat := catalog.New(distro.FamilyDebian, catalog.Entry{Key: catalog.Hostname, Command: "uname -n"})

	results, err := New(DefaultOptions()).Run(context.Background(), session, cat, privilege.Decision{}, deploy)
	require.NoError(t, err)
	assert.False(t, results[catalog.Hostname].Err)
}

func TestRun_EmptyExitNonZeroIsFailure(t *testing.T) {
	session := conntest.NewSession().OnOutput("uname -n", conn.Output{ExitCode: 127})
	cat := catalog.New(distro.FamilyDebian, catalog.Entry{Key: catalog.Hostname, Command: "uname -n"})

	results, err := New(DefaultOptions()).Run(context.Background(), session, cat, privilege.Decision{}, deploy)
	require.NoError(t, err)
	assert.True(t, results[catalog.Hostname].Err)
	assert.Equal(t, "exit status 127", results[catalog.Hostname].Message)
}

func TestRun_SudoWrapping(t *testing.T) {
	session := conntest.NewSession().On("sudo uname -n", "web01")
	cat := catalog.New(distro.FamilyDebian, catalog.Entry{Key: catalog.Hostname, Command: "sudo uname -n"})
	decision := privilege.Decision{Elevate: true, Method: privilege.MethodSudo}

	results, err := New(DefaultOptions()).Run(context.Background(), session, cat, decision, deploy)
	require.NoError(t, err)
	assert.Equal(t, "sudo uname -n", results[catalog.Hostname].Command)
	assert.Equal(t, "web01", results[catalog.Hostname].Output)

	root := conn.Target{Address: "10.0.0.5", Username: "root", Password: "pw"}
	results, err = New(DefaultOptions()).Run(context.Background(), session, catalog.New(distro.FamilyDebian, catalog.Entry{Key: catalog.Kernel, Command: "uname -r"}), decision, root)
	require.NoError(t, err)
	assert.Equal(t, "uname -r", results[catalog.Kernel].Command)
}

func TestRun_SwitchUser(t *testing.T) {
	session := conntest.NewSession().OnRoot("cat /etc/shadow", "root:$6$x:19000::::::\n")
	session.RootSecret = "toor"
	tgt := deploy
	tgt.RootPassword = "toor"
	cat := catalog.New(distro.FamilyRedHat, catalog.Entry{Key: catalog.Shadow, Command: "cat /etc/shadow"})
	decision := privilege.Decision{Elevate: true, Method: privilege.MethodSwitchUser}

	results, err := New(DefaultOptions()).Run(context.Background(), session, cat, decision, tgt)
	require.NoError(t, err)
	assert.Contains(t, results[catalog.Shadow].Output, "root:")
	assert.Equal(t, 1, session.Count("su:cat /etc/shadow"))
}

func TestRun_ConnectivityAborts(t *testing.T) {
	session := conntest.NewSession().
		On("uname -n", "web01").
		OnError("uname -r", conn.WrapConnectivity(deploy, errors.New("session closed")))

	results, err := New(DefaultOptions()).Run(context.Background(), session, smallCatalog(), privilege.Decision{}, deploy)
	require.Error(t, err)
	assert.ErrorIs(t, err, conn.ErrConnectivity)
	assert.Nil(t, results)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultOptions()).Run(ctx, conntest.NewSession(), smallCatalog(), privilege.Decision{}, deploy)
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingRunner hangs on one command until its context ends.
type blockingRunner struct {
	hang    string
	started chan struct{}
	calls   atomic.Int32
}

func (b *blockingRunner) Execute(ctx context.Context, command string) (conn.Output, error) {
	b.calls.Add(1)
	if command == b.hang {
		if b.started != nil {
			close(b.started)
		}
		<-ctx.Done()
		return conn.Output{}, ctx.Err()
	}
	return conn.Output{Stdout: "ok"}, nil
}

func TestRun_PerCommandTimeout(t *testing.T) {
	runner := &blockingRunner{hang: "uptime"}

	results, err := New(Options{CommandTimeout: 20 * time.Millisecond}).Run(context.Background(), runner, smallCatalog(), privilege.Decision{}, deploy)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.True(t, results[catalog.Uptime].Err)
	assert.Contains(t, results[catalog.Uptime].Message, "timed out")
	assert.False(t, results[catalog.Hostname].Err)
}

func TestRun_CancelInFlight(t *testing.T) {
	runner := &blockingRunner{hang: "uname -r", started: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := New(DefaultOptions()).Run(ctx, runner, smallCatalog(), privilege.Decision{}, deploy)
		done <- err
	}()

	<-runner.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not propagate")
	}
	assert.Equal(t, int32(2), runner.calls.Load(), "no command starts after cancellation")
}
