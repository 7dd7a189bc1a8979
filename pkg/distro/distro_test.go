package distro

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/conn/conntest"
)

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		ok     bool
	}{
		{"Ubuntu", FamilyDebian, true},
		{"Debian GNU/Linux", FamilyDebian, true},
		{"Raspbian GNU/Linux", FamilyDebian, true},
		{"CentOS", FamilyRedHat, true},
		{"CentOS Linux", FamilyRedHat, true},
		{"Red Hat Enterprise Linux Server", FamilyRedHat, true},
		{"rhel", FamilyRedHat, true},
		{"ol", FamilyRedHat, true},
		{"Amazon Linux", FamilyRedHat, true},
		{"Rocky Linux", FamilyRedHat, true},
		{"SLES", FamilySUSE, true},
		{"openSUSE Leap", FamilySUSE, true},
		{"SUSE Linux Enterprise Server 15 SP3", FamilySUSE, true},
		{"AIX", FamilyAIX, true},
		{"HP-UX", FamilyHPUX, true},
		{"SunOS", FamilySolaris, true},
		{"Oracle Solaris 11.4", FamilySolaris, true},
		{"Microsoft Windows Server 2019 Standard", FamilyWindows, true},
		{"Alpine Linux", FamilyUnknown, false},
		{"Gentoo", FamilyUnknown, false},
		{"", FamilyUnknown, false},
		{"solo", FamilyUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := FamilyOf(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.family, f)
		})
	}
}

func TestParseFamily(t *testing.T) {
	f, ok := ParseFamily(" RedHat ")
	require.True(t, ok)
	assert.Equal(t, FamilyRedHat, f)

	_, ok = ParseFamily("beos")
	assert.False(t, ok)
}

const ubuntuOSRelease = `NAME="Ubuntu"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
PRETTY_NAME="Ubuntu 22.04.3 LTS"
VERSION_ID="22.04"
`

func TestResolve_OSRelease(t *testing.T) {
	session := conntest.NewSession().On("cat /etc/os-release", ubuntuOSRelease)

	d, err := NewResolver().Resolve(context.Background(), session, false)
	require.NoError(t, err)
	assert.Equal(t, "Ubuntu", d.Name)
	assert.Equal(t, "ubuntu", d.ID)
	assert.Equal(t, "22.04", d.Release)
	assert.Equal(t, FamilyDebian, d.Family)
	assert.Equal(t, "os-release", d.Marker)
	assert.Equal(t, 1, session.Count("cat /etc/"), "first definitive marker wins")
}

func TestResolve_LikeFallback(t *testing.T) {
	session := conntest.NewSession().On("cat /etc/os-release", "NAME=\"Pop!_OS\"\nID=pop\nID_LIKE=\"ubuntu debian\"\nVERSION_ID=\"22.04\"\n")

	d, err := NewResolver().Resolve(context.Background(), session, false)
	require.NoError(t, err)
	assert.Equal(t, FamilyDebian, d.Family)
}

func TestResolve_PriorityOrder(t *testing.T) {
	session := conntest.NewSession().
		OnFail("cat /etc/os-release", "No such file or directory").
		OnFail("lsb_release -a", "command not found").
		On("cat /etc/redhat-release", "CentOS release 6.10 (Final)\n").
		On("cat /proc/version", "Linux version 2.6.32 (Red Hat 4.4.7-23)")

	d, err := NewResolver().Resolve(context.Background(), session, false)
	require.NoError(t, err)
	assert.Equal(t, "CentOS", d.Name)
	assert.Equal(t, "6.10", d.Release)
	assert.Equal(t, FamilyRedHat, d.Family)
	assert.Equal(t, "redhat-release", d.Marker)
	assert.True(t, d.MajorBelow(7))
	assert.Zero(t, session.Count("/proc/version"))
}

func TestResolve_ElevatedCommands(t *testing.T) {
	session := conntest.NewSession().On("sudo cat /etc/os-release", ubuntuOSRelease)

	d, err := NewResolver().Resolve(context.Background(), session, true)
	require.NoError(t, err)
	assert.Equal(t, FamilyDebian, d.Family)
}

func TestResolve_UnknownIsNotAnError(t *testing.T) {
	session := conntest.NewSession().On("cat /etc/os-release", "NAME=\"Alpine Linux\"\nID=alpine\nVERSION_ID=3.19.0\n")

	d, err := NewResolver().Resolve(context.Background(), session, false)
	require.NoError(t, err)
	assert.False(t, d.Known())
	assert.Equal(t, "Alpine Linux", d.Name)

	d, err = NewResolver().Resolve(context.Background(), conntest.NewSession(), false)
	require.NoError(t, err)
	assert.False(t, d.Known())
}

func TestResolve_ProcVersionFallback(t *testing.T) {
	session := conntest.NewSession().On("cat /proc/version", "Linux version 5.4.0 (buildd@lcy01) (gcc (Ubuntu 9.3.0))")

	d, err := NewResolver().Resolve(context.Background(), session, false)
	require.NoError(t, err)
	assert.Equal(t, FamilyDebian, d.Family)
	assert.Equal(t, "proc-version", d.Marker)
}

func TestResolve_Uname(t *testing.T) {
	session := conntest.NewSession().On("uname -sr", "AIX 3\n")

	d, err := NewResolver().Resolve(context.Background(), session, false)
	require.NoError(t, err)
	assert.Equal(t, FamilyAIX, d.Family)
}

func TestResolve_TransportErrorPropagates(t *testing.T) {
	session := conntest.NewSession().OnError("cat /etc/os-release", conn.ErrConnectivity)

	_, err := NewResolver().Resolve(context.Background(), session, false)
	assert.True(t, errors.Is(err, conn.ErrConnectivity))
}

func TestResolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver().Resolve(ctx, conntest.NewSession(), false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveWindows(t *testing.T) {
	session := conntest.NewSession().On(`$os = Get-CimInstance Win32_OperatingSystem; $os.Caption + '|' + $os.Version`, "Microsoft Windows Server 2019 Standard|10.0.17763\r\n")

	d, err := NewResolver().ResolveWindows(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, FamilyWindows, d.Family)
	assert.Equal(t, "Microsoft Windows Server 2019 Standard", d.Name)
	assert.Equal(t, "10.0.17763", d.Release)
}

func TestDistributionVersion(t *testing.T) {
	d := Distribution{Release: "7.9.2009"}
	v, ok := d.Version()
	require.True(t, ok)
	assert.Equal(t, uint64(7), v.Major())
	assert.False(t, d.MajorBelow(7))
	assert.True(t, d.MajorBelow(8))

	assert.False(t, Distribution{Release: "rolling"}.MajorBelow(7))
}
