package middleware

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/conn/conntest"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"Apache": KindApache, "httpd": KindApache, "nginx": KindNginx, " tomcat ": KindTomcat, "WAS": KindWebSphere} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("weblogic")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Equal(t, 2, ExitCode(err))
}

func TestFromFS(t *testing.T) {
	src := FromFS(fstest.MapFS{
		"opt/app/conf/a.conf": {Data: []byte("a")},
		"opt/app/conf/b.conf": {Data: []byte("b")},
		"opt/app/conf/sub/x":  {Data: []byte("x")},
	})
	ctx := context.Background()

	data, err := src.ReadFile(ctx, "/opt/app/conf/a.conf")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	entries, err := src.ReadDir(ctx, "/opt/app/conf")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "a.conf"}, {Name: "b.conf"}, {Name: "sub", Dir: true}}, entries)

	_, err = src.ReadFile(ctx, "/opt/app/missing")
	assert.True(t, IsNotExist(err))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.ReadFile(canceled, "/opt/app/conf/a.conf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteSource(t *testing.T) {
	session := conntest.NewSession().
		On("cat '/etc/nginx/nginx.conf'", "worker_processes 1;\n").
		OnFail("cat '/etc/nginx/missing.conf'", "cat: /etc/nginx/missing.conf: No such file or directory").
		OnFail("cat '/etc/shadow'", "cat: /etc/shadow: Permission denied").
		On("ls -1 -p '/etc/nginx/conf.d'", "default.conf\nsites/\n")
	ctx := context.Background()
	src := Remote(session)

	data, err := src.ReadFile(ctx, "/etc/nginx/nginx.conf")
	require.NoError(t, err)
	assert.Equal(t, "worker_processes 1;\n", string(data))

	_, err = src.ReadFile(ctx, "/etc/nginx/missing.conf")
	assert.True(t, IsNotExist(err))

	_, err = src.ReadFile(ctx, "/etc/shadow")
	assert.ErrorIs(t, err, fs.ErrPermission)

	entries, err := src.ReadDir(ctx, "/etc/nginx/conf.d")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "default.conf"}, {Name: "sites", Dir: true}}, entries)

	session.OnError("cat '/etc/nginx/lost.conf'", conn.ErrConnectivity)
	_, err = src.ReadFile(ctx, "/etc/nginx/lost.conf")
	assert.ErrorIs(t, err, conn.ErrConnectivity)

	_, _ = src.WithElevation(true).ReadFile(ctx, "/etc/nginx/nginx.conf")
	assert.Equal(t, 1, session.Count("sudo cat '/etc/nginx/nginx.conf'"))
}

func TestGlob(t *testing.T) {
	src := FromFS(fstest.MapFS{
		"etc/httpd/conf.d/b.conf":   {Data: []byte("b")},
		"etc/httpd/conf.d/a.conf":   {Data: []byte("a")},
		"etc/httpd/conf.d/notes":    {Data: []byte("n")},
		"etc/httpd/conf.d/x.conf/y": {Data: []byte("y")},
	})
	ctx := context.Background()

	got, err := Glob(ctx, src, "/etc/httpd/conf.d/*.conf")
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/httpd/conf.d/a.conf", "/etc/httpd/conf.d/b.conf"}, got)

	got, err = Glob(ctx, src, "/etc/httpd/conf/httpd.conf")
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/httpd/conf/httpd.conf"}, got)

	got, err = Glob(ctx, src, "/etc/httpd/missing/*.conf")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Glob(ctx, src, "/etc/*/conf.d/*.conf")
	assert.Error(t, err)
}

func TestParseServerVersion(t *testing.T) {
	cases := []struct {
		in, name, version string
	}{
		{"Server version: Apache/2.4.57 (Unix)\nServer built:   Apr  1 2024\n", "Apache", "2.4.57"},
		{"nginx version: nginx/1.24.0\n", "nginx", "1.24.0"},
		{"Using CATALINA_BASE: /opt/tomcat\nServer version: Apache Tomcat/9.0.83\nServer number:  9.0.83.0\n", "Apache Tomcat", "9.0.83"},
		{"no banner here", "", ""},
	}
	for _, tc := range cases {
		name, version := ParseServerVersion(tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.version, version, tc.in)
	}
}

func TestParseJavaVersion(t *testing.T) {
	v, vendor := ParseJavaVersion("openjdk version \"17.0.9\" 2023-10-17\nOpenJDK Runtime Environment (build 17.0.9+9)\n")
	assert.Equal(t, "17.0.9", v)
	assert.Equal(t, "OpenJDK", vendor)

	v, vendor = ParseJavaVersion("java version \"1.8.0_381\"\nJava(TM) SE Runtime Environment\n")
	assert.Equal(t, "1.8.0_381", v)
	assert.Equal(t, "Oracle", vendor)

	v, vendor = ParseJavaVersion("java version \"1.8.0\"\nIBM J9 VM (build 2.9)\n")
	assert.Equal(t, "1.8.0", v)
	assert.Equal(t, "IBM", vendor)

	v, vendor = ParseJavaVersion("bash: java: command not found")
	assert.Empty(t, v)
	assert.Empty(t, vendor)
}

func TestParseProperties(t *testing.T) {
	props := ParseProperties("# comment\n! also\nhttp.port=8080\nshutdown.port : 8005\nlong.value=a,\\\n  b\nflag\n")
	assert.Equal(t, map[string]string{
		"http.port":     "8080",
		"shutdown.port": "8005",
		"long.value":    "a,b",
		"flag":          "",
	}, props)
}

func TestExpand(t *testing.T) {
	props := map[string]string{"http.port": "8080"}
	assert.Equal(t, "8080", Expand("${http.port}", props))
	assert.Equal(t, "port 8080/${other}", Expand("port ${http.port}/${other}", props))
	assert.Equal(t, "plain", Expand("plain", props))
	assert.Equal(t, "broken ${x", Expand("broken ${x", props))
}

func TestParseProcessList(t *testing.T) {
	ps := "USER     COMMAND\nroot     /usr/sbin/httpd -DFOREGROUND\napache   /usr/sbin/httpd -DFOREGROUND\ntomcat   /usr/bin/java -Dcatalina.base=/opt/tomcat org.apache.catalina.startup.Bootstrap start\nroot     grep catalina.base\n"

	rt := ParseProcessList(ps, "catalina.base=/opt/tomcat")
	assert.Equal(t, Runtime{RunUser: "tomcat", Running: true}, rt)

	assert.Equal(t, Runtime{}, ParseProcessList(ps, "nginx"))

	session := conntest.NewSession().On("ps -eo user,args", ps)
	rt, err := ProbeProcess(context.Background(), session, "/usr/sbin/httpd")
	require.NoError(t, err)
	assert.Equal(t, "root", rt.RunUser)
}

func TestErrors(t *testing.T) {
	err := NewInsufficientInputError("tomcat base path is empty", nil)
	assert.ErrorIs(t, err, ErrInsufficientInput)
	assert.Equal(t, "INSUFFICIENT_INPUT", ErrorCode(err))
	assert.Equal(t, 2, ExitCode(err))
	assert.NotEmpty(t, Suggestions(err))

	cause := errors.New("XML syntax error on line 3")
	err = NewMalformedError("/opt/tomcat/conf/server.xml", cause)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, ExitCode(err))

	assert.Equal(t, "MIDDLEWARE_FAILURE", ErrorCode(errors.New("boom")))
	assert.Equal(t, 0, ExitCode(nil))

	err = NewReadError("/etc/httpd/conf/httpd.conf", errors.New("Permission denied"))
	assert.ErrorIs(t, err, ErrRead)
	assert.Equal(t, "READ_FAILED", ErrorCode(err))
	assert.Equal(t, 1, ExitCode(err))
	assert.NotEmpty(t, Suggestions(err))
}

func TestRecordHelpers(t *testing.T) {
	assert.Equal(t, "SSL", WebProtocol(443))
	assert.Equal(t, "SSL", WebProtocol(8443))
	assert.Equal(t, "HTTP", WebProtocol(8080))

	ports := AppendPort(nil, 80)
	ports = AppendPort(ports, 80)
	ports = AppendPort(ports, 0)
	ports = AppendPort(ports, 70000)
	ports = AppendPort(ports, 443)
	assert.Equal(t, []int{80, 443}, ports)
}

func TestSystemProperties(t *testing.T) {
	props := SystemProperties([]string{"-Xmx2g", "-Dhttp.port=8080", `"-Dapp.name=shop"`, "-Dflag", "-D=x"})
	assert.Equal(t, map[string]string{"http.port": "8080", "app.name": "shop", "flag": ""}, props)
}

func TestJDBCDatabase(t *testing.T) {
	assert.Equal(t, "orders", JDBCDatabase("jdbc:postgresql://db01:5432/orders"))
	assert.Equal(t, "crm", JDBCDatabase("jdbc:mysql://db03:3306/crm?useSSL=false"))
	assert.Equal(t, "LEGACY", JDBCDatabase("jdbc:oracle:thin:@db02:1521:LEGACY"))
	assert.Equal(t, "svc", JDBCDatabase("jdbc:oracle:thin:@//db02:1521/svc"))
	assert.Empty(t, JDBCDatabase("http://example.com/db"))
}

func TestInterfaceType(t *testing.T) {
	assert.Equal(t, "JDBC", InterfaceType("orders", "jdbc:postgresql://db01/orders"))
	assert.Equal(t, "JNDI", InterfaceType("jdbc/orders", "jdbc:postgresql://db01/orders"))
	assert.Equal(t, "JNDI", InterfaceType("ordersJndi", "jdbc:postgresql://db01/orders"))
	assert.Equal(t, "JNDI", InterfaceType("orders", ""))
}

func TestRedact(t *testing.T) {
	in := `<Resource name="ds" password="s3cret" /><Connector keystorePass='changeit' certificateKeystorePassword="x"/>`
	out := Redact(in)
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "changeit")
	assert.NotContains(t, out, `"x"`)
	assert.Contains(t, out, `name="ds"`)
}
