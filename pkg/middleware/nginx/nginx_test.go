package nginx

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/conn/conntest"
	"github.com/vulntor/assessor/pkg/middleware"
)

const nginxConf = `user nginx;
worker_processes auto;
worker_rlimit_nofile 65535;
error_log /var/log/nginx/error.log warn;
pid /run/nginx.pid;

events {
    worker_connections 1024;
    use epoll;
}

http {
    include mime.types;
    default_type application/octet-stream;
    log_format main '$remote_addr - $remote_user [$time_local] "$request"';
    sendfile on;

    upstream backend {
        server 10.0.0.5:8080 weight=3;
        server 10.0.0.6:8080 backup;
    }

    server {
        listen 80;
        listen [::]:80;
        server_name example.com www.example.com;
        root /usr/share/nginx/html;

        location / {
            proxy_pass http://backend;
            proxy_set_header Host $host;
            proxy_set_header X-Real-IP $remote_addr;
        }
        location ~ \.php$ {
            fastcgi_pass unix:/run/php-fpm.sock;
        }
    }

    include conf.d/*.conf;
}

stream {
    server {
        listen 5353 udp;
        proxy_pass 10.0.0.53:53;
    }
}
`

const sslConf = `server {
    listen 443 ssl;
    server_name secure.example.com;
    ssl_certificate /etc/pki/nginx/server.crt;
    ssl_protocols TLSv1.2 TLSv1.3;
    location /static/ { root /srv; expires 30d; }
}
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"etc/nginx/nginx.conf":       {Data: []byte(nginxConf)},
		"etc/nginx/mime.types":       {Data: []byte("types {\n    text/html html htm;\n}\n")},
		"etc/nginx/conf.d/ssl.conf":  {Data: []byte(sslConf)},
		"etc/nginx/conf.d/README.md": {Data: []byte("# notes")},
	}
}

func TestParse(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), "/etc/nginx/nginx.conf")
	require.NoError(t, err)

	assert.Empty(t, inst.Warnings)
	assert.Equal(t, General{
		User:               "nginx",
		WorkerProcesses:    "auto",
		WorkerRlimitNofile: 65535,
		ErrorLog:           "/var/log/nginx/error.log warn",
		PID:                "/run/nginx.pid",
		Includes:           []string{"mime.types", "conf.d/*.conf"},
	}, inst.General)
	assert.Equal(t, Events{Use: "epoll", WorkerConnections: 1024}, inst.Events)

	require.Len(t, inst.ConfigFiles, 3)
	assert.Equal(t, "/etc/nginx/mime.types", inst.ConfigFiles[1].Path)
	assert.Equal(t, "/etc/nginx/conf.d/ssl.conf", inst.ConfigFiles[2].Path)

	assert.Equal(t, []int{80, 443, 5353}, inst.ListenPorts())
	assert.True(t, inst.SSL)
}

func TestParse_HTTP(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), "/etc/nginx/nginx.conf")
	require.NoError(t, err)
	require.NotNil(t, inst.HTTP)

	assert.Equal(t, []string{"on"}, inst.HTTP.Settings["sendfile"])
	assert.Equal(t, []string{"application/octet-stream"}, inst.HTTP.Settings["default_type"])

	require.Len(t, inst.HTTP.Upstreams, 1)
	assert.Equal(t, Upstream{Name: "backend", Servers: []UpstreamServer{
		{Address: "10.0.0.5:8080", Option: "weight=3"},
		{Address: "10.0.0.6:8080", Option: "backup"},
	}}, inst.HTTP.Upstreams[0])

	require.Len(t, inst.HTTP.Servers, 2)
	web := inst.HTTP.Servers[0]
	assert.Equal(t, []string{"80", "[::]:80"}, web.Listen)
	assert.Equal(t, "example.com www.example.com", web.ServerName)
	assert.Equal(t, "/usr/share/nginx/html", web.Root)
	assert.Nil(t, web.SSL)
	require.Len(t, web.Locations, 2)
	assert.Equal(t, map[string][]string{
		"proxy_pass":       {"http://backend"},
		"proxy_set_header": {"Host $host", "X-Real-IP $remote_addr"},
	}, web.Locations[0].Proxy)
	assert.Equal(t, `~ \.php$`, web.Locations[1].URI)
	assert.Equal(t, "unix:/run/php-fpm.sock", web.Locations[1].FastCGIPass)

	secure := inst.HTTP.Servers[1]
	assert.Equal(t, map[string]string{
		"ssl_certificate": "/etc/pki/nginx/server.crt",
		"ssl_protocols":   "TLSv1.2 TLSv1.3",
	}, secure.SSL)
	require.Len(t, secure.Locations, 1)
	assert.Equal(t, Location{URI: "/static/", Root: "/srv", Expires: "30d"}, secure.Locations[0])
}

func TestParse_Stream(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), "/etc/nginx/nginx.conf")
	require.NoError(t, err)
	require.NotNil(t, inst.Stream)

	require.Len(t, inst.Stream.Servers, 1)
	assert.Equal(t, map[string][]string{"proxy_pass": {"10.0.0.53:53"}}, inst.Stream.Servers[0].Proxy)

	last := inst.Listeners[len(inst.Listeners)-1]
	assert.Equal(t, Listener{Address: "5353", Port: 5353, Stream: true, UDP: true}, last)
}

func TestParse_IncludeWarnings(t *testing.T) {
	fsys := fstest.MapFS{
		"nginx.conf": {Data: []byte("include missing.conf;\ninclude none/*.conf;\ninclude loop.conf;\n")},
		"loop.conf":  {Data: []byte("include loop.conf;\n")},
	}
	inst, err := Parse(context.Background(), middleware.FromFS(fsys), "/nginx.conf")
	require.NoError(t, err)

	require.Len(t, inst.Warnings, 2)
	assert.Contains(t, inst.Warnings[0], "/missing.conf: not found")
	assert.Contains(t, inst.Warnings[1], "include nesting deeper than")
	assert.Equal(t, []string{"missing.conf", "none/*.conf", "loop.conf"}, inst.General.Includes)
}

func TestParse_Errors(t *testing.T) {
	src := middleware.FromFS(fstest.MapFS{"broken.conf": {Data: []byte("http {\n  server {\n}\n")}})

	_, err := Parse(context.Background(), src, "")
	assert.ErrorIs(t, err, middleware.ErrInsufficientInput)

	_, err = Parse(context.Background(), src, "/etc/nginx/nginx.conf")
	assert.ErrorIs(t, err, middleware.ErrRead)
	assert.NotErrorIs(t, err, middleware.ErrInsufficientInput)

	_, err = Parse(context.Background(), src, "broken.conf")
	assert.ErrorIs(t, err, middleware.ErrMalformed)
	assert.Contains(t, err.Error(), "expecting '}'")
}

func TestParse_Remote(t *testing.T) {
	session := conntest.NewSession().
		On("cat '/etc/nginx/nginx.conf'", "http {\n include conf.d/*.conf;\n}\n").
		On("ls -1 -p '/etc/nginx/conf.d'", "app.conf\nold/\n").
		On("cat '/etc/nginx/conf.d/app.conf'", "server { listen 127.0.0.1:8081; }\n")

	inst, err := Parse(context.Background(), middleware.Remote(session), "/etc/nginx/nginx.conf")
	require.NoError(t, err)
	assert.Equal(t, []int{8081}, inst.ListenPorts())
	assert.Len(t, inst.ConfigFiles, 2)
}

func TestTokenize(t *testing.T) {
	toks, err := tokenize("log_format main '$a \"b\"' # trailing\nreturn 200 \"it\\\"s\";\nset $x a#b;")
	require.NoError(t, err)

	var words []string
	for _, tk := range toks {
		words = append(words, tk.text)
	}
	assert.Equal(t, []string{"log_format", "main", `$a "b"`, "return", "200", `it"s`, ";", "set", "$x", "a#b", ";"}, words)
	assert.Equal(t, 2, toks[3].line)

	_, err = tokenize("root '/srv;")
	assert.Error(t, err)
}

func TestParseTree_Errors(t *testing.T) {
	for _, text := range []string{"; user nginx;", "}", "{ }", "user nginx", "events { use epoll }"} {
		_, err := parse("x.conf", text)
		assert.Error(t, err, text)
	}

	dirs, err := parse("x.conf", "events {}\n")
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.True(t, dirs[0].IsBlock())
	assert.Empty(t, dirs[0].Block)
}

func TestListenPort(t *testing.T) {
	cases := map[string]int{
		"80":             80,
		"[::]:443":       443,
		"127.0.0.1:8080": 8080,
		"*:8000":         8000,
		"localhost":      80,
		"[::1]":          80,
	}
	for in, want := range cases {
		got, ok := listenPort(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := listenPort("unix:/run/nginx.sock")
	assert.False(t, ok)
}

func TestToRecord(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), "/etc/nginx/nginx.conf")
	require.NoError(t, err)

	rec := ToRecord(inst)
	assert.Equal(t, middleware.KindNginx, rec.Kind)
	assert.Equal(t, "nginx", rec.Name)
	assert.Equal(t, "/etc/nginx", rec.Path)
	assert.Equal(t, []int{80, 443, 5353}, rec.Ports)
	assert.Equal(t, []string{"HTTP", "SSL", "UDP"}, rec.Protocols)
	assert.False(t, rec.Running)

	inst.Runtime = middleware.Runtime{RunUser: "nginx", Version: "1.24.0"}
	rec = ToRecord(inst)
	assert.True(t, rec.Running)
	assert.Equal(t, "nginx", rec.RunUser)
	assert.Equal(t, "1.24.0", rec.EngineVersion)
	assert.Equal(t, []middleware.Record{rec}, inst.Records())
}
