package websphere

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/middleware"
)

const root = "/opt/IBM/WebSphere/AppServer"

const productFixture = `<?xml version="1.0" encoding="UTF-8"?>
<product name="IBM WebSphere Application Server - ND">
  <id>ND</id>
  <version>9.0.5.14</version>
  <build-info date="11/10/22" level="cf142245.01"/>
</product>
`

const registryFixture = `<?xml version="1.0" encoding="UTF-8"?>
<profiles>
  <profile isDefault="true" name="AppSrv01" path="/opt/IBM/WebSphere/AppServer/profiles/AppSrv01"
           template="/opt/IBM/WebSphere/AppServer/profileTemplates/default"/>
</profiles>
`

const clusterFixture = `<?xml version="1.0" encoding="UTF-8"?>
<topology.cluster:ServerCluster xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI"
    xmlns:topology.cluster="http://www.ibm.com/websphere/appserver/schemas/5.0/topology.cluster.xmi"
    xmi:id="ServerCluster_1" name="shopCluster" nodeGroupName="DefaultNodeGroup">
  <members xmi:id="ClusterMember_1" memberName="server1" nodeName="node01" weight="2"/>
</topology.cluster:ServerCluster>
`

const resourcesFixture = `<?xml version="1.0" encoding="UTF-8"?>
<xmi:XMI xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI"
    xmlns:resources.jdbc="http://www.ibm.com/websphere/appserver/schemas/5.0/resources.jdbc.xmi">
  <resources.jdbc:JDBCProvider xmi:id="JDBCProvider_1" name="DB2 Universal JDBC Driver Provider"
      implementationClassName="com.ibm.db2.jcc.DB2ConnectionPoolDataSource">
    <factories xmi:id="DataSource_1" name="OrdersDS" jndiName="jdbc/orders" authDataAlias="cell01/dbuser">
      <propertySet xmi:id="J2EEResourcePropertySet_1">
        <resourceProperties xmi:id="p1" name="databaseName" type="java.lang.String" value="ORDERS"/>
        <resourceProperties xmi:id="p2" name="serverName" type="java.lang.String" value="db2host"/>
        <resourceProperties xmi:id="p3" name="portNumber" type="java.lang.Integer" value="50000"/>
      </propertySet>
      <connectionPool xmi:id="ConnectionPool_1" connectionTimeout="180" maxConnections="10" minConnections="1"/>
    </factories>
  </resources.jdbc:JDBCProvider>
  <resources.jdbc:JDBCProvider xmi:id="JDBCProvider_2" name="Derby JDBC Provider"
      implementationClassName="org.apache.derby.jdbc.EmbeddedConnectionPoolDataSource">
    <factories xmi:id="DataSource_2" name="built-in-derby-datasource" jndiName="DefaultDatasource"/>
  </resources.jdbc:JDBCProvider>
</xmi:XMI>
`

const serverIndexFixture = `<?xml version="1.0" encoding="UTF-8"?>
<serverindex:ServerIndex xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI"
    xmlns:serverindex="http://www.ibm.com/websphere/appserver/schemas/5.0/serverindex.xmi"
    xmi:id="ServerIndex_1" hostName="was01.example.com">
  <serverEntries xmi:id="ServerEntry_1" serverName="server1" serverType="APPLICATION_SERVER">
    <deployedApplications>DefaultApplication.ear/deployments/DefaultApplication</deployedApplications>
    <deployedApplications>query.ear</deployedApplications>
    <specialEndpoints xmi:id="NamedEndPoint_1" endPointName="WC_defaulthost">
      <endPoint xmi:id="EndPoint_1" host="*" port="9080"/>
    </specialEndpoints>
    <specialEndpoints xmi:id="NamedEndPoint_2" endPointName="WC_defaulthost_secure">
      <endPoint xmi:id="EndPoint_2" host="*" port="9443"/>
    </specialEndpoints>
    <specialEndpoints xmi:id="NamedEndPoint_3" endPointName="BOOTSTRAP_ADDRESS">
      <endPoint xmi:id="EndPoint_3" host="was01" port="2809"/>
    </specialEndpoints>
  </serverEntries>
  <serverEntries xmi:id="ServerEntry_2" serverName="nodeagent" serverType="NODE_AGENT">
    <specialEndpoints xmi:id="NamedEndPoint_4" endPointName="BOOTSTRAP_ADDRESS">
      <endPoint xmi:id="EndPoint_4" host="was01" port="2810"/>
    </specialEndpoints>
  </serverEntries>
</serverindex:ServerIndex>
`

const serverFixture = `<?xml version="1.0" encoding="UTF-8"?>
<process:Server xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI"
    xmlns:process="http://www.ibm.com/websphere/appserver/schemas/5.0/process.xmi"
    xmi:id="Server_1" name="server1">
  <processDefinitions xmi:id="JavaProcessDef_1">
    <ioRedirect xmi:id="OutputRedirect_1" stdoutFilename="${SERVER_LOG_ROOT}/SystemOut.log"
        stderrFilename="${SERVER_LOG_ROOT}/SystemErr.log"/>
    <jvmEntries xmi:id="JavaVirtualMachine_1" verboseModeGarbageCollection="false"
        initialHeapSize="512" maximumHeapSize="2048"
        genericJvmArguments="-Dapp.datasource.url=jdbc:oracle:thin:@ora01:1521:SALES -Dapp.datasource.username=sales -Xshareclasses">
      <systemProperties xmi:id="Property_1" name="com.ibm.security.jgss.debug" value="off"/>
    </jvmEntries>
  </processDefinitions>
</process:Server>
`

const cellDir = "opt/IBM/WebSphere/AppServer/profiles/AppSrv01/config/cells/cell01"

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"opt/IBM/WebSphere/AppServer/properties/version/WAS.product":  {Data: []byte(productFixture)},
		"opt/IBM/WebSphere/AppServer/properties/profileRegistry.xml":  {Data: []byte(registryFixture)},
		cellDir + "/clusters/shopCluster/cluster.xml":                 {Data: []byte(clusterFixture)},
		cellDir + "/resources.xml":                                    {Data: []byte(resourcesFixture)},
		cellDir + "/nodes/node01/serverindex.xml":                     {Data: []byte(serverIndexFixture)},
		cellDir + "/nodes/node01/servers/server1/server.xml":          {Data: []byte(serverFixture)},
		"opt/IBM/WebSphere/AppServer/profiles/AppSrv01/logs/keep.txt": {Data: []byte("")},
	}
}

func TestParse(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), root+"/")
	require.NoError(t, err)

	assert.Empty(t, inst.Warnings)
	assert.Equal(t, root, inst.InstallRoot)
	assert.Equal(t, Engine{
		Name:       "IBM WebSphere Application Server - ND",
		ID:         "ND",
		Version:    "9.0.5.14",
		BuildDate:  "11/10/22",
		BuildLevel: "cf142245.01",
	}, inst.Engine)
	assert.Len(t, inst.ConfigFiles, 6)

	require.Len(t, inst.Profiles, 1)
	prof := inst.Profiles[0]
	assert.Equal(t, "AppSrv01", prof.Name)
	assert.True(t, prof.Default)
	assert.Equal(t, root+"/profiles/AppSrv01", prof.Path)

	require.Len(t, prof.Cells, 1)
	cell := prof.Cells[0]
	assert.Equal(t, "cell01", cell.Name)
	assert.Equal(t, []Cluster{{
		Name:      "shopCluster",
		NodeGroup: "DefaultNodeGroup",
		Members:   []Member{{Node: "node01", Server: "server1", Weight: 2}},
	}}, cell.Clusters)
	assert.Equal(t, []DataSource{{
		Scope:      "cell",
		Name:       "OrdersDS",
		JNDIName:   "jdbc/orders",
		Provider:   "DB2 Universal JDBC Driver Provider",
		AuthAlias:  "cell01/dbuser",
		URL:        "jdbc:db2://db2host:50000/ORDERS",
		MinConns:   1,
		MaxConns:   10,
		TimeoutSec: 180,
	}}, cell.DataSources)

	require.Len(t, cell.Nodes, 1)
	node := cell.Nodes[0]
	assert.Equal(t, "node01", node.Name)
	assert.Equal(t, "was01.example.com", node.HostName)
	assert.Empty(t, node.DataSources)
	require.Len(t, node.Servers, 2)

	srv := node.Servers[0]
	assert.Equal(t, "server1", srv.Name)
	assert.Equal(t, ApplicationServer, srv.Type)
	assert.Equal(t, "shopCluster", srv.Cluster)
	assert.Equal(t, 9080, srv.Port(EndpointHTTP))
	assert.Equal(t, 9443, srv.Port(EndpointHTTPS))
	assert.Equal(t, 0, srv.Port("SOAP_CONNECTOR_ADDRESS"))
	assert.Equal(t, []Application{
		{Name: "DefaultApplication", Path: "DefaultApplication.ear/deployments/DefaultApplication"},
		{Name: "query", Path: "query.ear"},
	}, srv.Applications)
	assert.Equal(t, "${SERVER_LOG_ROOT}/SystemOut.log", srv.StdoutLog)
	assert.Equal(t, "${SERVER_LOG_ROOT}/SystemErr.log", srv.StderrLog)
	require.NotNil(t, srv.JVM)
	assert.Equal(t, 512, srv.JVM.InitialHeapMB)
	assert.Equal(t, 2048, srv.JVM.MaxHeapMB)
	assert.False(t, srv.JVM.VerboseGC)
	assert.Equal(t, []Property{{Name: "com.ibm.security.jgss.debug", Value: "off"}}, srv.JVM.SystemProperties)
	assert.Equal(t, []DataSource{{
		Scope:    "options",
		Name:     "SALES",
		URL:      "jdbc:oracle:thin:@ora01:1521:SALES",
		Username: "sales",
	}}, srv.DataSources)

	agent := node.Servers[1]
	assert.Equal(t, "nodeagent", agent.Name)
	assert.Equal(t, NodeAgent, agent.Type)
	assert.Empty(t, agent.Cluster)
	assert.Nil(t, agent.JVM)
}

func TestParse_ProfilesDirectoryFallback(t *testing.T) {
	fsys := fstest.MapFS{
		"opt/IBM/WebSphere/AppServer/profiles/AppSrv02/config/cells/c1/nodes/n1/serverindex.xml": {Data: []byte(serverIndexFixture)},
	}
	inst, err := Parse(context.Background(), middleware.FromFS(fsys), root)
	require.NoError(t, err)

	assert.Empty(t, inst.Engine.Version)
	require.Len(t, inst.Profiles, 1)
	assert.Equal(t, "AppSrv02", inst.Profiles[0].Name)
	assert.False(t, inst.Profiles[0].Default)
	require.Len(t, inst.Profiles[0].Cells, 1)
	assert.Empty(t, inst.Profiles[0].Cells[0].Clusters)
	require.Len(t, inst.Profiles[0].Cells[0].Nodes, 1)
	assert.Len(t, inst.Profiles[0].Cells[0].Nodes[0].Servers, 2)
}

func TestParse_Warnings(t *testing.T) {
	fsys := testFS()
	fsys[cellDir+"/clusters/shopCluster/cluster.xml"] = &fstest.MapFile{Data: []byte(`<ServerCluster name="x"`)}
	fsys[cellDir+"/nodes/node01/serverindex.xml"] = &fstest.MapFile{Data: []byte(`<ServerIndex hostName=`)}

	inst, err := Parse(context.Background(), middleware.FromFS(fsys), root)
	require.NoError(t, err)

	require.Len(t, inst.Warnings, 2)
	assert.Contains(t, inst.Warnings[0], "cluster.xml")
	assert.Contains(t, inst.Warnings[1], "serverindex.xml")

	node := inst.Profiles[0].Cells[0].Nodes[0]
	assert.Empty(t, node.HostName)
	require.Len(t, node.Servers, 1)
	assert.Equal(t, "server1", node.Servers[0].Name)
	assert.Empty(t, node.Servers[0].Type)
	assert.Empty(t, node.Servers[0].Cluster)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(context.Background(), middleware.FromFS(fstest.MapFS{}), " ")
	require.ErrorIs(t, err, middleware.ErrInsufficientInput)

	_, err = Parse(context.Background(), middleware.FromFS(fstest.MapFS{}), root)
	require.ErrorIs(t, err, middleware.ErrInsufficientInput)
	assert.Contains(t, err.Error(), root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Parse(ctx, middleware.FromFS(testFS()), root)
	require.ErrorIs(t, err, context.Canceled)
}

func TestToRecords(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), root)
	require.NoError(t, err)
	inst.Runtime = middleware.Runtime{JavaVersion: "1.8.0_351"}

	recs := ToRecords(inst)
	require.Len(t, recs, 1)
	assert.Equal(t, middleware.Record{
		Kind:           middleware.KindWebSphere,
		Name:           "server1",
		Path:           root + "/profiles/AppSrv01/config/cells/cell01/nodes/node01/servers/server1",
		Detail:         "AppSrv01|cell01|node01|server1",
		Ports:          []int{9080, 9443},
		Protocols:      []string{"HTTP", "SSL"},
		EngineVersion:  "9.0.5.14",
		RuntimeVersion: "1.8.0_351",
	}, recs[0])

	inst.ServerRuntimes = map[string]middleware.Runtime{
		"server1": {Running: true, RunUser: "wasadmin", JavaVersion: "1.8.0_361"},
	}
	rec := inst.Records()[0]
	assert.True(t, rec.Running)
	assert.Equal(t, "wasadmin", rec.RunUser)
	assert.Equal(t, "1.8.0_361", rec.RuntimeVersion)
	assert.Equal(t, middleware.KindWebSphere, inst.Kind())
}

func TestInterfaces(t *testing.T) {
	inst, err := Parse(context.Background(), middleware.FromFS(testFS()), root)
	require.NoError(t, err)

	assert.Equal(t, []Interface{
		{Type: "JNDI", Scope: "cell", Name: "jdbc/orders", URL: "jdbc:db2://db2host:50000/ORDERS"},
		{Type: "JDBC", Scope: "options", Server: "server1", Name: "SALES", URL: "jdbc:oracle:thin:@ora01:1521:SALES", Username: "sales"},
	}, inst.Interfaces())
}

func TestConnectionURL(t *testing.T) {
	props := map[string]string{"serverName": "h", "portNumber": "1433", "databaseName": "d", "URL": "jdbc:oracle:thin:@o:1521:X"}
	tests := []struct {
		class string
		want  string
	}{
		{"com.ibm.db2.jdbc.app.DB2Driver", "jdbc:db2:d"},
		{"com.ibm.as400.access.AS400JDBCDriver", "jdbc:as400://h"},
		{"com.ibm.db2.jcc.DB2XADataSource", "jdbc:db2://h:1433/d"},
		{"com.microsoft.sqlserver.jdbc.SQLServerXADataSource", "jdbc:sqlserver://h:1433;DatabaseName=d"},
		{"oracle.jdbc.pool.OracleConnectionPoolDataSource", "jdbc:oracle:thin:@o:1521:X"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConnectionURL(tt.class, props), tt.class)
	}
}

func TestApplicationName(t *testing.T) {
	assert.Equal(t, "ivtApp", applicationName("ivtApp.ear/deployments/ivtApp"))
	assert.Equal(t, "query", applicationName("query.ear"))
	assert.Equal(t, "shop", applicationName("shop.ear/deployments/"))
}
