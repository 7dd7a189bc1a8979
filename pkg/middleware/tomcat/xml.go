package tomcat

import "encoding/xml"

type serverXML struct {
	XMLName         xml.Name      `xml:"Server"`
	Port            string        `xml:"port,attr"`
	Shutdown        string        `xml:"shutdown,attr"`
	Listeners       []listenerXML `xml:"Listener"`
	GlobalResources []resourceXML `xml:"GlobalNamingResources>Resource"`
	Services        []serviceXML  `xml:"Service"`
}

type listenerXML struct {
	ClassName string `xml:"className,attr"`
}

type resourceXML struct {
	Name            string `xml:"name,attr"`
	Auth            string `xml:"auth,attr"`
	Type            string `xml:"type,attr"`
	Description     string `xml:"description,attr"`
	Factory         string `xml:"factory,attr"`
	Pathname        string `xml:"pathname,attr"`
	URL             string `xml:"url,attr"`
	Username        string `xml:"username,attr"`
	DriverClassName string `xml:"driverClassName,attr"`
	MaxTotal        string `xml:"maxTotal,attr"`
	MaxIdle         string `xml:"maxIdle,attr"`
}

type serviceXML struct {
	Name       string         `xml:"name,attr"`
	Executors  []executorXML  `xml:"Executor"`
	Connectors []connectorXML `xml:"Connector"`
	Engine     engineXML      `xml:"Engine"`
}

type executorXML struct {
	Name            string `xml:"name,attr"`
	NamePrefix      string `xml:"namePrefix,attr"`
	MaxThreads      string `xml:"maxThreads,attr"`
	MinSpareThreads string `xml:"minSpareThreads,attr"`
}

type connectorXML struct {
	Port              string `xml:"port,attr"`
	Protocol          string `xml:"protocol,attr"`
	RedirectPort      string `xml:"redirectPort,attr"`
	SSLEnabled        string `xml:"SSLEnabled,attr"`
	Scheme            string `xml:"scheme,attr"`
	Executor          string `xml:"executor,attr"`
	Address           string `xml:"address,attr"`
	ConnectionTimeout string `xml:"connectionTimeout,attr"`
	MaxThreads        string `xml:"maxThreads,attr"`
}

type engineXML struct {
	Name        string    `xml:"name,attr"`
	DefaultHost string    `xml:"defaultHost,attr"`
	JvmRoute    string    `xml:"jvmRoute,attr"`
	Hosts       []hostXML `xml:"Host"`
}

type hostXML struct {
	Name       string       `xml:"name,attr"`
	AppBase    string       `xml:"appBase,attr"`
	UnpackWARs string       `xml:"unpackWARs,attr"`
	AutoDeploy string       `xml:"autoDeploy,attr"`
	Contexts   []contextXML `xml:"Context"`
}

type contextXML struct {
	Path       string `xml:"path,attr"`
	DocBase    string `xml:"docBase,attr"`
	Reloadable string `xml:"reloadable,attr"`
}

type contextFileXML struct {
	XMLName   xml.Name      `xml:"Context"`
	Resources []resourceXML `xml:"Resource"`
}

type usersXML struct {
	XMLName xml.Name `xml:"tomcat-users"`
	Roles   []struct {
		Name string `xml:"rolename,attr"`
	} `xml:"role"`
	Users []struct {
		Username string `xml:"username,attr"`
		Roles    string `xml:"roles,attr"`
	} `xml:"user"`
}
