package websphere

type productXML struct {
	Name    string `xml:"name,attr"`
	ID      string `xml:"id"`
	Version string `xml:"version"`
	Build   struct {
		Date  string `xml:"date,attr"`
		Level string `xml:"level,attr"`
	} `xml:"build-info"`
}

type profileRegistryXML struct {
	Profiles []struct {
		Name      string `xml:"name,attr"`
		Path      string `xml:"path,attr"`
		IsDefault string `xml:"isDefault,attr"`
		Template  string `xml:"template,attr"`
	} `xml:"profile"`
}

type serverIndexXML struct {
	HostName string           `xml:"hostName,attr"`
	Entries  []serverEntryXML `xml:"serverEntries"`
}

type serverEntryXML struct {
	ServerName           string   `xml:"serverName,attr"`
	ServerType           string   `xml:"serverType,attr"`
	DeployedApplications []string `xml:"deployedApplications"`
	Endpoints            []struct {
		Name     string `xml:"endPointName,attr"`
		EndPoint struct {
			Host string `xml:"host,attr"`
			Port string `xml:"port,attr"`
		} `xml:"endPoint"`
	} `xml:"specialEndpoints"`
}

type clusterXML struct {
	Name          string `xml:"name,attr"`
	NodeGroupName string `xml:"nodeGroupName,attr"`
	Members       []struct {
		MemberName string `xml:"memberName,attr"`
		NodeName   string `xml:"nodeName,attr"`
		Weight     string `xml:"weight,attr"`
	} `xml:"members"`
}

type processServerXML struct {
	Name        string `xml:"name,attr"`
	Definitions []struct {
		IORedirect struct {
			Stdout string `xml:"stdoutFilename,attr"`
			Stderr string `xml:"stderrFilename,attr"`
		} `xml:"ioRedirect"`
		JVM jvmXML `xml:"jvmEntries"`
	} `xml:"processDefinitions"`
}

type jvmXML struct {
	InitialHeapSize     string `xml:"initialHeapSize,attr"`
	MaximumHeapSize     string `xml:"maximumHeapSize,attr"`
	VerboseGC           string `xml:"verboseModeGarbageCollection,attr"`
	GenericJvmArguments string `xml:"genericJvmArguments,attr"`
	SystemProperties    []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"systemProperties"`
	BootClasspath []string `xml:"bootClasspath"`
}

type jdbcProviderXML struct {
	Name                    string `xml:"name,attr"`
	ImplementationClassName string `xml:"implementationClassName,attr"`
	Factories               []struct {
		Name          string `xml:"name,attr"`
		JndiName      string `xml:"jndiName,attr"`
		AuthDataAlias string `xml:"authDataAlias,attr"`
		Pool          struct {
			Min     string `xml:"minConnections,attr"`
			Max     string `xml:"maxConnections,attr"`
			Timeout string `xml:"connectionTimeout,attr"`
		} `xml:"connectionPool"`
		Properties []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:"value,attr"`
		} `xml:"propertySet>resourceProperties"`
	} `xml:"factories"`
}
