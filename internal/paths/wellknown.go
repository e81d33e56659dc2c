package paths

// Directory identifies a well-known agent directory.
type Directory int

const (
	// Bin is the directory holding the agent binaries.
	Bin Directory = iota

	// Root is the agent installation root, the parent of Bin.
	Root

	// Diag holds diagnostic logs, Root/_diag unless overridden.
	Diag

	// Externals holds bundled external tools, Root/externals.
	Externals

	// Work is the configured work folder under Root.
	Work

	// Temp is the per-job scratch directory, Work/_temp.
	Temp

	// Tools is the tool cache, Work/_tool unless overridden.
	Tools

	// Tasks holds downloaded task payloads, Work/_tasks.
	Tasks

	// Update is the self-update staging directory, Work/_update.
	Update
)

func (d Directory) String() string {
	switch d {
	case Bin:
		return "Bin"
	case Root:
		return "Root"
	case Diag:
		return "Diag"
	case Externals:
		return "Externals"
	case Work:
		return "Work"
	case Temp:
		return "Temp"
	case Tools:
		return "Tools"
	case Tasks:
		return "Tasks"
	case Update:
		return "Update"
	default:
		return "Directory(?)"
	}
}

// ConfigFile identifies a dotted configuration file under the agent root.
type ConfigFile int

const (
	// Agent is the main agent settings file.
	Agent ConfigFile = iota

	// Credentials stores the agent's credentials.
	Credentials

	// RSACredentials stores the RSA parameters backing the credentials.
	RSACredentials

	// Service records the installed service name.
	Service

	// CredentialStore is the local credential store file. On macOS the
	// store is a keychain and the file carries a .keychain suffix.
	CredentialStore

	// Certificates stores certificate settings.
	Certificates

	// Proxy stores the proxy URL.
	Proxy

	// ProxyCredentials stores proxy credentials.
	ProxyCredentials

	// ProxyBypass stores proxy bypass expressions.
	ProxyBypass

	// Autologon stores auto-logon settings.
	Autologon

	// Options stores agent runtime options.
	Options
)

func (f ConfigFile) String() string {
	if name, ok := configFileNames[f]; ok {
		return name
	}
	return "ConfigFile(?)"
}

// configFileNames maps each config file to its dotted name under Root.
var configFileNames = map[ConfigFile]string{
	Agent:            ".agent",
	Credentials:      ".credentials",
	RSACredentials:   ".credentials_rsaparams",
	Service:          ".service",
	CredentialStore:  ".credential_store",
	Certificates:     ".certificates",
	Proxy:            ".proxy",
	ProxyCredentials: ".proxycredentials",
	ProxyBypass:      ".proxybypass",
	Autologon:        ".autologon",
	Options:          ".options",
}
