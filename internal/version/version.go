package version

// These variables are populated at build time using -ldflags
var (
	// Version is the semantic version of the application
	Version = "dev"

	// BuildTime is the time the binary was built
	BuildTime = "unknown"
)

// ProtocolVersion is the engine IPC protocol revision this client speaks.
const ProtocolVersion = 3

// GetVersion returns the current version of the application
func GetVersion() string {
	return Version
}

// GetBuildTime returns the build time of the binary
func GetBuildTime() string {
	return BuildTime
}

// ClientName identifies this controller to the engine during the hello handshake.
func ClientName() string {
	return "acectl/" + Version
}

// GetVersionInfo returns a formatted string with version information
func GetVersionInfo() string {
	return "acectl v" + Version + " (built " + BuildTime + ")"
}
