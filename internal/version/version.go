package version

// Version is the current version of the tickerlab engine.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/signalhouse/tickerlab/internal/version.Version=1.2.3"
// A value of "main" indicates a development build and skips compatibility checks.
var Version = "v5.2.0"

// GetVersion returns the current version of the engine.
func GetVersion() string {
	return Version
}
