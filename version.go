package eduwire

// Version information. Overridden at build time via:
//
//	go build -ldflags "-X github.com/ambiyansyah-risyal/eduwire.Version=v1.2.3"
var (
	// Version is the semantic version of this build.
	Version = "dev"

	// Commit is the git commit the build was produced from.
	Commit = "unknown"

	// BuildDate is the UTC date the build was produced.
	BuildDate = "unknown"
)

// UserAgent returns the User-Agent string advertised by the CLI.
func UserAgent() string {
	return "eduwire/" + Version
}
