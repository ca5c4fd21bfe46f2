package version

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = ""
)

// String renders the version for CLI output.
func String() string {
	if Commit == "" {
		return Version
	}
	short := Commit
	if len(short) > 12 {
		short = short[:12]
	}
	return Version + " (" + short + ")"
}
