package version

// Flag contains extra info about the version. It is helpul for tracking
// versions while developing. It should always by empty on the master branch.
// This will be inforced in a continuous integration test.
const Flag = ""

// ProtocolVersion is the version announced in hello messages. Peers must
// speak a 0.9.x version.
const ProtocolVersion = "0.9.0"

var (
	// Version is The full version string
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X main.gitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}

// Agent returns the agent string sent in hello messages.
func Agent() string {
	return "marabu-go/" + Version
}
