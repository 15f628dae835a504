// Package version provides version information for the quote-consensus application.
package version

// Version is the current version of the quote-consensus application.
const Version = "0.3.0"

// AgentString returns the full agent string with versioning.
// Format: quote-consensus/v{version}
func AgentString() string {
	return "quote-consensus/v" + Version
}
