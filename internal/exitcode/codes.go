// Package exitcode defines the process exit codes of the orgsync CLI.
package exitcode

const (
	Success = 0 // Run finished; per-resource warnings do not change the code
	Failure = 1 // Unhandled error, missing token or organization, unreadable config
)

// Name returns the human-readable name for the given exit code.
// Unknown codes return "unknown".
func Name(code int) string {
	switch code {
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	default:
		return "unknown"
	}
}
