package env

import "os"

func IsGithubAction() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// Returns true when workspace locking has been disabled, e.g. for
// filesystems where flock is unsupported.
func IsWorkspaceLockDisabled() bool {
	return os.Getenv("GITMERGE_LOCK_DISABLED") == "true"
}

// GithubToken returns the token exported by GitHub Actions or the gh CLI.
func GithubToken() string {
	if token := os.Getenv("GITMERGE_GITHUB_TOKEN"); token != "" {
		return token
	}
	return os.Getenv("GITHUB_TOKEN")
}
