package github

import (
	"regexp"
	"strings"

	"github.com/gitmerge/gitmerge/internal/utils"
)

const host = "github.com"

// RepoURL returns the HTTPS clone URL of an owner/name repository.
func RepoURL(fullName string) string {
	return "https://" + host + "/" + strings.Trim(fullName, "/") + ".git"
}

// repoPattern matches https, ssh and scp-like GitHub remotes.
var repoPattern = regexp.MustCompile(`^(?:https?://(?:[^@/]+@)?github\.com/|ssh://git@github\.com/|git@github\.com:)([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

// ParseRepo extracts owner and name from a GitHub remote URL or an
// owner/name pair. ok is false for anything else.
func ParseRepo(s string) (owner, name string, ok bool) {
	s = strings.TrimSpace(s)
	if m := repoPattern.FindStringSubmatch(s); len(m) == 3 {
		return m[1], m[2], true
	}

	if strings.ContainsAny(s, ":@ ") {
		return "", "", false
	}
	return utils.SplitOwnerRepo(s)
}
