package batch

import "regexp"

var (
	// GitHub org/user names: alphanumerics and single dashes, no underscores
	orgName  = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	repoName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// ValidOrg reports whether s can be an organization name. Underscores are
// excluded so correlation ids stay reversible.
func ValidOrg(s string) bool {
	return orgName.MatchString(s)
}

// ValidRepo reports whether s can be a repository name. Names that would
// act as path elements other than a plain directory are rejected.
func ValidRepo(s string) bool {
	return s != "." && s != ".." && repoName.MatchString(s)
}
