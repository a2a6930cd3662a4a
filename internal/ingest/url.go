package ingest

import (
	"net/url"
	"strings"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// NormalizeURL canonicalizes a repository reference so repeated ingestion
// of the same source maps to one record. Schemeless input is treated as a
// GitHub path. Query, fragment, trailing slashes and a .git suffix are
// dropped; scheme and host are lower-cased.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(strings.TrimSuffix(strings.TrimRight(u, "/"), ".git"), "/")

	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "github.com/"), strings.HasPrefix(lower, "www.github.com/"):
		u = "https://" + u
	default:
		u = "https://github.com/" + strings.TrimLeft(u, "/")
	}

	if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
		parsed.Scheme = strings.ToLower(parsed.Scheme)
		parsed.Host = strings.ToLower(parsed.Host)
		return parsed.String()
	}
	return u
}

// ParseRepoURL returns the owner and repository name of a GitHub URL.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	if strings.TrimSpace(raw) == "" {
		return "", "", model.Invalid("source_url", "is required")
	}
	u, err := url.Parse(NormalizeURL(raw))
	if err != nil {
		return "", "", model.Invalid("source_url", "is not a valid URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", model.Invalid("source_url", "must name an owner and a repository")
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
