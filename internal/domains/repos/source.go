package repos

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"git":   true,
	"ssh":   true,
}

// git@github.com:owner/repo
var scpLike = regexp.MustCompile(`^([A-Za-z0-9._-]+)@([A-Za-z0-9.-]+):(.+)$`)

// NormalizeSource canonicalizes a repository URL or filesystem path so that
// equivalent spellings map to the same id.
func NormalizeSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%w: source is required", ErrInvalidSource)
	}

	if m := scpLike.FindStringSubmatch(source); m != nil && !strings.Contains(source, "://") {
		source = "https://" + m[2] + "/" + strings.TrimPrefix(m[3], "/")
	}

	if strings.Contains(source, "://") {
		return normalizeURL(source)
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return filepath.Clean(abs), nil
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "file" {
		return normalizeFileURL(u, raw)
	}
	if !allowedSchemes[scheme] {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidSource, raw)
	}

	path := strings.TrimSuffix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if path == "" {
		return "", fmt.Errorf("%w: missing repository path in %q", ErrInvalidSource, raw)
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Path = path
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// normalizeFileURL maps file:///abs and file://localhost/abs to the path.
// Any other host is the first element of a relative path, so file://repo-a
// names the same directory as repo-a.
func normalizeFileURL(u *url.URL, raw string) (string, error) {
	p := u.Path
	if u.Host != "" && !strings.EqualFold(u.Host, "localhost") {
		p = u.Host + u.Path
	}
	if p == "" {
		return "", fmt.Errorf("%w: missing path in %q", ErrInvalidSource, raw)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return filepath.Clean(abs), nil
}

// IsRemote reports whether a normalized source is a URL rather than a path.
func IsRemote(source string) bool {
	return strings.Contains(source, "://")
}

// IDFor derives the stable repository id for a normalized source.
func IDFor(normalized string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(normalized)).String()
}
