package gitrepo

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GitHubProvider clones from github.com, optionally with a personal access token
type GitHubProvider struct {
	pat string
}

func NewGitHubProvider(pat string) *GitHubProvider {
	return &GitHubProvider{pat: pat}
}

func (g *GitHubProvider) Name() string {
	return "github"
}

func (g *GitHubProvider) CloneURL(url string) string {
	if strings.HasSuffix(url, ".git") {
		return url
	}
	return url + ".git"
}

func (g *GitHubProvider) Auth() transport.AuthMethod {
	if g.pat == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "git", // any non-empty user works with a token
		Password: g.pat,
	}
}

func (g *GitHubProvider) MatchesURL(url string) bool {
	url = strings.ToLower(url)
	return strings.HasPrefix(url, "https://github.com/") || strings.HasPrefix(url, "http://github.com/")
}
