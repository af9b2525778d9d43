package github

import "time"

// Owner is the account a repository belongs to.
type Owner struct {
	Login string `json:"login"`
}

// Repository is the subset of GET /repos/{owner}/{repo} the discovery
// engine reads. Counts default to zero when the provider omits them.
type Repository struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Owner         Owner     `json:"owner"`
	Description   string    `json:"description"`
	HTMLURL       string    `json:"html_url"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	Archived      bool      `json:"archived"`
	DefaultBranch string    `json:"default_branch"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
}

// CodeSearchResult is one page of GET /search/code.
type CodeSearchResult struct {
	TotalCount        int        `json:"total_count"`
	IncompleteResults bool       `json:"incomplete_results"`
	Items             []CodeItem `json:"items"`
}

// CodeItem is a file matched by a code search.
type CodeItem struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	SHA        string   `json:"sha"`
	HTMLURL    string   `json:"html_url"`
	Repository RepoStub `json:"repository"`
}

// RepoStub is the abbreviated repository embedded in search results.
type RepoStub struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    Owner  `json:"owner"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
}

// ContentItem represents an item in a repository directory listing.
type ContentItem struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file", "dir", "symlink" or "submodule"
	Size int    `json:"size"`
	SHA  string `json:"sha"`
}

// apiContentResponse is the GitHub API response for file content.
type apiContentResponse struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}
