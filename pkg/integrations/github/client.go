package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
)

// MaxPerPage is the largest page size the search and contents endpoints
// accept.
const MaxPerPage = 100

// Executor performs provider requests. [integrations.Gateway] is the
// production implementation.
type Executor interface {
	Execute(ctx context.Context, req integrations.Request) (*integrations.Response, error)
}

// Client provides typed access to the GitHub endpoints discovery uses.
// Every call goes through the executor, so caching, budgets and retries
// apply uniformly.
type Client struct {
	exec Executor
}

// NewClient creates a GitHub API client over exec.
func NewClient(exec Executor) *Client {
	return &Client{exec: exec}
}

// GetRepo fetches repository metadata. A missing repository is reported as
// REPOSITORY_NOT_FOUND (which also matches NOT_FOUND).
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*Repository, error) {
	resp, err := c.exec.Execute(ctx, integrations.Request{Path: "/repos/" + owner + "/" + repo})
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil, errors.Wrap(errors.ErrCodeRepositoryNotFound, err, "repository %s/%s not found", owner, repo)
		}
		return nil, err
	}
	var r Repository
	if err := decode(resp, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SearchCode fetches one page (1-based) of code search results.
func (c *Client) SearchCode(ctx context.Context, query string, page, perPage int) (*CodeSearchResult, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	resp, err := c.exec.Execute(ctx, integrations.Request{
		Path: "/search/code",
		Params: map[string]string{
			"q":        query,
			"page":     strconv.Itoa(max(page, 1)),
			"per_page": strconv.Itoa(perPage),
		},
	})
	if err != nil {
		return nil, err
	}
	var r CodeSearchResult
	if err := decode(resp, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListContents lists files and directories at path in a repository.
func (c *Client) ListContents(ctx context.Context, owner, repo, path string) ([]ContentItem, error) {
	resp, err := c.exec.Execute(ctx, integrations.Request{Path: contentsPath(owner, repo, path)})
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(string(resp.Body))
	if !strings.HasPrefix(body, "[") {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s is not a directory", path)
	}
	var items []ContentItem
	if err := decode(resp, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetContent retrieves a file from a repository, decoded from base64.
func (c *Client) GetContent(ctx context.Context, owner, repo, path string) ([]byte, error) {
	resp, err := c.exec.Execute(ctx, integrations.Request{Path: contentsPath(owner, repo, path)})
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.TrimSpace(string(resp.Body)), "[") {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s is a directory", path)
	}
	var file apiContentResponse
	if err := decode(resp, &file); err != nil {
		return nil, err
	}
	switch file.Encoding {
	case "base64":
		content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParseFailure, err, "decode content of %s", path)
		}
		return content, nil
	case "":
		return []byte(file.Content), nil
	default:
		// Files over 1 MB come back with encoding "none" and no content.
		return nil, errors.New(errors.ErrCodeParseFailure, "%s: unsupported content encoding %q", path, file.Encoding)
	}
}

func contentsPath(owner, repo, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/repos/" + owner + "/" + repo + "/contents/" + strings.Join(segs, "/")
}

func decode(resp *integrations.Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return errors.Wrap(errors.ErrCodeParseFailure, err, "decode response")
	}
	return nil
}
