package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	gh "github.com/google/go-github/v80/github"
)

// maxRepoFileSize skips individual blobs larger than this.
const maxRepoFileSize = 1 << 20 // 1MB

// GitHubExtractor lists a repository tree and fetches its text files.
type GitHubExtractor struct {
	client *gh.Client
}

// NewGitHubExtractor creates an extractor. An empty token uses
// unauthenticated access (public repositories, lower rate limits).
func NewGitHubExtractor(token string) *GitHubExtractor {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubExtractor{client: client}
}

// Extract fetches up to MaxRepoFiles text files from the repository.
// repoSpec is "owner/repo"; an empty ref uses the default branch.
func (e *GitHubExtractor) Extract(ctx context.Context, repoSpec, ref string) ([]Document, error) {
	owner, name, err := splitRepoSpec(repoSpec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, GitHubTimeout)
	defer cancel()

	if ref == "" {
		repo, _, err := e.client.Repositories.Get(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("getting repository %s: %w", repoSpec, err)
		}
		ref = repo.GetDefaultBranch()
	}

	tree, _, err := e.client.Git.GetTree(ctx, owner, name, ref, true)
	if err != nil {
		return nil, fmt.Errorf("listing tree of %s@%s: %w", repoSpec, ref, err)
	}

	var docs []Document
	for _, entry := range tree.Entries {
		if len(docs) >= MaxRepoFiles {
			break
		}
		if entry.GetType() != "blob" {
			continue
		}
		filePath := entry.GetPath()
		ext := strings.ToLower(path.Ext(filePath))
		if !textExtensions[ext] {
			continue
		}
		if entry.GetSize() > maxRepoFileSize {
			continue
		}

		content, err := e.fetchBlob(ctx, owner, name, entry.GetSHA())
		if err != nil {
			// Unreadable blobs are skipped, not fatal.
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}

		docs = append(docs, Document{
			Title:     fmt.Sprintf("%s: %s", repoSpec, filePath),
			SourceRef: fmt.Sprintf("github://%s/%s/%s", owner, name, filePath),
			Content:   content,
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no text files found in %s@%s", repoSpec, ref)
	}
	return docs, nil
}

// fetchBlob retrieves and decodes one blob's content.
func (e *GitHubExtractor) fetchBlob(ctx context.Context, owner, name, sha string) (string, error) {
	blob, _, err := e.client.Git.GetBlob(ctx, owner, name, sha)
	if err != nil {
		return "", fmt.Errorf("getting blob %s: %w", sha, err)
	}
	if blob.GetEncoding() == "base64" {
		raw := strings.ReplaceAll(blob.GetContent(), "\n", "")
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", fmt.Errorf("decoding blob %s: %w", sha, err)
		}
		return string(decoded), nil
	}
	return blob.GetContent(), nil
}

// splitRepoSpec parses "owner/repo".
func splitRepoSpec(spec string) (owner, name string, err error) {
	spec = strings.TrimSpace(strings.TrimSuffix(spec, ".git"))
	spec = strings.TrimPrefix(spec, "https://github.com/")
	spec = strings.TrimPrefix(spec, "github.com/")
	parts := strings.Split(strings.Trim(spec, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, want owner/repo", spec)
	}
	return parts[0], parts[1], nil
}
