package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/logging"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

const gitBackend = "git"

// GitArchive commits every generated metadata result to a git repository,
// giving a browsable history of what the model produced for each upload.
type GitArchive struct {
	mu          sync.Mutex
	repo        *git.Repository
	repoPath    string
	AuthorName  string
	AuthorEmail string
	metrics     MetricsCollector
}

// archiveRecord is written next to the metadata as document.json.
type archiveRecord struct {
	ID          string            `json:"id"`
	Source      document.Source   `json:"source"`
	Report      document.Report   `json:"report"`
	Extraction  map[string]string `json:"extraction,omitempty"`
	Model       string            `json:"model,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// NewGitArchive opens the repository at repoPath, initialising it when it
// does not exist yet.
func NewGitArchive(repoPath string, metrics MetricsCollector) (*GitArchive, error) {
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(repoPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		repo, err = git.PlainInit(repoPath, false)
		if err == nil {
			log.Info().Str("path", repoPath).Msg("Initialized metadata archive repository")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	return &GitArchive{
		repo:        repo,
		repoPath:    repoPath,
		AuthorName:  "SmartMeta",
		AuthorEmail: "smartmeta@localhost",
		metrics:     metrics,
	}, nil
}

// Archive writes metadata.json, text.txt and document.json under the
// document's archive path and commits them.
func (g *GitArchive) Archive(ctx context.Context, doc *document.Document) error {
	start := time.Now()
	hash, err := g.commitDocument(ctx, doc)
	record(g.metrics, gitBackend, "archive", start, err)
	if err != nil {
		return err
	}

	logger := logging.GetStorageLogger("archive", gitBackend)
	logger.Info().Str("document_id", doc.ID).Str("commit", hash).Msg("Metadata archived")
	return nil
}

// Health checks that the worktree is reachable.
func (g *GitArchive) Health(ctx context.Context) error {
	start := time.Now()
	_, err := g.repo.Worktree()
	record(g.metrics, gitBackend, "health", start, err)
	return err
}

// History returns up to limit archive commits, newest first.
func (g *GitArchive) History(ctx context.Context, limit int) ([]*object.Commit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	head, err := g.repo.Head()
	if err != nil {
		return nil, nil
	}
	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to read archive log: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	for limit <= 0 || len(commits) < limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func (g *GitArchive) commitDocument(ctx context.Context, doc *document.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("document cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("document validation failed: %w", err)
	}
	if !doc.Generated.Succeeded() {
		return "", fmt.Errorf("document %s has no generated metadata", doc.ID)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	metadataBytes, err := doc.Generated.Metadata.ExportJSON()
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	recordBytes, err := json.MarshalIndent(archiveRecord{
		ID:          doc.ID,
		Source:      doc.Source,
		Report:      doc.Report,
		Extraction:  doc.Content.Metadata,
		Model:       doc.Generated.Model,
		CreatedAt:   doc.CreatedAt,
		GeneratedAt: doc.Generated.GeneratedAt,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal document record: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	w, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	rel := doc.ArchivePath()
	dir := filepath.Join(g.repoPath, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	files := map[string][]byte{
		"metadata.json": metadataBytes,
		"text.txt":      []byte(doc.Content.Text),
		"document.json": recordBytes,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
		if _, err := w.Add(path.Join(rel, name)); err != nil {
			return "", fmt.Errorf("failed to add %s: %w", name, err)
		}
	}

	commit, err := w.Commit(fmt.Sprintf("Add metadata for %s (%s)", doc.Source.Filename, doc.ID), &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.AuthorName,
			Email: g.AuthorEmail,
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, herr := g.repo.Head()
		if herr != nil {
			return "", fmt.Errorf("failed to commit: %w", err)
		}
		return head.Hash().String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	return commit.String(), nil
}
