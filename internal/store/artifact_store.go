package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	// MaxArtifactSize is the maximum allowed artifact size in bytes.
	MaxArtifactSize = 2 * 1024 * 1024 // 2MB
)

var (
	ErrArtifactNotFound      = errors.New("artifact not found")
	ErrArtifactTooLarge      = errors.New("artifact exceeds maximum size")
	ErrInvalidArtifactPath   = errors.New("invalid artifact path")
	ErrArtifactPathTraversal = errors.New("path traversal not allowed")
)

// ArtifactStore writes the human-readable outputs of a run: each article
// version, each role's feedback, and the finished article. These mirror the
// database state for inspection and are not the source of truth for resume.
type ArtifactStore interface {
	WriteArticle(ctx context.Context, runID int64, topic string, version int, content string) (string, error)
	ReadArticle(ctx context.Context, runID int64, topic string, version int) (string, error)
	WriteFeedback(ctx context.Context, runID int64, topic, role string, version int, payload []byte) (string, error)
	WriteFinal(ctx context.Context, runID int64, topic, filename, content string) (string, error)
	ListVersions(ctx context.Context, runID int64, topic string) ([]int, error)
}

var articleFilePattern = regexp.MustCompile(`^article_v(\d+)\.md$`)

// LocalArtifactStore implements ArtifactStore on the local filesystem.
// Each run gets its own directory, run_{id}_{slug}/, holding
// article_v{N}.md and {role}_feedback_v{N}.json files.
type LocalArtifactStore struct {
	rootDir string
}

func NewLocalArtifactStore(rootDir string) (*LocalArtifactStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("artifact root directory is required")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root directory: %w", err)
	}

	return &LocalArtifactStore{rootDir: rootDir}, nil
}

func (s *LocalArtifactStore) WriteArticle(ctx context.Context, runID int64, topic string, version int, content string) (string, error) {
	return s.write(runID, topic, fmt.Sprintf("article_v%d.md", version), []byte(content))
}

func (s *LocalArtifactStore) ReadArticle(ctx context.Context, runID int64, topic string, version int) (string, error) {
	relPath := filepath.Join(runDirName(runID, topic), fmt.Sprintf("article_v%d.md", version))
	if err := s.validatePath(relPath); err != nil {
		return "", err
	}

	content, err := os.ReadFile(filepath.Join(s.rootDir, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrArtifactNotFound
		}
		return "", fmt.Errorf("reading article: %w", err)
	}
	return string(content), nil
}

func (s *LocalArtifactStore) WriteFeedback(ctx context.Context, runID int64, topic, role string, version int, payload []byte) (string, error) {
	return s.write(runID, topic, fmt.Sprintf("%s_feedback_v%d.json", role, version), payload)
}

func (s *LocalArtifactStore) WriteFinal(ctx context.Context, runID int64, topic, filename, content string) (string, error) {
	return s.write(runID, topic, filename, []byte(content))
}

// ListVersions returns the article version numbers present for a run, in
// ascending order.
func (s *LocalArtifactStore) ListVersions(ctx context.Context, runID int64, topic string) ([]int, error) {
	dir := filepath.Join(s.rootDir, runDirName(runID, topic))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		m := articleFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

func (s *LocalArtifactStore) write(runID int64, topic, filename string, content []byte) (string, error) {
	if len(content) > MaxArtifactSize {
		return "", ErrArtifactTooLarge
	}
	if len(content) == 0 {
		return "", fmt.Errorf("artifact content cannot be empty")
	}

	// Validate before joining: Join cleans ".." segments away.
	if err := validateArtifactPath(filename); err != nil {
		return "", err
	}

	dirName := runDirName(runID, topic)
	relPath := filepath.Join(dirName, filename)

	fullDir := filepath.Join(s.rootDir, dirName)
	fullPath := filepath.Join(s.rootDir, relPath)

	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	// Atomic write: write to temp file, then rename
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return "", fmt.Errorf("writing temp artifact: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming artifact: %w", err)
	}

	return relPath, nil
}

func runDirName(runID int64, topic string) string {
	slug := slugify(topic)
	if slug == "" {
		slug = "run"
	}
	return fmt.Sprintf("run_%d_%s", runID, slug)
}

// validatePath ensures the path is safe (no traversal, stays under root).
func (s *LocalArtifactStore) validatePath(path string) error {
	return validateArtifactPath(path)
}

func validateArtifactPath(path string) error {
	if path == "" {
		return ErrInvalidArtifactPath
	}

	if strings.Contains(path, "..") {
		return ErrArtifactPathTraversal
	}

	if filepath.IsAbs(path) {
		return ErrArtifactPathTraversal
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return ErrArtifactPathTraversal
	}

	return nil
}

// slugify converts a topic to a filesystem-safe slug.
var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(s)
	s = slugRegex.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > 50 {
		s = s[:50]
		s = strings.TrimRight(s, "-")
	}

	result := strings.Builder{}
	for _, r := range s {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			result.WriteRune(r)
		}
	}

	return result.String()
}
