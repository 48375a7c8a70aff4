package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tessera-ai/tessera/internal/security"
)

// textExtensions are the file types accepted for ingestion.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".rb": true,
	".sh": true, ".sql": true, ".proto": true,
	".yaml": true, ".yml": true, ".toml": true, ".json": true,
	".html": true, ".css": true, ".csv": true, ".xml": true,
}

// FileExtractor reads local text files, restricted to allowed
// directories to block path traversal.
type FileExtractor struct {
	paths *security.PathValidator
}

// NewFileExtractor creates an extractor that only reads under
// allowedDirs.
func NewFileExtractor(allowedDirs []string) (*FileExtractor, error) {
	validator, err := security.NewPathValidator(allowedDirs)
	if err != nil {
		return nil, fmt.Errorf("creating path validator: %w", err)
	}
	return &FileExtractor{paths: validator}, nil
}

// Extract reads one file and returns it as a document.
func (e *FileExtractor) Extract(path string) (Document, error) {
	clean, err := e.paths.ValidatePath(path)
	if err != nil {
		return Document{}, fmt.Errorf("validating path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(clean))
	if !textExtensions[ext] {
		return Document{}, fmt.Errorf("unsupported file type %q", ext)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", clean, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", clean)
	}
	if info.Size() > MaxFileSize {
		return Document{}, fmt.Errorf("file %s exceeds %d bytes", clean, int64(MaxFileSize))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", clean, err)
	}
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("%s is not valid UTF-8 text", clean)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return Document{}, fmt.Errorf("%s is empty", clean)
	}

	return Document{
		Title:     filepath.Base(clean),
		SourceRef: clean,
		Content:   content,
	}, nil
}
