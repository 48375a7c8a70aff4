package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines file access to the working directory plus an
// explicit set of allowed directories, defeating traversal via ../ and
// symlinks.
type PathValidator struct {
	allowedDirs []string
	workDir     string
}

// NewPathValidator creates a validator. An empty allowedDirs permits
// only the working directory.
func NewPathValidator(allowedDirs []string) (*PathValidator, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("unable to get working directory: %w", err)
	}

	abs := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve directory %s: %w", dir, err)
		}
		abs = append(abs, absDir)
	}

	return &PathValidator{allowedDirs: abs, workDir: workDir}, nil
}

// ValidatePath cleans and resolves path, returning a safe absolute path
// or an error if it escapes the allowed directories. Paths to files that
// do not exist yet are accepted as long as they stay inside.
func (v *PathValidator) ValidatePath(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !v.within(absPath) {
		return "", fmt.Errorf("access denied: path '%s' is not within allowed directories", absPath)
	}

	// Symlinks could point outside the allowed set, so validate the
	// resolved target as well.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("unable to resolve symbolic link: %w", err)
		}
		return absPath, nil
	}
	if realPath != absPath {
		if !v.within(realPath) {
			return "", fmt.Errorf("access denied: symbolic link points to disallowed location '%s'", realPath)
		}
		absPath = realPath
	}

	return absPath, nil
}

func (v *PathValidator) within(absPath string) bool {
	withSep := filepath.Clean(absPath) + string(filepath.Separator)
	if strings.HasPrefix(withSep, filepath.Clean(v.workDir)+string(filepath.Separator)) || absPath == v.workDir {
		return true
	}
	for _, dir := range v.allowedDirs {
		if strings.HasPrefix(withSep, filepath.Clean(dir)+string(filepath.Separator)) || absPath == dir {
			return true
		}
	}
	return false
}
