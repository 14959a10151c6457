package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EntryPath validates an archive entry name and joins it under root.
// Absolute names and parent traversal are rejected so a hostile archive
// cannot write outside the extraction tree.
func EntryPath(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("entry name is empty")
	}

	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", fmt.Errorf("entry resolves to current directory")
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute entry names are not allowed: %q", name)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("parent traversal is not allowed: %q", name)
	}

	return EnsureUnderRoot(root, filepath.Join(root, clean))
}

// EnsureUnderRoot verifies candidate resolves under root and returns
// an absolute normalized path.
func EnsureUnderRoot(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve candidate: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, candAbs)
	if err != nil {
		return "", fmt.Errorf("compare paths: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %q", candidate)
	}
	return candAbs, nil
}
