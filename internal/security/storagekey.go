// Package security validates externally supplied storage keys and file names
// before they touch the filesystem.
package security

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidateStorageKey checks the syntax of an artifact storage key. Keys are
// slash separated relative paths such as "samples/S1/abc123.csv".
func ValidateStorageKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage key is empty")
	}
	if strings.ContainsAny(key, "\x00\\") {
		return fmt.Errorf("storage key %q contains a forbidden character", key)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("storage key %q must be relative", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("storage key %q has an invalid path segment", key)
		}
	}
	return nil
}

// ResolveStorageKey maps a storage key to a filesystem path under root.
// The resolved path must stay within root after symlinks are followed.
func ResolveStorageKey(root, key string) (string, error) {
	if err := ValidateStorageKey(key); err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(path.Clean(key)))
	if err := ValidatePathWithinDirectory(full, root); err != nil {
		return "", err
	}
	return full, nil
}

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't escape
// the specified safe directory, including through symlinked parents.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}
	canonicalPath := canonicalize(absPath)

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. When absPath does not exist yet
// the deepest existing ancestor is resolved and the remainder re-joined, so
// a new file under a symlinked directory is judged by where it would land.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, absPath)
			return filepath.Join(resolved, rel)
		}
		if filepath.Dir(dir) == dir {
			return absPath
		}
	}
}

// SanitizeFilename makes a safe filename from an arbitrary string. It replaces
// any characters that are not ASCII letters, digits, dot, underscore or dash
// with an underscore, collapses repeats and trims the result to 128 bytes.
// Uploaded artifact names pass through it before becoming part of a key.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
