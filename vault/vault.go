// Package vault provides sandboxed access to a directory of markdown notes.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Common vault errors.
var (
	ErrInvalidRoot = errors.New("vault: invalid root")
	ErrOutOfBounds = errors.New("vault: path escapes vault root")
	ErrNotFound    = errors.New("vault: not found")
	ErrInvalidPath = errors.New("vault: invalid path")
	ErrEmptyQuery  = errors.New("vault: search query is empty")
)

var markdownExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
}

var ignoredDirs = map[string]struct{}{
	".obsidian":    {},
	".git":         {},
	".trash":       {},
	"node_modules": {},
}

// WriteMode selects how WriteFile treats existing content.
type WriteMode string

const (
	ModeOverwrite WriteMode = "overwrite"
	ModeAppend    WriteMode = "append"
)

// Vault is a file-system facade restricted to a single root directory.
// Every path it accepts is resolved against the root and rejected before
// any I/O if the result would land outside of it.
type Vault struct {
	root   string
	logger *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used for skip-with-warning conditions.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New opens the vault rooted at root. The root is home-expanded, made
// absolute and symlink-resolved, and must be an existing directory.
func New(root string, opts ...Option) (*Vault, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: root path is empty", ErrInvalidRoot)
	}

	expanded, err := expandHome(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidRoot, abs)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, resolved)
	}

	v := &Vault{
		root:   resolved,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the absolute, symlink-resolved vault root.
func (v *Vault) Root() string {
	return v.root
}

// Resolve maps a vault path to an absolute path inside the root.
// Absolute inputs are accepted only when they already point inside the root.
func (v *Vault) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}

	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(v.root, path)
	}

	if !v.contains(abs) {
		return "", fmt.Errorf("%w: %s", ErrOutOfBounds, path)
	}
	if abs == v.root {
		return "", fmt.Errorf("%w: %s refers to the vault root", ErrInvalidPath, path)
	}

	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidPath, path, err)
	}
	if !v.contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutOfBounds, path)
	}

	return resolved, nil
}

// Rel converts an absolute path inside the vault to its slash-separated
// vault path.
func (v *Vault) Rel(abs string) string {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ReadFile returns the full content of the file at path.
func (v *Vault) ReadFile(path string) (string, error) {
	abs, err := v.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	data, err := os.ReadFile(abs) // #nosec G304 -- path confined by Resolve
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes content to path, creating parent directories as needed.
// An empty mode is treated as ModeOverwrite.
func (v *Vault) WriteFile(path, content string, mode WriteMode) error {
	if mode == "" {
		mode = ModeOverwrite
	}
	if mode != ModeOverwrite && mode != ModeAppend {
		return fmt.Errorf("%w: unknown write mode %q", ErrInvalidPath, mode)
	}

	abs, err := v.Resolve(path)
	if err != nil {
		return err
	}

	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, path)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", path, err)
	}

	if mode == ModeOverwrite {
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil { // #nosec G306 -- notes are user documents
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}

	file, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G302,G304 -- path confined by Resolve
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

func (v *Vault) contains(abs string) bool {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting evaluates symlinks on the longest existing ancestor of
// abs and re-attaches the part that does not exist yet.
func resolveExisting(abs string) (string, error) {
	existing := abs
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func isMarkdown(name string) bool {
	_, ok := markdownExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isIgnoredDir(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}
