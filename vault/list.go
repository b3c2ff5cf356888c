package vault

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const maxLineSize = 1024 * 1024

// Match is a single line of a file that contains the search query.
type Match struct {
	Path       string `json:"path"`
	LineNumber int    `json:"line_number"`
	LineText   string `json:"line_text"`
}

// ListFiles returns the markdown files in the vault, sorted by path.
//
// The optional pattern uses gitignore-style matching: a pattern without a
// slash matches a file or directory name at any depth, a pattern with a
// slash is anchored at the vault root, and ** spans directories.
func (v *Vault) ListFiles(pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern != "" {
		if err := validatePattern(pattern); err != nil {
			return nil, err
		}
	}

	var files []string
	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == v.root {
				return err
			}
			v.logger.Warn("skipping unreadable vault entry", "path", v.Rel(path), "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != v.root && isIgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !isMarkdown(d.Name()) {
			return nil
		}

		rel := v.Rel(path)
		if pattern != "" && !matchPattern(pattern, rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}

	slices.Sort(files)
	return files, nil
}

// Search scans every markdown file line by line and returns one match per
// line containing query. Files that cannot be read are skipped with a
// warning; matches found before a read failure are kept.
func (v *Vault) Search(query string, caseSensitive bool) ([]Match, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	files, err := v.ListFiles("")
	if err != nil {
		return nil, err
	}

	needle := query
	if !caseSensitive {
		needle = strings.ToLower(query)
	}

	var matches []Match
	for _, rel := range files {
		found, err := v.searchFile(rel, needle, caseSensitive)
		matches = append(matches, found...)
		if err != nil {
			v.logger.Warn("skipping file during search", "path", rel, "error", err)
		}
	}
	return matches, nil
}

func (v *Vault) searchFile(rel, needle string, caseSensitive bool) ([]Match, error) {
	abs, err := v.Resolve(rel)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(abs) // #nosec G304 -- path confined by Resolve
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var matches []Match
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		haystack := line
		if !caseSensitive {
			haystack = strings.ToLower(line)
		}
		if strings.Contains(haystack, needle) {
			matches = append(matches, Match{
				Path:       rel,
				LineNumber: lineNumber,
				LineText:   line,
			})
		}
	}
	return matches, scanner.Err()
}

// Tree renders the vault hierarchy with directories before files and names
// ordered case-insensitively. Hidden and ignored directories are left out
// and only markdown files are shown. maxDepth <= 0 means unlimited.
func (v *Vault) Tree(maxDepth int) (string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return "", fmt.Errorf("read vault root: %w", err)
	}

	lines := []string{fmt.Sprintf("📁 %s/", filepath.Base(v.root))}
	v.renderTree(&lines, v.root, entries, "", 0, maxDepth)
	return strings.Join(lines, "\n"), nil
}

func (v *Vault) renderTree(lines *[]string, dir string, entries []fs.DirEntry, prefix string, depth, maxDepth int) {
	if maxDepth > 0 && depth >= maxDepth {
		return
	}

	visible := make([]fs.DirEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			if !strings.HasPrefix(name, ".") && !isIgnoredDir(name) {
				visible = append(visible, entry)
			}
		case entry.Type().IsRegular() && isMarkdown(name):
			visible = append(visible, entry)
		}
	}

	slices.SortFunc(visible, func(a, b fs.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		if c := strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name())); c != 0 {
			return c
		}
		return strings.Compare(a.Name(), b.Name())
	})

	for i, entry := range visible {
		last := i == len(visible)-1
		connector := "├── "
		childPrefix := prefix + "│   "
		if last {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		if !entry.IsDir() {
			*lines = append(*lines, prefix+connector+"📄 "+entry.Name())
			continue
		}

		*lines = append(*lines, prefix+connector+"📁 "+entry.Name()+"/")
		path := filepath.Join(dir, entry.Name())
		children, err := os.ReadDir(path)
		if err != nil {
			v.logger.Warn("skipping unreadable directory in tree", "path", v.Rel(path), "error", err)
			continue
		}
		v.renderTree(lines, path, children, childPrefix, depth+1, maxDepth)
	}
}

func validatePattern(pattern string) error {
	for _, segment := range strings.Split(filepath.ToSlash(pattern), "/") {
		if segment == ".." {
			return fmt.Errorf("%w: pattern %q", ErrOutOfBounds, pattern)
		}
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w: malformed pattern %q", ErrInvalidPath, pattern)
	}
	return nil
}

// matchPattern reports whether rel matches pattern. A match on a directory
// component also matches every file beneath it.
func matchPattern(pattern, rel string) bool {
	pattern = filepath.ToSlash(pattern)
	dirOnly := strings.HasSuffix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	if strings.Contains(pattern, "/") {
		pattern = strings.TrimPrefix(pattern, "/")
	} else {
		pattern = "**/" + pattern
	}

	candidates := []string{pattern + "/**"}
	if !dirOnly {
		candidates = append(candidates, pattern)
	}
	for _, candidate := range candidates {
		ok, err := doublestar.Match(candidate, rel)
		if errors.Is(err, doublestar.ErrBadPattern) {
			return false
		}
		if ok {
			return true
		}
	}
	return false
}
