// Package discover finds the source files of a repository before any
// parsing happens: skip rules, ignore file, extension classification.
package discover

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/DeusData/codegraph/internal/lang"
)

// IGNORE_PATTERNS are directory names never descended into.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".claude": true, ".eclipse": true, ".eggs": true,
	".env": true, ".git": true, ".gradle": true, ".hg": true,
	".idea": true, ".maven": true, ".mypy_cache": true, ".nox": true,
	".npm": true, ".pytest_cache": true, ".ruff_cache": true, ".svn": true,
	".tox": true, ".venv": true, ".vs": true, ".vscode": true,
	"__pycache__": true, "bin": true, "build": true, "dist": true,
	"env": true, "htmlcov": true, "node_modules": true, "obj": true,
	"out": true, "site-packages": true, "target": true, "tmp": true,
	"vendor": true, "venv": true,
}

// DefaultExtensions are the source extensions indexed when the
// configuration does not override them.
var DefaultExtensions = []string{".py", ".java"}

// FileInfo is one discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // repo-relative, forward slashes
	Language lang.Language // zero when no language is registered for the extension
}

// Options configures file discovery.
type Options struct {
	SkipDirs   []string // extra skip patterns, merged with IGNORE_PATTERNS
	Extensions []string // source extensions; DefaultExtensions when empty
	IgnoreFile string   // explicit ignore file; <repo>/.cgrignore when empty
}

// Discover walks a repository in lexical order and returns its source
// files. Directories matching a skip pattern are not descended into, and
// symbolic links are never followed. Files whose extension lacks a
// language registration are still returned: they become text-only nodes.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var extraIgnore []string
	if opts != nil && opts.IgnoreFile != "" {
		extraIgnore, _ = loadIgnoreFile(opts.IgnoreFile)
	} else {
		extraIgnore, _ = loadIgnoreFile(filepath.Join(repoPath, ".cgrignore"))
	}
	if opts != nil {
		extraIgnore = append(extraIgnore, opts.SkipDirs...)
	}

	exts := make(map[string]bool)
	list := DefaultExtensions
	if opts != nil && len(opts.Extensions) > 0 {
		list = opts.Extensions
	}
	for _, e := range list {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[strings.ToLower(e)] = true
	}

	var files []FileInfo
	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(repoPath, path)

		if info.IsDir() {
			// The root itself is never skipped, whatever it is named.
			if path != repoPath && shouldSkipDir(info.Name(), rel, extraIgnore) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !exts[ext] {
			return nil
		}
		l, _ := lang.LanguageForExtension(ext)
		files = append(files, FileInfo{
			Path:     path,
			RelPath:  filepath.ToSlash(rel),
			Language: l,
		})
		return nil
	})

	return files, err
}

// shouldSkipDir reports whether a directory is excluded by the default
// set or by an extra pattern, matched against both name and relative path.
func shouldSkipDir(name, rel string, extraIgnore []string) bool {
	if IGNORE_PATTERNS[name] {
		return true
	}
	for _, pattern := range extraIgnore {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.ToSlash(rel)); matched {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads one pattern per line, skipping blanks and comments.
func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
