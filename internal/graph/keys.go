package graph

import (
	"path"
	"path/filepath"
	"strings"
)

// Node keys are reproducible from the repo-relative path and, for symbols,
// the dotted qualified name:
//
//	directory  pkg/sub            ("/" for the repo root)
//	file       pkg/sub/util.py
//	symbol     pkg/sub/util.py:Helper.run
//	external   external:os.path
//
// Paths always use forward slashes.

// Root is the key of the repository root directory node.
const Root = "/"

const externalPrefix = "external:"

// DirKey returns the node key for a repo-relative directory path.
func DirKey(rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return Root
	}
	return rel
}

// FileKey returns the node key for a repo-relative file path.
func FileKey(rel string) string {
	return filepath.ToSlash(rel)
}

// SymbolKey returns the node key for a dotted qualified name inside a file.
func SymbolKey(relFile, qn string) string {
	return FileKey(relFile) + ":" + qn
}

// ExternalKey returns the node key for an unresolved import target.
func ExternalKey(name string) string {
	return externalPrefix + name
}

// IsExternalKey reports whether key names an external node.
func IsExternalKey(key string) bool {
	return strings.HasPrefix(key, externalPrefix)
}

// ExternalName returns the dotted import name behind an external key.
func ExternalName(key string) string {
	return strings.TrimPrefix(key, externalPrefix)
}

// SplitSymbolKey splits a symbol key into its file path and qualified name.
// ok is false for directory, file and external keys.
func SplitSymbolKey(key string) (relFile, qn string, ok bool) {
	if IsExternalKey(key) {
		return "", "", false
	}
	return strings.Cut(key, ":")
}

// ParentQN returns the dotted prefix of qn, or "" for a top-level name.
func ParentQN(qn string) string {
	i := strings.LastIndex(qn, ".")
	if i < 0 {
		return ""
	}
	return qn[:i]
}

// ShortName returns the last dotted segment of qn.
func ShortName(qn string) string {
	i := strings.LastIndex(qn, ".")
	if i < 0 {
		return qn
	}
	return qn[i+1:]
}

// DisplayName returns the human-facing name for a key: the short qualified
// name for symbols, the dotted import name for externals, the base name
// for paths, "/" for the root.
func DisplayName(key string) string {
	if key == Root {
		return Root
	}
	if IsExternalKey(key) {
		return ExternalName(key)
	}
	if _, qn, ok := SplitSymbolKey(key); ok {
		return ShortName(qn)
	}
	return path.Base(key)
}
