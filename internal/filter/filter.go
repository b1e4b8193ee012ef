// Package filter rejects fetched files by path, extension, and size before
// any expensive chunking or embedding work. Apply is a pure function: it
// reads only its arguments and returns only its result, generalized to run
// over an already-fetched in-memory file list instead of a disk walk.
package filter

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nocturnelabs/coderag/internal/fetch"
)

// Reason is a closed set of rejection reasons.
type Reason string

const (
	ReasonIgnoredPath          Reason = "ignored-path"
	ReasonExtensionNotAllowed  Reason = "extension-not-allowed"
	ReasonTooLarge             Reason = "too-large"
	ReasonBinary               Reason = "binary"
	ReasonEmpty                Reason = "empty"
)

// MaxFileSize is the accept threshold: 500 KiB.
const MaxFileSize = 500 * 1024

// ignoredSegments are path segments that reject a file regardless of depth.
var ignoredSegments = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"__pycache__":  true,
	"vendor":       true,
	"coverage":     true,
	"target":       true,
	"bin":          true,
	"obj":          true,
	".venv":        true,
	".idea":        true,
	".vscode":      true,
}

// allowedExtensions is the text/code extension whitelist. Anything not
// listed here is rejected as extension-not-allowed, even if languageByExtension
// would still recognize it (e.g. .html/.css survive filtering but are still
// chunkable via the sliding-window fallback; purely binary or vendored
// asset extensions never reach this whitelist).
var allowedExtensions = map[string]bool{
	".go": true, ".py": true, ".pyi": true,
	".ts": true, ".tsx": true, ".mts": true,
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".java": true, ".rs": true, ".c": true, ".h": true,
	".cpp": true, ".cc": true, ".cxx": true, ".hpp": true, ".hxx": true,
	".cs": true, ".rb": true, ".php": true, ".swift": true,
	".kt": true, ".kts": true, ".scala": true, ".sc": true,
	".sh": true, ".bash": true, ".zsh": true, ".sql": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".sass": true, ".less": true,
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".tf": true, ".tfvars": true, ".md": true, ".markdown": true,
	".proto": true, ".lua": true, ".dart": true, ".ex": true, ".exs": true,
	".hs": true, ".pl": true, ".pm": true, ".vue": true, ".svelte": true,
}

// Rejection records why a file was rejected.
type Rejection struct {
	Path   string
	Reason Reason
}

// Result is the outcome of filtering a batch of fetched files.
type Result struct {
	Accepted []fetch.File
	Rejected []Rejection
}

// Apply filters files. len(Accepted)+len(Rejected) always equals len(files).
func Apply(files []fetch.File) Result {
	res := Result{
		Accepted: make([]fetch.File, 0, len(files)),
		Rejected: make([]Rejection, 0),
	}

	for _, f := range files {
		if reason, ok := reject(f); ok {
			res.Rejected = append(res.Rejected, Rejection{Path: f.Path, Reason: reason})
			continue
		}
		res.Accepted = append(res.Accepted, f)
	}
	return res
}

func reject(f fetch.File) (Reason, bool) {
	if hasIgnoredSegment(f.Path) {
		return ReasonIgnoredPath, true
	}
	ext := strings.ToLower(filepath.Ext(f.Path))
	if !allowedExtensions[ext] {
		return ReasonExtensionNotAllowed, true
	}
	if len(f.Content) > MaxFileSize {
		return ReasonTooLarge, true
	}
	if len(f.Content) == 0 {
		return ReasonEmpty, true
	}
	if !utf8.Valid(f.Content) || containsNulByte(f.Content) {
		return ReasonBinary, true
	}
	return "", false
}

func hasIgnoredSegment(path string) bool {
	normalized := filepath.ToSlash(path)
	for _, seg := range strings.Split(normalized, "/") {
		if ignoredSegments[strings.ToLower(seg)] {
			return true
		}
	}
	// Also match each built-in ignored segment as a doublestar
	// "**/<segment>/**" pattern against the normalized path.
	for pattern := range ignoredSegments {
		if matched, err := doublestar.Match("**/"+pattern+"/**", normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func containsNulByte(content []byte) bool {
	for _, b := range content {
		if b == 0 {
			return true
		}
	}
	return false
}

// languageByExtension maps file extensions to language names, matching
// allowedExtensions so every accepted file resolves to a known language.
var languageByExtension = map[string]string{
	".go": "Go", ".py": "Python", ".pyi": "Python",
	".ts": "TypeScript", ".tsx": "TypeScript", ".mts": "TypeScript",
	".js": "JavaScript", ".jsx": "JavaScript", ".mjs": "JavaScript", ".cjs": "JavaScript",
	".java": "Java", ".rs": "Rust", ".c": "C", ".h": "C",
	".cpp": "C++", ".cc": "C++", ".cxx": "C++", ".hpp": "C++", ".hxx": "C++",
	".cs": "C#", ".rb": "Ruby", ".php": "PHP", ".swift": "Swift",
	".kt": "Kotlin", ".kts": "Kotlin", ".scala": "Scala", ".sc": "Scala",
	".sh": "Shell", ".bash": "Shell", ".zsh": "Shell", ".sql": "SQL",
	".html": "HTML", ".htm": "HTML", ".css": "CSS", ".scss": "CSS", ".sass": "CSS", ".less": "CSS",
	".yaml": "YAML", ".yml": "YAML", ".json": "JSON", ".toml": "TOML",
	".tf": "Terraform", ".tfvars": "Terraform", ".md": "Markdown", ".markdown": "Markdown",
	".proto": "Protobuf", ".lua": "Lua", ".dart": "Dart", ".ex": "Elixir", ".exs": "Elixir",
	".hs": "Haskell", ".pl": "Perl", ".pm": "Perl", ".vue": "Vue", ".svelte": "Svelte",
}

// Language returns the detected language for an accepted file, or
// "unknown" if its extension isn't in the table.
func Language(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "unknown"
}
