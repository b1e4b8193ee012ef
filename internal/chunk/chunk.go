// Package chunk splits an accepted file's content into retrieval chunks:
// symbol-aware when a registered extractor recognizes the language and
// finds at least one top-level symbol, sliding-window otherwise.
package chunk

import (
	"strings"

	"github.com/google/uuid"
)

// Strategy is the closed set of chunking strategies.
type Strategy string

const (
	StrategyAST           Strategy = "ast"
	StrategySlidingWindow Strategy = "sliding-window"
)

// Chunk is the unit of retrieval produced by the chunker.
type Chunk struct {
	ID         string
	RepoID     string
	FilePath   string
	Language   string
	SymbolName *string
	StartLine  int // 1-based, inclusive
	EndLine    int // 1-based, inclusive
	Content    string
	ChunkIndex int
}

// Result is the outcome of chunking one file.
type Result struct {
	Chunks   []Chunk
	Strategy Strategy
}

// Options tunes the sliding-window fallback and the hard per-chunk size cap.
// The 40/8 window defaults are drawn from observed fixtures, not a fixed
// constant, so callers may override them per repository if needed.
type Options struct {
	WindowLines   int
	OverlapLines  int
	MaxChunkChars int
}

// DefaultOptions returns the spec-default sliding-window and split
// parameters.
func DefaultOptions() Options {
	return Options{WindowLines: 40, OverlapLines: 8, MaxChunkChars: 8000}
}

func (o Options) withDefaults() Options {
	if o.WindowLines <= 0 {
		o.WindowLines = 40
	}
	if o.OverlapLines <= 0 || o.OverlapLines >= o.WindowLines {
		o.OverlapLines = 8
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = 8000
	}
	return o
}

// Symbol is a single top-level symbol found by a SymbolExtractor, with
// 1-based inclusive line bounds (leading doc comments not yet folded in).
type Symbol struct {
	Name      string
	StartLine int
	EndLine   int
}

// SymbolExtractor is the capability-set polymorphism registry entry for
// symbol-aware chunking: each extractor declares which languages it
// supports and how to find top-level symbols in that language's source.
type SymbolExtractor interface {
	Supports(language string) bool
	Extract(content []byte) ([]Symbol, error)
}

// Chunker turns file content into chunks using registered extractors with a
// sliding-window fallback.
type Chunker struct {
	extractors []SymbolExtractor
	opts       Options
}

// New creates a Chunker with the given options and symbol extractors,
// tried in registration order; the first extractor whose Supports returns
// true is used.
func New(opts Options, extractors ...SymbolExtractor) *Chunker {
	return &Chunker{extractors: extractors, opts: opts.withDefaults()}
}

// Chunk splits content into chunks for the given file.
func (c *Chunker) Chunk(repoID, path, language, content string) (Result, error) {
	if content == "" {
		return Result{Strategy: StrategySlidingWindow}, nil
	}

	lines := splitLines(content)

	if extractor := c.findExtractor(language); extractor != nil {
		symbols, err := extractor.Extract([]byte(content))
		if err != nil {
			return Result{}, err
		}
		if len(symbols) > 0 {
			return c.chunkBySymbols(repoID, path, language, lines, symbols), nil
		}
	}

	return c.chunkBySlidingWindow(repoID, path, language, lines), nil
}

func (c *Chunker) findExtractor(language string) SymbolExtractor {
	for _, e := range c.extractors {
		if e.Supports(language) {
			return e
		}
	}
	return nil
}

// splitLines splits on "\n" without discarding a trailing empty element,
// matching how startLine/endLine indexing must line up 1:1 with the
// original file's newline-delimited lines.
func splitLines(content string) []string {
	return strings.Split(content, "\n")
}

func (c *Chunker) chunkBySymbols(repoID, path, language string, lines []string, symbols []Symbol) Result {
	var chunks []Chunk
	index := 0

	for _, sym := range symbols {
		start := withLeadingComment(lines, sym.StartLine)
		end := sym.EndLine
		if end > len(lines) {
			end = len(lines)
		}
		if start < 1 {
			start = 1
		}
		body := strings.Join(lines[start-1:end], "\n")

		pieces := splitOversized(body, start, c.opts.MaxChunkChars)
		for i, p := range pieces {
			name := sym.Name
			var symPtr *string
			if i == 0 {
				symPtr = &name
			}
			chunks = append(chunks, Chunk{
				ID:         uuid.NewString(),
				RepoID:     repoID,
				FilePath:   path,
				Language:   language,
				SymbolName: symPtr,
				StartLine:  p.startLine,
				EndLine:    p.endLine,
				Content:    p.content,
				ChunkIndex: index,
			})
			index++
		}
	}

	return Result{Chunks: chunks, Strategy: StrategyAST}
}

// withLeadingComment walks upward from a symbol's start line, absorbing a
// contiguous block of line comments (no intervening blank line) so the
// chunk carries its doc comment.
func withLeadingComment(lines []string, startLine int) int {
	i := startLine - 1 - 1 // index of the line just above startLine (0-based)
	absorbed := startLine
	for i >= 0 {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			break
		}
		if isCommentLine(trimmed) {
			absorbed = i + 1
			i--
			continue
		}
		break
	}
	return absorbed
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "'''") ||
		strings.HasPrefix(trimmed, `"""`)
}

func (c *Chunker) chunkBySlidingWindow(repoID, path, language string, lines []string) Result {
	total := len(lines)
	// A file consisting only of a single trailing empty element from
	// strings.Split (i.e. genuinely empty) never reaches here since Chunk
	// short-circuits on content == "".
	if total == 1 && lines[0] == "" {
		return Result{Strategy: StrategySlidingWindow}
	}

	window := c.opts.WindowLines
	overlap := c.opts.OverlapLines
	step := window - overlap
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	index := 0
	start := 1
	for start <= total {
		end := start + window - 1
		if end > total {
			end = total
		}
		// Final window: widen backward to at least 8 lines even if it
		// re-covers content already emitted in the prior window.
		if end-start+1 < overlap && start > 1 {
			start = end - overlap + 1
			if start < 1 {
				start = 1
			}
		}

		body := strings.Join(lines[start-1:end], "\n")
		pieces := splitOversized(body, start, c.opts.MaxChunkChars)
		for _, p := range pieces {
			chunks = append(chunks, Chunk{
				ID:         uuid.NewString(),
				RepoID:     repoID,
				FilePath:   path,
				Language:   language,
				StartLine:  p.startLine,
				EndLine:    p.endLine,
				Content:    p.content,
				ChunkIndex: index,
			})
			index++
		}

		if end >= total {
			break
		}
		start += step
	}

	return Result{Chunks: chunks, Strategy: StrategySlidingWindow}
}

type piece struct {
	content   string
	startLine int
	endLine   int
}

// splitOversized splits body (spanning startLine..startLine+n-1) into
// pieces no larger than maxChars, breaking at the nearest preceding
// newline so no piece ends mid-line. A single line longer than maxChars is
// cut into maxChars-sized parts (backed off to a UTF-8 rune boundary) that
// all carry that line's number.
func splitOversized(body string, startLine int, maxChars int) []piece {
	if len(body) <= maxChars {
		endLine := startLine + strings.Count(body, "\n")
		return []piece{{content: body, startLine: startLine, endLine: endLine}}
	}

	var pieces []piece
	lines := strings.Split(body, "\n")
	curStart := 0
	curLen := 0
	lineStart := startLine
	for i, ln := range lines {
		addLen := len(ln) + 1
		if curLen > 0 && curLen+addLen > maxChars {
			seg := strings.Join(lines[curStart:i], "\n")
			pieces = append(pieces, piece{
				content:   seg,
				startLine: lineStart,
				endLine:   lineStart + (i - curStart) - 1,
			})
			lineStart = lineStart + (i - curStart)
			curStart = i
			curLen = 0
		}
		curLen += addLen
	}
	seg := strings.Join(lines[curStart:], "\n")
	pieces = append(pieces, piece{
		content:   seg,
		startLine: lineStart,
		endLine:   lineStart + (len(lines) - curStart) - 1,
	})

	out := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		for len(p.content) > maxChars {
			cut := maxChars
			for cut > 1 && p.content[cut]&0xC0 == 0x80 {
				cut--
			}
			out = append(out, piece{content: p.content[:cut], startLine: p.startLine, endLine: p.endLine})
			p.content = p.content[cut:]
		}
		out = append(out, p)
	}
	return out
}
