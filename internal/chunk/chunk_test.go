package chunk

import (
	"strings"
	"testing"
)

func TestChunkEmptyFile(t *testing.T) {
	c := NewDefault()
	res, err := c.Chunk("owner/repo", "empty.go", "go", "")
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("expected 0 chunks for empty file, got %d", len(res.Chunks))
	}
}

func TestChunkSingleLineFile(t *testing.T) {
	c := NewDefault()
	res, err := c.Chunk("owner/repo", "single.txt", "text", "package main")
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("expected 1 chunk for single-line file, got %d", len(res.Chunks))
	}
	if res.Strategy != StrategySlidingWindow {
		t.Fatalf("expected sliding-window strategy, got %s", res.Strategy)
	}
}

func TestChunkGoSymbols(t *testing.T) {
	src := `package sample

// Add returns the sum of a and b.
func Add(a, b int) int {
	return a + b
}

// Greeter says hello.
type Greeter struct {
	Name string
}

func (g *Greeter) Greet() string {
	return "hello " + g.Name
}
`
	c := New(DefaultOptions(), NewGoExtractor())
	res, err := c.Chunk("owner/repo", "sample.go", "go", src)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if res.Strategy != StrategyAST {
		t.Fatalf("expected ast strategy, got %s", res.Strategy)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("expected 3 symbol chunks (Add, Greeter, Greet), got %d", len(res.Chunks))
	}

	first := res.Chunks[0]
	if first.SymbolName == nil || *first.SymbolName != "Add" {
		t.Fatalf("expected first chunk symbol Add, got %v", first.SymbolName)
	}
	if !strings.Contains(first.Content, "// Add returns the sum") {
		t.Fatalf("expected leading doc comment folded into chunk, got:\n%s", first.Content)
	}

	for i, ch := range res.Chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("expected chunk index %d, got %d", i, ch.ChunkIndex)
		}
	}
}

func TestChunkFallsBackForUnsupportedLanguage(t *testing.T) {
	src := strings.Repeat("x = 1\n", 100)
	c := New(DefaultOptions(), NewGoExtractor())
	res, err := c.Chunk("owner/repo", "data.txt", "text", src)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if res.Strategy != StrategySlidingWindow {
		t.Fatalf("expected sliding-window fallback for unsupported language, got %s", res.Strategy)
	}
	if len(res.Chunks) == 0 {
		t.Fatal("expected at least one sliding-window chunk")
	}
}

func TestChunkSlidingWindowOverlap(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	src := strings.Join(lines, "\n")

	opts := Options{WindowLines: 40, OverlapLines: 8, MaxChunkChars: 8000}
	c := New(opts)
	res, err := c.Chunk("owner/repo", "big.txt", "text", src)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("expected multiple sliding windows over 100 lines, got %d", len(res.Chunks))
	}
	for i := 1; i < len(res.Chunks); i++ {
		prev := res.Chunks[i-1]
		cur := res.Chunks[i]
		if cur.StartLine > prev.EndLine {
			t.Fatalf("expected overlap between window %d (ends %d) and %d (starts %d)", i-1, prev.EndLine, i, cur.StartLine)
		}
	}
	last := res.Chunks[len(res.Chunks)-1]
	if last.EndLine != 100 {
		t.Fatalf("expected final window to reach line 100, got %d", last.EndLine)
	}
}

func TestSplitOversizedChunk(t *testing.T) {
	long := strings.Repeat("a", 9000)
	pieces := splitOversized(long, 1, 8000)
	if len(pieces) < 2 {
		t.Fatalf("expected oversized content to split into multiple pieces, got %d", len(pieces))
	}
	for _, p := range pieces {
		if len(p.content) > 8000 {
			t.Fatalf("piece exceeds max chars: %d", len(p.content))
		}
	}
}

func TestChunkSlidingWindowCoversFile(t *testing.T) {
	src := strings.Repeat("line of text here\n", 50)
	c := NewDefault()
	res, err := c.Chunk("owner/repo", "file.md", "markdown", src)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	total := 0
	for _, ch := range res.Chunks {
		total += ch.EndLine - ch.StartLine + 1
	}
	if total == 0 {
		t.Fatal("expected chunked lines to cover the file")
	}
}
