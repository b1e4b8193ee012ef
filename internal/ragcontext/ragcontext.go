// Package ragcontext assembles a ranked set of retrieved chunks into a
// grounded prompt pair, numbering each chunk as a citation and scoping the
// system prompt so the model answers only from what it was given.
package ragcontext

import (
	"fmt"
	"strings"

	"github.com/nocturnelabs/coderag/internal/retriever"
)

// DefaultCharBudget is the default cap on total prompt size (system +
// user), in characters.
const DefaultCharBudget = 24000

const systemPromptTemplate = `You are a senior software engineer answering questions about the repository %s using only the numbered code excerpts provided below. Do not invent file paths, line numbers, or behavior that isn't shown in an excerpt. Every factual claim in your answer must carry a citation in the form [N] referring to the excerpt it came from. If the excerpts don't contain enough information to answer, say so rather than guessing.`

// Citation is one entry of the citation map: which excerpt number points
// to which source location.
type Citation struct {
	Number    int    `json:"number"`
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Symbol    string `json:"symbol,omitempty"`
}

// CitationMap is an injective mapping from citation number to source
// location: every number appearing in userPrompt has exactly one entry
// here, and every entry here appears in userPrompt.
type CitationMap map[int]Citation

// Result is the assembled prompt pair plus its citation map.
type Result struct {
	SystemPrompt string
	UserPrompt   string
	Citations    CitationMap
}

// Options configures Assemble.
type Options struct {
	CharBudget int
}

func (o Options) withDefaults() Options {
	if o.CharBudget <= 0 {
		o.CharBudget = DefaultCharBudget
	}
	return o
}

// Assemble numbers chunks in ranked order starting at [1], builds the
// system/user prompt pair, and truncates from the tail (in rank order) if
// the running total would exceed opts.CharBudget, removing the
// corresponding CitationMap entries in the same pass so no citation number
// in userPrompt is ever missing from Citations.
func Assemble(query string, chunks []retriever.RetrievedChunk, repoID string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	systemPrompt := fmt.Sprintf(systemPromptTemplate, repoID)

	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\n")

	citations := make(CitationMap)
	budget := opts.CharBudget - len(systemPrompt) - b.Len()

	for i, ch := range chunks {
		number := i + 1
		header := fmt.Sprintf("[%d] %s Lines %d–%d", number, ch.FilePath, ch.StartLine, ch.EndLine)
		if ch.SymbolName != "" {
			header += " · " + ch.SymbolName
		}
		entry := header + "\n" + ch.Content + "\n\n"

		if budget-len(entry) < 0 {
			break
		}
		b.WriteString(entry)
		budget -= len(entry)

		citations[number] = Citation{
			Number:    number,
			FilePath:  ch.FilePath,
			StartLine: ch.StartLine,
			EndLine:   ch.EndLine,
			Symbol:    ch.SymbolName,
		}
	}

	return Result{
		SystemPrompt: systemPrompt,
		UserPrompt:   b.String(),
		Citations:    citations,
	}, nil
}
