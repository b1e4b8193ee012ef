package chunk

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// nodeKindSet is the set of top-level node types a language extractor treats
// as a chunkable symbol, grounded on the node-type vocabulary walked by the
// reference AST parser for each language.
type nodeKindSet map[string]bool

// TreeSitterExtractor finds top-level function/method/type/class symbols
// using tree-sitter grammars, generalizing the reference parser's fact-walk
// to also capture each symbol's line range via StartPoint/EndPoint so the
// chunker can slice the original source instead of re-rendering the node.
type TreeSitterExtractor struct {
	language string
	lang     *sitter.Language
	kinds    nodeKindSet
}

// NewGoExtractor recognizes Go top-level funcs, methods, and type
// declarations (struct/interface).
func NewGoExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{
		language: "go",
		lang:     golang.GetLanguage(),
		kinds: nodeKindSet{
			"function_declaration": true,
			"method_declaration":   true,
			"type_declaration":     true,
		},
	}
}

// NewPythonExtractor recognizes top-level classes and functions.
func NewPythonExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{
		language: "python",
		lang:     python.GetLanguage(),
		kinds: nodeKindSet{
			"class_definition":    true,
			"function_definition": true,
		},
	}
}

// NewRustExtractor recognizes top-level functions, structs, and enums.
func NewRustExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{
		language: "rust",
		lang:     rust.GetLanguage(),
		kinds: nodeKindSet{
			"function_item": true,
			"struct_item":   true,
			"enum_item":     true,
		},
	}
}

// NewJavaScriptExtractor recognizes top-level classes and functions,
// unwrapping export_statement wrappers.
func NewJavaScriptExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{
		language: "javascript",
		lang:     javascript.GetLanguage(),
		kinds: nodeKindSet{
			"class_declaration":    true,
			"function_declaration": true,
		},
	}
}

// NewTypeScriptExtractor recognizes top-level classes, functions, and
// interfaces.
func NewTypeScriptExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{
		language: "typescript",
		lang:     typescript.GetLanguage(),
		kinds: nodeKindSet{
			"class_declaration":      true,
			"function_declaration":   true,
			"interface_declaration": true,
		},
	}
}

// Supports reports whether this extractor handles the given language tag,
// as produced by internal/filter.Language. Comparison is case-insensitive
// since filter.Language returns display-cased names ("Go", "TypeScript")
// while extractors key off lowercase tags.
func (e *TreeSitterExtractor) Supports(language string) bool {
	return strings.EqualFold(language, e.language)
}

// Extract parses content and returns one Symbol per direct child of the
// root node (or of an export_statement wrapping one, for JS/TS) whose node
// type is in this extractor's kind set.
func (e *TreeSitterExtractor) Extract(content []byte) ([]Symbol, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	root := tree.RootNode()

	var symbols []Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		target := child
		if target.Type() == "export_statement" && target.NamedChildCount() > 0 {
			target = target.NamedChild(0)
		}
		if !e.kinds[target.Type()] {
			continue
		}
		name := symbolName(target, content)
		if name == "" {
			continue
		}
		symbols = append(symbols, Symbol{
			Name:      name,
			StartLine: int(child.StartPoint().Row) + 1,
			EndLine:   int(child.EndPoint().Row) + 1,
		})
	}
	return symbols, nil
}

func symbolName(node *sitter.Node, content []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(content)
	}
	// Rust visibility-wrapped items and JS lexical declarations holding an
	// arrow function don't expose a direct "name" field on the item node
	// itself in every grammar version; fall back to the first identifier
	// child.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == "type_spec" {
			if n := c.ChildByFieldName("name"); n != nil {
				return n.Content(content)
			}
		}
		if c.Type() == "identifier" || c.Type() == "type_identifier" || c.Type() == "field_identifier" {
			return c.Content(content)
		}
	}
	return ""
}
