package chunk

// DefaultExtractors returns the symbol extractors wired in by default,
// covering the languages filtered files are expected to arrive in.
func DefaultExtractors() []SymbolExtractor {
	return []SymbolExtractor{
		NewGoExtractor(),
		NewPythonExtractor(),
		NewRustExtractor(),
		NewTypeScriptExtractor(),
		NewJavaScriptExtractor(),
	}
}

// NewDefault builds a Chunker with the default sliding-window options and
// the full set of registered symbol extractors.
func NewDefault() *Chunker {
	return New(DefaultOptions(), DefaultExtractors()...)
}
