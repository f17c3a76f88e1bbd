package types

// ParseResult represents the output of parsing one source file
type ParseResult struct {
	FilePath string
	Language Language

	// Extracted data
	Units           []SemanticUnit
	CallSites       []CallSite
	Implementations []InterfaceImplementation
	Imports         []DependencyEdge

	// Errors encountered during parsing. A non-empty list marks the file
	// as skipped by the indexer; it never aborts a batch.
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Message: msg,
	})
}
