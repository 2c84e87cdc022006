package extract

import "fmt"

// ParseError reports DDL text the extractor could not scan. It is a
// warning-class error: callers keep the owning object as a graph leaf
// with no outgoing edges and continue the run.
type ParseError struct {
	Message string
	Line    int
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}
