package precognition

import (
	"slices"
)

// ParserChain is an ordered, immutable list of ErrorParsers. Evaluation
// follows registration order and the first parser that recognises an error
// wins.
type ParserChain struct {
	parsers []ErrorParser
}

// NewParserChain builds a chain from parsers, skipping nil entries.
func NewParserChain(parsers ...ErrorParser) ParserChain {
	chain := ParserChain{parsers: make([]ErrorParser, 0, len(parsers))}
	for _, parser := range parsers {
		if parser != nil {
			chain.parsers = append(chain.parsers, parser)
		}
	}
	return chain
}

// With returns a new chain with parsers appended after the existing ones.
// The receiver is left untouched.
func (pc ParserChain) With(parsers ...ErrorParser) ParserChain {
	return NewParserChain(append(slices.Clone(pc.parsers), parsers...)...)
}

// Len returns the number of parsers in the chain.
func (pc ParserChain) Len() int {
	return len(pc.parsers)
}

// Resolve returns the result of the first parser that recognises err.
// A false result means the caller must surface err unchanged.
func (pc ParserChain) Resolve(err error) (ValidationErrorsData, bool) {
	return Resolve(err, pc.parsers...)
}

// Resolve runs parsers in order and returns the first match.
func Resolve(err error, parsers ...ErrorParser) (ValidationErrorsData, bool) {
	if err == nil {
		return ValidationErrorsData{}, false
	}

	for _, parser := range parsers {
		if parser == nil {
			continue
		}
		if data, ok := parser(err); ok {
			return data, true
		}
	}

	return ValidationErrorsData{}, false
}
