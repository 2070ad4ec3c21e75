package precognition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantParser(message string) ErrorParser {
	return func(error) (ValidationErrorsData, bool) {
		return ValidationErrorsData{Message: message, Errors: ValidationErrors{}}, true
	}
}

func noMatchParser(calls *int) ErrorParser {
	return func(error) (ValidationErrorsData, bool) {
		*calls++
		return ValidationErrorsData{}, false
	}
}

// Test ParserChain resolution order
func TestParserChain_Resolve(t *testing.T) {
	boom := errors.New("boom")

	t.Run("FirstRegisteredWins", func(t *testing.T) {
		chain := NewParserChain(constantParser("first"), constantParser("second"))

		data, ok := chain.Resolve(boom)
		require.True(t, ok)
		assert.Equal(t, "first", data.Message)
	})

	t.Run("FallsThroughNoMatch", func(t *testing.T) {
		calls := 0
		chain := NewParserChain(noMatchParser(&calls), constantParser("fallback"))

		data, ok := chain.Resolve(boom)
		require.True(t, ok)
		assert.Equal(t, "fallback", data.Message)
		assert.Equal(t, 1, calls)
	})

	t.Run("NoMatch", func(t *testing.T) {
		calls := 0
		chain := NewParserChain(noMatchParser(&calls), noMatchParser(&calls))

		_, ok := chain.Resolve(boom)
		assert.False(t, ok)
		assert.Equal(t, 2, calls)
	})

	t.Run("NilErrorNeverMatches", func(t *testing.T) {
		_, ok := NewParserChain(constantParser("x")).Resolve(nil)
		assert.False(t, ok)
	})

	t.Run("EmptyChain", func(t *testing.T) {
		_, ok := NewParserChain().Resolve(boom)
		assert.False(t, ok)
	})

	t.Run("SkipsNilParsers", func(t *testing.T) {
		chain := NewParserChain(nil, constantParser("only"), nil)
		assert.Equal(t, 1, chain.Len())

		data, ok := Resolve(boom, nil, constantParser("direct"))
		require.True(t, ok)
		assert.Equal(t, "direct", data.Message)
	})
}

func TestParserChain_With(t *testing.T) {
	base := NewParserChain(constantParser("base"))
	extended := base.With(constantParser("extra"))

	assert.Equal(t, 1, base.Len(), "With must not modify the receiver")
	assert.Equal(t, 2, extended.Len())

	data, ok := extended.Resolve(errors.New("boom"))
	require.True(t, ok)
	assert.Equal(t, "base", data.Message)
}

func TestParserChain_BuiltinPriority(t *testing.T) {
	cfg := DefaultConfig()
	body := `{"message":"flat","errors":{"a":"x"},"data":{"message":"nested","errors":{"b":"y"}}}`

	t.Run("FlatFirst", func(t *testing.T) {
		data, ok := NewParserChain(FlatErrorParser(cfg), NestedErrorParser(cfg)).Resolve(precognitiveError(cfg, body))
		require.True(t, ok)
		assert.Equal(t, "flat", data.Message)
	})

	t.Run("NestedFirst", func(t *testing.T) {
		data, ok := NewParserChain(NestedErrorParser(cfg), FlatErrorParser(cfg)).Resolve(precognitiveError(cfg, body))
		require.True(t, ok)
		assert.Equal(t, "nested", data.Message)
	})
}
