package precognition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "Precognition", cfg.PrecognitiveHeader)
	assert.Equal(t, "Precognition-Validate-Only", cfg.ValidateOnlyHeader)
	assert.Equal(t, "Precognition-Success", cfg.SuccessHeader)
	assert.Equal(t, ",", cfg.ValidatingKeysSeparator)
	assert.Equal(t, 422, cfg.ErrorStatusCode)
	assert.Equal(t, 204, cfg.SuccessStatusCode)
	assert.Equal(t, 1500*time.Millisecond, cfg.ValidationTimeout)
	assert.False(t, cfg.BackendValidation)
	assert.False(t, cfg.ValidateFiles)
	assert.False(t, cfg.EnableNestedClientErrorParser)
	assert.False(t, cfg.EnableFlatClientErrorParser)
	assert.False(t, cfg.EnableFlatServerErrorParser)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("AppliesOptions", func(t *testing.T) {
		cfg, err := NewConfig(
			WithHeaders("X-Precognitive", "X-Precognitive-Validate-Only", "X-Precognitive-Successful"),
			WithSeparator("."),
			WithStatusCodes(400, 200),
			WithValidationTimeout(time.Second),
			WithBackendValidation(true),
			WithValidateFiles(true),
			WithClientErrorParsers(true, false),
			WithServerErrorParser(true),
		)
		require.NoError(t, err)

		assert.Equal(t, "X-Precognitive", cfg.PrecognitiveHeader)
		assert.Equal(t, ".", cfg.ValidatingKeysSeparator)
		assert.Equal(t, 400, cfg.ErrorStatusCode)
		assert.Equal(t, 200, cfg.SuccessStatusCode)
		assert.Equal(t, time.Second, cfg.ValidationTimeout)
		assert.True(t, cfg.BackendValidation)
		assert.True(t, cfg.ValidateFiles)
		assert.True(t, cfg.EnableNestedClientErrorParser)
		assert.False(t, cfg.EnableFlatClientErrorParser)
		assert.True(t, cfg.EnableFlatServerErrorParser)
	})

	invalid := []struct {
		name string
		opt  ConfigOption
	}{
		{"empty_header", WithHeaders("", "B", "C")},
		{"duplicate_headers", WithHeaders("Precognition", "precognition", "C")},
		{"empty_separator", WithSeparator("")},
		{"bad_error_status", WithStatusCodes(42, 204)},
		{"bad_success_status", WithStatusCodes(422, 700)},
		{"same_status", WithStatusCodes(422, 422)},
		{"negative_timeout", WithValidationTimeout(-time.Second)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "precognition.toml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("PartialFileKeepsDefaults", func(t *testing.T) {
		path := write(t, `
validating_keys_separator = "|"
validation_timeout_ms = 250
backend_validation = true
enable_flat_client_error_parser = true
`)
		cfg, err := LoadConfigFile(path)
		require.NoError(t, err)

		assert.Equal(t, "|", cfg.ValidatingKeysSeparator)
		assert.Equal(t, 250*time.Millisecond, cfg.ValidationTimeout)
		assert.True(t, cfg.BackendValidation)
		assert.True(t, cfg.EnableFlatClientErrorParser)
		assert.Equal(t, DefaultPrecognitiveHeader, cfg.PrecognitiveHeader)
		assert.Equal(t, DefaultErrorStatusCode, cfg.ErrorStatusCode)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		_, err := LoadConfigFile(write(t, `precognitive_headr = "X"`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		_, err := LoadConfigFile(write(t, `error_status_code = 204`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("BadSyntax", func(t *testing.T) {
		_, err := LoadConfigFile(write(t, `backend_validation = `))
		assert.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("PRECOGNITION_HEADER", "X-Precognitive")
		t.Setenv("PRECOGNITION_KEYS_SEPARATOR", ";")
		t.Setenv("PRECOGNITION_ERROR_STATUS", "400")
		t.Setenv("PRECOGNITION_VALIDATION_TIMEOUT", "2s")
		t.Setenv("PRECOGNITION_BACKEND_VALIDATION", "true")
		t.Setenv("PRECOGNITION_NESTED_CLIENT_PARSER", "true")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "X-Precognitive", cfg.PrecognitiveHeader)
		assert.Equal(t, ";", cfg.ValidatingKeysSeparator)
		assert.Equal(t, 400, cfg.ErrorStatusCode)
		assert.Equal(t, 2*time.Second, cfg.ValidationTimeout)
		assert.True(t, cfg.BackendValidation)
		assert.True(t, cfg.EnableNestedClientErrorParser)
		assert.Equal(t, DefaultSuccessHeader, cfg.SuccessHeader)
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Setenv("PRECOGNITION_SUCCESS_STATUS", "422")

		_, err := LoadConfigFromEnv()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
