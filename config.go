package precognition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

var (
	ErrInvalidConfig = errors.New("invalid precognition config")
)

// Config is the immutable set of options shared by both halves of the
// protocol. It is passed by value; build one with NewConfig, DefaultConfig,
// LoadConfigFile or LoadConfigFromEnv.
type Config struct {
	PrecognitiveHeader      string        // request & response flag header
	ValidateOnlyHeader      string        // request & response key list header
	SuccessHeader           string        // response success flag header
	ValidatingKeysSeparator string        // separator for validate-only keys
	ErrorStatusCode         int           // validation failure status
	SuccessStatusCode       int           // validation success status
	ValidationTimeout       time.Duration // debounce window

	BackendValidation bool // call the transport when validating
	ValidateFiles     bool // send file values instead of null placeholders

	EnableNestedClientErrorParser bool // {"data": {"message", "errors"}} payloads
	EnableFlatClientErrorParser   bool // {"message", "errors"} payloads
	EnableFlatServerErrorParser   bool // flat payloads raised inside request validators
}

// ConfigOption mutates a Config under construction.
type ConfigOption func(*Config)

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		PrecognitiveHeader:      DefaultPrecognitiveHeader,
		ValidateOnlyHeader:      DefaultValidateOnlyHeader,
		SuccessHeader:           DefaultSuccessHeader,
		ValidatingKeysSeparator: DefaultValidatingKeysSeparator,
		ErrorStatusCode:         DefaultErrorStatusCode,
		SuccessStatusCode:       DefaultSuccessStatusCode,
		ValidationTimeout:       DefaultValidationTimeout,
	}
}

// NewConfig applies opts over DefaultConfig and validates the result.
func NewConfig(opts ...ConfigOption) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func WithHeaders(precognitive, validateOnly, success string) ConfigOption {
	return func(c *Config) {
		c.PrecognitiveHeader = precognitive
		c.ValidateOnlyHeader = validateOnly
		c.SuccessHeader = success
	}
}

func WithSeparator(sep string) ConfigOption {
	return func(c *Config) { c.ValidatingKeysSeparator = sep }
}

func WithStatusCodes(errorStatus, successStatus int) ConfigOption {
	return func(c *Config) {
		c.ErrorStatusCode = errorStatus
		c.SuccessStatusCode = successStatus
	}
}

func WithValidationTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ValidationTimeout = d }
}

func WithBackendValidation(enabled bool) ConfigOption {
	return func(c *Config) { c.BackendValidation = enabled }
}

func WithValidateFiles(enabled bool) ConfigOption {
	return func(c *Config) { c.ValidateFiles = enabled }
}

// WithClientErrorParsers toggles the built-in client parsers.
func WithClientErrorParsers(nested, flat bool) ConfigOption {
	return func(c *Config) {
		c.EnableNestedClientErrorParser = nested
		c.EnableFlatClientErrorParser = flat
	}
}

func WithServerErrorParser(flat bool) ConfigOption {
	return func(c *Config) { c.EnableFlatServerErrorParser = flat }
}

// Validate reports the first problem found in c.
func (c Config) Validate() error {
	headers := []struct{ name, value string }{
		{"precognitive header", c.PrecognitiveHeader},
		{"validate-only header", c.ValidateOnlyHeader},
		{"success header", c.SuccessHeader},
	}

	seen := make(map[string]string, len(headers))
	for _, h := range headers {
		if strings.TrimSpace(h.value) == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, h.name)
		}
		canonical := strings.ToLower(h.value)
		if other, dup := seen[canonical]; dup {
			return fmt.Errorf("%w: %s and %s share the name %q", ErrInvalidConfig, other, h.name, h.value)
		}
		seen[canonical] = h.name
	}

	if c.ValidatingKeysSeparator == "" {
		return fmt.Errorf("%w: validating keys separator is empty", ErrInvalidConfig)
	}

	if !validStatusCode(c.ErrorStatusCode) {
		return fmt.Errorf("%w: error status code %d is not a valid HTTP status", ErrInvalidConfig, c.ErrorStatusCode)
	}
	if !validStatusCode(c.SuccessStatusCode) {
		return fmt.Errorf("%w: success status code %d is not a valid HTTP status", ErrInvalidConfig, c.SuccessStatusCode)
	}
	if c.ErrorStatusCode == c.SuccessStatusCode {
		return fmt.Errorf("%w: error and success status codes are both %d", ErrInvalidConfig, c.ErrorStatusCode)
	}

	if c.ValidationTimeout < 0 {
		return fmt.Errorf("%w: negative validation timeout %s", ErrInvalidConfig, c.ValidationTimeout)
	}

	return nil
}

func validStatusCode(code int) bool {
	return code >= 100 && code <= 599
}

///////////////////////////////////////////////////////////////////////////////
// Loading
///////////////////////////////////////////////////////////////////////////////

// fileConfig is the on-disk shape of Config. Pointers tell
// "unset" apart from zero values so defaults survive partial files.
type fileConfig struct {
	PrecognitiveHeader      *string `toml:"precognitive_header"`
	ValidateOnlyHeader      *string `toml:"validate_only_header"`
	SuccessHeader           *string `toml:"success_header"`
	ValidatingKeysSeparator *string `toml:"validating_keys_separator"`
	ErrorStatusCode         *int    `toml:"error_status_code"`
	SuccessStatusCode       *int    `toml:"success_status_code"`
	ValidationTimeoutMS     *int    `toml:"validation_timeout_ms"`

	BackendValidation             *bool `toml:"backend_validation"`
	ValidateFiles                 *bool `toml:"validate_files"`
	EnableNestedClientErrorParser *bool `toml:"enable_nested_client_error_parser"`
	EnableFlatClientErrorParser   *bool `toml:"enable_flat_client_error_parser"`
	EnableFlatServerErrorParser   *bool `toml:"enable_flat_server_error_parser"`
}

func (fc fileConfig) apply(cfg *Config) {
	setIf(&cfg.PrecognitiveHeader, fc.PrecognitiveHeader)
	setIf(&cfg.ValidateOnlyHeader, fc.ValidateOnlyHeader)
	setIf(&cfg.SuccessHeader, fc.SuccessHeader)
	setIf(&cfg.ValidatingKeysSeparator, fc.ValidatingKeysSeparator)
	setIf(&cfg.ErrorStatusCode, fc.ErrorStatusCode)
	setIf(&cfg.SuccessStatusCode, fc.SuccessStatusCode)
	if fc.ValidationTimeoutMS != nil {
		cfg.ValidationTimeout = time.Duration(*fc.ValidationTimeoutMS) * time.Millisecond
	}
	setIf(&cfg.BackendValidation, fc.BackendValidation)
	setIf(&cfg.ValidateFiles, fc.ValidateFiles)
	setIf(&cfg.EnableNestedClientErrorParser, fc.EnableNestedClientErrorParser)
	setIf(&cfg.EnableFlatClientErrorParser, fc.EnableFlatClientErrorParser)
	setIf(&cfg.EnableFlatServerErrorParser, fc.EnableFlatServerErrorParser)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// LoadConfigFile reads a TOML file, overlays it on the defaults and
// validates the result. Unknown keys are rejected.
func LoadConfigFile(path string) (Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}

	cfg := DefaultConfig()
	fc.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envConfig carries the PRECOGNITION_* variables. Defaults live in the tags.
type envConfig struct {
	PrecognitiveHeader      string        `env:"PRECOGNITION_HEADER,default=Precognition"`
	ValidateOnlyHeader      string        `env:"PRECOGNITION_VALIDATE_ONLY_HEADER,default=Precognition-Validate-Only"`
	SuccessHeader           string        `env:"PRECOGNITION_SUCCESS_HEADER,default=Precognition-Success"`
	ValidatingKeysSeparator string        `env:"PRECOGNITION_KEYS_SEPARATOR"`
	ErrorStatusCode         int           `env:"PRECOGNITION_ERROR_STATUS,default=422"`
	SuccessStatusCode       int           `env:"PRECOGNITION_SUCCESS_STATUS,default=204"`
	ValidationTimeout       time.Duration `env:"PRECOGNITION_VALIDATION_TIMEOUT,default=1500ms"`

	BackendValidation             bool `env:"PRECOGNITION_BACKEND_VALIDATION,default=false"`
	ValidateFiles                 bool `env:"PRECOGNITION_VALIDATE_FILES,default=false"`
	EnableNestedClientErrorParser bool `env:"PRECOGNITION_NESTED_CLIENT_PARSER,default=false"`
	EnableFlatClientErrorParser   bool `env:"PRECOGNITION_FLAT_CLIENT_PARSER,default=false"`
	EnableFlatServerErrorParser   bool `env:"PRECOGNITION_FLAT_SERVER_PARSER,default=false"`
}

// LoadConfigFromEnv builds a Config from PRECOGNITION_* environment
// variables. The separator has no tag default because envdecode splits tag
// options on commas; an unset separator falls back to the comma here.
func LoadConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := envdecode.Decode(&ec); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config env decode failed: %w", err)
	}

	separator := ec.ValidatingKeysSeparator
	if separator == "" {
		separator = DefaultValidatingKeysSeparator
	}

	cfg := Config{
		PrecognitiveHeader:            ec.PrecognitiveHeader,
		ValidateOnlyHeader:            ec.ValidateOnlyHeader,
		SuccessHeader:                 ec.SuccessHeader,
		ValidatingKeysSeparator:       separator,
		ErrorStatusCode:               ec.ErrorStatusCode,
		SuccessStatusCode:             ec.SuccessStatusCode,
		ValidationTimeout:             ec.ValidationTimeout,
		BackendValidation:             ec.BackendValidation,
		ValidateFiles:                 ec.ValidateFiles,
		EnableNestedClientErrorParser: ec.EnableNestedClientErrorParser,
		EnableFlatClientErrorParser:   ec.EnableFlatClientErrorParser,
		EnableFlatServerErrorParser:   ec.EnableFlatServerErrorParser,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
