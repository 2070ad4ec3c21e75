package precognition

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUndeclaredKey  = errors.New("key was not declared in the initial form data")
	ErrPatchWithFiles = errors.New("merge patches cannot be applied to forms holding files")
)

// Transport performs the actual request for a form. Validation passes the
// precognitive headers; submission passes the caller's headers. A
// non-2xx answer should be reported as a *ResponseError so parsers and
// status handlers can inspect it.
type Transport func(ctx context.Context, data Data, header http.Header) (*Response, error)

// FormOpts configures a Form. The zero value uses DefaultConfig and the
// global parser and status handler registrations.
type FormOpts struct {
	Config         Config
	Header         http.Header // base headers for validation requests
	ErrorParsers   []ErrorParser
	StatusHandlers StatusHandlers[StatusHandler]
	Validation     ValidatorOpts
	Logger         *zerolog.Logger
}

// State is a point-in-time copy of a form, delivered to subscribers after
// every change.
type State struct {
	Data          Data
	Errors        map[string]string
	ValidatedKeys []string
	Processing    bool
	Validating    bool
	Err           error
}

// Form owns the values, errors and touched keys of one form instance and
// drives its validation and submission.
//
// Every method is safe for concurrent use. Field writes are allowed while a
// validation is in flight; only new validations and submissions are
// guarded.
type Form struct {
	id             uuid.UUID
	cfg            Config
	transport      Transport
	header         http.Header
	parsers        ParserChain
	statusHandlers StatusHandlers[StatusHandler]
	validator      *Validator
	log            zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	keys          []string
	initial       Data
	data          Data
	errors        map[string]string
	validatedKeys []string
	processing    bool
	validating    bool
	err           error
	validateFiles bool
	gen           uint64 // bumped when errors are wiped so in-flight results are dropped
	closed        bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewForm builds a form around init, which is deep copied and kept as the
// reset target. Its top-level keys are the only ones Data reports.
func NewForm(init Data, transport Transport, opts FormOpts) (*Form, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalParsers, globalHandlers := _gRegistry.snapshotClient()
	chain := NewParserChain(globalParsers...).With(opts.ErrorParsers...)
	if cfg.EnableFlatClientErrorParser {
		chain = chain.With(FlatErrorParser(cfg))
	}
	if cfg.EnableNestedClientErrorParser {
		chain = chain.With(NestedErrorParser(cfg))
	}
	chain = chain.With(ValidationErrorParser())

	handlers, err := globalHandlers.Merge(opts.StatusHandlers)
	if err != nil {
		return nil, fmt.Errorf("form status handlers: %w", err)
	}

	id := uuid.New()
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	keys := slices.Collect(maps.Keys(init))
	sort.Strings(keys)

	ctx, cancel := context.WithCancel(context.Background())

	f := &Form{
		id:             id,
		cfg:            cfg,
		transport:      transport,
		header:         opts.Header.Clone(),
		parsers:        chain,
		statusHandlers: handlers,
		log:            logger.With().Str("form_id", id.String()).Logger(),
		ctx:            ctx,
		cancel:         cancel,
		keys:           keys,
		initial:        cloneData(init),
		data:           cloneData(init),
		errors:         map[string]string{},
		validateFiles:  cfg.ValidateFiles,
		subs:           map[int]func(State){},
	}
	f.validator = newValidator(f, opts.Validation)

	f.log.Debug().
		Int("parsers", chain.Len()).
		Int("status_handlers", len(handlers)).
		Msg("form created")

	return f, nil
}

func (f *Form) ID() uuid.UUID { return f.id }

// Config returns the configuration the form was built with.
func (f *Form) Config() Config { return f.cfg }

// Validator exposes the form's debounced validator.
func (f *Form) Validator() *Validator { return f.validator }

///////////////////////////////////////////////////////////////////////////////
// Data
///////////////////////////////////////////////////////////////////////////////

// Data returns a deep copy of the declared top-level fields.
func (f *Form) Data() Data {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dataLocked()
}

func (f *Form) dataLocked() Data {
	out := make(Data, len(f.keys))
	for _, key := range f.keys {
		if v, ok := f.data[key]; ok {
			out[key] = deepCopy(v)
		}
	}
	return out
}

// Get reads the value at a dotted path.
func (f *Form) Get(path string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := getPath(f.data, path)
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Set writes value at a dotted path. The top-level segment must be one of
// the declared keys.
func (f *Form) Set(path string, value any) error {
	var err error
	f.mutate(func() {
		if !slices.Contains(f.keys, topLevelKey(path)) {
			err = fmt.Errorf("%w: %q", ErrUndeclaredKey, path)
			return
		}
		err = setPath(f.data, path, value)
	})
	return err
}

// SetData shallow merges patch into the current values. Keys that were not
// declared are stored but never reported by Data.
func (f *Form) SetData(patch Data) {
	f.mutate(func() {
		for key, v := range patch {
			f.data[key] = deepCopy(v)
		}
	})
}

// MergePatch applies an RFC 7386 JSON merge patch to the current values.
func (f *Form) MergePatch(patch []byte) error {
	var err error
	f.mutate(func() {
		if HasFiles(f.data) {
			err = ErrPatchWithFiles
			return
		}

		var current []byte
		current, err = sonic.Marshal(f.data)
		if err != nil {
			err = fmt.Errorf("encode form data: %w", err)
			return
		}

		var merged []byte
		merged, err = jsonpatch.MergePatch(current, patch)
		if err != nil {
			err = fmt.Errorf("apply merge patch: %w", err)
			return
		}

		next := Data{}
		if err = sonic.Unmarshal(merged, &next); err != nil {
			err = fmt.Errorf("decode patched data: %w", err)
			return
		}
		f.data = next
	})
	return err
}

// Reset restores the initial values and forgets every error and touched
// key. A pending debounced validation is dropped and any result still in
// flight is ignored.
func (f *Form) Reset() {
	f.validator.Cancel()
	f.mutate(func() {
		f.data = cloneData(f.initial)
		f.clearErrorsLocked()
	})
}

///////////////////////////////////////////////////////////////////////////////
// Errors and touched keys
///////////////////////////////////////////////////////////////////////////////

// Errors returns a copy of the field error map.
func (f *Form) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.errors)
}

// Error returns the message for key.
func (f *Form) Error(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.errors[key]
	return msg, ok
}

// FirstError returns the error of the earliest touched key that has one.
func (f *Form) FirstError() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.validatedKeys {
		if msg, ok := f.errors[key]; ok {
			return msg, true
		}
	}
	return "", false
}

// Err returns the last unrecognized error.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// SetError records an unrecognized error.
func (f *Form) SetError(err error) {
	f.mutate(func() { f.err = err })
}

// SetErrors replaces the field error map with data, keeping the first
// message of each field, and marks those fields touched.
func (f *Form) SetErrors(data ValidationErrorsData) {
	f.mutate(func() {
		f.errors = map[string]string{}
		f.mergeErrorsLocked(data.Errors)
	})
}

// ValidatedKeys returns the touched keys in the order they were touched.
func (f *Form) ValidatedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.validatedKeys)
}

// Touched reports whether all keys were touched. With no keys it reports
// whether anything was.
func (f *Form) Touched(keys ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touchedLocked(keys)
}

func (f *Form) touchedLocked(keys []string) bool {
	if len(keys) == 0 {
		return len(f.validatedKeys) > 0
	}
	for _, key := range keys {
		if !slices.Contains(f.validatedKeys, key) {
			return false
		}
	}
	return true
}

// Touch marks keys as validated. With no keys every nested path of the
// current data is touched.
func (f *Form) Touch(keys ...string) *Form {
	f.mutate(func() { f.touchLocked(keys) })
	return f
}

func (f *Form) touchLocked(keys []string) {
	if len(keys) == 0 {
		keys = AllNestedKeys(f.dataLocked())
	}
	for _, key := range keys {
		if !slices.Contains(f.validatedKeys, key) {
			f.validatedKeys = append(f.validatedKeys, key)
		}
	}
}

// Valid reports whether every listed key is touched and has no error. With
// no keys it reports whether anything was touched and no error exists.
func (f *Form) Valid(keys ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.touchedLocked(keys) {
		return false
	}
	if len(keys) == 0 {
		return len(f.errors) == 0
	}
	for _, key := range keys {
		if _, ok := f.errors[key]; ok {
			return false
		}
	}
	return true
}

// Invalid reports whether the listed keys are touched and any of them has
// an error. With no keys it reports whether anything was touched and any
// error exists.
func (f *Form) Invalid(keys ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.touchedLocked(keys) {
		return false
	}
	if len(keys) == 0 {
		return len(f.errors) > 0
	}
	for _, key := range keys {
		if _, ok := f.errors[key]; ok {
			return true
		}
	}
	return false
}

// ForgetErrors clears the errors and touched state of keys, or of every
// key when none are given, together with the unrecognized error.
func (f *Form) ForgetErrors(keys ...string) *Form {
	f.mutate(func() {
		if len(keys) == 0 {
			f.clearErrorsLocked()
			return
		}
		f.forgetLocked(keys)
		f.err = nil
	})
	return f
}

func (f *Form) forgetLocked(keys []string) {
	for _, key := range keys {
		delete(f.errors, key)
	}
	f.validatedKeys = slices.DeleteFunc(f.validatedKeys, func(key string) bool {
		return slices.Contains(keys, key)
	})
}

func (f *Form) clearErrorsLocked() {
	f.errors = map[string]string{}
	f.validatedKeys = nil
	f.err = nil
	f.gen++
}

// mergeErrorsLocked writes the first message of each entry and touches
// its key.
func (f *Form) mergeErrorsLocked(errs ValidationErrors) {
	for _, key := range errs.Keys() {
		msg, ok := errs.First(key)
		if !ok {
			continue
		}
		f.errors[key] = msg
		f.touchLocked([]string{key})
	}
}

///////////////////////////////////////////////////////////////////////////////
// Validation
///////////////////////////////////////////////////////////////////////////////

// Validate schedules a debounced validation of keys, or of the whole form
// when none are given. It does nothing while a validation is running.
//
// The default debounce fires on both edges, so a burst of calls may reach
// the backend twice. Set FormOpts.Validation.TrailingOnly (see
// ValidatorOpts.TrailingOnly) to run a burst exactly once, after the window.
func (f *Form) Validate(keys ...string) *Form {
	if f.Validating() || f.isClosed() {
		return f
	}
	f.validator.Validate(keys...)
	return f
}

// ValidateFiles makes later validations send file values instead of nil
// placeholders.
func (f *Form) ValidateFiles() *Form {
	f.mutate(func() { f.validateFiles = true })
	return f
}

// beginValidation flips the validating flag and returns the generation
// the run belongs to.
func (f *Form) beginValidation() (gen uint64, validateFiles bool, ok bool) {
	f.mutate(func() {
		if f.closed {
			return
		}
		f.validating = true
		f.err = nil
		gen, validateFiles, ok = f.gen, f.validateFiles, true
	})
	return gen, validateFiles, ok
}

func (f *Form) endValidation() {
	f.mutate(func() { f.validating = false })
}

// applyValidationSuccess clears and re-touches keys. It reports false when
// the run was superseded.
func (f *Form) applyValidationSuccess(gen uint64, keys []string) bool {
	applied := false
	f.mutate(func() {
		if gen != f.gen {
			return
		}
		applied = true
		if len(keys) == 0 {
			f.errors = map[string]string{}
			f.validatedKeys = nil
		} else {
			f.forgetLocked(keys)
		}
		f.touchLocked(keys)
	})
	return applied
}

// applyValidationErrors stores errors already filtered to keys. With keys,
// other fields keep their errors; without, the whole map is replaced.
func (f *Form) applyValidationErrors(gen uint64, keys []string, data ValidationErrorsData) bool {
	applied := false
	f.mutate(func() {
		if gen != f.gen {
			return
		}
		applied = true
		if len(keys) == 0 {
			f.errors = map[string]string{}
		} else {
			for _, key := range keys {
				delete(f.errors, key)
			}
		}
		f.mergeErrorsLocked(data.Errors)
		f.touchLocked(keys)
	})
	return applied
}

func (f *Form) applyValidationFailure(gen uint64, keys []string, err error) bool {
	applied := false
	f.mutate(func() {
		if gen != f.gen {
			return
		}
		applied = true
		f.err = err
		f.touchLocked(keys)
	})
	return applied
}

///////////////////////////////////////////////////////////////////////////////
// Flags, observation and lifecycle
///////////////////////////////////////////////////////////////////////////////

func (f *Form) Processing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processing
}

func (f *Form) Validating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validating
}

// Disabled reports whether a submission or validation is in flight.
func (f *Form) Disabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processing || f.validating
}

// Snapshot returns the current state.
func (f *Form) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Form) snapshotLocked() State {
	return State{
		Data:          f.dataLocked(),
		Errors:        maps.Clone(f.errors),
		ValidatedKeys: slices.Clone(f.validatedKeys),
		Processing:    f.processing,
		Validating:    f.validating,
		Err:           f.err,
	}
}

// Subscribe registers fn to receive a State after every change. The
// returned function removes the subscription.
func (f *Form) Subscribe(fn func(State)) (unsubscribe func()) {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn

	return func() {
		f.subMu.Lock()
		defer f.subMu.Unlock()
		delete(f.subs, id)
	}
}

// mutate runs fn under the state lock and then publishes the new state.
func (f *Form) mutate(fn func()) {
	f.mu.Lock()
	fn()
	state := f.snapshotLocked()
	f.mu.Unlock()

	f.publish(state)
}

func (f *Form) publish(state State) {
	f.subMu.Lock()
	ids := slices.Sorted(maps.Keys(f.subs))
	subs := make([]func(State), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, f.subs[id])
	}
	f.subMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// Wait blocks until every started validation has finished.
func (f *Form) Wait() {
	f.validator.Wait()
}

// Close drops pending validations, cancels in-flight requests and waits
// for them to return. Later validations are ignored and submissions fail
// with ErrFormClosed.
func (f *Form) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.validator.Cancel()
	f.cancel()
	f.validator.Wait()

	f.subMu.Lock()
	f.subs = map[int]func(State){}
	f.subMu.Unlock()
}

func (f *Form) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func topLevelKey(path string) string {
	key, _, _ := strings.Cut(path, ".")
	return key
}
