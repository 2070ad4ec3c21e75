package precognition

import (
	"context"
	"sync/atomic"
)

///////////////////////////////////////////////////////////////////////////////
// Validator Impl.
///////////////////////////////////////////////////////////////////////////////

// ValidatorOpts holds the validation hooks of a form. Every hook is
// optional.
type ValidatorOpts struct {
	// OnBeforeValidation may return false to skip the run silently.
	OnBeforeValidation func(data Data) bool
	OnValidationStart  func(data Data)
	// ClientValidation runs before the backend is called. An error is
	// handled exactly like a backend failure and the backend is skipped.
	ClientValidation    func(ctx context.Context, data Data) error
	OnValidationSuccess func(data Data)
	OnValidationError   func(err error, data Data, keys []string)

	// TrailingOnly drops the leading edge so a burst of calls runs once,
	// with the last keys, after the window elapses.
	TrailingOnly bool
	Clock        Clock
}

// Validator runs the debounced validation cycle of a Form. At most one run
// is in progress at a time; further runs queue behind it.
type Validator struct {
	form      *Form
	opts      ValidatorOpts
	debouncer *Debouncer[[]string]
	slot      chan struct{}
	seq       atomic.Uint64
}

func newValidator(form *Form, opts ValidatorOpts) *Validator {
	v := &Validator{
		form: form,
		opts: opts,
		slot: make(chan struct{}, 1),
	}
	v.debouncer = NewDebouncer(v.run, DebounceOpts{
		Wait:     form.cfg.ValidationTimeout,
		Leading:  !opts.TrailingOnly,
		Trailing: true,
		Clock:    opts.Clock,
	})
	return v
}

// Validate schedules a run for keys.
func (v *Validator) Validate(keys ...string) {
	v.debouncer.Call(append([]string(nil), keys...))
}

// Pending reports whether a trailing run is scheduled.
func (v *Validator) Pending() bool { return v.debouncer.Pending() }

// Cancel drops the scheduled trailing run.
func (v *Validator) Cancel() { v.debouncer.Cancel() }

// Flush starts the scheduled trailing run now.
func (v *Validator) Flush() { v.debouncer.Flush() }

// Wait blocks until every started run has finished.
func (v *Validator) Wait() { v.debouncer.Wait() }

func (v *Validator) run(keys []string) {
	v.slot <- struct{}{}
	defer func() { <-v.slot }()

	f := v.form
	seq := v.seq.Add(1)
	log := f.log.With().Uint64("seq", seq).Strs("keys", keys).Logger()

	data := f.Data()
	if hook := v.opts.OnBeforeValidation; hook != nil && !hook(data) {
		log.Debug().Msg("validation skipped by OnBeforeValidation")
		return
	}

	gen, validateFiles, ok := f.beginValidation()
	if !ok {
		return
	}
	defer f.endValidation()

	log.Debug().Msg("validation started")
	if hook := v.opts.OnValidationStart; hook != nil {
		hook(data)
	}

	err := v.check(f.ctx, data, keys, validateFiles)
	if err == nil {
		if !f.applyValidationSuccess(gen, keys) {
			log.Debug().Msg("discarding stale validation result")
		}
		if hook := v.opts.OnValidationSuccess; hook != nil {
			hook(data)
		}
		log.Debug().Msg("validation passed")
		return
	}

	if handler, status, ok := f.statusHandlers.Lookup(err); ok {
		log.Debug().Int("status", status).Msg("status handler took over validation error")
		handler(err, f)
		return
	}

	var applied bool
	if resolved, ok := f.parsers.Resolve(err); ok {
		applied = f.applyValidationErrors(gen, keys, resolved.Filter(keys...))
		log.Debug().Int("errors", len(resolved.Errors)).Msg("validation failed")
	} else {
		applied = f.applyValidationFailure(gen, keys, err)
		log.Warn().Err(err).Msg("unrecognized validation error")
	}
	if !applied {
		log.Debug().Msg("discarding stale validation result")
	}

	if hook := v.opts.OnValidationError; hook != nil {
		hook(err, data, keys)
	}
}

// check runs client validation and then, when enabled, the backend
// round-trip.
func (v *Validator) check(ctx context.Context, data Data, keys []string, validateFiles bool) error {
	if client := v.opts.ClientValidation; client != nil {
		if err := client(ctx, data); err != nil {
			return err
		}
	}

	f := v.form
	if !f.cfg.BackendValidation {
		return nil
	}

	payload := data
	if !validateFiles {
		payload = WithoutFiles(data)
	}

	_, err := f.transport(ctx, payload, f.cfg.RequestHeaders(f.header, keys...))
	return err
}
