package precognition

import (
	"context"
	"net/http"
)

// SubmitOpts carries the per-call hooks of Form.Submit.
type SubmitOpts struct {
	Header http.Header
	// OnBefore may return false to cancel; Submit then returns
	// ErrSubmissionCanceled.
	OnBefore  func(data Data) bool
	OnStart   func(data Data)
	OnSuccess func(resp *Response, data Data)
	OnError   func(err error, data Data)
}

// Submit sends the form data through the transport. It fails with
// ErrFormDisabled while a submission or validation is in flight.
//
// On failure a status handler registered for the response status takes
// over entirely. Otherwise recognised validation errors replace the form
// errors, anything else is stored as the form error, and OnError runs. The
// transport error is returned in every failure case.
func (f *Form) Submit(ctx context.Context, opts SubmitOpts) (*Response, error) {
	if f.isClosed() {
		return nil, ErrFormClosed
	}
	if f.Disabled() {
		return nil, ErrFormDisabled
	}

	data := f.Data()
	if opts.OnBefore != nil && !opts.OnBefore(data) {
		return nil, ErrSubmissionCanceled
	}

	if !f.beginSubmit() {
		return nil, ErrFormDisabled
	}
	defer f.mutate(func() { f.processing = false })

	log := f.log.With().Str("op", "submit").Logger()

	if opts.OnStart != nil {
		opts.OnStart(data)
	}

	header := f.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	for name, values := range opts.Header {
		header[name] = append([]string(nil), values...)
	}

	resp, err := f.transport(ctx, data, header)
	if err == nil {
		log.Debug().Msg("submission succeeded")
		if opts.OnSuccess != nil {
			opts.OnSuccess(resp, data)
		}
		return resp, nil
	}

	if handler, status, ok := f.statusHandlers.Lookup(err); ok {
		log.Debug().Int("status", status).Msg("status handler took over submission error")
		handler(err, f)
		return nil, err
	}

	if resolved, ok := f.parsers.Resolve(err); ok {
		f.SetErrors(resolved)
		log.Debug().Int("errors", len(resolved.Errors)).Msg("submission rejected")
	} else {
		f.SetError(err)
		log.Warn().Err(err).Msg("submission failed")
	}

	if opts.OnError != nil {
		opts.OnError(err, data)
	}
	return nil, err
}

func (f *Form) beginSubmit() bool {
	ok := false
	f.mutate(func() {
		if f.processing || f.validating || f.closed {
			return
		}
		f.processing = true
		ok = true
	})
	return ok
}
