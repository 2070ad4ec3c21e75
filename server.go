package precognition

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

///////////////////////////////////////////////////////////////////////////////
// Event handlers
///////////////////////////////////////////////////////////////////////////////

// RequestValidator is the validation phase of an EventHandler. Returning an
// error stops the request before the business handler runs.
type RequestValidator func(r *http.Request) error

// EventHandler splits a route into a validation phase and a business phase.
// Used on its own it runs both phases in order and renders validation
// errors with RenderError.
type EventHandler struct {
	OnRequest []RequestValidator
	Handler   http.Handler
}

func (eh EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eh.serve(w, withRequestData(r), RenderError)
}

func (eh EventHandler) serve(w http.ResponseWriter, r *http.Request, render func(http.ResponseWriter, error)) {
	for _, validate := range eh.OnRequest {
		if err := validate(r); err != nil {
			render(w, err)
			return
		}
	}
	if eh.Handler != nil {
		eh.Handler.ServeHTTP(w, r)
	}
}

///////////////////////////////////////////////////////////////////////////////
// Server
///////////////////////////////////////////////////////////////////////////////

// ServerOpts configures a Server. Its parsers and status handlers apply to
// every handler the server wraps.
type ServerOpts struct {
	Config         Config
	ErrorParsers   []ErrorParser
	StatusHandlers StatusHandlers[ServerStatusHandler]
	Logger         *zerolog.Logger
}

// HandlerOpts adds parsers after the server's and overrides its status
// handlers for a single route.
type HandlerOpts struct {
	ErrorParsers   []ErrorParser
	StatusHandlers StatusHandlers[ServerStatusHandler]
}

// Server wraps EventHandlers so that precognitive requests only run the
// validation phase.
type Server struct {
	cfg            Config
	parsers        ParserChain
	statusHandlers StatusHandlers[ServerStatusHandler]
	log            zerolog.Logger
}

// NewServer snapshots the global server registrations and combines them
// with opts.
func NewServer(opts ServerOpts) (*Server, error) {
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalParsers, globalHandlers := _gRegistry.snapshotServer()

	chain := NewParserChain()
	if cfg.EnableFlatServerErrorParser {
		chain = chain.With(FlatErrorParser(cfg))
	}
	chain = chain.With(globalParsers...).With(opts.ErrorParsers...)

	handlers, err := globalHandlers.Merge(opts.StatusHandlers)
	if err != nil {
		return nil, fmt.Errorf("server status handlers: %w", err)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Server{
		cfg:            cfg,
		parsers:        chain,
		statusHandlers: handlers,
		log:            logger,
	}, nil
}

// Config returns the configuration the server was built with.
func (s *Server) Config() Config { return s.cfg }

// Handler wraps eh. Requests without the precognitive flag see eh unchanged.
// Precognitive requests run the validators only and receive either a
// filtered validation error or an empty success response.
func (s *Server) Handler(eh EventHandler, opts ...HandlerOpts) (http.Handler, error) {
	chain := s.parsers
	handlers := s.statusHandlers.Clone()

	for _, opt := range opts {
		chain = chain.With(opt.ErrorParsers...)

		merged, err := handlers.Merge(opt.StatusHandlers)
		if err != nil {
			return nil, fmt.Errorf("handler status handlers: %w", err)
		}
		handlers = merged
	}

	return &precognitiveHandler{
		cfg:            s.cfg,
		inner:          eh,
		parsers:        chain.With(ValidationErrorParser()),
		statusHandlers: handlers,
		log:            s.log,
	}, nil
}

// Middleware records whether a request is precognitive, and which keys it
// asks for, in the request context.
func (s *Server) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, annotate(s.cfg, r))
	})
}

func annotate(cfg Config, r *http.Request) *http.Request {
	if _, ok := r.Context().Value(precognitionInfoKey{}).(precognitionInfo); ok {
		return r
	}
	info := precognitionInfo{
		precognitive: cfg.IsPrecognitiveRequest(r.Header),
		keys:         cfg.ValidateOnlyKeys(r.Header),
	}
	return r.WithContext(context.WithValue(r.Context(), precognitionInfoKey{}, info))
}

type precognitionInfoKey struct{}

type precognitionInfo struct {
	precognitive bool
	keys         []string
}

// IsPrecognitive reports whether the request behind ctx was flagged as
// precognitive. It needs Server.Middleware or a Server handler upstream.
func IsPrecognitive(ctx context.Context) bool {
	info, _ := ctx.Value(precognitionInfoKey{}).(precognitionInfo)
	return info.precognitive
}

// ValidateOnlyFromContext returns the keys a precognitive request asked
// for. Nil means every field.
func ValidateOnlyFromContext(ctx context.Context) []string {
	info, _ := ctx.Value(precognitionInfoKey{}).(precognitionInfo)
	return append([]string(nil), info.keys...)
}

///////////////////////////////////////////////////////////////////////////////
// Precognitive handler
///////////////////////////////////////////////////////////////////////////////

type precognitiveHandler struct {
	cfg            Config
	inner          EventHandler
	parsers        ParserChain
	statusHandlers StatusHandlers[ServerStatusHandler]
	log            zerolog.Logger
}

func (h *precognitiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = withRequestData(annotate(h.cfg, r))

	if !h.cfg.IsPrecognitiveRequest(r.Header) {
		h.inner.serve(w, r, h.render)
		return
	}

	keys := h.cfg.ValidateOnlyKeys(r.Header)
	log := h.log.With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Strs("keys", keys).
		Logger()

	for _, validate := range h.inner.OnRequest {
		err := validate(r)
		if err == nil {
			continue
		}

		if handler, status, ok := h.statusHandlers.Lookup(err); ok {
			log.Debug().Int("status", status).Msg("status handler took over precognitive request")
			handler(w, r, err)
			return
		}

		resolved, ok := h.parsers.Resolve(err)
		if !ok {
			log.Warn().Err(err).Msg("unrecognized error in precognitive request")
			w.Header().Set(h.cfg.PrecognitiveHeader, HeaderValueTrue)
			h.render(w, err)
			return
		}

		filtered := resolved.Filter(keys...)
		if len(filtered.Errors) == 0 {
			continue
		}

		log.Debug().Int("status", h.cfg.ErrorStatusCode).Int("errors", len(filtered.Errors)).Msg("precognitive validation failed")
		h.writeValidationError(w, r, filtered)
		return
	}

	log.Debug().Int("status", h.cfg.SuccessStatusCode).Msg("precognitive validation passed, handler skipped")
	h.writeProtocolHeaders(w, r, true)
	w.WriteHeader(h.cfg.SuccessStatusCode)
}

func (h *precognitiveHandler) writeProtocolHeaders(w http.ResponseWriter, r *http.Request, success bool) {
	header := w.Header()
	header.Set(h.cfg.PrecognitiveHeader, HeaderValueTrue)
	if success {
		header.Set(h.cfg.SuccessHeader, HeaderValueTrue)
	} else {
		header.Set(h.cfg.SuccessHeader, HeaderValueFalse)
	}
	if only := r.Header.Get(h.cfg.ValidateOnlyHeader); only != "" {
		header.Set(h.cfg.ValidateOnlyHeader, only)
	}
}

func (h *precognitiveHandler) writeValidationError(w http.ResponseWriter, r *http.Request, data ValidationErrorsData) {
	h.writeProtocolHeaders(w, r, false)
	writeJSON(w, h.cfg.ErrorStatusCode, data)
}

func (h *precognitiveHandler) render(w http.ResponseWriter, err error) {
	renderError(w, err, h.cfg, h.parsers)
}

///////////////////////////////////////////////////////////////////////////////
// Rendering
///////////////////////////////////////////////////////////////////////////////

// RenderError writes err as a JSON response. Validation errors become 422
// with the canonical payload; errors carrying a status use it; anything
// else is a 500.
func RenderError(w http.ResponseWriter, err error) {
	renderError(w, err, DefaultConfig(), NewParserChain(ValidationErrorParser()))
}

func renderError(w http.ResponseWriter, err error, cfg Config, chain ParserChain) {
	if data, ok := chain.Resolve(err); ok {
		writeJSON(w, cfg.ErrorStatusCode, data)
		return
	}

	status := http.StatusInternalServerError
	if code, ok := StatusOf(err); ok && validStatusCode(code) && code >= 400 {
		status = code
	}

	message := http.StatusText(status)
	if status < 500 {
		message = err.Error()
	}
	writeJSON(w, status, map[string]string{messageField: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set(contentTypeHeader, ContentTypeApplicationJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
