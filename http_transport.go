package precognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// HTTPTransportOpts configures NewHTTPTransport.
type HTTPTransportOpts struct {
	URL    string
	Method string       // defaults to POST
	Client *http.Client // defaults to http.DefaultClient
	Config Config       // zero value means DefaultConfig
	// StrictProtocol turns precognitive answers that break the header
	// contract into a *ProtocolError.
	StrictProtocol bool
	Logger         *zerolog.Logger
}

// NewHTTPTransport builds a Transport that posts form data as JSON.
// Non-2xx answers are returned as *ResponseError.
func NewHTTPTransport(opts HTTPTransportOpts) (Transport, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("http transport: empty URL")
	}
	if opts.Method == "" {
		opts.Method = http.MethodPost
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}

	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	log := logger.With().Str("method", opts.Method).Str("path", opts.URL).Logger()

	return func(ctx context.Context, data Data, header http.Header) (*Response, error) {
		payload, err := sonic.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for name, values := range header {
			req.Header[name] = append([]string(nil), values...)
		}
		req.Header.Set(contentTypeHeader, ContentTypeApplicationJSON)
		req.Header.Set("Accept", ContentTypeApplicationJSON)

		res, err := opts.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		resp := &Response{StatusCode: res.StatusCode, Header: res.Header, Body: body}
		log.Debug().Int("status", res.StatusCode).Bool("precognitive", cfg.IsPrecognitiveRequest(req.Header)).Msg("response received")

		if opts.StrictProtocol {
			if err := cfg.AssertPrecognitiveResponse(req.Header, resp); err != nil {
				log.Warn().Err(err).Msg("precognition protocol violation")
				return nil, err
			}
		}

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, &ResponseError{Response: resp}
		}
		return resp, nil
	}, nil
}
