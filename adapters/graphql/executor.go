// Package graphql executes schema operations against the backend GraphQL
// endpoint and classifies every failure into a *core.Error.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/schema"
)

const (
	// DefaultTimeout bounds a single round trip
	DefaultTimeout = 20 * time.Second

	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "walletauth-go/1"

	// RequestIDHeader carries a per request id for correlating backend logs
	RequestIDHeader = "X-Request-Id"
)

// Backend error codes carried in errors[0].extensions.code
const (
	CodeAuthenticationException = "authentication-exception"
	CodeInvalidJWT              = "invalid-jwt"
	CodeHTTPHeaderMissing       = "http-header-missing-exception"
	CodeInvalidInvitation       = "invalid-invitation-exception"
	CodeRemoteSchemaError       = "remote-schema-error"
)

// Request is the body posted to the endpoint
type Request struct {
	OperationName string `json:"operationName"`
	Query         string `json:"query"`
	Variables     any    `json:"variables,omitempty"`
}

// Response is the envelope returned by the endpoint
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// Error is a single GraphQL error
type Error struct {
	Message    string      `json:"message"`
	Extensions *Extensions `json:"extensions,omitempty"`
}

// Extensions holds the machine readable part of a GraphQL error
type Extensions struct {
	Code string `json:"code,omitempty"`
}

// Executor posts operations over HTTP
type Executor struct {
	url       string
	client    *http.Client
	userAgent string
	logger    zerolog.Logger
}

var _ ports.Executor = (*Executor)(nil)

// Option configures an Executor
type Option func(*Executor)

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

// WithTimeout sets the round trip timeout
func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		e.client.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(e *Executor) {
		e.userAgent = userAgent
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor for the endpoint at backendURL
func NewExecutor(backendURL string, opts ...Option) (*Executor, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, core.WrapInvalidInput(err, "invalid backend url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, core.InvalidInput(fmt.Sprintf("invalid backend url %q: expected an absolute http(s) url", backendURL))
	}

	e := &Executor{
		url:       backendURL,
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute implements ports.Executor
func (e *Executor) Execute(ctx context.Context, op schema.Operation, variables any, accessToken string, out any) error {
	body, err := json.Marshal(Request{
		OperationName: string(op),
		Query:         schema.Document(op),
		Variables:     variables,
	})
	if err != nil {
		return core.WrapPermanentFailure(err, "Failed to encode the query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return core.WrapPermanentFailure(err, "Failed to build the request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	log := e.logger.With().Str("operation", string(op)).Str("request_id", requestID).Logger()
	started := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		return core.WrapRuntimeError(err, core.CodeNetworkError, "Failed to execute the query")
	}
	defer resp.Body.Close()

	log.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(started)).Msg("response received")

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return core.RuntimeError(core.CodeRemoteServiceUnavailable,
			fmt.Sprintf("The remote server returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.WrapRuntimeError(err, core.CodeNetworkError, "Failed to read the response")
	}

	var envelope Response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return core.WrapRuntimeError(err, core.CodeNetworkError,
			fmt.Sprintf("Failed to decode the response with status %d", resp.StatusCode))
	}

	if envelope.Errors != nil {
		err := classify(envelope.Errors)
		log.Debug().Err(err).Msg("backend returned an error")
		return err
	}

	if len(envelope.Data) == 0 || bytes.Equal(envelope.Data, []byte("null")) {
		return core.PermanentFailure("Response has no data. Verify URL is a GraphQL endpoint: " + e.url)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return core.WrapPermanentFailure(err, "Unexpected backend response: data does not match "+string(op))
	}
	return nil
}

// classify maps the first GraphQL error onto the error taxonomy
func classify(errs []Error) error {
	if len(errs) == 0 {
		return core.PermanentFailure("Unexpected backend response: errors empty")
	}
	first := errs[0]
	if first.Extensions == nil {
		return core.PermanentFailure("Unexpected backend response: error without extensions")
	}

	switch code := first.Extensions.Code; code {
	case "":
		return core.PermanentFailure("Unexpected backend response: error without code")
	case CodeAuthenticationException:
		return core.RuntimeError(core.CodeAuthServiceError, "The backend threw an Authentication Exception")
	case CodeInvalidJWT:
		return core.RuntimeError(core.CodeAuthServiceError, "A request we made included an invalid JWT")
	case CodeHTTPHeaderMissing:
		return core.PermanentFailure("A request we made didn't include the necessary HTTP header")
	case CodeInvalidInvitation:
		return core.PermanentFailure("Unexpected backend response: invalid invitation when no invitations have been made")
	case CodeRemoteSchemaError:
		return core.PermanentFailure("A remote schema call has failed on the backend")
	default:
		return core.PermanentFailure("Unexpected backend response: unknown error code: " + code)
	}
}
