package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/schema"
)

type captured struct {
	mu        sync.Mutex
	header    http.Header
	operation string
}

func (c *captured) get() (http.Header, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header, c.operation
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)

		c.mu.Lock()
		c.header = r.Header.Clone()
		c.operation = req.OperationName
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestExecuteDecodesData(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{"data":{"auth_challenge":"abc"}}`)
	exec, err := NewExecutor(srv.URL)
	require.NoError(t, err)

	var data schema.RequestChallengeData
	err = exec.Execute(context.Background(), schema.OpRequestChallenge, schema.RequestChallengeVariables{}, "", &data)
	require.NoError(t, err)
	require.NotNil(t, data.AuthChallenge)
	assert.Equal(t, "abc", *data.AuthChallenge)

	header, operation := rec.get()
	assert.Equal(t, "RequestChallenge", operation)
	assert.Empty(t, header.Get("Authorization"))
	assert.Equal(t, DefaultUserAgent, header.Get("User-Agent"))
	assert.NotEmpty(t, header.Get(RequestIDHeader))
}

func TestExecuteSendsBearer(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{"data":{"prepare_wallet_session":"prepared"}}`)
	exec, err := NewExecutor(srv.URL, WithUserAgent("test-agent"))
	require.NoError(t, err)

	var data schema.PrepareWalletSessionData
	require.NoError(t, exec.Execute(context.Background(), schema.OpPrepareWalletSession, schema.PrepareWalletSessionVariables{}, "token-1", &data))
	header, _ := rec.get()
	assert.Equal(t, "Bearer token-1", header.Get("Authorization"))
	assert.Equal(t, "test-agent", header.Get("User-Agent"))
}

func TestExecuteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad gateway", http.StatusBadGateway, `<html>`, core.ErrRemoteServiceUnavailable},
		{"unavailable", http.StatusServiceUnavailable, ``, core.ErrRemoteServiceUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, ``, core.ErrRemoteServiceUnavailable},
		{"not json", http.StatusInternalServerError, `oops`, core.ErrNetwork},
		{"authentication exception", http.StatusOK, `{"errors":[{"message":"no","extensions":{"code":"authentication-exception"}}]}`, core.ErrAuthService},
		{"invalid jwt", http.StatusOK, `{"errors":[{"message":"no","extensions":{"code":"invalid-jwt"}}]}`, core.ErrAuthService},
		{"header missing", http.StatusOK, `{"errors":[{"message":"no","extensions":{"code":"http-header-missing-exception"}}]}`, core.ErrPermanentFailure},
		{"invalid invitation", http.StatusOK, `{"errors":[{"message":"no","extensions":{"code":"invalid-invitation-exception"}}]}`, core.ErrPermanentFailure},
		{"remote schema", http.StatusOK, `{"errors":[{"message":"no","extensions":{"code":"remote-schema-error"}}]}`, core.ErrPermanentFailure},
		{"unknown code", http.StatusOK, `{"errors":[{"message":"no","extensions":{"code":"teapot"}}]}`, core.ErrPermanentFailure},
		{"no extensions", http.StatusOK, `{"errors":[{"message":"no"}]}`, core.ErrPermanentFailure},
		{"no code", http.StatusOK, `{"errors":[{"message":"no","extensions":{}}]}`, core.ErrPermanentFailure},
		{"empty errors", http.StatusOK, `{"errors":[]}`, core.ErrPermanentFailure},
		{"no data", http.StatusOK, `{}`, core.ErrPermanentFailure},
		{"null data", http.StatusOK, `{"data":null}`, core.ErrPermanentFailure},
		{"shape mismatch", http.StatusOK, `{"data":{"auth_challenge":42}}`, core.ErrPermanentFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			exec, err := NewExecutor(srv.URL)
			require.NoError(t, err)

			var data schema.RequestChallengeData
			err = exec.Execute(context.Background(), schema.OpRequestChallenge, nil, "", &data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExecuteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	exec, err := NewExecutor(url)
	require.NoError(t, err)
	err = exec.Execute(context.Background(), schema.OpRequestChallenge, nil, "", nil)
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestExecuteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	exec, err := NewExecutor(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	err = exec.Execute(context.Background(), schema.OpRequestChallenge, nil, "", nil)
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestNewExecutorRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "ftp://example.com", "http://"} {
		_, err := NewExecutor(u)
		assert.ErrorIs(t, err, core.ErrInvalidInput, u)
	}
}
