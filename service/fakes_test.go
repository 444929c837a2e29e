package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/schema"
)

// reply is a scripted response: JSON data decoded into the caller's out, or an error
type reply struct {
	data string
	err  error
}

type call struct {
	op          schema.Operation
	variables   any
	accessToken string
}

// scriptedExecutor answers each operation from its own queue of replies
type scriptedExecutor struct {
	mu      sync.Mutex
	replies map[schema.Operation][]reply
	calls   []call
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{replies: make(map[schema.Operation][]reply)}
}

func (e *scriptedExecutor) on(op schema.Operation, data string) *scriptedExecutor {
	e.replies[op] = append(e.replies[op], reply{data: data})
	return e
}

func (e *scriptedExecutor) fail(op schema.Operation, err error) *scriptedExecutor {
	e.replies[op] = append(e.replies[op], reply{err: err})
	return e
}

func (e *scriptedExecutor) Execute(ctx context.Context, op schema.Operation, variables any, accessToken string, out any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, call{op: op, variables: variables, accessToken: accessToken})
	queue := e.replies[op]
	if len(queue) == 0 {
		return core.PermanentFailure(fmt.Sprintf("unexpected call to %s", op))
	}
	r := queue[0]
	e.replies[op] = queue[1:]
	if r.err != nil {
		return r.err
	}
	return json.Unmarshal([]byte(r.data), out)
}

func (e *scriptedExecutor) ops() []schema.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := make([]schema.Operation, 0, len(e.calls))
	for _, c := range e.calls {
		ops = append(ops, c.op)
	}
	return ops
}

func (e *scriptedExecutor) lastCall(op schema.Operation) call {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.calls) - 1; i >= 0; i-- {
		if e.calls[i].op == op {
			return e.calls[i]
		}
	}
	return call{}
}

func challengeReply(challenge string) string {
	return fmt.Sprintf(`{"auth_challenge":%q}`, challenge)
}

func startSessionReply(access, refresh, walletID string) string {
	return fmt.Sprintf(`{"start_session_v2":{"access_token":%q,"refresh_token":%q,"wallet_pub_key_id":%q}}`, access, refresh, walletID)
}

func preparedReply(token string) string {
	return fmt.Sprintf(`{"prepare_wallet_session":%q}`, token)
}

func unlockReply(access, refresh string) string {
	return fmt.Sprintf(`{"start_prepared_session":{"access_token":%q,"refresh_token":%q}}`, access, refresh)
}

func refreshReply(access, refresh string) string {
	return fmt.Sprintf(`{"refresh_session":{"access_token":%q,"refresh_token":%q}}`, access, refresh)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.SessionEvent
	err    error
}

func (p *recordingPublisher) PublishSessionEvent(ctx context.Context, event ports.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []ports.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]ports.SessionEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type keys struct {
	wallet core.KeyPair
	auth   core.KeyPair
}

func newKeys(t *testing.T) keys {
	t.Helper()
	wallet, err := eth.GenerateKeyPair()
	require.NoError(t, err)
	auth, err := eth.GenerateKeyPair()
	require.NoError(t, err)
	return keys{wallet: wallet, auth: auth}
}

func newProvider(t *testing.T, exec ports.Executor, level core.AuthLevel, k keys, opts ...Option) *SessionProvider {
	t.Helper()
	p, err := NewSessionProvider(exec, Config{
		Level:         level,
		WalletKeyPair: k.wallet,
		AuthKeyPair:   k.auth,
	}, opts...)
	require.NoError(t, err)
	return p
}
