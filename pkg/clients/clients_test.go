package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heraldhq/herald/pkg/auth"
	"github.com/heraldhq/herald/pkg/errors"
)

func testBreaker(t *testing.T, cfg CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker(cfg, zap.NewNop())
}

func TestCircuitBreakerOpensOnConsecutiveFailures(t *testing.T) {
	cb := testBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          time.Minute,
	})

	// Successes first keep the window failure rate below the 50% trip
	// line so the consecutive-failure threshold is what opens it.
	for i := 0; i < 10; i++ {
		cb.RecordSuccess()
	}
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
		assert.True(t, cb.Allow(), "breaker must stay closed below the threshold")
	}

	cb.RecordFailure()
	assert.False(t, cb.Allow())
	assert.Equal(t, "open", cb.GetState().State)
}

func TestCircuitBreakerOpensOnFailureRate(t *testing.T) {
	cb := testBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 100,
		SuccessThreshold: 3,
		Timeout:          time.Minute,
	})

	// With an empty window a single failure is a 100% failure rate.
	cb.RecordFailure()
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := testBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})

	cb.RecordFailure()
	require.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)

	// First request after the timeout probes in half-open state.
	require.True(t, cb.Allow())
	assert.Equal(t, "half_open", cb.GetState().State)

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.GetState().State)
	assert.True(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := testBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, "open", cb.GetState().State)
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := testBreaker(t, DefaultCircuitBreakerConfig())

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	wantErr := errors.New(errors.ErrorTypeConnection, "boom")
	err = cb.Execute(func() error { return wantErr })
	assert.Equal(t, wantErr, err)
}

func TestCircuitBreakerExecuteBlocksWhenOpen(t *testing.T) {
	cb := testBreaker(t, DefaultCircuitBreakerConfig())

	// A failure against an empty window is a 100% failure rate.
	require.Error(t, cb.Execute(func() error {
		return errors.New(errors.ErrorTypeInternal, "boom")
	}))

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 0, calls)
}

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucketRateLimiter(10, 2)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "burst exhausted")

	// 10 tokens/sec refills one token in 100ms.
	time.Sleep(150 * time.Millisecond)
	assert.True(t, tb.Allow())

	stats := tb.GetStats()
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucketRateLimiter(100, 1)
	require.True(t, tb.Allow())

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucketRateLimiter(0.001, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketReserveAndCancel(t *testing.T) {
	tb := NewTokenBucketRateLimiter(10, 1)
	require.True(t, tb.Allow())

	res := tb.Reserve()
	require.True(t, res.OK())
	assert.Greater(t, res.Delay(), time.Duration(0))

	res.Cancel()
	assert.False(t, res.OK())
}

func TestTokenBucketSetBurstClampsTokens(t *testing.T) {
	tb := NewTokenBucketRateLimiter(10, 5)
	tb.SetBurst(1)

	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

// tokenEndpoint is a scripted OAuth2 token endpoint.
type tokenEndpoint struct {
	status   atomic.Int32
	requests atomic.Int32
	lastID   atomic.Value
	scope    atomic.Value
}

func (te *tokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		te.requests.Add(1)

		id, _, ok := r.BasicAuth()
		if !ok {
			id = r.PostFormValue("client_id")
		}
		te.lastID.Store(id)
		if scope := r.PostFormValue("scope"); scope != "" {
			te.scope.Store(scope)
		}

		status := int(te.status.Load())
		switch {
		case status >= 500:
			http.Error(w, `{"error":"temporarily_unavailable"}`, status)
		case status >= 400:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
		}
	}
}

func newExchangerTest(t *testing.T) (*OAuth2Exchanger, *tokenEndpoint, auth.TokenExchange) {
	t.Helper()

	te := &tokenEndpoint{}
	srv := httptest.NewServer(te.handler())
	t.Cleanup(srv.Close)

	ex := NewOAuth2Exchanger(WithHTTPClient(srv.Client()))
	req := auth.TokenExchange{
		TokenURL:     srv.URL + "/token",
		ClientID:     "cid-1",
		ClientSecret: "cs-1",
		Scopes:       []string{"messages.send", "messages.read"},
	}
	return ex, te, req
}

func TestOAuth2ExchangerSuccess(t *testing.T) {
	ex, te, req := newExchangerTest(t)

	token, err := ex.Exchange(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "at-123", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 30*time.Second)
	assert.Equal(t, "cid-1", te.lastID.Load())
	assert.Equal(t, "messages.send messages.read", te.scope.Load())
}

func TestOAuth2ExchangerRejectionIsPermanent(t *testing.T) {
	ex, te, req := newExchangerTest(t)
	te.status.Store(http.StatusUnauthorized)

	_, err := ex.Exchange(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.False(t, errors.IsRetryable(err))
	assert.Contains(t, err.Error(), "rejected with status 401")

	// Rejections do not open the circuit; recovery works immediately.
	te.status.Store(http.StatusOK)
	_, err = ex.Exchange(context.Background(), req)
	require.NoError(t, err)
}

func TestOAuth2ExchangerServerErrorIsRetryable(t *testing.T) {
	ex, te, req := newExchangerTest(t)
	te.status.Store(http.StatusServiceUnavailable)

	_, err := ex.Exchange(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, errors.IsRetryable(err))
}

func TestOAuth2ExchangerBreakerBlocksAfterServerErrors(t *testing.T) {
	ex, te, req := newExchangerTest(t)
	te.status.Store(http.StatusInternalServerError)

	// A failure against an otherwise empty window opens the circuit.
	_, err := ex.Exchange(context.Background(), req)
	require.Error(t, err)
	served := te.requests.Load()

	_, err = ex.Exchange(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, served, te.requests.Load(), "open breaker must not reach the endpoint")
}

func TestOAuth2ExchangerTransportFailure(t *testing.T) {
	ex := NewOAuth2Exchanger()

	_, err := ex.Exchange(context.Background(), auth.TokenExchange{
		TokenURL:     "http://127.0.0.1:1/token",
		ClientID:     "cid-1",
		ClientSecret: "cs-1",
	})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}
