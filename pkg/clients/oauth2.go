package clients

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/heraldhq/herald/pkg/auth"
	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/logger"
)

// OAuth2Exchanger trades client credentials for access tokens with the
// standard client_credentials grant. Transport failures and 5xx
// responses come back retryable; 4xx rejections are permanent. A
// circuit breaker guards the token endpoint so an unhealthy
// authorization server is not hammered.
type OAuth2Exchanger struct {
	httpClient *http.Client
	breaker    *CircuitBreaker
	logger     *zap.Logger
}

// ExchangerOption configures an OAuth2Exchanger
type ExchangerOption func(*OAuth2Exchanger)

// WithHTTPClient replaces the HTTP client used for token requests
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		e.httpClient = client
	}
}

// WithExchangerBreaker replaces the default token endpoint circuit breaker
func WithExchangerBreaker(breaker *CircuitBreaker) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		e.breaker = breaker
	}
}

// NewOAuth2Exchanger creates an exchanger with a pooled HTTP client and
// a default circuit breaker.
func NewOAuth2Exchanger(opts ...ExchangerOption) *OAuth2Exchanger {
	e := &OAuth2Exchanger{
		httpClient: defaultHTTPClient(),
		logger:     logger.Get().With(zap.String("component", "oauth2_exchanger")),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.breaker == nil {
		e.breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig(), e.logger)
	}

	return e
}

// Exchange implements auth.TokenExchanger
func (e *OAuth2Exchanger) Exchange(ctx context.Context, req auth.TokenExchange) (*auth.ExchangedToken, error) {
	if !e.breaker.Allow() {
		return nil, errors.New(errors.ErrorTypeConnection, "token endpoint circuit breaker is open")
	}

	cfg := clientcredentials.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		TokenURL:     req.TokenURL,
		Scopes:       req.Scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	token, err := cfg.Token(ctx)
	if err != nil {
		classified := e.classify(err, req.TokenURL)
		// A 4xx means the endpoint is alive; only transport failures
		// and 5xx count against the circuit.
		if errors.IsRetryable(classified) {
			e.breaker.RecordFailure()
		} else {
			e.breaker.RecordSuccess()
		}
		return nil, classified
	}
	e.breaker.RecordSuccess()

	e.logger.Debug("token acquired",
		zap.String("token_url", req.TokenURL),
		zap.String("token_type", token.TokenType),
		zap.Time("expires_at", token.Expiry))

	return &auth.ExchangedToken{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.Expiry,
	}, nil
}

// classify maps a token endpoint failure onto the retryable/permanent
// split required by auth.TokenExchanger.
func (e *OAuth2Exchanger) classify(err error, tokenURL string) error {
	var rerr *oauth2.RetrieveError
	if stderrors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}

		if status >= 400 && status < 500 {
			e.logger.Warn("token request rejected",
				zap.Int("status", status),
				zap.String("error_code", rerr.ErrorCode),
				zap.String("token_url", tokenURL))
			return errors.Wrap(err, errors.ErrorTypeAuthentication,
				fmt.Sprintf("token request rejected with status %d", status))
		}

		e.logger.Warn("token endpoint failed",
			zap.Int("status", status),
			zap.String("token_url", tokenURL))
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("token endpoint failed with status %d", status))
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "token request timed out")
	}

	e.logger.Warn("token request failed", zap.Error(err), zap.String("token_url", tokenURL))
	return errors.Wrap(err, errors.ErrorTypeConnection, "token request failed")
}

// defaultHTTPClient returns an HTTP client tuned for short token
// requests with connection reuse across refreshes.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
	}
}
