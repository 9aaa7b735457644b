package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/logger"
	"github.com/heraldhq/herald/pkg/metrics"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

// Authenticator resolves settings into credentials through registered
// providers and caches successful resolutions by settings content.
//
// The cache key is a SHA-256 fingerprint of the sorted settings pairs plus
// the configuration's method and display name, so two stores with the same
// content share a credential and any content change resolves a fresh one.
// Concurrent calls for the same key converge on a single resolution:
// waiters block on the in-flight resolve instead of racing their own.
// Failed resolutions are never cached.
type Authenticator struct {
	mu        sync.Mutex
	cond      *sync.Cond
	providers map[string]Provider
	cache     map[string]*cacheEntry
	resolving map[string]bool

	// expiryBuffer widens the expiry check: credentials expiring within
	// the buffer are re-resolved instead of returned
	expiryBuffer time.Duration

	logger *zap.Logger
}

type cacheEntry struct {
	cred   *Credential
	method string
}

// Option configures an Authenticator at construction.
type Option func(*Authenticator)

// WithTokenExchanger wires the collaborator the ClientCredentials provider
// exchanges client credentials with.
func WithTokenExchanger(ex TokenExchanger) Option {
	return func(a *Authenticator) {
		a.providers[providerKey(schema.AuthMethodClientCredentials)] = clientCredentialsProvider{exchanger: ex}
	}
}

// WithExpiryBuffer makes Authenticate re-resolve credentials that expire
// within d, not only ones already expired.
func WithExpiryBuffer(d time.Duration) Option {
	return func(a *Authenticator) { a.expiryBuffer = d }
}

// WithProvider installs a provider, replacing any registered one for the
// same method.
func WithProvider(p Provider) Option {
	return func(a *Authenticator) { a.providers[providerKey(p.Method())] = p }
}

// NewAuthenticator returns an authenticator with the built-in providers
// registered. The ClientCredentials provider is registered without an
// exchanger and reports a config error until WithTokenExchanger supplies
// one.
func NewAuthenticator(opts ...Option) *Authenticator {
	a := &Authenticator{
		providers: make(map[string]Provider),
		cache:     make(map[string]*cacheEntry),
		resolving: make(map[string]bool),
		logger:    logger.Get().With(zap.String("component", "authenticator")),
	}
	a.cond = sync.NewCond(&a.mu)
	for _, p := range builtinProviders() {
		a.providers[providerKey(p.Method())] = p
	}
	a.providers[providerKey(schema.AuthMethodClientCredentials)] = clientCredentialsProvider{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterProvider adds a provider for a method that has none yet. Custom
// methods register here; replacing a built-in takes the WithProvider option.
func (a *Authenticator) RegisterProvider(p Provider) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := providerKey(p.Method())
	if _, exists := a.providers[key]; exists {
		return errors.Newf(errors.ErrorTypeConflict,
			"an authentication provider for method '%s' is already registered", p.Method())
	}
	a.providers[key] = p
	return nil
}

// Authenticate resolves a credential for the given configuration from the
// settings store. Identical repeated calls return the same credential
// instance until it expires or is invalidated.
func (a *Authenticator) Authenticate(ctx context.Context, st *settings.Store, cfg schema.AuthenticationConfiguration) (*Credential, error) {
	if st == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "settings store must not be nil")
	}

	a.mu.Lock()
	provider, registered := a.providers[providerKey(cfg.Method)]
	a.mu.Unlock()
	if !registered {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"no authentication provider is registered for method '%s'", cfg.Method)
	}

	if result := schema.EvaluateAuthentication(cfg, st.Raw()); !result.Valid() {
		return nil, errors.Newf(errors.ErrorTypeAuthentication,
			"authentication is not satisfied: %s", result.Summary())
	}

	key := cacheKey(st, cfg)
	method := string(cfg.Method)

	a.mu.Lock()
	for {
		if entry, found := a.cache[key]; found && a.usable(entry.cred) {
			a.mu.Unlock()
			metrics.CredentialCacheHits.WithLabelValues(method).Inc()
			return entry.cred, nil
		}
		if !a.resolving[key] {
			break
		}
		// Another caller is resolving this key; wait for its result and
		// re-check instead of starting a second resolution.
		a.cond.Wait()
	}
	a.resolving[key] = true
	a.mu.Unlock()

	metrics.CredentialCacheMisses.WithLabelValues(method).Inc()
	cred, err := provider.Resolve(ctx, &Request{Config: cfg, Settings: st})

	a.mu.Lock()
	delete(a.resolving, key)
	if err == nil {
		a.cache[key] = &cacheEntry{cred: cred, method: method}
	}
	a.cond.Broadcast()
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("credential resolution failed",
			zap.String("method", method),
			zap.Error(err))
		return nil, err
	}

	a.logger.Debug("credential resolved",
		zap.String("method", method),
		zap.String("credential_id", cred.ID),
		zap.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

// usable reports whether a cached credential can still be returned.
func (a *Authenticator) usable(cred *Credential) bool {
	if cred.IsExpired() {
		return false
	}
	if a.expiryBuffer > 0 && cred.WillExpireSoon(a.expiryBuffer) {
		return false
	}
	return true
}

// InvalidateCredential evicts the credential cached for the given settings
// and configuration, if any. The next Authenticate resolves a fresh one.
func (a *Authenticator) InvalidateCredential(st *settings.Store, cfg schema.AuthenticationConfiguration) {
	if st == nil {
		return
	}
	key := cacheKey(st, cfg)
	a.mu.Lock()
	entry, found := a.cache[key]
	if found {
		delete(a.cache, key)
	}
	a.mu.Unlock()
	if found {
		metrics.CredentialCacheEvictions.WithLabelValues(entry.method).Inc()
	}
}

// ClearCache evicts every cached credential.
func (a *Authenticator) ClearCache() {
	a.mu.Lock()
	evicted := make([]string, 0, len(a.cache))
	for _, entry := range a.cache {
		evicted = append(evicted, entry.method)
	}
	a.cache = make(map[string]*cacheEntry)
	a.mu.Unlock()
	for _, method := range evicted {
		metrics.CredentialCacheEvictions.WithLabelValues(method).Inc()
	}
}

// CacheSize returns the number of cached credentials.
func (a *Authenticator) CacheSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cache)
}

func providerKey(method schema.AuthMethod) string {
	return strings.ToLower(string(method))
}

// cacheKey fingerprints the resolution inputs: settings content plus the
// configuration's identity.
func cacheKey(st *settings.Store, cfg schema.AuthenticationConfiguration) string {
	h := sha256.New()
	io.WriteString(h, st.Fingerprint())
	io.WriteString(h, "\n")
	io.WriteString(h, providerKey(cfg.Method))
	io.WriteString(h, "\n")
	io.WriteString(h, cfg.Display())
	return hex.EncodeToString(h.Sum(nil))
}
