package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

func basicSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder("twilio", "sms", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypePhoneNumber, true, true).
		WithAuthentication(schema.AuthMethodBasic, "Basic",
			schema.AuthField{Name: "AccountSid", Role: schema.FieldRoleUsername},
			schema.AuthField{Name: "AuthToken", Role: schema.FieldRolePassword, Sensitive: true}).
		Build()
	require.NoError(t, err)
	return s
}

func basicStore(t *testing.T, s *schema.Schema) *settings.Store {
	t.Helper()
	st := settings.New(s)
	require.NoError(t, st.Set("AccountSid", "AC-1"))
	require.NoError(t, st.Set("AuthToken", "secret"))
	return st
}

func basicConfig(t *testing.T, s *schema.Schema) schema.AuthenticationConfiguration {
	t.Helper()
	cfg, ok := s.AuthenticationConfiguration(schema.AuthMethodBasic)
	require.True(t, ok)
	return cfg
}

func TestAuthenticateBasic(t *testing.T) {
	s := basicSchema(t)
	st := basicStore(t, s)
	cfg := basicConfig(t, s)
	a := NewAuthenticator()

	cred, err := a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, schema.AuthMethodBasic, cred.Method)
	assert.Equal(t, "AC-1", cred.Principal)

	user, _ := cred.Secret(schema.FieldRoleUsername)
	pass, _ := cred.Secret(schema.FieldRolePassword)
	assert.Equal(t, "AC-1", user)
	assert.Equal(t, "secret", pass)
	assert.False(t, cred.IsExpired(), "basic credentials carry no expiry")
	assert.NotEmpty(t, cred.ID)
}

func TestAuthenticateCachesByContent(t *testing.T) {
	s := basicSchema(t)
	cfg := basicConfig(t, s)
	a := NewAuthenticator()
	ctx := context.Background()

	st := basicStore(t, s)
	first, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)

	again, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)
	assert.Same(t, first, again, "identical inputs return the cached instance")
	assert.Equal(t, 1, a.CacheSize())

	// A second store with equal content shares the credential.
	other := basicStore(t, s)
	shared, err := a.Authenticate(ctx, other, cfg)
	require.NoError(t, err)
	assert.Same(t, first, shared)

	// Different content resolves its own credential.
	require.NoError(t, other.Set("AuthToken", "rotated"))
	rotated, err := a.Authenticate(ctx, other, cfg)
	require.NoError(t, err)
	assert.NotSame(t, first, rotated)
	assert.NotEqual(t, first.ID, rotated.ID)
	assert.Equal(t, 2, a.CacheSize())
}

func TestAuthenticateUnsatisfiedSettings(t *testing.T) {
	s := basicSchema(t)
	cfg := basicConfig(t, s)
	a := NewAuthenticator()

	st := settings.New(s)
	require.NoError(t, st.Set("AccountSid", "AC-1"))

	_, err := a.Authenticate(context.Background(), st, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.Contains(t, err.Error(), "AuthToken")
	assert.Equal(t, 0, a.CacheSize(), "failures are never cached")
}

func TestInvalidateCredential(t *testing.T) {
	s := basicSchema(t)
	st := basicStore(t, s)
	cfg := basicConfig(t, s)
	a := NewAuthenticator()
	ctx := context.Background()

	first, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)

	a.InvalidateCredential(st, cfg)
	assert.Equal(t, 0, a.CacheSize())

	second, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestClearCache(t *testing.T) {
	s := basicSchema(t)
	st := basicStore(t, s)
	cfg := basicConfig(t, s)
	a := NewAuthenticator()

	_, err := a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, a.CacheSize())

	a.ClearCache()
	assert.Equal(t, 0, a.CacheSize())
}

// expiringProvider hands out credentials that are already stale, forcing a
// re-resolution on every call.
type expiringProvider struct {
	resolves atomic.Int32
	ttl      time.Duration
}

func (p *expiringProvider) Method() schema.AuthMethod { return schema.AuthMethodCustom }

func (p *expiringProvider) Resolve(_ context.Context, _ *Request) (*Credential, error) {
	p.resolves.Add(1)
	cred := newCredential(schema.AuthMethodCustom)
	cred.ExpiresAt = time.Now().Add(p.ttl)
	return cred, nil
}

func customSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder("vendor", "chat", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypeUserID, true, true).
		WithAuthentication(schema.AuthMethodCustom, "Custom",
			schema.AuthField{Name: "Ticket", Role: schema.FieldRoleGeneric, Sensitive: true}).
		Build()
	require.NoError(t, err)
	return s
}

func TestExpiredCredentialIsReresolved(t *testing.T) {
	s := customSchema(t)
	st := settings.New(s)
	require.NoError(t, st.Set("Ticket", "t-1"))
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodCustom)

	provider := &expiringProvider{ttl: -time.Minute}
	a := NewAuthenticator(WithProvider(provider))
	ctx := context.Background()

	first, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)
	second, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)

	assert.NotSame(t, first, second, "expired entries are resolved anew")
	assert.Equal(t, int32(2), provider.resolves.Load())
}

func TestExpiryBufferWidensStaleness(t *testing.T) {
	s := customSchema(t)
	st := settings.New(s)
	require.NoError(t, st.Set("Ticket", "t-1"))
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodCustom)

	provider := &expiringProvider{ttl: time.Minute}
	a := NewAuthenticator(WithProvider(provider), WithExpiryBuffer(5*time.Minute))
	ctx := context.Background()

	_, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.resolves.Load(),
		"a credential inside the expiry buffer is not served from cache")
}

// slowProvider blocks long enough for concurrent callers to pile up.
type slowProvider struct {
	resolves atomic.Int32
}

func (p *slowProvider) Method() schema.AuthMethod { return schema.AuthMethodCustom }

func (p *slowProvider) Resolve(_ context.Context, _ *Request) (*Credential, error) {
	p.resolves.Add(1)
	time.Sleep(50 * time.Millisecond)
	return newCredential(schema.AuthMethodCustom), nil
}

func TestConcurrentCallsConvergeOnOneResolution(t *testing.T) {
	s := customSchema(t)
	st := settings.New(s)
	require.NoError(t, st.Set("Ticket", "t-1"))
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodCustom)

	provider := &slowProvider{}
	a := NewAuthenticator(WithProvider(provider))

	const callers = 16
	creds := make([]*Credential, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			cred, err := a.Authenticate(context.Background(), st, cfg)
			assert.NoError(t, err)
			creds[i] = cred
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.resolves.Load(), "waiters share the in-flight resolution")
	for i := 1; i < callers; i++ {
		assert.Same(t, creds[0], creds[i])
	}
}

func TestRegisterProvider(t *testing.T) {
	a := NewAuthenticator()

	err := a.RegisterProvider(basicProvider{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
}

func TestAuthenticateNoneMethod(t *testing.T) {
	s, err := schema.NewBuilder("open", "webhook", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypeAny, true, true).
		WithNoAuthentication().
		Build()
	require.NoError(t, err)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodNone)

	a := NewAuthenticator()
	cred, err := a.Authenticate(context.Background(), settings.New(s), cfg)
	require.NoError(t, err)
	assert.Equal(t, schema.AuthMethodNone, cred.Method)
	assert.Empty(t, cred.Secrets)
	assert.False(t, cred.IsExpired())
}

func TestAuthenticateNilStore(t *testing.T) {
	a := NewAuthenticator()
	_, err := a.Authenticate(context.Background(), nil, schema.AuthenticationConfiguration{Method: schema.AuthMethodNone})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
