package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

func bearerSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder("vendor", "push", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypeDeviceToken, false, true).
		WithAuthentication(schema.AuthMethodBearerToken, "Bearer",
			schema.AuthField{Name: "AccessToken", Role: schema.FieldRoleToken, Sensitive: true}).
		Build()
	require.NoError(t, err)
	return s
}

func TestBearerTokenDerivesExpiryFromJWT(t *testing.T) {
	s := bearerSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodBearerToken)
	a := NewAuthenticator()

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc-1",
		ExpiresAt: jwt.NewNumericDate(expiry),
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	st := settings.New(s)
	require.NoError(t, st.Set("AccessToken", token))

	cred, err := a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, token, cred.Token)
	assert.Equal(t, "svc-1", cred.Principal)
	assert.WithinDuration(t, expiry, cred.ExpiresAt, time.Second)
	assert.False(t, cred.IsExpired())
	assert.True(t, cred.WillExpireSoon(2*time.Hour))
}

func TestBearerTokenOpaqueTokenHasNoExpiry(t *testing.T) {
	s := bearerSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodBearerToken)
	a := NewAuthenticator()

	st := settings.New(s)
	require.NoError(t, st.Set("AccessToken", "opaque-provider-token"))

	cred, err := a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, "opaque-provider-token", cred.Token)
	assert.True(t, cred.ExpiresAt.IsZero())
	assert.False(t, cred.IsExpired())
	assert.False(t, cred.WillExpireSoon(24*time.Hour))
}

// stubExchanger records exchange requests and serves scripted responses.
type stubExchanger struct {
	mu    sync.Mutex
	calls int
	last  TokenExchange
	token *ExchangedToken
	err   error
}

func (e *stubExchanger) Exchange(_ context.Context, req TokenExchange) (*ExchangedToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = req
	if e.err != nil {
		return nil, e.err
	}
	return e.token, nil
}

func clientCredentialsSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder("vendor", "chat", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypeUserID, true, true).
		WithAuthentication(schema.AuthMethodClientCredentials, "OAuth2 client credentials",
			schema.AuthField{Name: "ClientId", Role: schema.FieldRoleClientID},
			schema.AuthField{Name: "ClientSecret", Role: schema.FieldRoleClientSecret, Sensitive: true},
			schema.AuthField{Name: "TokenUrl", Role: schema.FieldRoleTokenURL},
			schema.AuthField{Name: "Scope", Role: schema.FieldRoleScope}).
		Build()
	require.NoError(t, err)
	return s
}

func clientCredentialsStore(t *testing.T, s *schema.Schema) *settings.Store {
	t.Helper()
	st := settings.New(s)
	require.NoError(t, st.Set("ClientId", "cid-1"))
	require.NoError(t, st.Set("ClientSecret", "cs-1"))
	require.NoError(t, st.Set("TokenUrl", "https://auth.example.com/token"))
	require.NoError(t, st.Set("Scope", "messages.send messages.read"))
	return st
}

func TestClientCredentialsExchange(t *testing.T) {
	s := clientCredentialsSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodClientCredentials)
	st := clientCredentialsStore(t, s)

	expiry := time.Now().Add(30 * time.Minute)
	exchanger := &stubExchanger{token: &ExchangedToken{
		AccessToken: "at-123",
		TokenType:   "Bearer",
		ExpiresAt:   expiry,
	}}
	a := NewAuthenticator(WithTokenExchanger(exchanger))

	cred, err := a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, "at-123", cred.Token)
	assert.Equal(t, "cid-1", cred.Principal)
	assert.Equal(t, expiry, cred.ExpiresAt)
	assert.Equal(t, "Bearer", cred.Attributes["token_type"])

	assert.Equal(t, "https://auth.example.com/token", exchanger.last.TokenURL)
	assert.Equal(t, "cid-1", exchanger.last.ClientID)
	assert.Equal(t, "cs-1", exchanger.last.ClientSecret)
	assert.Equal(t, []string{"messages.send", "messages.read"}, exchanger.last.Scopes)

	// The exchange is not repeated while the token is fresh.
	_, err = a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, exchanger.calls)
}

func TestClientCredentialsFailureIsNotCached(t *testing.T) {
	s := clientCredentialsSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodClientCredentials)
	st := clientCredentialsStore(t, s)

	exchanger := &stubExchanger{err: errors.New(errors.ErrorTypeConnection, "token endpoint unreachable")}
	a := NewAuthenticator(WithTokenExchanger(exchanger))
	ctx := context.Background()

	_, err := a.Authenticate(ctx, st, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err), "transport failures stay retryable")
	assert.Equal(t, 0, a.CacheSize())

	// Recovery succeeds on the next call.
	exchanger.mu.Lock()
	exchanger.err = nil
	exchanger.token = &ExchangedToken{AccessToken: "at-2", ExpiresAt: time.Now().Add(time.Hour)}
	exchanger.mu.Unlock()

	cred, err := a.Authenticate(ctx, st, cfg)
	require.NoError(t, err)
	assert.Equal(t, "at-2", cred.Token)
	assert.Equal(t, 2, exchanger.calls)
}

func TestClientCredentialsWithoutExchanger(t *testing.T) {
	s := clientCredentialsSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodClientCredentials)
	st := clientCredentialsStore(t, s)

	a := NewAuthenticator()
	_, err := a.Authenticate(context.Background(), st, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "WithTokenExchanger")
}

// certPair generates a self-signed certificate and matching key in PEM form.
func certPair(t *testing.T, cn string, notAfter time.Time) (certPEM, keyPEM string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM
}

func certificateSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder("vendor", "email", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypeEmail, true, true).
		WithAuthentication(schema.AuthMethodCertificate, "mTLS",
			schema.AuthField{Name: "Certificate", Role: schema.FieldRoleCertificate, Sensitive: true},
			schema.AuthField{Name: "PrivateKey", Role: schema.FieldRolePrivateKey, Sensitive: true}).
		Build()
	require.NoError(t, err)
	return s
}

func TestCertificateProvider(t *testing.T) {
	s := certificateSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodCertificate)
	notAfter := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	certPEM, keyPEM := certPair(t, "herald-client", notAfter)

	st := settings.New(s)
	require.NoError(t, st.Set("Certificate", certPEM))
	require.NoError(t, st.Set("PrivateKey", keyPEM))

	a := NewAuthenticator()
	cred, err := a.Authenticate(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, "herald-client", cred.Principal)
	assert.WithinDuration(t, notAfter, cred.ExpiresAt, 2*time.Second,
		"credential lifetime is bounded by the certificate")
}

func TestCertificateProviderRejectsMismatchedPair(t *testing.T) {
	s := certificateSchema(t)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodCertificate)
	certPEM, _ := certPair(t, "a", time.Now().Add(time.Hour))
	_, otherKeyPEM := certPair(t, "b", time.Now().Add(time.Hour))

	st := settings.New(s)
	require.NoError(t, st.Set("Certificate", certPEM))
	require.NoError(t, st.Set("PrivateKey", otherKeyPEM))

	a := NewAuthenticator()
	_, err := a.Authenticate(context.Background(), st, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.Equal(t, 0, a.CacheSize())
}

func TestAPIKeyProviderFlexibleGroups(t *testing.T) {
	s, err := schema.NewBuilder("vendor", "chat", "1.0.0").
		WithCapability(schema.CapabilitySend).
		WithContentType(schema.ContentTypeText).
		WithEndpoint(schema.EndpointTypeUserID, true, true).
		WithFlexibleAuthentication(schema.AuthMethodAPIKey, "ApiKey",
			schema.FieldGroup{Name: "key pair", Fields: []schema.AuthField{
				{Name: "ApiKey", Role: schema.FieldRoleAPIKey, Sensitive: true},
				{Name: "ApiSecret", Role: schema.FieldRoleGeneric, Sensitive: true},
			}},
			schema.FieldGroup{Name: "token", Fields: []schema.AuthField{
				{Name: "QueryToken", Role: schema.FieldRoleToken, Sensitive: true},
			}}).
		Build()
	require.NoError(t, err)
	cfg, _ := s.AuthenticationConfiguration(schema.AuthMethodAPIKey)
	a := NewAuthenticator()

	t.Run("key pair group", func(t *testing.T) {
		st := settings.New(s)
		require.NoError(t, st.Set("ApiKey", "k-1"))
		require.NoError(t, st.Set("ApiSecret", "s-1"))

		cred, err := a.Authenticate(context.Background(), st, cfg)
		require.NoError(t, err)
		key, _ := cred.Secret(schema.FieldRoleAPIKey)
		secret, _ := cred.Secret(schema.FieldRoleGeneric)
		assert.Equal(t, "k-1", key)
		assert.Equal(t, "s-1", secret)
		assert.Empty(t, cred.Token)
	})

	t.Run("token group doubles as bearer material", func(t *testing.T) {
		st := settings.New(s)
		require.NoError(t, st.Set("QueryToken", "qt-1"))

		cred, err := a.Authenticate(context.Background(), st, cfg)
		require.NoError(t, err)
		assert.Equal(t, "qt-1", cred.Token)
	})
}
