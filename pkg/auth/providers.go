package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/schema"
)

// builtinProviders returns the provider set every Authenticator starts with.
// The ClientCredentials provider is wired separately because it needs a
// TokenExchanger.
func builtinProviders() []Provider {
	return []Provider{
		noneProvider{},
		basicProvider{},
		apiKeyProvider{},
		bearerTokenProvider{},
		certificateProvider{},
	}
}

// noneProvider serves schemas that declare the always-satisfied None
// method: the credential carries no material.
type noneProvider struct{}

func (noneProvider) Method() schema.AuthMethod { return schema.AuthMethodNone }

func (noneProvider) Resolve(_ context.Context, _ *Request) (*Credential, error) {
	return newCredential(schema.AuthMethodNone), nil
}

type basicProvider struct{}

func (basicProvider) Method() schema.AuthMethod { return schema.AuthMethodBasic }

func (basicProvider) Resolve(_ context.Context, req *Request) (*Credential, error) {
	username, ok := req.FieldValue(schema.FieldRoleUsername)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRoleUsername)
	}
	password, ok := req.FieldValue(schema.FieldRolePassword)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRolePassword)
	}

	cred := newCredential(schema.AuthMethodBasic)
	cred.Principal = username
	cred.Secrets[schema.FieldRoleUsername] = username
	cred.Secrets[schema.FieldRolePassword] = password
	return cred, nil
}

type apiKeyProvider struct{}

func (apiKeyProvider) Method() schema.AuthMethod { return schema.AuthMethodAPIKey }

func (apiKeyProvider) Resolve(_ context.Context, req *Request) (*Credential, error) {
	fields, ok := req.SatisfiedFields()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' has no satisfied field set", req.Config.Display())
	}

	cred := newCredential(schema.AuthMethodAPIKey)
	for role, value := range fields {
		cred.Secrets[role] = value
	}
	// A token-role field doubles as ready bearer material for providers
	// that pass API keys in an Authorization header.
	if token, found := cred.Secrets[schema.FieldRoleToken]; found {
		cred.Token = token
	}
	return cred, nil
}

type bearerTokenProvider struct{}

func (bearerTokenProvider) Method() schema.AuthMethod { return schema.AuthMethodBearerToken }

func (bearerTokenProvider) Resolve(_ context.Context, req *Request) (*Credential, error) {
	token, ok := req.FieldValue(schema.FieldRoleToken)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRoleToken)
	}

	cred := newCredential(schema.AuthMethodBearerToken)
	cred.Token = token
	cred.Secrets[schema.FieldRoleToken] = token

	// When the token is a JWT, its exp claim bounds the credential's
	// lifetime. The signature is the provider's concern, not ours, so the
	// parse is unverified; opaque tokens simply carry no expiry.
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			cred.ExpiresAt = exp.Time
		}
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			cred.Principal = sub
		}
	}
	return cred, nil
}

type clientCredentialsProvider struct {
	exchanger TokenExchanger
}

func (clientCredentialsProvider) Method() schema.AuthMethod {
	return schema.AuthMethodClientCredentials
}

func (p clientCredentialsProvider) Resolve(ctx context.Context, req *Request) (*Credential, error) {
	if p.exchanger == nil {
		return nil, errors.New(errors.ErrorTypeConfig,
			"client credentials authentication needs a token exchanger; construct the authenticator with WithTokenExchanger")
	}

	clientID, ok := req.FieldValue(schema.FieldRoleClientID)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRoleClientID)
	}
	clientSecret, ok := req.FieldValue(schema.FieldRoleClientSecret)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRoleClientSecret)
	}
	tokenURL, ok := req.FieldValue(schema.FieldRoleTokenURL)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRoleTokenURL)
	}

	exchange := TokenExchange{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	if scope, found := req.FieldValue(schema.FieldRoleScope); found {
		exchange.Scopes = strings.Fields(scope)
	}

	token, err := p.exchanger.Exchange(ctx, exchange)
	if err != nil {
		return nil, err
	}

	cred := newCredential(schema.AuthMethodClientCredentials)
	cred.Principal = clientID
	cred.Token = token.AccessToken
	cred.ExpiresAt = token.ExpiresAt
	cred.Secrets[schema.FieldRoleClientID] = clientID
	cred.Secrets[schema.FieldRoleClientSecret] = clientSecret
	if token.TokenType != "" {
		cred.Attributes = map[string]string{"token_type": token.TokenType}
	}
	return cred, nil
}

type certificateProvider struct{}

func (certificateProvider) Method() schema.AuthMethod { return schema.AuthMethodCertificate }

func (certificateProvider) Resolve(_ context.Context, req *Request) (*Credential, error) {
	certPEM, ok := req.FieldValue(schema.FieldRoleCertificate)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRoleCertificate)
	}
	keyPEM, ok := req.FieldValue(schema.FieldRolePrivateKey)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"configuration '%s' declares no usable %s field", req.Config.Display(), schema.FieldRolePrivateKey)
	}

	pair, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication,
			"certificate and private key do not form a valid pair")
	}

	cred := newCredential(schema.AuthMethodCertificate)
	cred.Secrets[schema.FieldRoleCertificate] = certPEM
	cred.Secrets[schema.FieldRolePrivateKey] = keyPEM
	if leaf, err := x509.ParseCertificate(pair.Certificate[0]); err == nil {
		cred.Principal = leaf.Subject.CommonName
		cred.ExpiresAt = leaf.NotAfter
	}
	return cred, nil
}
