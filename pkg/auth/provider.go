package auth

import (
	"context"
	"strings"
	"time"

	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

// Provider resolves credentials for one authentication method. Built-in
// providers cover Basic, ApiKey, BearerToken, ClientCredentials, and
// Certificate; Custom methods register their own.
type Provider interface {
	// Method returns the authentication method tag this provider serves.
	Method() schema.AuthMethod

	// Resolve extracts the method's fields from the request settings and
	// produces a credential. The request is known to satisfy the
	// configuration before Resolve is called.
	Resolve(ctx context.Context, req *Request) (*Credential, error)
}

// Request carries one resolution's inputs: the authentication configuration
// being satisfied and the settings store holding the field values.
type Request struct {
	Config   schema.AuthenticationConfiguration
	Settings *settings.Store
}

// Validate checks the settings against the configuration, reporting every
// missing or invalid field.
func (r *Request) Validate() *schema.ValidationResult {
	return schema.EvaluateAuthentication(r.Config, r.Settings.Raw())
}

// FieldValue returns the settings value of the first configuration field
// carrying the given role.
func (r *Request) FieldValue(role schema.FieldRole) (string, bool) {
	for _, f := range r.configFields() {
		if strings.EqualFold(string(f.Role), string(role)) {
			if v, ok := schema.StringSetting(r.Settings.Raw(), f.Name); ok {
				return v, true
			}
		}
	}
	return "", false
}

// SatisfiedFields returns the values of the configuration's satisfied field
// set, keyed by role: the fixed fields, or the first group whose every
// field is present.
func (r *Request) SatisfiedFields() (map[schema.FieldRole]string, bool) {
	if !r.Config.Flexible() {
		return collectFields(r.Config.Fields, r.Settings)
	}
	for _, g := range r.Config.Groups {
		if values, ok := collectFields(g.Fields, r.Settings); ok {
			return values, true
		}
	}
	return nil, false
}

func (r *Request) configFields() []schema.AuthField {
	if !r.Config.Flexible() {
		return r.Config.Fields
	}
	var fields []schema.AuthField
	for _, g := range r.Config.Groups {
		fields = append(fields, g.Fields...)
	}
	return fields
}

func collectFields(fields []schema.AuthField, st *settings.Store) (map[schema.FieldRole]string, bool) {
	values := make(map[schema.FieldRole]string, len(fields))
	for _, f := range fields {
		v, ok := schema.StringSetting(st.Raw(), f.Name)
		if !ok {
			return nil, false
		}
		values[f.Role] = v
	}
	return values, true
}

// TokenExchange is a client-credentials token request handed to a
// TokenExchanger.
type TokenExchange struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// ExchangedToken is a token returned by a TokenExchanger.
type ExchangedToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// TokenExchanger trades client credentials for an access token against an
// external authorization server. Implementations classify their failures:
// transport problems and 5xx responses are retryable, 4xx rejections are
// permanent (errors.IsRetryable distinguishes them).
type TokenExchanger interface {
	Exchange(ctx context.Context, req TokenExchange) (*ExchangedToken, error)
}
