// Package auth resolves connection settings into provider credentials. A
// registered Provider per authentication method extracts its role-tagged
// fields from the settings, optionally exchanging them for tokens, and the
// Authenticator caches the resulting credentials by settings content.
package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/pkg/schema"
)

// Credential is resolved authentication material for one channel
// configuration. Secrets are keyed by their schema field role, so providers
// consuming a credential never depend on schema-specific field names.
type Credential struct {
	// ID uniquely identifies this resolution. A cache hit returns the same
	// ID; re-resolution after invalidation or expiry mints a new one.
	ID string

	// Method is the authentication method that produced the credential.
	Method schema.AuthMethod

	// Principal names the authenticated identity when the method has one
	// (username, client id, key id). Informational, safe to log.
	Principal string

	// Token is the ready-to-use bearer material for token-based methods.
	Token string

	// Secrets holds the extracted sensitive fields by role.
	Secrets map[schema.FieldRole]string

	// IssuedAt is when the credential was resolved.
	IssuedAt time.Time

	// ExpiresAt is when the credential stops being valid. The zero value
	// means the credential never expires.
	ExpiresAt time.Time

	// Attributes carries non-sensitive extras such as token type or scope.
	Attributes map[string]string
}

// newCredential mints a credential for the given method.
func newCredential(method schema.AuthMethod) *Credential {
	return &Credential{
		ID:       uuid.NewString(),
		Method:   method,
		Secrets:  make(map[schema.FieldRole]string),
		IssuedAt: time.Now(),
	}
}

// Secret returns the secret stored under the given role.
func (c *Credential) Secret(role schema.FieldRole) (string, bool) {
	v, ok := c.Secrets[role]
	return v, ok
}

// IsExpired reports whether the credential's expiry has passed. Credentials
// without an expiry never expire.
func (c *Credential) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// WillExpireSoon reports whether the credential expires within buffer.
func (c *Credential) WillExpireSoon(buffer time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(buffer).After(c.ExpiresAt)
}
