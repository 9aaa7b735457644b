package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/errors"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewBuilder("twilio", "sms", "1.0.0").
		WithDisplayName("Twilio SMS").
		WithCapabilities(CapabilitySend, CapabilityBatchSend, CapabilityMessageStatus, CapabilityHealthCheck).
		WithParameter(Parameter{Name: "Region", DataType: DataTypeString, Default: "us1", AllowedValues: []interface{}{"us1", "eu1"}}).
		WithParameter(Parameter{Name: "MaxRetries", DataType: DataTypeInteger}).
		WithRequiredParameter("AccountSid", DataTypeString).
		WithParameter(Parameter{Name: "AuthToken", DataType: DataTypeString, Sensitive: true}).
		WithMessageProperty(MessageProperty{Name: "Priority", DataType: DataTypeInteger}).
		WithEndpoint(EndpointTypePhoneNumber, true, true).
		WithContentTypes(ContentTypeText, ContentTypeTemplate).
		WithAuthentication(AuthMethodBasic, "Basic",
			AuthField{Name: "AccountSid", Role: FieldRoleUsername},
			AuthField{Name: "AuthToken", Role: FieldRolePassword, Sensitive: true}).
		Build()
	require.NoError(t, err)
	return s
}

func TestBuilderBuildsSchema(t *testing.T) {
	s := testSchema(t)

	assert.Equal(t, "twilio", s.Provider())
	assert.Equal(t, "sms", s.ChannelType())
	assert.Equal(t, "1.0.0", s.Version())
	assert.Equal(t, "Twilio SMS", s.DisplayName())
	assert.True(t, s.HasCapability(CapabilitySend))
	assert.False(t, s.HasCapability(CapabilityReceive))
	assert.True(t, s.ContentTypes().Has(ContentTypeText))
	assert.True(t, s.StrictValidation())
	assert.Len(t, s.Parameters(), 4)

	p, ok := s.Parameter("accountsid")
	require.True(t, ok, "parameter lookup is case-insensitive")
	assert.Equal(t, "AccountSid", p.Name)
	assert.True(t, p.Required)
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Schema, error)
	}{
		{
			name: "duplicate parameter differing by case",
			build: func() (*Schema, error) {
				return NewBuilder("p", "sms", "1.0.0").
					WithRequiredParameter("ApiKey", DataTypeString).
					WithRequiredParameter("apikey", DataTypeString).
					Build()
			},
		},
		{
			name: "duplicate capability",
			build: func() (*Schema, error) {
				return NewBuilder("p", "sms", "1.0.0").
					WithCapability(CapabilitySend).
					WithCapability(CapabilitySend).
					Build()
			},
		},
		{
			name: "duplicate content type",
			build: func() (*Schema, error) {
				return NewBuilder("p", "sms", "1.0.0").
					WithContentType(ContentTypeText).
					WithContentType(ContentTypeText).
					Build()
			},
		},
		{
			name: "duplicate endpoint type",
			build: func() (*Schema, error) {
				return NewBuilder("p", "sms", "1.0.0").
					WithEndpoint(EndpointTypePhoneNumber, true, true).
					WithEndpoint("phonenumber", true, false).
					Build()
			},
		},
		{
			name: "duplicate authentication method",
			build: func() (*Schema, error) {
				return NewBuilder("p", "sms", "1.0.0").
					WithAuthentication(AuthMethodAPIKey, "ApiKey", AuthField{Name: "Key", Role: FieldRoleAPIKey}).
					WithAuthentication(AuthMethodAPIKey, "ApiKey again", AuthField{Name: "Other", Role: FieldRoleAPIKey}).
					Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "already declared")
		})
	}
}

func TestSchemaMutationErrors(t *testing.T) {
	s := testSchema(t)

	t.Run("add duplicate parameter is a conflict", func(t *testing.T) {
		err := s.AddParameter(Parameter{Name: "REGION", DataType: DataTypeString})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	})

	t.Run("remove unknown parameter is not found", func(t *testing.T) {
		err := s.RemoveParameter("Nope")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("update replaces in place", func(t *testing.T) {
		require.NoError(t, s.UpdateParameter(Parameter{Name: "MaxRetries", DataType: DataTypeInteger, Default: 3}))
		p, ok := s.Parameter("MaxRetries")
		require.True(t, ok)
		assert.Equal(t, 3, p.Default)
	})

	t.Run("unknown data type rejected", func(t *testing.T) {
		err := s.AddParameter(Parameter{Name: "Huh", DataType: DataType("Decimal")})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestWildcardEndpointExcludesOthers(t *testing.T) {
	t.Run("wildcard after concrete", func(t *testing.T) {
		_, err := NewBuilder("p", "push", "1.0.0").
			WithEndpoint(EndpointTypeDeviceToken, true, false).
			WithEndpoint(EndpointTypeAny, true, true).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wildcard")
	})

	t.Run("concrete after wildcard", func(t *testing.T) {
		_, err := NewBuilder("p", "push", "1.0.0").
			WithEndpoint(EndpointTypeAny, true, true).
			WithEndpoint(EndpointTypeDeviceToken, true, false).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wildcard")
	})
}

func TestBuilderRejectsBadIdentity(t *testing.T) {
	tests := []struct {
		name                           string
		provider, channelType, version string
		wantMsg                        string
	}{
		{"empty provider", "", "sms", "1.0.0", "provider id must not be empty"},
		{"empty channel type", "p", "", "1.0.0", "channel type must not be empty"},
		{"empty version", "p", "sms", "", "version must not be empty"},
		{"non-semver version", "p", "sms", "one-dot-oh", "not a valid semantic version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.provider, tt.channelType, tt.version).Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFlexibleAuthenticationDefinition(t *testing.T) {
	s, err := NewBuilder("vendor", "chat", "2.1.0").
		WithFlexibleAuthentication(AuthMethodAPIKey, "ApiKey",
			FieldGroup{Name: "header", Fields: []AuthField{
				{Name: "ApiKey", Role: FieldRoleAPIKey, Sensitive: true},
				{Name: "ApiSecret", Role: FieldRoleGeneric, Sensitive: true},
			}},
			FieldGroup{Name: "query", Fields: []AuthField{
				{Name: "QueryToken", Role: FieldRoleToken, Sensitive: true},
			}},
		).
		Build()
	require.NoError(t, err)

	cfg, ok := s.AuthenticationConfiguration(AuthMethodAPIKey)
	require.True(t, ok)
	assert.True(t, cfg.Flexible())
	assert.Len(t, cfg.Groups, 2)
}

func TestEmptyFieldGroupRejected(t *testing.T) {
	_, err := NewBuilder("vendor", "chat", "2.1.0").
		WithFlexibleAuthentication(AuthMethodAPIKey, "ApiKey", FieldGroup{Name: "empty"}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no fields")
}
