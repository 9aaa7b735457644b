package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCopiesSchema(t *testing.T) {
	base := testSchema(t)
	derived := base.Derive()

	assert.True(t, derived.Identity().Equal(base.Identity()), "identity is preserved verbatim")
	assert.Equal(t, "Twilio SMS (Copy)", derived.DisplayName())
	assert.Equal(t, base.Capabilities(), derived.Capabilities())
	assert.Equal(t, base.Parameters(), derived.Parameters())
	assert.Equal(t, base.Endpoints(), derived.Endpoints())
	assert.Equal(t, base.StrictValidation(), derived.StrictValidation())
}

func TestDeriveDisplayNameOption(t *testing.T) {
	base := testSchema(t)
	derived := base.Derive(WithDerivedDisplayName("Tenant A SMS"))
	assert.Equal(t, "Tenant A SMS", derived.DisplayName())
	assert.Equal(t, "Twilio SMS", base.DisplayName())
}

func TestDerivedSchemaIsIndependent(t *testing.T) {
	base := testSchema(t)
	derived := base.Derive()

	require.NoError(t, derived.AddParameter(Parameter{Name: "Extra", DataType: DataTypeString}))
	require.NoError(t, derived.RemoveCapability(CapabilityBatchSend))
	require.NoError(t, derived.RemoveContentType(ContentTypeTemplate))
	derived.SetDisplayName("changed")

	_, inBase := base.Parameter("Extra")
	assert.False(t, inBase, "adding to the copy must not touch the source")
	assert.True(t, base.HasCapability(CapabilityBatchSend))
	assert.True(t, base.ContentTypes().Has(ContentTypeTemplate))
	assert.Equal(t, "Twilio SMS", base.DisplayName())

	// Nested slices are copied too.
	p, ok := derived.Parameter("Region")
	require.True(t, ok)
	p.AllowedValues[0] = "mars"
	orig, _ := base.Parameter("Region")
	assert.Equal(t, "us1", orig.AllowedValues[0])
}

func TestValidateAsRestrictionOf(t *testing.T) {
	base := testSchema(t)

	t.Run("plain copy is a valid restriction", func(t *testing.T) {
		assert.True(t, base.Derive().ValidateAsRestrictionOf(base).Valid())
	})

	t.Run("narrowed copy is a valid restriction", func(t *testing.T) {
		derived := base.Derive()
		require.NoError(t, derived.RemoveCapability(CapabilityBatchSend))
		require.NoError(t, derived.RemoveParameter("MaxRetries"))
		require.NoError(t, derived.RemoveContentType(ContentTypeTemplate))
		assert.True(t, derived.ValidateAsRestrictionOf(base).Valid())
	})

	t.Run("added capability fails with one facet error", func(t *testing.T) {
		derived := base.Derive()
		require.NoError(t, derived.AddCapability(CapabilityReceive))
		result := derived.ValidateAsRestrictionOf(base)
		require.Equal(t, 1, result.Len(), "errors: %s", result.Summary())
		assert.Contains(t, result.Errors()[0].Message, "capabilities are not a subset of the base schema: Receive")
	})

	t.Run("each widened facet yields its own error", func(t *testing.T) {
		derived := base.Derive()
		require.NoError(t, derived.AddCapability(CapabilityReceive))
		require.NoError(t, derived.AddParameter(Parameter{Name: "Extra", DataType: DataTypeString}))
		require.NoError(t, derived.AddContentType(ContentTypeMedia))
		require.NoError(t, derived.AddAuthenticationConfiguration(AuthenticationConfiguration{
			Method: AuthMethodBearerToken, Fields: []AuthField{{Name: "Token", Role: FieldRoleToken}},
		}))

		result := derived.ValidateAsRestrictionOf(base)
		require.Equal(t, 4, result.Len(), "errors: %s", result.Summary())
		assert.Contains(t, result.Summary(), "capabilities are not a subset")
		assert.Contains(t, result.Summary(), "parameters are not a subset of the base schema: Extra")
		assert.Contains(t, result.Summary(), "content types are not a subset of the base schema: Media")
		assert.Contains(t, result.Summary(), "authentication methods are not a subset of the base schema: BearerToken")
	})

	t.Run("identity mismatch stops before facet checks", func(t *testing.T) {
		other, err := NewBuilder("vonage", "sms", "1.0.0").
			WithCapability(CapabilitySend).
			WithCapability(CapabilityReceive).
			WithContentType(ContentTypeText).
			Build()
		require.NoError(t, err)

		result := other.ValidateAsRestrictionOf(base)
		require.Equal(t, 1, result.Len())
		assert.Contains(t, result.Errors()[0].Message, "not compatible with base 'twilio/sms@1.0.0'")
	})

	t.Run("identity comparison is case-insensitive", func(t *testing.T) {
		other, err := NewBuilder("TWILIO", "SMS", "1.0.0").
			WithCapability(CapabilitySend).
			WithContentType(ContentTypeText).
			Build()
		require.NoError(t, err)
		assert.True(t, other.ValidateAsRestrictionOf(base).Valid())
	})

	t.Run("nil base", func(t *testing.T) {
		result := base.ValidateAsRestrictionOf(nil)
		require.Equal(t, 1, result.Len())
		assert.Contains(t, result.Errors()[0].Message, "must not be nil")
	})
}

func TestRestrictCapabilities(t *testing.T) {
	s := testSchema(t)
	s.RestrictCapabilities(NewCapabilitySet(CapabilitySend, CapabilityReceive))

	assert.True(t, s.HasCapability(CapabilitySend))
	assert.False(t, s.HasCapability(CapabilityReceive), "restriction never adds capabilities")
	assert.False(t, s.HasCapability(CapabilityBatchSend))
	assert.False(t, s.HasCapability(CapabilityHealthCheck))
}
