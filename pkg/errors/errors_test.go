package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeValidation, "bad input")
	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "validation: bad input", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrap(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeInternal, "should vanish"))
	})

	t.Run("foreign error", func(t *testing.T) {
		cause := fmt.Errorf("socket closed")
		err := Wrap(cause, ErrorTypeConnection, "provider unreachable")
		require.NotNil(t, err)
		assert.Equal(t, ErrorTypeConnection, err.Type)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "socket closed")
	})

	t.Run("preserves original stack", func(t *testing.T) {
		inner := New(ErrorTypeTimeout, "deadline hit")
		outer := Wrap(inner, ErrorTypeAuthentication, "token exchange failed")
		assert.Equal(t, inner.Stack[0], outer.Stack[0])
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limit", New(ErrorTypeRateLimit, "slow down"), true},
		{"timeout", New(ErrorTypeTimeout, "too slow"), true},
		{"connection", New(ErrorTypeConnection, "refused"), true},
		{"authentication", New(ErrorTypeAuthentication, "denied"), false},
		{"state", New(ErrorTypeState, "not ready"), false},
		{"capability", New(ErrorTypeCapability, "unsupported"), false},
		{"plain error", fmt.Errorf("anonymous"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestWithDetailAndCode(t *testing.T) {
	err := New(ErrorTypeConflict, "duplicate parameter").
		WithDetail("name", "ApiKey").
		WithCode("DUPLICATE_PARAMETER")

	assert.Equal(t, "ApiKey", err.Details["name"])
	assert.Equal(t, "DUPLICATE_PARAMETER", GetCode(err))
	assert.Equal(t, ErrorTypeConflict, GetType(err))
}

func TestGetTypeForeign(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, GetType(fmt.Errorf("opaque")))
	assert.Equal(t, "", GetCode(fmt.Errorf("opaque")))
}
