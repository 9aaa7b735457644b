// Package settings provides the schema-bound store for connection settings.
// A Store holds the raw key/value pairs a channel is configured with and
// enforces the bound schema's parameter declarations on every write.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/schema"
)

// Store binds a settings map to the schema that declares its keys. Writes
// are validated immediately against the matching parameter declaration;
// required-parameter and authentication checks need the whole map and run
// in Validate. Key lookup is case-insensitive, matching the schema's name
// policy. A Store is not safe for concurrent mutation.
type Store struct {
	schema *schema.Schema
	values map[string]interface{}
}

// New returns an empty store bound to the given schema.
func New(s *schema.Schema) *Store {
	return &Store{schema: s, values: make(map[string]interface{})}
}

// NewFromMap builds a store from an existing settings map, validating every
// entry the way Set does. All problems are reported in one error.
func NewFromMap(s *schema.Schema, values map[string]interface{}) (*Store, error) {
	store := New(s)
	result := schema.NewValidationResult()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Merge(s.ValidateSettingValue(k, values[k]))
	}
	if !result.Valid() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "invalid settings: %s", result.Summary())
	}
	for _, k := range keys {
		store.values[k] = values[k]
	}
	return store, nil
}

// Schema returns the bound schema.
func (st *Store) Schema() *schema.Schema { return st.schema }

// Set stores a value after validating it against the matching parameter
// declaration. Unknown keys are rejected when the schema is strict.
func (st *Store) Set(name string, value interface{}) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrorTypeValidation, "setting name must not be empty")
	}
	if result := st.schema.ValidateSettingValue(name, value); !result.Valid() {
		return errors.Newf(errors.ErrorTypeValidation, "invalid setting: %s", result.Summary())
	}
	// Re-setting a key under a different casing replaces the original.
	for k := range st.values {
		if strings.EqualFold(k, name) && k != name {
			delete(st.values, k)
			break
		}
	}
	st.values[name] = value
	return nil
}

// Get returns the stored value for name, falling back to the parameter's
// declared default when the key was never set.
func (st *Store) Get(name string) (interface{}, bool) {
	if v, ok := schema.LookupSetting(st.values, name); ok {
		return v, true
	}
	if p, ok := st.schema.Parameter(name); ok && p.Default != nil {
		return p.Default, true
	}
	return nil, false
}

// Has reports whether the key was explicitly set, ignoring defaults.
func (st *Store) Has(name string) bool {
	_, ok := schema.LookupSetting(st.values, name)
	return ok
}

// GetString returns the named value as a string.
func (st *Store) GetString(name string) (string, bool) {
	v, ok := st.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the named value as an int, accepting any integral
// representation.
func (st *Store) GetInt(name string) (int, bool) {
	v, ok := st.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// GetBool returns the named value as a bool.
func (st *Store) GetBool(name string) (bool, bool) {
	v, ok := st.Get(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetFloat returns the named value as a float64, accepting any numeric
// representation.
func (st *Store) GetFloat(name string) (float64, bool) {
	v, ok := st.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Raw returns a copy of the explicitly set values, without defaults.
func (st *Store) Raw() map[string]interface{} {
	out := make(map[string]interface{}, len(st.values))
	for k, v := range st.values {
		out[k] = v
	}
	return out
}

// Len returns the number of explicitly set keys.
func (st *Store) Len() int { return len(st.values) }

// Validate runs the full connection-settings pass against the bound schema:
// required parameters, types, allowed values, unknown keys, and
// authentication satisfaction.
func (st *Store) Validate() *schema.ValidationResult {
	return st.schema.ValidateConnectionSettings(st.values)
}

// Fingerprint returns a stable content hash of the stored values. Keys are
// lowercased and sorted first, so logically equal settings always hash the
// same regardless of casing or insertion order. The authentication cache
// keys credentials by this value.
func (st *Store) Fingerprint() string {
	keys := make([]string, 0, len(st.values))
	for k := range st.values {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, _ := schema.LookupSetting(st.values, k)
		fmt.Fprintf(h, "%s=%v\n", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
