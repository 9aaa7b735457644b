package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heraldhq/herald/pkg/message"
)

// ValidationError is one problem found by a validation pass: a message and
// the settings keys or message fields it concerns.
type ValidationError struct {
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string { return e.Message }

// ValidationResult accumulates every problem a validation pass finds.
// Checks never short-circuit: callers can enumerate the complete list from
// a single call.
type ValidationResult struct {
	errs []ValidationError
}

// NewValidationResult returns an empty result.
func NewValidationResult() *ValidationResult { return &ValidationResult{} }

// Valid reports whether no errors were recorded.
func (r *ValidationResult) Valid() bool { return len(r.errs) == 0 }

// Len returns the number of recorded errors.
func (r *ValidationResult) Len() int { return len(r.errs) }

// Errors returns the recorded errors in the order they were found.
func (r *ValidationResult) Errors() []ValidationError {
	return append([]ValidationError(nil), r.errs...)
}

// Add records an error message with the offending field names.
func (r *ValidationResult) Add(msg string, fields ...string) {
	r.errs = append(r.errs, ValidationError{Message: msg, Fields: fields})
}

// AddError records a pre-built error.
func (r *ValidationResult) AddError(err ValidationError) {
	r.errs = append(r.errs, err)
}

// Merge appends every error from other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.errs = append(r.errs, other.errs...)
}

// Summary joins all error messages for logging.
func (r *ValidationResult) Summary() string {
	if len(r.errs) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(r.errs))
	for _, e := range r.errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// valueDecl is the common view of Parameter and MessageProperty used by the
// shared validation loop.
type valueDecl struct {
	name     string
	dataType DataType
	required bool
	allowed  []interface{}
}

func paramDecls(ps []Parameter) []valueDecl {
	out := make([]valueDecl, 0, len(ps))
	for _, p := range ps {
		out = append(out, valueDecl{name: p.Name, dataType: p.DataType, required: p.Required, allowed: p.AllowedValues})
	}
	return out
}

func propertyDecls(ps []MessageProperty) []valueDecl {
	out := make([]valueDecl, 0, len(ps))
	for _, p := range ps {
		out = append(out, valueDecl{name: p.Name, dataType: p.DataType, required: p.Required, allowed: p.AllowedValues})
	}
	return out
}

// validateDeclared runs the required/type/allowed-value checks of every
// declaration against the given values, then the strict-mode unknown-key
// check. Keys in alsoKnown are exempt from the unknown-key check without
// being validated here. Declarations are checked in declaration order;
// unknown keys are reported in sorted order so results are deterministic.
func validateDeclared(result *ValidationResult, decls []valueDecl, values map[string]interface{}, strict bool, kind string, alsoKnown []string) {
	for _, d := range decls {
		value, present := LookupSetting(values, d.name)
		if !present || value == nil {
			if d.required {
				result.Add(fmt.Sprintf("required %s '%s' is missing", kind, d.name), d.name)
			}
			continue
		}
		if !compatibleType(d.dataType, value) {
			result.Add(fmt.Sprintf("%s '%s' has an incompatible type. Expected: %s, Actual: %s",
				kind, d.name, d.dataType, DetectValueType(value)), d.name)
			continue
		}
		if len(d.allowed) > 0 && !allowedMember(d.allowed, value) {
			result.Add(fmt.Sprintf("%s '%s' has a value that is not allowed. Allowed values: %s",
				kind, d.name, formatAllowedValues(d.allowed)), d.name)
		}
	}

	if !strict {
		return
	}
	var unknown []string
	for key := range values {
		if declaredName(decls, key) || nameListed(alsoKnown, key) {
			continue
		}
		unknown = append(unknown, key)
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		result.Add(fmt.Sprintf("unknown %s '%s'", kind, key), key)
	}
}

func declaredName(decls []valueDecl, name string) bool {
	for _, d := range decls {
		if strings.EqualFold(d.name, name) {
			return true
		}
	}
	return false
}

func nameListed(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func allowedMember(allowed []interface{}, value interface{}) bool {
	for _, a := range allowed {
		if valueEquals(a, value) {
			return true
		}
	}
	return false
}

// ValidateConnectionSettings checks the given settings against every
// parameter declaration and the schema's authentication requirements. All
// problems are reported in one result. Settings maps carry authentication
// field values alongside parameters, so auth field names never trip the
// strict-mode unknown-key check.
func (s *Schema) ValidateConnectionSettings(settings map[string]interface{}) *ValidationResult {
	result := NewValidationResult()
	validateDeclared(result, paramDecls(s.parameters), settings, s.strict, "parameter", s.authenticationFieldNames())
	s.validateAuthentication(result, settings)
	return result
}

// ValidateSettingValue checks a single settings key against its parameter
// declaration: type and allowed-value checks for declared parameters, the
// unknown-key check in strict mode. Required and authentication checks need
// the whole settings map and are left to ValidateConnectionSettings.
func (s *Schema) ValidateSettingValue(name string, value interface{}) *ValidationResult {
	result := NewValidationResult()
	p, declared := s.Parameter(name)
	if !declared {
		if s.strict && !nameListed(s.authenticationFieldNames(), name) {
			result.Add(fmt.Sprintf("unknown parameter '%s'", name), name)
		}
		return result
	}
	if value == nil {
		return result
	}
	if !compatibleType(p.DataType, value) {
		result.Add(fmt.Sprintf("parameter '%s' has an incompatible type. Expected: %s, Actual: %s",
			p.Name, p.DataType, DetectValueType(value)), p.Name)
		return result
	}
	if len(p.AllowedValues) > 0 && !allowedMember(p.AllowedValues, value) {
		result.Add(fmt.Sprintf("parameter '%s' has a value that is not allowed. Allowed values: %s",
			p.Name, formatAllowedValues(p.AllowedValues)), p.Name)
	}
	return result
}

// ValidateMessageProperties checks per-message property values against the
// message-property declarations using the same algorithm as connection
// settings.
func (s *Schema) ValidateMessageProperties(properties map[string]interface{}) *ValidationResult {
	result := NewValidationResult()
	validateDeclared(result, propertyDecls(s.properties), properties, s.strict, "message property", nil)
	return result
}

// ValidateMessage runs the full outgoing-message pipeline: identity checks,
// endpoint-type gating, content-type gating, and property validation.
func (s *Schema) ValidateMessage(msg *message.Message) *ValidationResult {
	result := NewValidationResult()
	if msg == nil {
		result.Add("message must not be nil")
		return result
	}

	if strings.TrimSpace(msg.ID) == "" {
		result.Add("message id is missing or empty", "id")
	}

	if s.HasWildcardEndpoint() {
		if msg.Receiver.Type == "" && msg.Receiver.Address == "" {
			result.Add("receiver endpoint is missing", "receiver")
		}
	} else {
		if msg.Sender.Type == "" {
			if s.requiresSenderEndpoint() {
				result.Add("sender endpoint is required", "sender")
			}
		} else if ep, ok := s.Endpoint(EndpointType(msg.Sender.Type)); !ok || !ep.CanSend {
			result.Add(fmt.Sprintf("Sender endpoint type '%s' is not supported", msg.Sender.Type), "sender")
		}

		if msg.Receiver.Type == "" {
			result.Add("receiver endpoint is missing", "receiver")
		} else if ep, ok := s.Endpoint(EndpointType(msg.Receiver.Type)); !ok || !ep.CanReceive {
			result.Add(fmt.Sprintf("Receiver endpoint type '%s' is not supported", msg.Receiver.Type), "receiver")
		}
	}

	if msg.ContentType == "" {
		result.Add("message content type is missing", "contentType")
	} else if !s.contentTypes.HasName(msg.ContentType) {
		result.Add(fmt.Sprintf("content type '%s' is not supported by this channel", msg.ContentType), "contentType")
	}

	result.Merge(s.ValidateMessageProperties(msg.Properties))
	return result
}

// requiresSenderEndpoint reports whether any declared endpoint marks a
// sending endpoint as required.
func (s *Schema) requiresSenderEndpoint() bool {
	for _, e := range s.endpoints {
		if e.Required && e.CanSend {
			return true
		}
	}
	return false
}
