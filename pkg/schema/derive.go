package schema

import (
	"fmt"
	"strings"
)

// DeriveOption customizes a derived schema at copy time.
type DeriveOption func(*Schema)

// WithDerivedDisplayName overrides the derived schema's display name.
func WithDerivedDisplayName(name string) DeriveOption {
	return func(s *Schema) {
		if name != "" {
			s.displayName = name
		}
	}
}

// Derive returns an independent copy of the schema: the identity triple is
// preserved verbatim, every collection is copied by value, and the
// strict/flexible mode carries over. The copy defaults its display name to
// "<source display name> (Copy)". Mutating the copy never affects the
// source, so tenant- or environment-specific variants can be shaped freely.
func (s *Schema) Derive(opts ...DeriveOption) *Schema {
	out := &Schema{
		identity:     s.identity,
		displayName:  s.displayName + " (Copy)",
		capabilities: s.capabilities,
		contentTypes: s.contentTypes,
		strict:       s.strict,
	}
	out.parameters = make([]Parameter, 0, len(s.parameters))
	for _, p := range s.parameters {
		out.parameters = append(out.parameters, p.clone())
	}
	out.properties = make([]MessageProperty, 0, len(s.properties))
	for _, p := range s.properties {
		out.properties = append(out.properties, p.clone())
	}
	out.endpoints = append([]EndpointConfig(nil), s.endpoints...)
	out.authConfigs = make([]AuthenticationConfiguration, 0, len(s.authConfigs))
	for _, c := range s.authConfigs {
		out.authConfigs = append(out.authConfigs, c.clone())
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// ValidateAsRestrictionOf checks that this schema is a true restriction of
// base: identical logical identity and every facet a subset of base's
// corresponding facet. Each violated facet yields one error naming the
// extra members. A schema that adds members beyond its base fails even
// though the identities still match.
func (s *Schema) ValidateAsRestrictionOf(base *Schema) *ValidationResult {
	result := NewValidationResult()
	if base == nil {
		result.Add("base schema must not be nil")
		return result
	}
	if !s.IsCompatibleWith(base) {
		result.Add(fmt.Sprintf("schema is not compatible with base '%s'", base.identity))
		return result
	}

	if extra := s.capabilities.Diff(base.capabilities); len(extra) > 0 {
		names := capabilityNameList(extra)
		result.Add(fmt.Sprintf("capabilities are not a subset of the base schema: %s", strings.Join(names, ", ")), names...)
	}

	if extra := missingNames(parameterNames(s.parameters), parameterNames(base.parameters)); len(extra) > 0 {
		result.Add(fmt.Sprintf("parameters are not a subset of the base schema: %s", strings.Join(extra, ", ")), extra...)
	}

	if extra := missingNames(propertyNames(s.properties), propertyNames(base.properties)); len(extra) > 0 {
		result.Add(fmt.Sprintf("message properties are not a subset of the base schema: %s", strings.Join(extra, ", ")), extra...)
	}

	if extra := s.contentTypes.Diff(base.contentTypes); len(extra) > 0 {
		names := contentTypeNameList(extra)
		result.Add(fmt.Sprintf("content types are not a subset of the base schema: %s", strings.Join(names, ", ")), names...)
	}

	if extra := missingNames(endpointNames(s.endpoints), endpointNames(base.endpoints)); len(extra) > 0 {
		result.Add(fmt.Sprintf("endpoint types are not a subset of the base schema: %s", strings.Join(extra, ", ")), extra...)
	}

	if extra := missingNames(authMethodNames(s.authConfigs), authMethodNames(base.authConfigs)); len(extra) > 0 {
		result.Add(fmt.Sprintf("authentication methods are not a subset of the base schema: %s", strings.Join(extra, ", ")), extra...)
	}

	return result
}

func capabilityNameList(caps []Capability) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, c.String())
	}
	return out
}

func contentTypeNameList(types []ContentType) []string {
	out := make([]string, 0, len(types))
	for _, c := range types {
		out = append(out, c.String())
	}
	return out
}

func parameterNames(ps []Parameter) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func propertyNames(ps []MessageProperty) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func endpointNames(es []EndpointConfig) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, string(e.Type))
	}
	return out
}

func authMethodNames(cs []AuthenticationConfiguration) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c.Method))
	}
	return out
}

// missingNames returns the members of names absent from base, matched
// case-insensitively, preserving declaration order.
func missingNames(names, base []string) []string {
	var out []string
	for _, n := range names {
		found := false
		for _, b := range base {
			if strings.EqualFold(n, b) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, n)
		}
	}
	return out
}
