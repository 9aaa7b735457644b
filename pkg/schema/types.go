// Package schema defines the channel descriptor: what a channel connector
// declares it supports (capabilities, parameters, message properties,
// endpoint types, content types, authentication methods) and the validation,
// derivation, and restriction rules enforced against that declaration.
package schema

import (
	"strings"

	"github.com/heraldhq/herald/pkg/errors"
)

// DataType is the declared type of a parameter or message property value.
type DataType string

const (
	DataTypeString  DataType = "String"
	DataTypeInteger DataType = "Integer"
	DataTypeNumber  DataType = "Number"
	DataTypeBoolean DataType = "Boolean"
)

// knownDataType reports whether dt is part of the closed type vocabulary.
func knownDataType(dt DataType) bool {
	switch dt {
	case DataTypeString, DataTypeInteger, DataTypeNumber, DataTypeBoolean:
		return true
	}
	return false
}

// EndpointType tags one side of a message. The vocabulary is open; the
// constants below cover the common cases. EndpointTypeAny is the wildcard:
// a schema declaring it accepts every endpoint type and may declare no
// other endpoint configs.
type EndpointType string

const (
	EndpointTypeAny         EndpointType = "Any"
	EndpointTypePhoneNumber EndpointType = "PhoneNumber"
	EndpointTypeEmail       EndpointType = "Email"
	EndpointTypeDeviceToken EndpointType = "DeviceToken"
	EndpointTypeUserID      EndpointType = "UserId"
)

// AuthMethod tags an authentication configuration.
type AuthMethod string

const (
	AuthMethodNone              AuthMethod = "None"
	AuthMethodBasic             AuthMethod = "Basic"
	AuthMethodAPIKey            AuthMethod = "ApiKey"
	AuthMethodBearerToken       AuthMethod = "BearerToken"
	AuthMethodClientCredentials AuthMethod = "ClientCredentials"
	AuthMethodCertificate       AuthMethod = "Certificate"
	AuthMethodCustom            AuthMethod = "Custom"
)

// FieldRole is the semantic role of an authentication field. Providers use
// roles, not field names, to locate the values they need, so a schema may
// call its username field "AccountSid" and Basic authentication still works.
type FieldRole string

const (
	FieldRoleUsername     FieldRole = "Username"
	FieldRolePassword     FieldRole = "Password"
	FieldRoleAPIKey       FieldRole = "ApiKey"
	FieldRoleToken        FieldRole = "Token"
	FieldRoleClientID     FieldRole = "ClientId"
	FieldRoleClientSecret FieldRole = "ClientSecret"
	FieldRoleTokenURL     FieldRole = "TokenUrl"
	FieldRoleScope        FieldRole = "Scope"
	FieldRoleCertificate  FieldRole = "Certificate"
	FieldRolePrivateKey   FieldRole = "PrivateKey"
	FieldRoleGeneric      FieldRole = "Generic"
)

// Parameter declares a connection setting the channel understands.
type Parameter struct {
	Name          string
	DataType      DataType
	Required      bool
	Sensitive     bool
	Default       interface{}
	AllowedValues []interface{}
}

// clone copies the parameter including its allowed-value slice.
func (p Parameter) clone() Parameter {
	out := p
	if p.AllowedValues != nil {
		out.AllowedValues = append([]interface{}(nil), p.AllowedValues...)
	}
	return out
}

// MessageProperty declares a per-message value the channel understands.
// It mirrors Parameter but lives in its own collection with its own
// uniqueness scope.
type MessageProperty struct {
	Name          string
	DataType      DataType
	Required      bool
	Sensitive     bool
	Default       interface{}
	AllowedValues []interface{}
}

func (p MessageProperty) clone() MessageProperty {
	out := p
	if p.AllowedValues != nil {
		out.AllowedValues = append([]interface{}(nil), p.AllowedValues...)
	}
	return out
}

// EndpointConfig declares an endpoint type the channel can address.
type EndpointConfig struct {
	Type       EndpointType
	CanSend    bool
	CanReceive bool
	Required   bool
}

// AuthField declares one named input of an authentication configuration.
type AuthField struct {
	Name          string
	Role          FieldRole
	Sensitive     bool
	AllowedValues []string
}

func (f AuthField) clone() AuthField {
	out := f
	if f.AllowedValues != nil {
		out.AllowedValues = append([]string(nil), f.AllowedValues...)
	}
	return out
}

// FieldGroup is one alternative set of fields under a flexible
// authentication configuration. Supplying every field of any single group
// satisfies the method.
type FieldGroup struct {
	Name   string
	Fields []AuthField
}

func (g FieldGroup) clone() FieldGroup {
	out := FieldGroup{Name: g.Name, Fields: make([]AuthField, 0, len(g.Fields))}
	for _, f := range g.Fields {
		out.Fields = append(out.Fields, f.clone())
	}
	return out
}

// AuthenticationConfiguration declares one way to authenticate against the
// provider. Fixed configurations list required fields; flexible ones list
// alternative field groups.
type AuthenticationConfiguration struct {
	Method      AuthMethod
	DisplayName string
	Fields      []AuthField
	Groups      []FieldGroup
}

// Flexible reports whether the configuration uses field groups.
func (c AuthenticationConfiguration) Flexible() bool {
	return len(c.Groups) > 0
}

// Display returns the configured display name, falling back to the method tag.
func (c AuthenticationConfiguration) Display() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return string(c.Method)
}

func (c AuthenticationConfiguration) clone() AuthenticationConfiguration {
	out := AuthenticationConfiguration{Method: c.Method, DisplayName: c.DisplayName}
	if c.Fields != nil {
		out.Fields = make([]AuthField, 0, len(c.Fields))
		for _, f := range c.Fields {
			out.Fields = append(out.Fields, f.clone())
		}
	}
	if c.Groups != nil {
		out.Groups = make([]FieldGroup, 0, len(c.Groups))
		for _, g := range c.Groups {
			out.Groups = append(out.Groups, g.clone())
		}
	}
	return out
}

// validate checks the configuration's internal consistency.
func (c AuthenticationConfiguration) validate() error {
	if c.Method == "" {
		return errors.New(errors.ErrorTypeValidation, "authentication method must not be empty")
	}
	if len(c.Fields) > 0 && len(c.Groups) > 0 {
		return errors.Newf(errors.ErrorTypeValidation,
			"authentication configuration '%s' cannot declare both fixed fields and field groups", c.Display())
	}
	seen := map[string]struct{}{}
	checkFields := func(fields []AuthField) error {
		for _, f := range fields {
			if f.Name == "" {
				return errors.Newf(errors.ErrorTypeValidation,
					"authentication configuration '%s' declares a field with an empty name", c.Display())
			}
			key := strings.ToLower(f.Name)
			if _, dup := seen[key]; dup {
				return errors.Newf(errors.ErrorTypeConflict,
					"authentication field '%s' is declared more than once in configuration '%s'", f.Name, c.Display())
			}
			seen[key] = struct{}{}
		}
		return nil
	}
	if err := checkFields(c.Fields); err != nil {
		return err
	}
	groupNames := map[string]struct{}{}
	for _, g := range c.Groups {
		if len(g.Fields) == 0 {
			return errors.Newf(errors.ErrorTypeValidation,
				"field group '%s' of configuration '%s' declares no fields", g.Name, c.Display())
		}
		key := strings.ToLower(g.Name)
		if _, dup := groupNames[key]; dup {
			return errors.Newf(errors.ErrorTypeConflict,
				"field group '%s' is declared more than once in configuration '%s'", g.Name, c.Display())
		}
		groupNames[key] = struct{}{}
		if err := checkFields(g.Fields); err != nil {
			return err
		}
	}
	return nil
}

// Identity is the logical identity of a schema: two schemas with equal
// identity triples describe "the same" channel across copies and tenants.
type Identity struct {
	Provider    string `json:"provider"`
	ChannelType string `json:"channelType"`
	Version     string `json:"version"`
}

// Equal compares identities using the case-insensitive name policy.
func (id Identity) Equal(other Identity) bool {
	return strings.EqualFold(id.Provider, other.Provider) &&
		strings.EqualFold(id.ChannelType, other.ChannelType) &&
		strings.EqualFold(id.Version, other.Version)
}

// String renders the identity as provider/channelType@version.
func (id Identity) String() string {
	return id.Provider + "/" + id.ChannelType + "@" + id.Version
}

// LookupSetting finds a settings value by name using the case-insensitive
// name policy shared by validation and authentication.
func LookupSetting(settings map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := settings[name]; ok {
		return v, true
	}
	for k, v := range settings {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// StringSetting returns the named settings value as a non-empty string.
func StringSetting(settings map[string]interface{}, name string) (string, bool) {
	v, ok := LookupSetting(settings, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
