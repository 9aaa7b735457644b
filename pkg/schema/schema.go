package schema

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/heraldhq/herald/pkg/errors"
)

// Schema is the declarative descriptor of a channel: its logical identity,
// the capabilities it offers, the connection parameters and message
// properties it understands, the endpoint and content types it accepts, and
// the authentication methods it supports.
//
// A Schema is assembled once through a Builder at registration time and
// treated as read-mostly afterwards; the mutation methods exist for
// assembly and for shaping derived copies. They are not safe for concurrent
// use with readers.
type Schema struct {
	identity    Identity
	displayName string

	capabilities CapabilitySet
	parameters   []Parameter
	properties   []MessageProperty
	endpoints    []EndpointConfig
	contentTypes ContentTypeSet
	authConfigs  []AuthenticationConfiguration

	// strict rejects unknown settings keys and message properties;
	// flexible mode suppresses only that check
	strict bool
}

// Identity returns the schema's logical identity triple.
func (s *Schema) Identity() Identity { return s.identity }

// Provider returns the provider id of the identity triple.
func (s *Schema) Provider() string { return s.identity.Provider }

// ChannelType returns the channel-type id of the identity triple.
func (s *Schema) ChannelType() string { return s.identity.ChannelType }

// Version returns the version string of the identity triple.
func (s *Schema) Version() string { return s.identity.Version }

// DisplayName returns the human-readable schema name.
func (s *Schema) DisplayName() string { return s.displayName }

// SetDisplayName replaces the human-readable schema name.
func (s *Schema) SetDisplayName(name string) { s.displayName = name }

// Capabilities returns the capability set.
func (s *Schema) Capabilities() CapabilitySet { return s.capabilities }

// HasCapability reports whether the schema declares c.
func (s *Schema) HasCapability(c Capability) bool { return s.capabilities.Has(c) }

// ContentTypes returns the supported content-type set.
func (s *Schema) ContentTypes() ContentTypeSet { return s.contentTypes }

// StrictValidation reports whether unknown keys are rejected.
func (s *Schema) StrictValidation() bool { return s.strict }

// SetStrictValidation toggles rejection of unknown keys.
func (s *Schema) SetStrictValidation(strict bool) { s.strict = strict }

// Parameters returns a copy of the parameter declarations in order.
func (s *Schema) Parameters() []Parameter {
	out := make([]Parameter, 0, len(s.parameters))
	for _, p := range s.parameters {
		out = append(out, p.clone())
	}
	return out
}

// MessageProperties returns a copy of the message-property declarations.
func (s *Schema) MessageProperties() []MessageProperty {
	out := make([]MessageProperty, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, p.clone())
	}
	return out
}

// Endpoints returns a copy of the endpoint declarations.
func (s *Schema) Endpoints() []EndpointConfig {
	return append([]EndpointConfig(nil), s.endpoints...)
}

// AuthenticationConfigurations returns a copy of the authentication
// declarations in order.
func (s *Schema) AuthenticationConfigurations() []AuthenticationConfiguration {
	out := make([]AuthenticationConfiguration, 0, len(s.authConfigs))
	for _, c := range s.authConfigs {
		out = append(out, c.clone())
	}
	return out
}

// Parameter looks up a parameter declaration by name, case-insensitively.
func (s *Schema) Parameter(name string) (Parameter, bool) {
	for _, p := range s.parameters {
		if strings.EqualFold(p.Name, name) {
			return p.clone(), true
		}
	}
	return Parameter{}, false
}

// MessageProperty looks up a message-property declaration by name.
func (s *Schema) MessageProperty(name string) (MessageProperty, bool) {
	for _, p := range s.properties {
		if strings.EqualFold(p.Name, name) {
			return p.clone(), true
		}
	}
	return MessageProperty{}, false
}

// Endpoint looks up an endpoint declaration by type tag.
func (s *Schema) Endpoint(t EndpointType) (EndpointConfig, bool) {
	for _, e := range s.endpoints {
		if strings.EqualFold(string(e.Type), string(t)) {
			return e, true
		}
	}
	return EndpointConfig{}, false
}

// HasWildcardEndpoint reports whether the schema declares the "Any"
// endpoint type.
func (s *Schema) HasWildcardEndpoint() bool {
	_, ok := s.Endpoint(EndpointTypeAny)
	return ok
}

// AuthenticationConfiguration looks up an authentication declaration by
// method tag.
func (s *Schema) AuthenticationConfiguration(method AuthMethod) (AuthenticationConfiguration, bool) {
	for _, c := range s.authConfigs {
		if strings.EqualFold(string(c.Method), string(method)) {
			return c.clone(), true
		}
	}
	return AuthenticationConfiguration{}, false
}

// RequiresAuthentication reports whether any configured method other than
// None must be satisfied before the connector can initialize.
func (s *Schema) RequiresAuthentication() bool {
	for _, c := range s.authConfigs {
		if !strings.EqualFold(string(c.Method), string(AuthMethodNone)) {
			return true
		}
	}
	return false
}

// IsCompatibleWith reports whether both schemas share a logical identity.
func (s *Schema) IsCompatibleWith(other *Schema) bool {
	if other == nil {
		return false
	}
	return s.identity.Equal(other.identity)
}

// AddCapability declares a capability. Re-declaring one is a conflict.
func (s *Schema) AddCapability(c Capability) error {
	if _, ok := capabilityNames[c]; !ok {
		return errors.Newf(errors.ErrorTypeValidation, "unknown capability value %d", c)
	}
	if s.capabilities.Has(c) {
		return errors.Newf(errors.ErrorTypeConflict, "capability '%s' is already declared", c)
	}
	s.capabilities = s.capabilities.With(c)
	return nil
}

// RemoveCapability withdraws a capability declaration.
func (s *Schema) RemoveCapability(c Capability) error {
	if !s.capabilities.Has(c) {
		return errors.Newf(errors.ErrorTypeNotFound, "capability '%s' is not declared", c)
	}
	s.capabilities = s.capabilities.Without(c)
	return nil
}

// RestrictCapabilities intersects the declared capabilities with allowed,
// used when shaping a derived schema down to a tenant's entitlements.
func (s *Schema) RestrictCapabilities(allowed CapabilitySet) {
	s.capabilities = s.capabilities.Intersect(allowed)
}

// AddParameter declares a connection parameter. Names are unique within the
// schema's parameters, case-insensitively.
func (s *Schema) AddParameter(p Parameter) error {
	if p.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "parameter name must not be empty")
	}
	if !knownDataType(p.DataType) {
		return errors.Newf(errors.ErrorTypeValidation, "parameter '%s' has unknown data type '%s'", p.Name, p.DataType)
	}
	if _, exists := s.Parameter(p.Name); exists {
		return errors.Newf(errors.ErrorTypeConflict, "parameter '%s' is already declared", p.Name)
	}
	s.parameters = append(s.parameters, p.clone())
	return nil
}

// UpdateParameter replaces an existing parameter declaration in place,
// matched by name.
func (s *Schema) UpdateParameter(p Parameter) error {
	if !knownDataType(p.DataType) {
		return errors.Newf(errors.ErrorTypeValidation, "parameter '%s' has unknown data type '%s'", p.Name, p.DataType)
	}
	for i := range s.parameters {
		if strings.EqualFold(s.parameters[i].Name, p.Name) {
			s.parameters[i] = p.clone()
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeNotFound, "parameter '%s' is not declared", p.Name)
}

// RemoveParameter withdraws a parameter declaration by name.
func (s *Schema) RemoveParameter(name string) error {
	for i := range s.parameters {
		if strings.EqualFold(s.parameters[i].Name, name) {
			s.parameters = append(s.parameters[:i], s.parameters[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeNotFound, "parameter '%s' is not declared", name)
}

// AddMessageProperty declares a message property.
func (s *Schema) AddMessageProperty(p MessageProperty) error {
	if p.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "message property name must not be empty")
	}
	if !knownDataType(p.DataType) {
		return errors.Newf(errors.ErrorTypeValidation, "message property '%s' has unknown data type '%s'", p.Name, p.DataType)
	}
	if _, exists := s.MessageProperty(p.Name); exists {
		return errors.Newf(errors.ErrorTypeConflict, "message property '%s' is already declared", p.Name)
	}
	s.properties = append(s.properties, p.clone())
	return nil
}

// UpdateMessageProperty replaces an existing message-property declaration.
func (s *Schema) UpdateMessageProperty(p MessageProperty) error {
	if !knownDataType(p.DataType) {
		return errors.Newf(errors.ErrorTypeValidation, "message property '%s' has unknown data type '%s'", p.Name, p.DataType)
	}
	for i := range s.properties {
		if strings.EqualFold(s.properties[i].Name, p.Name) {
			s.properties[i] = p.clone()
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeNotFound, "message property '%s' is not declared", p.Name)
}

// RemoveMessageProperty withdraws a message-property declaration by name.
func (s *Schema) RemoveMessageProperty(name string) error {
	for i := range s.properties {
		if strings.EqualFold(s.properties[i].Name, name) {
			s.properties = append(s.properties[:i], s.properties[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeNotFound, "message property '%s' is not declared", name)
}

// AddEndpoint declares an endpoint type. The wildcard type excludes every
// other declaration, in both directions.
func (s *Schema) AddEndpoint(e EndpointConfig) error {
	if e.Type == "" {
		return errors.New(errors.ErrorTypeValidation, "endpoint type must not be empty")
	}
	if _, exists := s.Endpoint(e.Type); exists {
		return errors.Newf(errors.ErrorTypeConflict, "endpoint type '%s' is already declared", e.Type)
	}
	wildcard := strings.EqualFold(string(e.Type), string(EndpointTypeAny))
	if wildcard && len(s.endpoints) > 0 {
		return errors.New(errors.ErrorTypeConflict,
			"the wildcard endpoint type cannot be combined with other endpoint types")
	}
	if !wildcard && s.HasWildcardEndpoint() {
		return errors.Newf(errors.ErrorTypeConflict,
			"endpoint type '%s' cannot be added alongside the wildcard endpoint type", e.Type)
	}
	s.endpoints = append(s.endpoints, e)
	return nil
}

// RemoveEndpoint withdraws an endpoint declaration by type tag.
func (s *Schema) RemoveEndpoint(t EndpointType) error {
	for i := range s.endpoints {
		if strings.EqualFold(string(s.endpoints[i].Type), string(t)) {
			s.endpoints = append(s.endpoints[:i], s.endpoints[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeNotFound, "endpoint type '%s' is not declared", t)
}

// AddContentType declares a supported content type.
func (s *Schema) AddContentType(c ContentType) error {
	if _, ok := contentTypeNames[c]; !ok {
		return errors.Newf(errors.ErrorTypeValidation, "unknown content type value %d", c)
	}
	if s.contentTypes.Has(c) {
		return errors.Newf(errors.ErrorTypeConflict, "content type '%s' is already declared", c)
	}
	s.contentTypes = s.contentTypes.With(c)
	return nil
}

// RemoveContentType withdraws a content-type declaration.
func (s *Schema) RemoveContentType(c ContentType) error {
	if !s.contentTypes.Has(c) {
		return errors.Newf(errors.ErrorTypeNotFound, "content type '%s' is not declared", c)
	}
	s.contentTypes = s.contentTypes.Without(c)
	return nil
}

// AddAuthenticationConfiguration declares an authentication method. Method
// tags are unique within the schema, case-insensitively.
func (s *Schema) AddAuthenticationConfiguration(cfg AuthenticationConfiguration) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if _, exists := s.AuthenticationConfiguration(cfg.Method); exists {
		return errors.Newf(errors.ErrorTypeConflict, "authentication method '%s' is already declared", cfg.Method)
	}
	s.authConfigs = append(s.authConfigs, cfg.clone())
	return nil
}

// RemoveAuthenticationConfiguration withdraws an authentication method.
func (s *Schema) RemoveAuthenticationConfiguration(method AuthMethod) error {
	for i := range s.authConfigs {
		if strings.EqualFold(string(s.authConfigs[i].Method), string(method)) {
			s.authConfigs = append(s.authConfigs[:i], s.authConfigs[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeNotFound, "authentication method '%s' is not declared", method)
}

// schemaDocument is the serialized shape of a Schema.
type schemaDocument struct {
	Identity     Identity                 `json:"identity"`
	DisplayName  string                   `json:"displayName"`
	Capabilities CapabilitySet            `json:"capabilities"`
	Parameters   []parameterDocument      `json:"parameters,omitempty"`
	Properties   []parameterDocument      `json:"messageProperties,omitempty"`
	Endpoints    []endpointDocument       `json:"endpoints,omitempty"`
	ContentTypes ContentTypeSet           `json:"contentTypes"`
	AuthConfigs  []authenticationDocument `json:"authentication,omitempty"`
	Strict       bool                     `json:"strictValidation"`
}

type parameterDocument struct {
	Name          string        `json:"name"`
	DataType      DataType      `json:"dataType"`
	Required      bool          `json:"required"`
	Sensitive     bool          `json:"sensitive,omitempty"`
	Default       interface{}   `json:"default,omitempty"`
	AllowedValues []interface{} `json:"allowedValues,omitempty"`
}

type endpointDocument struct {
	Type       EndpointType `json:"type"`
	CanSend    bool         `json:"canSend"`
	CanReceive bool         `json:"canReceive"`
	Required   bool         `json:"required,omitempty"`
}

type authenticationDocument struct {
	Method      AuthMethod           `json:"method"`
	DisplayName string               `json:"displayName,omitempty"`
	Fields      []authFieldDocument  `json:"fields,omitempty"`
	Groups      []fieldGroupDocument `json:"groups,omitempty"`
}

type authFieldDocument struct {
	Name          string    `json:"name"`
	Role          FieldRole `json:"role"`
	Sensitive     bool      `json:"sensitive,omitempty"`
	AllowedValues []string  `json:"allowedValues,omitempty"`
}

type fieldGroupDocument struct {
	Name   string              `json:"name"`
	Fields []authFieldDocument `json:"fields"`
}

// MarshalJSON renders the full descriptor, with capability and content-type
// sets expanded to name arrays.
func (s *Schema) MarshalJSON() ([]byte, error) {
	doc := schemaDocument{
		Identity:     s.identity,
		DisplayName:  s.displayName,
		Capabilities: s.capabilities,
		ContentTypes: s.contentTypes,
		Strict:       s.strict,
	}
	for _, p := range s.parameters {
		doc.Parameters = append(doc.Parameters, parameterDocument{
			Name: p.Name, DataType: p.DataType, Required: p.Required,
			Sensitive: p.Sensitive, Default: p.Default, AllowedValues: p.AllowedValues,
		})
	}
	for _, p := range s.properties {
		doc.Properties = append(doc.Properties, parameterDocument{
			Name: p.Name, DataType: p.DataType, Required: p.Required,
			Sensitive: p.Sensitive, Default: p.Default, AllowedValues: p.AllowedValues,
		})
	}
	for _, e := range s.endpoints {
		doc.Endpoints = append(doc.Endpoints, endpointDocument{
			Type: e.Type, CanSend: e.CanSend, CanReceive: e.CanReceive, Required: e.Required,
		})
	}
	for _, c := range s.authConfigs {
		ad := authenticationDocument{Method: c.Method, DisplayName: c.DisplayName}
		for _, f := range c.Fields {
			ad.Fields = append(ad.Fields, authFieldDocument{
				Name: f.Name, Role: f.Role, Sensitive: f.Sensitive, AllowedValues: f.AllowedValues,
			})
		}
		for _, g := range c.Groups {
			gd := fieldGroupDocument{Name: g.Name}
			for _, f := range g.Fields {
				gd.Fields = append(gd.Fields, authFieldDocument{
					Name: f.Name, Role: f.Role, Sensitive: f.Sensitive, AllowedValues: f.AllowedValues,
				})
			}
			ad.Groups = append(ad.Groups, gd)
		}
		doc.AuthConfigs = append(doc.AuthConfigs, ad)
	}
	return json.Marshal(doc)
}
