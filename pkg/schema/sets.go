package schema

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/heraldhq/herald/pkg/errors"
)

// Capability is one named optional behavior a channel may support. The
// vocabulary is closed and small, so capabilities are bit flags and a
// schema's capability set is a bitmask with O(1) subset checks.
type Capability uint16

const (
	CapabilitySend Capability = 1 << iota
	CapabilityReceive
	CapabilityBatchSend
	CapabilityMessageStatus
	CapabilityStatusReceive
	CapabilityHealthCheck
	CapabilityTemplates
)

// allCapabilities lists the vocabulary in declaration order.
var allCapabilities = []Capability{
	CapabilitySend,
	CapabilityReceive,
	CapabilityBatchSend,
	CapabilityMessageStatus,
	CapabilityStatusReceive,
	CapabilityHealthCheck,
	CapabilityTemplates,
}

var capabilityNames = map[Capability]string{
	CapabilitySend:          "Send",
	CapabilityReceive:       "Receive",
	CapabilityBatchSend:     "BatchSend",
	CapabilityMessageStatus: "MessageStatus",
	CapabilityStatusReceive: "StatusReceive",
	CapabilityHealthCheck:   "HealthCheck",
	CapabilityTemplates:     "Templates",
}

// String returns the capability's name, or "Unknown" for values outside
// the vocabulary.
func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "Unknown"
}

// ParseCapability resolves a capability name case-insensitively.
func ParseCapability(name string) (Capability, error) {
	for c, n := range capabilityNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeValidation, "unknown capability '%s'", name)
}

// CapabilitySet is an immutable bitmask over the capability vocabulary.
// Operations return new sets; the zero value is the empty set.
type CapabilitySet uint16

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s = s.With(c)
	}
	return s
}

// Has reports membership.
func (s CapabilitySet) Has(c Capability) bool { return uint16(s)&uint16(c) != 0 }

// With returns the set plus c.
func (s CapabilitySet) With(c Capability) CapabilitySet { return s | CapabilitySet(c) }

// Without returns the set minus c.
func (s CapabilitySet) Without(c Capability) CapabilitySet { return s &^ CapabilitySet(c) }

// Union returns the union of both sets.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet { return s | other }

// Intersect returns the intersection of both sets.
func (s CapabilitySet) Intersect(other CapabilitySet) CapabilitySet { return s & other }

// IsSubsetOf reports whether every member of s is in other.
func (s CapabilitySet) IsSubsetOf(other CapabilitySet) bool { return s&^other == 0 }

// IsEmpty reports whether the set has no members.
func (s CapabilitySet) IsEmpty() bool { return s == 0 }

// Len returns the number of members.
func (s CapabilitySet) Len() int {
	n := 0
	for _, c := range allCapabilities {
		if s.Has(c) {
			n++
		}
	}
	return n
}

// Members returns the set's capabilities in declaration order.
func (s CapabilitySet) Members() []Capability {
	out := make([]Capability, 0, len(allCapabilities))
	for _, c := range allCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the set's capability names in declaration order.
func (s CapabilitySet) Names() []string {
	members := s.Members()
	out := make([]string, 0, len(members))
	for _, c := range members {
		out = append(out, c.String())
	}
	return out
}

// Diff returns the members of s that are missing from other.
func (s CapabilitySet) Diff(other CapabilitySet) []Capability {
	return CapabilitySet(uint16(s) &^ uint16(other)).Members()
}

// String renders the set as a comma-joined name list.
func (s CapabilitySet) String() string { return strings.Join(s.Names(), ", ") }

// MarshalJSON renders the set as an array of capability names.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON parses an array of capability names.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out CapabilitySet
	for _, name := range names {
		c, err := ParseCapability(name)
		if err != nil {
			return err
		}
		out = out.With(c)
	}
	*s = out
	return nil
}

// ContentType is one named message content kind from a closed vocabulary,
// represented as a bit flag for the same subset algebra capabilities use.
type ContentType uint16

const (
	ContentTypeText ContentType = 1 << iota
	ContentTypeMedia
	ContentTypeLocation
	ContentTypeContact
	ContentTypeTemplate
	ContentTypeInteractive
)

var allContentTypes = []ContentType{
	ContentTypeText,
	ContentTypeMedia,
	ContentTypeLocation,
	ContentTypeContact,
	ContentTypeTemplate,
	ContentTypeInteractive,
}

var contentTypeNames = map[ContentType]string{
	ContentTypeText:        "Text",
	ContentTypeMedia:       "Media",
	ContentTypeLocation:    "Location",
	ContentTypeContact:     "Contact",
	ContentTypeTemplate:    "Template",
	ContentTypeInteractive: "Interactive",
}

// String returns the content type's name, or "Unknown" for values outside
// the vocabulary.
func (c ContentType) String() string {
	if name, ok := contentTypeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// ParseContentType resolves a content-type name case-insensitively.
func ParseContentType(name string) (ContentType, error) {
	for c, n := range contentTypeNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeValidation, "unknown content type '%s'", name)
}

// ContentTypeSet is an immutable bitmask over the content-type vocabulary.
type ContentTypeSet uint16

// NewContentTypeSet builds a set from the given content types.
func NewContentTypeSet(types ...ContentType) ContentTypeSet {
	var s ContentTypeSet
	for _, c := range types {
		s = s.With(c)
	}
	return s
}

// Has reports membership.
func (s ContentTypeSet) Has(c ContentType) bool { return uint16(s)&uint16(c) != 0 }

// HasName reports membership by content-type name, case-insensitively.
func (s ContentTypeSet) HasName(name string) bool {
	c, err := ParseContentType(name)
	if err != nil {
		return false
	}
	return s.Has(c)
}

// With returns the set plus c.
func (s ContentTypeSet) With(c ContentType) ContentTypeSet { return s | ContentTypeSet(c) }

// Without returns the set minus c.
func (s ContentTypeSet) Without(c ContentType) ContentTypeSet { return s &^ ContentTypeSet(c) }

// IsSubsetOf reports whether every member of s is in other.
func (s ContentTypeSet) IsSubsetOf(other ContentTypeSet) bool { return s&^other == 0 }

// IsEmpty reports whether the set has no members.
func (s ContentTypeSet) IsEmpty() bool { return s == 0 }

// Members returns the set's content types in declaration order.
func (s ContentTypeSet) Members() []ContentType {
	out := make([]ContentType, 0, len(allContentTypes))
	for _, c := range allContentTypes {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the set's content-type names in declaration order.
func (s ContentTypeSet) Names() []string {
	members := s.Members()
	out := make([]string, 0, len(members))
	for _, c := range members {
		out = append(out, c.String())
	}
	return out
}

// Diff returns the members of s that are missing from other.
func (s ContentTypeSet) Diff(other ContentTypeSet) []ContentType {
	return ContentTypeSet(uint16(s) &^ uint16(other)).Members()
}

// String renders the set as a comma-joined name list.
func (s ContentTypeSet) String() string { return strings.Join(s.Names(), ", ") }

// MarshalJSON renders the set as an array of content-type names.
func (s ContentTypeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON parses an array of content-type names.
func (s *ContentTypeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out ContentTypeSet
	for _, name := range names {
		c, err := ParseContentType(name)
		if err != nil {
			return err
		}
		out = out.With(c)
	}
	*s = out
	return nil
}
