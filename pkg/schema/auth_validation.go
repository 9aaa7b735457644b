package schema

import (
	"fmt"
	"strings"
)

// methodOutcome is the evaluation of one authentication configuration
// against a settings map.
type methodOutcome struct {
	display   string
	satisfied bool
	// missing and invalid name the fixed-mode fields that failed
	missing []string
	invalid []string
	// pairNote describes a partially filled flexible group
	pairNote   string
	pairFields []string
}

// summary renders the outcome for the aggregate error message.
func (o methodOutcome) summary() string {
	var parts []string
	if len(o.missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(o.missing, ", "))
	}
	if len(o.invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(o.invalid, ", "))
	}
	if o.pairNote != "" {
		parts = append(parts, o.pairNote)
	}
	if len(parts) == 0 {
		return o.display
	}
	return fmt.Sprintf("%s (%s)", o.display, strings.Join(parts, "; "))
}

// fieldSatisfied reports whether the named authentication field is present
// in settings with a usable, allowed value. The second result is false when
// the field is present but fails its allowed-value check.
func fieldSatisfied(f AuthField, settings map[string]interface{}) (present bool, valid bool) {
	value, ok := LookupSetting(settings, f.Name)
	if !ok || value == nil {
		return false, false
	}
	if s, isString := value.(string); isString {
		if s == "" {
			return false, false
		}
		if len(f.AllowedValues) > 0 {
			for _, a := range f.AllowedValues {
				if a == s {
					return true, true
				}
			}
			return true, false
		}
	}
	return true, true
}

// evaluateAuthConfiguration checks one configuration. Fixed configurations
// need every field present and valid; flexible ones need any single group
// completely present.
func evaluateAuthConfiguration(cfg AuthenticationConfiguration, settings map[string]interface{}) methodOutcome {
	out := methodOutcome{display: cfg.Display()}

	if strings.EqualFold(string(cfg.Method), string(AuthMethodNone)) {
		out.satisfied = true
		return out
	}

	if !cfg.Flexible() {
		for _, f := range cfg.Fields {
			present, valid := fieldSatisfied(f, settings)
			switch {
			case !present:
				out.missing = append(out.missing, f.Name)
			case !valid:
				out.invalid = append(out.invalid, f.Name)
			}
		}
		out.satisfied = len(out.missing) == 0 && len(out.invalid) == 0
		return out
	}

	// Flexible: one complete group satisfies the method. A partially
	// filled group is reported as incomplete parameter pairs, naming the
	// counterpart fields still needed.
	bestPresent := 0
	var bestGroup *FieldGroup
	var bestMissing []string
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		presentCount := 0
		var missing []string
		for _, f := range g.Fields {
			present, valid := fieldSatisfied(f, settings)
			if present && valid {
				presentCount++
			} else {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) == 0 {
			out.satisfied = true
			return out
		}
		if presentCount > bestPresent {
			bestPresent = presentCount
			bestGroup = g
			bestMissing = missing
		}
	}
	if bestGroup != nil {
		out.pairNote = fmt.Sprintf("parameter pairs are incomplete: '%s' of group '%s' must be provided together",
			strings.Join(bestMissing, "', '"), bestGroup.Name)
		out.pairFields = bestMissing
	}
	return out
}

// authenticationFieldNames returns the name of every field declared by any
// authentication configuration, fixed or grouped.
func (s *Schema) authenticationFieldNames() []string {
	var names []string
	for _, c := range s.authConfigs {
		for _, f := range c.Fields {
			names = append(names, f.Name)
		}
		for _, g := range c.Groups {
			for _, f := range g.Fields {
				names = append(names, f.Name)
			}
		}
	}
	return names
}

// validateAuthentication appends the schema-level authentication
// satisfaction result: satisfaction is the OR across every configured
// method, and when none is satisfied exactly one aggregate error names
// every attempted method's display name.
func (s *Schema) validateAuthentication(result *ValidationResult, settings map[string]interface{}) {
	if len(s.authConfigs) == 0 {
		return
	}

	outcomes := make([]methodOutcome, 0, len(s.authConfigs))
	for _, cfg := range s.authConfigs {
		o := evaluateAuthConfiguration(cfg, settings)
		if o.satisfied {
			return
		}
		outcomes = append(outcomes, o)
	}

	var details []string
	var fields []string
	for _, o := range outcomes {
		details = append(details, o.summary())
		fields = append(fields, o.missing...)
		fields = append(fields, o.invalid...)
		fields = append(fields, o.pairFields...)
	}
	result.Add(
		fmt.Sprintf("no supported authentication method is satisfied: %s", strings.Join(details, "; ")),
		dedupeFields(fields)...)
}

// EvaluateAuthentication checks settings against a single authentication
// configuration, reporting one error per problem. The authentication
// subsystem runs this before extracting credential material so its failures
// name both the method and the offending fields.
func EvaluateAuthentication(cfg AuthenticationConfiguration, settings map[string]interface{}) *ValidationResult {
	result := NewValidationResult()
	o := evaluateAuthConfiguration(cfg, settings)
	if o.satisfied {
		return result
	}
	for _, name := range o.missing {
		result.Add(fmt.Sprintf("%s authentication requires field '%s'", o.display, name), name)
	}
	for _, name := range o.invalid {
		result.Add(fmt.Sprintf("%s authentication field '%s' has a value that is not allowed", o.display, name), name)
	}
	if o.pairNote != "" {
		result.Add(fmt.Sprintf("%s authentication %s", o.display, o.pairNote), o.pairFields...)
	}
	if result.Valid() {
		// Flexible configuration with nothing supplied at all.
		result.Add(fmt.Sprintf("%s authentication requires one complete field group", o.display))
	}
	return result
}

func dedupeFields(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		key := strings.ToLower(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
