package schema

import (
	"encoding/json" // for json.Number, which goccy aliases
	"fmt"
	"time"
)

// DetectValueType names the runtime type of a settings or property value.
// The name feeds the "Actual:" half of type-mismatch validation errors.
func DetectValueType(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "Null"
	case bool:
		return "Boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Integer"
	case float32, float64:
		return "Number"
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return "Integer"
		}
		return "Number"
	case string:
		return "String"
	case []interface{}:
		return "List"
	case map[string]interface{}:
		return "Map"
	case time.Time:
		return "Timestamp"
	default:
		return "Unknown"
	}
}

// compatibleType applies the fixed compatibility table: Integer accepts any
// integral representation but rejects floating values, Number accepts any
// numeric representation, Boolean and String require the exact type.
func compatibleType(declared DataType, value interface{}) bool {
	switch declared {
	case DataTypeString:
		_, ok := value.(string)
		return ok
	case DataTypeBoolean:
		_, ok := value.(bool)
		return ok
	case DataTypeInteger:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case json.Number:
			_, err := v.Int64()
			return err == nil
		}
		return false
	case DataTypeNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
			return true
		}
		return false
	}
	return false
}

// valueEquals compares a runtime value against an allowed value across
// integer widths, so int8(3) matches an allowed value of 3.
func valueEquals(a, b interface{}) bool {
	if a == b {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// formatAllowedValues renders an allowed-value list for error messages.
func formatAllowedValues(values []interface{}) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%v", v)
	}
	return out
}
