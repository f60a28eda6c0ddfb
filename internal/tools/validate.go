package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/focusdeck/focusdeck/pkg/types"
)

// validateAgainst checks args against a capability's parameter definitions:
// required parameters present, types as declared, validation bounds honored,
// no undeclared parameters.
func validateAgainst(cap ToolCapability, args map[string]any) error {
	defs := make(map[string]ParameterDefinition, len(cap.Parameters))
	for _, def := range cap.Parameters {
		defs[def.Name] = def
		if def.Required {
			if _, ok := args[def.Name]; !ok {
				return types.NewValidationError(
					fmt.Sprintf("%s: missing required parameter %q", cap.Name, def.Name), nil)
			}
		}
	}

	for name, value := range args {
		def, ok := defs[name]
		if !ok {
			return types.NewValidationError(
				fmt.Sprintf("%s: unknown parameter %q", cap.Name, name), nil)
		}
		if err := validateValue(cap.Name, def, value); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(tool string, def ParameterDefinition, value any) error {
	fail := func(format string, args ...any) error {
		return types.NewValidationError(
			fmt.Sprintf("%s: parameter %q %s", tool, def.Name, fmt.Sprintf(format, args...)), nil)
	}

	switch def.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fail("must be a string")
		}
		if v := def.Validation; v != nil {
			// Whitespace-only values do not satisfy a minimum length.
			if v.MinLength > 0 && len(strings.TrimSpace(s)) < v.MinLength {
				return fail("must be at least %d characters", v.MinLength)
			}
			if v.MaxLength > 0 && len(s) > v.MaxLength {
				return fail("must be at most %d characters", v.MaxLength)
			}
			if v.Pattern != "" {
				re, err := regexp.Compile(v.Pattern)
				if err == nil && !re.MatchString(s) {
					return fail("does not match expected format")
				}
			}
			if len(v.AllowedValues) > 0 && !allowed(v.AllowedValues, s) {
				return fail("must be one of %v", v.AllowedValues)
			}
		}

	case "number":
		n, ok := toFloat(value)
		if !ok {
			return fail("must be a number")
		}
		if v := def.Validation; v != nil {
			if v.MinValue != nil && n < *v.MinValue {
				return fail("must be at least %v", *v.MinValue)
			}
			if v.MaxValue != nil && n > *v.MaxValue {
				return fail("must be at most %v", *v.MaxValue)
			}
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			return fail("must be a boolean")
		}

	case "array":
		switch value.(type) {
		case []any, []string:
		default:
			return fail("must be an array")
		}
	}

	return nil
}

// toFloat accepts the numeric types JSON decoding and callers produce.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func allowed(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
