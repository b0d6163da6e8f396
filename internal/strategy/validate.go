package strategy

import (
	"fmt"
	"sort"

	"github.com/strategylab/core/pkg/models"
)

// ValidateParams resolves a raw params map against its declared schema:
// unknown keys are rejected, numeric ranges are enforced, select options
// are checked, and type mismatches are rejected. It returns the first
// violation found; callers that need every violation should use
// CollectViolations instead.
func ValidateParams(schema models.ParamSchema, params map[string]interface{}) error {
	violations := CollectViolations(schema, params)
	if len(violations) > 0 {
		return fmt.Errorf("strategy: invalid params: %s", violations[0])
	}
	return nil
}

// CollectViolations runs the full parameter validation contract and
// returns every violation found, in a stable order (unknown keys first,
// sorted by name; then missing-required, range, option, and type errors
// in schema declaration order). An empty slice means params is valid.
func CollectViolations(schema models.ParamSchema, params map[string]interface{}) []string {
	var violations []string

	known := make(map[string]bool, len(schema.Specs))
	for _, spec := range schema.Specs {
		known[spec.Name] = true
	}
	var unknown []string
	for name := range params {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		violations = append(violations, fmt.Sprintf("unknown parameter %q", name))
	}

	for _, spec := range schema.Specs {
		value, present := params[spec.Name]
		if !present {
			if spec.Required && spec.Default == nil {
				violations = append(violations, fmt.Sprintf("missing required parameter %q", spec.Name))
			}
			continue
		}
		if v := validateOne(spec, value); v != "" {
			violations = append(violations, v)
		}
	}
	return violations
}

func validateOne(spec models.ParamSpec, value interface{}) string {
	switch spec.Type {
	case models.ParamInt:
		n, ok := asFloat(value)
		if !ok {
			return fmt.Sprintf("parameter %q must be an integer", spec.Name)
		}
		if n != float64(int64(n)) {
			return fmt.Sprintf("parameter %q must be an integer", spec.Name)
		}
		return checkRange(spec, n)
	case models.ParamFloat:
		n, ok := asFloat(value)
		if !ok {
			return fmt.Sprintf("parameter %q must be a number", spec.Name)
		}
		return checkRange(spec, n)
	case models.ParamBool:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("parameter %q must be a boolean", spec.Name)
		}
	case models.ParamString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("parameter %q must be a string", spec.Name)
		}
	case models.ParamSelect:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("parameter %q must be a string", spec.Name)
		}
		if len(spec.Options) > 0 && !contains(spec.Options, s) {
			return fmt.Sprintf("parameter %q: %q is not one of %v", spec.Name, s, spec.Options)
		}
	default:
		return fmt.Sprintf("parameter %q: unknown schema type %q", spec.Name, spec.Type)
	}
	return ""
}

func checkRange(spec models.ParamSpec, n float64) string {
	if spec.Min != nil && n < *spec.Min {
		return fmt.Sprintf("parameter %q: %v is below minimum %v", spec.Name, n, *spec.Min)
	}
	if spec.Max != nil && n > *spec.Max {
		return fmt.Sprintf("parameter %q: %v is above maximum %v", spec.Name, n, *spec.Max)
	}
	return ""
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

// BindParams validates raw against schema and, on success, stores both on
// b so later Metadata() calls report the resolved configuration. It is the
// "any failure raises before the object becomes usable" enforcement point
// for components built from untyped params (the dynamic loader's sandboxed
// strategies); built-in strategies constructed with typed Go arguments
// do not go through this path and carry no parameter schema.
func (b *Base) BindParams(schema models.ParamSchema, raw map[string]interface{}) error {
	if err := ValidateParams(schema, raw); err != nil {
		return err
	}
	resolved := make(map[string]interface{}, len(schema.Specs))
	for _, spec := range schema.Specs {
		if v, ok := raw[spec.Name]; ok {
			resolved[spec.Name] = v
		} else if spec.Default != nil {
			resolved[spec.Name] = spec.Default
		}
	}
	b.Schema = schema
	b.Params = resolved
	return nil
}
