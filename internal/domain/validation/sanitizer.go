package validation

import (
	"regexp"
	"strings"
)

// Size limits for sanitization.
const (
	// MaxStringLength is the maximum length of any string argument (1MB).
	MaxStringLength = 1048576

	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 255

	// MaxArgumentDepth bounds the nesting of argument objects and arrays.
	MaxArgumentDepth = 32
)

// toolNamePattern: a letter followed by letters, digits, underscores or hyphens.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Sanitizer validates tool names and cleans tool-call arguments.
type Sanitizer struct{}

// NewSanitizer creates a new Sanitizer instance.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// ValidateToolName rejects empty, oversized or malformed tool names.
func (s *Sanitizer) ValidateToolName(name string) error {
	if name == "" {
		return NewValidationError(ErrCodeInvalidParams, "tool name is required")
	}
	if len(name) > MaxToolNameLength {
		return NewValidationError(ErrCodeInvalidParams, "tool name too long")
	}
	if !toolNamePattern.MatchString(name) {
		return NewValidationError(ErrCodeInvalidParams, "invalid tool name format")
	}
	return nil
}

// SanitizeValue strips null bytes from strings, truncates strings longer
// than MaxStringLength and recurses into objects and arrays. Values nested
// deeper than MaxArgumentDepth are rejected.
func (s *Sanitizer) SanitizeValue(v interface{}) (interface{}, error) {
	return s.sanitize(v, 0)
}

func (s *Sanitizer) sanitize(v interface{}, depth int) (interface{}, error) {
	if depth > MaxArgumentDepth {
		return nil, NewValidationError(ErrCodeInvalidParams, "arguments nested too deeply")
	}

	switch val := v.(type) {
	case string:
		return sanitizeString(val), nil

	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, inner := range val {
			clean, err := s.sanitize(inner, depth+1)
			if err != nil {
				return nil, err
			}
			result[sanitizeString(k)] = clean
		}
		return result, nil

	case []interface{}:
		result := make([]interface{}, len(val))
		for i, inner := range val {
			clean, err := s.sanitize(inner, depth+1)
			if err != nil {
				return nil, err
			}
			result[i] = clean
		}
		return result, nil

	default:
		return v, nil
	}
}

func sanitizeString(str string) string {
	str = strings.ReplaceAll(str, "\x00", "")
	if len(str) > MaxStringLength {
		str = str[:MaxStringLength]
	}
	return str
}

// SanitizeToolCall validates params.name and sanitizes params.arguments.
// Other params members (such as _meta) are copied unchanged.
func (s *Sanitizer) SanitizeToolCall(params map[string]interface{}) (map[string]interface{}, error) {
	name, ok := params["name"].(string)
	if !ok {
		return nil, NewValidationError(ErrCodeInvalidParams, "tool name is required")
	}
	if err := s.ValidateToolName(name); err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(params))
	for k, v := range params {
		result[k] = v
	}

	if args, present := params["arguments"]; present && args != nil {
		if _, isObject := args.(map[string]interface{}); !isObject {
			return nil, NewValidationError(ErrCodeInvalidParams, "arguments must be an object")
		}
		clean, err := s.SanitizeValue(args)
		if err != nil {
			return nil, err
		}
		result["arguments"] = clean
	}

	return result, nil
}
