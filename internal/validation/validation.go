// Package validation provides the field-level input checks used by the API.
// Violations are keyed by field with short machine-readable reasons so
// clients can map them onto form fields.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Error lets handlers treat a non-empty Violations as the failure itself.
func (v Violations) Error() string {
	parts := make([]string, 0, len(v))
	for field, reason := range v {
		parts = append(parts, field+": "+reason)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, ", ")
}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Required records a violation when value is blank. Later checks on the same
// field are skipped once it has a violation, so only the first reason wins.
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func Email(field, value string, v Violations) {
	if _, seen := v[field]; seen {
		return
	}
	if !emailRegex.MatchString(value) {
		v[field] = "invalid_email"
	}
}

func MinLen(field, value string, n int, v Violations) {
	if _, seen := v[field]; seen {
		return
	}
	if utf8.RuneCountInString(value) < n {
		v[field] = fmt.Sprintf("min_length_%d", n)
	}
}

func MaxLen(field, value string, n int, v Violations) {
	if _, seen := v[field]; seen {
		return
	}
	if utf8.RuneCountInString(value) > n {
		v[field] = fmt.Sprintf("max_length_%d", n)
	}
}

// Confirmed checks the value against its confirmation field.
func Confirmed(field, value, confirmation string, v Violations) {
	if _, seen := v[field]; seen {
		return
	}
	if value != confirmation {
		v[field] = "confirmation_mismatch"
	}
}
