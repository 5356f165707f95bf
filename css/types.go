package css

import (
	"strings"
	"unicode"
)

// Value represents a parsed CSS property value.
type Value struct {
	Raw     string  // Original CSS value string (e.g., "1.2em", "bold", "#ff0000")
	Value   float64 // Numeric value if applicable
	Unit    string  // Unit if applicable: "em", "px", "%", "pt", etc.
	Keyword string  // Keyword if applicable: "bold", "italic", "center", etc.
}

// IsNumeric returns true if the value has a numeric component.
// This includes explicit zero values like "0" or "0px".
func (v Value) IsNumeric() bool {
	if v.Unit != "" {
		return true
	}
	if v.Value != 0 && v.Keyword == "" {
		return true
	}
	// "0" carries neither unit nor value
	if v.Raw != "" && v.Keyword == "" {
		first := rune(v.Raw[0])
		if unicode.IsDigit(first) || first == '.' || first == '-' || first == '+' {
			return true
		}
	}
	return false
}

// IsZero reports whether value is a numeric zero with any unit.
func (v Value) IsZero() bool {
	return v.IsNumeric() && v.Value == 0
}

// Declaration is a single "property: value" pair of an inline style.
type Declaration struct {
	Property  string
	Value     Value
	Important bool
}

// Style is an ordered list of declarations from a style attribute.
type Style struct {
	Declarations []Declaration
}

// Get returns last declared value of the property.
func (s *Style) Get(property string) (Value, bool) {
	for i := len(s.Declarations) - 1; i >= 0; i-- {
		if s.Declarations[i].Property == property {
			return s.Declarations[i].Value, true
		}
	}
	return Value{}, false
}

// RemoveIf drops declarations matching predicate and reports how many were
// removed.
func (s *Style) RemoveIf(pred func(Declaration) bool) int {
	kept := s.Declarations[:0]
	removed := 0
	for _, d := range s.Declarations {
		if pred(d) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	s.Declarations = kept
	return removed
}

// String renders declarations back into style attribute form.
func (s *Style) String() string {
	var b strings.Builder
	for i, d := range s.Declarations {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(d.Property)
		b.WriteString(": ")
		b.WriteString(d.Value.Raw)
		if d.Important {
			b.WriteString(" !important")
		}
	}
	return b.String()
}
