package version

import (
	"fmt"
	"strings"
)

// constraint is a single operator + version pair, e.g. ">=1.2.0".
type constraint struct {
	op      string
	version string
}

// Range is a set of constraints combined with AND semantics.
type Range struct {
	constraints []constraint
}

// ParseRange parses a comma-separated constraint list such as
// ">=1.2.0, <2.0.0". Supported operators: =, >, <, >=, <=. A bare
// version is treated as an exact match.
func ParseRange(s string) (*Range, error) {
	parts := strings.Split(s, ",")

	r := &Range{}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		op := "="

		switch {
		case strings.HasPrefix(part, ">="):
			op, part = ">=", part[2:]
		case strings.HasPrefix(part, "<="):
			op, part = "<=", part[2:]
		case strings.HasPrefix(part, ">"):
			op, part = ">", part[1:]
		case strings.HasPrefix(part, "<"):
			op, part = "<", part[1:]
		case strings.HasPrefix(part, "="):
			op, part = "=", part[1:]
		}

		part = strings.TrimSpace(part)
		if err := Validate(part); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConstraint, part)
		}

		r.constraints = append(r.constraints, constraint{op: op, version: part})
	}

	if len(r.constraints) == 0 {
		return nil, ErrEmptyRange
	}

	return r, nil
}

// Matches reports whether v satisfies every constraint in the range.
func (r *Range) Matches(v string) bool {
	for _, c := range r.constraints {
		cmp := Compare(v, c.version)

		var ok bool

		switch c.op {
		case "=":
			ok = cmp == 0
		case ">":
			ok = cmp > 0
		case "<":
			ok = cmp < 0
		case ">=":
			ok = cmp >= 0
		case "<=":
			ok = cmp <= 0
		}

		if !ok {
			return false
		}
	}

	return true
}

func (r *Range) String() string {
	parts := make([]string, 0, len(r.constraints))
	for _, c := range r.constraints {
		parts = append(parts, c.op+c.version)
	}

	return strings.Join(parts, ", ")
}
