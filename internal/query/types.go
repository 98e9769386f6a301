package query

import (
	"strings"

	"github.com/pkg/errors"

	"sparqlbench/internal/allocation"
)

// Type is the SPARQL form of a query.
type Type int

const (
	Select Type = iota
	Construct
	Describe
	Ask
	Insert
	Update
	Delete
)

var typeNames = map[Type]string{
	Select:    "SELECT",
	Construct: "CONSTRUCT",
	Describe:  "DESCRIBE",
	Ask:       "ASK",
	Insert:    "INSERT",
	Update:    "UPDATE",
	Delete:    "DELETE",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsUpdate reports whether the query must be sent to the update endpoint.
func (t Type) IsUpdate() bool {
	return t == Insert || t == Update || t == Delete
}

// ReturnsData reports whether the result carries bindings or a graph worth measuring.
func (t Type) ReturnsData() bool {
	return t == Select || t == Construct || t == Describe
}

// ParseType parses a type name, case-insensitively.
func ParseType(s string) (Type, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown query type %q", s)
}

// Query is a rendered query ready to be sent to the endpoint.
type Query struct {
	Text         string
	Type         Type
	TemplateName string
}

// DetectType infers the query type of a template. Editorial templates are typed
// by their name (insert/update/delete); aggregation templates by their first
// query form keyword after any prologue.
func DetectType(role allocation.Role, name, text string) Type {
	if role == allocation.RoleWrite {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "insert"):
			return Insert
		case strings.Contains(lower, "delete"):
			return Delete
		default:
			return Update
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "PREFIX") || strings.HasPrefix(upper, "BASE") {
			continue
		}
		for _, t := range []Type{Construct, Describe, Ask, Select} {
			if strings.HasPrefix(upper, typeNames[t]) {
				return t
			}
		}
		break
	}
	return Select
}
