// Package identity defines the normalized identity of a warehouse object.
// An identity is the sole key used by the dependency graph and the
// persisted snapshot: database, schema, name, and object type, all
// case-folded and de-quoted so that equality matches the warehouse's own
// resolution rules.
package identity

import (
	"fmt"
	"strings"
)

// Type classifies a warehouse object.
type Type string

// Object types managed by the tool. Unresolved reference targets use
// TypeUnknown until a fetched object claims the same FQN.
const (
	TypeTable            Type = "table"
	TypeView             Type = "view"
	TypeMaterializedView Type = "materialized view"
	TypeSequence         Type = "sequence"
	TypeStage            Type = "stage"
	TypeFileFormat       Type = "file format"
	TypePipe             Type = "pipe"
	TypeStream           Type = "stream"
	TypeTask             Type = "task"
	TypeFunction         Type = "function"
	TypeProcedure        Type = "procedure"
	TypeUnknown          Type = "unknown"
)

// ParseType normalizes a user-supplied type string ("VIEW", "tables").
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSuffix(NormalizePart(s), "s"))
	switch t {
	case TypeTable, TypeView, TypeMaterializedView, TypeSequence, TypeStage,
		TypeFileFormat, TypePipe, TypeStream, TypeTask, TypeFunction, TypeProcedure:
		return t, nil
	}
	return "", fmt.Errorf("unknown object type: %q", s)
}

// Identity is the immutable key of a warehouse object. All fields are
// stored in normalized form (de-quoted, lowercase). Account is carried
// for display and connection scoping but does not participate in keys:
// a run is always scoped to a single account.
type Identity struct {
	Account  string
	Database string
	Schema   string
	Name     string
	Type     Type
}

// New builds an identity from raw identifier parts, normalizing each.
func New(database, schema, name string, t Type) Identity {
	return Identity{
		Database: NormalizePart(database),
		Schema:   NormalizePart(schema),
		Name:     NormalizePart(name),
		Type:     t,
	}
}

// ParseFQN parses a dotted name into an identity, filling missing
// qualifiers from the defaults. Accepts name, schema.name, or
// database.schema.name. Quoted parts may contain dots; ParseFQN splits
// on dots outside double quotes.
func ParseFQN(fqn, defaultDatabase, defaultSchema string, t Type) (Identity, error) {
	parts := splitQualified(fqn)
	switch len(parts) {
	case 1:
		return New(defaultDatabase, defaultSchema, parts[0], t), nil
	case 2:
		return New(defaultDatabase, parts[0], parts[1], t), nil
	case 3:
		return New(parts[0], parts[1], parts[2], t), nil
	}
	return Identity{}, fmt.Errorf("invalid qualified name: %q", fqn)
}

// FQN returns the normalized database.schema.name form.
func (id Identity) FQN() string {
	return id.Database + "." + id.Schema + "." + id.Name
}

// Key returns the state key used by the snapshot and the persisted
// index: "<type>-<database>.<schema>.<name>".
func (id Identity) Key() string {
	return string(id.Type) + "-" + id.FQN()
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return string(id.Type) + ":" + id.FQN()
}

// IsZero reports whether the identity is empty.
func (id Identity) IsZero() bool {
	return id.Name == ""
}

// NormalizePart normalizes one identifier part: a double-quoted
// identifier is de-quoted (embedded "" unescaped), then the result is
// trimmed and lowercased. Unquoted identifiers fold the same way, which
// matches how the warehouse resolves them for comparison purposes.
func NormalizePart(part string) string {
	part = strings.TrimSpace(part)
	if len(part) >= 2 && part[0] == '"' && part[len(part)-1] == '"' {
		part = strings.ReplaceAll(part[1:len(part)-1], `""`, `"`)
	}
	return strings.ToLower(strings.TrimSpace(part))
}

// splitQualified splits a dotted identifier chain on dots that are not
// inside double quotes.
func splitQualified(s string) []string {
	var parts []string
	var b strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '.' && !inQuote:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	parts = append(parts, b.String())
	return parts
}
