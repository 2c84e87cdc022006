// Package extract derives object references from DDL text. It is the
// parser boundary of the metadata engine: pure text in, identities out,
// with no warehouse connectivity. The scanner is intentionally not a full
// SQL grammar; it tokenizes the DDL and picks out the name chains that
// follow reference keywords (FROM, JOIN, REFERENCES, ...), which is what
// object-level lineage needs.
package extract

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Extractor turns one object's DDL text into the set of objects its
// definition depends on. Unqualified names resolve against the owning
// object's database and schema. Implementations must be safe for
// concurrent use.
type Extractor interface {
	References(ddl, defaultDatabase, defaultSchema string) ([]identity.Identity, error)
}

// SQLExtractor is the token-scanning Extractor for SQL DDL. The zero
// value is ready to use.
type SQLExtractor struct{}

// NewSQLExtractor returns a ready-to-use SQLExtractor.
func NewSQLExtractor() *SQLExtractor {
	return &SQLExtractor{}
}

// Keywords that introduce an object reference. "table"/"view" are
// triggers only directly after ON (stream definitions).
var triggerKeywords = map[string]bool{
	"from":       true,
	"join":       true,
	"into":       true,
	"references": true,
	"clone":      true,
}

// Names that can follow a trigger keyword without being a reference.
var nonReferenceNames = map[string]bool{
	"select":  true,
	"values":  true,
	"lateral": true,
	"dual":    true,
}

// References implements Extractor. A lexer failure (unterminated string
// or quoted identifier) returns the error with no references; callers
// treat it as a warning, not a fatal condition.
func (x *SQLExtractor) References(ddl, defaultDatabase, defaultSchema string) ([]identity.Identity, error) {
	toks, err := tokenize(ddl)
	if err != nil {
		return nil, err
	}

	ctes := collectCTENames(toks)

	seen := make(map[string]identity.Identity)
	for i := 0; i < len(toks); i++ {
		if !isTriggerAt(toks, i) {
			continue
		}
		kw := fold(toks[i].literal)

		parts, next := readNameChain(toks, i+1)
		if len(parts) == 0 {
			continue
		}

		// FROM/JOIN/CLONE followed by "(" is a subquery or a table
		// function call, not a named object. INTO and REFERENCES keep
		// the name: a column list legitimately follows it.
		if next < len(toks) && toks[next].typ == tokenSymbol && toks[next].literal == "(" {
			if kw == "from" || kw == "join" || kw == "clone" {
				continue
			}
		}

		if len(parts) == 1 {
			if nonReferenceNames[fold(parts[0])] || ctes[fold(parts[0])] {
				continue
			}
		}

		id := buildIdentity(parts, defaultDatabase, defaultSchema)
		if id.IsZero() {
			continue
		}
		seen[id.FQN()] = id
	}

	refs := make([]identity.Identity, 0, len(seen))
	for _, id := range seen {
		refs = append(refs, id)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].FQN() < refs[j].FQN() })
	return refs, nil
}

// tokenize lexes the full input up front.
func tokenize(ddl string) ([]token, error) {
	l := newLexer(ddl)
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokenEOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

// isTriggerAt reports whether the token at i introduces a reference.
func isTriggerAt(toks []token, i int) bool {
	if toks[i].typ != tokenIdent {
		return false
	}
	w := fold(toks[i].literal)
	if triggerKeywords[w] {
		return true
	}
	// CREATE STREAM s ON TABLE t / ON VIEW v
	if (w == "table" || w == "view") && i > 0 &&
		toks[i-1].typ == tokenIdent && fold(toks[i-1].literal) == "on" {
		return true
	}
	return false
}

// readNameChain reads ident (. ident)* starting at i and returns the raw
// parts plus the index of the first token after the chain. Returns no
// parts when i does not start an identifier.
func readNameChain(toks []token, i int) ([]string, int) {
	var parts []string
	for i < len(toks) {
		t := toks[i]
		if t.typ != tokenIdent && t.typ != tokenQuotedIdent {
			break
		}
		parts = append(parts, t.literal)
		i++
		if i < len(toks) && toks[i].typ == tokenSymbol && toks[i].literal == "." {
			i++
			continue
		}
		break
	}
	return parts, i
}

// buildIdentity assembles an identity from chain parts, qualifying
// unqualified names with the owning object's database and schema. Chains
// longer than three parts keep the trailing database.schema.name.
func buildIdentity(parts []string, defaultDatabase, defaultSchema string) identity.Identity {
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	switch len(parts) {
	case 1:
		return identity.New(defaultDatabase, defaultSchema, parts[0], identity.TypeUnknown)
	case 2:
		return identity.New(defaultDatabase, parts[0], parts[1], identity.TypeUnknown)
	default:
		return identity.New(parts[0], parts[1], parts[2], identity.TypeUnknown)
	}
}

// collectCTENames finds names bound by WITH clauses so unqualified
// references to them are not mistaken for schema objects. The shape
// matched is `name [( columns )] AS (`, which also catches the object
// name in `CREATE VIEW v AS (`; that self reference would be dropped by
// the graph anyway.
func collectCTENames(toks []token) map[string]bool {
	names := make(map[string]bool)
	for i := 0; i < len(toks); i++ {
		if toks[i].typ != tokenIdent && toks[i].typ != tokenQuotedIdent {
			continue
		}
		j := i + 1
		// Optional parenthesized column list between the name and AS.
		if j < len(toks) && toks[j].typ == tokenSymbol && toks[j].literal == "(" {
			depth := 1
			j++
			for j < len(toks) && depth > 0 {
				if toks[j].typ == tokenSymbol {
					switch toks[j].literal {
					case "(":
						depth++
					case ")":
						depth--
					}
				}
				j++
			}
		}
		if j+1 < len(toks) &&
			toks[j].typ == tokenIdent && fold(toks[j].literal) == "as" &&
			toks[j+1].typ == tokenSymbol && toks[j+1].literal == "(" {
			names[fold(toks[i].literal)] = true
		}
	}
	return names
}

func fold(s string) string {
	return strings.ToLower(s)
}
