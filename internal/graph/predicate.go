// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package graph

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// PredicateKind enumerates the filter operators the transport understands.
type PredicateKind int

const (
	KindEq PredicateKind = iota
	KindNeq
	KindILike
	KindGte
	KindLte
	KindIn
	KindContains
	KindOr
)

func (k PredicateKind) operator() string {
	switch k {
	case KindEq:
		return "eq"
	case KindNeq:
		return "neq"
	case KindILike:
		return "ilike"
	case KindGte:
		return "gte"
	case KindLte:
		return "lte"
	case KindIn:
		return "in"
	case KindContains:
		return "cs"
	default:
		return ""
	}
}

// ColumnRef names a target for a predicate or order clause: either a plain
// column or a path into the entity attribute bag. The `->`/`->>` separators
// are emitted here, never passed through caller strings, so the path syntax
// survives URL encoding intact.
type ColumnRef struct {
	name string
	path []string
}

// Col references a top-level column.
func Col(name string) ColumnRef {
	return ColumnRef{name: name}
}

// Attr references a nested path inside the attributes bag. The final
// segment is extracted as text (`->>`), any intermediate ones as JSON
// (`->`).
func Attr(path ...string) ColumnRef {
	return ColumnRef{name: "attributes", path: path}
}

// Name returns the top-level column name.
func (c ColumnRef) Name() string { return c.name }

// Path returns the attribute path segments, nil for plain columns.
func (c ColumnRef) Path() []string { return c.path }

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

func (c ColumnRef) validate() error {
	if !identRe.MatchString(c.name) {
		return ibrerr.Errorf(ibrerr.CodeGraphQueryInvalidInput, "invalid column name %q", c.name)
	}
	for _, seg := range c.path {
		if !identRe.MatchString(seg) {
			return ibrerr.Errorf(ibrerr.CodeGraphQueryInvalidInput, "invalid attribute path segment %q", seg)
		}
	}
	return nil
}

// expr renders the column expression. asJSON keeps the final segment as a
// JSON value (needed by containment checks); otherwise it is text-extracted.
func (c ColumnRef) expr(asJSON bool) string {
	if len(c.path) == 0 {
		return c.name
	}
	var b strings.Builder
	b.WriteString(c.name)
	for i, seg := range c.path {
		if i == len(c.path)-1 && !asJSON {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		b.WriteString(seg)
	}
	return b.String()
}

// Predicate is one node of the filter expression tree. Only the constructors
// below produce valid values; the zero value serializes to an error.
type Predicate struct {
	Kind   PredicateKind
	Column ColumnRef
	Value  string
	Values []string
	Nested []Predicate
}

// Eq matches rows where the column equals value.
func Eq(col ColumnRef, value string) Predicate {
	return Predicate{Kind: KindEq, Column: col, Value: value}
}

// Neq matches rows where the column differs from value.
func Neq(col ColumnRef, value string) Predicate {
	return Predicate{Kind: KindNeq, Column: col, Value: value}
}

// Match matches rows whose column contains term, case-insensitively.
func Match(col ColumnRef, term string) Predicate {
	return Predicate{Kind: KindILike, Column: col, Value: "*" + term + "*"}
}

// Gte matches rows where the column is greater than or equal to value.
func Gte(col ColumnRef, value string) Predicate {
	return Predicate{Kind: KindGte, Column: col, Value: value}
}

// Lte matches rows where the column is less than or equal to value.
func Lte(col ColumnRef, value string) Predicate {
	return Predicate{Kind: KindLte, Column: col, Value: value}
}

// In matches rows whose column value is one of values.
func In(col ColumnRef, values ...string) Predicate {
	return Predicate{Kind: KindIn, Column: col, Values: values}
}

// Contains matches rows whose JSON-array column contains every value.
func Contains(col ColumnRef, values ...string) Predicate {
	return Predicate{Kind: KindContains, Column: col, Values: values}
}

// Or groups sub-predicates disjunctively.
func Or(preds ...Predicate) Predicate {
	return Predicate{Kind: KindOr, Nested: preds}
}

// reservedValueChars are the grammar delimiters of the transport filter
// syntax. Values containing any of them are double-quoted rather than
// escaped character by character, which is the one place injection safety
// is enforced.
const reservedValueChars = `,.:()"\`

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, reservedValueChars) && !strings.ContainsAny(v, " \t\n") {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// appendQuery serializes the predicate into the request's query parameters.
func (p Predicate) appendQuery(q url.Values) error {
	if p.Kind == KindOr {
		parts := make([]string, 0, len(p.Nested))
		for _, sub := range p.Nested {
			expr, err := sub.inlineExpr()
			if err != nil {
				return err
			}
			parts = append(parts, expr)
		}
		if len(parts) == 0 {
			return ibrerr.New(ibrerr.CodeGraphQueryInvalidInput, "empty or-group")
		}
		q.Add("or", "("+strings.Join(parts, ",")+")")
		return nil
	}

	if err := p.Column.validate(); err != nil {
		return err
	}
	rhs, err := p.rhs()
	if err != nil {
		return err
	}
	q.Add(p.Column.expr(p.Kind == KindContains), rhs)
	return nil
}

// inlineExpr renders `column.op.value` for use inside an or-group.
func (p Predicate) inlineExpr() (string, error) {
	if p.Kind == KindOr {
		return "", ibrerr.New(ibrerr.CodeGraphQueryInvalidInput, "nested or-groups are not supported")
	}
	if err := p.Column.validate(); err != nil {
		return "", err
	}
	rhs, err := p.rhs()
	if err != nil {
		return "", err
	}
	return p.Column.expr(p.Kind == KindContains) + "." + rhs, nil
}

// rhs renders `op.value` for the predicate.
func (p Predicate) rhs() (string, error) {
	op := p.Kind.operator()
	if op == "" {
		return "", ibrerr.Errorf(ibrerr.CodeGraphQueryInvalidInput, "invalid predicate kind %d", p.Kind)
	}

	switch p.Kind {
	case KindIn:
		if len(p.Values) == 0 {
			return "", ibrerr.New(ibrerr.CodeGraphQueryInvalidInput, "in-predicate requires at least one value")
		}
		quoted := make([]string, len(p.Values))
		for i, v := range p.Values {
			quoted[i] = quoteValue(v)
		}
		return op + ".(" + strings.Join(quoted, ",") + ")", nil
	case KindContains:
		if len(p.Values) == 0 {
			return "", ibrerr.New(ibrerr.CodeGraphQueryInvalidInput, "contains-predicate requires at least one value")
		}
		quoted := make([]string, len(p.Values))
		for i, v := range p.Values {
			quoted[i] = quoteValue(v)
		}
		return op + ".{" + strings.Join(quoted, ",") + "}", nil
	default:
		return op + "." + quoteValue(p.Value), nil
	}
}

// OrderClause orders results by a column.
type OrderClause struct {
	Column     ColumnRef
	Descending bool
}

// Desc orders descending by col.
func Desc(col ColumnRef) OrderClause {
	return OrderClause{Column: col, Descending: true}
}

// Asc orders ascending by col.
func Asc(col ColumnRef) OrderClause {
	return OrderClause{Column: col}
}

func (o OrderClause) expr() (string, error) {
	if err := o.Column.validate(); err != nil {
		return "", err
	}
	dir := "asc"
	if o.Descending {
		dir = "desc"
	}
	return fmt.Sprintf("%s.%s", o.Column.expr(false), dir), nil
}
