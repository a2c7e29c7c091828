// Package query implements a small filter language over ARGO floats.
//
// An expression is one or more clauses joined by "and":
//
//	lat > 5 and lon <= 70.5 and status = active
//
// Latitude and longitude accept the comparison operators < <= > >= and =,
// while id and status only accept =.
package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/floatchat/floatchat/argo"
)

// ErrInvalidQuery is returned for malformed expressions and for clauses that cannot be applied.
var ErrInvalidQuery = errors.New("invalid query")

var (
	expressionParser = participle.MustBuild[Expression](
		participle.Lexer(queryLexer),
		participle.Elide("Whitespace"),
		participle.CaseInsensitive("Ident"),
		participle.Unquote("String"),
	)
	queryLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Op", Pattern: `<=|>=|==|<|>|=`},
		{Name: "Number", Pattern: `[-+]?[0-9]+(\.[0-9]+)?`},
		{Name: "String", Pattern: `"(\\.|[^"])*"|'[^']*'`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
)

type Expression struct {
	Clauses []*Clause `parser:"@@ ('and' @@)*"`
}

func (e *Expression) String() string {
	parts := make([]string, 0, len(e.Clauses))
	for _, clause := range e.Clauses {
		parts = append(parts, clause.String())
	}
	return strings.Join(parts, " and ")
}

type Clause struct {
	Pos   lexer.Position
	Field string `parser:"@('lat' | 'latitude' | 'lon' | 'longitude' | 'id' | 'float_id' | 'status')"`
	Op    string `parser:"@Op"`
	Value *Value `parser:"@@"`
}

func (c *Clause) String() string {
	return c.Field + " " + c.Op + " " + c.Value.String()
}

type Value struct {
	Number *float64 `parser:"  @Number"`
	Quoted *string  `parser:"| @String"`
	Ident  *string  `parser:"| @Ident"`
}

func (v *Value) String() string {
	switch {
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Quoted != nil:
		return strconv.Quote(*v.Quoted)
	case v.Ident != nil:
		return *v.Ident
	}
	return ""
}

// Text is the value as a string, regardless of how it was written.
func (v *Value) Text() string {
	switch {
	case v.Quoted != nil:
		return *v.Quoted
	case v.Ident != nil:
		return *v.Ident
	}
	return v.String()
}

// ParseExpression parses an expression without applying it.
func ParseExpression(s string) (*Expression, error) {
	expr, err := expressionParser.ParseString("", s)
	if err != nil {
		return nil, errors.Errorf("%s: %w", err, ErrInvalidQuery)
	}
	return expr, nil
}

// Parse an expression into an [argo.Filter].
func Parse(s string) (argo.Filter, error) {
	expr, err := ParseExpression(s)
	if err != nil {
		return argo.Filter{}, errors.WithStack(err)
	}
	return expr.Filter()
}

// Filter converts the expression to an [argo.Filter].
//
// Repeated bounds on the same field narrow the range. Strict comparisons are
// converted to inclusive bounds on the adjacent representable value.
func (e *Expression) Filter() (argo.Filter, error) {
	filter := argo.Filter{}
	for _, clause := range e.Clauses {
		if err := clause.apply(&filter); err != nil {
			return argo.Filter{}, errors.Errorf("%s: %s: %w", clause.Pos, clause, err)
		}
	}
	return filter, nil
}

func (c *Clause) apply(filter *argo.Filter) error {
	op := c.Op
	if op == "==" {
		op = "="
	}
	switch strings.ToLower(c.Field) {
	case "lat", "latitude":
		return applyBound(&filter.LatMin, &filter.LatMax, op, c.Value, 90)
	case "lon", "longitude":
		return applyBound(&filter.LonMin, &filter.LonMax, op, c.Value, 180)
	case "id", "float_id":
		if op != "=" {
			return errors.Errorf("id only supports =: %w", ErrInvalidQuery)
		}
		id := c.Value.Text()
		if filter.FloatID != "" && filter.FloatID != id {
			return errors.Errorf("conflicting ids %s and %s: %w", filter.FloatID, id, ErrInvalidQuery)
		}
		filter.FloatID = id
	case "status":
		if op != "=" {
			return errors.Errorf("status only supports =: %w", ErrInvalidQuery)
		}
		status := argo.Status(strings.ToLower(c.Value.Text()))
		switch status {
		case argo.StatusActive, argo.StatusDelayed, argo.StatusInactive:
		default:
			return errors.Errorf("unknown status %q: %w", status, ErrInvalidQuery)
		}
		filter.Status = status
	default:
		return errors.Errorf("unknown field %q: %w", c.Field, ErrInvalidQuery)
	}
	return nil
}

func applyBound(lower, upper **float64, op string, value *Value, limit float64) error {
	if value.Number == nil {
		return errors.Errorf("expected a number but got %s: %w", value, ErrInvalidQuery)
	}
	v := *value.Number
	if v < -limit || v > limit {
		return errors.Errorf("%v is outside [-%v, %v]: %w", v, limit, limit, ErrInvalidQuery)
	}
	raise := func(bound float64) {
		if *lower == nil || **lower < bound {
			*lower = &bound
		}
	}
	lowerBy := func(bound float64) {
		if *upper == nil || **upper > bound {
			*upper = &bound
		}
	}
	switch op {
	case "=":
		raise(v)
		lowerBy(v)
	case ">=":
		raise(v)
	case ">":
		raise(math.Nextafter(v, math.Inf(1)))
	case "<=":
		lowerBy(v)
	case "<":
		lowerBy(math.Nextafter(v, math.Inf(-1)))
	default:
		return errors.Errorf("unsupported operator %q: %w", op, ErrInvalidQuery)
	}
	return nil
}
