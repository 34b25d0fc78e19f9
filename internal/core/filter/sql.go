package filter

import (
	"fmt"
	"strings"
)

// Dialect renders metadata field access and bind placeholders for one SQL
// engine. Metadata is stored as a JSON object column.
type Dialect interface {
	Field(column, key string) string
	Placeholder(n int) string
}

// Postgres addresses JSONB metadata with ->> and binds with $n.
type Postgres struct{}

func (Postgres) Field(column, key string) string { return fmt.Sprintf("%s->>'%s'", column, key) }
func (Postgres) Placeholder(n int) string        { return fmt.Sprintf("$%d", n) }

// SQLite addresses JSON text metadata with json_extract and binds with ?.
type SQLite struct{}

func (SQLite) Field(column, key string) string { return fmt.Sprintf(`json_extract(%s, '$."%s"')`, column, key) }
func (SQLite) Placeholder(int) string          { return "?" }

// ToSQL renders e as a boolean SQL expression over the JSON column. Bind
// numbering starts at firstArg. The zero Expr renders as TRUE.
func (e Expr) ToSQL(d Dialect, column string, firstArg int) (string, []any, error) {
	if err := e.Validate(); err != nil {
		return "", nil, err
	}
	var args []any
	next := func(v string) string {
		args = append(args, v)
		return d.Placeholder(firstArg + len(args) - 1)
	}
	var render func(Expr) string
	render = func(x Expr) string {
		switch x.Op {
		case OpEq:
			return fmt.Sprintf("%s = %s", d.Field(column, x.Key), next(x.Value))
		case OpIn:
			ph := make([]string, len(x.Values))
			for i, v := range x.Values {
				ph[i] = next(v)
			}
			return fmt.Sprintf("%s IN (%s)", d.Field(column, x.Key), strings.Join(ph, ", "))
		case OpAnd, OpOr:
			parts := make([]string, len(x.Args))
			for i, a := range x.Args {
				parts[i] = render(a)
			}
			sep := " AND "
			if x.Op == OpOr {
				sep = " OR "
			}
			return "(" + strings.Join(parts, sep) + ")"
		}
		return "TRUE"
	}
	return render(e), args, nil
}
