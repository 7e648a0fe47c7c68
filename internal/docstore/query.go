package docstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
)

const (
	defaultListLimit = 25
	maxListLimit     = 5000
)

var attributeName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// systemColumns maps $-prefixed attributes to their indexed columns.
var systemColumns = map[string]string{
	"$id":        "id",
	"$createdAt": "created_at",
	"$updatedAt": "updated_at",
}

// listQuery is the compiled form of a list request. Values are always bound
// as parameters, never interpolated.
type listQuery struct {
	where string
	args  []any
	order string
	limit int
}

// compileQueries folds the queries of one list request into SQL fragments.
// Top-level filters are joined with AND. Every ordering ends with seq so
// ties fall back to insertion order.
func compileQueries(queries []backend.Query) (*listQuery, error) {
	q := &listQuery{limit: defaultListLimit}
	var wheres, orders []string

	for _, query := range queries {
		switch v := query.(type) {
		case backend.Filter:
			sql, args, err := compileFilter(v)
			if err != nil {
				return nil, err
			}
			wheres = append(wheres, sql)
			q.args = append(q.args, args...)
		case backend.Order:
			col, err := column(v.Field)
			if err != nil {
				return nil, err
			}
			dir := "ASC"
			if v.Desc {
				dir = "DESC"
			}
			orders = append(orders, col+" "+dir)
		case backend.LimitQuery:
			if v.N <= 0 || v.N > maxListLimit {
				return nil, apperr.Invalidf("invalid limit %d: must be between 1 and %d", v.N, maxListLimit)
			}
			q.limit = v.N
		default:
			return nil, apperr.Invalidf("unsupported query type: %T", query)
		}
	}

	if len(wheres) > 0 {
		q.where = " AND " + strings.Join(wheres, " AND ")
	}
	orders = append(orders, "seq ASC")
	q.order = strings.Join(orders, ", ")
	return q, nil
}

func compileFilter(f backend.Filter) (string, []any, error) {
	switch v := f.(type) {
	case backend.EqualFilter:
		col, err := column(v.Field)
		if err != nil {
			return "", nil, err
		}
		param, err := toParam(v.Value)
		if err != nil {
			return "", nil, fmt.Errorf("attribute %q: %w", v.Field, err)
		}
		return col + " = ?", []any{param}, nil
	case backend.AndFilter:
		return compileGroup(v.Filters, " AND ", "1 = 1")
	case backend.OrFilter:
		return compileGroup(v.Filters, " OR ", "1 = 0")
	default:
		return "", nil, apperr.Invalidf("unsupported filter type: %T", f)
	}
}

func compileGroup(filters []backend.Filter, sep, empty string) (string, []any, error) {
	if len(filters) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		sql, a, err := compileFilter(f)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, a...)
	}
	return "(" + strings.Join(parts, sep) + ")", args, nil
}

// column resolves an attribute name to a SQL expression.
func column(field string) (string, error) {
	if col, ok := systemColumns[field]; ok {
		return col, nil
	}
	if !attributeName.MatchString(field) {
		return "", apperr.Invalidf("invalid attribute name %q", field)
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", field), nil
}

// toParam converts a filter value to what json_extract yields for it.
func toParam(v any) (any, error) {
	switch x := v.(type) {
	case string, int, int32, int64, float32, float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case nil:
		return nil, apperr.Invalidf("nil value is not comparable")
	default:
		return nil, apperr.Invalidf("unsupported value type %T", v)
	}
}
