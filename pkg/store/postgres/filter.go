package postgres

import (
	"fmt"
	"strings"

	"github.com/rook-mem/rook/pkg/memory"
)

// scopeColumns maps the scope field paths of the filter DSL to the physical
// columns shared by the memories and graph_nodes tables.
var scopeColumns = map[string]string{
	"scope.tenant":  "tenant",
	"scope.user":    "user_id",
	"scope.agent":   "agent_id",
	"scope.session": "session_id",
}

// fieldColumns maps every other recognised filter field to its physical
// column name.
var fieldColumns = map[string]string{
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"accessed_at": "accessed_at",
	"categories":  "categories",
	"memory_type": "modality",
	"keywords":    "keywords",
	"is_key":      "is_key",
	"id":          "id",
	"ids":         "id",
}

// column resolves a filter field path to its physical SQL column.
func column(field string) (string, error) {
	if col, ok := scopeColumns[field]; ok {
		return col, nil
	}
	if col, ok := fieldColumns[field]; ok {
		return col, nil
	}
	return "", fmt.Errorf("postgres: unsupported filter field %q", field)
}

// filterArgs accumulates positional query parameters while a [memory.Filter]
// tree is translated into a SQL predicate.
type filterArgs struct {
	values []any
}

func (a *filterArgs) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// translateFilter renders f as a SQL boolean expression, appending its
// operands to args in positional order. An empty filter (zero Op) renders as
// "TRUE" so callers can compose it unconditionally.
func translateFilter(f memory.Filter, args *filterArgs) (string, error) {
	switch f.Op {
	case "":
		return "TRUE", nil
	case memory.OpAnd, memory.OpOr:
		if len(f.Children) == 0 {
			return "TRUE", nil
		}
		parts := make([]string, 0, len(f.Children))
		for _, child := range f.Children {
			part, err := translateFilter(child, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+part+")")
		}
		sep := " AND "
		if f.Op == memory.OpOr {
			sep = " OR "
		}
		return strings.Join(parts, sep), nil
	case memory.OpNot:
		if len(f.Children) != 1 {
			return "", fmt.Errorf("postgres: not filter requires exactly one child")
		}
		inner, err := translateFilter(f.Children[0], args)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	}

	col, err := column(f.Field)
	if err != nil {
		return "", err
	}

	switch f.Op {
	case memory.OpEq:
		return col + " = " + args.add(f.Value), nil
	case memory.OpNe:
		return col + " != " + args.add(f.Value), nil
	case memory.OpGt:
		return col + " > " + args.add(f.Value), nil
	case memory.OpGte:
		return col + " >= " + args.add(f.Value), nil
	case memory.OpLt:
		return col + " < " + args.add(f.Value), nil
	case memory.OpLte:
		return col + " <= " + args.add(f.Value), nil
	case memory.OpIn:
		return col + " = ANY(" + args.add(f.Value) + ")", nil
	case memory.OpContains:
		return col + " LIKE " + args.add("%" + fmt.Sprint(f.Value) + "%"), nil
	case memory.OpIContains:
		return col + " ILIKE " + args.add("%" + fmt.Sprint(f.Value) + "%"), nil
	case memory.OpIsNull:
		return col + " IS NULL", nil
	case memory.OpIsNotNull:
		return col + " IS NOT NULL", nil
	case memory.OpExists:
		return col + " IS NOT NULL", nil
	default:
		return "", fmt.Errorf("postgres: unsupported filter op %q", f.Op)
	}
}
