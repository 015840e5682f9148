// Package filter translates AIP-160 slot list filters into SQL.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// SlotDeclarations returns the identifiers a slot filter may reference.
func SlotDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("slot_id", filtering.TypeInt),
		filtering.DeclareIdent("quick", filtering.TypeBool),
		filtering.DeclareIdent("position", filtering.TypeInt),
		filtering.DeclareIdent("script_id", filtering.TypeString),
		filtering.DeclareIdent("chapter_label", filtering.TypeString),
		filtering.DeclareIdent("updated_at", filtering.TypeTimestamp),
	)
}

// Condition is a WHERE clause fragment with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition matches everything.
func (c Condition) Empty() bool {
	return c.Clause == ""
}

type column struct {
	name      string
	timestamp bool
}

var columns = map[string]column{
	"slot_id":       {name: "slot_id"},
	"quick":         {name: "quick"},
	"position":      {name: "position"},
	"script_id":     {name: "script_id"},
	"chapter_label": {name: "chapter_label"},
	"updated_at":    {name: "updated_at", timestamp: true},
}

var operators = map[string]string{
	"_==_": "=", "=": "=",
	"_!=_": "!=", "!=": "!=",
	"_<_": "<", "<": "<",
	"_<=_": "<=", "<=": "<=",
	"_>_": ">", ">": ">",
	"_>=_": ">=", ">=": ">=",
}

// Parse turns filter into a SQL condition. An empty filter yields an empty
// condition.
func Parse(filter string) (Condition, error) {
	if strings.TrimSpace(filter) == "" {
		return Condition{}, nil
	}
	decls, err := SlotDeclarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filter, decls)
	if err != nil {
		return Condition{}, fmt.Errorf("parse filter: %w", err)
	}
	return translate(parsed.CheckedExpr.GetExpr())
}

func translate(e *expr.Expr) (Condition, error) {
	if e == nil {
		return Condition{}, nil
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return Condition{}, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
	fn := call.CallExpr.Function
	args := call.CallExpr.Args
	switch fn {
	case "_&&_", "AND":
		return join(args, "AND")
	case "_||_", "OR":
		return join(args, "OR")
	case "NOT", "_!_":
		if len(args) != 1 {
			return Condition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := translate(args[0])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Clause: "NOT (" + inner.Clause + ")", Params: inner.Params}, nil
	}
	if op, ok := operators[fn]; ok {
		return compare(args, op)
	}
	return Condition{}, fmt.Errorf("unsupported function: %s", fn)
}

func join(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("%s requires 2 arguments", op)
	}
	left, err := translate(args[0])
	if err != nil {
		return Condition{}, err
	}
	right, err := translate(args[1])
	if err != nil {
		return Condition{}, err
	}
	return Condition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func compare(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return Condition{}, fmt.Errorf("expected identifier, got %T", args[0].GetExprKind())
	}
	col, ok := columns[ident.IdentExpr.Name]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field: %s", ident.IdentExpr.Name)
	}
	value, err := extractValue(args[1], col)
	if err != nil {
		return Condition{}, err
	}
	return Condition{
		Clause: fmt.Sprintf("%s %s ?", col.name, op),
		Params: []any{value},
	}, nil
}

func extractValue(e *expr.Expr, col column) (any, error) {
	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_ConstExpr:
		if col.timestamp {
			return nil, fmt.Errorf("%s must be compared with timestamp(...)", col.name)
		}
		return constValue(kind.ConstExpr)
	case *expr.Expr_IdentExpr:
		// Bare true/false arrive as identifiers in some parser versions.
		switch kind.IdentExpr.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("unexpected identifier in value position: %s", kind.IdentExpr.Name)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return timestampMillis(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func constValue(c *expr.Constant) (any, error) {
	switch kind := c.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(kind.Uint64Value), nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

// timestampMillis converts a timestamp("...") argument to the unix
// milliseconds the slot table stores.
func timestampMillis(e *expr.Expr) (int64, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a constant string")
	}
	s, ok := c.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, s.StringValue)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", s.StringValue)
	}
	return t.UTC().UnixMilli(), nil
}
