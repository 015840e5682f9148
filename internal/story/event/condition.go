package event

import "fmt"

// Op is a comparison operator used by VarCmp.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpLt Op = "lt"
	OpLe Op = "le"
	OpGt Op = "gt"
	OpGe Op = "ge"
)

// ParseOp validates an operator name.
func ParseOp(raw string) (Op, bool) {
	switch op := Op(raw); op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return op, true
	default:
		return "", false
	}
}

// Compare applies op to left and right.
func (op Op) Compare(left, right int64) bool {
	switch op {
	case OpEq:
		return left == right
	case OpNe:
		return left != right
	case OpLt:
		return left < right
	case OpLe:
		return left <= right
	case OpGt:
		return left > right
	case OpGe:
		return left >= right
	default:
		panic(fmt.Sprintf("event: unknown comparison operator %q", string(op)))
	}
}

// Condition is the predicate of a JumpIf. It is either VarCmp or FlagIs.
type Condition interface {
	conditionKind() string
}

// VarCmp compares an integer variable against a literal.
type VarCmp struct {
	Key   string
	Op    Op
	Value int64
}

// FlagIs tests whether a flag is set.
type FlagIs struct {
	Key   string
	IsSet bool
}

func (VarCmp) conditionKind() string { return "var_cmp" }
func (FlagIs) conditionKind() string { return "flag" }

// ConditionKind returns the wire name of c.
func ConditionKind(c Condition) string {
	return c.conditionKind()
}

// DescribeCondition renders c for traces and renderers.
func DescribeCondition(c Condition) string {
	switch cond := c.(type) {
	case VarCmp:
		return fmt.Sprintf("%s %s %d", cond.Key, cond.Op, cond.Value)
	case FlagIs:
		if cond.IsSet {
			return cond.Key
		}
		return "!" + cond.Key
	default:
		panic(fmt.Sprintf("event: unhandled condition type %T", c))
	}
}
