package evauthz

import (
	"fmt"
	"strings"
)

// ============================================================================
// CONDITION GRAMMAR
// ============================================================================

// Condition is a closed set of predicates over a Context. The only implementations
// are EqExpr, NeExpr, ContainsExpr and OrExpr; Evaluate switches over them.
type Condition interface {
	String() string
	condition()
}

// EqExpr is true when Field and Key hold equal values. With Null set it is true when
// Field is present and holds the nil sentinel.
type EqExpr struct {
	Field string
	Key   string
	Null  bool
}

// NeExpr is true when Field and Key are both present and differ. With Null set it is
// true when Field is present and attached.
type NeExpr struct {
	Field string
	Key   string
	Null  bool
}

// ContainsExpr is true when the sequence at List contains the value at Item.
type ContainsExpr struct {
	List string
	Item string
}

// OrExpr is true when any child is true.
type OrExpr struct {
	Children []Condition
}

func (*EqExpr) condition()       {}
func (*NeExpr) condition()       {}
func (*ContainsExpr) condition() {}
func (*OrExpr) condition()       {}

// cloneCondition returns a copy of c sharing no pointers with it.
func cloneCondition(c Condition) Condition {
	switch e := c.(type) {
	case *EqExpr:
		dup := *e
		return &dup
	case *NeExpr:
		dup := *e
		return &dup
	case *ContainsExpr:
		dup := *e
		return &dup
	case *OrExpr:
		children := make([]Condition, len(e.Children))
		for i, child := range e.Children {
			children[i] = cloneCondition(child)
		}
		return &OrExpr{Children: children}
	default:
		return c
	}
}

func (e *EqExpr) String() string {
	if e.Null {
		return e.Field + " == null"
	}
	return e.Field + " == " + e.Key
}

func (e *NeExpr) String() string {
	if e.Null {
		return e.Field + " != null"
	}
	return e.Field + " != " + e.Key
}

func (e *ContainsExpr) String() string {
	return e.Item + " in " + e.List
}

func (e *OrExpr) String() string {
	parts := make([]string, 0, len(e.Children))
	for _, c := range e.Children {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " || ")
}

// Eq compares two context entries.
func Eq(field, key string) Condition { return &EqExpr{Field: field, Key: key} }

// IsNull matches the "not attached" sentinel.
func IsNull(field string) Condition { return &EqExpr{Field: field, Null: true} }

// Ne is the negation of Eq over two present context entries.
func Ne(field, key string) Condition { return &NeExpr{Field: field, Key: key} }

// In checks list membership: the value at item is an element of the list at list.
func In(list, item string) Condition { return &ContainsExpr{List: list, Item: item} }

// AnyOf ORs its children.
func AnyOf(children ...Condition) Condition { return &OrExpr{Children: children} }

// ============================================================================
// EVALUATION
// ============================================================================

// Evaluate is total: missing keys, wrong types and nil conditions never panic.
// A nil condition is unconditional and evaluates to true.
func Evaluate(cond Condition, ctx Context) bool {
	switch c := cond.(type) {
	case nil:
		return true
	case *EqExpr:
		v, ok := ctx[c.Field]
		if !ok {
			return false
		}
		if c.Null {
			return isUnset(v)
		}
		w, ok := ctx[c.Key]
		if !ok || isUnset(v) || isUnset(w) {
			return false
		}
		return sameValue(v, w)
	case *NeExpr:
		v, ok := ctx[c.Field]
		if !ok {
			return false
		}
		if c.Null {
			return !isUnset(v)
		}
		w, ok := ctx[c.Key]
		if !ok || isUnset(v) || isUnset(w) {
			return false
		}
		return !sameValue(v, w)
	case *ContainsExpr:
		item, ok := ctx[c.Item]
		if !ok || isUnset(item) {
			return false
		}
		return listContains(ctx[c.List], item)
	case *OrExpr:
		for _, child := range c.Children {
			if Evaluate(child, ctx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Keys returns the context keys cond references, in first-seen order.
func Keys(cond Condition) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	var walk func(Condition)
	walk = func(c Condition) {
		switch n := c.(type) {
		case *EqExpr:
			add(n.Field)
			if !n.Null {
				add(n.Key)
			}
		case *NeExpr:
			add(n.Field)
			if !n.Null {
				add(n.Key)
			}
		case *ContainsExpr:
			add(n.List)
			add(n.Item)
		case *OrExpr:
			for _, ch := range n.Children {
				walk(ch)
			}
		}
	}
	walk(cond)
	return out
}

// validateCondition checks structure and key references.
func validateCondition(cond Condition) error {
	switch c := cond.(type) {
	case nil:
		return nil
	case *EqExpr:
		if c.Field == "" || (!c.Null && c.Key == "") {
			return fmt.Errorf("equality needs two operands: %q", c.String())
		}
	case *NeExpr:
		if c.Field == "" || (!c.Null && c.Key == "") {
			return fmt.Errorf("inequality needs two operands: %q", c.String())
		}
	case *ContainsExpr:
		if c.List == "" || c.Item == "" {
			return fmt.Errorf("list membership needs a list and an item: %q", c.String())
		}
	case *OrExpr:
		if len(c.Children) == 0 {
			return fmt.Errorf("empty OR")
		}
		for _, ch := range c.Children {
			if ch == nil {
				return fmt.Errorf("nil OR branch")
			}
			if err := validateCondition(ch); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported condition %T", cond)
	}
	for _, k := range Keys(cond) {
		if _, ok := knownKeys[k]; !ok {
			return fmt.Errorf("unknown context key %q", k)
		}
	}
	return nil
}

func isUnset(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return vv == ""
	}
	return false
}

func sameValue(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func listContains(list any, item any) bool {
	switch l := list.(type) {
	case []string:
		for _, v := range l {
			if sameValue(v, item) {
				return true
			}
		}
	case []any:
		for _, v := range l {
			if !isUnset(v) && sameValue(v, item) {
				return true
			}
		}
	}
	return false
}
