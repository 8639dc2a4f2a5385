package evauthz

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	eqRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\s*(==|!=)\s*([A-Za-z][A-Za-z0-9_]*)$`)
	inRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\s+in\s+([A-Za-z][A-Za-z0-9_]*)$`)
)

// ParseCondition parses the text form used in catalog files:
//
//	user == owner
//	site == null
//	user != owner
//	site in sites
//	site == null || site in sites
//
// An empty string yields a nil (unconditional) condition.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	terms := strings.Split(s, "||")
	if len(terms) == 1 {
		return parseTerm(terms[0])
	}
	children := make([]Condition, 0, len(terms))
	for _, t := range terms {
		c, err := parseTerm(t)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return AnyOf(children...), nil
}

// MustParseCondition panics if s does not parse. Intended for static definitions.
func MustParseCondition(s string) Condition {
	c, err := ParseCondition(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseTerm(t string) (Condition, error) {
	t = strings.TrimSpace(t)
	if t == "" {
		return nil, fmt.Errorf("empty condition term")
	}
	if m := eqRe.FindStringSubmatch(t); len(m) == 4 {
		left, op, right := m[1], m[2], m[3]
		null := right == "null"
		if op == "==" {
			return &EqExpr{Field: left, Key: keyOrEmpty(right, null), Null: null}, nil
		}
		return &NeExpr{Field: left, Key: keyOrEmpty(right, null), Null: null}, nil
	}
	if m := inRe.FindStringSubmatch(t); len(m) == 3 {
		return In(m[2], m[1]), nil
	}
	return nil, fmt.Errorf("unsupported condition syntax: %s", t)
}

func keyOrEmpty(k string, null bool) string {
	if null {
		return ""
	}
	return k
}
