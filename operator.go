// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Targeting rule operators as they appear on the wire. The negated and
// *Equals forms are the boolean complement of their base form; the
// engine implements the primitive and negates.
const (
	opIs                = "is"
	opIsNot             = "isNot"
	opContains          = "contains"
	opNotContains       = "notContains"
	opStartsWith        = "startsWith"
	opNotStartsWith     = "notStartsWith"
	opEndsWith          = "endsWith"
	opNotEndsWith       = "notEndsWith"
	opGreaterThan       = "greaterThan"
	opLesserThan        = "lesserThan"
	opGreaterThanEquals = "greaterThanEquals"
	opLesserThanEquals  = "lesserThanEquals"
)

// checkOperator evaluates `attr OP literal` for one typed attribute
// value and one string literal, independent of segment context. Errors
// are wrapped in a CheckOperatorError; callers attach segment and rule
// context.
func checkOperator(op string, attr Value, literal string) (bool, error) {
	ok, err := applyOperator(op, attr, literal)
	if err != nil {
		if _, wrapped := err.(*CheckOperatorError); !wrapped {
			err = &CheckOperatorError{Operator: op, Err: err}
		}
		return false, err
	}
	return ok, nil
}

func applyOperator(op string, attr Value, literal string) (bool, error) {
	switch op {
	case opIs:
		return checkIs(attr, literal)
	case opIsNot:
		return negated(checkIs(attr, literal))
	case opContains:
		return checkString(attr, literal, strings.Contains)
	case opNotContains:
		return negated(checkString(attr, literal, strings.Contains))
	case opStartsWith:
		return checkString(attr, literal, strings.HasPrefix)
	case opNotStartsWith:
		return negated(checkString(attr, literal, strings.HasPrefix))
	case opEndsWith:
		return checkString(attr, literal, strings.HasSuffix)
	case opNotEndsWith:
		return negated(checkString(attr, literal, strings.HasSuffix))
	case opGreaterThan:
		return checkOrdered(attr, literal, false)
	case opLesserThan:
		return checkOrdered(attr, literal, true)
	case opGreaterThanEquals:
		return negated(checkOrdered(attr, literal, true))
	case opLesserThanEquals:
		return negated(checkOrdered(attr, literal, false))
	}
	return false, ErrOperatorNotImplemented
}

func negated(ok bool, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// checkIs parses the literal into the attribute's own variant and
// compares for equality. A literal that does not parse fails the check
// with an error rather than returning false.
func checkIs(attr Value, literal string) (bool, error) {
	switch a := attr.(type) {
	case StringValue:
		return string(a) == literal, nil
	case BoolValue:
		b, err := strconv.ParseBool(literal)
		if err != nil {
			return false, err
		}
		return bool(a) == b, nil
	case Int64Value, UInt64Value, Float64Value:
		lit, err := parseNumericLiteral(literal, attr)
		if err != nil {
			return false, err
		}
		return attr == lit, nil
	}
	return false, ErrOperatorNotImplemented
}

func checkString(attr Value, literal string, pred func(s, substr string) bool) (bool, error) {
	s, ok := attr.(StringValue)
	if !ok {
		return false, ErrStringExpected
	}
	return pred(string(s), literal), nil
}

// checkOrdered compares a numeric attribute against the literal parsed
// into the attribute's numeric type. lesser selects `attr < literal`
// over `attr > literal`.
func checkOrdered(attr Value, literal string, lesser bool) (bool, error) {
	lit, err := parseNumericLiteral(literal, attr)
	if err != nil {
		return false, err
	}
	switch a := attr.(type) {
	case Int64Value:
		l := lit.(Int64Value)
		if lesser {
			return a < l, nil
		}
		return a > l, nil
	case UInt64Value:
		l := lit.(UInt64Value)
		if lesser {
			return a < l, nil
		}
		return a > l, nil
	case Float64Value:
		l := lit.(Float64Value)
		if lesser {
			return a < l, nil
		}
		return a > l, nil
	}
	return false, ErrAttributeNotANumber
}

// Parsed numeric literals are memoized so hot targeting rules do not
// re-parse the same strings on every evaluation.

type literalCacheKey struct {
	literal string
	tag     uint8
}

const literalCacheSize = 1024

var literalCache *lru.Cache[literalCacheKey, Value]

func init() {
	literalCache, _ = lru.New[literalCacheKey, Value](literalCacheSize)
}

func literalTag(v Value) uint8 {
	switch v.(type) {
	case Int64Value:
		return 1
	case UInt64Value:
		return 2
	case Float64Value:
		return 3
	}
	return 0
}

// parseNumericLiteral parses literal into the same numeric variant as
// like. A non-numeric attribute is rejected with ErrAttributeNotANumber.
func parseNumericLiteral(literal string, like Value) (Value, error) {
	tag := literalTag(like)
	if tag == 0 {
		return nil, ErrAttributeNotANumber
	}
	key := literalCacheKey{literal: literal, tag: tag}
	if v, ok := literalCache.Get(key); ok {
		return v, nil
	}
	var v Value
	switch like.(type) {
	case Int64Value:
		i, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, err
		}
		v = Int64Value(i)
	case UInt64Value:
		u, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return nil, err
		}
		v = UInt64Value(u)
	case Float64Value:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, err
		}
		v = Float64Value(f)
	}
	literalCache.Add(key, v)
	return v, nil
}
