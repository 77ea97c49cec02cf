// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOperator(t *testing.T) {
	for _, tt := range []struct {
		name    string
		op      string
		attr    Value
		literal string
		want    bool
	}{
		{"is-string", opIs, StringValue("heinz"), "heinz", true},
		{"is-string-miss", opIs, StringValue("heinz"), "hans", false},
		{"is-bool", opIs, BoolValue(true), "true", true},
		{"is-int", opIs, Int64Value(-7), "-7", true},
		{"is-uint", opIs, UInt64Value(7), "7", true},
		{"is-float", opIs, Float64Value(0.5), "0.5", true},
		{"isNot", opIsNot, StringValue("heinz"), "hans", true},
		{"isNot-miss", opIsNot, StringValue("heinz"), "heinz", false},
		{"contains", opContains, StringValue("heinzketchup"), "ketchup", true},
		{"contains-miss", opContains, StringValue("heinz"), "ketchup", false},
		{"notContains", opNotContains, StringValue("heinz"), "ketchup", true},
		{"startsWith", opStartsWith, StringValue("heinz"), "hei", true},
		{"startsWith-miss", opStartsWith, StringValue("heinz"), "einz", false},
		{"notStartsWith", opNotStartsWith, StringValue("heinz"), "einz", true},
		{"endsWith", opEndsWith, StringValue("heinz"), "inz", true},
		{"notEndsWith", opNotEndsWith, StringValue("heinz"), "hei", true},
		{"greaterThan", opGreaterThan, Int64Value(5), "4", true},
		{"greaterThan-equal", opGreaterThan, Int64Value(5), "5", false},
		{"lesserThan", opLesserThan, Float64Value(1.5), "2", true},
		{"lesserThan-miss", opLesserThan, Float64Value(2.5), "2", false},
		{"greaterThanEquals", opGreaterThanEquals, Int64Value(5), "5", true},
		{"greaterThanEquals-miss", opGreaterThanEquals, Int64Value(4), "5", false},
		{"lesserThanEquals", opLesserThanEquals, UInt64Value(5), "5", true},
		{"lesserThanEquals-miss", opLesserThanEquals, UInt64Value(6), "5", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checkOperator(tt.op, tt.attr, tt.literal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckOperatorErrors(t *testing.T) {
	t.Run("unknown-operator", func(t *testing.T) {
		_, err := checkOperator("matches", StringValue("x"), "x")
		require.ErrorIs(t, err, ErrOperatorNotImplemented)
		var cerr *CheckOperatorError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "matches", cerr.Operator)
	})

	t.Run("string-predicate-on-number", func(t *testing.T) {
		_, err := checkOperator(opContains, Int64Value(5), "5")
		require.ErrorIs(t, err, ErrStringExpected)
	})

	t.Run("ordering-on-string", func(t *testing.T) {
		_, err := checkOperator(opGreaterThan, StringValue("5"), "4")
		require.ErrorIs(t, err, ErrAttributeNotANumber)
	})

	t.Run("ordering-on-bool", func(t *testing.T) {
		_, err := checkOperator(opLesserThanEquals, BoolValue(true), "1")
		require.ErrorIs(t, err, ErrAttributeNotANumber)
	})

	t.Run("unparsable-numeric-literal", func(t *testing.T) {
		_, err := checkOperator(opGreaterThan, Int64Value(5), "not-a-number")
		var cerr *CheckOperatorError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("unparsable-bool-literal", func(t *testing.T) {
		_, err := checkOperator(opIs, BoolValue(true), "yep")
		var cerr *CheckOperatorError
		require.ErrorAs(t, err, &cerr)
	})
}

// Literal comparisons respect the attribute's own numeric type: the
// same literal parses differently against int64 and float64 attributes.
func TestNumericLiteralFollowsAttributeType(t *testing.T) {
	got, err := checkOperator(opIs, Float64Value(2), "2")
	require.NoError(t, err)
	assert.True(t, got)

	// Fractional literal against an integer attribute does not parse.
	_, err = checkOperator(opIs, Int64Value(2), "2.0")
	var cerr *CheckOperatorError
	require.ErrorAs(t, err, &cerr)
}
