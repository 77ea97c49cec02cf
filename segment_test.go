// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentMatches(t *testing.T) {
	seg := &segment{
		id:   "beta",
		name: "Beta testers",
		rules: []attributeRule{
			{attribute: "name", operator: opIs, values: []string{"heinz", "hans"}},
			{attribute: "age", operator: opGreaterThanEquals, values: []string{"18"}},
		},
	}

	t.Run("all-rules-match", func(t *testing.T) {
		ok, err := segmentMatches(seg, map[string]Value{
			"name": StringValue("hans"),
			"age":  Int64Value(31),
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("one-rule-fails", func(t *testing.T) {
		ok, err := segmentMatches(seg, map[string]Value{
			"name": StringValue("hans"),
			"age":  Int64Value(17),
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing-attribute-is-benign", func(t *testing.T) {
		ok, err := segmentMatches(seg, map[string]Value{
			"name": StringValue("hans"),
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("values-are-disjunctive", func(t *testing.T) {
		ok, err := segmentMatches(seg, map[string]Value{
			"name": StringValue("heinz"),
			"age":  Int64Value(18),
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("operator-failure-carries-context", func(t *testing.T) {
		_, err := segmentMatches(seg, map[string]Value{
			"name": StringValue("hans"),
			"age":  StringValue("31"),
		})
		var eerr *EntityEvaluationError
		require.ErrorAs(t, err, &eerr)
		assert.Equal(t, "beta", eerr.SegmentID)
		assert.Equal(t, "age", eerr.Attribute)
		assert.Equal(t, "18", eerr.Literal)
		require.ErrorIs(t, err, ErrAttributeNotANumber)
	})
}

func TestFirstApplicable(t *testing.T) {
	segments := map[string]*segment{
		"de": {id: "de", rules: []attributeRule{
			{attribute: "country", operator: opIs, values: []string{"DE"}},
		}},
		"adult": {id: "adult", rules: []attributeRule{
			{attribute: "age", operator: opGreaterThanEquals, values: []string{"18"}},
		}},
	}
	rules := []targetingRule{
		{groups: [][]string{{"de"}}, order: 1},
		{groups: [][]string{{"adult"}}, order: 2},
	}

	t.Run("first-matching-rule-wins", func(t *testing.T) {
		attrs := map[string]Value{
			"country": StringValue("DE"),
			"age":     Int64Value(30),
		}
		rule, seg, err := firstApplicable(rules, segments, attrs)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, uint32(1), rule.order)
		assert.Equal(t, "de", seg.id)
	})

	t.Run("later-rule-applies-when-earlier-misses", func(t *testing.T) {
		attrs := map[string]Value{
			"country": StringValue("FR"),
			"age":     Int64Value(30),
		}
		rule, seg, err := firstApplicable(rules, segments, attrs)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, uint32(2), rule.order)
		assert.Equal(t, "adult", seg.id)
	})

	t.Run("no-rule-applies", func(t *testing.T) {
		attrs := map[string]Value{"country": StringValue("FR")}
		rule, seg, err := firstApplicable(rules, segments, attrs)
		require.NoError(t, err)
		assert.Nil(t, rule)
		assert.Nil(t, seg)
	})

	t.Run("groups-are-disjunctive", func(t *testing.T) {
		both := []targetingRule{
			{groups: [][]string{{"de"}, {"adult"}}, order: 1},
		}
		attrs := map[string]Value{"age": Int64Value(20)}
		rule, seg, err := firstApplicable(both, segments, attrs)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, "adult", seg.id)
	})

	t.Run("unresolved-segment-id", func(t *testing.T) {
		broken := []targetingRule{
			{groups: [][]string{{"ghost"}}, order: 1},
		}
		_, _, err := firstApplicable(broken, segments, map[string]Value{"country": StringValue("DE")})
		var nerr *NotFoundError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "segment", nerr.Kind)
		assert.Equal(t, "ghost", nerr.ID)
	})
}
