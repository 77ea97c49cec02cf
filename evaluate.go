// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"math"

	"github.com/twmb/murmur3"
)

// normalizedHash buckets a string into [0,99] using MurmurHash3 x86
// 32-bit with seed 0. The hash and the floating point normalization are
// a compatibility contract shared with the other SDKs of the ecosystem:
// the same entity must land in the same bucket everywhere, and the
// integer-math equivalent of the normalization differs at boundary
// values. Do not substitute another hash.
func normalizedHash(s string) uint32 {
	h := murmur3.StringSum32(s)
	return uint32(math.Floor(float64(h) / float64(1<<32) * 100))
}

// shouldRollout reports whether the entity falls inside the rollout
// percentage for the given subject. Bucketing is deterministic per
// (entity, subject) pair so repeated evaluations are stable.
func shouldRollout(pct uint32, entityID, subjectID string) bool {
	if pct == 100 {
		return true
	}
	if pct == 0 {
		return false
	}
	return normalizedHash(entityID+":"+subjectID) < pct
}

// evaluateFeature computes the feature's value for the entity and
// returns it together with the id of the matched segment, if any. The
// segment id is reported even when the rollout decision falls back to
// the disabled value, so that metering reflects the targeting outcome.
func evaluateFeature(entry *featureEntry, e Entity) (Value, string, error) {
	f := entry.feature
	if !f.enabled {
		return f.disabledValue, "", nil
	}

	rule, seg, err := selectRule(f.rules, entry.segments, e)
	if err != nil {
		return nil, "", err
	}

	if rule == nil {
		if shouldRollout(f.rolloutPercentage, e.EntityID(), f.id) {
			return f.enabledValue, "", nil
		}
		return f.disabledValue, "", nil
	}

	pct, err := effectiveRollout(rule, f.rolloutPercentage, f.id)
	if err != nil {
		return nil, "", err
	}
	if !shouldRollout(pct, e.EntityID(), f.id) {
		return f.disabledValue, seg.id, nil
	}
	if rule.value == nil {
		return f.enabledValue, seg.id, nil
	}
	v, err := coerceValue(rule.value, f.kind)
	if err != nil {
		return nil, "", err
	}
	return v, seg.id, nil
}

// evaluateProperty computes the property's value for the entity. There
// is no enabled/disabled branching and no rollout: the property value
// applies when no rule matches or the matched rule carries $default.
func evaluateProperty(entry *propertyEntry, e Entity) (Value, string, error) {
	p := entry.property
	rule, seg, err := selectRule(p.rules, entry.segments, e)
	if err != nil {
		return nil, "", err
	}
	if rule == nil {
		return p.value, "", nil
	}
	if rule.value == nil {
		return p.value, seg.id, nil
	}
	v, err := coerceValue(rule.value, p.kind)
	if err != nil {
		return nil, "", err
	}
	return v, seg.id, nil
}

// selectRule skips targeting entirely when there are no rules or the
// entity carries no attributes.
func selectRule(rules []targetingRule, segments map[string]*segment, e Entity) (*targetingRule, *segment, error) {
	if len(rules) == 0 {
		return nil, nil, nil
	}
	attrs := e.Attributes()
	if len(attrs) == 0 {
		return nil, nil, nil
	}
	return firstApplicable(rules, segments, attrs)
}

// effectiveRollout resolves the rollout percentage of a matched rule.
// The $default sentinel inherits the parent percentage; a rule that
// carries neither a percentage nor the sentinel is malformed.
func effectiveRollout(rule *targetingRule, parentPct uint32, resourceID string) (uint32, error) {
	switch rule.rollout.kind {
	case rolloutInherit:
		return parentPct, nil
	case rolloutFixed:
		return rule.rollout.pct, nil
	}
	return 0, newProtocolError("matched targeting rule of %q carries no rollout_percentage", resourceID)
}
