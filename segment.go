// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

// segmentMatches reports whether every rule of the segment matches the
// given attributes. A rule with a missing attribute fails the segment
// without an error: callers commonly evaluate shared flags without
// knowing every attribute a rule uses, and a silent non-match keeps
// that benign. Typed operator mismatches stay loud.
func segmentMatches(seg *segment, attrs map[string]Value) (bool, error) {
	for _, rule := range seg.rules {
		attr, ok := attrs[rule.attribute]
		if !ok {
			return false, nil
		}
		matched := false
		for _, literal := range rule.values {
			ok, err := checkOperator(rule.operator, attr, literal)
			if err != nil {
				return false, &EntityEvaluationError{
					SegmentID: seg.id,
					Attribute: rule.attribute,
					Literal:   literal,
					Err:       err,
				}
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// firstApplicable walks the targeting rules, already sorted ascending
// by order, and returns the first rule whose groups contain a segment
// that matches the attributes, together with that segment. A segment id
// missing from the resolved set is an integrity violation and surfaces
// as a NotFoundError.
func firstApplicable(rules []targetingRule, segments map[string]*segment, attrs map[string]Value) (*targetingRule, *segment, error) {
	for i := range rules {
		rule := &rules[i]
		for _, group := range rule.groups {
			for _, id := range group {
				seg, ok := segments[id]
				if !ok {
					return nil, nil, &NotFoundError{Kind: "segment", ID: id}
				}
				matched, err := segmentMatches(seg, attrs)
				if err != nil {
					return nil, nil, err
				}
				if matched {
					return rule, seg, nil
				}
			}
		}
	}
	return nil, nil, nil
}
