// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"encoding/json"
	"strconv"
	"strings"
)

// defaultSentinel is the literal that, inside the value or
// rollout_percentage fields of a targeting rule, means "inherit from
// the parent feature or property". Anywhere else it is an ordinary
// string.
const defaultSentinel = "$default"

// Wire model of the configuration document. Raw values stay
// json.RawMessage until the snapshot builder tags them, so that a
// malformed value is reported against the resource that carries it.

type configurationDocument struct {
	Environments []environmentDoc `json:"environments"`
	Segments     []segmentDoc     `json:"segments"`
}

type environmentDoc struct {
	EnvironmentID string        `json:"environment_id"`
	Name          string        `json:"name"`
	Features      []featureDoc  `json:"features"`
	Properties    []propertyDoc `json:"properties"`
}

type featureDoc struct {
	FeatureID         string             `json:"feature_id"`
	Name              string             `json:"name"`
	Type              string             `json:"type"`
	EnabledValue      json.RawMessage    `json:"enabled_value"`
	DisabledValue     json.RawMessage    `json:"disabled_value"`
	Enabled           bool               `json:"enabled"`
	RolloutPercentage *uint32            `json:"rollout_percentage"`
	SegmentRules      []targetingRuleDoc `json:"segment_rules"`
}

type propertyDoc struct {
	PropertyID   string             `json:"property_id"`
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Value        json.RawMessage    `json:"value"`
	SegmentRules []targetingRuleDoc `json:"segment_rules"`
}

type segmentDoc struct {
	SegmentID string    `json:"segment_id"`
	Name      string    `json:"name"`
	Rules     []ruleDoc `json:"rules"`
}

type ruleDoc struct {
	AttributeName string   `json:"attribute_name"`
	Operator      string   `json:"operator"`
	Values        []string `json:"values"`
}

// targetingRuleDoc is named segment_rules on the wire. Its rules field
// is a list of disjunctive segment groups.
type targetingRuleDoc struct {
	Rules             []targetGroupDoc `json:"rules"`
	Value             json.RawMessage  `json:"value"`
	Order             uint32           `json:"order"`
	RolloutPercentage json.RawMessage  `json:"rollout_percentage"`
}

type targetGroupDoc struct {
	Segments []string `json:"segments"`
}

// Compiled model. Built once per snapshot; immutable afterwards.

type featureFlag struct {
	id                string
	name              string
	kind              ValueKind
	enabled           bool
	enabledValue      Value
	disabledValue     Value
	rolloutPercentage uint32
	rules             []targetingRule
}

type property struct {
	id    string
	name  string
	kind  ValueKind
	value Value
	rules []targetingRule
}

type segment struct {
	id    string
	name  string
	rules []attributeRule
}

type attributeRule struct {
	attribute string
	operator  string
	values    []string
}

// targetingRule is a compiled segment_rules entry. A nil value means
// the $default sentinel (inherit the parent's value).
type targetingRule struct {
	groups  [][]string
	value   Value
	order   uint32
	rollout rolloutSetting
}

type rolloutKind int

const (
	// rolloutAbsent: the document carried no rollout_percentage.
	rolloutAbsent rolloutKind = iota
	// rolloutInherit: the document carried the $default sentinel.
	rolloutInherit
	// rolloutFixed: a percentage in [0,100].
	rolloutFixed
)

type rolloutSetting struct {
	kind rolloutKind
	pct  uint32
}

func parseDocument(raw []byte) (*configurationDocument, error) {
	var doc configurationDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newProtocolError("malformed configuration document: %v", err)
	}
	return &doc, nil
}

func parseSegment(doc *segmentDoc) (*segment, error) {
	if doc.SegmentID == "" {
		return nil, newProtocolError("segment without segment_id")
	}
	rules := make([]attributeRule, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		if len(r.Values) == 0 {
			return nil, newProtocolError("segment %q has a rule without values", doc.SegmentID)
		}
		rules = append(rules, attributeRule{
			attribute: r.AttributeName,
			operator:  r.Operator,
			values:    r.Values,
		})
	}
	return &segment{id: doc.SegmentID, name: doc.Name, rules: rules}, nil
}

func parseTargetingRule(doc *targetingRuleDoc, resourceID string) (targetingRule, error) {
	groups := make([][]string, 0, len(doc.Rules))
	for _, g := range doc.Rules {
		groups = append(groups, g.Segments)
	}
	rule := targetingRule{groups: groups, order: doc.Order}

	if isDefaultSentinel(doc.Value) {
		rule.value = nil
	} else {
		v, err := valueFromRaw(doc.Value)
		if err != nil {
			return targetingRule{}, newProtocolError("targeting rule of %q: %v", resourceID, err)
		}
		rule.value = v
	}

	rollout, err := parseRolloutSetting(doc.RolloutPercentage, resourceID)
	if err != nil {
		return targetingRule{}, err
	}
	rule.rollout = rollout
	return rule, nil
}

func isDefaultSentinel(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == strconv.Quote(defaultSentinel)
}

func parseRolloutSetting(raw json.RawMessage, resourceID string) (rolloutSetting, error) {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null":
		return rolloutSetting{kind: rolloutAbsent}, nil
	case s == strconv.Quote(defaultSentinel):
		return rolloutSetting{kind: rolloutInherit}, nil
	default:
		pct, err := strconv.ParseUint(s, 10, 32)
		if err != nil || pct > 100 {
			return rolloutSetting{}, newProtocolError("targeting rule of %q has invalid rollout_percentage %s", resourceID, s)
		}
		return rolloutSetting{kind: rolloutFixed, pct: uint32(pct)}, nil
	}
}

func parseFeature(doc *featureDoc) (*featureFlag, error) {
	if doc.FeatureID == "" {
		return nil, newProtocolError("feature without feature_id")
	}
	kind, err := parseValueKind(doc.Type)
	if err != nil {
		return nil, newProtocolError("feature %q: %v", doc.FeatureID, err)
	}
	enabledValue, err := valueFromRaw(doc.EnabledValue)
	if err != nil {
		return nil, newProtocolError("feature %q enabled_value: %v", doc.FeatureID, err)
	}
	disabledValue, err := valueFromRaw(doc.DisabledValue)
	if err != nil {
		return nil, newProtocolError("feature %q disabled_value: %v", doc.FeatureID, err)
	}
	// Absent rollout means a full rollout.
	pct := uint32(100)
	if doc.RolloutPercentage != nil {
		pct = *doc.RolloutPercentage
		if pct > 100 {
			return nil, newProtocolError("feature %q has invalid rollout_percentage %d", doc.FeatureID, pct)
		}
	}
	rules, err := parseTargetingRules(doc.SegmentRules, doc.FeatureID)
	if err != nil {
		return nil, err
	}
	return &featureFlag{
		id:                doc.FeatureID,
		name:              doc.Name,
		kind:              kind,
		enabled:           doc.Enabled,
		enabledValue:      enabledValue,
		disabledValue:     disabledValue,
		rolloutPercentage: pct,
		rules:             rules,
	}, nil
}

func parseProperty(doc *propertyDoc) (*property, error) {
	if doc.PropertyID == "" {
		return nil, newProtocolError("property without property_id")
	}
	kind, err := parseValueKind(doc.Type)
	if err != nil {
		return nil, newProtocolError("property %q: %v", doc.PropertyID, err)
	}
	value, err := valueFromRaw(doc.Value)
	if err != nil {
		return nil, newProtocolError("property %q value: %v", doc.PropertyID, err)
	}
	rules, err := parseTargetingRules(doc.SegmentRules, doc.PropertyID)
	if err != nil {
		return nil, err
	}
	return &property{
		id:    doc.PropertyID,
		name:  doc.Name,
		kind:  kind,
		value: value,
		rules: rules,
	}, nil
}

func parseTargetingRules(docs []targetingRuleDoc, resourceID string) ([]targetingRule, error) {
	rules := make([]targetingRule, 0, len(docs))
	for i := range docs {
		rule, err := parseTargetingRule(&docs[i], resourceID)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// segmentIDs returns every segment id referenced by the rule's groups,
// in iteration order, without duplicates.
func (r *targetingRule) segmentIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, group := range r.groups {
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
