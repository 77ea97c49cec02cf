// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"sort"
)

// Snapshot is an immutable, validated, indexed in-memory view of one
// environment's features, properties and referenced segments. The
// live-configuration worker builds a fresh Snapshot from every fetched
// document and swaps it in atomically; a Snapshot never changes after
// construction.
type Snapshot struct {
	environmentID string
	features      map[string]*featureEntry
	properties    map[string]*propertyEntry
}

// featureEntry pairs a feature with exactly the segments its rules
// reference, resolved at construction time.
type featureEntry struct {
	feature  *featureFlag
	segments map[string]*segment
}

type propertyEntry struct {
	property *property
	segments map[string]*segment
}

// NewSnapshot validates and indexes the raw configuration document for
// the given environment. It fails with a NotFoundError when the
// environment is absent, a MissingSegmentsError when a rule references
// a segment the document does not carry, and a ProtocolError for
// malformed values.
func NewSnapshot(environmentID string, raw []byte) (*Snapshot, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, err
	}
	return newSnapshotFromDocument(environmentID, doc)
}

func newSnapshotFromDocument(environmentID string, doc *configurationDocument) (*Snapshot, error) {
	var env *environmentDoc
	for i := range doc.Environments {
		if doc.Environments[i].EnvironmentID == environmentID {
			env = &doc.Environments[i]
			break
		}
	}
	if env == nil {
		return nil, &NotFoundError{Kind: "environment", ID: environmentID}
	}

	segments := make(map[string]*segment, len(doc.Segments))
	for i := range doc.Segments {
		seg, err := parseSegment(&doc.Segments[i])
		if err != nil {
			return nil, err
		}
		segments[seg.id] = seg
	}

	snap := &Snapshot{
		environmentID: environmentID,
		features:      make(map[string]*featureEntry, len(env.Features)),
		properties:    make(map[string]*propertyEntry, len(env.Properties)),
	}

	for i := range env.Features {
		f, err := parseFeature(&env.Features[i])
		if err != nil {
			return nil, err
		}
		sortRules(f.rules)
		resolved, err := resolveSegments(f.rules, segments, f.id)
		if err != nil {
			return nil, err
		}
		snap.features[f.id] = &featureEntry{feature: f, segments: resolved}
	}

	for i := range env.Properties {
		p, err := parseProperty(&env.Properties[i])
		if err != nil {
			return nil, err
		}
		sortRules(p.rules)
		resolved, err := resolveSegments(p.rules, segments, p.id)
		if err != nil {
			return nil, err
		}
		snap.properties[p.id] = &propertyEntry{property: p, segments: resolved}
	}

	return snap, nil
}

// sortRules orders targeting rules ascending by order. Equal orders
// should not occur; the stable sort keeps document order so the first
// one wins.
func sortRules(rules []targetingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].order < rules[j].order
	})
}

// resolveSegments collects every segment transitively referenced by the
// rules. A reference with no matching segment in the document fails the
// whole snapshot.
func resolveSegments(rules []targetingRule, segments map[string]*segment, resourceID string) (map[string]*segment, error) {
	resolved := make(map[string]*segment)
	for i := range rules {
		for _, id := range rules[i].segmentIDs() {
			seg, ok := segments[id]
			if !ok {
				return nil, &MissingSegmentsError{ResourceID: resourceID}
			}
			resolved[id] = seg
		}
	}
	return resolved, nil
}

// EnvironmentID returns the environment this snapshot was built for.
func (s *Snapshot) EnvironmentID() string { return s.environmentID }

// FeatureIDs returns the ids of all features in the snapshot, sorted.
func (s *Snapshot) FeatureIDs() []string {
	ids := make([]string, 0, len(s.features))
	for id := range s.features {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PropertyIDs returns the ids of all properties in the snapshot, sorted.
func (s *Snapshot) PropertyIDs() []string {
	ids := make([]string, 0, len(s.properties))
	for id := range s.properties {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Snapshot) feature(id string) (*featureEntry, error) {
	entry, ok := s.features[id]
	if !ok {
		return nil, &NotFoundError{Kind: "feature", ID: id}
	}
	return entry, nil
}

func (s *Snapshot) property(id string) (*propertyEntry, error) {
	entry, ok := s.properties[id]
	if !ok {
		return nil, &NotFoundError{Kind: "property", ID: id}
	}
	return entry, nil
}
