// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBatch(t *testing.T, raw []byte) meteringPayload {
	t.Helper()
	var payload meteringPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func usageFor(t *testing.T, payload meteringPayload, match func(usageDoc) bool) usageDoc {
	t.Helper()
	for _, u := range payload.Usages {
		if match(u) {
			return u
		}
	}
	t.Fatalf("no matching usage in %+v", payload.Usages)
	return usageDoc{}
}

func TestMeteringAggregation(t *testing.T) {
	sc := newFakeServerClient()
	m := newMeteringAggregator(sc, testConfigurationID, time.Millisecond)
	m.start()
	defer m.stop()

	m.record(subjectFeature, "f1", "a1", "")
	m.record(subjectFeature, "f1", "a1", "")
	m.record(subjectProperty, "p1", "a1", "beta")

	require.Eventually(t, func() bool { return sc.batchCount() >= 1 }, waitFor, tick)
	payload := decodeBatch(t, sc.batchAt(0))

	assert.Equal(t, "web", payload.CollectionID)
	assert.Equal(t, "dev", payload.EnvironmentID)
	require.Len(t, payload.Usages, 2)

	feat := usageFor(t, payload, func(u usageDoc) bool { return u.FeatureID == "f1" })
	assert.Equal(t, "a1", feat.EntityID)
	assert.Empty(t, feat.SegmentID)
	assert.Equal(t, uint64(2), feat.Count)
	_, err := time.Parse(time.RFC3339, feat.EvaluationTime)
	assert.NoError(t, err)

	prop := usageFor(t, payload, func(u usageDoc) bool { return u.PropertyID == "p1" })
	assert.Equal(t, "beta", prop.SegmentID)
	assert.Equal(t, uint64(1), prop.Count)
}

// segment_id and the unused subject id must be omitted, not emitted as
// empty strings: the server treats presence as meaning.
func TestMeteringOmitsEmptyFields(t *testing.T) {
	sc := newFakeServerClient()
	m := newMeteringAggregator(sc, testConfigurationID, time.Millisecond)
	m.start()
	defer m.stop()

	m.record(subjectFeature, "f1", "a1", "")
	require.Eventually(t, func() bool { return sc.batchCount() >= 1 }, waitFor, tick)

	var generic struct {
		Usages []map[string]interface{} `json:"usages"`
	}
	require.NoError(t, json.Unmarshal(sc.batchAt(0), &generic))
	require.Len(t, generic.Usages, 1)
	assert.NotContains(t, generic.Usages[0], "segment_id")
	assert.NotContains(t, generic.Usages[0], "property_id")
	assert.Contains(t, generic.Usages[0], "feature_id")
	assert.Contains(t, generic.Usages[0], "entity_id")
}

// Distinct segments produce distinct usages even for the same subject
// and entity.
func TestMeteringKeysBySegment(t *testing.T) {
	sc := newFakeServerClient()
	m := newMeteringAggregator(sc, testConfigurationID, time.Millisecond)
	m.start()
	defer m.stop()

	m.record(subjectFeature, "f1", "a1", "beta")
	m.record(subjectFeature, "f1", "a1", "")

	require.Eventually(t, func() bool { return sc.batchCount() >= 1 }, waitFor, tick)
	payload := decodeBatch(t, sc.batchAt(0))
	assert.Len(t, payload.Usages, 2)
}

func TestMeteringClearsOnFailedPush(t *testing.T) {
	sc := newFakeServerClient()
	sc.setPushErr(errors.New("http 503"))
	m := newMeteringAggregator(sc, testConfigurationID, time.Millisecond)
	m.start()
	defer m.stop()

	m.record(subjectFeature, "f1", "a1", "")
	// Give the aggregator time to attempt and fail a flush.
	time.Sleep(300 * time.Millisecond)

	sc.setPushErr(nil)
	m.record(subjectFeature, "f2", "a1", "")
	require.Eventually(t, func() bool { return sc.batchCount() >= 1 }, waitFor, tick)

	// The failed batch was dropped: only the new event survives.
	payload := decodeBatch(t, sc.batchAt(0))
	require.Len(t, payload.Usages, 1)
	assert.Equal(t, "f2", payload.Usages[0].FeatureID)
}

func TestMeteringStopFlushes(t *testing.T) {
	sc := newFakeServerClient()
	m := newMeteringAggregator(sc, testConfigurationID, time.Hour)
	m.start()

	m.record(subjectFeature, "f1", "a1", "")
	m.record(subjectFeature, "f1", "a2", "")
	m.stop()

	require.Equal(t, 1, sc.batchCount())
	payload := decodeBatch(t, sc.batchAt(0))
	assert.Len(t, payload.Usages, 2)
}

func TestMeteringQueueDropsWhenFull(t *testing.T) {
	sc := newFakeServerClient()
	// Not started: events pile up in the queue.
	m := newMeteringAggregator(sc, testConfigurationID, time.Hour)

	for i := 0; i < meteringQueueCapacity+10; i++ {
		m.record(subjectFeature, "f1", "a1", "")
	}
	assert.Len(t, m.events, meteringQueueCapacity)
}

func TestMeteringEmptyWindowSkipsPush(t *testing.T) {
	sc := newFakeServerClient()
	m := newMeteringAggregator(sc, testConfigurationID, time.Millisecond)
	m.start()

	time.Sleep(300 * time.Millisecond)
	m.stop()
	assert.Zero(t, sc.batchCount())
}
