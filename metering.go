// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flagkit/flagkit-go/internal/log"
)

const (
	// defaultMeteringInterval is how often accumulated usage is flushed
	// to the server.
	defaultMeteringInterval = 10 * time.Minute

	// meteringQueueCapacity bounds the event queue. Enqueueing never
	// blocks an evaluation; events beyond the capacity are dropped.
	meteringQueueCapacity = 1000

	// meteringTick is the cooperative tick of the aggregator loop.
	meteringTick = 100 * time.Millisecond
)

type meteringSubjectKind int

const (
	subjectFeature meteringSubjectKind = iota
	subjectProperty
)

// meteringKey deduplicates evaluations inside one flush window.
type meteringKey struct {
	kind      meteringSubjectKind
	subjectID string
	entityID  string
	segmentID string
}

type meteringEvent struct {
	key  meteringKey
	time time.Time
}

type usageEntry struct {
	count uint64
	last  time.Time
}

// Wire shapes of the metering batch. segment_id must be omitted, not
// null, when the evaluation matched no segment.
type usageDoc struct {
	FeatureID      string `json:"feature_id,omitempty"`
	PropertyID     string `json:"property_id,omitempty"`
	EntityID       string `json:"entity_id"`
	SegmentID      string `json:"segment_id,omitempty"`
	EvaluationTime string `json:"evaluation_time"`
	Count          uint64 `json:"count"`
}

type meteringPayload struct {
	CollectionID  string     `json:"collection_id"`
	EnvironmentID string     `json:"environment_id"`
	Usages        []usageDoc `json:"usages"`
}

// meteringAggregator consumes evaluation events on a single goroutine,
// aggregates them by key, and periodically pushes batches to the
// server. Transmission is best effort: the map is cleared whether or
// not the push succeeded, because retrying would need unbounded memory
// in a client SDK.
type meteringAggregator struct {
	client   ServerClient
	id       ConfigurationID
	interval time.Duration

	events   chan meteringEvent
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by the aggregator goroutine; no locking needed.
	agg       map[meteringKey]*usageEntry
	lastFlush time.Time
}

func newMeteringAggregator(client ServerClient, id ConfigurationID, interval time.Duration) *meteringAggregator {
	if interval <= 0 {
		interval = defaultMeteringInterval
	}
	return &meteringAggregator{
		client:   client,
		id:       id,
		interval: interval,
		events:   make(chan meteringEvent, meteringQueueCapacity),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		agg:      make(map[meteringKey]*usageEntry),
	}
}

func (m *meteringAggregator) start() {
	go m.loop()
}

// record enqueues one evaluation event. It never blocks: when the
// queue is full the event is dropped, metering loss is acceptable.
func (m *meteringAggregator) record(kind meteringSubjectKind, subjectID, entityID, segmentID string) {
	ev := meteringEvent{
		key: meteringKey{
			kind:      kind,
			subjectID: subjectID,
			entityID:  entityID,
			segmentID: segmentID,
		},
		time: time.Now(),
	}
	select {
	case m.events <- ev:
	default:
		log.Warn("flagkit: metering queue full, dropping evaluation event")
	}
}

// stop drains pending events, performs a final flush and waits for the
// aggregator goroutine to exit.
func (m *meteringAggregator) stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	<-m.done
}

func (m *meteringAggregator) loop() {
	defer close(m.done)
	ticker := time.NewTicker(meteringTick)
	defer ticker.Stop()
	m.lastFlush = time.Now()
	for {
		select {
		case ev := <-m.events:
			m.ingest(ev)
		case <-ticker.C:
			if time.Since(m.lastFlush) >= m.interval {
				m.flush()
			}
		case <-m.stopChan:
			m.drain()
			m.flush()
			return
		}
	}
}

func (m *meteringAggregator) drain() {
	for {
		select {
		case ev := <-m.events:
			m.ingest(ev)
		default:
			return
		}
	}
}

func (m *meteringAggregator) ingest(ev meteringEvent) {
	entry, ok := m.agg[ev.key]
	if !ok {
		entry = &usageEntry{}
		m.agg[ev.key] = entry
	}
	entry.count++
	entry.last = ev.time
}

func (m *meteringAggregator) flush() {
	defer func() {
		// Clear regardless of transmission result.
		m.agg = make(map[meteringKey]*usageEntry)
		m.lastFlush = time.Now()
	}()
	if len(m.agg) == 0 {
		return
	}

	payload := meteringPayload{
		CollectionID:  m.id.CollectionID,
		EnvironmentID: m.id.EnvironmentID,
		Usages:        make([]usageDoc, 0, len(m.agg)),
	}
	for key, entry := range m.agg {
		u := usageDoc{
			EntityID:       key.entityID,
			SegmentID:      key.segmentID,
			EvaluationTime: entry.last.UTC().Format(time.RFC3339),
			Count:          entry.count,
		}
		switch key.kind {
		case subjectFeature:
			u.FeatureID = key.subjectID
		case subjectProperty:
			u.PropertyID = key.subjectID
		}
		payload.Usages = append(payload.Usages, u)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("metering", "flagkit: marshaling metering payload: %v", err)
		return
	}
	if err := m.client.PushMetering(context.Background(), m.id, data); err != nil {
		log.Error("metering", "flagkit: pushing metering batch: %v", err)
		return
	}
	log.Debug("flagkit: pushed metering batch with %d usages", len(payload.Usages))
}
