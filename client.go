// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"context"
	"errors"
	"math"

	"github.com/flagkit/flagkit-go/internal/log"
)

// OfflineMode is the caller's policy for reads performed while the
// background worker is offline. Construct one with OfflineFail,
// OfflineCache or OfflineFallback.
type OfflineMode struct {
	kind     offlineModeKind
	fallback *Snapshot
}

type offlineModeKind int

const (
	offlineFail offlineModeKind = iota
	offlineCache
	offlineFallback
)

// OfflineFail makes offline reads fail with an OfflineError carrying
// the reason.
func OfflineFail() OfflineMode { return OfflineMode{kind: offlineFail} }

// OfflineCache serves offline reads from the last fetched snapshot.
// Before the first fetch, reads fail with
// ErrConfigurationNotYetAvailable.
func OfflineCache() OfflineMode { return OfflineMode{kind: offlineCache} }

// OfflineFallback serves offline reads from the given snapshot, built
// by the caller via NewSnapshot.
func OfflineFallback(s *Snapshot) OfflineMode {
	return OfflineMode{kind: offlineFallback, fallback: s}
}

// Client evaluates features and typed properties against
// caller-supplied entities, backed by a live remotely-managed
// configuration. A Client owns two background goroutines, the
// live-configuration worker and the metering aggregator; Close
// releases both.
type Client struct {
	cfg      config
	id       ConfigurationID
	worker   *worker
	metering *meteringAggregator
}

// NewClient creates a client for the given configuration and starts
// the background synchronization. The returned client is usable
// immediately; reads before the first successful fetch follow the
// offline-mode policy. Use WaitUntilOnline to synchronize startup.
func NewClient(id ConfigurationID, opts ...Option) (*Client, error) {
	if id.GUID == "" || id.EnvironmentID == "" || id.CollectionID == "" {
		return nil, errors.New("flagkit: guid, environment id and collection id are all required")
	}
	var cfg config
	defaults(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.debug {
		log.SetLevel(log.LevelDebug)
	}

	sc := cfg.serverClient
	if sc == nil {
		if cfg.baseURL == "" || cfg.tokens == nil {
			return nil, errors.New("flagkit: a base URL and a token provider are required unless a custom server client is set")
		}
		var err error
		sc, err = newHTTPServerClient(cfg.baseURL, cfg.tokens, cfg.httpClient)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:    cfg,
		id:     id,
		worker: newWorker(sc, id),
	}
	if !cfg.meteringDisabled {
		c.metering = newMeteringAggregator(sc, id, cfg.meteringInterval)
		c.metering.start()
	}
	c.worker.start()
	log.Debug("flagkit: client started for environment %q, collection %q", id.EnvironmentID, id.CollectionID)
	return c, nil
}

// Close stops the background worker and flushes pending metering. The
// worker exits at its next read boundary; Close does not wait for it.
func (c *Client) Close() {
	c.worker.Stop()
	if c.metering != nil {
		c.metering.stop()
	}
}

// Online reports whether the last fetched configuration is current.
func (c *Client) Online() bool {
	return c.worker.CurrentMode().State == StateOnline
}

// WaitUntilOnline blocks until the client first becomes online, the
// background worker terminates (DefunctError), or ctx is done. It is
// intended for startup synchronization.
func (c *Client) WaitUntilOnline(ctx context.Context) error {
	return c.worker.waitUntilOnline(ctx)
}

// snapshotForRead picks the snapshot for one read according to the
// worker mode and the offline policy.
func (c *Client) snapshotForRead() (*Snapshot, error) {
	mode := c.worker.CurrentMode()
	switch mode.State {
	case StateOnline:
		snap := c.worker.currentSnapshot()
		if snap == nil {
			// Online implies a fetched snapshot; guard regardless.
			return nil, ErrConfigurationNotYetAvailable
		}
		return snap, nil
	case StateDefunct:
		return nil, &DefunctError{Err: mode.Err}
	}
	switch c.cfg.offlineMode.kind {
	case offlineCache:
		if snap := c.worker.currentSnapshot(); snap != nil {
			return snap, nil
		}
		return nil, ErrConfigurationNotYetAvailable
	case offlineFallback:
		return c.cfg.offlineMode.fallback, nil
	}
	return nil, &OfflineError{Reason: mode.Reason}
}

// FeatureIDs returns the ids of all features in the current snapshot.
func (c *Client) FeatureIDs() ([]string, error) {
	snap, err := c.snapshotForRead()
	if err != nil {
		return nil, err
	}
	return snap.FeatureIDs(), nil
}

// PropertyIDs returns the ids of all properties in the current snapshot.
func (c *Client) PropertyIDs() ([]string, error) {
	snap, err := c.snapshotForRead()
	if err != nil {
		return nil, err
	}
	return snap.PropertyIDs(), nil
}

// GetFeature returns a handle bound to the snapshot that exists right
// now. Repeated evaluations through it yield the same output for the
// same entity even if the background snapshot changes.
func (c *Client) GetFeature(id string) (Feature, error) {
	snap, err := c.snapshotForRead()
	if err != nil {
		return nil, err
	}
	entry, err := snap.feature(id)
	if err != nil {
		return nil, err
	}
	return &snapshotFeature{c: c, entry: entry}, nil
}

// GetFeatureProxy returns a live handle that re-resolves the current
// snapshot on every access, so newly fetched configurations take
// effect transparently.
func (c *Client) GetFeatureProxy(id string) Feature {
	return &featureProxy{c: c, id: id}
}

// GetProperty returns a handle bound to the snapshot that exists right
// now.
func (c *Client) GetProperty(id string) (Property, error) {
	snap, err := c.snapshotForRead()
	if err != nil {
		return nil, err
	}
	entry, err := snap.property(id)
	if err != nil {
		return nil, err
	}
	return &snapshotProperty{c: c, entry: entry}, nil
}

// GetPropertyProxy returns a live handle that re-resolves the current
// snapshot on every access.
func (c *Client) GetPropertyProxy(id string) Property {
	return &propertyProxy{c: c, id: id}
}

func (c *Client) recordEvaluation(kind meteringSubjectKind, subjectID, entityID, segmentID string) {
	if c.metering == nil {
		return
	}
	c.metering.record(kind, subjectID, entityID, segmentID)
}

// Feature is the evaluation API of a feature flag handle. Both the
// snapshot-bound and the proxy flavor implement it.
type Feature interface {
	// ID returns the feature id the handle was obtained for.
	ID() string
	// Name returns the display name.
	Name() (string, error)
	// Enabled reports the feature's enabled toggle.
	Enabled() (bool, error)
	// Value evaluates the feature for the entity.
	Value(e Entity) (Value, error)
}

// Property is the evaluation API of a property handle.
type Property interface {
	ID() string
	Name() (string, error)
	Value(e Entity) (Value, error)
}

type snapshotFeature struct {
	c     *Client
	entry *featureEntry
}

func (f *snapshotFeature) ID() string             { return f.entry.feature.id }
func (f *snapshotFeature) Name() (string, error)  { return f.entry.feature.name, nil }
func (f *snapshotFeature) Enabled() (bool, error) { return f.entry.feature.enabled, nil }

func (f *snapshotFeature) Value(e Entity) (Value, error) {
	return evaluateAndRecordFeature(f.c, f.entry, e)
}

type featureProxy struct {
	c  *Client
	id string
}

func (f *featureProxy) ID() string { return f.id }

func (f *featureProxy) Name() (string, error) {
	entry, err := f.resolve()
	if err != nil {
		return "", err
	}
	return entry.feature.name, nil
}

func (f *featureProxy) Enabled() (bool, error) {
	entry, err := f.resolve()
	if err != nil {
		return false, err
	}
	return entry.feature.enabled, nil
}

func (f *featureProxy) Value(e Entity) (Value, error) {
	entry, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return evaluateAndRecordFeature(f.c, entry, e)
}

func (f *featureProxy) resolve() (*featureEntry, error) {
	snap, err := f.c.snapshotForRead()
	if err != nil {
		return nil, err
	}
	return snap.feature(f.id)
}

func evaluateAndRecordFeature(c *Client, entry *featureEntry, e Entity) (Value, error) {
	v, segmentID, err := evaluateFeature(entry, e)
	if err != nil {
		return nil, err
	}
	c.recordEvaluation(subjectFeature, entry.feature.id, e.EntityID(), segmentID)
	return v, nil
}

type snapshotProperty struct {
	c     *Client
	entry *propertyEntry
}

func (p *snapshotProperty) ID() string            { return p.entry.property.id }
func (p *snapshotProperty) Name() (string, error) { return p.entry.property.name, nil }

func (p *snapshotProperty) Value(e Entity) (Value, error) {
	return evaluateAndRecordProperty(p.c, p.entry, e)
}

type propertyProxy struct {
	c  *Client
	id string
}

func (p *propertyProxy) ID() string { return p.id }

func (p *propertyProxy) Name() (string, error) {
	entry, err := p.resolve()
	if err != nil {
		return "", err
	}
	return entry.property.name, nil
}

func (p *propertyProxy) Value(e Entity) (Value, error) {
	entry, err := p.resolve()
	if err != nil {
		return nil, err
	}
	return evaluateAndRecordProperty(p.c, entry, e)
}

func (p *propertyProxy) resolve() (*propertyEntry, error) {
	snap, err := p.c.snapshotForRead()
	if err != nil {
		return nil, err
	}
	return snap.property(p.id)
}

func evaluateAndRecordProperty(c *Client, entry *propertyEntry, e Entity) (Value, error) {
	v, segmentID, err := evaluateProperty(entry, e)
	if err != nil {
		return nil, err
	}
	c.recordEvaluation(subjectProperty, entry.property.id, e.EntityID(), segmentID)
	return v, nil
}

// Evaluable is the part of the handle API needed by ValueAs.
type Evaluable interface {
	Value(e Entity) (Value, error)
}

// Scalar is the set of Go types a Value can be extracted into.
type Scalar interface {
	bool | int64 | uint64 | float64 | string
}

// ValueAs evaluates the handle for the entity and extracts the result
// into T. Numeric variants convert between the numeric types when the
// conversion is exact; everything else requires the matching variant
// and fails with a MismatchTypeError.
func ValueAs[T Scalar](h Evaluable, e Entity) (T, error) {
	var zero T
	v, err := h.Value(e)
	if err != nil {
		return zero, err
	}
	switch out := any(&zero).(type) {
	case *bool:
		b, ok := v.(BoolValue)
		if !ok {
			return zero, &MismatchTypeError{Expected: "bool", Actual: v.String()}
		}
		*out = bool(b)
	case *string:
		s, ok := v.(StringValue)
		if !ok {
			return zero, &MismatchTypeError{Expected: "string", Actual: v.String()}
		}
		*out = string(s)
	case *int64:
		i, ok := valueToInt64(v)
		if !ok {
			return zero, &MismatchTypeError{Expected: "int64", Actual: v.String()}
		}
		*out = i
	case *uint64:
		u, ok := valueToUint64(v)
		if !ok {
			return zero, &MismatchTypeError{Expected: "uint64", Actual: v.String()}
		}
		*out = u
	case *float64:
		f, ok := valueToFloat64(v)
		if !ok {
			return zero, &MismatchTypeError{Expected: "float64", Actual: v.String()}
		}
		*out = f
	}
	return zero, nil
}

func valueToInt64(v Value) (int64, bool) {
	switch n := v.(type) {
	case Int64Value:
		return int64(n), true
	case UInt64Value:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case Float64Value:
		f := float64(n)
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f), true
		}
	}
	return 0, false
}

func valueToUint64(v Value) (uint64, bool) {
	switch n := v.(type) {
	case UInt64Value:
		return uint64(n), true
	case Int64Value:
		if n >= 0 {
			return uint64(n), true
		}
	case Float64Value:
		f := float64(n)
		if f == math.Trunc(f) && f >= 0 && f <= math.MaxUint64 {
			return uint64(f), true
		}
	}
	return 0, false
}

func valueToFloat64(v Value) (float64, bool) {
	switch n := v.(type) {
	case Float64Value:
		return float64(n), true
	case Int64Value:
		return float64(n), true
	case UInt64Value:
		return float64(n), true
	}
	return 0, false
}
