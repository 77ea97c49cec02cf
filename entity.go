// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

// Entity is the subject a feature or property is evaluated against.
// Identity and attributes are supplied by the caller on every
// evaluation; the SDK keeps no entity state.
//
// Implementations must be safe for concurrent use. Attributes may be
// called more than once per evaluation and should be cheap.
type Entity interface {
	// EntityID returns the stable identifier used for deterministic
	// percentage rollout.
	EntityID() string
	// Attributes returns the attributes targeting rules match against.
	// A nil or empty map skips targeting entirely.
	Attributes() map[string]Value
}

type basicEntity struct {
	id    string
	attrs map[string]Value
}

// NewEntity returns an immutable Entity with the given id and
// attributes. The attribute map is copied.
func NewEntity(id string, attrs map[string]Value) Entity {
	cp := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return &basicEntity{id: id, attrs: cp}
}

func (e *basicEntity) EntityID() string            { return e.id }
func (e *basicEntity) Attributes() map[string]Value { return e.attrs }
