package beacon

import (
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
)

// GlobalAttributes holds the attributes appended to every span and event the
// SDK produces. The current set is an immutable attribute.Set behind an
// atomic pointer: readers take snapshots without locking and writers publish
// replacement sets with a compare-and-swap, so no caller ever blocks another.
type GlobalAttributes struct {
	current atomic.Pointer[attribute.Set]
}

// NewGlobalAttributes returns a store seeded with the given attributes.
func NewGlobalAttributes(seed ...attribute.KeyValue) *GlobalAttributes {
	g := &GlobalAttributes{}
	set := attribute.NewSet(seed...)
	g.current.Store(&set)
	return g
}

// Snapshot returns the current attribute set. The set is immutable: later
// updates publish a new set and never touch snapshots already handed out.
func (g *GlobalAttributes) Snapshot() attribute.Set {
	return *g.current.Load()
}

// Set stores one attribute, replacing any previous value for the same key.
// Attributes with an empty key or an unset value are ignored.
func (g *GlobalAttributes) Set(kv attribute.KeyValue) {
	if !kv.Valid() {
		return
	}
	g.Update(func(b *AttrBuilder) { b.Put(kv) })
}

// Update applies fn to a builder seeded from the current set and atomically
// publishes the result. When a concurrent writer publishes first, the whole
// read-transform-publish sequence runs again from a fresh snapshot, so fn
// must be free of side effects: it may execute more than once per call. A
// panic in fn propagates to the caller and leaves the store unchanged.
func (g *GlobalAttributes) Update(fn func(*AttrBuilder)) {
	for {
		old := g.current.Load()
		b := newAttrBuilder(*old)
		fn(b)
		candidate := b.build()
		if g.current.CompareAndSwap(old, &candidate) {
			return
		}
	}
}

// AttrBuilder accumulates changes to an attribute set inside a
// GlobalAttributes.Update transform.
type AttrBuilder struct {
	attrs map[attribute.Key]attribute.Value
}

func newAttrBuilder(seed attribute.Set) *AttrBuilder {
	b := &AttrBuilder{attrs: make(map[attribute.Key]attribute.Value, seed.Len())}
	for _, kv := range seed.ToSlice() {
		b.attrs[kv.Key] = kv.Value
	}
	return b
}

// Put stores one attribute. Later puts of the same key replace earlier ones.
// Attributes with an empty key or an unset value are ignored.
func (b *AttrBuilder) Put(kv attribute.KeyValue) *AttrBuilder {
	if !kv.Valid() {
		return b
	}
	b.attrs[kv.Key] = kv.Value
	return b
}

// Remove drops the attribute with the given key, if present.
func (b *AttrBuilder) Remove(key attribute.Key) *AttrBuilder {
	delete(b.attrs, key)
	return b
}

func (b *AttrBuilder) build() attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(b.attrs))
	for k, v := range b.attrs {
		kvs = append(kvs, attribute.KeyValue{Key: k, Value: v})
	}
	return attribute.NewSet(kvs...)
}
