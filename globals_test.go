package beacon

import (
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestGlobalAttributes_SetAndSnapshot(t *testing.T) {
	g := NewGlobalAttributes()
	g.Set(attribute.String("tenant", "acme"))

	snap := g.Snapshot()
	v, ok := snap.Value("tenant")
	if !ok {
		t.Fatal("tenant not present in snapshot")
	}
	if v.AsString() != "acme" {
		t.Errorf("tenant = %q, want %q", v.AsString(), "acme")
	}
}

func TestGlobalAttributes_SetReplacesExistingKey(t *testing.T) {
	g := NewGlobalAttributes()
	g.Set(attribute.String("env", "dev"))
	g.Set(attribute.String("env", "prod"))

	snap := g.Snapshot()
	v, _ := snap.Value("env")
	if v.AsString() != "prod" {
		t.Errorf("env = %q, want %q", v.AsString(), "prod")
	}
	if snap.Len() != 1 {
		t.Errorf("snapshot has %d attributes, want 1", snap.Len())
	}
}

func TestGlobalAttributes_SetInvalidIgnored(t *testing.T) {
	g := NewGlobalAttributes()
	g.Set(attribute.KeyValue{})
	g.Set(attribute.String("", "orphan value"))

	snap := g.Snapshot()
	if n := snap.Len(); n != 0 {
		t.Errorf("snapshot has %d attributes, want 0", n)
	}
}

func TestGlobalAttributes_UpdateRemove(t *testing.T) {
	g := NewGlobalAttributes(attribute.String("a", "1"), attribute.String("b", "2"))
	g.Update(func(b *AttrBuilder) { b.Remove("a") })

	snap := g.Snapshot()
	if _, ok := snap.Value("a"); ok {
		t.Error("a still present after remove")
	}
	if _, ok := snap.Value("b"); !ok {
		t.Error("b missing after unrelated remove")
	}
}

func TestGlobalAttributes_SnapshotImmutable(t *testing.T) {
	g := NewGlobalAttributes(attribute.String("version", "1"))
	before := g.Snapshot()

	g.Set(attribute.String("version", "2"))

	v, _ := before.Value("version")
	if v.AsString() != "1" {
		t.Errorf("earlier snapshot changed: version = %q, want %q", v.AsString(), "1")
	}
}

func TestGlobalAttributes_ConcurrentUpdatesNoLostWrites(t *testing.T) {
	const writers = 32
	g := NewGlobalAttributes()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kv := attribute.Int(fmt.Sprintf("k%02d", i), i)
			g.Update(func(b *AttrBuilder) { b.Put(kv) })
		}(i)
	}
	wg.Wait()

	snap := g.Snapshot()
	if snap.Len() != writers {
		t.Fatalf("snapshot has %d attributes, want %d", snap.Len(), writers)
	}
	for i := 0; i < writers; i++ {
		v, ok := snap.Value(attribute.Key(fmt.Sprintf("k%02d", i)))
		if !ok {
			t.Errorf("k%02d lost", i)
			continue
		}
		if v.AsInt64() != int64(i) {
			t.Errorf("k%02d = %d, want %d", i, v.AsInt64(), i)
		}
	}
}

func TestGlobalAttributes_UpdatePanicLeavesStoreUnchanged(t *testing.T) {
	g := NewGlobalAttributes(attribute.String("stable", "yes"))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic in transform did not propagate")
			}
		}()
		g.Update(func(b *AttrBuilder) {
			b.Put(attribute.String("half", "done"))
			panic("broken transform")
		})
	}()

	snap := g.Snapshot()
	if _, ok := snap.Value("half"); ok {
		t.Error("partial transform was committed")
	}
	if snap.Len() != 1 {
		t.Errorf("snapshot has %d attributes, want 1", snap.Len())
	}
}
