package runtime

import (
	"testing"
)

// BenchmarkSharedAcquireRelease measures the full pooled round trip:
// reserve, create, lease, terminal release.
func BenchmarkSharedAcquireRelease(b *testing.B) {
	m, _ := newCountingManager(Shared)
	if err := m.Configure(DefaultConfig()); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lease, err := m.Acquire(countingRequest{value: i})
		if err != nil {
			b.Fatal(err)
		}
		lease.Release()
	}
}

// BenchmarkSharedCloneRelease measures the steady-state refcount path with
// no pool traffic.
func BenchmarkSharedCloneRelease(b *testing.B) {
	m, _ := newCountingManager(Shared)
	if err := m.Configure(DefaultConfig()); err != nil {
		b.Fatal(err)
	}
	lease, err := m.Acquire(countingRequest{value: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer lease.Release()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		clone, err := lease.Clone()
		if err != nil {
			b.Fatal(err)
		}
		clone.Release()
	}
}

// BenchmarkHandleResolve measures acquire-by-handle on a live slot.
func BenchmarkHandleResolve(b *testing.B) {
	m, _ := newCountingManager(Shared)
	if err := m.Configure(DefaultConfig()); err != nil {
		b.Fatal(err)
	}
	lease, err := m.Acquire(countingRequest{value: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer lease.Release()
	h := lease.Handle()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fresh, err := m.AcquireHandle(h)
		if err != nil {
			b.Fatal(err)
		}
		fresh.Release()
	}
}
