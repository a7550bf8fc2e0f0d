package store

import (
	"sync"
	"testing"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

func reading(id string, ts time.Time, n float64) types.SensorReading {
	return types.SensorReading{
		SensorID:   id,
		Parameters: map[string]float64{types.Nitrogen: n},
		Timestamp:  ts,
	}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutAndLatest(t *testing.T) {
	st := New(5 * time.Minute)
	st.Put(reading("s-1", time.Now(), 12))

	r, ok := st.Latest("s-1")
	if !ok {
		t.Fatal("Latest: expected reading, got none")
	}
	if r.Parameters[types.Nitrogen] != 12 {
		t.Errorf("nitrogen: got %v, want 12", r.Parameters[types.Nitrogen])
	}
}

func TestLatest_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	if _, ok := st.Latest("unknown"); ok {
		t.Fatal("Latest on empty store: expected false, got true")
	}
}

func TestPut_NewerOverwrites(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	st.Put(reading("s", base, 10))
	st.Put(reading("s", base.Add(time.Minute), 20))

	r, _ := st.Latest("s")
	if r.Parameters[types.Nitrogen] != 20 {
		t.Errorf("nitrogen: got %v, want 20", r.Parameters[types.Nitrogen])
	}
}

func TestPut_OlderIgnored(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	st.Put(reading("s", base, 10))
	st.Put(reading("s", base.Add(-time.Minute), 99))

	r, _ := st.Latest("s")
	if r.Parameters[types.Nitrogen] != 10 {
		t.Errorf("late arrival replaced fresher reading: got %v, want 10", r.Parameters[types.Nitrogen])
	}
}

func TestLatest_ExcludesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(reading("old", base, 1))

	st.now = fixedClock(base)
	if _, ok := st.Latest("old"); ok {
		t.Error("Latest returned a stale reading")
	}
	if n := len(st.List()); n != 0 {
		t.Errorf("List: got %d entries, want 0", n)
	}
	if n := st.Count(); n != 1 {
		t.Errorf("Count includes stale: got %d, want 1", n)
	}
}

func TestEvict_RemovesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(reading("old1", base, 1))
	st.Put(reading("old2", base, 1))

	st.now = fixedClock(base)
	st.Put(reading("live", base, 1))

	if removed := st.Evict(base); removed != 2 {
		t.Errorf("Evict: removed %d, want 2", removed)
	}
	if st.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", st.Count())
	}
}

func TestConcurrentMixedOps(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			st.Put(reading("s-a", time.Now(), float64(n)))
		}(i)
		go func() {
			defer wg.Done()
			st.Latest("s-a")
		}()
		go func() {
			defer wg.Done()
			st.List()
		}()
	}
	wg.Wait()

	if st.Count() != 1 {
		t.Errorf("Count after concurrent puts: got %d, want 1", st.Count())
	}
}

func TestGet_ReturnsReceivedAt(t *testing.T) {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	st := New(5 * time.Minute)
	st.now = fixedClock(base)
	st.Put(reading("s", base, 10))

	e, ok := st.Get("s")
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if !e.ReceivedAt.Equal(base) {
		t.Errorf("ReceivedAt: got %v, want %v", e.ReceivedAt, base)
	}

	st.now = fixedClock(base.Add(10 * time.Minute))
	if _, ok := st.Get("s"); ok {
		t.Error("Get on stale entry: expected false, got true")
	}
}
