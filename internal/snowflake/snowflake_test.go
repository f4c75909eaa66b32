package snowflake

import "testing"

func TestMonotonic(t *testing.T) {
	g := New(1)
	var last int64 = -1
	for i := 0; i < 10000; i++ {
		id := g.Next()
		if id <= last {
			t.Fatalf("id[%d] = %d not greater than previous %d", i, id, last)
		}
		last = id
	}
}

func TestWorkerIDMasked(t *testing.T) {
	g := New(1 << 20) // well beyond 10 bits
	if g.workerID > maxWorker {
		t.Fatalf("workerID %d exceeds 10-bit mask", g.workerID)
	}
}

func TestTimeRoundTrips(t *testing.T) {
	g := New(1)
	id := g.Next()
	tm := Time(id)
	if tm.UnixMilli() < Epoch {
		t.Fatalf("decoded time %v predates epoch", tm)
	}
}
