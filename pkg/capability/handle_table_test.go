package capability

import (
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/zurustar/blox/pkg/value"
)

func TestHandleTable_Lifecycle(t *testing.T) {
	table := NewHandleTable()

	h := table.Open(nil)
	if h < minHandleID {
		t.Fatalf("expected handle >= %d, got %d", minHandleID, h)
	}

	if r := table.Poll(h); !r.Pending {
		t.Fatalf("expected pending, got %+v", r)
	}

	if !table.Complete(h, value.Number(5), nil) {
		t.Fatal("expected Complete to accept the result")
	}
	if table.Complete(h, value.Number(6), nil) {
		t.Error("expected a second Complete to be rejected")
	}

	r := table.Poll(h)
	if r.Pending || r.Err != nil || r.Value.String() != "5" {
		t.Fatalf("unexpected result %+v", r)
	}

	if r := table.Poll(h); !errors.Is(r.Err, ErrUnknownHandle) {
		t.Errorf("expected consumed handle to be unknown, got %+v", r)
	}
}

func TestHandleTable_Failure(t *testing.T) {
	table := NewHandleTable()
	h := table.Open(nil)
	boom := errors.New("boom")
	table.Complete(h, value.Void(), boom)

	if r := table.Poll(h); !errors.Is(r.Err, boom) {
		t.Errorf("expected boom, got %+v", r)
	}
}

func TestHandleTable_AbandonCancelsAndDiscards(t *testing.T) {
	table := NewHandleTable()
	cancelled := false
	h := table.Open(func() { cancelled = true })

	table.Abandon(h)
	if !cancelled {
		t.Error("expected cancel to be called")
	}
	if table.Complete(h, value.Number(1), nil) {
		t.Error("expected late result for abandoned handle to be discarded")
	}
	if table.Len() != 0 {
		t.Errorf("expected empty table, got %d", table.Len())
	}
}

func TestHandleTable_HandlesAreNotReused(t *testing.T) {
	table := NewHandleTable()
	a := table.Open(nil)
	table.Abandon(a)
	b := table.Open(nil)
	if a == b {
		t.Errorf("expected a fresh handle, got %d twice", a)
	}
}

func TestHandleTable_ConcurrentComplete(t *testing.T) {
	table := NewHandleTable()
	const n = 50

	handles := make([]Handle, n)
	for i := range handles {
		handles[i] = table.Open(nil)
	}

	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h Handle) {
			defer wg.Done()
			table.Complete(h, value.Number(float64(i)), nil)
		}(i, h)
	}
	wg.Wait()

	for i, h := range handles {
		r := table.Poll(h)
		if r.Pending || r.Value.String() != value.FormatNumber(float64(i)) {
			t.Errorf("handle %d: unexpected result %+v", h, r)
		}
	}
}

// TestProperty_HandleResultsDeliveredOnce checks that a completed handle
// yields its result exactly once and an abandoned one never does.
func TestProperty_HandleResultsDeliveredOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("each completed handle is ready exactly once", prop.ForAll(
		func(abandon []bool) bool {
			table := NewHandleTable()
			handles := make([]Handle, len(abandon))
			for i := range abandon {
				handles[i] = table.Open(nil)
			}
			for i, h := range handles {
				if abandon[i] {
					table.Abandon(h)
				}
				table.Complete(h, value.Number(float64(i)), nil)
			}
			for i, h := range handles {
				first := table.Poll(h)
				second := table.Poll(h)
				if abandon[i] {
					if !errors.Is(first.Err, ErrUnknownHandle) {
						return false
					}
					continue
				}
				if first.Pending || first.Err != nil {
					return false
				}
				if !errors.Is(second.Err, ErrUnknownHandle) {
					return false
				}
			}
			return table.Len() == 0
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
