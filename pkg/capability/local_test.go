package capability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zurustar/blox/pkg/value"
)

// waitReady polls h until it resolves or the deadline passes.
func waitReady(t *testing.T, host Host, h Handle) Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r := host.Poll(h); !r.Pending {
			return r
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("handle %d did not resolve", h)
	return Result{}
}

func TestLocal_CallRemote(t *testing.T) {
	host, err := NewLocal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer host.Close()

	host.RegisterRemote("math", "double", func(ctx context.Context, args []value.Value) (value.Value, error) {
		n, err := value.ToNumber(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.Number(n * 2), nil
	})

	h, err := host.CallRemote("math", "double", []value.Value{value.Number(21)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := waitReady(t, host, h)
	if r.Err != nil || r.Value.String() != "42" {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestLocal_UnknownServiceNotSupported(t *testing.T) {
	host, _ := NewLocal()
	defer host.Close()

	if _, err := host.CallRemote("nope", "f", nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if _, err := host.InvokeExtension("nope", nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if err := host.SendMessage([]string{""}, "hi", value.Void()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported without a bus, got %v", err)
	}
	if _, err := host.RequestMessage([]string{""}, "hi", value.Void()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported without a bus, got %v", err)
	}
	if err := host.SendReply(1, value.Void()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported without a bus, got %v", err)
	}
	if _, err := host.RequestInput("?"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported without input, got %v", err)
	}
}

func TestLocal_Timeout(t *testing.T) {
	host, _ := NewLocal(WithTimeout(10 * time.Millisecond))
	defer host.Close()

	host.RegisterRemote("slow", "f", func(ctx context.Context, args []value.Value) (value.Value, error) {
		<-ctx.Done()
		return value.Void(), ctx.Err()
	})

	h, err := host.CallRemote("slow", "f", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := waitReady(t, host, h); !errors.Is(r.Err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %+v", r)
	}
}

func TestLocal_AbandonCancelsWorker(t *testing.T) {
	host, _ := NewLocal(WithTimeout(0))

	stopped := make(chan struct{})
	host.RegisterRemote("svc", "block", func(ctx context.Context, args []value.Value) (value.Value, error) {
		<-ctx.Done()
		close(stopped)
		return value.Void(), ctx.Err()
	})

	h, _ := host.CallRemote("svc", "block", nil)
	host.Abandon(h)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not cancelled")
	}
	host.Close()

	if r := host.Poll(h); !errors.Is(r.Err, ErrUnknownHandle) {
		t.Errorf("expected abandoned handle to be unknown, got %+v", r)
	}
}

func TestLocal_ArgumentsAreCopied(t *testing.T) {
	host, _ := NewLocal()
	defer host.Close()

	got := make(chan *value.List, 1)
	host.RegisterRemote("svc", "keep", func(ctx context.Context, args []value.Value) (value.Value, error) {
		l, _ := args[0].List()
		got <- l
		return value.Void(), nil
	})

	l := value.NewList()
	if _, err := host.CallRemote("svc", "keep", []value.Value{value.ListValue(l)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if worker := <-got; worker == l {
		t.Error("expected the worker to receive a copy of the list")
	}
}

func TestLocal_DeterministicRandom(t *testing.T) {
	a, _ := NewLocal(WithSeed(7))
	b, _ := NewLocal(WithSeed(7))
	for i := 0; i < 10; i++ {
		x, y := a.Random(), b.Random()
		if x != y {
			t.Fatalf("draw %d: %v != %v", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %v", i, x)
		}
	}
}

func TestLocal_ClockAndPrint(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	host, _ := NewLocal(WithClock(func() time.Time { return fixed }), WithOutput(&out))

	if !host.Now().Equal(fixed) {
		t.Errorf("expected fixed clock")
	}
	host.Print("Sprite", value.Text("hello"))
	if !strings.Contains(out.String(), "Sprite: hello") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestLocal_RequestInput(t *testing.T) {
	host, _ := NewLocal(WithInput(func(prompt string) (string, error) {
		return "answer to " + prompt, nil
	}))
	defer host.Close()

	h, err := host.RequestInput("name?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := waitReady(t, host, h); r.Value.String() != "answer to name?" {
		t.Errorf("unexpected result %+v", r)
	}
}
