package vm

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zurustar/blox/pkg/capability"
	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// mockCall is a scripted remote call: it becomes ready on the readyAt-th poll.
type mockCall struct {
	service string
	method  string
	args    []value.Value
	readyAt int
	polls   int
	result  value.Value
	err     error
}

// mockHost is a deterministic capability.Host for scheduler tests.
type mockHost struct {
	now    time.Time
	random float64

	nextHandle capability.Handle
	calls      map[capability.Handle]*mockCall
	issued     int // remote calls ever issued; resolved calls leave the calls map
	abandoned  []capability.Handle
	// reply decides the outcome of each remote call; nil means never ready.
	reply func(service, method string, args []value.Value) (readyAt int, v value.Value, err error)

	inbound    []capability.Message
	sent       []capability.Message
	replies    []capability.Message // ReplyKey and Payload of each SendReply
	printed    []string
	extensions map[string]func(args []value.Value) (value.Value, error)
}

func newMockHost() *mockHost {
	return &mockHost{
		now:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:      make(map[capability.Handle]*mockCall),
		extensions: make(map[string]func(args []value.Value) (value.Value, error)),
	}
}

func (h *mockHost) CallRemote(service, method string, args []value.Value) (capability.Handle, error) {
	if service == "" {
		return 0, errors.New("no service")
	}
	h.nextHandle++
	h.issued++
	c := &mockCall{service: service, method: method, args: args, readyAt: -1}
	if h.reply != nil {
		c.readyAt, c.result, c.err = h.reply(service, method, args)
	}
	h.calls[h.nextHandle] = c
	return h.nextHandle, nil
}

func (h *mockHost) Poll(handle capability.Handle) capability.Result {
	c, ok := h.calls[handle]
	if !ok {
		return capability.Failed(capability.ErrUnknownHandle)
	}
	c.polls++
	if c.readyAt < 0 || c.polls < c.readyAt {
		return capability.Pending()
	}
	delete(h.calls, handle)
	if c.err != nil {
		return capability.Failed(c.err)
	}
	return capability.Ready(c.result)
}

func (h *mockHost) Abandon(handle capability.Handle) {
	h.abandoned = append(h.abandoned, handle)
	delete(h.calls, handle)
}

func (h *mockHost) SendMessage(targets []string, name string, payload value.Value) error {
	for _, target := range targets {
		if target == "nobody" {
			return errors.New("unknown program")
		}
	}
	for _, target := range targets {
		h.sent = append(h.sent, capability.Message{Target: target, Name: name, Payload: payload})
	}
	return nil
}

// RequestMessage records the message and opens a handle that stays
// pending until the test calls answer.
func (h *mockHost) RequestMessage(targets []string, name string, payload value.Value) (capability.Handle, error) {
	if err := h.SendMessage(targets, name, payload); err != nil {
		return 0, err
	}
	h.nextHandle++
	h.calls[h.nextHandle] = &mockCall{method: name, args: []value.Value{payload}, readyAt: -1}
	return h.nextHandle, nil
}

// answer makes the request behind handle ready on its next poll.
func (h *mockHost) answer(handle capability.Handle, v value.Value) {
	if c, ok := h.calls[handle]; ok {
		c.readyAt = c.polls + 1
		c.result = v
	}
}

func (h *mockHost) SendReply(key capability.ReplyKey, payload value.Value) error {
	h.replies = append(h.replies, capability.Message{ReplyKey: key, Payload: payload})
	return nil
}

func (h *mockHost) DrainInbound() []capability.Message {
	msgs := h.inbound
	h.inbound = nil
	return msgs
}

func (h *mockHost) Now() time.Time { return h.now }

func (h *mockHost) Random() float64 { return h.random }

func (h *mockHost) InvokeExtension(name string, args []value.Value) (value.Value, error) {
	fn, ok := h.extensions[name]
	if !ok {
		return value.Void(), capability.ErrNotSupported
	}
	return fn(args)
}

func (h *mockHost) Print(entity string, v value.Value) {
	h.printed = append(h.printed, entity+": "+v.String())
}

func (h *mockHost) advance(d time.Duration) { h.now = h.now.Add(d) }

// test helpers

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestScheduler creates a scheduler with one entity "sprite" running
// the given start scripts.
func newTestScheduler(host *mockHost, scripts []opcode.Script, opts ...Option) (*Scheduler, *Entity) {
	proj := NewProject("test")
	e := proj.AddEntity("sprite")
	for _, body := range scripts {
		e.AddScript(Trigger{Kind: OnStart}, body)
	}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(proj, host, opts...), e
}

// runTicks ticks until no process is active or max ticks pass.
func runTicks(t *testing.T, s *Scheduler, max int) {
	t.Helper()
	if !s.started {
		s.Start()
	}
	for i := 0; i < max; i++ {
		if err := s.Tick(); err != nil {
			t.Fatalf("tick %d: unexpected error: %v", i+1, err)
		}
		if s.Active() == 0 {
			return
		}
	}
}

// evalReporter runs "report node" as a script and returns its outcome.
func evalReporter(t *testing.T, node opcode.OpCode) (value.Value, error) {
	t.Helper()
	host := newMockHost()
	s, _ := newTestScheduler(host, nil)
	var out Outcome
	s.onTerminate = func(p *Process) { out = p.Outcome() }

	proj := s.Project()
	e := proj.Entities[0]
	e.AddScript(Trigger{Kind: OnStart}, opcode.Script{opcode.New(opcode.Report, node)})

	runTicks(t, s, 1000)
	return out.Value, out.Err
}

func getVar(t *testing.T, scope *value.Scope, name string) value.Value {
	t.Helper()
	v, err := scope.Get(name)
	if err != nil {
		t.Fatalf("variable %s: %v", name, err)
	}
	return v
}

func num(t *testing.T, v value.Value) float64 {
	t.Helper()
	n, err := value.ToNumber(v)
	if err != nil {
		t.Fatalf("expected a number, got %v (%s)", v, v.Kind())
	}
	return n
}

// shorthand constructors for test scripts
var (
	vr  = func(name string) opcode.Variable { return opcode.Variable(name) }
	op  = opcode.New
	bin = func(operator string, a, b any) opcode.OpCode { return opcode.New(opcode.BinaryOp, operator, a, b) }
)
