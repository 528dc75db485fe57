package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zurustar/blox/pkg/value"
)

// DefaultRemoteTimeout is the deadline applied to remote calls.
const DefaultRemoteTimeout = 10 * time.Second

// RemoteFunc implements one remote method. It runs on its own goroutine
// and must honour ctx cancellation.
type RemoteFunc func(ctx context.Context, args []value.Value) (value.Value, error)

// ExtensionFunc implements a host extension.
type ExtensionFunc func(args []value.Value) (value.Value, error)

// InputFunc reads one answer from the user.
type InputFunc func(prompt string) (string, error)

// Local is a Host that runs entirely inside the current process.
// Remote services are Go functions registered with RegisterRemote; calls to
// anything else fail with ErrNotSupported.
type Local struct {
	id         string
	handles    *HandleTable
	remotes    map[string]RemoteFunc
	extensions map[string]ExtensionFunc
	bus        *Bus
	inbox      *Mailbox
	input      InputFunc
	out        io.Writer
	clock      func() time.Time
	rng        *rand.Rand
	rngMu      sync.Mutex
	timeout    time.Duration
	log        *slog.Logger
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// Option configures a Local host.
type Option func(*Local)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Local) {
		l.log = log
	}
}

// WithTimeout sets the deadline for remote calls. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(l *Local) {
		l.timeout = timeout
	}
}

// WithSeed makes Random deterministic.
func WithSeed(seed uint64) Option {
	return func(l *Local) {
		l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock replaces the clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Local) {
		l.clock = clock
	}
}

// WithOutput sets where Print writes. Without it, Print only logs.
func WithOutput(w io.Writer) Option {
	return func(l *Local) {
		l.out = w
	}
}

// WithInput enables RequestInput.
func WithInput(fn InputFunc) Option {
	return func(l *Local) {
		l.input = fn
	}
}

// WithBus connects the host to a message bus under the given program id.
func WithBus(bus *Bus, id string) Option {
	return func(l *Local) {
		l.bus = bus
		l.id = id
	}
}

// NewLocal creates a Local host.
func NewLocal(opts ...Option) (*Local, error) {
	l := &Local{
		handles:    NewHandleTable(),
		remotes:    make(map[string]RemoteFunc),
		extensions: make(map[string]ExtensionFunc),
		clock:      time.Now,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		timeout:    DefaultRemoteTimeout,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.bus != nil {
		mb, err := l.bus.Join(l.id)
		if err != nil {
			return nil, fmt.Errorf("failed to join message bus: %w", err)
		}
		l.inbox = mb
	}
	return l, nil
}

// RegisterRemote installs a remote method implementation.
func (l *Local) RegisterRemote(service, method string, fn RemoteFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remotes[service+"."+method] = fn
}

// RegisterExtension installs a host extension.
func (l *Local) RegisterExtension(name string, fn ExtensionFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extensions[name] = fn
}

// CallRemote starts the registered method on a worker goroutine.
func (l *Local) CallRemote(service, method string, args []value.Value) (Handle, error) {
	l.mu.RLock()
	fn, ok := l.remotes[service+"."+method]
	l.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s.%s: %w", service, method, ErrNotSupported)
	}

	// Workers get their own copy so they never touch a list the scripts can mutate.
	copied := make([]value.Value, len(args))
	for i, a := range args {
		copied[i] = value.DeepCopy(a)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), l.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	h := l.handles.Open(cancel)
	l.log.Debug("Remote call issued", "service", service, "method", method, "handle", h)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		v, err := fn(ctx, copied)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s.%s: %w", service, method, ErrTimeout)
		}
		if !l.handles.Complete(h, v, err) {
			l.log.Debug("Late remote result discarded", "handle", h)
		}
	}()
	return h, nil
}

// Poll reports the state of a request.
func (l *Local) Poll(h Handle) Result {
	return l.handles.Poll(h)
}

// Abandon releases a request and cancels its worker.
func (l *Local) Abandon(h Handle) {
	l.log.Debug("Request abandoned", "handle", h)
	l.handles.Abandon(h)
}

// SendMessage sends through the bus.
func (l *Local) SendMessage(targets []string, name string, payload value.Value) error {
	if l.bus == nil {
		return fmt.Errorf("send message: %w", ErrNotSupported)
	}
	return l.bus.Send(l.id, targets, name, payload)
}

// RequestMessage sends through the bus and waits for the first reply. If
// no reply arrives within the remote call timeout, or nobody was
// addressed, the handle resolves to Void.
func (l *Local) RequestMessage(targets []string, name string, payload value.Value) (Handle, error) {
	if l.bus == nil {
		return 0, fmt.Errorf("send message: %w", ErrNotSupported)
	}

	h := l.handles.Open(nil)
	key, err := l.bus.Request(l.id, targets, name, payload, func(v value.Value) {
		l.handles.Complete(h, v, nil)
	})
	if err != nil {
		l.handles.Abandon(h)
		return 0, err
	}
	if key == 0 {
		l.handles.Complete(h, value.Void(), nil)
		return h, nil
	}

	var timer *time.Timer
	if l.timeout > 0 {
		timer = time.AfterFunc(l.timeout, func() {
			if l.bus.Cancel(key) {
				l.log.Debug("Reply timed out", "handle", h, "name", name)
				l.handles.Complete(h, value.Void(), nil)
			}
		})
	}
	l.handles.SetCancel(h, func() {
		if timer != nil {
			timer.Stop()
		}
		l.bus.Cancel(key)
	})
	l.log.Debug("Message request issued", "handle", h, "name", name, "reply_key", key)
	return h, nil
}

// SendReply answers a message received through the bus.
func (l *Local) SendReply(key ReplyKey, payload value.Value) error {
	if l.bus == nil {
		return fmt.Errorf("reply: %w", ErrNotSupported)
	}
	return l.bus.Reply(key, payload)
}

// DrainInbound returns messages received from the bus.
func (l *Local) DrainInbound() []Message {
	if l.inbox == nil {
		return nil
	}
	return l.inbox.Drain()
}

// Now reads the clock.
func (l *Local) Now() time.Time {
	return l.clock()
}

// Random returns a number in [0, 1).
func (l *Local) Random() float64 {
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return l.rng.Float64()
}

// InvokeExtension calls a registered extension.
func (l *Local) InvokeExtension(name string, args []value.Value) (value.Value, error) {
	l.mu.RLock()
	fn, ok := l.extensions[name]
	l.mu.RUnlock()
	if !ok {
		return value.Void(), fmt.Errorf("%s: %w", name, ErrNotSupported)
	}
	return fn(args)
}

// Print writes a value to the configured output.
func (l *Local) Print(entity string, v value.Value) {
	if l.out == nil {
		l.log.Info("Print", "entity", entity, "value", v.String())
		return
	}
	fmt.Fprintf(l.out, "%s: %s\n", entity, v)
}

// RequestInput asks for input on a worker goroutine.
func (l *Local) RequestInput(prompt string) (Handle, error) {
	if l.input == nil {
		return 0, fmt.Errorf("ask: %w", ErrNotSupported)
	}

	// Input workers may block on the terminal, so Close does not wait for them.
	h := l.handles.Open(nil)
	go func() {
		answer, err := l.input(prompt)
		l.handles.Complete(h, value.Text(answer), err)
	}()
	return h, nil
}

// Pending returns the number of outstanding requests.
func (l *Local) Pending() int {
	return l.handles.Len()
}

// Close abandons outstanding requests, leaves the bus and waits for
// remote call workers to return.
func (l *Local) Close() {
	l.handles.AbandonAll()
	if l.bus != nil {
		l.bus.Leave(l.id)
	}
	l.wg.Wait()
}

var (
	_ Host           = (*Local)(nil)
	_ Printer        = (*Local)(nil)
	_ InputRequester = (*Local)(nil)
)
