// Package capability defines the boundary between the blox interpreter and
// its environment. Everything environment specific (remote calls, program
// to program messages, the clock, randomness and host extensions) goes
// through a Host.
//
// Slow operations never block the evaluator: CallRemote returns a Handle
// straight away and the scheduler polls it once per tick. Implementations
// that do work on other goroutines hand results back through a HandleTable.
package capability

import (
	"errors"
	"time"

	"github.com/zurustar/blox/pkg/value"
)

var (
	// ErrNotSupported is returned by hosts that lack a capability.
	ErrNotSupported = errors.New("not supported")
	// ErrTimeout is reported when a remote call exceeds the host's deadline.
	ErrTimeout = errors.New("timed out")
	// ErrAbandoned is reported for a handle that was abandoned.
	ErrAbandoned = errors.New("request abandoned")
	// ErrUnknownHandle is reported when polling a handle the host never issued.
	ErrUnknownHandle = errors.New("unknown handle")
)

// Handle identifies an outstanding asynchronous request.
type Handle uint64

// Result is the outcome of polling a Handle.
type Result struct {
	Pending bool
	Value   value.Value
	Err     error
}

// Pending returns a result for a request still in flight.
func Pending() Result { return Result{Pending: true} }

// Ready returns a successful result.
func Ready(v value.Value) Result { return Result{Value: v} }

// Failed returns an unsuccessful result.
func Failed(err error) Result { return Result{Err: err} }

// ReplyKey identifies a received message whose sender waits for a reply.
// The zero key means no reply is expected.
type ReplyKey uint64

// Message is a program-to-program message.
type Message struct {
	Sender   string
	Target   string
	Name     string
	Payload  value.Value
	ReplyKey ReplyKey
}

// Host is the capability interface the interpreter calls through.
// The interpreter calls every method from its single scheduling goroutine.
type Host interface {
	// CallRemote issues a remote procedure call and returns at once.
	CallRemote(service, method string, args []value.Value) (Handle, error)
	// Poll reports the state of a request. A ready result is consumed.
	Poll(h Handle) Result
	// Abandon releases a request whose result is no longer wanted.
	Abandon(h Handle)

	// SendMessage delivers a message to each target program; the target ""
	// means every other program.
	SendMessage(targets []string, name string, payload value.Value) error
	// RequestMessage sends like SendMessage and returns a Handle that
	// becomes ready with the first reply. A host may give up waiting, in
	// which case the handle resolves to Void.
	RequestMessage(targets []string, name string, payload value.Value) (Handle, error)
	// SendReply answers a received message that carried a ReplyKey.
	SendReply(key ReplyKey, payload value.Value) error
	// DrainInbound returns the messages received since the last call, in
	// arrival order.
	DrainInbound() []Message

	// Now reads a monotonic clock.
	Now() time.Time
	// Random returns a number in [0, 1).
	Random() float64

	// InvokeExtension calls a named host extension synchronously.
	InvokeExtension(name string, args []value.Value) (value.Value, error)
}

// Printer is implemented by hosts that display script output.
type Printer interface {
	Print(entity string, v value.Value)
}

// InputRequester is implemented by hosts that can ask the user for input.
// The answer is delivered through the returned Handle.
type InputRequester interface {
	RequestInput(prompt string) (Handle, error)
}
