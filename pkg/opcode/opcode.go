// Package opcode defines the block instruction set for the blox engine.
// Scripts are trees of OpCode nodes: a node's Cmd selects both its
// evaluation rule and the shape of its Args (see Shape).
//
// Each element of Args is one of:
//   - OpCode: a nested reporter block, evaluated to a value
//   - Variable: a variable read (in expression slots) or a variable name (in Var slots)
//   - Script: a statement sequence (C-slot of a control block)
//   - Names: a list of parameter or variable names
//   - a literal: float64, int, int64, string, bool or nil
package opcode

// Cmd represents a block opcode.
type Cmd string

// Reporter blocks. They produce a value.
const (
	// BinaryOp applies a two-operand operator.
	// Args: [operator string, left, right]
	// Operators: + - * / % ^ = != < <= > >= min max atan2
	BinaryOp Cmd = "BinaryOp"

	// UnaryOp applies a one-operand operator.
	// Args: [operator string, operand]
	// Operators: neg not abs sqrt floor ceil round sin cos tan asin acos atan ln log exp
	UnaryOp Cmd = "UnaryOp"

	// And is short-circuit conjunction. Args: [left, right]
	And Cmd = "And"

	// Or is short-circuit disjunction. Args: [left, right]
	Or Cmd = "Or"

	// Join concatenates the text of all arguments.
	// Args: [value...]
	Join Cmd = "Join"

	// MakeList builds a new list. Args: [item...]
	MakeList Cmd = "MakeList"

	// ListGet reads an item. The index may be the text "last".
	// Args: [index, list]
	ListGet Cmd = "ListGet"

	// ListLength reports the number of items. Args: [list]
	ListLength Cmd = "ListLength"

	// ListContains reports whether a list holds a value. Args: [list, value]
	ListContains Cmd = "ListContains"

	// ListIndexOf reports the 1-based position of a value, or 0. Args: [value, list]
	ListIndexOf Cmd = "ListIndexOf"

	// ListCopy makes a shallow copy. Args: [list]
	ListCopy Cmd = "ListCopy"

	// ListDeepCopy makes a structure-preserving deep copy. Args: [list]
	ListDeepCopy Cmd = "ListDeepCopy"

	// Range builds the list of integers from..to inclusive. Args: [from, to]
	Range Cmd = "Range"

	// IsIdentical reports reference identity for lists and closures. Args: [a, b]
	IsIdentical Cmd = "IsIdentical"

	// DeepEqual compares lists item by item, tolerating cycles. Args: [a, b]
	DeepEqual Cmd = "DeepEqual"

	// ToNumber explicitly converts a value, including booleans, to a number.
	// Args: [value]
	ToNumber Cmd = "ToNumber"

	// ToText converts a value to text. Args: [value]
	ToText Cmd = "ToText"

	// Lambda creates a closure over the current context. The body is either
	// a reporter (OpCode) or a command sequence (Script).
	// Args: [Names params, body]
	Lambda Cmd = "Lambda"

	// CallClosure calls a reporter closure and yields its result.
	// Args: [closure, arg...]
	CallClosure Cmd = "CallClosure"

	// CallProc invokes a custom block defined on the entity or project.
	// Args: [name string, arg...]
	CallProc Cmd = "CallProc"

	// Call invokes a registered builtin function.
	// Args: [name string, arg...]
	Call Cmd = "Call"

	// CallRPC issues a remote procedure call and waits for its result.
	// Args: [service, method, arg...]
	CallRPC Cmd = "CallRPC"

	// Syscall invokes a named host extension.
	// Args: [name string, arg...]
	Syscall Cmd = "Syscall"

	// Random picks a number between two bounds inclusive. Args: [low, high]
	Random Cmd = "Random"

	// Timer reports seconds since the project timer was last reset. Args: []
	Timer Cmd = "Timer"

	// Now reports the host clock as Unix seconds. Args: []
	Now Cmd = "Now"

	// Self reports the entity running the script. Args: []
	Self Cmd = "Self"

	// EntityNamed looks up an entity by name. Args: [name]
	EntityNamed Cmd = "EntityNamed"

	// RPCError reports the last soft remote-call error, or "". Args: []
	RPCError Cmd = "RPCError"

	// SyscallError reports the last soft extension error, or "". Args: []
	SyscallError Cmd = "SyscallError"

	// Ask requests a line of input from the host. Args: [prompt]
	Ask Cmd = "Ask"

	// ReceiveMessage waits for the next network message with the given
	// name and reports its payload. Args: [name]
	ReceiveMessage Cmd = "ReceiveMessage"

	// SendMessageAndWait sends a network message and reports the first
	// reply. Args: [target or list of targets, name, payload]
	SendMessageAndWait Cmd = "SendMessageAndWait"
)

// Command blocks. They run for effect.
const (
	// SetVar assigns a variable. Args: [Variable, value]
	SetVar Cmd = "SetVar"

	// ChangeVar adds to a numeric variable. Args: [Variable, delta]
	ChangeVar Cmd = "ChangeVar"

	// DeclareLocal creates script variables initialised to 0.
	// Args: [Names]
	DeclareLocal Cmd = "DeclareLocal"

	// If executes conditional branching.
	// Args: [condition, then Script, else Script (optional)]
	If Cmd = "If"

	// Repeat runs the body a fixed number of times. Args: [count, body Script]
	Repeat Cmd = "Repeat"

	// RepeatUntil runs the body until the condition holds; the condition is
	// tested before each iteration. Args: [condition, body Script]
	RepeatUntil Cmd = "RepeatUntil"

	// Forever runs the body until the process stops. Args: [body Script]
	Forever Cmd = "Forever"

	// For counts a variable from one bound to the other inclusive.
	// Args: [Variable, from, to, body Script]
	For Cmd = "For"

	// ForEach binds a variable to each item of a list in turn.
	// Args: [Variable, list, body Script]
	ForEach Cmd = "ForEach"

	// WaitUntil yields each tick until the condition holds. Args: [condition]
	WaitUntil Cmd = "WaitUntil"

	// Wait sleeps for a number of seconds. Args: [seconds]
	Wait Cmd = "Wait"

	// Warp runs its body without yielding to other processes.
	// Args: [body Script]
	Warp Cmd = "Warp"

	// Report returns a value from the enclosing custom block or closure.
	// Args: [value]
	Report Cmd = "Report"

	// StopScript ends the running process. Args: []
	StopScript Cmd = "StopScript"

	// StopAll ends every process of the project. Args: []
	StopAll Cmd = "StopAll"

	// StopOthers ends the other processes of the same entity. Args: []
	StopOthers Cmd = "StopOthers"

	// Throw raises a user error. Args: [message]
	Throw Cmd = "Throw"

	// Try runs the body; on error, binds the message to the variable and
	// runs the handler. Args: [body Script, Variable, handler Script]
	Try Cmd = "Try"

	// Broadcast sends a local message to every entity. Args: [name]
	Broadcast Cmd = "Broadcast"

	// BroadcastAndWait sends a local message and waits for every process it
	// started to finish. Args: [name]
	BroadcastAndWait Cmd = "BroadcastAndWait"

	// SendMessage sends a network message to other programs.
	// Args: [target or list of targets, name, payload]
	SendMessage Cmd = "SendMessage"

	// Reply answers the network message that started the script. It does
	// nothing when no reply is expected or one was already sent. Args: [value]
	Reply Cmd = "Reply"

	// ListAdd appends an item. Args: [value, list]
	ListAdd Cmd = "ListAdd"

	// ListSet replaces an item. Args: [index, list, value]
	ListSet Cmd = "ListSet"

	// ListInsert inserts an item before the index. Args: [index, list, value]
	ListInsert Cmd = "ListInsert"

	// ListDelete removes an item; "all" clears the list. Args: [index, list]
	ListDelete Cmd = "ListDelete"

	// RunClosure runs a command closure and waits for it. Args: [closure, arg...]
	RunClosure Cmd = "RunClosure"

	// Launch starts a closure as a new process. Args: [closure, arg...]
	Launch Cmd = "Launch"

	// Print hands a value to the host output. Args: [value]
	Print Cmd = "Print"

	// Yield gives up the rest of the tick outside warp regions. Args: []
	Yield Cmd = "Yield"

	// ResetTimer restarts the project timer. Args: []
	ResetTimer Cmd = "ResetTimer"
)

// OpCode represents a single block node.
type OpCode struct {
	Cmd  Cmd
	Args []any
}

// Variable names a variable. In an expression slot it reads the variable.
type Variable string

// Script is a sequence of command blocks.
type Script []OpCode

// Names is a list of identifiers, used for parameters and declarations.
type Names []string

// New is shorthand for building a node.
func New(cmd Cmd, args ...any) OpCode {
	return OpCode{Cmd: cmd, Args: args}
}
