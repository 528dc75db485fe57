package vm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zurustar/blox/pkg/capability"
	"github.com/zurustar/blox/pkg/logger"
	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// Defaults for the scheduler options.
const (
	DefaultStepBudget   = 64
	DefaultMaxCallDepth = 1024
	DefaultTickInterval = 10 * time.Millisecond
)

// BuiltinFunc is the signature for functions invoked by the Call block.
// Builtins receive the calling process and the evaluated arguments.
type BuiltinFunc func(p *Process, args []value.Value) (value.Value, error)

// Scheduler runs the processes of a project cooperatively on a single
// goroutine. Each Tick gives every runnable process one slice of at most
// the step budget, in spawn order.
//
// Only Broadcast and Stop may be called from other goroutines; everything
// else belongs to the goroutine driving Tick or Run.
type Scheduler struct {
	project *Project
	host    capability.Host
	log     *slog.Logger

	// Configuration
	stepBudget    int
	maxCallDepth  int
	rpcScheme     ErrorScheme
	syscallScheme ErrorScheme
	timeout       time.Duration
	tickInterval  time.Duration
	queueSize     int
	keepAlive     bool

	builtins map[string]BuiltinFunc

	// Process table
	procs   []*Process // admitted, in spawn order
	pending []*Process // spawned during the current tick
	byID    map[ProcessID]*Process
	nextID  ProcessID

	queue       *MessageQueue
	watchers    map[ProcessID][]func(*Process)
	onSpawn     func(*Process)
	onTerminate func(*Process)

	timerStart    time.Time
	ticks         uint64
	started       bool
	stopRequested bool

	// Execution control
	running bool
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// WithStepBudget sets how many statements a process may complete per tick.
func WithStepBudget(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.stepBudget = n
		}
	}
}

// WithMaxCallDepth limits nested procedure and closure calls per process.
func WithMaxCallDepth(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxCallDepth = n
		}
	}
}

// WithTimeout stops Run after the given duration. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = timeout
	}
}

// WithTickInterval sets how long Run sleeps when every process is blocked.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithKeepAlive keeps Run going after every process has finished, so
// that messages from the host or another goroutine can start new scripts.
// Run then returns only when stopped.
func WithKeepAlive(keep bool) Option {
	return func(s *Scheduler) {
		s.keepAlive = keep
	}
}

// WithRPCErrorScheme selects how failed remote calls surface.
func WithRPCErrorScheme(scheme ErrorScheme) Option {
	return func(s *Scheduler) {
		s.rpcScheme = scheme
	}
}

// WithSyscallErrorScheme selects how failed extension calls surface.
func WithSyscallErrorScheme(scheme ErrorScheme) Option {
	return func(s *Scheduler) {
		s.syscallScheme = scheme
	}
}

// WithSpawnHook registers a function called when a process is admitted.
func WithSpawnHook(fn func(*Process)) Option {
	return func(s *Scheduler) {
		s.onSpawn = fn
	}
}

// WithTerminationHook registers a function called when a finished process
// is removed from the process table.
func WithTerminationHook(fn func(*Process)) Option {
	return func(s *Scheduler) {
		s.onTerminate = fn
	}
}

// WithQueueSize bounds the local message queue.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		s.queueSize = n
	}
}

// New creates a scheduler for project using host for every effect that
// leaves the engine.
func New(project *Project, host capability.Host, opts ...Option) *Scheduler {
	s := &Scheduler{
		project:      project,
		host:         host,
		log:          logger.GetLogger(),
		stepBudget:   DefaultStepBudget,
		maxCallDepth: DefaultMaxCallDepth,
		tickInterval: DefaultTickInterval,
		queueSize:    DefaultQueueSize,
		builtins:     make(map[string]BuiltinFunc),
		byID:         make(map[ProcessID]*Process),
		watchers:     make(map[ProcessID][]func(*Process)),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.queue = NewMessageQueueWithSize(s.queueSize, s.log)
	s.timerStart = host.Now()
	s.registerDefaultBuiltins()

	return s
}

// registerDefaultBuiltins registers the default built-in functions.
func (s *Scheduler) registerDefaultBuiltins() {
	s.registerStringBuiltins()
	s.registerMathBuiltins()
	s.registerListBuiltins()
}

// RegisterBuiltinFunction registers a function for the Call block,
// replacing any previous function of that name.
func (s *Scheduler) RegisterBuiltinFunction(name string, fn BuiltinFunc) {
	s.builtins[name] = fn
}

// Project returns the project being run.
func (s *Scheduler) Project() *Project { return s.project }

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Start spawns every start script of the project, in entity order.
// The processes are admitted on the next tick.
func (s *Scheduler) Start() {
	s.started = true
	s.stopRequested = false
	s.timerStart = s.host.Now()

	for _, e := range s.project.Entities {
		if e.removed {
			continue
		}
		for _, sc := range e.Scripts {
			if sc.Trigger.Kind == OnStart {
				s.spawnScript(e, sc, nil)
			}
		}
	}
	s.log.Debug("Project started", "project", s.project.Name, "pending", len(s.pending))
}

// Spawn starts a script of an entity explicitly, whatever its trigger.
func (s *Scheduler) Spawn(e *Entity, sc *Script) *Process {
	return s.spawnScript(e, sc, nil)
}

// Launch starts a closure as a new process owned by e.
func (s *Scheduler) Launch(e *Entity, c *value.Closure, args ...value.Value) (*Process, error) {
	return s.launch(c, args, e)
}

// Tick advances the project by one scheduling round:
//  1. dispatch queued local and inbound network messages
//  2. admit processes spawned since the last tick
//  3. wake sleepers whose time has come and finished barriers
//  4. run each runnable process for one slice, in spawn order
//  5. poll the handles of processes waiting on the host
//  6. remove finished processes
//
// A non-nil error means the engine itself failed; every process has then
// been killed.
func (s *Scheduler) Tick() error {
	s.ticks++

	s.dispatchMessages()
	s.admit()
	s.wake()

	for _, p := range s.procs {
		if p.state != StateRunning {
			continue
		}
		if err := p.run(s.stepBudget); err != nil {
			s.log.Error("Fatal engine error", "process", p.ID, "entity", p.Entity.Name, "error", err)
			s.killAll()
			s.reap()
			return fmt.Errorf("process %d: %w", p.ID, err)
		}
	}

	s.pollHandles()
	s.reap()
	return nil
}

// Run ticks until every process has finished, the context is cancelled,
// the timeout expires, Stop is called or a script stops the project.
// It returns nil when the project finished on its own and ErrStopped when
// it was stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	if s.timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, s.timeout)
		defer timeoutCancel()
	}

	if !s.started {
		s.Start()
	}

	s.log.Info("Scheduler started", "project", s.project.Name, "step_budget", s.stepBudget, "timeout", s.timeout)

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				s.log.Info("Project timed out")
			} else {
				s.log.Info("Project cancelled")
			}
			s.killAll()
			s.reap()
			return ErrStopped
		default:
		}

		if err := s.Tick(); err != nil {
			return err
		}
		if s.stopRequested {
			s.log.Info("Project stopped by script")
			return ErrStopped
		}
		if !s.keepAlive && s.Active() == 0 && s.queue.Len() == 0 {
			s.log.Info("All processes finished", "ticks", s.ticks)
			return nil
		}

		if !s.anyRunning() {
			// every process is blocked; wait for the host instead of spinning
			select {
			case <-ctx.Done():
			case <-time.After(s.tickInterval):
			}
		}
	}
}

// Stop asks a running Run to return. It is safe for concurrent use.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.cancel != nil {
		s.cancel()
		s.log.Info("Scheduler stop requested")
	}
}

// Broadcast queues a local message; scripts listening for it start on the
// next tick. It is safe for concurrent use.
func (s *Scheduler) Broadcast(name string) {
	s.queue.Push(NewEvent(name))
}

// Kill stops one process. Its pending host request, if any, is abandoned.
func (s *Scheduler) Kill(id ProcessID) bool {
	p, ok := s.byID[id]
	if !ok || p.Done() {
		return false
	}
	s.killProcess(p)
	return true
}

// StopAll kills every process and discards queued messages.
func (s *Scheduler) StopAll() {
	s.killAll()
	s.queue.Clear()
}

// StopEntity kills every process of the named entity.
func (s *Scheduler) StopEntity(name string) {
	for _, p := range s.live() {
		if p.Entity.Name == name {
			s.killProcess(p)
		}
	}
}

// RemoveEntity removes an entity from the project and kills its processes.
func (s *Scheduler) RemoveEntity(name string) bool {
	e, ok := s.project.Entity(name)
	if !ok {
		return false
	}
	e.removed = true
	for _, p := range s.live() {
		if p.Entity == e {
			s.killProcess(p)
		}
	}
	return true
}

// Process returns a process that has not yet been removed.
func (s *Scheduler) Process(id ProcessID) (*Process, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Processes returns the processes not yet removed, in spawn order.
func (s *Scheduler) Processes() []*Process {
	out := make([]*Process, 0, len(s.procs)+len(s.pending))
	out = append(out, s.procs...)
	return append(out, s.pending...)
}

// Active returns the number of processes that have not finished.
func (s *Scheduler) Active() int {
	return len(s.live())
}

// Watch registers fn to be called once when the process is removed after
// finishing. It returns false if the process is unknown.
func (s *Scheduler) Watch(id ProcessID, fn func(*Process)) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	s.watchers[id] = append(s.watchers[id], fn)
	return true
}

func (s *Scheduler) live() []*Process {
	var out []*Process
	for _, p := range s.Processes() {
		if !p.Done() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Scheduler) anyRunning() bool {
	if len(s.pending) > 0 {
		return true
	}
	for _, p := range s.procs {
		if p.state == StateRunning {
			return true
		}
	}
	return false
}

func (s *Scheduler) newProcess(e *Entity, sc *Script) *Process {
	s.nextID++
	p := &Process{
		ID:     s.nextID,
		Entity: e,
		Script: sc,
		sched:  s,
		state:  StateRunning,
	}
	s.byID[p.ID] = p
	s.pending = append(s.pending, p)
	return p
}

// spawnScript creates a process for a script. Each process gets its own
// script scope chained to the entity fields; bind fills it before start.
func (s *Scheduler) spawnScript(e *Entity, sc *Script, bind func(*value.Scope)) *Process {
	p := s.newProcess(e, sc)
	scope := value.NewScope(e.Fields)
	if bind != nil {
		bind(scope)
	}
	p.push(&frame{kind: frameBlock, body: sc.Body, scope: scope})
	return p
}

// launch runs a closure in a new process. The root frame is a call node
// whose arguments are already values.
func (s *Scheduler) launch(c *value.Closure, args []value.Value, e *Entity) (*Process, error) {
	if owner, ok := c.Owner.(*Entity); ok && owner != nil {
		e = owner
	}
	if e == nil {
		return nil, value.NewTypeError("closure has no entity to run as")
	}

	callArgs := make([]any, 0, len(args)+1)
	callArgs = append(callArgs, value.ClosureValue(c))
	for _, a := range args {
		callArgs = append(callArgs, a)
	}

	p := s.newProcess(e, nil)
	node := opcode.New(opcode.CallClosure, callArgs...)
	p.push(&frame{kind: frameNode, node: &node, scope: value.NewScope(e.Fields)})
	return p, nil
}

// broadcast spawns every live script listening for name and returns the
// new process IDs.
func (s *Scheduler) broadcast(name string) []ProcessID {
	var ids []ProcessID
	for _, e := range s.project.Entities {
		if e.removed {
			continue
		}
		for _, sc := range e.Scripts {
			if sc.Trigger.Matches(OnMessage, name) {
				ids = append(ids, s.spawnScript(e, sc, nil).ID)
			}
		}
	}
	s.log.Debug("Broadcast", "message", name, "spawned", len(ids))
	return ids
}

// stopAll is the stop-all block: every process ends and Run returns.
func (s *Scheduler) stopAll() {
	s.StopAll()
	s.stopRequested = true
}

// stopEntity kills every process of e except keep.
func (s *Scheduler) stopEntity(e *Entity, keep *Process) {
	for _, p := range s.live() {
		if p.Entity == e && p != keep {
			s.killProcess(p)
		}
	}
}

func (s *Scheduler) killProcess(p *Process) {
	if p.state == StateBlocked && p.reason.Kind == AwaitingHandle {
		s.host.Abandon(p.reason.Handle)
	}
	p.kill()
}

func (s *Scheduler) killAll() {
	for _, p := range s.live() {
		s.killProcess(p)
	}
}

func (s *Scheduler) dispatchMessages() {
	for _, ev := range s.queue.Drain() {
		s.broadcast(ev.Name)
	}

	for _, msg := range s.host.DrainInbound() {
		s.deliver(msg)
	}
}

// deliver hands an inbound network message to the earliest process waiting
// for it and starts every network script listening for it. Each of them may
// answer a message that expects a reply; the sender keeps the first answer.
func (s *Scheduler) deliver(msg capability.Message) {
	for _, p := range s.procs {
		if p.state == StateBlocked && p.reason.Kind == AwaitingMessage &&
			(p.reason.Message == "" || p.reason.Message == msg.Name) {
			p.replyKey = msg.ReplyKey
			p.resume(msg.Payload)
			break
		}
	}

	for _, e := range s.project.Entities {
		if e.removed {
			continue
		}
		for _, sc := range e.Scripts {
			if !sc.Trigger.Matches(OnNetwork, msg.Name) {
				continue
			}
			fields := sc.Trigger.Fields
			p := s.spawnScript(e, sc, func(scope *value.Scope) {
				bindFields(scope, fields, msg.Payload)
			})
			p.replyKey = msg.ReplyKey
		}
	}
	s.log.Debug("Network message", "name", msg.Name, "sender", msg.Sender)
}

// bindFields defines each field as a script variable. A payload of
// [key, value] pairs binds by key; any other list binds by position; a
// single field receives a non-list payload whole.
func bindFields(scope *value.Scope, fields []string, payload value.Value) {
	if len(fields) == 0 {
		return
	}
	for _, f := range fields {
		scope.Define(f, value.Void())
	}

	l, ok := payload.List()
	if !ok {
		if len(fields) == 1 {
			scope.Define(fields[0], payload)
		}
		return
	}

	if pairs, ok := asPairs(l); ok {
		for _, f := range fields {
			if v, found := pairs[f]; found {
				scope.Define(f, v)
			}
		}
		return
	}

	items := l.Items()
	for i, f := range fields {
		if i < len(items) {
			scope.Define(f, items[i])
		}
	}
}

func asPairs(l *value.List) (map[string]value.Value, bool) {
	items := l.Items()
	if len(items) == 0 {
		return nil, false
	}
	pairs := make(map[string]value.Value, len(items))
	for _, item := range items {
		pl, ok := item.List()
		if !ok || pl.Len() != 2 {
			return nil, false
		}
		kv := pl.Items()
		if kv[0].Kind() != value.KindText {
			return nil, false
		}
		pairs[kv[0].String()] = kv[1]
	}
	return pairs, true
}

func (s *Scheduler) admit() {
	if len(s.pending) == 0 {
		return
	}
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		s.procs = append(s.procs, p)
		if s.onSpawn != nil {
			s.onSpawn(p)
		}
	}
}

func (s *Scheduler) wake() {
	now := s.host.Now()
	for _, p := range s.procs {
		if p.state != StateBlocked {
			continue
		}
		switch p.reason.Kind {
		case Sleeping:
			if !now.Before(p.reason.Until) {
				p.resume(value.Void())
			}
		case AwaitingBarrier:
			if s.barrierDone(p.reason.Barrier) {
				p.resume(value.Void())
			}
		}
	}
}

func (s *Scheduler) barrierDone(ids []ProcessID) bool {
	for _, id := range ids {
		if q, ok := s.byID[id]; ok && !q.Done() {
			return false
		}
	}
	return true
}

func (s *Scheduler) pollHandles() {
	for _, p := range s.procs {
		if p.state != StateBlocked || p.reason.Kind != AwaitingHandle {
			continue
		}
		r := s.host.Poll(p.reason.Handle)
		if r.Pending {
			continue
		}
		if r.Err != nil {
			p.resumeWithError(r.Err)
		} else {
			p.resume(r.Value)
		}
	}
}

// reap removes finished processes and notifies hooks and watchers. A
// process killed before it was admitted is removed from the pending list.
func (s *Scheduler) reap() {
	s.procs = s.sweep(s.procs)
	s.pending = s.sweep(s.pending)
}

func (s *Scheduler) sweep(procs []*Process) []*Process {
	kept := procs[:0]
	for _, p := range procs {
		if !p.Done() {
			kept = append(kept, p)
			continue
		}
		s.finished(p)
	}
	for i := len(kept); i < len(procs); i++ {
		procs[i] = nil
	}
	return kept
}

func (s *Scheduler) finished(p *Process) {
	if err := p.outcome.Err; err != nil {
		s.log.Warn("Process failed", "process", p.ID, "entity", p.Entity.Name, "error", err)
	} else {
		s.log.Debug("Process finished", "process", p.ID, "entity", p.Entity.Name, "state", p.state, "steps", p.totalSteps)
	}

	delete(s.byID, p.ID)
	for _, fn := range s.watchers[p.ID] {
		fn(p)
	}
	delete(s.watchers, p.ID)
	if s.onTerminate != nil {
		s.onTerminate(p)
	}
}
