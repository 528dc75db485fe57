package vm

import (
	"fmt"

	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// TriggerKind selects what starts a script.
type TriggerKind uint8

const (
	// OnStart scripts run when the project starts (green flag).
	OnStart TriggerKind = iota
	// OnMessage scripts run for each matching local broadcast.
	OnMessage
	// OnNetwork scripts run for each matching inbound network message.
	OnNetwork
	// Manual scripts only run when started explicitly.
	Manual
)

func (k TriggerKind) String() string {
	switch k {
	case OnStart:
		return "start"
	case OnMessage:
		return "message"
	case OnNetwork:
		return "network"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// Trigger is the hat block of a script.
type Trigger struct {
	Kind TriggerKind
	// Name is the message name; "" under OnMessage matches every message.
	Name string
	// Fields are the payload fields bound as script variables for OnNetwork.
	Fields []string
}

// Matches reports whether the trigger fires for a message.
func (t Trigger) Matches(kind TriggerKind, name string) bool {
	if t.Kind != kind {
		return false
	}
	return t.Name == "" || t.Name == name
}

// Script is a top-level script of an entity.
type Script struct {
	Trigger Trigger
	Body    opcode.Script
}

// Procedure is a custom block definition.
type Procedure struct {
	Name   string
	Params []string
	Body   opcode.Script
	Warp   bool
}

// Entity is a scriptable object: a sprite or the stage.
type Entity struct {
	Name       string
	Fields     *value.Scope
	Scripts    []*Script
	Procedures map[string]*Procedure

	project *Project
	removed bool
}

// EntityName implements value.EntityRef.
func (e *Entity) EntityName() string { return e.Name }

// Removed reports whether the entity has been removed from its project.
func (e *Entity) Removed() bool { return e.removed }

// AddScript attaches a script.
func (e *Entity) AddScript(trigger Trigger, body opcode.Script) *Script {
	s := &Script{Trigger: trigger, Body: body}
	e.Scripts = append(e.Scripts, s)
	return s
}

// DefineField declares an entity variable.
func (e *Entity) DefineField(name string, v value.Value) {
	e.Fields.Define(name, v)
}

// DefineProcedure attaches a custom block to the entity.
func (e *Entity) DefineProcedure(p *Procedure) {
	e.Procedures[p.Name] = p
}

// procedure finds a custom block on the entity, then on the project.
func (e *Entity) procedure(name string) (*Procedure, bool) {
	if p, ok := e.Procedures[name]; ok {
		return p, true
	}
	if e.project != nil {
		p, ok := e.project.Procedures[name]
		return p, ok
	}
	return nil, false
}

// Project is a loaded program: global variables, global custom blocks and
// entities in display order.
type Project struct {
	Name       string
	Globals    *value.Scope
	Entities   []*Entity
	Procedures map[string]*Procedure
}

// NewProject creates an empty project.
func NewProject(name string) *Project {
	return &Project{
		Name:       name,
		Globals:    value.NewScope(nil),
		Procedures: make(map[string]*Procedure),
	}
}

// AddEntity creates an entity whose fields chain to the project globals.
func (p *Project) AddEntity(name string) *Entity {
	e := &Entity{
		Name:       name,
		Fields:     value.NewScope(p.Globals),
		Procedures: make(map[string]*Procedure),
		project:    p,
	}
	p.Entities = append(p.Entities, e)
	return e
}

// Entity finds a live entity by name.
func (p *Project) Entity(name string) (*Entity, bool) {
	for _, e := range p.Entities {
		if e.Name == name && !e.removed {
			return e, true
		}
	}
	return nil, false
}

// DefineGlobal declares a project variable.
func (p *Project) DefineGlobal(name string, v value.Value) {
	p.Globals.Define(name, v)
}

// DefineProcedure attaches a custom block visible to every entity.
func (p *Project) DefineProcedure(proc *Procedure) {
	p.Procedures[proc.Name] = proc
}

// Validate checks every script and procedure body.
func (p *Project) Validate() error {
	for name, proc := range p.Procedures {
		if err := opcode.Validate(proc.Body); err != nil {
			return fmt.Errorf("procedure %s: %w", name, err)
		}
	}
	for _, e := range p.Entities {
		for i, s := range e.Scripts {
			if err := opcode.Validate(s.Body); err != nil {
				return fmt.Errorf("entity %s script %d: %w", e.Name, i+1, err)
			}
		}
		for name, proc := range e.Procedures {
			if err := opcode.Validate(proc.Body); err != nil {
				return fmt.Errorf("entity %s procedure %s: %w", e.Name, name, err)
			}
		}
	}
	return nil
}

// closureFor instantiates a procedure as a closure running as entity e.
func (proc *Procedure) closureFor(e *Entity) *value.Closure {
	return &value.Closure{
		Name:     proc.Name,
		Params:   proc.Params,
		Body:     proc.Body,
		Captured: e.Fields,
		Owner:    e,
		Warp:     proc.Warp,
	}
}
