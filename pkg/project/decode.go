package project

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
	"github.com/zurustar/blox/pkg/vm"
)

type projectFile struct {
	Name       string          `yaml:"name"`
	Imports    []string        `yaml:"imports"`
	Globals    yaml.Node       `yaml:"globals"`
	Procedures []procedureYAML `yaml:"procedures"`
	Entities   []entityYAML    `yaml:"entities"`
}

type entityYAML struct {
	Name       string          `yaml:"name"`
	Fields     yaml.Node       `yaml:"fields"`
	Procedures []procedureYAML `yaml:"procedures"`
	Scripts    []scriptYAML    `yaml:"scripts"`
}

type procedureYAML struct {
	Name   string    `yaml:"name"`
	Params []string  `yaml:"params"`
	Warp   bool      `yaml:"warp"`
	Body   yaml.Node `yaml:"body"`
}

type scriptYAML struct {
	When    string    `yaml:"when"`
	Message string    `yaml:"message"`
	Fields  []string  `yaml:"fields"`
	Body    yaml.Node `yaml:"body"`
}

func (pf *projectFile) build() (*vm.Project, error) {
	proj := vm.NewProject(strings.TrimSpace(pf.Name))

	err := eachPair(&pf.Globals, func(name string, v value.Value) {
		proj.DefineGlobal(name, v)
	})
	if err != nil {
		return nil, fmt.Errorf("globals: %w", err)
	}

	for _, py := range pf.Procedures {
		proc, err := py.build()
		if err != nil {
			return nil, err
		}
		proj.DefineProcedure(proc)
	}

	for i, ey := range pf.Entities {
		name := strings.TrimSpace(ey.Name)
		if name == "" {
			return nil, fmt.Errorf("entity %d has no name", i+1)
		}
		if _, dup := proj.Entity(name); dup {
			return nil, fmt.Errorf("duplicate entity %q", name)
		}
		if err := ey.build(proj.AddEntity(name)); err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
	}
	return proj, nil
}

// mergeInto adds the globals and procedures of a library to proj, keeping
// the definitions proj already has.
func (pf *projectFile) mergeInto(proj *vm.Project) error {
	err := eachPair(&pf.Globals, func(name string, v value.Value) {
		if !proj.Globals.HasLocal(name) {
			proj.DefineGlobal(name, v)
		}
	})
	if err != nil {
		return fmt.Errorf("globals: %w", err)
	}

	for _, py := range pf.Procedures {
		proc, err := py.build()
		if err != nil {
			return err
		}
		if _, ok := proj.Procedures[proc.Name]; !ok {
			proj.DefineProcedure(proc)
		}
	}
	return nil
}

func (ey *entityYAML) build(e *vm.Entity) error {
	err := eachPair(&ey.Fields, func(name string, v value.Value) {
		e.DefineField(name, v)
	})
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}

	for _, py := range ey.Procedures {
		proc, err := py.build()
		if err != nil {
			return err
		}
		e.DefineProcedure(proc)
	}

	for i, sy := range ey.Scripts {
		trigger, err := sy.trigger()
		if err != nil {
			return fmt.Errorf("script %d: %w", i+1, err)
		}
		body, err := decodeScript(&sy.Body)
		if err != nil {
			return fmt.Errorf("script %d: %w", i+1, err)
		}
		e.AddScript(trigger, body)
	}
	return nil
}

func (py *procedureYAML) build() (*vm.Procedure, error) {
	name := strings.TrimSpace(py.Name)
	if name == "" {
		return nil, fmt.Errorf("procedure has no name")
	}
	body, err := decodeScript(&py.Body)
	if err != nil {
		return nil, fmt.Errorf("procedure %s: %w", name, err)
	}
	params := make([]string, len(py.Params))
	for i, p := range py.Params {
		params[i] = strings.TrimPrefix(p, "$")
	}
	return &vm.Procedure{Name: name, Params: params, Body: body, Warp: py.Warp}, nil
}

func (sy *scriptYAML) trigger() (vm.Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(sy.When)) {
	case "", "start":
		return vm.Trigger{Kind: vm.OnStart}, nil
	case "message":
		return vm.Trigger{Kind: vm.OnMessage, Name: sy.Message}, nil
	case "network":
		return vm.Trigger{Kind: vm.OnNetwork, Name: sy.Message, Fields: sy.Fields}, nil
	case "manual":
		return vm.Trigger{Kind: vm.Manual}, nil
	default:
		return vm.Trigger{}, fmt.Errorf("unknown trigger %q", sy.When)
	}
}

// eachPair decodes a mapping of variable names to values, in file order.
func eachPair(n *yaml.Node, fn func(name string, v value.Value)) error {
	if n.Kind == 0 || isNull(n) {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return nodeError(n, "expected a mapping of names to values")
	}
	for i := 0; i < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		v, err := decodeValue(val)
		if err != nil {
			return err
		}
		fn(strings.TrimPrefix(key.Value, "$"), v)
	}
	return nil
}

// decodeValue converts plain YAML data to a value. Sequences become lists
// and mappings become lists of [key, value] pairs.
func decodeValue(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return decodeValue(n.Alias)
	case yaml.ScalarNode:
		lit, err := scalar(n)
		if err != nil {
			return value.Void(), err
		}
		v, err := value.FromGo(lit)
		if err != nil {
			return value.Void(), nodeError(n, "%v", err)
		}
		return v, nil
	case yaml.SequenceNode:
		items := make([]value.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeValue(c)
			if err != nil {
				return value.Void(), err
			}
			items = append(items, v)
		}
		return value.ListValue(value.NewListFrom(items)), nil
	case yaml.MappingNode:
		pairs := make([]value.Value, 0, len(n.Content)/2)
		for i := 0; i < len(n.Content); i += 2 {
			v, err := decodeValue(n.Content[i+1])
			if err != nil {
				return value.Void(), err
			}
			pair := value.NewListFrom([]value.Value{value.Text(n.Content[i].Value), v})
			pairs = append(pairs, value.ListValue(pair))
		}
		return value.ListValue(value.NewListFrom(pairs)), nil
	default:
		return value.Void(), nodeError(n, "unexpected %s", n.ShortTag())
	}
}

// scalar decodes a scalar node to a literal by its resolved tag.
func scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return b, nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return f, nil
	default:
		return n.Value, nil
	}
}

func decodeScript(n *yaml.Node) (opcode.Script, error) {
	if n.Kind == yaml.AliasNode {
		return decodeScript(n.Alias)
	}
	if n.Kind == 0 || isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, nodeError(n, "expected a list of blocks")
	}
	script := make(opcode.Script, 0, len(n.Content))
	for _, c := range n.Content {
		block, err := decodeBlock(c)
		if err != nil {
			return nil, err
		}
		script = append(script, block)
	}
	return script, nil
}

// decodeBlock decodes [Cmd, arg...], reading each argument according to the
// opcode's shape.
func decodeBlock(n *yaml.Node) (opcode.OpCode, error) {
	if n.Kind == yaml.AliasNode {
		return decodeBlock(n.Alias)
	}
	if n.Kind != yaml.SequenceNode || len(n.Content) == 0 || n.Content[0].Kind != yaml.ScalarNode {
		return opcode.OpCode{}, nodeError(n, "expected a block: [Opcode, args...]")
	}

	cmd := opcode.Cmd(n.Content[0].Value)
	shape, ok := opcode.ShapeOf(cmd)
	if !ok {
		return opcode.OpCode{}, nodeError(n, "unknown block %q", cmd)
	}

	args := make([]any, 0, len(n.Content)-1)
	for i, c := range n.Content[1:] {
		arg, err := decodeArg(shape.KindAt(i), c)
		if err != nil {
			return opcode.OpCode{}, fmt.Errorf("%s: %w", cmd, err)
		}
		args = append(args, arg)
	}
	return opcode.New(cmd, args...), nil
}

func decodeArg(kind opcode.ArgKind, n *yaml.Node) (any, error) {
	if n.Kind == yaml.AliasNode {
		return decodeArg(kind, n.Alias)
	}

	switch kind {
	case opcode.ArgScript:
		return decodeScript(n)

	case opcode.ArgVar:
		if n.Kind != yaml.ScalarNode || n.Value == "" {
			return nil, nodeError(n, "expected a variable name")
		}
		return opcode.Variable(strings.TrimPrefix(n.Value, "$")), nil

	case opcode.ArgName, opcode.ArgOperator:
		if n.Kind != yaml.ScalarNode || n.Value == "" {
			return nil, nodeError(n, "expected a %s", kind)
		}
		return n.Value, nil

	case opcode.ArgNames:
		if isNull(n) {
			return opcode.Names{}, nil
		}
		if n.Kind != yaml.SequenceNode {
			return nil, nodeError(n, "expected a list of names")
		}
		names := make(opcode.Names, 0, len(n.Content))
		for _, c := range n.Content {
			names = append(names, strings.TrimPrefix(c.Value, "$"))
		}
		return names, nil

	case opcode.ArgRing:
		if n.Kind == yaml.SequenceNode && !isBlock(n) {
			return decodeScript(n)
		}
		return decodeExpr(n)

	default:
		return decodeExpr(n)
	}
}

// decodeExpr reads an expression slot: a nested block, a variable read or a
// literal.
func decodeExpr(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		return decodeBlock(n)
	case yaml.ScalarNode:
		lit, err := scalar(n)
		if err != nil {
			return nil, err
		}
		s, ok := lit.(string)
		if !ok || n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0 {
			return lit, nil
		}
		if strings.HasPrefix(s, "$$") {
			return s[1:], nil
		}
		if strings.HasPrefix(s, "$") && len(s) > 1 {
			return opcode.Variable(s[1:]), nil
		}
		return s, nil
	default:
		return nil, nodeError(n, "expected a block, variable or literal")
	}
}

// isBlock reports whether a sequence node starts with an opcode name.
func isBlock(n *yaml.Node) bool {
	if len(n.Content) == 0 || n.Content[0].Kind != yaml.ScalarNode {
		return false
	}
	_, ok := opcode.ShapeOf(opcode.Cmd(n.Content[0].Value))
	return ok
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func nodeError(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}
