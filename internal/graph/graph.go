package graph

import (
	"context"
	"fmt"

	"procflow/internal/domain"
)

// NodeFunc is a pure transformation over the state document. Node functions
// must not perform durable writes; only the engine persists state.
type NodeFunc func(ctx context.Context, s domain.State) (domain.State, error)

// RouteFunc inspects the freshly produced state and returns a label. Each
// label must be declared in the conditional edge's target map; an
// undeclared label is a fatal configuration error at runtime.
type RouteFunc func(s domain.State) string

type edge struct {
	target  string            // unconditional
	route   RouteFunc         // conditional
	targets map[string]string // label -> node, for conditional edges
}

// Definition is a validated, immutable workflow graph.
type Definition struct {
	workflowType string
	entry        string
	nodes        map[string]NodeFunc
	edges        map[string]edge
	interrupts   map[string]bool
	terminals    map[string]bool
	cancelNode   string
	stateCheck   func(s domain.State) error
}

func (d *Definition) WorkflowType() string { return d.workflowType }
func (d *Definition) Entry() string        { return d.entry }

func (d *Definition) IsInterrupt(node string) bool { return d.interrupts[node] }
func (d *Definition) IsTerminal(node string) bool  { return d.terminals[node] }

// CancelNode returns the cancelled terminal, or "" when the workflow does
// not support explicit cancellation.
func (d *Definition) CancelNode() string { return d.cancelNode }

// CheckState validates a state document against the workflow's declared
// shape. A no-op when the workflow declares none.
func (d *Definition) CheckState(s domain.State) error {
	if d.stateCheck == nil {
		return nil
	}
	return d.stateCheck(s)
}

// Node returns the function bound to a non-terminal node.
func (d *Definition) Node(name string) (NodeFunc, error) {
	fn, ok := d.nodes[name]
	if !ok {
		return nil, &domain.ConfigurationError{WorkflowType: d.workflowType, Detail: fmt.Sprintf("no node %q", name)}
	}
	return fn, nil
}

// Next evaluates the outgoing edge of a node against the freshly produced
// state and returns the next node.
func (d *Definition) Next(node string, s domain.State) (string, error) {
	e, ok := d.edges[node]
	if !ok {
		return "", &domain.ConfigurationError{WorkflowType: d.workflowType, Detail: fmt.Sprintf("node %q has no outgoing edge", node)}
	}
	if e.route == nil {
		return e.target, nil
	}
	label := e.route(s)
	target, ok := e.targets[label]
	if !ok {
		return "", &domain.ConfigurationError{
			WorkflowType: d.workflowType,
			Detail:       fmt.Sprintf("routing function of %q returned undeclared label %q", node, label),
		}
	}
	return target, nil
}

// Builder assembles a Definition. All structural checks happen in Build;
// a definition that builds cleanly cannot produce a dangling transition at
// runtime.
type Builder struct {
	def  *Definition
	errs []string
}

func New(workflowType string) *Builder {
	return &Builder{def: &Definition{
		workflowType: workflowType,
		nodes:        map[string]NodeFunc{},
		edges:        map[string]edge{},
		interrupts:   map[string]bool{},
		terminals:    map[string]bool{},
	}}
}

func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if _, dup := b.def.nodes[name]; dup {
		b.errs = append(b.errs, fmt.Sprintf("duplicate node %q", name))
	}
	if fn == nil {
		b.errs = append(b.errs, fmt.Sprintf("node %q has nil function", name))
	}
	b.def.nodes[name] = fn
	return b
}

// AddTerminal declares a node with no function and no outgoing edges.
func (b *Builder) AddTerminal(name string) *Builder {
	if b.def.terminals[name] {
		b.errs = append(b.errs, fmt.Sprintf("duplicate terminal %q", name))
	}
	b.def.terminals[name] = true
	return b
}

func (b *Builder) SetEntry(name string) *Builder {
	b.def.entry = name
	return b
}

// MarkInterrupt flags nodes where the engine must suspend before executing
// them and wait for external input.
func (b *Builder) MarkInterrupt(names ...string) *Builder {
	for _, n := range names {
		b.def.interrupts[n] = true
	}
	return b
}

func (b *Builder) AddEdge(from, to string) *Builder {
	if _, dup := b.def.edges[from]; dup {
		b.errs = append(b.errs, fmt.Sprintf("node %q already has an outgoing edge", from))
	}
	b.def.edges[from] = edge{target: to}
	return b
}

// AddConditionalEdges binds a routing function to a node. The targets map
// declares every label the function may return; totality over the declared
// labels is checked at runtime and treated as a configuration error.
func (b *Builder) AddConditionalEdges(from string, route RouteFunc, targets map[string]string) *Builder {
	if _, dup := b.def.edges[from]; dup {
		b.errs = append(b.errs, fmt.Sprintf("node %q already has an outgoing edge", from))
	}
	if route == nil {
		b.errs = append(b.errs, fmt.Sprintf("conditional edge of %q has nil routing function", from))
	}
	if len(targets) == 0 {
		b.errs = append(b.errs, fmt.Sprintf("conditional edge of %q declares no targets", from))
	}
	b.def.edges[from] = edge{route: route, targets: targets}
	return b
}

// SetStateCheck binds a shape check that externally supplied state (merged
// resume updates) must pass before the engine persists anything.
func (b *Builder) SetStateCheck(check func(s domain.State) error) *Builder {
	b.def.stateCheck = check
	return b
}

// WithCancel declares the cancelled terminal and implicitly permits a
// cancel transition from every interrupt node to it.
func (b *Builder) WithCancel(terminal string) *Builder {
	b.def.cancelNode = terminal
	b.def.terminals[terminal] = true
	return b
}

// Build validates the graph: declared entry, resolvable edge targets, no
// outgoing edges from terminals, an edge out of every non-terminal node,
// reachability from entry, and a non-interrupt entry (the engine suspends
// before interrupt nodes, so an interrupt entry could never execute).
func (b *Builder) Build() (*Definition, error) {
	d := b.def
	fail := func(detail string) (*Definition, error) {
		return nil, &domain.ConfigurationError{WorkflowType: d.workflowType, Detail: detail}
	}

	if len(b.errs) > 0 {
		return fail(b.errs[0])
	}
	if d.entry == "" {
		return fail("entry node not set")
	}
	if _, ok := d.nodes[d.entry]; !ok {
		return fail(fmt.Sprintf("entry %q is not a declared node", d.entry))
	}
	if d.interrupts[d.entry] {
		return fail(fmt.Sprintf("entry %q must not be an interrupt node", d.entry))
	}

	declared := func(name string) bool {
		_, isNode := d.nodes[name]
		return isNode || d.terminals[name]
	}

	for name := range d.interrupts {
		if _, ok := d.nodes[name]; !ok {
			return fail(fmt.Sprintf("interrupt %q is not a declared node", name))
		}
	}
	for name := range d.nodes {
		if d.terminals[name] {
			return fail(fmt.Sprintf("%q is both a node and a terminal", name))
		}
		if _, ok := d.edges[name]; !ok {
			return fail(fmt.Sprintf("node %q has no outgoing edge", name))
		}
	}
	for from, e := range d.edges {
		if _, ok := d.nodes[from]; !ok {
			return fail(fmt.Sprintf("edge source %q is not a declared node", from))
		}
		if e.route == nil {
			if !declared(e.target) {
				return fail(fmt.Sprintf("edge %q -> %q targets an undeclared node", from, e.target))
			}
			continue
		}
		for label, target := range e.targets {
			if !declared(target) {
				return fail(fmt.Sprintf("conditional edge %q label %q targets undeclared node %q", from, label, target))
			}
		}
	}

	// Reachability from entry over all declared edge targets.
	seen := map[string]bool{d.entry: true}
	stack := []string{d.entry}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, ok := d.edges[n]
		if !ok {
			continue
		}
		var targets []string
		if e.route == nil {
			targets = []string{e.target}
		} else {
			for _, t := range e.targets {
				targets = append(targets, t)
			}
		}
		for _, t := range targets {
			if !seen[t] {
				seen[t] = true
				stack = append(stack, t)
			}
		}
	}
	for name := range d.nodes {
		if !seen[name] {
			return fail(fmt.Sprintf("node %q is unreachable from entry", name))
		}
	}

	return d, nil
}
