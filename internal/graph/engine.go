// Package graph is a small, sequential directed-graph execution engine:
// typed state, named nodes, a Reducer merging partial updates, and
// explicit Command-based re-entry, including the ability for a node to
// bubble a Command up to a parent graph. Its shape (Engine[S], Reducer[S],
// Node as a plain function, functional registration) is grounded on
// dshills-langgraph-go's graph-engine.go/graph-options.go, trimmed down to
// the single-threaded, non-checkpointed execution spec.md's workflow
// engine (C5) and agent sub-graph (C6) actually need — this repo has no
// concurrent fan-out or replay requirement, so the frontier/worker-pool
// machinery that reference carries is not reproduced.
package graph

import (
	"context"
	"fmt"
)

// Reducer merges a node's partial state update into the previous state.
// Implementations decide per-field overwrite vs. append semantics.
type Reducer[S any] func(prev, delta S) S

// GraphTarget names which graph a Command's Goto applies to.
type GraphTarget int

const (
	// CurrentGraph routes within the graph the node belongs to (default).
	CurrentGraph GraphTarget = iota
	// ParentGraph bubbles the Command up to the caller of Run, for a
	// sub-graph to hand control back to its parent (spec.md §4.1/§4.2's
	// "PARENT-graph Command").
	ParentGraph
)

// Command is a node's explicit routing decision, optionally carrying a
// state update to merge before transitioning.
type Command[S any] struct {
	Goto      string
	Update    S
	HasUpdate bool
	Graph     GraphTarget
}

// Result is what a Node returns: either a bare partial update (the engine
// then follows the static edge registered for the current node) or an
// explicit Command.
type Result[S any] struct {
	Update    S
	HasUpdate bool
	Command   *Command[S]
}

// Update wraps a partial state update with no explicit routing.
func Update[S any](delta S) Result[S] {
	return Result[S]{Update: delta, HasUpdate: true}
}

// Goto wraps an explicit same-graph transition, optionally carrying an update.
func Goto[S any](node string, delta S, hasUpdate bool) Result[S] {
	return Result[S]{Command: &Command[S]{Goto: node, Update: delta, HasUpdate: hasUpdate}}
}

// GotoParent wraps a Command that bubbles to the parent graph.
func GotoParent[S any](node string, delta S, hasUpdate bool) Result[S] {
	return Result[S]{Command: &Command[S]{Goto: node, Update: delta, HasUpdate: hasUpdate, Graph: ParentGraph}}
}

// Node is one graph step. Returning a non-nil error aborts Run.
type Node[S any] func(ctx context.Context, state S) (Result[S], error)

// Engine is a sequential, single-run graph executor over state type S.
type Engine[S any] struct {
	nodes   map[string]Node[S]
	edges   map[string]string // static single successor, keyed by node id
	reducer Reducer[S]
	start   string
}

// New builds an empty Engine using reducer to merge node updates.
func New[S any](reducer Reducer[S]) *Engine[S] {
	return &Engine[S]{
		nodes:   make(map[string]Node[S]),
		edges:   make(map[string]string),
		reducer: reducer,
	}
}

// Add registers a node under id.
func (e *Engine[S]) Add(id string, node Node[S]) {
	e.nodes[id] = node
}

// Connect registers the static successor for a node whose Result carries no
// explicit Command.
func (e *Engine[S]) Connect(from, to string) {
	e.edges[from] = to
}

// StartAt sets the entry node.
func (e *Engine[S]) StartAt(id string) {
	e.start = id
}

// BubbledCommand is returned by Run when a node emitted a Command targeting
// ParentGraph: the caller (a parent graph's node) is responsible for
// applying it.
type BubbledCommand[S any] struct {
	Goto      string
	Update    S
	HasUpdate bool
}

// Run executes nodes starting at the configured start node until a node
// returns a Command with no Goto (terminal), a Command targeting
// ParentGraph (bubbled back to the caller), or an error.
func (e *Engine[S]) Run(ctx context.Context, initial S) (final S, bubbled *BubbledCommand[S], err error) {
	if e.start == "" {
		return initial, nil, fmt.Errorf("graph: no start node configured")
	}

	state := initial
	current := e.start

	for {
		if err := ctx.Err(); err != nil {
			return state, nil, err
		}

		node, ok := e.nodes[current]
		if !ok {
			return state, nil, fmt.Errorf("graph: node %q not registered", current)
		}

		result, err := node(ctx, state)
		if err != nil {
			return state, nil, err
		}

		if result.Command == nil {
			if result.HasUpdate {
				state = e.reducer(state, result.Update)
			}
			next, ok := e.edges[current]
			if !ok {
				// No explicit command and no static edge: terminal.
				return state, nil, nil
			}
			current = next
			continue
		}

		cmd := result.Command
		if cmd.HasUpdate {
			state = e.reducer(state, cmd.Update)
		}

		if cmd.Graph == ParentGraph {
			return state, &BubbledCommand[S]{Goto: cmd.Goto, Update: cmd.Update, HasUpdate: cmd.HasUpdate}, nil
		}

		if cmd.Goto == "" {
			return state, nil, nil
		}
		current = cmd.Goto
	}
}
