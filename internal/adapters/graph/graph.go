// Package graph indexes workflow graphs for validation and scheduling.
package graph

import (
	"github.com/eleven-am/loom/internal/domain"
)

// Graph is a read-only index over a workflow's nodes and connections.
// Forward adjacency excludes loop-back connections.
type Graph struct {
	workflow *domain.WorkflowGraph
	order    map[string]int
	ids      []string
	inbound  map[string][]domain.Connection
	outbound map[string][]domain.Connection
	loops    map[string][]domain.Connection
}

func New(workflow *domain.WorkflowGraph) *Graph {
	g := &Graph{
		workflow: workflow,
		order:    make(map[string]int, len(workflow.Nodes)),
		ids:      make([]string, 0, len(workflow.Nodes)),
		inbound:  make(map[string][]domain.Connection),
		outbound: make(map[string][]domain.Connection),
		loops:    make(map[string][]domain.Connection),
	}
	for i, n := range workflow.Nodes {
		if _, dup := g.order[n.ID]; dup {
			continue
		}
		g.order[n.ID] = i
		g.ids = append(g.ids, n.ID)
	}
	for _, c := range workflow.Connections {
		if c.Loop {
			g.loops[c.Source] = append(g.loops[c.Source], c)
			continue
		}
		g.inbound[c.Target] = append(g.inbound[c.Target], c)
		g.outbound[c.Source] = append(g.outbound[c.Source], c)
	}
	return g
}

func (g *Graph) Workflow() *domain.WorkflowGraph {
	return g.workflow
}

// Nodes returns node ids in declaration order.
func (g *Graph) Nodes() []string {
	return g.ids
}

func (g *Graph) Has(id string) bool {
	_, ok := g.order[id]
	return ok
}

func (g *Graph) Order(id string) int {
	if idx, ok := g.order[id]; ok {
		return idx
	}
	return -1
}

func (g *Graph) Node(id string) *domain.Node {
	idx, ok := g.order[id]
	if !ok {
		return nil
	}
	return &g.workflow.Nodes[idx]
}

// Inbound returns forward connections into id in declaration order.
func (g *Graph) Inbound(id string) []domain.Connection {
	return g.inbound[id]
}

func (g *Graph) Outbound(id string) []domain.Connection {
	return g.outbound[id]
}

// LoopEdges returns loop-back connections leaving id.
func (g *Graph) LoopEdges(id string) []domain.Connection {
	return g.loops[id]
}

func (g *Graph) IsTrigger(id string) bool {
	n := g.Node(id)
	return n != nil && n.Trigger
}

func (g *Graph) InputMode(id string) domain.InputMode {
	n := g.Node(id)
	if n == nil || n.InputMode == "" {
		return domain.InputModeAll
	}
	return n.InputMode
}

// Sources returns the distinct forward predecessors of id, first-seen order.
func (g *Graph) Sources(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range g.inbound[id] {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}

// ReadySet returns the nodes not yet completed whose required inbound
// sources are all completed ("all") or at least one is ("any"). Trigger
// nodes are ready while not completed. Order follows node declaration.
func (g *Graph) ReadySet(completed map[string]bool) []string {
	var ready []string
	for _, id := range g.ids {
		if completed[id] {
			continue
		}
		if g.IsTrigger(id) {
			ready = append(ready, id)
			continue
		}
		sources := g.Sources(id)
		if len(sources) == 0 {
			continue
		}
		if g.InputMode(id) == domain.InputModeAny {
			for _, s := range sources {
				if completed[s] {
					ready = append(ready, id)
					break
				}
			}
			continue
		}
		all := true
		for _, s := range sources {
			if !completed[s] {
				all = false
				break
			}
		}
		if all {
			ready = append(ready, id)
		}
	}
	return ready
}

// ReadySet is the functional form of Graph.ReadySet.
func ReadySet(workflow *domain.WorkflowGraph, completed map[string]bool) []string {
	return New(workflow).ReadySet(completed)
}

// Descendants returns every node reachable from id over forward edges,
// excluding id itself, in declaration order.
func (g *Graph) Descendants(id string) []string {
	visited := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.outbound[cur] {
			if !visited[c.Target] {
				visited[c.Target] = true
				stack = append(stack, c.Target)
			}
		}
	}
	var out []string
	for _, n := range g.ids {
		if n != id && visited[n] {
			out = append(out, n)
		}
	}
	return out
}

// Reaches reports whether to is reachable from from over forward edges.
func (g *Graph) Reaches(from, to string) bool {
	if from == to {
		return true
	}
	for _, d := range g.Descendants(from) {
		if d == to {
			return true
		}
	}
	return false
}

// TopologicalOrder returns a Kahn ordering over forward edges with ties broken
// by declaration order, or the nodes stuck in a cycle.
func (g *Graph) TopologicalOrder() (order []string, cyclic []string) {
	indegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		indegree[id] = 0
	}
	for _, id := range g.ids {
		for _, c := range g.outbound[id] {
			if g.Has(c.Target) {
				indegree[c.Target]++
			}
		}
	}

	done := make(map[string]bool, len(g.ids))
	for len(order) < len(g.ids) {
		progressed := false
		for _, id := range g.ids {
			if done[id] || indegree[id] != 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			for _, c := range g.outbound[id] {
				if g.Has(c.Target) {
					indegree[c.Target]--
				}
			}
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	for _, id := range g.ids {
		if !done[id] {
			cyclic = append(cyclic, id)
		}
	}
	return order, cyclic
}
