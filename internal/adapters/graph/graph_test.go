package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/domain"
)

type describerMap map[string]domain.NodeDescription

func (d describerMap) Describe(nodeType string) (domain.NodeDescription, bool) {
	desc, ok := d[nodeType]
	return desc, ok
}

var testTypes = describerMap{
	"trigger": {Type: "trigger", Inputs: 0, Outputs: 1, Trigger: true},
	"step":    {Type: "step", Inputs: 1, Outputs: 1, InputMode: domain.InputModeAll},
	"branch":  {Type: "branch", Inputs: 1, Outputs: 2, InputMode: domain.InputModeAll},
	"merge":   {Type: "merge", Inputs: 2, Outputs: 1, InputMode: domain.InputModeAll},
	"first":   {Type: "first", Inputs: 1, Outputs: 1, InputMode: domain.InputModeAny},
}

func diamond() *domain.WorkflowGraph {
	return &domain.WorkflowGraph{
		ID: "diamond",
		Nodes: []domain.Node{
			{ID: "T", Type: "trigger", Trigger: true},
			{ID: "A", Type: "step"},
			{ID: "B", Type: "step"},
			{ID: "M", Type: "merge"},
		},
		Connections: []domain.Connection{
			{Source: "T", Target: "A"},
			{Source: "T", Target: "B"},
			{Source: "A", Target: "M", TargetInput: 0},
			{Source: "B", Target: "M", TargetInput: 1},
		},
	}
}

func TestReadySet(t *testing.T) {
	wf := diamond()

	tests := []struct {
		name      string
		completed []string
		want      []string
	}{
		{"empty yields triggers", nil, []string{"T"}},
		{"after trigger", []string{"T"}, []string{"A", "B"}},
		{"one branch done", []string{"T", "A"}, []string{"B"}},
		{"both branches", []string{"T", "A", "B"}, []string{"M"}},
		{"all done", []string{"T", "A", "B", "M"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completed := make(map[string]bool)
			for _, id := range tt.completed {
				completed[id] = true
			}
			assert.Equal(t, tt.want, ReadySet(wf, completed))
		})
	}
}

func TestReadySetAnyMode(t *testing.T) {
	wf := diamond()
	wf.Nodes[3].Type = "first"
	wf.Nodes[3].InputMode = domain.InputModeAny
	wf.Connections[3].TargetInput = 0

	assert.Equal(t, []string{"B", "M"}, ReadySet(wf, map[string]bool{"T": true, "A": true}))
}

func TestReadySetIgnoresLoopEdges(t *testing.T) {
	wf := diamond()
	wf.Connections = append(wf.Connections, domain.Connection{Source: "M", Target: "A", Loop: true})

	assert.Equal(t, []string{"A", "B"}, ReadySet(wf, map[string]bool{"T": true}))
}

func TestDescendantsAndReaches(t *testing.T) {
	g := New(diamond())

	assert.Equal(t, []string{"A", "B", "M"}, g.Descendants("T"))
	assert.Equal(t, []string{"M"}, g.Descendants("A"))
	assert.Empty(t, g.Descendants("M"))
	assert.True(t, g.Reaches("T", "M"))
	assert.True(t, g.Reaches("A", "A"))
	assert.False(t, g.Reaches("A", "B"))
	assert.Equal(t, []string{"A", "B"}, g.Sources("M"))
}

func TestTopologicalOrder(t *testing.T) {
	order, cyclic := New(diamond()).TopologicalOrder()
	assert.Equal(t, []string{"T", "A", "B", "M"}, order)
	assert.Empty(t, cyclic)
}

func TestValidateAcceptsWellFormedGraphs(t *testing.T) {
	wf := diamond()
	wf.Connections = append(wf.Connections, domain.Connection{Source: "M", Target: "A", Loop: true})

	res := Validate(wf, testTypes)
	assert.True(t, res.Valid, "%v", res.Issues)
	assert.NoError(t, res.Err(wf.ID))
}

func TestValidateRejects(t *testing.T) {
	two := 2
	tests := []struct {
		name    string
		mutate  func(*domain.WorkflowGraph)
		message string
	}{
		{"missing id", func(w *domain.WorkflowGraph) { w.ID = "" }, "workflow id is required"},
		{"no trigger", func(w *domain.WorkflowGraph) { w.Nodes[0].Trigger = false }, "no trigger node"},
		{"duplicate node", func(w *domain.WorkflowGraph) { w.Nodes[2].ID = "A" }, "duplicate node id"},
		{"unknown type", func(w *domain.WorkflowGraph) { w.Nodes[1].Type = "mystery" }, `unknown node type "mystery"`},
		{"dangling target", func(w *domain.WorkflowGraph) {
			w.Connections = append(w.Connections, domain.Connection{Source: "A", Target: "ghost"})
		}, `unknown target node "ghost"`},
		{"output out of range", func(w *domain.WorkflowGraph) { w.Connections[2].SourceOutput = 3 }, "output 3 out of range"},
		{"input out of range", func(w *domain.WorkflowGraph) { w.Connections[0].TargetInput = 1 }, "input 1 out of range"},
		{"cycle", func(w *domain.WorkflowGraph) {
			w.Connections = append(w.Connections, domain.Connection{Source: "M", Target: "A"})
		}, "cycle without loop connection"},
		{"loop not closing a cycle", func(w *domain.WorkflowGraph) {
			w.Connections = append(w.Connections, domain.Connection{Source: "A", Target: "B", Loop: true})
		}, "does not close a cycle"},
		{"orphan node", func(w *domain.WorkflowGraph) {
			w.Nodes = append(w.Nodes, domain.Node{ID: "X", Type: "step"})
		}, "no inbound connection"},
		{"required input unwired", func(w *domain.WorkflowGraph) { w.Connections[3].TargetInput = 0 }, "required input 1 is not connected"},
		{"trigger with inbound", func(w *domain.WorkflowGraph) {
			w.Nodes = append(w.Nodes, domain.Node{ID: "T2", Type: "trigger", Trigger: true})
			w.Connections = append(w.Connections, domain.Connection{Source: "A", Target: "T2"})
		}, "trigger node cannot have inbound connections"},
		{"bad input mode", func(w *domain.WorkflowGraph) { w.Nodes[1].InputMode = "some" }, "unknown input mode"},
		{"error output out of range", func(w *domain.WorkflowGraph) { w.Nodes[1].ErrorOutput = &two }, "output 2 out of range"},
		{"bad retry policy", func(w *domain.WorkflowGraph) {
			w.Nodes[1].RetryPolicy = &domain.RetryPolicy{Backoff: "linear"}
		}, "unknown backoff"},
		{"negative loop guard", func(w *domain.WorkflowGraph) { w.Settings.MaxLoopIterations = -1 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := diamond()
			tt.mutate(wf)

			res := Validate(wf, testTypes)
			require.False(t, res.Valid)

			err := res.Err(wf.ID)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateEmptyAndNil(t *testing.T) {
	assert.False(t, Validate(nil, testTypes).Valid)
	assert.False(t, Validate(&domain.WorkflowGraph{ID: "x"}, testTypes).Valid)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	wf := diamond()
	wf.Nodes[0].Trigger = false
	wf.Nodes[3].Type = "first"

	out := Normalize(wf, testTypes)

	assert.True(t, out.Nodes[0].Trigger)
	assert.Equal(t, domain.InputModeAny, out.Nodes[3].InputMode)
	assert.Equal(t, domain.InputModeAll, out.Nodes[1].InputMode)
	assert.False(t, wf.Nodes[0].Trigger, "input is not mutated")
}
