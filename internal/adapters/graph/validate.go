package graph

import (
	"fmt"
	"strings"

	"github.com/eleven-am/loom/internal/domain"
)

// Describer resolves node type metadata. A nil Describer skips type checks.
type Describer interface {
	Describe(nodeType string) (domain.NodeDescription, bool)
}

type ValidationResult struct {
	Valid  bool
	Issues []domain.ValidationIssue
}

func (r ValidationResult) Err(workflowID string) error {
	if r.Valid {
		return nil
	}
	return domain.NewValidationError(workflowID, r.Issues...)
}

type validator struct {
	issues []domain.ValidationIssue
}

func (v *validator) add(nodeID, field, format string, args ...interface{}) {
	v.issues = append(v.issues, domain.ValidationIssue{
		NodeID:  nodeID,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Normalize returns a copy of workflow with node defaults filled in from the
// registry: trigger flags and input modes.
func Normalize(workflow *domain.WorkflowGraph, describer Describer) *domain.WorkflowGraph {
	out := workflow.Clone()
	if describer == nil {
		return out
	}
	for i := range out.Nodes {
		n := &out.Nodes[i]
		desc, ok := describer.Describe(n.Type)
		if !ok {
			continue
		}
		if desc.Trigger {
			n.Trigger = true
		}
		if n.InputMode == "" {
			n.InputMode = desc.InputMode
		}
	}
	return out
}

// Validate checks structural invariants of a workflow graph.
func Validate(workflow *domain.WorkflowGraph, describer Describer) ValidationResult {
	v := &validator{}
	if workflow == nil {
		v.add("", "workflow", "workflow is nil")
		return ValidationResult{Issues: v.issues}
	}
	if strings.TrimSpace(workflow.ID) == "" {
		v.add("", "id", "workflow id is required")
	}
	if len(workflow.Nodes) == 0 {
		v.add("", "nodes", "workflow has no nodes")
		return ValidationResult{Issues: v.issues}
	}
	if !workflow.Settings.FailurePolicy.Valid() {
		v.add("", "settings.failure_policy", "unknown failure policy %q", workflow.Settings.FailurePolicy)
	}
	if workflow.Settings.MaxLoopIterations < 0 {
		v.add("", "settings.max_loop_iterations", "must not be negative")
	}
	if workflow.Settings.TimeoutSeconds < 0 {
		v.add("", "settings.timeout_seconds", "must not be negative")
	}

	g := New(workflow)
	descriptions := v.checkNodes(workflow, describer)
	v.checkConnections(g, workflow, descriptions)
	v.checkStructure(g, workflow, descriptions)

	return ValidationResult{Valid: len(v.issues) == 0, Issues: v.issues}
}

func (v *validator) checkNodes(workflow *domain.WorkflowGraph, describer Describer) map[string]*domain.NodeDescription {
	descriptions := make(map[string]*domain.NodeDescription, len(workflow.Nodes))
	seen := make(map[string]bool, len(workflow.Nodes))
	triggers := 0

	for _, n := range workflow.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			v.add("", "nodes.id", "node id is required")
			continue
		}
		if seen[n.ID] {
			v.add(n.ID, "id", "duplicate node id")
			continue
		}
		seen[n.ID] = true

		if n.Trigger {
			triggers++
		}
		if n.Type == "" {
			v.add(n.ID, "type", "node type is required")
		} else if describer != nil {
			desc, ok := describer.Describe(n.Type)
			if !ok {
				v.add(n.ID, "type", "unknown node type %q", n.Type)
			} else {
				d := desc
				descriptions[n.ID] = &d
			}
		}
		if !n.InputMode.Valid() {
			v.add(n.ID, "input_mode", "unknown input mode %q", n.InputMode)
		}
		if !n.FailurePolicy.Valid() {
			v.add(n.ID, "failure_policy", "unknown failure policy %q", n.FailurePolicy)
		}
		if n.ErrorOutput != nil && *n.ErrorOutput < 0 {
			v.add(n.ID, "error_output", "must not be negative")
		}
		if n.RetryPolicy != nil {
			if err := n.RetryPolicy.Validate(); err != nil {
				v.add(n.ID, "retry_policy", "%v", err)
			}
		}
	}
	if triggers == 0 {
		v.add("", "nodes", "workflow has no trigger node")
	}
	return descriptions
}

func (v *validator) checkConnections(g *Graph, workflow *domain.WorkflowGraph, descriptions map[string]*domain.NodeDescription) {
	for i, c := range workflow.Connections {
		field := fmt.Sprintf("connections[%d]", i)
		if !g.Has(c.Source) {
			v.add(c.Source, field, "unknown source node %q", c.Source)
			continue
		}
		if !g.Has(c.Target) {
			v.add(c.Target, field, "unknown target node %q", c.Target)
			continue
		}
		if c.SourceOutput < 0 || c.TargetInput < 0 {
			v.add(c.Source, field, "negative connection index")
			continue
		}
		if d := descriptions[c.Source]; d != nil && d.Outputs > 0 && c.SourceOutput >= d.Outputs {
			v.add(c.Source, field, "output %d out of range (node has %d outputs)", c.SourceOutput, d.Outputs)
		}
		if d := descriptions[c.Target]; d != nil && d.Inputs > 0 && c.TargetInput >= d.Inputs {
			v.add(c.Target, field, "input %d out of range (node has %d inputs)", c.TargetInput, d.Inputs)
		}
		if c.Loop {
			if !g.Reaches(c.Target, c.Source) {
				v.add(c.Source, field, "loop connection to %q does not close a cycle", c.Target)
			}
			continue
		}
		if g.IsTrigger(c.Target) {
			v.add(c.Target, field, "trigger node cannot have inbound connections")
		}
	}
}

func (v *validator) checkStructure(g *Graph, workflow *domain.WorkflowGraph, descriptions map[string]*domain.NodeDescription) {
	if _, cyclic := g.TopologicalOrder(); len(cyclic) > 0 {
		v.add(cyclic[0], "connections", "cycle without loop connection involving %s", strings.Join(cyclic, ", "))
	}

	for _, n := range workflow.Nodes {
		if n.ID == "" {
			continue
		}
		d := descriptions[n.ID]
		if n.ErrorOutput != nil && d != nil && d.Outputs > 0 && *n.ErrorOutput >= d.Outputs {
			v.add(n.ID, "error_output", "output %d out of range (node has %d outputs)", *n.ErrorOutput, d.Outputs)
		}
		if n.Trigger {
			continue
		}
		inbound := g.Inbound(n.ID)
		if len(inbound) == 0 {
			v.add(n.ID, "connections", "node has no inbound connection and is not a trigger")
			continue
		}
		if d == nil || d.Inputs <= 1 || g.InputMode(n.ID) != domain.InputModeAll {
			continue
		}
		wired := make(map[int]bool, d.Inputs)
		for _, c := range inbound {
			wired[c.TargetInput] = true
		}
		for idx := 0; idx < d.Inputs; idx++ {
			if !wired[idx] {
				v.add(n.ID, "connections", "required input %d is not connected", idx)
			}
		}
	}
}
