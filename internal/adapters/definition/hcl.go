package definition

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/eleven-am/loom/internal/domain"
)

// hclFile is the top-level shape of a .hcl definition. A file may declare
// several workflows:
//
//	workflow "orders" {
//	  node "start" {
//	    type    = "core.manualTrigger"
//	    trigger = true
//	  }
//	  node "pause" {
//	    type       = "core.wait"
//	    parameters = { seconds = 5 }
//	  }
//	  connection {
//	    source = "start"
//	    target = "pause"
//	  }
//	}
type hclFile struct {
	Workflows []*hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	ID          string           `hcl:"id,label"`
	Name        string           `hcl:"name,optional"`
	Settings    *hclSettings     `hcl:"settings,block"`
	Nodes       []*hclNode       `hcl:"node,block"`
	Connections []*hclConnection `hcl:"connection,block"`
}

type hclSettings struct {
	FailurePolicy     string `hcl:"failure_policy,optional"`
	MaxLoopIterations int    `hcl:"max_loop_iterations,optional"`
	TimeoutSeconds    int    `hcl:"timeout_seconds,optional"`
}

type hclNode struct {
	ID            string    `hcl:"id,label"`
	Type          string    `hcl:"type"`
	Parameters    cty.Value `hcl:"parameters,optional"`
	Position      []float64 `hcl:"position,optional"`
	Trigger       bool      `hcl:"trigger,optional"`
	InputMode     string    `hcl:"input_mode,optional"`
	FailurePolicy string    `hcl:"failure_policy,optional"`
	ErrorOutput   *int      `hcl:"error_output,optional"`
	Retry         *hclRetry `hcl:"retry,block"`
}

type hclRetry struct {
	MaxAttempts    int      `hcl:"max_attempts,optional"`
	Backoff        string   `hcl:"backoff,optional"`
	BaseDelay      string   `hcl:"base_delay,optional"`
	MaxDelay       string   `hcl:"max_delay,optional"`
	RetryableKinds []string `hcl:"retryable_kinds,optional"`
}

type hclConnection struct {
	Source       string `hcl:"source"`
	SourceOutput int    `hcl:"source_output,optional"`
	Target       string `hcl:"target"`
	TargetInput  int    `hcl:"target_input,optional"`
	Loop         bool   `hcl:"loop,optional"`
}

func parseHCL(parser *hclparse.Parser, data []byte, filename string) ([]*domain.WorkflowGraph, error) {
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diagnosticsError(diags))
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diagnosticsError(diags))
	}

	out := make([]*domain.WorkflowGraph, 0, len(parsed.Workflows))
	for _, w := range parsed.Workflows {
		doc, err := w.toDocument()
		if err != nil {
			return nil, fmt.Errorf("workflow %s in %s: %w", w.ID, filename, err)
		}
		wf, err := doc.toGraph()
		if err != nil {
			return nil, fmt.Errorf("workflow %s in %s: %w", w.ID, filename, err)
		}
		out = append(out, wf)
	}
	return out, nil
}

func (w *hclWorkflow) toDocument() (document, error) {
	doc := document{ID: w.ID, Name: w.Name}
	if w.Settings != nil {
		doc.Settings = settingsDocument(*w.Settings)
	}
	for _, n := range w.Nodes {
		node := nodeDocument{
			ID:            n.ID,
			Type:          n.Type,
			Position:      n.Position,
			Trigger:       n.Trigger,
			InputMode:     n.InputMode,
			FailurePolicy: n.FailurePolicy,
			ErrorOutput:   n.ErrorOutput,
		}
		if !n.Parameters.IsNull() {
			native, err := ctyToNative(n.Parameters)
			if err != nil {
				return doc, fmt.Errorf("node %s parameters: %w", n.ID, err)
			}
			params, ok := native.(map[string]interface{})
			if !ok {
				return doc, fmt.Errorf("node %s parameters must be an object: %w", n.ID, domain.ErrInvalidInput)
			}
			node.Parameters = params
		}
		if n.Retry != nil {
			r := retryDocument(*n.Retry)
			node.Retry = &r
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, c := range w.Connections {
		doc.Connections = append(doc.Connections, domain.Connection(*c))
	}
	return doc, nil
}

func diagnosticsError(diags hcl.Diagnostics) error {
	return fmt.Errorf("%s: %w", diags.Error(), domain.ErrInvalidInput)
}
