package domain

// InputMode decides how many inbound sources must settle before a node is ready.
type InputMode string

const (
	InputModeAll InputMode = "all"
	InputModeAny InputMode = "any"
)

func (m InputMode) Valid() bool {
	return m == "" || m == InputModeAll || m == InputModeAny
}

type FailurePolicy string

const (
	FailurePolicyStopWorkflow   FailurePolicy = "stopWorkflow"
	FailurePolicyContinueOnFail FailurePolicy = "continueOnFail"
)

func (p FailurePolicy) Valid() bool {
	return p == "" || p == FailurePolicyStopWorkflow || p == FailurePolicyContinueOnFail
}

type Node struct {
	ID            string                 `json:"id" yaml:"id"`
	Type          string                 `json:"type" yaml:"type"`
	Parameters    map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Position      []float64              `json:"position,omitempty" yaml:"position,omitempty"`
	Trigger       bool                   `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	InputMode     InputMode              `json:"input_mode,omitempty" yaml:"input_mode,omitempty"`
	FailurePolicy FailurePolicy          `json:"failure_policy,omitempty" yaml:"failure_policy,omitempty"`
	ErrorOutput   *int                   `json:"error_output,omitempty" yaml:"error_output,omitempty"`
	RetryPolicy   *RetryPolicy           `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty"`
}

type Connection struct {
	Source       string `json:"source" yaml:"source"`
	SourceOutput int    `json:"source_output" yaml:"source_output"`
	Target       string `json:"target" yaml:"target"`
	TargetInput  int    `json:"target_input" yaml:"target_input"`
	Loop         bool   `json:"loop,omitempty" yaml:"loop,omitempty"`
}

type WorkflowSettings struct {
	FailurePolicy     FailurePolicy `json:"failure_policy,omitempty" yaml:"failure_policy,omitempty"`
	MaxLoopIterations int           `json:"max_loop_iterations,omitempty" yaml:"max_loop_iterations,omitempty"`
	TimeoutSeconds    int           `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// WorkflowGraph is a stored workflow definition. Node and connection order is
// significant: it breaks ties in scheduling and input concatenation.
type WorkflowGraph struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes       []Node           `json:"nodes" yaml:"nodes"`
	Connections []Connection     `json:"connections" yaml:"connections"`
	Settings    WorkflowSettings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

func (w *WorkflowGraph) Node(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

func (w *WorkflowGraph) TriggerNodes() []string {
	var ids []string
	for _, n := range w.Nodes {
		if n.Trigger {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Clone returns a deep copy detached from the receiver.
func (w *WorkflowGraph) Clone() *WorkflowGraph {
	if w == nil {
		return nil
	}
	out := &WorkflowGraph{
		ID:          w.ID,
		Name:        w.Name,
		Nodes:       make([]Node, len(w.Nodes)),
		Connections: append([]Connection(nil), w.Connections...),
		Settings:    w.Settings,
	}
	for i, n := range w.Nodes {
		cp := n
		cp.Parameters = CloneParameters(n.Parameters)
		cp.Position = append([]float64(nil), n.Position...)
		if n.ErrorOutput != nil {
			idx := *n.ErrorOutput
			cp.ErrorOutput = &idx
		}
		if n.RetryPolicy != nil {
			rp := n.RetryPolicy.Clone()
			cp.RetryPolicy = &rp
		}
		out.Nodes[i] = cp
	}
	return out
}

// NodeDescription is the static metadata a node type may publish.
type NodeDescription struct {
	Type        string       `json:"type"`
	DisplayName string       `json:"display_name,omitempty"`
	Inputs      int          `json:"inputs"`
	Outputs     int          `json:"outputs"`
	InputMode   InputMode    `json:"input_mode,omitempty"`
	Trigger     bool         `json:"trigger,omitempty"`
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
}

func CloneParameters(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CloneParameters(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}
