package node_registry

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

const (
	TypeManualTrigger = "core.manualTrigger"
	TypeNoOp          = "core.noOp"
	TypeWait          = "core.wait"
	TypeMerge         = "core.merge"
	TypeIf            = "core.if"
)

// RegisterBuiltins installs the core node types.
func RegisterBuiltins(registry ports.NodeRegistryPort, clock ports.Clock) error {
	builtins := []ports.NodeExecutor{
		ManualTrigger{},
		NoOp{},
		&Wait{clock: clock},
		Merge{},
		If{},
	}
	for _, b := range builtins {
		if err := registry.RegisterNode(b); err != nil {
			return err
		}
	}
	return nil
}

type ManualTrigger struct{}

func (ManualTrigger) Type() string { return TypeManualTrigger }

func (ManualTrigger) Describe() domain.NodeDescription {
	return domain.NodeDescription{DisplayName: "Manual Trigger", Inputs: 0, Outputs: 1, Trigger: true}
}

func (ManualTrigger) Execute(_ context.Context, input []domain.Item, _ map[string]interface{}, _ *domain.RuntimeContext) domain.ExecutionResult {
	if len(input) == 0 {
		return domain.Success([]domain.Item{domain.NewItem(nil)})
	}
	return domain.Success(input)
}

type NoOp struct{}

func (NoOp) Type() string { return TypeNoOp }

func (NoOp) Describe() domain.NodeDescription {
	return domain.NodeDescription{DisplayName: "No Operation", Inputs: 1, Outputs: 1}
}

func (NoOp) Execute(_ context.Context, input []domain.Item, _ map[string]interface{}, _ *domain.RuntimeContext) domain.ExecutionResult {
	return domain.Success(input)
}

// Wait suspends the execution until a duration elapses, a timestamp passes,
// or a signal arrives. Parameters: "seconds", "until" (RFC3339), "signal".
type Wait struct {
	clock ports.Clock
}

func (*Wait) Type() string { return TypeWait }

func (*Wait) Describe() domain.NodeDescription {
	return domain.NodeDescription{DisplayName: "Wait", Inputs: 1, Outputs: 1}
}

func (w *Wait) Execute(_ context.Context, input []domain.Item, params map[string]interface{}, rc *domain.RuntimeContext) domain.ExecutionResult {
	if rc != nil && rc.Resume != nil {
		if len(rc.Resume.Payload) > 0 {
			return domain.Success(rc.Resume.Payload)
		}
		return domain.Success(input)
	}

	var cond domain.WaitCondition
	if seconds, ok := Float(params, "seconds"); ok {
		until := w.now().Add(time.Duration(seconds * float64(time.Second)))
		cond.Until = &until
	}
	if raw, ok := params["until"].(string); ok && raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.Failure("parameter", fmt.Sprintf("invalid until %q: %v", raw, err), false)
		}
		cond.Until = &until
	}
	if signal, ok := params["signal"].(string); ok {
		cond.SignalID = signal
	}
	if cond.IsZero() {
		return domain.Failure("parameter", "wait needs seconds, until or signal", false)
	}
	return domain.Waiting(cond)
}

func (w *Wait) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock.Now()
}

// Merge joins two inputs. Parameter "mode": "append" (default) or
// "combineByPosition".
type Merge struct{}

func (Merge) Type() string { return TypeMerge }

func (Merge) Describe() domain.NodeDescription {
	return domain.NodeDescription{DisplayName: "Merge", Inputs: 2, Outputs: 1, InputMode: domain.InputModeAll}
}

func (Merge) Execute(_ context.Context, input []domain.Item, params map[string]interface{}, rc *domain.RuntimeContext) domain.ExecutionResult {
	if rc == nil || len(rc.Inputs) == 0 {
		return domain.Success(input)
	}
	first, second := rc.Inputs[0], rc.Inputs[1]

	mode, _ := params["mode"].(string)
	switch mode {
	case "", "append":
		out := make([]domain.Item, 0, len(first)+len(second))
		out = append(out, first...)
		out = append(out, second...)
		return domain.Success(out)
	case "combineByPosition":
		n := len(first)
		if len(second) < n {
			n = len(second)
		}
		out := make([]domain.Item, n)
		for i := 0; i < n; i++ {
			merged := domain.CloneParameters(first[i].JSON)
			if merged == nil {
				merged = map[string]interface{}{}
			}
			for k, v := range second[i].JSON {
				merged[k] = v
			}
			out[i] = domain.NewItem(merged)
		}
		return domain.Success(out)
	default:
		return domain.Failure("parameter", fmt.Sprintf("unknown merge mode %q", mode), false)
	}
}

// If routes items whose "field" equals "value" to output 0 and the rest to
// output 1.
type If struct{}

func (If) Type() string { return TypeIf }

func (If) Describe() domain.NodeDescription {
	return domain.NodeDescription{DisplayName: "If", Inputs: 1, Outputs: 2}
}

func (If) Execute(_ context.Context, input []domain.Item, params map[string]interface{}, _ *domain.RuntimeContext) domain.ExecutionResult {
	field, _ := params["field"].(string)
	if field == "" {
		return domain.Failure("parameter", "if needs a field", false)
	}
	expected := params["value"]

	var matched, rest []domain.Item
	for _, item := range input {
		if looselyEqual(item.JSON[field], expected) {
			matched = append(matched, item)
		} else {
			rest = append(rest, item)
		}
	}
	return domain.Success(matched, rest)
}

// Float reads a numeric parameter regardless of how it was decoded.
func Float(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}

func looselyEqual(a, b interface{}) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v interface{}) (float64, bool) {
	return Float(map[string]interface{}{"v": v}, "v")
}
