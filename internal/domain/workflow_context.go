package domain

import "context"

type contextKey string

const RuntimeContextKey contextKey = "loom:runtime_context"

// RuntimeContext is handed to node executors alongside their input.
type RuntimeContext struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	NodeType    string
	Mode        ExecutionMode
	Iteration   int
	Attempt     int
	// Inputs holds the incoming items grouped by target input index.
	Inputs map[int][]Item
	Resume *ResumeInfo
}

func WithRuntimeContext(ctx context.Context, rc *RuntimeContext) context.Context {
	return context.WithValue(ctx, RuntimeContextKey, rc)
}

func GetRuntimeContext(ctx context.Context) (*RuntimeContext, bool) {
	rc, ok := ctx.Value(RuntimeContextKey).(*RuntimeContext)
	return rc, ok
}
