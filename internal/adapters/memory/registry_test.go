package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/domain"
)

func newRegistry() *WorkflowRegistry {
	return NewWorkflowRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sample(id string) *domain.WorkflowGraph {
	return &domain.WorkflowGraph{
		ID: id,
		Nodes: []domain.Node{
			{ID: "t", Type: "core.manualTrigger", Trigger: true},
			{ID: "a", Type: "core.noOp", Parameters: map[string]interface{}{"k": "v"}},
		},
		Connections: []domain.Connection{{Source: "t", Target: "a"}},
	}
}

func TestWorkflowRegistry(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(t *testing.T, r *WorkflowRegistry)
	}{
		{
			name: "put and get",
			run: func(t *testing.T, r *WorkflowRegistry) {
				require.NoError(t, r.Put(ctx, sample("wf")))
				got, err := r.Get(ctx, "wf")
				require.NoError(t, err)
				assert.Equal(t, sample("wf"), got)
			},
		},
		{
			name: "stored copy is detached",
			run: func(t *testing.T, r *WorkflowRegistry) {
				wf := sample("wf")
				require.NoError(t, r.Put(ctx, wf))
				wf.Nodes[1].Parameters["k"] = "changed"

				got, err := r.Get(ctx, "wf")
				require.NoError(t, err)
				assert.Equal(t, "v", got.Nodes[1].Parameters["k"])

				got.Nodes[1].Type = "mutated"
				again, _ := r.Get(ctx, "wf")
				assert.Equal(t, "core.noOp", again.Nodes[1].Type)
			},
		},
		{
			name: "missing workflow",
			run: func(t *testing.T, r *WorkflowRegistry) {
				_, err := r.Get(ctx, "nope")
				assert.True(t, domain.IsNotFound(err))
				assert.True(t, domain.IsNotFound(r.Delete(ctx, "nope")))
			},
		},
		{
			name: "rejects invalid input",
			run: func(t *testing.T, r *WorkflowRegistry) {
				assert.ErrorIs(t, r.Put(ctx, nil), domain.ErrInvalidInput)
				assert.ErrorIs(t, r.Put(ctx, &domain.WorkflowGraph{}), domain.ErrInvalidInput)
				_, err := r.Get(ctx, "")
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			},
		},
		{
			name: "list sorted and delete",
			run: func(t *testing.T, r *WorkflowRegistry) {
				require.NoError(t, r.Put(ctx, sample("b")))
				require.NoError(t, r.Put(ctx, sample("a")))
				ids, err := r.List(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"a", "b"}, ids)

				require.NoError(t, r.Delete(ctx, "a"))
				ids, _ = r.List(ctx)
				assert.Equal(t, []string{"b"}, ids)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, newRegistry())
		})
	}
}

func TestWorkflowRegistryConcurrentAccess(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("wf-%d", i%5)
			_ = r.Put(ctx, sample(id))
			_, _ = r.Get(ctx, id)
			_, _ = r.List(ctx)
		}(i)
	}
	wg.Wait()

	ids, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
}
