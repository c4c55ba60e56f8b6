package engine

import (
	"github.com/eleven-am/loom/internal/domain"
)

type nodeInput struct {
	items   []domain.Item
	byIndex map[int][]domain.Item
}

func (in nodeInput) hasData() bool {
	return len(in.items) > 0
}

// input gathers a node's input: the trigger payload (or one empty item) for
// the start node, the loop-back items on re-entry, otherwise the current outputs of its inbound
// connections concatenated in declaration order.
func (r *run) input(id string) nodeInput {
	st := r.exec.State(id)

	if r.g.IsTrigger(id) {
		items := domain.CloneItems(r.exec.TriggerPayload)
		if len(items) == 0 {
			items = []domain.Item{domain.NewItem(nil)}
		}
		return nodeInput{items: items, byIndex: map[int][]domain.Item{0: items}}
	}

	if len(st.LoopInput) > 0 {
		items := domain.CloneItems(st.LoopInput)
		return nodeInput{items: items, byIndex: map[int][]domain.Item{0: items}}
	}

	in := nodeInput{byIndex: make(map[int][]domain.Item)}
	for _, conn := range r.g.Inbound(id) {
		out := r.exec.Output(conn.Source, conn.SourceOutput)
		if len(out) == 0 {
			continue
		}
		cloned := domain.CloneItems(out)
		in.items = append(in.items, cloned...)
		in.byIndex[conn.TargetInput] = append(in.byIndex[conn.TargetInput], cloned...)
	}
	return in
}
