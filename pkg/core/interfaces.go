package core

import (
	"context"
)

// SubgoalSource maps an environment summary to per-agent target cells.
// It may return fewer assignments than agents, or none.
type SubgoalSource interface {
	Plan(ctx context.Context, summary string) ([]Subgoal, error)
}

// Renderer turns a snapshot into a frame. It never mutates simulation state.
type Renderer interface {
	Render(s Snapshot) error
}
