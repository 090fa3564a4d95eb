package training

import (
	"fmt"
	"math/rand"

	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/environment"
)

// State is the compact view a tabular learner sees: the sign of the goal
// offset on each axis and which of the four neighbours are blocked.
type State struct {
	DRow    int8
	DCol    int8
	Blocked uint8 // bit i set when moves[i] is blocked
}

func (s State) String() string {
	return fmt.Sprintf("d=(%d,%d) blocked=%04b", s.DRow, s.DCol, s.Blocked)
}

var moves = [4]core.Action{core.Up, core.Down, core.Left, core.Right}

// SingleAgentEnv drives one agent of a GridWorld. The others pick uniform
// random actions from the world's seeded source.
type SingleAgentEnv struct {
	world *environment.GridWorld
	id    string
	rng   *rand.Rand
}

func NewSingleAgentEnv(world *environment.GridWorld) *SingleAgentEnv {
	return &SingleAgentEnv{
		world: world,
		id:    world.AgentIDs()[0],
		rng:   world.Rand(),
	}
}

// AgentID is the controlled agent
func (e *SingleAgentEnv) AgentID() string {
	return e.id
}

func (e *SingleAgentEnv) World() *environment.GridWorld {
	return e.world
}

func (e *SingleAgentEnv) Reset() (State, error) {
	if _, err := e.world.Reset(); err != nil {
		return State{}, err
	}
	return e.State(), nil
}

// Step applies a for the controlled agent and returns its next state, its
// reward, whether the episode ended and whether it reached the goal itself
func (e *SingleAgentEnv) Step(a core.Action) (State, float64, bool, bool, error) {
	actions := make(map[string]core.Action, len(e.world.AgentIDs()))
	for _, id := range e.world.AgentIDs() {
		if id == e.id {
			actions[id] = a
			continue
		}
		actions[id] = core.Action(e.rng.Intn(core.NumActions))
	}
	res, err := e.world.Step(actions)
	if err != nil {
		return State{}, 0, false, false, err
	}
	reached := false
	for _, id := range res.Info.Reached {
		if id == e.id {
			reached = true
		}
	}
	return e.State(), res.Rewards[e.id], res.Done, reached, nil
}

// State encodes the controlled agent's current situation
func (e *SingleAgentEnv) State() State {
	pos, _ := e.world.Position(e.id)
	goal := e.world.Goal()
	grid := e.world.Grid()

	occupied := make(map[core.Position]bool)
	for _, id := range e.world.AgentIDs() {
		if id == e.id {
			continue
		}
		p, _ := e.world.Position(id)
		occupied[p] = true
	}

	s := State{
		DRow: sign(goal.Row - pos.Row),
		DCol: sign(goal.Col - pos.Col),
	}
	for i, a := range moves {
		next := pos.Move(a)
		if grid.Blocked(next) || occupied[next] {
			s.Blocked |= 1 << i
		}
	}
	return s
}

func sign(n int) int8 {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
