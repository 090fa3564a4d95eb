package environment

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/core"
)

const (
	// StepPenalty is paid by every agent on every tick
	StepPenalty = -0.01
	// GoalBonus is added for the agent standing on the goal after a tick
	GoalBonus = 10.0
	// ViewSize is the side of the square local window in observations
	ViewSize = 5
)

var (
	ErrInvalidConfig   = errors.New("invalid environment config")
	ErrPlacementFailed = errors.New("placement retry budget exhausted")
	ErrInvalidAction   = errors.New("invalid action")
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrEpisodeDone     = errors.New("episode is over; call Reset")
	ErrNotReset        = errors.New("environment has not been reset")
)

// StepInfo carries per-tick diagnostics for the driver
type StepInfo struct {
	Step       int
	Collisions []core.Position // cells claimed by more than one agent
	Reached    []string        // agents standing on the goal
	TimedOut   bool
}

type StepResult struct {
	Observations map[string][]float64
	Rewards      map[string]float64
	Done         bool
	Info         StepInfo
}

// GridWorld is a multi-agent grid with simultaneous moves and a shared goal
type GridWorld struct {
	cfg       config.EnvConfig
	rng       *rand.Rand
	agentIDs  []string
	grid      core.Grid
	goal      core.Position
	positions map[string]core.Position
	steps     int
	done      bool
	ready     bool
}

type GridOption func(*GridWorld)

// WithRand replaces the seeded random source built from the config
func WithRand(r *rand.Rand) GridOption {
	return func(g *GridWorld) {
		g.rng = r
	}
}

// NewGridWorld validates cfg and builds an environment. Call Reset before Step.
func NewGridWorld(cfg config.EnvConfig, opts ...GridOption) (*GridWorld, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	g := &GridWorld{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		agentIDs:  make([]string, cfg.Agents),
		positions: make(map[string]core.Position, cfg.Agents),
	}
	for i := range g.agentIDs {
		g.agentIDs[i] = fmt.Sprintf("agent_%d", i)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Reset draws a new grid, goal and agent placement and returns the first observations
func (g *GridWorld) Reset() (map[string][]float64, error) {
	g.ready = false
	g.steps = 0
	g.done = false
	g.grid = core.NewGrid(g.cfg.Height, g.cfg.Width)
	for r := 0; r < g.cfg.Height; r++ {
		for c := 0; c < g.cfg.Width; c++ {
			if g.rng.Float64() < g.cfg.ObstacleProb {
				g.grid.Set(core.Position{Row: r, Col: c}, core.Obstacle)
			}
		}
	}

	goal, err := g.sample(func(p core.Position) bool {
		return g.grid.At(p) == core.Free
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place goal: %w", err)
	}
	g.goal = goal
	g.grid.Set(goal, core.Goal)

	g.positions = make(map[string]core.Position, len(g.agentIDs))
	occupied := make(map[core.Position]bool, len(g.agentIDs))
	for _, id := range g.agentIDs {
		pos, err := g.sample(func(p core.Position) bool {
			return g.grid.At(p) == core.Free && !occupied[p]
		})
		if err != nil {
			return nil, fmt.Errorf("failed to place %s: %w", id, err)
		}
		g.positions[id] = pos
		occupied[pos] = true
	}

	g.ready = true
	return g.observations(), nil
}

// sample draws uniform cells until ok accepts one or the retry budget runs out
func (g *GridWorld) sample(ok func(core.Position) bool) (core.Position, error) {
	for i := 0; i < g.cfg.MaxPlacementRetries; i++ {
		p := core.Position{Row: g.rng.Intn(g.cfg.Height), Col: g.rng.Intn(g.cfg.Width)}
		if ok(p) {
			return p, nil
		}
	}
	return core.Position{}, fmt.Errorf("%w after %d draws on a %dx%d grid", ErrPlacementFailed,
		g.cfg.MaxPlacementRetries, g.cfg.Height, g.cfg.Width)
}

// Step advances every agent simultaneously. Agents missing from actions stay.
func (g *GridWorld) Step(actions map[string]core.Action) (StepResult, error) {
	if !g.ready {
		return StepResult{}, ErrNotReset
	}
	if g.done {
		return StepResult{}, ErrEpisodeDone
	}
	for id, a := range actions {
		if _, ok := g.positions[id]; !ok {
			return StepResult{}, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
		}
		if !a.Valid() {
			return StepResult{}, fmt.Errorf("%w: code %d for %s", ErrInvalidAction, int(a), id)
		}
	}

	// candidates only ever read the pre-step positions
	candidates := make(map[string]core.Position, len(g.agentIDs))
	for _, id := range g.agentIDs {
		cur := g.positions[id]
		next := cur.Move(actions[id])
		if g.grid.Blocked(next) {
			next = cur
		}
		candidates[id] = next
	}

	// A reverted agent reclaims its own cell, which can contest a cell another
	// agent was about to enter, so resolve until no cell has two claimants.
	var collisions []core.Position
	contested := make(map[core.Position]bool)
	for {
		claims := make(map[core.Position][]string, len(g.agentIDs))
		for _, id := range g.agentIDs {
			claims[candidates[id]] = append(claims[candidates[id]], id)
		}
		reverted := false
		for cell, ids := range claims {
			if len(ids) < 2 {
				continue
			}
			if !contested[cell] {
				contested[cell] = true
				collisions = append(collisions, cell)
			}
			for _, id := range ids {
				if candidates[id] != g.positions[id] {
					candidates[id] = g.positions[id]
					reverted = true
				}
			}
		}
		if !reverted {
			break
		}
	}
	sort.Slice(collisions, func(i, j int) bool {
		if collisions[i].Row != collisions[j].Row {
			return collisions[i].Row < collisions[j].Row
		}
		return collisions[i].Col < collisions[j].Col
	})
	g.positions = candidates
	g.steps++

	rewards := make(map[string]float64, len(g.agentIDs))
	info := StepInfo{Step: g.steps, Collisions: collisions}
	for _, id := range g.agentIDs {
		rewards[id] = StepPenalty
		if g.positions[id] == g.goal {
			rewards[id] += GoalBonus
			info.Reached = append(info.Reached, id)
		}
	}
	if len(info.Reached) > 0 {
		g.done = true
	}
	if g.steps >= g.cfg.MaxSteps {
		g.done = true
		info.TimedOut = len(info.Reached) == 0
	}

	return StepResult{
		Observations: g.observations(),
		Rewards:      rewards,
		Done:         g.done,
		Info:         info,
	}, nil
}

// ObservationSize is the length of every observation vector
func (g *GridWorld) ObservationSize() int {
	return ViewSize*ViewSize + 2 + 2 + 2*(len(g.agentIDs)-1)
}

func (g *GridWorld) observations() map[string][]float64 {
	obs := make(map[string][]float64, len(g.agentIDs))
	for _, id := range g.agentIDs {
		obs[id] = g.observe(id)
	}
	return obs
}

// observe builds [local window, own coords, goal coords, others' coords]
func (g *GridWorld) observe(id string) []float64 {
	own := g.positions[id]
	vec := make([]float64, 0, g.ObservationSize())
	half := ViewSize / 2
	for dr := -half; dr <= half; dr++ {
		for dc := -half; dc <= half; dc++ {
			// At pads out-of-grid cells with the obstacle code
			vec = append(vec, float64(g.grid.At(core.Position{Row: own.Row + dr, Col: own.Col + dc})))
		}
	}
	vec = append(vec, float64(own.Row), float64(own.Col))
	vec = append(vec, float64(g.goal.Row), float64(g.goal.Col))
	for _, other := range g.agentIDs {
		if other == id {
			continue
		}
		p := g.positions[other]
		vec = append(vec, float64(p.Row), float64(p.Col))
	}
	return vec
}

// Snapshot returns a deep copy of the current state
func (g *GridWorld) Snapshot() core.Snapshot {
	agents := make(map[string]core.Position, len(g.positions))
	for id, p := range g.positions {
		agents[id] = p
	}
	return core.Snapshot{
		Grid:     g.grid.Clone(),
		Goal:     g.goal,
		AgentIDs: g.AgentIDs(),
		Agents:   agents,
		Step:     g.steps,
		MaxSteps: g.cfg.MaxSteps,
	}
}

// Grid returns the current grid. Callers must not modify it.
func (g *GridWorld) Grid() core.Grid {
	return g.grid
}

func (g *GridWorld) Goal() core.Position {
	return g.goal
}

// Position returns where id currently stands
func (g *GridWorld) Position(id string) (core.Position, bool) {
	p, ok := g.positions[id]
	return p, ok
}

// AgentIDs returns a copy of the stable agent order
func (g *GridWorld) AgentIDs() []string {
	ids := make([]string, len(g.agentIDs))
	copy(ids, g.agentIDs)
	return ids
}

func (g *GridWorld) Steps() int    { return g.steps }
func (g *GridWorld) MaxSteps() int { return g.cfg.MaxSteps }
func (g *GridWorld) Done() bool    { return g.done }

// Rand exposes the environment's random source to collaborators that must
// stay on the same seed, such as the training harness
func (g *GridWorld) Rand() *rand.Rand {
	return g.rng
}

// Place starts a new episode on a fixed layout instead of a random one
func (g *GridWorld) Place(grid core.Grid, goal core.Position, agents map[string]core.Position) error {
	if grid.Height() != g.cfg.Height || grid.Width() != g.cfg.Width {
		return fmt.Errorf("%w: grid is %dx%d, want %dx%d", ErrInvalidConfig,
			grid.Height(), grid.Width(), g.cfg.Height, g.cfg.Width)
	}
	if !grid.InBounds(goal) || grid.Blocked(goal) {
		return fmt.Errorf("%w: goal %v is not a free cell", ErrInvalidConfig, goal)
	}
	// the layout may already mark goal, but no other cell
	if n := grid.Count(core.Goal); n > 1 || (n == 1 && grid.At(goal) != core.Goal) {
		return fmt.Errorf("%w: grid marks a goal cell other than %v", ErrInvalidConfig, goal)
	}
	seen := make(map[core.Position]string, len(agents))
	for _, id := range g.agentIDs {
		p, ok := agents[id]
		if !ok {
			return fmt.Errorf("%w: no position for %s", ErrInvalidConfig, id)
		}
		if !grid.InBounds(p) || grid.At(p) != core.Free || p == goal {
			return fmt.Errorf("%w: %s at %v is not a free cell", ErrInvalidConfig, id, p)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("%w: %s and %s share %v", ErrInvalidConfig, id, other, p)
		}
		seen[p] = id
	}
	g.grid = grid.Clone()
	g.goal = goal
	g.grid.Set(goal, core.Goal)
	g.positions = make(map[string]core.Position, len(agents))
	for _, id := range g.agentIDs {
		g.positions[id] = agents[id]
	}
	g.steps = 0
	g.done = false
	g.ready = true
	return nil
}
