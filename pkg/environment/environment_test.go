package environment

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/core"
)

func testConfig(agents int) config.EnvConfig {
	cfg := config.Default().Environment
	cfg.Agents = agents
	return cfg
}

// openWorld builds a world on a fixed obstacle-free layout
func openWorld(t *testing.T, h, w int, goal core.Position, agents ...core.Position) *GridWorld {
	t.Helper()
	cfg := testConfig(len(agents))
	cfg.Height, cfg.Width = h, w
	env, err := NewGridWorld(cfg)
	require.NoError(t, err)
	placed := make(map[string]core.Position, len(agents))
	for i, id := range env.AgentIDs() {
		placed[id] = agents[i]
	}
	require.NoError(t, env.Place(core.NewGrid(h, w), goal, placed))
	return env
}

func pos(r, c int) core.Position { return core.Position{Row: r, Col: c} }

func TestNewGridWorldRejectsBadConfig(t *testing.T) {
	cfg := testConfig(2)
	cfg.Height = 0

	_, err := NewGridWorld(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResetPlacement(t *testing.T) {
	env, err := NewGridWorld(testConfig(4))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		obs, err := env.Reset()
		require.NoError(t, err)

		grid := env.Grid()
		assert.Equal(t, 1, grid.Count(core.Goal))
		assert.Equal(t, core.Goal, grid.At(env.Goal()))
		assert.Equal(t, 0, env.Steps())
		assert.False(t, env.Done())

		seen := map[core.Position]bool{}
		for _, id := range env.AgentIDs() {
			p, ok := env.Position(id)
			require.True(t, ok)
			assert.Equal(t, core.Free, grid.At(p), "%s placed on %v", id, grid.At(p))
			assert.False(t, seen[p], "%s shares %v", id, p)
			seen[p] = true
			assert.Len(t, obs[id], env.ObservationSize())
		}
	}
}

func TestResetIsSeeded(t *testing.T) {
	a, err := NewGridWorld(testConfig(2))
	require.NoError(t, err)
	b, err := NewGridWorld(testConfig(2))
	require.NoError(t, err)

	_, err = a.Reset()
	require.NoError(t, err)
	_, err = b.Reset()
	require.NoError(t, err)

	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestResetPlacementFails(t *testing.T) {
	cfg := testConfig(2)
	cfg.Height, cfg.Width = 1, 2
	cfg.MaxPlacementRetries = 50
	env, err := NewGridWorld(cfg)
	require.NoError(t, err)

	// a 1x2 grid fits the goal and one agent, never two agents
	_, err = env.Reset()
	assert.ErrorIs(t, err, ErrPlacementFailed)
}

func TestStepBeforeReset(t *testing.T) {
	env, err := NewGridWorld(testConfig(1))
	require.NoError(t, err)

	_, err = env.Step(nil)
	assert.ErrorIs(t, err, ErrNotReset)
}

func TestStepValidation(t *testing.T) {
	env := openWorld(t, 5, 5, pos(4, 4), pos(0, 0), pos(0, 2))

	t.Run("out of range action", func(t *testing.T) {
		_, err := env.Step(map[string]core.Action{"agent_0": core.Action(7)})
		assert.ErrorIs(t, err, ErrInvalidAction)
		_, err = env.Step(map[string]core.Action{"agent_0": core.Action(-1)})
		assert.ErrorIs(t, err, ErrInvalidAction)
	})

	t.Run("unknown agent", func(t *testing.T) {
		_, err := env.Step(map[string]core.Action{"agent_9": core.Up})
		assert.ErrorIs(t, err, ErrUnknownAgent)
	})

	t.Run("rejected steps do not advance", func(t *testing.T) {
		assert.Equal(t, 0, env.Steps())
		p, _ := env.Position("agent_0")
		assert.Equal(t, pos(0, 0), p)
	})
}

func TestStepMovement(t *testing.T) {
	env := openWorld(t, 5, 5, pos(4, 4), pos(2, 2))

	res, err := env.Step(map[string]core.Action{"agent_0": core.Up})
	require.NoError(t, err)
	p, _ := env.Position("agent_0")
	assert.Equal(t, pos(1, 2), p)
	assert.InDelta(t, StepPenalty, res.Rewards["agent_0"], 1e-9)
	assert.False(t, res.Done)
	assert.Equal(t, 1, res.Info.Step)

	_, err = env.Step(map[string]core.Action{"agent_0": core.Left})
	require.NoError(t, err)
	p, _ = env.Position("agent_0")
	assert.Equal(t, pos(1, 1), p)

	// a missing agent stays put
	_, err = env.Step(map[string]core.Action{})
	require.NoError(t, err)
	p, _ = env.Position("agent_0")
	assert.Equal(t, pos(1, 1), p)
}

func TestStepBoundsAndObstacles(t *testing.T) {
	cfg := testConfig(1)
	cfg.Height, cfg.Width = 3, 3
	env, err := NewGridWorld(cfg)
	require.NoError(t, err)
	grid, err := core.ParseGrid(
		"...",
		".#.",
		"...",
	)
	require.NoError(t, err)
	require.NoError(t, env.Place(grid, pos(2, 2), map[string]core.Position{"agent_0": pos(0, 1)}))

	_, err = env.Step(map[string]core.Action{"agent_0": core.Up})
	require.NoError(t, err)
	p, _ := env.Position("agent_0")
	assert.Equal(t, pos(0, 1), p, "moving off the grid is a no-op")

	_, err = env.Step(map[string]core.Action{"agent_0": core.Down})
	require.NoError(t, err)
	p, _ = env.Position("agent_0")
	assert.Equal(t, pos(0, 1), p, "moving into an obstacle is a no-op")
}

func TestStepCollision(t *testing.T) {
	t.Run("two agents contest one cell", func(t *testing.T) {
		env := openWorld(t, 5, 5, pos(4, 4), pos(1, 1), pos(1, 3))

		res, err := env.Step(map[string]core.Action{"agent_0": core.Right, "agent_1": core.Left})
		require.NoError(t, err)

		a, _ := env.Position("agent_0")
		b, _ := env.Position("agent_1")
		assert.Equal(t, pos(1, 1), a)
		assert.Equal(t, pos(1, 3), b)
		assert.Equal(t, []core.Position{pos(1, 2)}, res.Info.Collisions)
	})

	t.Run("moving into a stationary agent", func(t *testing.T) {
		env := openWorld(t, 5, 5, pos(4, 4), pos(1, 1), pos(1, 2))

		_, err := env.Step(map[string]core.Action{"agent_0": core.Right, "agent_1": core.Stay})
		require.NoError(t, err)

		a, _ := env.Position("agent_0")
		b, _ := env.Position("agent_1")
		assert.Equal(t, pos(1, 1), a)
		assert.Equal(t, pos(1, 2), b)
	})

	t.Run("reverted agent blocks a follower", func(t *testing.T) {
		// agent_1 and agent_2 collide on (0, 1); agent_0 was following agent_1
		env := openWorld(t, 5, 5, pos(4, 4), pos(1, 0), pos(1, 1), pos(0, 2))

		res, err := env.Step(map[string]core.Action{
			"agent_0": core.Right,
			"agent_1": core.Up,
			"agent_2": core.Left,
		})
		require.NoError(t, err)

		a, _ := env.Position("agent_0")
		b, _ := env.Position("agent_1")
		c, _ := env.Position("agent_2")
		assert.Equal(t, pos(1, 0), a)
		assert.Equal(t, pos(1, 1), b)
		assert.Equal(t, pos(0, 2), c)
		assert.Equal(t, []core.Position{pos(0, 1), pos(1, 1)}, res.Info.Collisions)
	})
}

func TestStepGoalTermination(t *testing.T) {
	env := openWorld(t, 5, 5, pos(0, 1), pos(0, 0), pos(4, 4))

	res, err := env.Step(map[string]core.Action{"agent_0": core.Right})
	require.NoError(t, err)

	assert.True(t, res.Done)
	assert.InDelta(t, StepPenalty+GoalBonus, res.Rewards["agent_0"], 1e-9)
	assert.InDelta(t, StepPenalty, res.Rewards["agent_1"], 1e-9)
	assert.Equal(t, []string{"agent_0"}, res.Info.Reached)
	assert.False(t, res.Info.TimedOut)

	_, err = env.Step(nil)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestStepTimeout(t *testing.T) {
	cfg := testConfig(1)
	cfg.Height, cfg.Width, cfg.MaxSteps = 5, 5, 3
	env, err := NewGridWorld(cfg)
	require.NoError(t, err)
	require.NoError(t, env.Place(core.NewGrid(5, 5), pos(4, 4), map[string]core.Position{"agent_0": pos(0, 0)}))

	for i := 1; i <= 3; i++ {
		res, err := env.Step(map[string]core.Action{"agent_0": core.Stay})
		require.NoError(t, err)
		assert.Equal(t, i == 3, res.Done, "tick %d", i)
		assert.Equal(t, i == 3, res.Info.TimedOut, "tick %d", i)
	}
}

func TestObservation(t *testing.T) {
	env := openWorld(t, 5, 5, pos(4, 4), pos(0, 0), pos(2, 3))
	obs := env.observations()

	vec := obs["agent_0"]
	require.Len(t, vec, 25+2+2+2)
	// window rows -2 and -1 lie above the grid
	for i := 0; i < 10; i++ {
		assert.Equal(t, float64(core.Obstacle), vec[i])
	}
	// the centre is the agent's own (free) cell
	assert.Equal(t, float64(core.Free), vec[12])
	assert.Equal(t, []float64{0, 0, 4, 4, 2, 3}, vec[25:])

	assert.Equal(t, []float64{2, 3, 4, 4, 0, 0}, obs["agent_1"][25:])
}

func TestRandomPlayKeepsAgentsApart(t *testing.T) {
	cfg := testConfig(4)
	cfg.Height, cfg.Width = 6, 6
	cfg.ObstacleProb = 0.2
	cfg.MaxSteps = 60
	env, err := NewGridWorld(cfg)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(99))

	for episode := 0; episode < 40; episode++ {
		_, err := env.Reset()
		require.NoError(t, err)
		for !env.Done() {
			actions := make(map[string]core.Action)
			for _, id := range env.AgentIDs() {
				actions[id] = core.Action(rng.Intn(core.NumActions))
			}
			res, err := env.Step(actions)
			require.NoError(t, err)

			grid := env.Grid()
			seen := map[core.Position]string{}
			reached := false
			for _, id := range env.AgentIDs() {
				p, _ := env.Position(id)
				require.True(t, grid.InBounds(p))
				require.NotEqual(t, core.Obstacle, grid.At(p))
				other, dup := seen[p]
				require.False(t, dup, "%s and %s overlap at %v", id, other, p)
				seen[p] = id
				if p == env.Goal() {
					reached = true
				}
			}
			assert.Equal(t, reached || env.Steps() >= cfg.MaxSteps, res.Done)
		}
	}
}

func TestPlaceKeepsSingleGoal(t *testing.T) {
	cfg := testConfig(1)
	cfg.Height, cfg.Width = 1, 4
	env, err := NewGridWorld(cfg)
	require.NoError(t, err)

	stray, err := core.ParseGrid("G...")
	require.NoError(t, err)
	err = env.Place(stray, pos(0, 3), map[string]core.Position{"agent_0": pos(0, 1)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// the grid may already mark the goal it is placed with
	require.NoError(t, env.Place(stray, pos(0, 0), map[string]core.Position{"agent_0": pos(0, 2)}))
	assert.Equal(t, 1, env.Grid().Count(core.Goal))
	assert.Equal(t, pos(0, 0), env.Goal())

	marked, err := core.ParseGrid("..G.")
	require.NoError(t, err)
	err = env.Place(marked, pos(0, 3), map[string]core.Position{"agent_0": pos(0, 2)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
