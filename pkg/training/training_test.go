package training

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/environment"
)

func trainingConfig() *config.Config {
	cfg := config.Default()
	cfg.Environment.Height = 5
	cfg.Environment.Width = 5
	cfg.Environment.Agents = 1
	cfg.Environment.ObstacleProb = 0
	cfg.Environment.MaxSteps = 50
	cfg.Training.Episodes = 200
	return cfg
}

func TestQLearnerUpdate(t *testing.T) {
	l := NewQLearner(config.TrainingConfig{Alpha: 0.5, Gamma: 0.9}, rand.New(rand.NewSource(1)))
	s1 := State{DRow: 1}
	s2 := State{DCol: -1, Blocked: 1}

	assert.Equal(t, core.Stay, l.Greedy(s1))

	l.Update(s1, core.Right, 1, s2, false)
	assert.InDelta(t, 0.5, l.Value(s1, core.Right), 1e-9)

	l.Update(s2, core.Up, 2, s1, true)
	assert.InDelta(t, 1.0, l.Value(s2, core.Up), 1e-9)

	l.Update(s1, core.Right, 1, s2, false)
	assert.InDelta(t, 1.2, l.Value(s1, core.Right), 1e-9)
	assert.Equal(t, core.Right, l.Greedy(s1))
	assert.Equal(t, 2, l.States())
}

func TestQLearnerEpsilon(t *testing.T) {
	l := NewQLearner(config.TrainingConfig{Epsilon: 0.5, EpsilonMin: 0.2, EpsilonDecay: 0.5}, rand.New(rand.NewSource(1)))

	l.DecayEpsilon()
	assert.InDelta(t, 0.25, l.Epsilon(), 1e-9)
	l.DecayEpsilon()
	assert.InDelta(t, 0.2, l.Epsilon(), 1e-9)

	greedy := NewQLearner(config.TrainingConfig{Alpha: 1}, rand.New(rand.NewSource(1)))
	s := State{DRow: -1}
	greedy.Update(s, core.Up, 1, s, true)
	for i := 0; i < 20; i++ {
		assert.Equal(t, core.Up, greedy.Act(s))
	}
}

func TestStateEncoding(t *testing.T) {
	cfg := config.Default().Environment
	cfg.Height, cfg.Width, cfg.Agents = 3, 3, 2
	world, err := environment.NewGridWorld(cfg)
	require.NoError(t, err)
	grid, err := core.ParseGrid(
		"...",
		".#.",
		"...",
	)
	require.NoError(t, err)
	require.NoError(t, world.Place(grid, core.Position{Row: 2, Col: 2}, map[string]core.Position{
		"agent_0": {Row: 0, Col: 1},
		"agent_1": {Row: 0, Col: 2},
	}))

	env := NewSingleAgentEnv(world)
	assert.Equal(t, "agent_0", env.AgentID())
	// up is off-grid, down is an obstacle, right is agent_1
	assert.Equal(t, State{DRow: 1, DCol: 1, Blocked: 0b1011}, env.State())
}

func TestSingleAgentEnvStep(t *testing.T) {
	cfg := config.Default().Environment
	cfg.Height, cfg.Width, cfg.Agents = 1, 3, 1
	world, err := environment.NewGridWorld(cfg)
	require.NoError(t, err)
	grid, err := core.ParseGrid("...")
	require.NoError(t, err)
	require.NoError(t, world.Place(grid, core.Position{Row: 0, Col: 2}, map[string]core.Position{
		"agent_0": {Row: 0, Col: 0},
	}))
	env := NewSingleAgentEnv(world)

	s, reward, done, reached, err := env.Step(core.Right)
	require.NoError(t, err)
	assert.Equal(t, State{DCol: 1, Blocked: 0b0011}, s)
	assert.InDelta(t, environment.StepPenalty, reward, 1e-9)
	assert.False(t, done)
	assert.False(t, reached)

	_, reward, done, reached, err = env.Step(core.Right)
	require.NoError(t, err)
	assert.InDelta(t, environment.StepPenalty+environment.GoalBonus, reward, 1e-9)
	assert.True(t, done)
	assert.True(t, reached)

	_, _, _, _, err = env.Step(core.Right)
	assert.ErrorIs(t, err, environment.ErrEpisodeDone)
}

func TestTrain(t *testing.T) {
	cfg := trainingConfig()

	report, err := Train(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, report.Episodes, cfg.Training.Episodes)
	for i, ep := range report.Episodes {
		assert.Equal(t, i+1, ep.Episode)
		assert.LessOrEqual(t, ep.Steps, cfg.Environment.MaxSteps)
	}
	assert.Positive(t, report.SuccessRate(0))
	assert.Positive(t, report.Learner.States())
	assert.Less(t, report.Learner.Epsilon(), cfg.Training.Epsilon)

	again, err := Train(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, report.Episodes, again.Episodes)

	evalEnv, err := NewEvaluationEnv(cfg.Environment)
	require.NoError(t, err)
	rate, err := Evaluate(context.Background(), evalEnv, report.Learner, 20)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 1.0)

	path := filepath.Join(t.TempDir(), "training.html")
	require.NoError(t, report.WriteChart(path, 20))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Train(ctx, trainingConfig())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Episodes)
}

func TestSuccessRateWindow(t *testing.T) {
	r := &Report{Episodes: []EpisodeResult{
		{Reached: true}, {Reached: false}, {Reached: true}, {Reached: true},
	}}

	assert.InDelta(t, 0.75, r.SuccessRate(0), 1e-9)
	assert.InDelta(t, 1.0, r.SuccessRate(2), 1e-9)
	assert.InDelta(t, 0.0, (&Report{}).SuccessRate(5), 1e-9)
	assert.Error(t, (&Report{}).WriteChart(filepath.Join(t.TempDir(), "x.html"), 5))
}

func TestEvaluationEnvUsesOtherLayouts(t *testing.T) {
	cfg := config.Default().Environment

	train, err := environment.NewGridWorld(cfg)
	require.NoError(t, err)
	_, err = train.Reset()
	require.NoError(t, err)

	eval, err := NewEvaluationEnv(cfg)
	require.NoError(t, err)
	_, err = eval.Reset()
	require.NoError(t, err)

	assert.NotEqual(t, train.Snapshot(), eval.World().Snapshot())

	again, err := NewEvaluationEnv(cfg)
	require.NoError(t, err)
	_, err = again.Reset()
	require.NoError(t, err)
	assert.Equal(t, eval.World().Snapshot(), again.World().Snapshot())
}
