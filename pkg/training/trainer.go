package training

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/environment"
)

const (
	logEvery = 100
	// evaluation worlds draw layouts training never saw
	evalSeedOffset = 1_000_003
)

type EpisodeResult struct {
	Episode int
	Steps   int
	Reward  float64
	Reached bool
	Epsilon float64
}

// Report is the outcome of a training run
type Report struct {
	Episodes []EpisodeResult
	Learner  *QLearner
}

// SuccessRate is the share of the last n episodes where the agent reached the
// goal itself; n <= 0 means all episodes
func (r *Report) SuccessRate(n int) float64 {
	eps := r.Episodes
	if n > 0 && n < len(eps) {
		eps = eps[len(eps)-n:]
	}
	if len(eps) == 0 {
		return 0
	}
	hits := 0
	for _, ep := range eps {
		if ep.Reached {
			hits++
		}
	}
	return float64(hits) / float64(len(eps))
}

// Train runs cfg.Training.Episodes of Q-learning for agent_0 on a fresh
// GridWorld built from cfg.Environment. On cancellation it returns the
// episodes finished so far together with ctx.Err().
func Train(ctx context.Context, cfg *config.Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	world, err := environment.NewGridWorld(cfg.Environment)
	if err != nil {
		return nil, err
	}
	env := NewSingleAgentEnv(world)
	report := &Report{Learner: NewQLearner(cfg.Training, world.Rand())}

	for ep := 1; ep <= cfg.Training.Episodes; ep++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := runEpisode(env, report.Learner, true)
		if err != nil {
			return report, fmt.Errorf("episode %d failed: %w", ep, err)
		}
		res.Episode = ep
		res.Epsilon = report.Learner.Epsilon()
		report.Episodes = append(report.Episodes, res)
		report.Learner.DecayEpsilon()

		if ep%logEvery == 0 {
			log.Printf("Episode %d: success rate (last %d) %.2f, epsilon %.3f, states %d",
				ep, logEvery, report.SuccessRate(logEvery), res.Epsilon, report.Learner.States())
		}
	}
	return report, nil
}

// NewEvaluationEnv builds a world like cfg on a seed offset from the training one
func NewEvaluationEnv(cfg config.EnvConfig) (*SingleAgentEnv, error) {
	cfg.Seed += evalSeedOffset
	world, err := environment.NewGridWorld(cfg)
	if err != nil {
		return nil, err
	}
	return NewSingleAgentEnv(world), nil
}

// Evaluate plays greedy episodes without updating the table and returns the
// share that reached the goal
func Evaluate(ctx context.Context, env *SingleAgentEnv, learner *QLearner, episodes int) (float64, error) {
	if episodes <= 0 {
		return 0, nil
	}
	hits := 0
	for i := 0; i < episodes; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := runEpisode(env, learner, false)
		if err != nil {
			return 0, err
		}
		if res.Reached {
			hits++
		}
	}
	return float64(hits) / float64(episodes), nil
}

func runEpisode(env *SingleAgentEnv, learner *QLearner, learn bool) (EpisodeResult, error) {
	var res EpisodeResult
	s, err := env.Reset()
	if err != nil {
		return res, err
	}
	for {
		a := learner.Greedy(s)
		if learn {
			a = learner.Act(s)
		}
		next, reward, done, reached, err := env.Step(a)
		if err != nil {
			return res, err
		}
		if learn {
			learner.Update(s, a, reward, next, done)
		}
		res.Steps++
		res.Reward += reward
		s = next
		if done {
			res.Reached = reached
			return res, nil
		}
	}
}

// WriteChart renders episode reward and a moving success rate to an HTML page
func (r *Report) WriteChart(path string, window int) error {
	if len(r.Episodes) == 0 {
		return fmt.Errorf("no episodes to chart")
	}
	if window < 1 {
		window = 1
	}
	x := make([]int, len(r.Episodes))
	rewards := make([]opts.LineData, len(r.Episodes))
	success := make([]opts.LineData, len(r.Episodes))
	hits := 0
	for i, ep := range r.Episodes {
		x[i] = ep.Episode
		rewards[i] = opts.LineData{Value: ep.Reward}
		if ep.Reached {
			hits++
		}
		if i >= window && r.Episodes[i-window].Reached {
			hits--
		}
		n := min(i+1, window)
		success[i] = opts.LineData{Value: float64(hits) / float64(n)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Q-learning",
			Subtitle: fmt.Sprintf("%d episodes, success window %d", len(r.Episodes), window),
		}),
	)
	line.SetXAxis(x).
		AddSeries("reward", rewards).
		AddSeries("success rate", success)

	page := components.NewPage()
	page.AddCharts(line)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
