package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boristopalov/gridplan/pkg/agent"
	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/environment"
	"github.com/boristopalov/gridplan/pkg/messaging"
	"github.com/boristopalov/gridplan/pkg/planner"
	"github.com/boristopalov/gridplan/pkg/render"
)

const plannerSender = "planner"

type ExperimentStatus struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Episode   int
	Tick      int
	Errors    []error
}

// GridExperiment drives scripted agents through GridWorld episodes, asking a
// subgoal source for targets each planning tick
type GridExperiment struct {
	cfg      *config.Config
	runID    string
	outDir   string
	env      *environment.GridWorld
	source   core.SubgoalSource
	broker   *messaging.SimpleBroker
	agents   []*agent.ScriptedAgent
	recorder *render.Recorder
	extra    []core.Renderer
	logger   *log.Logger
	stats    *statsWriter

	tick    int
	episode *EpisodeStats
	history []EpisodeStats

	mu     sync.RWMutex
	status ExperimentStatus
}

type ExperimentOption func(*GridExperiment)

// WithSubgoalSource sets the planner; the default sends everyone to the goal
func WithSubgoalSource(s core.SubgoalSource) ExperimentOption {
	return func(e *GridExperiment) {
		e.source = s
	}
}

// WithRenderer adds a renderer called after every tick
func WithRenderer(r core.Renderer) ExperimentOption {
	return func(e *GridExperiment) {
		e.extra = append(e.extra, r)
	}
}

func WithRunID(id string) ExperimentOption {
	return func(e *GridExperiment) {
		e.runID = id
	}
}

func NewGridExperiment(cfg *config.Config, env *environment.GridWorld, opts ...ExperimentOption) (*GridExperiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &GridExperiment{
		cfg:    cfg,
		runID:  uuid.New().String(),
		env:    env,
		source: planner.GoalPlanner{},
		broker: messaging.NewBroker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.outDir = filepath.Join(cfg.Output.Dir, e.runID)
	e.logger = log.New(os.Stderr, fmt.Sprintf("[%s %s] ", cfg.Name, shortID(e.runID)), log.LstdFlags)

	if cfg.Output.GIF || cfg.Output.Terminal {
		var term *render.Terminal
		if cfg.Output.Terminal {
			term = render.NewTerminal(os.Stdout, true)
		}
		e.recorder = render.NewRecorder(cfg.Output.Scale, term)
	}
	return e, nil
}

func (e *GridExperiment) RunID() string  { return e.runID }
func (e *GridExperiment) OutDir() string { return e.outDir }

func (e *GridExperiment) GetStatus() ExperimentStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// History returns the stats of finished episodes
func (e *GridExperiment) History() []EpisodeStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EpisodeStats, len(e.history))
	copy(out, e.history)
	return out
}

// Run plays cfg.Run.Episodes episodes and writes the configured outputs.
// Each call starts a fresh history and rewrites the stats file.
func (e *GridExperiment) Run(ctx context.Context) error {
	e.mu.Lock()
	e.status.Running = true
	e.status.StartTime = time.Now()
	e.history = nil
	e.mu.Unlock()

	if e.cfg.Output.Stats {
		stats, err := newStatsWriter(e.outDir, e.runID)
		if err != nil {
			// stats are optional; keep running without them
			e.logger.Printf("Warning: Failed to create stats file: %v", err)
		} else {
			e.stats = stats
		}
	}

	defer func() {
		e.mu.Lock()
		e.status.Running = false
		e.status.EndTime = time.Now()
		e.mu.Unlock()
		e.closeAgents()
		if e.stats != nil {
			if err := e.stats.Close(); err != nil {
				e.logger.Printf("Warning: Failed to close stats file: %v", err)
			}
			e.stats = nil
		}
	}()

	for ep := 1; ep <= e.cfg.Run.Episodes; ep++ {
		if err := e.runEpisode(ctx, ep); err != nil {
			e.recordError(err)
			return fmt.Errorf("episode %d failed: %w", ep, err)
		}
	}

	if e.cfg.Output.Chart {
		path := filepath.Join(e.outDir, "rewards.html")
		if err := writeRewardChart(path, e.cfg.Name, e.history); err != nil {
			e.logger.Printf("Warning: Failed to write reward chart: %v", err)
		} else {
			e.logger.Printf("Saved %s", path)
		}
	}
	return nil
}

func (e *GridExperiment) runEpisode(ctx context.Context, ep int) error {
	if err := e.StartEpisode(ep); err != nil {
		return err
	}

	for e.tick < e.cfg.Run.MaxTicks {
		res, err := e.Tick(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			break
		}
		if err := sleep(ctx, e.cfg.Run.TickInterval); err != nil {
			e.episode.Outcome = OutcomeCancelled
			e.finishEpisode()
			return err
		}
	}
	if e.episode.Outcome == "" {
		e.episode.Outcome = OutcomeTickLimit
	}
	e.finishEpisode()
	return nil
}

// StartEpisode resets the environment and builds one controller per agent
func (e *GridExperiment) StartEpisode(ep int) error {
	if _, err := e.env.Reset(); err != nil {
		return fmt.Errorf("failed to reset environment: %w", err)
	}
	e.closeAgents()
	for _, id := range e.env.AgentIDs() {
		a, err := agent.NewScriptedAgent(e.env,
			agent.WithAgentId(id),
			agent.WithMessageBroker(e.broker),
		)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}
		e.agents = append(e.agents, a)
	}

	e.tick = 0
	e.episode = newEpisodeStats(ep, e.env.AgentIDs())
	if e.recorder != nil {
		e.recorder.Reset()
	}
	e.mu.Lock()
	e.status.Episode = ep
	e.status.Tick = 0
	e.mu.Unlock()

	e.logger.Printf("Starting episode %d: goal at %v", ep, e.env.Goal())
	return e.render()
}

// Tick plans, collects one action per agent and advances the environment once
func (e *GridExperiment) Tick(ctx context.Context) (environment.StepResult, error) {
	if e.episode == nil {
		return environment.StepResult{}, errors.New("no episode started")
	}

	if e.tick%e.cfg.Planner.Every == 0 {
		e.requestSubgoals(ctx)
	}

	goal := e.env.Goal()
	actions := make(map[string]core.Action, len(e.agents))
	for _, a := range e.agents {
		if n, ok := a.ApplySubgoals(); n > 0 && !ok {
			e.episode.UnreachableSubgoals++
		}
		if a.Idle() {
			// fall back to the shared goal
			a.AssignSubgoal(goal)
			e.episode.Fallbacks++
		}
		actions[a.GetID()] = a.Step()
	}

	res, err := e.env.Step(actions)
	if err != nil {
		return res, err
	}
	e.tick++
	e.episode.record(e.tick, res)

	e.mu.Lock()
	e.status.Tick = e.tick
	e.mu.Unlock()

	e.logger.Printf("Tick %d actions: %v rewards: %v", e.tick-1, formatActions(e.env.AgentIDs(), actions), res.Rewards)
	if len(res.Info.Collisions) > 0 {
		e.logger.Printf("Tick %d collisions at %v", e.tick-1, res.Info.Collisions)
	}
	if err := e.render(); err != nil {
		e.logger.Printf("Warning: Failed to render tick %d: %v", e.tick, err)
	}
	return res, nil
}

func (e *GridExperiment) requestSubgoals(ctx context.Context) {
	summary := planner.EncodeSummary(e.env.Snapshot())
	e.episode.PlannerCalls++
	subgoals, err := e.source.Plan(ctx, summary)
	if err != nil {
		e.episode.PlannerFailures++
		e.logger.Printf("planner failed: %v", err)
		return
	}
	for _, sg := range subgoals {
		if err := e.broker.Publish(messaging.SubgoalMessage(plannerSender, sg)); err != nil {
			e.logger.Printf("failed to deliver subgoal %s -> %v: %v", sg.AgentID, sg.Target, err)
		}
	}
}

func (e *GridExperiment) render() error {
	snap := e.env.Snapshot()
	var errs []error
	if e.recorder != nil {
		errs = append(errs, e.recorder.Render(snap))
	}
	for _, r := range e.extra {
		errs = append(errs, r.Render(snap))
	}
	return errors.Join(errs...)
}

func (e *GridExperiment) finishEpisode() {
	for _, a := range e.agents {
		e.episode.SubgoalLog[a.GetID()] = a.GetMemory().Recent(subgoalLogSize)
	}
	stats := *e.episode
	e.mu.Lock()
	e.history = append(e.history, stats)
	e.mu.Unlock()
	e.printEpisodeStats(stats)

	if e.stats != nil {
		if err := e.stats.Write(stats); err != nil {
			e.logger.Printf("Warning: Failed to write to stats file: %v", err)
		}
	}
	if e.cfg.Output.GIF && e.recorder != nil && len(e.recorder.Frames()) > 0 {
		path := filepath.Join(e.outDir, fmt.Sprintf("episode_%03d.gif", stats.Episode))
		if err := render.SaveGIF(path, e.recorder.Frames(), e.cfg.Output.FrameDelay); err != nil {
			e.logger.Printf("Warning: Failed to save %s: %v", path, err)
		} else {
			e.logger.Printf("Saved %s", path)
		}
	}
}

func (e *GridExperiment) closeAgents() {
	for _, a := range e.agents {
		if err := a.Close(); err != nil {
			e.logger.Printf("failed to close %s: %v", a.GetID(), err)
		}
	}
	e.agents = nil
}

func (e *GridExperiment) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Errors = append(e.status.Errors, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func formatActions(ids []string, actions map[string]core.Action) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", id, actions[id])
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
