package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/boristopalov/gridplan/pkg/environment"
)

const (
	OutcomeGoal      = "goal"
	OutcomeTimeout   = "timeout"    // environment step limit
	OutcomeTickLimit = "tick_limit" // driver tick limit
	OutcomeCancelled = "cancelled"
)

// last assignments per agent kept in EpisodeStats.SubgoalLog
const subgoalLogSize = 3

// EpisodeStats summarises one episode
type EpisodeStats struct {
	Episode             int
	Ticks               int
	Outcome             string
	Winner              string
	AgentIDs            []string
	Rewards             map[string]float64   // total reward per agent
	RewardTrace         map[string][]float64 // cumulative reward per agent after each tick
	Collisions          int
	PlannerCalls        int
	PlannerFailures     int
	Fallbacks           int
	UnreachableSubgoals int
	SubgoalLog          map[string][]string // latest subgoal assignments per agent
}

func newEpisodeStats(ep int, ids []string) *EpisodeStats {
	s := &EpisodeStats{
		Episode:     ep,
		AgentIDs:    ids,
		Rewards:     make(map[string]float64, len(ids)),
		RewardTrace: make(map[string][]float64, len(ids)),
		SubgoalLog:  make(map[string][]string, len(ids)),
	}
	return s
}

func (s *EpisodeStats) record(tick int, res environment.StepResult) {
	s.Ticks = tick
	s.Collisions += len(res.Info.Collisions)
	for _, id := range s.AgentIDs {
		s.Rewards[id] += res.Rewards[id]
		s.RewardTrace[id] = append(s.RewardTrace[id], s.Rewards[id])
	}
	switch {
	case len(res.Info.Reached) > 0:
		s.Outcome = OutcomeGoal
		s.Winner = strings.Join(res.Info.Reached, "+")
	case res.Info.TimedOut:
		s.Outcome = OutcomeTimeout
	}
}

// TotalReward sums rewards over all agents
func (s EpisodeStats) TotalReward() float64 {
	var total float64
	for _, r := range s.Rewards {
		total += r
	}
	return total
}

// Print statistics for a finished episode
func (e *GridExperiment) printEpisodeStats(s EpisodeStats) {
	e.logger.Printf("\n=== Episode %d Statistics ===", s.Episode)
	e.logger.Printf("  Outcome: %s", s.Outcome)
	if s.Winner != "" {
		e.logger.Printf("  Reached goal: %s", s.Winner)
	}
	e.logger.Printf("  Ticks: %d", s.Ticks)
	for _, id := range s.AgentIDs {
		e.logger.Printf("  Reward %s: %.2f", id, s.Rewards[id])
	}
	e.logger.Printf("  Collisions: %d", s.Collisions)
	e.logger.Printf("  Planner calls: %d (failed %d)", s.PlannerCalls, s.PlannerFailures)
	e.logger.Printf("  Goal fallbacks: %d, unreachable subgoals: %d", s.Fallbacks, s.UnreachableSubgoals)
	for _, id := range s.AgentIDs {
		for _, entry := range s.SubgoalLog[id] {
			e.logger.Printf("  %s %s", id, entry)
		}
	}
	e.logger.Printf("==========================\n")
}

const statsHeader = "Episode,Ticks,Outcome,Winner,TotalReward,Collisions,PlannerCalls,PlannerFailures,Fallbacks,UnreachableSubgoals\n"

// statsWriter appends one CSV line per episode
type statsWriter struct {
	file *os.File
}

func newStatsWriter(dir, runID string) (*statsWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("experiment_stats_%s.csv", shortID(runID))))
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(statsHeader); err != nil {
		f.Close()
		return nil, err
	}
	return &statsWriter{file: f}, nil
}

func (w *statsWriter) Write(s EpisodeStats) error {
	line := fmt.Sprintf("%d,%d,%s,%s,%.2f,%d,%d,%d,%d,%d\n",
		s.Episode,
		s.Ticks,
		s.Outcome,
		s.Winner,
		s.TotalReward(),
		s.Collisions,
		s.PlannerCalls,
		s.PlannerFailures,
		s.Fallbacks,
		s.UnreachableSubgoals,
	)
	_, err := w.file.WriteString(line)
	return err
}

func (w *statsWriter) Close() error {
	return w.file.Close()
}
