package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for unusable settings
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Name        string         `yaml:"name"`
	Environment EnvConfig      `yaml:"environment"`
	Planner     PlannerConfig  `yaml:"planner"`
	Run         RunConfig      `yaml:"run"`
	Output      OutputConfig   `yaml:"output"`
	Training    TrainingConfig `yaml:"training"`
}

// EnvConfig describes the grid world
type EnvConfig struct {
	Height              int     `yaml:"height"`
	Width               int     `yaml:"width"`
	Agents              int     `yaml:"agents"`
	ObstacleProb        float64 `yaml:"obstacle_prob"`
	MaxSteps            int     `yaml:"max_steps"`
	Seed                int64   `yaml:"seed"`
	MaxPlacementRetries int     `yaml:"max_placement_retries"`
}

// PlannerConfig selects the subgoal source
type PlannerConfig struct {
	Provider string `yaml:"provider"` // openai, gemini, remote or goal
	Model    string `yaml:"model"`    // empty picks the provider default
	BaseURL  string `yaml:"base_url"`
	Endpoint string `yaml:"endpoint"` // remote planner URL
	History  int    `yaml:"history"`  // plan exchanges kept in the prompt
	Every    int    `yaml:"every"`    // ticks between planner calls
}

type RunConfig struct {
	Episodes     int           `yaml:"episodes"`
	MaxTicks     int           `yaml:"max_ticks"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type OutputConfig struct {
	Dir        string `yaml:"dir"`
	GIF        bool   `yaml:"gif"`
	Scale      int    `yaml:"scale"`
	FrameDelay int    `yaml:"frame_delay"` // hundredths of a second
	Stats      bool   `yaml:"stats"`
	Chart      bool   `yaml:"chart"`
	Terminal   bool   `yaml:"terminal"`
}

type TrainingConfig struct {
	Episodes int     `yaml:"episodes"`
	Alpha    float64 `yaml:"alpha"`
	Gamma    float64 `yaml:"gamma"`
	Epsilon  float64 `yaml:"epsilon"`
	// EpsilonMin and EpsilonDecay shape the per-episode exploration schedule
	EpsilonMin   float64 `yaml:"epsilon_min"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
}

// Default mirrors the demo setup: an 11x11 grid with two agents
func Default() *Config {
	return &Config{
		Name: "grid_demo",
		Environment: EnvConfig{
			Height:              11,
			Width:               11,
			Agents:              2,
			ObstacleProb:        0.18,
			MaxSteps:            200,
			Seed:                42,
			MaxPlacementRetries: 10000,
		},
		Planner: PlannerConfig{
			Provider: "openai",
			History:  4,
			Every:    1,
		},
		Run: RunConfig{
			Episodes:     1,
			MaxTicks:     80,
			TickInterval: 30 * time.Millisecond,
			Timeout:      5 * time.Minute,
		},
		Output: OutputConfig{
			Dir:        "demos",
			GIF:        true,
			Scale:      20,
			FrameDelay: 8,
			Stats:      true,
			Chart:      true,
		},
		Training: TrainingConfig{
			Episodes:     2000,
			Alpha:        0.2,
			Gamma:        0.95,
			Epsilon:      0.5,
			EpsilonMin:   0.05,
			EpsilonDecay: 0.998,
		},
	}
}

// LoadConfig reads a YAML file on top of Default and validates the result
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	switch c.Planner.Provider {
	case "openai", "gemini", "remote", "goal":
	default:
		return fmt.Errorf("%w: unknown planner provider %q", ErrInvalid, c.Planner.Provider)
	}
	if c.Planner.Every < 1 {
		return fmt.Errorf("%w: planner.every must be >= 1 (got %d)", ErrInvalid, c.Planner.Every)
	}
	if c.Planner.History < 0 {
		return fmt.Errorf("%w: planner.history must not be negative", ErrInvalid)
	}
	if c.Run.Episodes < 1 {
		return fmt.Errorf("%w: run.episodes must be >= 1 (got %d)", ErrInvalid, c.Run.Episodes)
	}
	if c.Run.MaxTicks < 1 {
		return fmt.Errorf("%w: run.max_ticks must be >= 1 (got %d)", ErrInvalid, c.Run.MaxTicks)
	}
	if c.Output.Scale < 1 {
		return fmt.Errorf("%w: output.scale must be >= 1 (got %d)", ErrInvalid, c.Output.Scale)
	}
	t := c.Training
	if t.Alpha < 0 || t.Alpha > 1 {
		return fmt.Errorf("%w: training.alpha must be between 0 and 1 (got %.2f)", ErrInvalid, t.Alpha)
	}
	if t.Gamma < 0 || t.Gamma > 1 {
		return fmt.Errorf("%w: training.gamma must be between 0 and 1 (got %.2f)", ErrInvalid, t.Gamma)
	}
	if t.Epsilon < 0 || t.Epsilon > 1 {
		return fmt.Errorf("%w: training.epsilon must be between 0 and 1 (got %.2f)", ErrInvalid, t.Epsilon)
	}
	return nil
}

func (e EnvConfig) Validate() error {
	if e.Height < 1 || e.Width < 1 {
		return fmt.Errorf("%w: grid must be at least 1x1 (got %dx%d)", ErrInvalid, e.Height, e.Width)
	}
	if e.Agents < 1 {
		return fmt.Errorf("%w: need at least one agent (got %d)", ErrInvalid, e.Agents)
	}
	if e.ObstacleProb < 0 || e.ObstacleProb >= 1 {
		return fmt.Errorf("%w: obstacle_prob must be in [0, 1) (got %.2f)", ErrInvalid, e.ObstacleProb)
	}
	if e.MaxSteps < 1 {
		return fmt.Errorf("%w: max_steps must be >= 1 (got %d)", ErrInvalid, e.MaxSteps)
	}
	if e.MaxPlacementRetries < 1 {
		return fmt.Errorf("%w: max_placement_retries must be >= 1 (got %d)", ErrInvalid, e.MaxPlacementRetries)
	}
	return nil
}
