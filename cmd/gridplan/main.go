package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/gridplan/internal/client"
	"github.com/boristopalov/gridplan/internal/server"
	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/environment"
	"github.com/boristopalov/gridplan/pkg/experiment"
	"github.com/boristopalov/gridplan/pkg/planner"
	"github.com/boristopalov/gridplan/pkg/providers"
	"github.com/boristopalov/gridplan/pkg/training"
)

type flags struct {
	config   string
	seed     int64
	ticks    int
	provider string
	model    string
	out      string
	terminal bool
	addr     string
	episodes int
}

func main() {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:   "gridplan",
		Short: "gridplan runs multi-agent grid navigation with LLM subgoal planning.",
	}
	rootCmd.PersistentFlags().StringVar(&f.config, "config", "", "YAML config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().Int64Var(&f.seed, "seed", 0, "override environment.seed")
	rootCmd.PersistentFlags().StringVar(&f.out, "out", "", "override output.dir")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run planner-driven episodes and save GIFs, stats and a reward chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd, f)
		},
	}
	runCmd.Flags().IntVar(&f.ticks, "ticks", 0, "override run.max_ticks")
	runCmd.Flags().StringVar(&f.provider, "provider", "", "planner provider: openai, gemini, remote or goal")
	runCmd.Flags().StringVar(&f.model, "model", "", "override planner.model")
	runCmd.Flags().BoolVar(&f.terminal, "terminal", false, "print every frame to the terminal")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured planner over HTTP (POST /plan)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, f)
		},
	}
	serveCmd.Flags().StringVar(&f.addr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&f.provider, "provider", "", "planner provider: openai, gemini or goal")
	serveCmd.Flags().StringVar(&f.model, "model", "", "override planner.model")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a tabular Q-learning agent for agent_0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return train(cmd, f)
		},
	}
	trainCmd.Flags().IntVar(&f.episodes, "episodes", 0, "override training.episodes")

	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(runCmd, serveCmd, trainCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.LoadConfig(f.config); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Environment.Seed = f.seed
	}
	if f.out != "" {
		cfg.Output.Dir = f.out
	}
	if f.ticks > 0 {
		cfg.Run.MaxTicks = f.ticks
	}
	if f.provider != "" {
		cfg.Planner.Provider = f.provider
	}
	if f.model != "" {
		cfg.Planner.Model = f.model
	}
	if f.terminal {
		cfg.Output.Terminal = true
	}
	if f.episodes > 0 {
		cfg.Training.Episodes = f.episodes
	}
	return cfg, cfg.Validate()
}

// signalContext is cancelled on interrupt or after timeout
func signalContext(timeout func() (context.Context, context.CancelFunc)) (context.Context, context.CancelFunc) {
	ctx, cancel := timeout()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		select {
		case <-sigChan:
			log.Println("Interrupted, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// newSource builds the subgoal source named by cfg.Planner.Provider
func newSource(ctx context.Context, cfg *config.Config) (core.SubgoalSource, error) {
	switch cfg.Planner.Provider {
	case "goal":
		return planner.GoalPlanner{}, nil
	case "remote":
		c, err := client.NewPlanClient(cfg.Planner.Endpoint)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	var opts []providers.ProviderOption
	if cfg.Planner.BaseURL != "" {
		opts = append(opts, providers.WithBaseURL(cfg.Planner.BaseURL))
	}
	llm, err := providers.New(ctx, cfg.Planner.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Planner.Provider, err)
	}
	return planner.NewLLMPlanner(llm,
		planner.WithModel(cfg.Planner.Model),
		planner.WithHistory(cfg.Planner.History),
	), nil
}

func runExperiment(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Run.Timeout)
	})
	defer cancel()

	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	env, err := environment.NewGridWorld(cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to create environment: %v", err)
	}
	exp, err := experiment.NewGridExperiment(cfg, env, experiment.WithSubgoalSource(source))
	if err != nil {
		return err
	}
	log.Printf("Running %s (%s planner, %d episodes) -> %s", cfg.Name, cfg.Planner.Provider, cfg.Run.Episodes, exp.OutDir())
	if err := exp.Run(ctx); err != nil {
		return fmt.Errorf("experiment failed: %w", err)
	}

	goals := 0
	for _, ep := range exp.History() {
		if ep.Outcome == experiment.OutcomeGoal {
			goals++
		}
	}
	log.Printf("Finished: %d/%d episodes reached the goal", goals, len(exp.History()))
	return nil
}

func serve(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	if cfg.Planner.Provider == "remote" {
		return fmt.Errorf("serve needs a local planner, not %q", cfg.Planner.Provider)
	}
	ctx, cancel := signalContext(func() (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	})
	defer cancel()

	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	return server.NewServer(source).ListenAndServe(ctx, f.addr)
}

func train(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Run.Timeout)
	})
	defer cancel()

	report, err := training.Train(ctx, cfg)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	evalEnv, err := training.NewEvaluationEnv(cfg.Environment)
	if err != nil {
		return err
	}
	rate, err := training.Evaluate(ctx, evalEnv, report.Learner, 100)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	log.Printf("Trained %d episodes, %d states; greedy success rate %.2f", len(report.Episodes), report.Learner.States(), rate)

	if cfg.Output.Chart {
		path := filepath.Join(cfg.Output.Dir, "training.html")
		if err := report.WriteChart(path, 100); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
		log.Printf("Saved %s", path)
	}
	return nil
}
