package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"harmonia/internal/config"
	"harmonia/internal/heuristic"
	"harmonia/internal/model"
	"harmonia/pkg/harmonia"
)

func newInitCmd() *cobra.Command {
	var (
		configOut string
		melodyOut string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default run configuration and the example melody",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Marshal(config.Default())
			if err != nil {
				return err
			}
			if err := writeNew(configOut, data, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config=%s\n", configOut)

			if melodyOut == "" {
				return nil
			}
			melody, err := yaml.Marshal(config.Twinkle())
			if err != nil {
				return err
			}
			if err := writeNew(melodyOut, melody, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote melody=%s\n", melodyOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&configOut, "config-out", "harmonia.yaml", "path of the configuration file to write")
	cmd.Flags().StringVar(&melodyOut, "melody-out", "", "optional path for the example melody")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func writeNew(path string, data []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

type runFlags struct {
	melodyPath  string
	configPath  string
	metricsAddr string
	progress    bool
	jsonOut     bool

	seed        int64
	generations int
	population  int
	workers     int
	key         string
	selection   string
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evolve a chord progression for a melody",
		Long: `Run loads a melody (the built-in "Twinkle Twinkle" when --melody is not
given) and a configuration (defaults when --config is not given), evolves a
progression and stores the result. The first interrupt stops the search at
the next generation boundary; a second one cancels it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarmonize(cmd, opts, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.melodyPath, "melody", "", "melody YAML file")
	flags.StringVar(&f.configPath, "config", "", "run configuration YAML file")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.BoolVar(&f.progress, "progress", false, "print one line per generation")
	flags.BoolVar(&f.jsonOut, "json", false, "emit the run summary as JSON")
	flags.Int64Var(&f.seed, "seed", 0, "override the random seed")
	flags.IntVar(&f.generations, "generations", 0, "override max_generations")
	flags.IntVar(&f.population, "population", 0, "override population_size")
	flags.IntVar(&f.workers, "workers", 0, "override the evaluation worker count")
	flags.StringVar(&f.key, "key", "", "override the key (e.g. C, Am)")
	flags.StringVar(&f.selection, "selection", "", "override selection: roulette|tournament|elite")
	return cmd
}

func loadRunInputs(cmd *cobra.Command, f *runFlags) (config.MelodyFile, config.RunConfig, error) {
	melody := config.Twinkle()
	if f.melodyPath != "" {
		loaded, err := config.LoadMelody(f.melodyPath)
		if err != nil {
			return config.MelodyFile{}, config.RunConfig{}, err
		}
		melody = loaded
	}

	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.MelodyFile{}, config.RunConfig{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("generations") {
		cfg.MaxGenerations = f.generations
	}
	if flags.Changed("population") {
		cfg.PopulationSize = f.population
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("key") {
		cfg.Key = f.key
	}
	if flags.Changed("selection") {
		cfg.Selection = f.selection
	}
	return melody, cfg, nil
}

func runHarmonize(cmd *cobra.Command, opts *globalOptions, f *runFlags) error {
	melody, cfg, err := loadRunInputs(cmd, f)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	client, err := newClient(cmd, opts, func(o *harmonia.Options) { o.Registerer = reg })
	if err != nil {
		return err
	}
	defer client.Close()

	if f.metricsAddr != "" {
		shutdown := serveMetrics(f.metricsAddr, reg)
		defer shutdown()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stop := make(chan struct{})
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			close(stop)
		case <-ctx.Done():
			return
		}
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	out := cmd.OutOrStdout()
	req := harmonia.RunRequest{
		MelodyName: melody.Name,
		Melody:     melody.Specs(),
		Config:     &cfg,
		Stop:       stop,
	}
	if f.progress {
		req.OnGeneration = func(d model.GenerationDiagnostics) {
			fmt.Fprintf(out, "gen=%d best=%.4f mean=%.4f std=%.4f distinct=%d\n",
				d.Generation, d.BestFitness, d.MeanFitness, d.StdDevFitness, d.Distinct)
		}
	}

	summary, err := client.Run(ctx, req)
	if err != nil && summary.RunID == "" {
		return err
	}
	if f.jsonOut {
		if encErr := writeJSON(out, summaryView(summary)); encErr != nil {
			return encErr
		}
		return err
	}
	printSummary(out, summary)
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

type runSummaryJSON struct {
	RunID          string             `json:"run_id"`
	ArtifactsDir   string             `json:"artifacts_dir"`
	Key            string             `json:"key"`
	Progression    string             `json:"progression"`
	Fitness        float64            `json:"fitness"`
	Scores         map[string]float64 `json:"scores"`
	BestGeneration int                `json:"best_generation"`
	Generations    int                `json:"generations"`
	Reason         string             `json:"reason"`
}

func summaryView(s harmonia.RunSummary) runSummaryJSON {
	return runSummaryJSON{
		RunID:          s.RunID,
		ArtifactsDir:   s.ArtifactsDir,
		Key:            s.Key,
		Progression:    s.Progression,
		Fitness:        s.Best.Fitness,
		Scores:         s.Best.Scores,
		BestGeneration: s.BestGeneration,
		Generations:    s.Generations,
		Reason:         s.Reason,
	}
}

func printSummary(w io.Writer, s harmonia.RunSummary) {
	fmt.Fprintf(w, "run_id=%s key=%s generations=%d reason=%s best_generation=%d fitness=%.4f\n",
		s.RunID, s.Key, s.Generations, s.Reason, s.BestGeneration, s.Best.Fitness)
	fmt.Fprintf(w, "progression: %s\n", s.Progression)
	printScores(w, s.Best.Scores)
	fmt.Fprintf(w, "artifacts=%s\n", s.ArtifactsDir)
}

func printScores(w io.Writer, scores map[string]float64) {
	for _, name := range heuristic.Names {
		fmt.Fprintf(w, "  %-24s %.4f\n", name, scores[name])
	}
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := newClient(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), harmonia.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "run_id=%s created_at=%s melody=%s key=%s seed=%d population=%d generations=%d reason=%s fitness=%.4f progression=%q\n",
					item.RunID, item.CreatedAtUTC, item.MelodyName, item.Key, item.Seed, item.Population,
					item.Generations, item.Reason, item.BestFitness, item.Progression)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var (
		latest  bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show the best progression and summary of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			detail, err := client.Show(cmd.Context(), harmonia.ShowRequest{RunID: firstArg(args), Latest: latest})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, detail)
			}
			run := detail.Run
			fmt.Fprintf(out, "run_id=%s melody=%s notes=%d key=%s created_at=%s\n",
				run.ID, run.MelodyName, len(run.Melody), run.Key, run.CreatedAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "population=%d elite=%d selection=%s seed=%d harmonic_rhythm=%g\n",
				run.Config.PopulationSize, run.Config.EliteCount, run.Config.Selection, run.Config.Seed, run.Config.HarmonicRhythm)
			fmt.Fprintf(out, "generations=%d best_generation=%d reason=%s fitness=%.4f\n",
				run.Generations, run.BestGeneration, run.Reason, detail.Best.Fitness)
			fmt.Fprintf(out, "progression: %s\n", strings.Join(detail.Best.Names(), " "))
			printScores(out, detail.Best.Scores)
			s := detail.Summary
			fmt.Fprintf(out, "improvement=%.4f mean_of_means=%.4f std_of_means=%.4f min_distinct=%d cache_hit_rate=%.3f\n",
				s.Improvement, s.MeanOfMeans, s.StdOfMeans, s.MinDistinct, s.CacheHitRate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "show the most recent run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the run detail as JSON")
	return cmd
}

func newTraceCmd(opts *globalOptions) *cobra.Command {
	var (
		latest  bool
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Print per-generation diagnostics of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			trace, err := client.Trace(cmd.Context(), harmonia.TraceRequest{RunID: firstArg(args), Latest: latest, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, trace)
			}
			for _, d := range trace {
				fmt.Fprintf(out, "gen=%d best=%.4f mean=%.4f std=%.4f min=%.4f distinct=%d running_best=%.4f evaluations=%d cache_hits=%d\n",
					d.Generation, d.BestFitness, d.MeanFitness, d.StdDevFitness, d.MinFitness,
					d.Distinct, d.RunningBest, d.Evaluations, d.CacheHits)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the last N generations (0 = all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit diagnostics as JSON")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Copy a run's artifacts to an export directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), harmonia.ExportRequest{RunID: firstArg(args), Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", defaultExportsDir, "export directory")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
