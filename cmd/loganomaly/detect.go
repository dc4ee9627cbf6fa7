package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ai-devops/loganomaly/internal/app"
	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/logger"
	"github.com/ai-devops/loganomaly/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	exitFailed   = 1
	exitCritical = 2

	maxConcurrentFiles = 4
)

type detectOptions struct {
	model          string
	threshold      *float64
	sensitivity    *float64
	llmModel       string
	since          string
	until          string
	failOnCritical bool
}

// fileReport is the JSON document printed for each file.
type fileReport struct {
	File    string               `json:"file"`
	Session *service.SessionView `json:"session,omitempty"`
	Result  *service.ResultView  `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func newDetectCmd() *cobra.Command {
	var (
		opts        detectOptions
		threshold   float64
		sensitivity float64
	)
	cmd := &cobra.Command{
		Use:   "detect [files...]",
		Short: "Detect anomalies in log files",
		Long:  `Registers each file as a FILE log source, runs one detection session per file concurrently and prints one JSON report per file. Exits 1 if any run failed, or 2 with --fail-on-critical when a critical anomaly was found.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("threshold") {
				opts.threshold = &threshold
			}
			if cmd.Flags().Changed("sensitivity") {
				opts.sensitivity = &sensitivity
			}
			verbose, _ := cmd.Flags().GetBool("verbose")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, zapLogger, err := newApp(ctx, verbose)
			if err != nil {
				return err
			}
			defer zapLogger.Sync()
			defer a.Close()

			code, err := runDetect(ctx, a, args, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", string(domain.ModelStatistical), "Detection model type (STATISTICAL, PATTERN_BASED, ML_BASED, RULE_BASED, LLM_BASED)")
	f.Float64VarP(&threshold, "threshold", "t", domain.DefaultThreshold, "Anomaly score threshold in [0, 1]")
	f.Float64Var(&sensitivity, "sensitivity", domain.DefaultSensitivity, "Detection sensitivity in [0, 1]")
	f.StringVar(&opts.llmModel, "llm-model", "", "LLM model name for LLM_BASED detection")
	f.StringVar(&opts.since, "since", "24h", "Range start as RFC3339 or a duration before --until")
	f.StringVar(&opts.until, "until", "", "Range end as RFC3339 (default now)")
	f.BoolVar(&opts.failOnCritical, "fail-on-critical", false, "Exit 2 when any critical anomaly is found")
	return cmd
}

// newApp wires an in-memory application from the environment. Without an
// API key the LLM strategy runs in mock mode.
func newApp(ctx context.Context, verbose bool) (*app.App, *zap.Logger, error) {
	if os.Getenv("AI_API_KEY") == "" && os.Getenv("AI_MOCK_MODE") == "" {
		_ = os.Setenv("AI_MOCK_MODE", "true")
	}
	if !verbose && os.Getenv("LOG_LEVEL") == "" {
		_ = os.Setenv("LOG_LEVEL", "warn")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg.Storage.Driver = config.StorageMemory

	zapLogger, err := logger.New(false, cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	a, err := app.New(ctx, cfg, zapLogger)
	if err != nil {
		return nil, nil, err
	}
	return a, zapLogger, nil
}

// runDetect analyzes files concurrently and writes their reports to out
// in argument order. It returns the process exit status.
func runDetect(ctx context.Context, a *app.App, files []string, opts detectOptions, out io.Writer) (int, error) {
	start, end, err := parseRange(opts.since, opts.until, time.Now())
	if err != nil {
		return 0, err
	}

	reports := make([]fileReport, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)
	for i, file := range files {
		g.Go(func() error {
			reports[i] = detectFile(gctx, a, file, start, end, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	code := 0
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return 0, err
		}
		switch {
		case r.Error != "":
			code = exitFailed
		case opts.failOnCritical && code == 0 && hasCritical(r.Result):
			code = exitCritical
		}
	}
	return code, nil
}

func detectFile(ctx context.Context, a *app.App, file string, start, end time.Time, opts detectOptions) fileReport {
	report := fileReport{File: file}
	path, err := filepath.Abs(file)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	source, err := a.SourceService.Register(ctx, service.RegisterSourceInput{
		Name:     path,
		Type:     domain.SourceFile,
		Endpoint: path,
	})
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if _, err := a.SourceService.Activate(ctx, source.ID()); err != nil {
		report.Error = err.Error()
		return report
	}

	session, err := a.Orchestrator.Run(ctx, service.DetectionRequest{
		SourceID:  source.ID(),
		StartTime: start,
		EndTime:   end,
		ModelConfig: domain.DetectionModelConfigProps{
			ModelType:   domain.ModelType(strings.ToUpper(opts.model)),
			Threshold:   opts.threshold,
			Sensitivity: opts.sensitivity,
			LLMModel:    opts.llmModel,
		},
	})
	if session != nil {
		view := service.NewSessionView(session)
		report.Session = &view
		if res := session.AnalysisResult(); res != nil {
			rv := service.NewResultView(res)
			report.Result = &rv
		}
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

func hasCritical(r *service.ResultView) bool {
	if r == nil {
		return false
	}
	for _, a := range r.Anomalies {
		if a.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// parseRange resolves --since and --until. since is either an RFC3339
// timestamp or a duration subtracted from until.
func parseRange(since, until string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until %q: %w", until, err)
		}
		end = t
	}

	if t, err := time.Parse(time.RFC3339, since); err == nil {
		return t, end, nil
	}
	d, err := time.ParseDuration(since)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 or a duration", since)
	}
	return end.Add(-d), end, nil
}
