// Campaignflow CLI entry point.
//
// Usage:
//
//	campaignflow demo                        # run a guided demo pipeline
//	campaignflow demo --config config.yaml   # with a config file
//	campaignflow demo --channel Brand --runbook "Thought Leadership"
//	campaignflow version                     # show version info
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetworks/campaignflow"
	"github.com/fleetworks/campaignflow/config"
	"github.com/fleetworks/campaignflow/pipeline"
	"github.com/fleetworks/campaignflow/registry"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runDemo walks a full guided pipeline run: pre-scripted stage outputs,
// auto-approval through every handoff, audit trail printed at the end. The
// strategy stage always generates live, so it is only included when an API
// key is configured.
func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	channel := fs.String("channel", registry.ChannelCRM, "Campaign channel (Brand, CRM, Digital)")
	runbook := fs.String("runbook", "", "Channel runbook (defaults per channel)")
	refDir := fs.String("reference-dir", "", "Path to the reference document library")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting campaignflow demo",
		zap.String("version", Version),
		zap.String("channel", *channel))

	var opts []campaignflow.Option
	if *refDir != "" {
		opts = append(opts, campaignflow.WithReferenceDir(*refDir))
	}
	eng, err := campaignflow.New(cfg, logger, opts...)
	if err != nil {
		logger.Fatal("engine wiring failed", zap.Error(err))
	}

	if *runbook == "" {
		*runbook = registry.DefaultRunbooks[*channel]
	}
	prompt, ok := eng.Scripted.DemoPrompt(*channel, *runbook)
	if !ok {
		logger.Fatal("no demo data for channel/runbook",
			zap.String("channel", *channel), zap.String("runbook", *runbook))
	}

	// Without an API key the strategy stage cannot generate; the demo
	// runs the fully scripted stages instead.
	enabled := map[string]bool{"brief": true, "strategy": true, "copy": true, "compliance": true}
	if cfg.Anthropic.APIKey == "" {
		logger.Warn("no API key configured, running without the strategy stage")
		enabled["strategy"] = false
	}

	m := eng.NewRun()
	ctx := context.Background()
	err = m.Start(ctx, pipeline.StartConfig{
		Channel:       *channel,
		Runbook:       *runbook,
		Persona:       "SME",
		Sector:        "General Business",
		Prompt:        prompt,
		Mode:          pipeline.ModeMulti,
		DemoMode:      true,
		EnabledStages: enabled,
	})
	if err != nil {
		logger.Fatal("demo start failed", zap.Error(err))
	}

	// Approve every stage toward the default next hop until the run
	// finalizes.
	for {
		run := m.Run()
		if run.State != pipeline.StateRunning {
			break
		}
		stage := run.CurrentStage
		targets := m.AvailableTargets(stage)
		target := ""
		if len(targets) > 0 {
			target = targets[0]
		}
		logger.Info("approving stage output",
			zap.String("stage", stage), zap.String("target", target))
		if err := m.Approve(ctx, pipeline.ApproveRequest{Stage: stage, Target: target, SaveToKB: true}); err != nil {
			logger.Fatal("approval failed", zap.String("stage", stage), zap.Error(err))
		}
	}

	printRun(m)
}

func printRun(m *pipeline.Machine) {
	run := m.Run()
	fmt.Printf("\n=== Run %s — %s / %s (%s) ===\n", run.ID, run.Channel, run.Runbook, run.State)
	for _, stage := range run.ActiveStages {
		out := ""
		if approved, ok := run.Approved[stage]; ok {
			out = fmt.Sprintf("approved (%d chars)", len(approved))
		} else if run.Completed[stage] {
			out = "skipped"
		}
		fmt.Printf("  %-12s %s\n", stage, out)
	}

	fmt.Println("\n=== Audit trail ===")
	for _, e := range m.Audit().Entries() {
		fmt.Printf("  %s  %-9s %-10s %s\n",
			e.Timestamp.Format("15:04:05"), e.Kind, e.StageID, e.Detail)
	}
}

func printVersion() {
	fmt.Printf("campaignflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Println(`campaignflow — multi-agent marketing campaign orchestration

Commands:
  demo      Run a guided demo pipeline end to end
  version   Show version information
  help      Show this help

Run 'campaignflow demo -h' for demo flags.`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var buildOpts []zap.Option
	if cfg.EnableCaller {
		buildOpts = append(buildOpts, zap.AddCaller())
	}
	buildOpts = append(buildOpts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger, err := zapConfig.Build(buildOpts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
