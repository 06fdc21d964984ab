package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	"github.com/johndauphine/rowmigrate/internal/config"
	"github.com/johndauphine/rowmigrate/internal/exitcodes"
	"github.com/johndauphine/rowmigrate/internal/logging"
	"github.com/johndauphine/rowmigrate/internal/orchestrator"
	"github.com/johndauphine/rowmigrate/internal/report"

	_ "github.com/johndauphine/rowmigrate/internal/driver/mssql"
	_ "github.com/johndauphine/rowmigrate/internal/driver/mysql"
	_ "github.com/johndauphine/rowmigrate/internal/driver/postgres"
	_ "github.com/johndauphine/rowmigrate/internal/driver/sqlite"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:      "rowmigrate",
		Usage:     "Copy rows between database tables with column mapping and resumable checkpoints",
		Version:   version,
		ArgsUsage: "[config]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file (YAML, TOML or JSON)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file for ${VAR} expansion (default: .env next to the config)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json (overrides logging.format)",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "Log verbosity level: debug, info, warn, error (overrides logging.level)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run every configured migration",
				ArgsUsage: "[config]",
				Action:    runMigration,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel insert workers (overrides performance.workers)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Extract and convert rows, log the insert statements, write nothing",
					},
					&cli.StringFlag{
						Name:  "progress",
						Value: "auto",
						Usage: "Progress display: auto, bar, text, json or none",
					},
					&cli.BoolFlag{
						Name:  "fail-on-critical",
						Usage: "Exit non-zero when configuration or database errors were recorded",
					},
					&cli.BoolFlag{
						Name:  "output-json",
						Usage: "Output JSON result to stdout on completion (logs go to stderr)",
					},
					&cli.StringFlag{
						Name:  "output-file",
						Usage: "Write JSON result to file on completion",
					},
				},
			},
			{
				Name:      "validate",
				Usage:     "Validate the configuration file",
				ArgsUsage: "[config]",
				Action:    validateConfig,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "show",
						Usage: "Print the effective configuration with secrets redacted",
					},
				},
			},
			{
				Name:      "check",
				Usage:     "Test the source and target connections",
				ArgsUsage: "[config]",
				Action:    checkConnections,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the result as JSON",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show how many rows each migration has checkpointed",
				ArgsUsage: "[config]",
				Action:    showStatus,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output status as JSON",
					},
				},
			},
			{
				Name:      "history",
				Usage:     "List recorded runs (sqlite checkpoint backend)",
				ArgsUsage: "[config]",
				Action:    showHistory,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Number of runs to show",
					},
				},
			},
		},
	}

	err := app.Run(os.Args)
	logging.Close()
	if err != nil {
		code := exitcodes.FromError(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == exitcodes.Success {
			code = exitcodes.CriticalError
		}
		os.Exit(code)
	}
}

func runMigration(c *cli.Context) error {
	if c.Bool("output-json") {
		logging.SetOutput(os.Stderr)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	// stdout carries only the JSON result under --output-json.
	consoleWriter := os.Stdout
	if c.Bool("output-json") {
		consoleWriter = os.Stderr
	}

	result, runErr := orch.Run(ctx, orchestrator.Options{
		DryRun:         c.Bool("dry-run"),
		Workers:        c.Int("workers"),
		Progress:       c.String("progress"),
		ProgressWriter: consoleWriter,
		SummaryWriter:  consoleWriter,
		FailOnCritical: c.Bool("fail-on-critical"),
	})

	if c.Bool("output-json") || c.String("output-file") != "" {
		if err := outputJSON(c, result); err != nil {
			logging.Warn("Failed to output JSON: %v", err)
		}
	}

	return runErr
}

func validateConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration is valid: %d migrations (%s -> %s)\n",
		len(cfg.Migrations), cfg.Database.Source.Adapter, cfg.Database.Target.Adapter)
	for _, name := range cfg.MigrationNames() {
		fmt.Printf("  - %s\n", name)
	}

	if c.Bool("show") {
		out, err := cfg.Sanitized().YAML()
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Print(out)
	}
	return nil
}

func checkConnections(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	result := orch.HealthCheck(ctx)
	if c.Bool("json") {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Source (%s): %s (%dms)\n", result.SourceDBType, connState(result.SourceConnected, result.SourceError), result.SourceLatencyMs)
		fmt.Printf("Target (%s): %s (%dms)\n", result.TargetDBType, connState(result.TargetConnected, result.TargetError), result.TargetLatencyMs)
	}

	if !result.Healthy {
		return exitcodes.NewExitError(result.Err(), exitcodes.ConnectionError)
	}
	return nil
}

func connState(ok bool, errMsg string) string {
	if ok {
		return "OK"
	}
	return "FAILED: " + errMsg
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := checkpoint.Open(cfg.CheckpointOptions())
	if err != nil {
		return fmt.Errorf("opening checkpoint: %w", err)
	}
	defer store.Close()

	if c.Bool("json") {
		statuses, err := orchestrator.Status(c.Context, store, cfg.MigrationNames())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	return orchestrator.ShowStatus(c.Context, os.Stdout, store, cfg.MigrationNames())
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := checkpoint.Open(cfg.CheckpointOptions())
	if err != nil {
		return fmt.Errorf("opening checkpoint: %w", err)
	}
	defer store.Close()

	return orchestrator.ShowHistory(c.Context, os.Stdout, store, c.Int("limit"))
}

// loadConfig reads the config named by the first argument or --config and
// applies the logging settings from it and from the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if c.NArg() > 0 {
		path = c.Args().First()
	}

	cfg, err := config.LoadWithOptions(path, config.LoadOptions{EnvFile: c.String("env-file")})
	if err != nil {
		return nil, exitcodes.NewExitError(fmt.Errorf("failed to load config: %w", err), exitcodes.ConfigError)
	}

	levelName := cfg.Logging.Level
	if c.IsSet("verbosity") {
		levelName = c.String("verbosity")
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.ConfigError)
	}
	logging.SetLevel(level)

	format := cfg.Logging.Format
	if c.IsSet("log-format") {
		format = c.String("log-format")
	}
	logging.SetFormat(format)

	if err := logging.SetLogFile(cfg.Logging.File); err != nil {
		logging.Warn("Logging to console only: %v", err)
	}

	return cfg, nil
}

// outputJSON writes the run result as JSON to stdout and/or a file
func outputJSON(c *cli.Context, result *report.Result) error {
	if c.Bool("output-json") {
		data, err := result.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	if outputFile := c.String("output-file"); outputFile != "" {
		if err := result.WriteFile(outputFile); err != nil {
			return err
		}
	}

	return nil
}
