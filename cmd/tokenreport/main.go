package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/spf13/cobra"
	"github.com/zgpcy/azure-openai-token-report/internal/azure"
	"github.com/zgpcy/azure-openai-token-report/internal/clock"
	"github.com/zgpcy/azure-openai-token-report/internal/collector"
	"github.com/zgpcy/azure-openai-token-report/internal/config"
	"github.com/zgpcy/azure-openai-token-report/internal/identity"
	"github.com/zgpcy/azure-openai-token-report/internal/logger"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/pipeline"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
	"github.com/zgpcy/azure-openai-token-report/internal/report"
	"github.com/zgpcy/azure-openai-token-report/internal/version"
)

// backend is everything the pipeline needs from Azure
type backend interface {
	provider.ResourceDiscoverer
	provider.DeploymentLister
	provider.MetricsQuerier
	provider.CostQuerier
}

// Options wires the CLI to its outputs and to Azure
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Clock  clock.Clock

	NewIdentity func(log *logger.Logger) (identity.Provider, error)
	NewBackend  func(cred azcore.TokenCredential, cfg *config.Config, log *logger.Logger) (backend, error)
}

// CLI is the tokenreport command
type CLI struct {
	opts    Options
	rootCmd *cobra.Command

	startDate   string
	endDate     string
	configPath  string
	outputDir   string
	logLevel    string
	metricsFile string
	includeCost bool
	verify      bool
}

func defaultOptions() Options {
	return Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Clock:  clock.RealClock{},
		NewIdentity: func(log *logger.Logger) (identity.Provider, error) {
			return identity.NewAzureProvider(log)
		},
		NewBackend: func(cred azcore.TokenCredential, cfg *config.Config, log *logger.Logger) (backend, error) {
			return azure.NewClient(cred, cfg, log)
		},
	}
}

// NewCLI creates the command
func NewCLI(opts Options) *CLI {
	cli := &CLI{opts: opts}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

// Execute runs the command with args
func (cli *CLI) Execute(ctx context.Context, args []string) error {
	cli.rootCmd.SetArgs(args)
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokenreport",
		Short: "Report monthly Azure OpenAI token usage per deployment",
		Long: `tokenreport discovers Azure OpenAI and AI Services accounts visible to the
signed-in identity, sums their input and output token metrics per deployment
and writes the result to a CSV file plus a console summary.

Without dates the previous calendar month is reported.

Examples:
  tokenreport
  tokenreport --start-date 2026-01-01 --end-date 2026-01-31
  tokenreport --output-dir ./reports --include-cost
  tokenreport --metrics-file /var/lib/node_exporter/azure_openai_tokens.prom`,
		Args:          cobra.NoArgs,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          cli.run,
	}
	cmd.SetOut(cli.opts.Stdout)
	cmd.SetErr(cli.opts.Stderr)
	cmd.SetVersionTemplate("tokenreport {{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVar(&cli.startDate, "start-date", "", "first day to report (YYYY-MM-DD)")
	flags.StringVar(&cli.endDate, "end-date", "", "last day to report (YYYY-MM-DD)")
	flags.StringVar(&cli.configPath, "config", "", "optional YAML configuration file")
	flags.StringVar(&cli.outputDir, "output-dir", config.DefaultOutputDir, "directory for the CSV report")
	flags.StringVar(&cli.logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cli.metricsFile, "metrics-file", "", "also write Prometheus textfile metrics to this path")
	flags.BoolVar(&cli.includeCost, "include-cost", false, "also query the actual cost of each resource")
	flags.BoolVar(&cli.verify, "verify", false, "re-read the written CSV and check it against the report")

	return cmd
}

// loadConfig applies flags on top of the file and environment
func (cli *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = cli.outputDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = cli.logLevel
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = cli.metricsFile
	}
	if flags.Changed("include-cost") {
		cfg.IncludeCost = cli.includeCost
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (cli *CLI) run(cmd *cobra.Command, _ []string) error {
	// Dates are checked before any credential is created
	p, err := period.Resolve(cli.startDate, cli.endDate, cli.opts.Clock.Now())
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(cli.opts.Stderr, cfg.LogLevel, cfg.LogFormat)
	log.Info("Azure OpenAI token report starting",
		"version", version.Version,
		"period", p.String(),
		"output_dir", cfg.OutputDir,
		"kinds", cfg.Kinds,
		"subscriptions", len(cfg.Subscriptions),
		"include_cost", cfg.IncludeCost,
		"api_timeout_seconds", cfg.APITimeout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idp, err := cli.opts.NewIdentity(log)
	if err != nil {
		log.Error("Failed to create Azure credential", "error", err)
		return fmt.Errorf("authentication failed: %w", err)
	}
	account, err := idp.Account(ctx)
	if err != nil {
		log.Error("Failed to resolve signed-in account, run 'az login' first", "error", err)
		return fmt.Errorf("authentication failed: %w", err)
	}
	log.Info("Authenticated",
		"principal", account.Principal,
		"subscription_id", account.SubscriptionID,
		"subscription_name", account.SubscriptionName)

	client, err := cli.opts.NewBackend(idp.Credential(), cfg, log)
	if err != nil {
		log.Error("Failed to create Azure clients", "error", err)
		return err
	}

	runOpts := []pipeline.Option{
		pipeline.WithClock(cli.opts.Clock),
		pipeline.WithReportOptions(report.Options{InferModelNames: cfg.InferModelNames}),
	}
	if cfg.IncludeCost {
		runOpts = append(runOpts, pipeline.WithCost(client))
	}
	runner := pipeline.New(client, client, client, log, runOpts...)

	rep, runErr := runner.Run(ctx, p)
	if rep == nil {
		log.Error("Report failed", "error", runErr)
		return runErr
	}

	path, err := report.WriteCSVFile(cfg.OutputDir, rep)
	if err != nil {
		log.Error("Failed to write CSV report", "error", err)
		return err
	}
	log.Info("CSV report written", "path", path, "rows", len(rep.Rows))

	if cli.verify {
		if err := report.VerifyCSVFile(path, rep); err != nil {
			log.Error("CSV verification failed", "path", path, "error", err)
			return err
		}
		log.Info("CSV verified", "path", path)
	}

	if err := report.NewSummary(cli.opts.Stdout).Handle(rep); err != nil {
		log.Warn("Failed to print summary", "error", err)
	}
	fmt.Fprintf(cli.opts.Stdout, "\nReport saved to %s\n", path)

	if cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.MetricsFile, rep); err != nil {
			log.Error("Failed to write metrics textfile", "path", cfg.MetricsFile, "error", err)
			return err
		}
		log.Info("Metrics textfile written", "path", cfg.MetricsFile)
	}

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted, report is partial: %w", runErr)
	}
	return runErr
}

func main() {
	cli := NewCLI(defaultOptions())
	if err := cli.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
