// Package commands implements the topfew command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/topfew/pkg/config"
	"github.com/Sumatoshi-tech/topfew/pkg/keyfinder"
	"github.com/Sumatoshi-tech/topfew/pkg/observability"
	"github.com/Sumatoshi-tech/topfew/pkg/topfew"
	"github.com/Sumatoshi-tech/topfew/pkg/version"
)

type observabilityInitFunc func(cfg observability.Config) (observability.Providers, error)

// TopCommand holds the flag values of the top command.
type TopCommand struct {
	configPath string

	count     int
	fields    string
	fieldSep  string
	grep      []string
	vgrep     []string
	sed       []string
	workers   int
	chunkSize string
	format    string
	noColor   bool

	logLevel     string
	logJSON      bool
	otlpEndpoint string
	otlpInsecure bool
	metricsFile  string
	debugTrace   bool

	observabilityInit observabilityInitFunc
}

// NewTopCommand creates the root topfew command.
func NewTopCommand() *cobra.Command {
	return newTopCommandWithDeps(observability.Init)
}

func newTopCommandWithDeps(obsInit observabilityInitFunc) *cobra.Command {
	tc := &TopCommand{observabilityInit: obsInit}

	cmd := &cobra.Command{
		Use:   "topfew [flags] [file]",
		Short: "Show the most frequent keys in a file",
		Long: `topfew counts the keys found in each line of a file and prints the most
frequent ones. Large files are split into spans that are scanned in parallel.
With no file, standard input is read sequentially.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          tc.run,
	}

	flags := cmd.Flags()

	flags.StringVar(&tc.configPath, "config", "", "Config file (default: .topfew.yaml in the working directory or $HOME)")

	flags.IntVarP(&tc.count, "num", "n", config.DefaultCount, "Number of keys to report")
	flags.StringVarP(&tc.fields, "fields", "f", "", "Comma-separated 1-based fields forming the key (example: 1,4)")
	flags.StringVar(&tc.fieldSep, "fieldsep", "", "Literal field separator (default: runs of spaces and tabs)")
	flags.StringArrayVarP(&tc.grep, "grep", "g", nil, "Only count lines matching this regexp (repeatable)")
	flags.StringArrayVarP(&tc.vgrep, "vgrep", "v", nil, "Skip lines matching this regexp (repeatable)")
	flags.StringArrayVarP(&tc.sed, "sed", "s", nil, "Rewrite the key with s/regexp/replacement/ (repeatable)")
	flags.IntVarP(&tc.workers, "workers", "w", config.DefaultWorkers, "Parallel span workers (0 = use CPU count)")
	flags.StringVar(&tc.chunkSize, "chunk-size", config.DefaultChunkSize, "Nominal span size (example: 64MiB, 500kB)")
	flags.StringVarP(&tc.format, "format", "o", config.DefaultFormat, "Output format: text, json, yaml, table")
	flags.BoolVar(&tc.noColor, "no-color", config.DefaultNoColor, "Disable colored text output")

	flags.StringVar(&tc.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.BoolVar(&tc.logJSON, "log-json", config.DefaultLogJSON, "Write logs as JSON")
	flags.StringVar(&tc.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces and metrics")
	flags.BoolVar(&tc.otlpInsecure, "otlp-insecure", config.DefaultOTLPInsecure, "Disable TLS for the OTLP connection")
	flags.StringVar(&tc.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here on exit")
	flags.BoolVar(&tc.debugTrace, "debug-trace", false, "Sample every trace")

	return cmd
}

func (tc *TopCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := tc.loadConfig(cmd)
	if err != nil {
		return err
	}

	providers, err := tc.observabilityInit(cfg.Observability(version.Version))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	logger := providers.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	if providers.Shutdown != nil {
		defer func() {
			shutdownErr := providers.Shutdown(context.Background())
			if shutdownErr != nil {
				logger.Warn("observability shutdown failed", "error", shutdownErr)
			}
		}()
	}

	tracer := providers.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("topfew")
	}

	input := "-"
	if len(args) > 0 {
		input = args[0]
	}

	ctx, sp := tracer.Start(cmd.Context(), "topfew.run", trace.WithAttributes(
		attribute.String("topfew.input", input),
		attribute.String("topfew.format", cfg.Output.Format),
	))
	defer sp.End()

	res, err := tc.execute(ctx, cfg, providers, logger, args, cmd.InOrStdin())
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "run failed")

		return err
	}

	return render(cmd.OutOrStdout(), cfg.Output, res.Top)
}

// loadConfig layers explicitly set flags over the file and environment.
func (tc *TopCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(tc.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("num") {
		cfg.Output.Count = tc.count
	}

	if flags.Changed("workers") {
		cfg.Scan.Workers = tc.workers
	}

	if flags.Changed("chunk-size") {
		cfg.Scan.ChunkSize = tc.chunkSize
	}

	if flags.Changed("format") {
		cfg.Output.Format = tc.format
	}

	if flags.Changed("no-color") {
		cfg.Output.NoColor = tc.noColor
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level = tc.logLevel
	}

	if flags.Changed("log-json") {
		cfg.Logging.JSON = tc.logJSON
	}

	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = tc.otlpEndpoint
	}

	if flags.Changed("otlp-insecure") {
		cfg.Telemetry.OTLPInsecure = tc.otlpInsecure
	}

	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = tc.metricsFile
	}

	if flags.Changed("debug-trace") {
		cfg.Telemetry.DebugTrace = tc.debugTrace
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}

	return cfg, nil
}

func (tc *TopCommand) policy() (keyfinder.Policy, error) {
	fields, err := keyfinder.ParseFields(tc.fields)
	if err != nil {
		return nil, err
	}

	finder, err := keyfinder.New(keyfinder.Options{
		Fields:         fields,
		FieldSeparator: tc.fieldSep,
		Grep:           tc.grep,
		VGrep:          tc.vgrep,
		Sed:            tc.sed,
	})
	if err != nil {
		return nil, err
	}

	return finder, nil
}

func (tc *TopCommand) execute(
	ctx context.Context, cfg *config.Config, providers observability.Providers, logger *slog.Logger,
	args []string, stdin io.Reader,
) (topfew.Result, error) {
	policy, err := tc.policy()
	if err != nil {
		return topfew.Result{}, err
	}

	chunk, err := cfg.ChunkBytes()
	if err != nil {
		return topfew.Result{}, err
	}

	opts := topfew.Options{
		ChunkSize: chunk,
		Workers:   cfg.Scan.Workers,
		Logger:    logger,
		Tracer:    providers.Tracer,
	}

	if providers.Meter != nil {
		opts.Metrics, err = observability.NewScanMetrics(providers.Meter)
		if err != nil {
			return topfew.Result{}, err
		}
	}

	if len(args) == 0 {
		return topfew.FromReader(ctx, stdin, policy, cfg.Output.Count, opts)
	}

	return topfew.Scan(ctx, args[0], policy, cfg.Output.Count, opts)
}
