package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/inkfold-io/rebind/adapter"
	redisadapter "github.com/inkfold-io/rebind/adapter/redis"
	"github.com/inkfold-io/rebind/adapter/webhook"
	"github.com/inkfold-io/rebind/cli/config"
	"github.com/inkfold-io/rebind/cli/tui"
	"github.com/inkfold-io/rebind/log"
	"github.com/inkfold-io/rebind/metrics"
	"github.com/inkfold-io/rebind/runtime"
	"github.com/inkfold-io/rebind/store"
	"github.com/inkfold-io/rebind/types"
)

// Exit codes for compress.
const (
	exitSuccess         = 0
	exitValidationError = 1
	exitContextCrash    = 2
	exitWriteFailure    = 3
)

// DefaultQuality matches the common sweet spot for lossy re-encodes.
const DefaultQuality = 75

// CompressCommand returns the compress command, the only command that
// modifies anything.
func CompressCommand() *cli.Command {
	return &cli.Command{
		Name:  "compress",
		Usage: "Re-encode the images inside an EPUB and rebuild the archive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the input EPUB",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path (default: <input>-compressed.epub)",
			},
			&cli.IntFlag{
				Name:    "quality",
				Aliases: []string{"q"},
				Usage:   "Target quality, 1-100",
				Value:   DefaultQuality,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Target image format: webp or avif",
				Value:   string(types.FormatWebP),
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Execution context count (0 = auto, clamped to 2-8)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the JSON operation report to this path (\"-\" for stderr)",
			},
			ConfigFlag,
			TUIFlag,
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress summary output",
			},
		},
		Action: compressAction,
	}
}

// compressChoice holds the resolved compression settings after merging
// flags over config file values.
type compressChoice struct {
	input   string
	output  string
	quality int
	format  string
	workers int
	report  string
	quiet   bool
	useTUI  bool

	storage config.StorageConfig
	adapter config.AdapterConfig
}

// resolveChoice merges CLI flags over an optional rebind.yaml.
// Flags always win; config fills gaps; compiled-in defaults come last.
func resolveChoice(c *cli.Context) (compressChoice, error) {
	choice := compressChoice{
		input:   c.String("input"),
		output:  c.String("output"),
		quality: c.Int("quality"),
		format:  c.String("format"),
		workers: c.Int("workers"),
		report:  c.String("report"),
		quiet:   c.Bool("quiet"),
		useTUI:  c.Bool("tui"),
	}

	path := c.String("config")
	if path == "" {
		// An adjacent rebind.yaml is picked up implicitly, like most tools
		// treat their dotfiles.
		if _, err := os.Stat("rebind.yaml"); err == nil {
			path = "rebind.yaml"
		}
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return choice, err
		}
		if !c.IsSet("quality") && cfg.Quality != nil {
			choice.quality = *cfg.Quality
		}
		if !c.IsSet("format") && cfg.Format != "" {
			choice.format = cfg.Format
		}
		if !c.IsSet("workers") && cfg.Workers != nil {
			choice.workers = *cfg.Workers
		}
		if choice.output == "" && cfg.Output != "" {
			choice.output = cfg.Output
		}
		choice.storage = cfg.Storage
		choice.adapter = cfg.Adapter
	}

	if choice.output == "" {
		choice.output = defaultOutputPath(choice.input)
	}
	return choice, nil
}

// defaultOutputPath derives "<input>-compressed.epub" from the input path.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "-compressed" + ext
}

func compressAction(c *cli.Context) error {
	choice, err := resolveChoice(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitValidationError)
	}

	archive, err := os.ReadFile(choice.input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read %s: %v", choice.input, err), exitValidationError)
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	opID := uuid.New().String()
	opts := runtime.Options{
		Quality:   choice.quality,
		Format:    types.TargetFormat(choice.format),
		Workers:   choice.workers,
		OpID:      opID,
		Collector: metrics.NewCollector(choice.format, choice.quality, runtime.ClampWorkers(choice.workers), opID),
	}
	if choice.quiet {
		opts.Logger = log.Nop()
	} else {
		opts.Logger = log.NewLogger(log.OpMeta{
			OpID:    opID,
			Format:  types.TargetFormat(choice.format),
			Quality: choice.quality,
		})
	}

	var blob []byte
	var report *runtime.Report
	if choice.useTUI {
		blob, report, err = compressWithTUI(ctx, cancel, archive, opts, choice)
	} else {
		blob, report, err = runtime.Compress(ctx, archive, opts)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("compression failed: %v", err), errorExitCode(err))
	}

	if err := persistOutput(ctx, choice, blob); err != nil {
		return cli.Exit(fmt.Sprintf("cannot write output: %v", err), exitWriteFailure)
	}

	if choice.report != "" {
		if err := runtime.WriteReport(report, choice.report); err != nil {
			return cli.Exit(fmt.Sprintf("cannot write report: %v", err), exitWriteFailure)
		}
	}

	if err := publishCompletion(ctx, choice, report); err != nil {
		// Notification failure never fails the operation; the archive is
		// already safely written.
		fmt.Fprintf(os.Stderr, "Warning: completion notification failed: %v\n", err)
	}

	if !choice.quiet && !choice.useTUI {
		printSummary(report, choice.output)
	}
	return cli.Exit("", exitSuccess)
}

// compressWithTUI runs the operation behind a Bubble Tea progress view.
func compressWithTUI(ctx context.Context, cancel context.CancelFunc, archive []byte, opts runtime.Options, choice compressChoice) ([]byte, *runtime.Report, error) {
	model := tui.NewCompressModel(filepath.Base(choice.input), choice.format, choice.quality, cancel)
	p := tui.NewCompressProgram(model)

	opts.Logger = log.Nop() // log lines would tear the TUI
	opts.OnProgress = func(percent float64) {
		p.Send(tui.ProgressMsg(percent))
	}

	type result struct {
		blob   []byte
		report *runtime.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		blob, report, err := runtime.Compress(ctx, archive, opts)
		done <- result{blob, report, err}
		p.Send(tui.DoneMsg{Report: report, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	r := <-done
	return r.blob, r.report, r.err
}

// persistOutput writes the finished archive to the configured sink.
func persistOutput(ctx context.Context, choice compressChoice, blob []byte) error {
	if choice.storage.Backend == "s3" || store.IsS3Target(choice.storage.Path) {
		bucket, prefix := store.ParseS3Target(choice.storage.Path)
		sink, err := store.NewS3Sink(ctx, store.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.storage.Region,
			Endpoint:     choice.storage.Endpoint,
			UsePathStyle: choice.storage.S3PathStyle,
		})
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		return sink.Put(ctx, filepath.Base(choice.output), blob)
	}

	dir := filepath.Dir(choice.output)
	sink, err := store.NewFSSink(dir)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()
	return sink.Put(ctx, filepath.Base(choice.output), blob)
}

// publishCompletion sends the completion event through the configured
// adapter, if any.
func publishCompletion(ctx context.Context, choice compressChoice, report *runtime.Report) error {
	a, err := buildAdapter(choice.adapter)
	if err != nil || a == nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.Publish(ctx, adapter.EventFromReport(report, choice.output))
}

// buildAdapter constructs the configured notification adapter.
// Returns (nil, nil) when no adapter is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		wcfg := webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if retries >= 0 {
			wcfg.Retries = retries
		}
		return webhook.New(wcfg)
	case "redis":
		rcfg := redisadapter.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: redisadapter.DefaultRetries,
		}
		if retries >= 0 {
			rcfg.Retries = retries
		}
		return redisadapter.New(rcfg)
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", cfg.Type)
	}
}

// errorExitCode maps a classified compression error to an exit code.
func errorExitCode(err error) int {
	switch {
	case errors.Is(err, runtime.ErrValidation):
		return exitValidationError
	case errors.Is(err, runtime.ErrExecutionContext):
		return exitContextCrash
	default:
		return exitValidationError
	}
}

func printSummary(report *runtime.Report, output string) {
	saved := 0.0
	if report.ArchiveBytesIn > 0 {
		saved = float64(report.ArchiveBytesIn-report.ArchiveBytesOut) / float64(report.ArchiveBytesIn) * 100
	}

	fmt.Printf("\nop_id=%s, outcome=%s, duration=%s\n",
		report.OpID,
		report.Outcome,
		(time.Duration(report.DurationMs) * time.Millisecond).String(),
	)

	fmt.Printf("\n=== Compression Result ===\n")
	fmt.Printf("Output:       %s\n", output)
	fmt.Printf("Format:       %s (quality %d)\n", report.Format, report.Quality)
	fmt.Printf("Workers:      %d\n", report.Workers)
	fmt.Printf("Files:        %d\n", report.Files)
	fmt.Printf("Transcoded:   %d\n", report.Transcoded)
	fmt.Printf("Kept:         %d\n", report.Kept)
	fmt.Printf("Failed:       %d\n", report.Failed)
	fmt.Printf("Input Size:   %d bytes\n", report.ArchiveBytesIn)
	fmt.Printf("Output Size:  %d bytes\n", report.ArchiveBytesOut)
	fmt.Printf("Saved:        %.1f%%\n", saved)
}
