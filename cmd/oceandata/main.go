package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/export"
	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/pipeline"
	"github.com/chrissnell/oceandata/internal/storage"
	"github.com/chrissnell/oceandata/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

type options struct {
	outDir string
	format string
	store  bool
}

func main() {
	cfgFile := flag.String("config", "", "Path to YAML configuration (built-in defaults when empty)")
	outDir := flag.String("out", "", "Directory for per-file output; output goes to stdout when empty")
	format := flag.String("format", "", "Output format: json, msgpack, odv or csv (overrides the config)")
	noStore := flag.Bool("no-store", false, "Do not write results to the configured storage backends")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("oceandata %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfgData, err := loadConfig(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(*debug || cfgData.Debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{outDir: *outDir, format: *format, store: !*noStore}
	failed, err := run(ctx, cfgData, opts, flag.Args(), os.Stdout, log.Component("oceandata"))
	if err != nil {
		log.Errorf("oceandata: %v", err)
		os.Exit(1)
	}
	if failed > 0 {
		log.Warnf("%d of %d files failed", failed, flag.NArg())
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (*config.ConfigData, error) {
	if cfgFile == "" {
		d := config.Default()
		return &d, nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider = config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", filename, err)
	}
	return cfgData, nil
}

// run processes paths and returns how many of them failed.  The error is
// reserved for problems that stop the whole run.
func run(ctx context.Context, cfg *config.ConfigData, opts options, paths []string, stdout io.Writer, logger *zap.SugaredLogger) (int, error) {
	logger = log.OrNop(logger)
	if opts.format != "" {
		cfg.Output.Format = opts.format
	}

	p, err := pipeline.New(cfg, logger.Named("pipeline"))
	if err != nil {
		return 0, err
	}

	var sinks *storage.Manager
	if opts.store {
		sinks, err = storage.NewManager(ctx, cfg.Storage, logger.Named("storage"))
		if err != nil {
			return 0, err
		}
		defer sinks.Close()
		if err := sinks.CheckHealth(ctx); err != nil {
			return 0, fmt.Errorf("storage is not healthy: %w", err)
		}
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return 0, fmt.Errorf("could not create output directory: %w", err)
		}
	}

	names := outputNames(paths, export.Extension(cfg.Output.Format))
	failed := 0
	for i, res := range p.ProcessFiles(ctx, paths) {
		if res.Err != nil {
			failed++
			logger.Errorf("file [%s] failed: %v", res.Path, res.Err)
		} else {
			logger.Infof("file [%s] processed: %d samples, classes %v", res.Path, res.Report.Samples, res.Report.ClassCounts)
		}

		if sinks != nil {
			if err := sinks.Store(ctx, res.Report, res.Dataset); err != nil {
				failed++
				continue
			}
		}

		if res.Dataset == nil && !reportOnly(cfg.Output.Format) {
			continue
		}
		if err := writeResult(opts.outDir, names[i], cfg.Output.Format, res, stdout); err != nil {
			failed++
			logger.Errorf("file [%s] could not be written: %v", res.Path, err)
		}
	}
	return failed, nil
}

// reportOnly reports whether a format can be written for a failed file
func reportOnly(format string) bool {
	return format == "" || format == config.FormatJSON || format == config.FormatMsgPack
}

// outputNames returns the output file name for each input.  Inputs sharing
// a base name get their position appended so that no output overwrites
// another.
func outputNames(paths []string, ext string) []string {
	bases := make([]string, len(paths))
	count := make(map[string]int, len(paths))
	for i, p := range paths {
		bases[i] = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		count[bases[i]]++
	}
	names := make([]string, len(paths))
	for i, b := range bases {
		if count[b] > 1 {
			b = fmt.Sprintf("%s-%d", b, i+1)
		}
		names[i] = b + ext
	}
	return names
}

func writeResult(outDir, name, format string, res pipeline.Result, stdout io.Writer) error {
	b := export.Bundle{Report: res.Report, Dataset: res.Dataset}
	if outDir == "" {
		return export.Write(stdout, format, b)
	}

	f, err := os.Create(filepath.Join(outDir, name))
	if err != nil {
		return err
	}
	if err := export.Write(f, format, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
