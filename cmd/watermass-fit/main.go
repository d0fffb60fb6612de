package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/pipeline"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/internal/watermass"
	"github.com/chrissnell/oceandata/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "YAML configuration whose range-rule classes label the reference data")
	outFile := flag.String("out", "", "Write the fitted classifier YAML here instead of stdout")
	metric := flag.String("metric", config.MetricStandardized, "Distance metric for the fitted model: standardized or euclidean")
	maxDistance := flag.Float64("max-distance", 0, "Leave samples farther than this from every centroid unclassified (0 disables)")
	skipEmpty := flag.Bool("skip-empty", false, "Skip classes with no labelled samples instead of failing")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] reference-file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	filename, _ := filepath.Abs(*cfgFile)
	cfgData, err := config.NewYAMLProvider(filename).LoadConfig()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			log.Errorf("Failed to create %s: %v", *outFile, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	opts := watermass.FitOptions{Metric: *metric, MaxDistance: *maxDistance, SkipEmpty: *skipEmpty}
	if err := fit(context.Background(), cfgData, opts, flag.Args(), out, log.Component("watermass-fit")); err != nil {
		log.Errorf("watermass-fit: %v", err)
		os.Exit(1)
	}
}

// fit labels the reference files with the configured range rules, fits a
// nearest-centroid model to the labels and writes it as classifier YAML.
func fit(ctx context.Context, cfg *config.ConfigData, opts watermass.FitOptions, paths []string, out io.Writer, logger *zap.SugaredLogger) error {
	logger = log.OrNop(logger)
	if cfg.Classifier.Strategy != config.StrategyRangeRule {
		return fmt.Errorf("reference labelling needs the %s strategy, config has %q", config.StrategyRangeRule, cfg.Classifier.Strategy)
	}
	model, err := watermass.NewModel(cfg.Classifier)
	if err != nil {
		return err
	}
	rules := model.(watermass.RangeRule)
	if len(rules.Classes) == 0 {
		return errors.New("configuration defines no classes to fit")
	}

	p, err := pipeline.New(cfg, logger.Named("pipeline"))
	if err != nil {
		return err
	}

	var samples []types.CanonicalSample
	for _, res := range p.ProcessFiles(ctx, paths) {
		if res.Err != nil {
			return fmt.Errorf("reference file %s: %w", res.Path, res.Err)
		}
		samples = append(samples, res.Dataset.Samples...)
	}

	labels := watermass.Labels(samples, rules, watermass.OptionsFrom(cfg.Classifier))
	fitted, warnings, err := watermass.FitNearestCentroid(samples, labels, rules.Classes, opts)
	for _, w := range warnings {
		logger.Warn(w)
	}
	if err != nil {
		return err
	}
	for _, c := range fitted.Classes {
		logger.Infof("class [%s] centroid T=%.3f S=%.3f", c.Name, c.Centroid.Temperature, c.Centroid.Salinity)
	}

	fittedCfg := watermass.Config(fitted)
	fittedCfg.ClassifyBad = cfg.Classifier.ClassifyBad
	b, err := config.MarshalClassifierYAML(fittedCfg)
	if err != nil {
		return fmt.Errorf("could not encode fitted model: %w", err)
	}
	_, err = out.Write(b)
	return err
}
