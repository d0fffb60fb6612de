// Package pipeline runs input files through detection, decoding,
// normalization, quality control and classification.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/decoders"
	"github.com/chrissnell/oceandata/internal/decoders/cnv"
	"github.com/chrissnell/oceandata/internal/decoders/delimited"
	"github.com/chrissnell/oceandata/internal/decoders/netcdf"
	"github.com/chrissnell/oceandata/internal/decoders/odv"
	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/normalize"
	"github.com/chrissnell/oceandata/internal/qc"
	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/internal/watermass"
	"github.com/chrissnell/oceandata/pkg/config"
)

// Result is the outcome of processing one file.  Dataset is nil when the
// file could not be decoded; Report is always set.
type Result struct {
	Path    string
	Dataset *types.Dataset
	Report  *report.Report
	Err     error
}

// Pipeline holds the stages built from one configuration.  It is safe to
// use from several goroutines.
type Pipeline struct {
	cfg          config.ConfigData
	logger       *zap.SugaredLogger
	odv          decoders.Decoder
	cnv          decoders.Decoder
	delimited    decoders.Decoder
	netcdf       decoders.FileDecoder
	normalizer   *normalize.Normalizer
	qc           *qc.Controller
	model        watermass.Model
	classifyOpts watermass.Options
}

// New builds a pipeline.  The configuration is copied; later changes to cfg
// do not affect the pipeline.
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) (*Pipeline, error) {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = log.OrNop(logger)

	model, err := watermass.NewModel(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("could not build classifier: %w", err)
	}

	p := &Pipeline{
		cfg:          *cfg,
		logger:       logger,
		odv:          odv.New(logger.Named("odv")),
		cnv:          cnv.New(logger.Named("cnv")),
		delimited:    delimited.New(logger.Named("delimited")),
		netcdf:       netcdf.New(logger.Named("netcdf")),
		normalizer:   normalize.New(normalize.OptionsFrom(cfg.Normalizer), logger.Named("normalize")),
		qc:           qc.New(cfg.QC, logger.Named("qc"), qc.WithDefaultLatitude(cfg.Normalizer.DefaultLatitude)),
		model:        model,
		classifyOpts: watermass.OptionsFrom(cfg.Classifier),
	}
	return p, nil
}

// ProcessFile runs one file through every stage.  Detection and decoding
// failures are returned as *types.FileError together with a Result whose
// Report carries the error.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Result, error) {
	rep := report.New(path)
	res := &Result{Path: path, Report: rep}
	defer rep.Finish()

	fail := func(stage string, err error) (*Result, error) {
		ferr := &types.FileError{Path: path, Stage: stage, Err: err}
		rep.Fail(ferr)
		res.Err = ferr
		p.logger.Warnf("pipeline [%s] failed: %v", path, ferr)
		return res, ferr
	}

	format, err := formats.DetectFile(path)
	if err != nil {
		return fail(types.StageDetect, err)
	}
	rep.Format = string(format)

	records, warnings, err := p.decode(ctx, format, path)
	if err != nil {
		return fail(types.StageDecode, err)
	}
	rep.Records = len(records)

	samples, notices := p.normalizer.Normalize(records)
	for _, n := range notices {
		warnings = append(warnings, n.Error())
	}
	if err := ctx.Err(); err != nil {
		return fail(types.StageNormalize, err)
	}

	samples, qcWarnings := p.qc.Validate(samples)
	warnings = append(warnings, qcWarnings...)

	ds := &types.Dataset{Source: path, Format: string(format), Samples: samples}
	watermass.ClassifyDataset(ds, p.model, p.classifyOpts)

	rep.Fill(ds, warnings)
	res.Dataset = ds
	p.logger.Infof("pipeline [%s] processed %d records from %s with %d warnings", format, len(records), path, len(warnings))
	return res, nil
}

func (p *Pipeline) decode(ctx context.Context, format formats.Format, path string) ([]types.RawRecord, []string, error) {
	var d decoders.Decoder
	switch format {
	case formats.NetCDF:
		return p.netcdf.DecodeFile(ctx, path)
	case formats.ODV:
		d = p.odv
	case formats.CNV:
		d = p.cnv
	case formats.Delimited:
		d = p.delimited
	default:
		return nil, nil, &types.UnsupportedFormatError{Path: path, Reason: fmt.Sprintf("no decoder for %s", format)}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()
	return d.Decode(ctx, bufio.NewReader(f), path)
}
