// Package main is the levelport command: it converts T3D level exports
// between engine generations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/batch"
	"github.com/cory-johannsen/levelport/internal/config"
	"github.com/cory-johannsen/levelport/internal/observability"
	"github.com/cory-johannsen/levelport/internal/pathutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (optional)")
	in := flag.String("in", "", "source T3D file, or directory with -batch (required)")
	out := flag.String("out", "", `output file, "-" for stdout, or directory with -batch (default: output.dir)`)
	from := flag.String("from", "", "source generation: ue1, ue2, ue3, ue4")
	to := flag.String("to", "", "target generation: ue1, ue2, ue3, ue4")
	batchMode := flag.Bool("batch", false, "convert every matching file under -in")
	watchMode := flag.Bool("watch", false, "reconvert -in whenever it changes")
	withExtract := flag.Bool("extract", false, "export referenced binary assets with the configured extractors")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("loading config: %v", err)
		return 2
	}
	if *from != "" {
		cfg.Conversion.Source = *from
	}
	if *to != "" {
		cfg.Conversion.Target = *to
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("%v", err)
		return 2
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Printf("initializing logger: %v", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, *withExtract, logger, os.Stderr)
	if err != nil {
		logger.Error("initializing converter", zap.Error(err))
		return 2
	}
	defer a.Close()

	logger.Info("starting conversion",
		zap.String("in", *in),
		zap.String("pair", a.opts.Pair().String()),
		zap.Bool("batch", *batchMode),
		zap.Bool("watch", *watchMode),
		zap.Bool("extract", a.coord != nil),
	)

	code := 0
	switch {
	case *watchMode:
		outDir := *out
		if outDir == "" || outDir == "-" {
			outDir = cfg.Output.Dir
		}
		if err := a.watch(ctx, *in, outDir); err != nil {
			logger.Error("watch stopped", zap.Error(err))
			code = 1
		}
	case *batchMode:
		outDir := *out
		if outDir == "" {
			outDir = cfg.Output.Dir
		}
		report, err := a.runBatch(ctx, *in, outDir)
		if err != nil {
			logger.Error("batch conversion", zap.Error(err))
			code = 1
		}
		if report != nil && report.Failed() > 0 {
			code = 1
		}
	default:
		target := *out
		if target == "" {
			target, err = pathutil.SafeJoin(cfg.Output.Dir, pathutil.ChangeExtension(filepath.Base(*in), cfg.Output.Extension))
			if err != nil {
				logger.Error("output path", zap.Error(err))
				return 2
			}
		}
		f := a.convertFile(ctx, *in, target, os.Stdout)
		a.finished(ctx, f)
		if f.Status() != batch.StatusOK {
			code = 1
		}
	}

	if a.coord != nil {
		logger.Info("asset export", zap.Int("extractor_runs", a.coord.Runs()))
	}
	logger.Info("done", zap.Int("exit_code", code), zap.Duration("elapsed", time.Since(start)))
	if code != 0 {
		fmt.Fprintln(os.Stderr, "levelport: conversion finished with errors")
	}
	return code
}
