// Command pipeline runs the land-sales batch: scan the source archives,
// publish chunk/manifest artifacts per year, and build the address indexes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"landsales/internal/artifact"
	"landsales/internal/config"
	"landsales/internal/pipeline"
)

var exitFunc = os.Exit

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sourceDir := flag.String("source", "", "override the source archive directory")
	outputDir := flag.String("out", "", "override the filesystem artifact root")
	chunkSize := flag.Int("chunk-size", 0, "override records per chunk")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		exitFunc(1)
		return
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration", zap.Error(err))
		exitFunc(1)
		return
	}
	if *sourceDir != "" {
		cfg.SourceDir = *sourceDir
	}
	if *outputDir != "" {
		cfg.Artifact.FSRoot = *outputDir
	}
	if *chunkSize > 0 {
		cfg.RecordsPerChunk = *chunkSize
	}

	ctx := context.Background()
	store, err := artifact.Open(ctx, artifact.Options{
		Driver: artifact.Driver(cfg.Artifact.Driver),
		FSRoot: cfg.Artifact.FSRoot,
		S3: artifact.S3Config{
			Region:          cfg.Artifact.S3.Region,
			Bucket:          cfg.Artifact.S3.Bucket,
			Endpoint:        cfg.Artifact.S3.Endpoint,
			AccessKeyID:     cfg.Artifact.S3.AccessKeyID,
			SecretAccessKey: cfg.Artifact.S3.SecretAccessKey,
			PathStyle:       cfg.Artifact.S3.PathStyle,
		},
	})
	if err != nil {
		logger.Error("artifact store", zap.Error(err))
		exitFunc(1)
		return
	}

	stats, err := pipeline.New(cfg, store, logger).Run(ctx)
	if err != nil {
		logger.Error("batch failed", zap.Error(err))
		exitFunc(1)
		return
	}

	fmt.Printf("archives: %d, data files: %d, parsed: %d, rejected: %d, source bytes: %d\n",
		stats.Archives, stats.DataFiles, stats.Parsed, stats.Rejected, stats.SourceBytes)
	fmt.Printf("years published: %v\n", stats.Years)
	if len(stats.FailedYears) > 0 {
		fmt.Printf("years failed: %v\n", stats.FailedYears)
		exitFunc(1)
	}
}
