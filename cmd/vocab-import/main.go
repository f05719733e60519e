// Package main provides the vocabulary import CLI. It loads an OHDSI Athena
// CSV export into the local SQLite vocabulary store used by the dictionary
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/config"
	"github.com/indicate-eu/data-dictionary/internal/vocabulary"
)

func main() {
	cfg := config.LoadImportConfig()

	sourceDir := flag.String("source", cfg.SourceDir, "directory holding the Athena CSV export")
	dataDir := flag.String("data-dir", cfg.DataDir, "directory for the vocabulary database")
	batchSize := flag.Int("batch", cfg.BatchSize, "rows per insert transaction")
	flag.Parse()

	cfg.SourceDir = *sourceDir
	cfg.DataDir = *dataDir
	cfg.BatchSize = *batchSize

	logger := newLogger(cfg)

	if cfg.SourceDir == "" {
		fmt.Fprintln(os.Stderr, "usage: vocab-import -source <athena-export-dir> [-data-dir <dir>] [-batch <n>]")
		os.Exit(2)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		logger.WithError(err).Fatal("Failed to create data directory")
	}

	store, err := vocabulary.NewStore(cfg.VocabularyDBPath())
	if err != nil {
		logger.WithError(err).Fatal("Failed to open vocabulary store")
	}
	defer store.Close()

	// Stop cleanly on Ctrl-C; the current batch transaction rolls back.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("Interrupt received, stopping import")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"source":   cfg.SourceDir,
		"database": cfg.VocabularyDBPath(),
		"batch":    cfg.BatchSize,
	}).Info("Starting vocabulary import")

	loader := vocabulary.NewLoader(store, cfg.BatchSize, logger)
	stats, err := loader.ImportDirectory(ctx, cfg.SourceDir)
	if err != nil {
		logger.WithError(err).Fatal("Vocabulary import failed")
	}

	logger.WithFields(logrus.Fields{
		"concepts":      stats.Concepts,
		"relationships": stats.Relationships,
		"ancestors":     stats.Ancestors,
		"elapsed":       stats.Elapsed.String(),
	}).Info("Vocabulary import completed")
}

func newLogger(cfg *config.ImportConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
