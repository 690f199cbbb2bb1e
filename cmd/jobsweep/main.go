package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stager/internal/bootstrap"
	"stager/internal/domain"
	"stager/internal/infra"
	"stager/internal/retention"
)

func main() {
	os.Exit(run())
}

func run() int {
	olderThan := flag.Duration("older-than", 24*time.Hour, "delete jobs whose terminal time is older than this")
	statesFlag := flag.String("states", "completed,failed,expired", "comma separated terminal states to sweep")
	limit := flag.Int("limit", 500, "maximum jobs examined per state")
	dryRun := flag.Bool("dry-run", false, "report what would be deleted without deleting")
	purgeBlobs := flag.Bool("purge-blobs", false, "also delete source and result objects")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	states, err := parseStates(*statesFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("jobsweep: invalid -states")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("jobsweep: open job store")
	}
	defer closeStore()

	var purger retention.Purger
	if *purgeBlobs {
		gw, err := bootstrap.OpenBlobs(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("jobsweep: open blob storage")
		}
		purger = gw
	}

	sweeper := retention.NewSweeper(store, purger, &logger)
	report, err := sweeper.Run(ctx, retention.Options{
		OlderThan:  *olderThan,
		States:     states,
		Limit:      *limit,
		DryRun:     *dryRun,
		PurgeBlobs: *purgeBlobs,
	})
	if err != nil {
		logger.Error().Err(err).Msg("jobsweep: sweep aborted")
	}

	_ = json.NewEncoder(os.Stdout).Encode(report)
	if err != nil || report.Failed > 0 {
		return 1
	}
	return 0
}

func parseStates(raw string) ([]domain.JobState, error) {
	var states []domain.JobState
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		state, err := domain.ParseJobState(part)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
