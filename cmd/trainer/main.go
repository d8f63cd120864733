package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"edurisk/internal/cfg"
	"edurisk/internal/dataset"
	"edurisk/internal/ml"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ensureDataset(ctx, c); err != nil {
		log.Fatal().Err(err).Msg("dataset unavailable")
	}

	split, err := dataset.LoadAndSplit(c.DatasetPath, c.TestFraction, c.SplitSeed)
	if err != nil {
		log.Fatal().Err(err).Msg("dataset preparation failed")
	}

	result, err := ml.NewTrainer(c.Trainer).Run(split.TrainX, split.TrainY, split.TestX, split.TestY)
	if err != nil {
		log.Fatal().Err(err).Msg("training run failed")
	}

	if err := result.Persist(c.ModelDir); err != nil {
		log.Fatal().Err(err).Msg("failed to persist model registry")
	}

	background := dataset.SampleBackground(split.TrainX, dataset.DefaultBackgroundSize, c.SplitSeed)
	if err := dataset.WriteBackground(dataset.BackgroundPath(c.ModelDir), background); err != nil {
		log.Fatal().Err(err).Msg("failed to write explainer background sample")
	}

	for _, candidate := range result.Candidates {
		event := log.Info().
			Str("candidate", candidate.Name).
			Bool("trained", candidate.Trained)
		if candidate.Trained {
			event = event.
				Float64("accuracy", candidate.Metrics.Accuracy).
				Float64("auc", candidate.Metrics.AUC).
				Float64("cv_mean", candidate.CVMean)
		} else {
			event = event.Str("error", candidate.Error)
		}
		event.Msg("candidate result")
	}

	log.Info().
		Str("best", result.Best).
		Str("dir", c.ModelDir).
		Msg("model registry updated")
}

// ensureDataset downloads the dataset when a URL is configured and the
// local file does not exist yet.
func ensureDataset(ctx context.Context, c cfg.Settings) error {
	if _, err := os.Stat(c.DatasetPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if c.DatasetURL == "" {
		return errors.New("dataset file missing and no DATASET_URL configured")
	}

	log.Info().Str("url", c.DatasetURL).Str("path", c.DatasetPath).Msg("fetching dataset")
	_, err := dataset.Fetch(ctx, c.DatasetURL, c.DatasetPath, c.FetchTimeout)
	return err
}
