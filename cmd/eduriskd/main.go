package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"edurisk/internal/cfg"
	"edurisk/internal/dataset"
	"edurisk/internal/explain"
	"edurisk/internal/metrics"
	"edurisk/internal/ml"
	"edurisk/internal/scoring"
	"edurisk/internal/server"
	"edurisk/internal/storage"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	predictor := ml.NewPredictor(c.ModelDir, c.Thresholds)
	engine := initializeExplainers(c, predictor, m)

	hub := server.NewHub(m)
	go hub.Run()
	defer hub.Stop()

	svc := scoring.New(predictor, engine, store, hub, m)
	srv := server.New(c.ListenAddr, svc, store, hub, c.ModelDir, c.RecentLimit)

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("shutdown complete")
}

// initializeStorage opens the prediction store. The service runs without
// persistence if the store cannot be opened.
func initializeStorage(c cfg.Settings) *storage.Store {
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// initializeExplainers wires the explanation engine to the loaded model
// and reports the model's age. Without a loaded model there is nothing
// to explain.
func initializeExplainers(c cfg.Settings, predictor *ml.Predictor, m *metrics.Metrics) *explain.Engine {
	clf, artifact, err := predictor.Model()
	if err != nil {
		log.Warn().Err(err).Msg("no model loaded, explanations disabled")
		return nil
	}

	m.ModelAge.Set(time.Since(artifact.CreatedAt).Seconds())

	return explain.NewEngine(clf, explain.Config{
		BackgroundPath: dataset.BackgroundPath(c.ModelDir),
		KernelSamples:  c.KernelSamples,
		Seed:           c.ExplainSeed,
		TopK:           c.TopK,
	})
}
