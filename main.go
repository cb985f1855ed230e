package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/api"
	"github.com/davemorin/meural-manager/caption"
	"github.com/davemorin/meural-manager/config"
	"github.com/davemorin/meural-manager/geocode"
	"github.com/davemorin/meural-manager/meural"
	"github.com/davemorin/meural-manager/pipeline"
	"github.com/davemorin/meural-manager/resize"
	"github.com/davemorin/meural-manager/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	mongodb := &storage.MongoMetadataDB{Log: logger}
	if err := mongodb.Connect(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection); err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer mongodb.Close()

	remote := meural.New(cfg.MeuralUsername, cfg.MeuralPassword, logger)
	if cfg.MeuralBaseURL != "" {
		remote.BaseURL = cfg.MeuralBaseURL
	}

	geo := geocode.New(cfg.GeocodeUserAgent, logger)
	if cfg.GeocodeBaseURL != "" {
		geo.BaseURL = cfg.GeocodeBaseURL
	}

	captioner, err := caption.New(context.Background(), cfg.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal("failed to initialize caption backend", zap.Error(err))
	}
	if captioner == nil {
		logger.Info("caption backend not configured, uploads proceed without captions")
	}

	pipe := &pipeline.Pipeline{
		Remote: remote,
		Store:  mongodb,
		Geo:    geo,
		Cap:    captioner,
		Norm:   resize.New(logger),
		Log:    logger,
	}

	handlers := &api.Handlers{
		Remote:    remote,
		DB:        mongodb,
		Pipe:      pipe,
		Log:       logger,
		StaticDir: cfg.StaticDir,
	}

	addr := ":" + cfg.Port
	logger.Info("starting server", zap.String("addr", addr))

	if err := http.ListenAndServe(addr, handlers.Router()); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
