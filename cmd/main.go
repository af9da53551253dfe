package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"campus-assistant/internal/api"
	"campus-assistant/internal/config"
	"campus-assistant/internal/embedding"
	"campus-assistant/internal/helper"
	"campus-assistant/internal/library"
	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/service"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to the YAML config")
	serve := flag.Bool("serve", false, "Run the HTTP API")
	ingest := flag.Bool("ingest", false, "Ingest the files given as arguments")
	query := flag.String("query", "", "Question to answer from the ingested documents")
	summarize := flag.Bool("summarize", false, "Summarize the ingested documents")
	quiz := flag.Bool("quiz", false, "Generate a quiz from the ingested documents")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(&cfg.Log)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building service")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing service")
		}
	}()

	if *ingest {
		files := make([]service.File, 0, flag.NArg())
		for _, p := range flag.Args() {
			files = append(files, service.File{Path: p, Name: filepath.Base(p)})
		}
		res, err := svc.Ingest(ctx, files)
		if err != nil {
			log.Fatal().Err(err).Msg("Error ingesting files")
		}
		log.Info().Msg(res.Message)
	}

	switch {
	case *serve:
		if err := api.NewServer(svc, &cfg.Server).ListenAndServe(ctx); err != nil {
			log.Fatal().Err(err).Msg("HTTP server stopped")
		}
	case *query != "":
		ans, err := svc.Chat(ctx, *query)
		if err != nil {
			log.Fatal().Err(err).Msg("Error querying")
		}
		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", *query)
		log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%v\n\n", ans.Sources)
		log.Info().Str("outcome", string(ans.Outcome)).Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", ans.Answer)
	case *summarize:
		res, err := svc.Summarize(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error summarizing")
		}
		log.Info().Str("outcome", string(res.Outcome)).Int("compression_rounds", res.CompressionRounds).Msg("Summary: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", res.Final)
	case *quiz:
		res, err := svc.Quiz(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error generating quiz")
		}
		log.Info().Str("outcome", string(res.Outcome)).Msg("Quiz: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		helper.PrettyPrint(res.Items)
	case !*ingest:
		log.Fatal().Msg("Please provide one of -serve, -ingest, -query, -summarize or -quiz")
	}
}

func setupLogger(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = log.With().Caller().Logger()
}

func buildService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}

	st, err := service.NewStore(ctx, cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("error opening chunk store: %w", err)
	}

	llm, err := llmservice.New(&cfg.LLM)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("error initializing llm: %w", err)
	}

	lib, err := library.New(&cfg.Library)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("error opening library: %w", err)
	}

	return service.New(cfg, service.Deps{
		Store:    st,
		Embedder: embedder,
		LLM:      llm,
		Lookup:   service.NewLookup(&cfg.Wikipedia),
		Library:  lib,
	}), nil
}
