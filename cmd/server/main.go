package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MissVz/EQiLevel/internal/config"
	"github.com/MissVz/EQiLevel/internal/history"
	"github.com/MissVz/EQiLevel/internal/httpserver"
	"github.com/MissVz/EQiLevel/internal/objectives"
	"github.com/MissVz/EQiLevel/internal/orchestrator"
	"github.com/MissVz/EQiLevel/internal/store"
	"github.com/MissVz/EQiLevel/internal/transcribe"
	"github.com/MissVz/EQiLevel/internal/tutor"
	"github.com/MissVz/EQiLevel/internal/voice"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Storage is optional: the tutor keeps answering when Postgres is down,
	// it just stops persisting turns.
	var db *store.Store
	if cfg.DatabaseURL != "" {
		s, err := store.Open(startCtx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("postgres unavailable, running without persistence: %v", err)
		} else if err := s.Migrate(startCtx); err != nil {
			log.Printf("migration failed, running without persistence: %v", err)
			s.Close()
		} else {
			db = s
		}
	}

	hist := history.New(cfg.RedisAddr)
	defer hist.Close()

	catalog := objectives.NewCatalog(cfg.ObjectivesPath)
	gen := tutor.NewClient(cfg.OpenAIKey, cfg.OpenAIModelID, catalog)
	stt := transcribe.NewClient(cfg.WhisperURL, cfg.WhisperModel)

	var logger orchestrator.TurnLogger
	if db != nil {
		logger = db
	}
	orch := orchestrator.New(gen, logger, hist,
		time.Duration(cfg.GenerateTimeoutSeconds)*time.Second)

	voiceHandler := voice.NewHandler(orch, stt, voice.Config{
		MaxStreamDuration: time.Duration(cfg.MaxStreamSeconds) * time.Second,
		StalePartialAfter: time.Duration(cfg.StalePartialSeconds) * time.Second,
		AltLanguage:       cfg.AltLanguage,
	})

	e := httpserver.New()
	handlers := httpserver.Handlers{
		Pipeline:    orch,
		STT:         stt,
		Catalog:     catalog,
		Voice:       voiceHandler,
		AdminAPIKey: cfg.AdminAPIKey,
		AltLanguage: cfg.AltLanguage,
	}
	if db != nil {
		handlers.DB = db
		defer db.Close()
	}
	handlers.Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := server.Shutdown(shutCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
