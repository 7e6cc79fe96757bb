package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voidworks/venting-vault/backend/internal/config"
	"github.com/voidworks/venting-vault/backend/internal/handler"
	"github.com/voidworks/venting-vault/backend/internal/model/companion"
	"github.com/voidworks/venting-vault/backend/internal/service/ai"
	conversationservice "github.com/voidworks/venting-vault/backend/internal/service/conversation"
	memoryservice "github.com/voidworks/venting-vault/backend/internal/service/memory"
	moderationservice "github.com/voidworks/venting-vault/backend/internal/service/moderation"
	"github.com/voidworks/venting-vault/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	comp := companion.Default()

	// Open the durable log; a broken file degrades to memory-only mode
	// and the conversation simply stops surviving restarts.
	var vaultStore store.Store
	sqliteStore, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		log.Printf("warning: failed to open vault store at %s: %v", cfg.Store.Path, err)
		log.Println("continuing with in-memory store only")
		vaultStore = store.NewMemoryStore()
	} else {
		defer sqliteStore.Close()
		vaultStore = sqliteStore
		log.Printf("vault store ready at %s", cfg.Store.Path)
	}

	// Initialize AI services
	var aiService *ai.Service
	var moderationSvc *moderationservice.Service
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to create chat model: %v", err)
			log.Println("continuing without AI functionality")
		} else {
			aiService, err = ai.NewService(ctx, chatModel, comp)
			if err != nil {
				log.Printf("warning: failed to initialize AI service: %v", err)
				aiService = nil
			} else {
				log.Println("AI service initialized successfully")
			}
		}

		// Verdicts only run on the pinned-temperature review model;
		// moderation stays off when it cannot be created.
		reviewModel, err := cfg.AI.NewReviewModel(ctx)
		if err != nil {
			log.Printf("warning: failed to create review model, skipping moderation: %v", err)
		} else {
			moderationSvc, err = moderationservice.NewService(reviewModel)
			if err != nil {
				log.Printf("warning: failed to initialize moderation service: %v", err)
				moderationSvc = nil
			} else {
				log.Println("Moderation service initialized successfully")
			}
		}
	} else {
		log.Println("Ark credentials not configured, skipping AI initialization")
	}

	// Cold start: restore the log, seed the welcome, maybe greet.
	var greeter memoryservice.Greeter
	if aiService != nil {
		greeter = aiService
	}
	memorySvc := memoryservice.NewService(vaultStore, greeter, comp)
	initialLog := memorySvc.Initialize(ctx)
	log.Printf("vault restored with %d messages", len(initialLog))

	var generator conversationservice.Generator
	if aiService != nil {
		generator = aiService
	}
	var moderator conversationservice.Moderator
	if moderationSvc != nil {
		moderator = moderationSvc
	}
	convSvc := conversationservice.NewService(comp, generator, moderator, vaultStore, initialLog)
	defer convSvc.DrainReviews()

	router := handler.NewRouter(comp, convSvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Venting Vault backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
