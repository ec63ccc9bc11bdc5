package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adpilot-ai/adpilot/internal/adapter/backend"
	"github.com/adpilot-ai/adpilot/internal/adapter/llm"
	"github.com/adpilot-ai/adpilot/internal/config"
	"github.com/adpilot-ai/adpilot/internal/ledger"
	store "github.com/adpilot-ai/adpilot/internal/repository"
	"github.com/adpilot-ai/adpilot/internal/service"
	"github.com/adpilot-ai/adpilot/internal/skills"
	"github.com/adpilot-ai/adpilot/internal/stream"
	"github.com/adpilot-ai/adpilot/internal/tools"
	handler "github.com/adpilot-ai/adpilot/internal/transport/http"
	"github.com/adpilot-ai/adpilot/policy"
)

func main() {
	// Load .env if present; real env wins.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	cfg := config.Load()

	log.Printf("Starting adpilot orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Model: %s via %s", cfg.LLMModel, cfg.LLMBaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize credit ledger
	ldg := ledger.New(db, cfg.InitialCredits)

	// Initialize skill catalog
	registry, err := skills.NewRegistry(skills.DefaultCatalog())
	if err != nil {
		log.Fatalf("Failed to build skill catalog: %v", err)
	}
	selector := skills.NewSelector(registry, cfg.MaxSkills)

	// Initialize utility executors
	utilities := tools.NewBuiltinRegistry(0)

	// Initialize model client
	llmClient := llm.NewClient(cfg.Mode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)

	// Initialize backend platform client
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	// Initialize policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize stream broker and service
	broker := stream.NewBroker()
	svc := service.New(db, ldg, registry, selector, utilities, llmClient, backendClient, broker, policyEngine, cfg)

	go svc.RunConfirmationTimeoutMonitor(ctx)

	// Create HTTP server
	e := handler.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
