package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xiaot623/chatd/internal/adapter/llm"
	"github.com/xiaot623/chatd/internal/config"
	"github.com/xiaot623/chatd/internal/policy"
	"github.com/xiaot623/chatd/internal/repository"
	"github.com/xiaot623/chatd/internal/secret"
	"github.com/xiaot623/chatd/internal/service"
	"github.com/xiaot623/chatd/internal/tools"
	handler "github.com/xiaot623/chatd/internal/transport/http"
	"github.com/xiaot623/chatd/internal/transport/ws"
)

// devSecretKey seals provider keys when CHATD_SECRET_KEY is unset.
const devSecretKey = "chatd-dev-secret-change-me"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "chatd",
		Short:        "Multi-tenant LLM chat service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP and WebSocket server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(config.Load())
			},
		},
		&cobra.Command{
			Use:   "providers",
			Short: "Print the provider catalog",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printJSON(cmd, llm.NewRegistry(config.Load().MockMode()).ListProviders())
			},
		},
		&cobra.Command{
			Use:   "tools",
			Short: "Print the tool catalog",
			RunE: func(cmd *cobra.Command, args []string) error {
				specs, err := tools.LoadCatalogOrDefault(config.Load().ToolCatalogPath)
				if err != nil {
					return err
				}
				return printJSON(cmd, tools.NewRegistry(specs).ListServers())
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(cfg *config.Config) error {
	log.Printf("Starting chatd...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize key sealer
	secretKey := cfg.SecretKey
	if secretKey == "" {
		log.Printf("WARN: CHATD_SECRET_KEY is not set, using the development key")
		secretKey = devSecretKey
	}
	sealer, err := secret.NewSealer(secretKey)
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}

	// Initialize provider registry
	adapters := llm.NewRegistry(cfg.MockMode())

	// Initialize tool registry
	specs, err := tools.LoadCatalogOrDefault(cfg.ToolCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load tool catalog: %w", err)
	}
	toolRegistry := tools.NewRegistry(specs)
	log.Printf("Loaded %d tool servers", len(specs))

	if _, err := os.Stat(cfg.ToolCatalogPath); err == nil {
		watcher, err := tools.NewCatalogWatcher(toolRegistry, cfg.ToolCatalogPath, 200*time.Millisecond)
		if err != nil {
			log.Printf("WARN: tool catalog hot reload disabled: %v", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.ToolPolicyPath)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Initialize service
	svc := service.New(db, adapters, toolRegistry, policyEngine, sealer, cfg)

	hub := ws.NewHub()
	server := handler.NewServer(cfg, svc, hub)

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Println("Shutting down chatd...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("chatd stopped")
	return nil
}
