package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/cexll/pomotask/internal/auth"
	"github.com/cexll/pomotask/internal/chat"
	"github.com/cexll/pomotask/internal/config"
	"github.com/cexll/pomotask/internal/dispatcher"
	"github.com/cexll/pomotask/internal/tasksync"
	"github.com/cexll/pomotask/internal/web"
	"github.com/cexll/pomotask/internal/webhook"
	"github.com/cexll/pomotask/internal/whatsapp"
)

var (
	loadDotEnv         = godotenv.Load
	newDispatcher      = dispatcher.New
	newWebHandler      = web.NewHandler
	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Printf("Starting pomotask server...")
	log.Printf("Port: %d", cfg.Port)
	if cfg.DatabasePath != "" {
		log.Printf("Database: %s", cfg.DatabasePath)
	}
	log.Printf("Summary workers: %d, queue size: %d, max attempts: %d", cfg.SummaryWorkers, cfg.SummaryQueueSize, cfg.SummaryMaxAttempts)

	st, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	boards := tasksync.NewRegistry(st).WithLimit(cfg.BoardCacheSize)
	verifier := auth.NewVerifier(cfg.AuthJWTSecret)

	assistant := chat.New(cfg.Chat())
	log.Printf("Chat providers: %s", strings.Join(assistant.Providers(), ", "))

	opts := webhook.Options{
		Store:           st,
		Notifier:        boards,
		Token:           cfg.WebhookToken,
		DebugBufferSize: cfg.DebugWebhookBuffer,
		Env: webhook.EnvCheck{
			HasEvolutionURL: cfg.EvolutionAPIURL != "",
			HasEvolutionKey: cfg.EvolutionAPIKey != "",
			HasInstanceName: cfg.EvolutionInstanceName != "",
			InstanceName:    cfg.EvolutionInstanceName,
		},
	}

	// Keep Sender and Broadcaster nil interfaces when the gateway is not configured
	if wa := whatsapp.New(cfg.WhatsApp()); wa != nil {
		log.Printf("WhatsApp instance: %s", cfg.EvolutionInstanceName)
		summaries := newDispatcher(dispatcher.NewSummaryRunner(st, wa), cfg.Dispatcher())
		defer summaries.Shutdown(ctx)

		opts.Sender = wa
		opts.Broadcaster = dispatcher.NewBroadcaster(st, summaries)
	}
	hook := webhook.NewHandler(opts)

	webHandler, err := newWebHandler(st, boards, assistant)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	// Setup router
	r := mux.NewRouter()

	// Webhook routes go first so the /api subrouter does not shadow them
	hook.RegisterRoutes(r, verifier.RequireAPI)
	webHandler.RegisterRoutes(r, verifier.RequireAPI, verifier.RequirePage)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Root endpoint with info
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":"pomotask","status":"running","whatsapp":%t}`, opts.Sender != nil)
	}).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Webhook endpoint: http://localhost%s%s", addr, webhook.WebhookPath)
	log.Printf("Health check: http://localhost%s/health", addr)
	log.Printf("Dashboard: http://localhost%s/dashboard", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}
