package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/pomotask/internal/store"
)

func main() {
	_ = godotenv.Load()

	// 1. Validate required environment variables
	requiredEnv := []string{"DATABASE_PATH", "POMOTASK_USER_ID"}
	for _, env := range requiredEnv {
		if os.Getenv(env) == "" {
			log.Fatalf("[MCP Tasks] Missing required environment variable: %s", env)
		}
	}

	dbPath := os.Getenv("DATABASE_PATH")
	userID := os.Getenv("POMOTASK_USER_ID")
	log.Println("[MCP Tasks] Starting pomotask MCP server v1.0.0")
	log.Printf("[MCP Tasks] Database: %s", dbPath)
	log.Printf("[MCP Tasks] User: %s", userID)

	st, err := store.NewSQLite(dbPath)
	if err != nil {
		log.Fatalf("[MCP Tasks] Failed to open database: %v", err)
	}
	defer st.Close()

	// 2. Create MCP server and register tools
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pomotask-tasks",
		Version: "v1.0.0",
	}, nil)
	NewTaskTools(st, userID).Register(server)

	// 3. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Tasks] Received shutdown signal")
		cancel()
	}()

	// 4. Start server with stdio transport
	log.Println("[MCP Tasks] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Printf("[MCP Tasks] Server error: %v", err)
		return
	}
	log.Println("[MCP Tasks] Server stopped gracefully")
}
