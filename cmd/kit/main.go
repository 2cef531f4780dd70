package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/drey/internal/worker"
	"github.com/dyluth/drey/pkg/taskboard"
)

func main() {
	// Exit with appropriate code
	os.Exit(run())
}

// run contains the main logic and returns an exit code.
// This separation makes the logic testable and ensures deferred functions run.
func run() int {
	// Load configuration from environment variables
	config, err := worker.LoadConfig()
	if err != nil {
		log.Printf("[ERROR] Configuration error: %v", err)
		return 1
	}

	log.Printf("[INFO] Worker kit starting for agent='%s' instance='%s'", config.AgentName, config.InstanceName)

	ctx := context.Background()

	// Parse Redis URL
	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		log.Printf("[ERROR] Invalid REDIS_URL: %v", err)
		return 1
	}

	// Create task board client
	client, err := taskboard.NewClient(redisOpts, config.InstanceName)
	if err != nil {
		log.Printf("[ERROR] Failed to create task board client: %v", err)
		return 1
	}
	defer func() {
		log.Printf("[DEBUG] Closing task board client...")
		if err := client.Close(); err != nil {
			log.Printf("[ERROR] Error closing task board client: %v", err)
		}
	}()

	// Verify Redis connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		cancel()
		log.Printf("[ERROR] Failed to connect to Redis: %v", err)
		return 1
	}
	cancel()
	log.Printf("[INFO] Connected to Redis")

	// Create engine with the configured command as its task handler
	engine := worker.New(config, client, worker.CommandHandler(config.Command))

	// Set up context for graceful shutdown
	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	// Set up signal handling for SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start engine in background goroutine
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(engineCtx)
	}()

	// Wait for shutdown signal or engine error
	select {
	case sig := <-sigChan:
		log.Printf("[INFO] Received signal: %v", sig)
	case err := <-engineDone:
		if err != nil {
			log.Printf("[ERROR] Engine error: %v", err)
			return 1
		}
		// Engine exited normally (shouldn't happen in normal operation)
		log.Printf("[INFO] Engine exited")
		return 0
	}

	// Graceful shutdown: cancel the engine context and wait with a timeout
	log.Printf("[INFO] Initiating graceful shutdown...")
	engineCancel()

	shutdownTimer := time.NewTimer(10 * time.Second)
	defer shutdownTimer.Stop()

	select {
	case err := <-engineDone:
		if err != nil {
			log.Printf("[ERROR] Engine shutdown error: %v", err)
			return 1
		}
		log.Printf("[INFO] Engine shutdown complete")

	case <-shutdownTimer.C:
		log.Printf("[ERROR] Engine shutdown timeout - forcing exit")
		return 1
	}

	log.Printf("[INFO] Kit shutdown complete")
	return 0
}
