package main

import (
	"chat-relay/internal"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
)

// viewer serves the badger inspector against a stopped or running relay store.
func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if config.DebugPort == 0 {
		log.Fatal("DEBUG_PORT is required by the viewer")
	}

	// 2. Open Badger in Read-Only mode
	// BypassLockGuard allows opening while the relay holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Start Debug Server Only
	fmt.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
	database.StartDebugServer(db, config.DebugPort, "/inspect", RelayMapper)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}

func RelayMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	record := repositories.Describe(key, val)
	row.Type = record.Kind
	if record.Summary != "" {
		row.Detail = record.Summary
	}
	return row
}
