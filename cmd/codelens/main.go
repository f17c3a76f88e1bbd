package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"codelens/internal/mcp"
	"codelens/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version information and exit")
	rootPath := flag.String("root", ".", "Project root to index and serve")
	dbPath := flag.String("db", "", "Index database path (default: <root>/.codelens/index.db)")
	workers := flag.Int("workers", 0, "Indexing and embedding concurrency (default: NumCPU)")
	watch := flag.Bool("watch", false, "Keep the index current via file system events")
	abortOnEmbed := flag.Bool("abort-on-embed-failure", false, "Fail indexing when the embedding backend is down instead of degrading")
	flag.Parse()

	if *showVersion {
		fmt.Printf("codelens MCP server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	// Startup info goes to stderr, stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)
	log.Printf("codelens v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s, Vector Extension: %v",
		storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)

	server, err := mcp.NewServer(mcp.Config{
		RootPath:            *rootPath,
		DBPath:              *dbPath,
		Workers:             *workers,
		Watch:               *watch,
		AbortOnEmbedFailure: *abortOnEmbed,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("Server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}

	log.Println("Server stopped")
}
