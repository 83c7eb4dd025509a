package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeolun/flatchat/pkg/server"
	"github.com/aeolun/flatchat/pkg/userdb"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	// Configure logger with microsecond precision
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Command line flags
	configPath := flag.String("config", "~/.flatchat/config.toml", "Path to config file")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	wsPort := flag.Int("ws-port", 0, "WebSocket port (overrides config, 0 disables)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	metricsAddr := flag.String("metrics", "localhost:6060", "Address for metrics and pprof HTTP server (empty disables)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Handle --version flag
	if *version {
		fmt.Printf("FlatChat Server %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command-line flags override config file
	if *port != 0 {
		config.Server.TCPPort = *port
	}
	if *wsPort != 0 {
		config.Server.WebSocketPort = *wsPort
	}
	if *dbPath != "" {
		config.Server.DatabasePath = *dbPath
	}

	// Get database path with ~ expansion
	finalDBPath, err := config.GetDatabasePath()
	if err != nil {
		log.Fatalf("Failed to resolve database path: %v", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(finalDBPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := userdb.Open(finalDBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	serverConfig := config.ToServerConfig()
	metrics := server.NewMetrics()
	srv := server.NewServer(serverConfig, db, metrics)

	if *debug {
		server.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	log.Printf("Config: %s", *configPath)
	log.Printf("Database: %s", finalDBPath)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("FlatChat server %s started successfully", Version)
	log.Printf("Port: %d", serverConfig.TCPPort)
	if serverConfig.WebSocketPort > 0 {
		log.Printf("WebSocket: port %d (ws://server:%d/ws)", serverConfig.WebSocketPort, serverConfig.WebSocketPort)
	}

	// Metrics and pprof share one HTTP server
	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("Metrics and pprof on http://%s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	srv.Stop()
	log.Println("Server stopped")
}
