package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/agent"
	"wifihid-agent/internal/config"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitRestart asks the service manager to start us again.
const exitRestart = 3

func setupLogging(cfg config.LogConfig) {
	if cfg.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Log)

	// Print the version information on startup
	log.Printf("Starting WiFi HID Agent version: %s, commit: %s, built: %s", version, commit, date)

	a, err := agent.NewAgent(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Run() }()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Shutting down agent...")
		a.Shutdown()
		log.Println("Agent shut down gracefully.")
	case err := <-errc:
		if errors.Is(err, agent.ErrRestart) {
			log.Println("Agent stopped for restart.")
			os.Exit(exitRestart)
		}
		if err != nil {
			log.Fatalf("Agent stopped: %v", err)
		}
	}
}
