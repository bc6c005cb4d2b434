package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/teamloop/teamloop/internal/app"
	"github.com/teamloop/teamloop/internal/config"
)

var (
	dataDir  = flag.String("dir", "", "data directory (default: ~/.teamloop)")
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("teamloop v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	dir := *dataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Cannot resolve home directory: %v", err)
		}
		dir = filepath.Join(home, ".teamloop")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		log.Fatalf("Invalid data directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		log.Fatalf("Cannot create data directory: %v", err)
	}

	cfgPath := filepath.Join(absDir, "teamloop.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		fmt.Printf("Wrote default config to %s — set server.api_url and restart.\n", cfgPath)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	printBanner(absDir, cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		DataDir: absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
	}); err != nil {
		log.Fatalf("teamloop failed: %v", err)
	}
}

func showUsage() {
	fmt.Println("teamloop - native client for the teamloop collaboration backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  teamloop [-dir <directory>]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -dir      Data directory holding config, token and cache (default ~/.teamloop)")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("The config file is <dir>/teamloop.json; a default is written on first run.")
	fmt.Println("Open the viewer URL printed at startup in your browser to sign in.")
}

func printBanner(dir, cfgPath string, cfg config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║            teamloop client             ║")
	fmt.Println("╚════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Data Directory: %s\n", dir)
	fmt.Printf("Config File:    %s\n", cfgPath)
	fmt.Printf("Backend:        %s\n", cfg.Server.APIURL)
	if cfg.Viewer.HTTPAddr != "" {
		addr := cfg.Viewer.HTTPAddr
		if addr[0] == ':' {
			addr = "127.0.0.1" + addr
		}
		fmt.Printf("Viewer:         http://%s\n", addr)
	}
	fmt.Println()
	fmt.Println("Starting... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────")
}
