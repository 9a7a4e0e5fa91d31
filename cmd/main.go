// Package main is the entry point for the chat gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/candor-ai/chat-gateway/internal/config"
	"github.com/candor-ai/chat-gateway/internal/gateway"
	"github.com/candor-ai/chat-gateway/internal/store"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/chat-gateway/.env first
	configEnv := filepath.Join(homeDir, ".config", "chat-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			runGatewayServer(os.Args[2:])
			return
		case "configs":
			printConfigs()
			return
		case "version", "-v", "--version":
			fmt.Printf("chat-gateway %s\n", Version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	// Default: start the server.
	runGatewayServer(os.Args[1:])
}

// resolveServeConfig resolves the config for the serve command.
// Checks: user flag -> filesystem locations -> embedded configs.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string) ([]byte, string, error) {
	// If user specified a config path, read it directly
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	homeDir, _ := os.UserHomeDir()

	// Search filesystem in order of preference
	searchPaths := []string{}
	if homeDir != "" {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "chat-gateway", "config.yaml"),
		)
	}
	searchPaths = append(searchPaths,
		"configs/config.yaml",
		"config.yaml",
	)

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	// Fall back to embedded config
	if data, err := getEmbeddedConfig("config"); err == nil {
		return data, "(embedded) config.yaml", nil
	}

	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// runGatewayServer starts the gateway server
func runGatewayServer(args []string) {
	// Load .env files from standard locations
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args) // ExitOnError handles errors

	setupLogging(*debug)

	configData, configSource, err := resolveServeConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("No config file found. Specify --config path")
	}

	log.Info().
		Str("version", Version).
		Str("config", configSource).
		Msg("chat gateway starting")

	cfg, err := config.LoadFromBytes(configData)
	if err != nil {
		log.Fatal().Err(err).Str("config", configSource).Msg("failed to load configuration")
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Int("providers", len(cfg.Providers)).
		Bool("store", cfg.Store.Enabled).
		Msg("configuration loaded")

	var requestLog *store.RequestLog
	if cfg.Store.Enabled {
		requestLog, err = store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open request log")
		}
		defer requestLog.Close()
	}

	gw, err := gateway.New(cfg, requestLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("chat gateway stopped")
}

// setupLogging configures zerolog console output for startup; the gateway
// swaps in the configured logger once config is loaded.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printConfigs lists the embedded config templates
func printConfigs() {
	names, err := listEmbeddedConfigs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list configs: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Embedded configs:")
	fmt.Println("  " + strings.Join(names, "\n  "))
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("chat-gateway - canonical chat-completion gateway")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chat-gateway [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)       Start the gateway server (same as serve)")
	fmt.Println("  serve        Start the gateway server")
	fmt.Println("  configs      List embedded config templates")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  chat-gateway serve [--config FILE] [--debug]")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  chat-gateway serve                 Start with the default config")
	fmt.Println("  chat-gateway serve --config my.yaml")
	fmt.Println("  chat-gateway serve --debug         Verbose logging")
}
