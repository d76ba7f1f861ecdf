package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/codelane/docrelay/config"
	"github.com/codelane/docrelay/core"
	"github.com/codelane/docrelay/platform/telegram"

	_ "github.com/codelane/docrelay/agent/openaichat"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (default: ./docrelay.toml or ~/.docrelay/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("docrelay %s\ncommit:  %s\nbuilt:   %s\n", version, commit, buildTime)
		return
	}

	configPath := resolveConfigPath(*configFlag)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := bootstrapConfig(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created default config at %s\n", configPath)
		fmt.Println("Please edit this file to add your bot token and API key, then run docrelay again.")
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config (%s): %v\n", configPath, err)
		os.Exit(1)
	}

	setupLogger(cfg.Log.Level)
	slog.Info("config loaded", "path", configPath)

	builder, err := core.CreateAgentBuilder(cfg.Agent.Type, cfg.Agent.Options)
	if err != nil {
		slog.Error("failed to create agent builder", "type", cfg.Agent.Type, "error", err)
		os.Exit(1)
	}

	workDir, err := os.Getwd()
	if err != nil {
		slog.Error("failed to determine working directory", "error", err)
		os.Exit(1)
	}
	dataDir := cfg.Storage.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(workDir, dataDir)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "path", dataDir, "error", err)
		os.Exit(1)
	}

	tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token})
	if err != nil {
		slog.Error("failed to create telegram platform", "error", err)
		os.Exit(1)
	}

	sessions := core.NewSessionStore(cfg.Agent.Models, cfg.Agent.DefaultModel, builder)
	assembler := &core.Assembler{
		Files:       tg,
		StagingDir:  filepath.Join(dataDir, cfg.Storage.StagingDir),
		PicturesDir: filepath.Join(dataDir, cfg.Storage.PicturesDir),
		MaxDim:      cfg.Image.MaxDimension,
		Quality:     cfg.Image.Quality,
		Timeout:     60 * time.Second,
	}
	resolver := core.NewResolver(workDir, dataDir)
	engine := core.NewEngine(tg, sessions, assembler, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("docrelay is running", "platform", tg.Name(), "default_model", cfg.Agent.DefaultModel)
	tg.Run(ctx, engine)
	slog.Info("bye")
}

// resolveConfigPath determines which config file to use.
// Priority: explicit flag → ./docrelay.toml → ~/.docrelay/config.toml
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("docrelay.toml"); err == nil {
		return "docrelay.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".docrelay", "config.toml")
	}
	return "docrelay.toml"
}

func bootstrapConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	const tmpl = `# docrelay configuration

[log]
level = "info"

[telegram]
token = "your-telegram-bot-token"   # or set TELEGRAM_BOT_TOKEN

[agent]
type = "openaichat"
default_model = "claude-opus-4.1"

[agent.options]
api_key = "your-api-key"            # or set OPENAI_API_KEY
# base_url = "https://your-gateway/v1"

[storage]
data_dir = "data"

[image]
max_dimension = 512
quality = 60
`
	return os.WriteFile(path, []byte(tmpl), 0o644)
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
