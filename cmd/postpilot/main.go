// postpilot serves the PostPilot content-generation API and bundles the
// operational tooling around it: a stuck-record sweeper and a provider
// listing for checking which AI backends are configured.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/postpilot/postpilot/pkg/agents"
	"github.com/postpilot/postpilot/pkg/config"
	"github.com/postpilot/postpilot/pkg/database"
	"github.com/postpilot/postpilot/pkg/httpapi"
	"github.com/postpilot/postpilot/pkg/llm"
	"github.com/postpilot/postpilot/pkg/storage"
	"github.com/postpilot/postpilot/pkg/tasks"
)

var (
	// Global flags
	configFile string

	// Serve command flags
	memoryStore  bool
	profilesPath string
	sweepEvery   time.Duration

	// Sweep command flags
	olderThan time.Duration
	dryRun    bool
)

func main() {
	// Provider API keys usually live in .env during development; a missing
	// file is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "postpilot",
		Short: "AI-assisted LinkedIn content generation backend",
		Long: `PostPilot generates LinkedIn content with AI assistance.

It manages themes, suggests post topics, drafts simple posts and long-form
articles, improves existing drafts, and produces cover-image prompts. All
generation runs as background tasks with retry and stuck-state recovery.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: .postpilot.json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(providersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server with its background task workers and
stuck-record reaper.

Examples:
  # Serve against PostgreSQL using .postpilot.json
  postpilot serve

  # Serve with the in-memory store (no database needed)
  postpilot serve --memory`,
		RunE: runServe,
	}

	cmd.Flags().BoolVar(&memoryStore, "memory", false, "Use the in-memory store instead of PostgreSQL")
	cmd.Flags().StringVar(&profilesPath, "profiles", "", "Path to YAML agent-profile overrides")
	cmd.Flags().DurationVar(&sweepEvery, "sweep-interval", time.Minute, "How often the reaper scans for stuck records")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	profiles := agents.DefaultProfiles()
	if profilesPath != "" {
		profiles, err = agents.LoadProfiles(profilesPath)
		if err != nil {
			return err
		}
	}

	factory := llm.NewFactory(cfg)
	provider, err := factory.Default()
	if err != nil {
		return err
	}

	orch := tasks.NewOrchestrator(store, tasks.Agents{
		Topics:  agents.NewTopicAgent(provider, profiles.For("topics")),
		Content: agents.NewContentAgent(provider, profiles.For("content")),
		Improve: agents.NewImprovementAgent(provider, profiles.For("improve")),
		Image:   agents.NewImagePromptAgent(provider, profiles.For("image")),
	}, tasks.Options{
		Workers:    cfg.Tasks.Workers,
		MaxRetries: cfg.Tasks.MaxRetries,
		Backoff:    cfg.Tasks.RetryBackoff(),
		Model:      modelName(cfg),
	})
	orch.Start(ctx)
	defer orch.Stop()

	reaper := tasks.NewReaper(store, cfg.Tasks.StaleAfter())
	go reaper.Run(ctx, sweepEvery)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewServer(store, orch, reaper).Handler(),
	}

	// Shut down cleanly on interrupt so in-flight tasks finish their writes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	log.Printf("PostPilot API listening on http://%s", addr)
	log.Printf("Provider: %s, workers: %d", provider.Name(), cfg.Tasks.Workers)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release records stuck in the processing state",
		Long: `Scan for themes and posts whose processing flag has been set longer
than the staleness window and mark them timed out.

Examples:
  # Show what would be released without touching anything
  postpilot sweep --dry-run

  # Release anything stuck for more than 10 minutes
  postpilot sweep --older-than 10m`,
		RunE: runSweep,
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Staleness window (default: config stale_after_minutes)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List stuck records without releasing them")

	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	staleness := olderThan
	if staleness <= 0 {
		staleness = cfg.Tasks.StaleAfter()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := tasks.NewReaper(store, staleness).Sweep(ctx, dryRun)
	if err != nil {
		return err
	}

	verb := "released"
	if report.DryRun {
		verb = "would release"
	}
	for _, rec := range report.Records {
		fmt.Printf("  %s %-5s %s %q (stuck since %s)\n",
			verb, rec.Kind, rec.ID, rec.Title, rec.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Printf("%s: %d themes, %d posts\n", verb, report.ThemesReleased, report.PostsReleased)
	return nil
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported AI providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			factory := llm.NewFactory(cfg)
			for _, key := range factory.Available() {
				marker := " "
				if key == cfg.AI.DefaultProvider {
					marker = "*"
				}
				keyStatus := "no API key"
				if cfg.Provider(key).APIKey != "" {
					keyStatus = "API key set"
				}
				fmt.Printf("%s %-8s %s\n", marker, key, keyStatus)
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// openStore connects to PostgreSQL and runs migrations, or hands back the
// in-memory store when the --memory flag is set. The returned cleanup
// closes the underlying connection; the store itself does not own it.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	if memoryStore {
		log.Printf("Using in-memory store (data is lost on exit)")
		return storage.NewMemoryStore(), func() {}, nil
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return storage.NewPostgresStore(db.DB), func() { db.Close() }, nil
}

// modelName resolves the model recorded on generated posts, mirroring the
// per-provider defaults the adapters fall back to.
func modelName(cfg *config.Config) string {
	key := cfg.AI.DefaultProvider
	if model := cfg.Provider(key).Model; model != "" {
		return model
	}
	switch key {
	case "grok":
		return "grok-4-latest"
	case "gemini":
		return "gemini-2.0-flash"
	default:
		return "gpt-4"
	}
}
