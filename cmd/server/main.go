// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tunedeck/tunedeck/internal/api/httpapi"
	"github.com/tunedeck/tunedeck/internal/app/filter"
	"github.com/tunedeck/tunedeck/internal/app/importer"
	"github.com/tunedeck/tunedeck/internal/app/playback"
	"github.com/tunedeck/tunedeck/internal/app/session"
	"github.com/tunedeck/tunedeck/internal/infra/config"
	"github.com/tunedeck/tunedeck/internal/infra/logger"
	"github.com/tunedeck/tunedeck/internal/infra/spotify"
	"github.com/tunedeck/tunedeck/internal/infra/voicesim"
	"github.com/tunedeck/tunedeck/internal/infra/youtube"
)

var (
	app        = kingpin.New("tunedeck-server", "tunedeck playback orchestration server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}

	importers, err := buildImporters(cfg, spotifyClient)
	if err != nil {
		return errors.Wrap(err, "failed to build importer chain")
	}

	filters, err := filter.NewChainFromConfig(cfg.EnabledFilters())
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	transport, err := buildTransport(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to build transport")
	}
	defer transport.Close()

	manager := session.NewManager(session.Options{
		Playback: playback.Config{
			MaxConsecutiveFailures: cfg.Playback.MaxConsecutiveFailures,
			QueueDisplayLimit:      cfg.Playback.QueueDisplayLimit,
		},
		IdleTimeout: cfg.IdleTimeout(),
	}, spotifyClient, transport, importers, filters)
	defer manager.Close()

	handler := httpapi.NewHandler(manager)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(handler.Mux(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running startup hooks.
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the manager first so event streams terminate.
	manager.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// buildImporters assembles the playlist importer chain from config.
func buildImporters(cfg *config.Config, spotifyClient *spotify.Client) (*importer.Chain, error) {
	type importerSettings struct {
		MaxTracks       int `mapstructure:"max_tracks"`
		FetchTimeoutSec int `mapstructure:"fetch_timeout_sec"`
	}

	var providers []importer.Provider
	for _, ic := range cfg.Importers {
		var settings importerSettings
		if ic.Settings != nil {
			if err := mapstructure.Decode(ic.Settings, &settings); err != nil {
				return nil, errors.Wrapf(err, "importer %s settings", ic.Type)
			}
		}

		switch ic.Type {
		case "spotify":
			providers = append(providers, importer.NewSpotifyProvider(spotifyClient, settings.MaxTracks))
		case "youtube":
			yt := youtube.New()
			if settings.FetchTimeoutSec > 0 {
				yt.SetTimeout(time.Duration(settings.FetchTimeoutSec) * time.Second)
			}
			providers = append(providers, importer.NewYouTubeProvider(yt, settings.MaxTracks))
		default:
			return nil, errors.Newf("unknown importer type: %s", ic.Type)
		}
	}
	return importer.NewChain(providers...), nil
}

// buildTransport assembles the voice transport from config.
func buildTransport(cfg *config.Config) (*voicesim.Transport, error) {
	if cfg.Transport.Type != "simulated" {
		return nil, errors.Newf("unknown transport type: %s", cfg.Transport.Type)
	}

	var settings struct {
		DefaultTrackSec int `mapstructure:"default_track_sec"`
		TickMs          int `mapstructure:"tick_ms"`
	}
	if cfg.Transport.Settings != nil {
		if err := mapstructure.Decode(cfg.Transport.Settings, &settings); err != nil {
			return nil, errors.Wrap(err, "transport settings")
		}
	}

	return voicesim.New(voicesim.Options{
		DefaultTrackDuration: time.Duration(settings.DefaultTrackSec) * time.Second,
		TickInterval:         time.Duration(settings.TickMs) * time.Millisecond,
	}), nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for name, factory := range filter.GetRegistered() {
		f := factory()
		fmt.Printf("  %-20s - %s\n", name, f.Description())
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
