package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bequbed/jellyfin-trakt-sync/config"
	"github.com/bequbed/jellyfin-trakt-sync/services/history"
	"github.com/bequbed/jellyfin-trakt-sync/services/jellyfin"
	"github.com/bequbed/jellyfin-trakt-sync/services/trakt"
)

func main() {
	configFlag := flag.String("config", "", "path to config.json (default $TRAKTSYNC_CONFIG or ./config.json)")
	flag.Parse()

	// Determine config path (flag, env, or default)
	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("TRAKTSYNC_CONFIG")
	}
	if configPath == "" {
		configPath = "config.json"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.NewManager(configPath)); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("sync interrupted")
			return
		}
		log.Printf("sync aborted: %v", err)
	}
}

// setupLogging mirrors the standard logger into a rotating file.
func setupLogging(cfg config.LogConfig) {
	if cfg.File == "" {
		return
	}
	logDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		return
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func openCache(ctx context.Context, cfg config.CacheSettings) (*history.Cache, func(), error) {
	switch cfg.Backend {
	case config.CacheBackendSQLite:
		store, err := history.OpenSQLiteStore(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return history.NewCache(store), func() { _ = store.Close() }, nil
	case config.CacheBackendJSON, "":
		return history.NewCache(history.NewJSONStore(afero.NewOsFs(), cfg.Path)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func run(ctx context.Context, cfgManager *config.Manager) error {
	log.Printf("Starting Jellyfin to Trakt sync")

	existed := cfgManager.Exists()
	settings, err := cfgManager.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !existed {
		log.Printf("Created default config file at %s. Please edit it.", cfgManager.Path())
		return nil
	}

	setupLogging(settings.Log)

	if err := settings.Validate(); err != nil {
		log.Printf("Please fill out the config file before running: %v", err)
		return nil
	}

	cache, closeCache, err := openCache(ctx, settings.Cache)
	if err != nil {
		return fmt.Errorf("open sync cache: %w", err)
	}
	defer closeCache()
	if err := cache.Load(ctx); err != nil {
		return fmt.Errorf("load sync cache: %w", err)
	}

	timeout := settings.Sync.RequestTimeout()

	jf := jellyfin.NewClient(settings.Jellyfin.ServerURL, settings.Jellyfin.DeviceID, timeout)
	if err := jf.Authenticate(ctx, settings.Jellyfin.Username, settings.Jellyfin.Password); err != nil {
		return fmt.Errorf("connect to jellyfin: %w", err)
	}

	clock := trakt.SystemClock{}
	traktClient := trakt.NewClient(settings.Trakt.ClientID, settings.Trakt.ClientSecret, timeout)
	store := trakt.NewTokenStore(cfgManager)
	cred, err := store.Load()
	if err != nil {
		return err
	}
	broker := trakt.NewBroker(traktClient, store, clock, trakt.ConsolePrompter{Out: os.Stdout})
	cred, err = broker.EnsureAuthenticated(ctx, cred)
	if err != nil {
		return err
	}

	profile, err := traktClient.GetUserProfile(ctx, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("verify trakt authentication: %w", err)
	}
	log.Printf("[trakt] connected as %s", profile.Username)

	engine := history.NewEngine(clock, settings.Sync.ReportInterval())
	items := engine.FetchCandidates(ctx, jf, settings.Sync.DaysToLookBack, settings.Sync.Limit)
	if len(items) == 0 {
		log.Printf("Nothing to sync")
	}

	summary, err := engine.Run(ctx, items, cache, cred, trakt.NewScrobbler(traktClient, clock))
	if err != nil {
		return err
	}

	if err := cfgManager.MarkSynced(time.Now()); err != nil {
		log.Printf("warning: failed to record last sync time: %v", err)
	}

	log.Printf("Sync completed: %d items synced, %d already synced, %d unmappable, %d errors",
		summary.Reported, summary.SkippedAlreadySynced, summary.Unmappable, summary.Failed)
	return nil
}
