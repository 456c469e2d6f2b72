// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/karabox/internal/api/rest"
	"github.com/osa030/karabox/internal/api/ws"
	"github.com/osa030/karabox/internal/app/cache"
	"github.com/osa030/karabox/internal/app/filter"
	"github.com/osa030/karabox/internal/app/session"
	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/infra/auth"
	"github.com/osa030/karabox/internal/infra/config"
	songfile "github.com/osa030/karabox/internal/infra/library"
	"github.com/osa030/karabox/internal/infra/logger"
	"github.com/osa030/karabox/internal/infra/postgres"
	"github.com/osa030/karabox/internal/infra/redis"
)

var (
	app        = kingpin.New("karabox-server", "karabox karaoke session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
	migrateCmd     = app.Command("migrate", "Create the database tables and exit")
	importCmd      = app.Command("import-library", "Import a song library file into the database and exit")
	importFile     = importCmd.Arg("file", "Song library YAML file").Required().ExistingFile()
)

func init() {
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

	// Command-line flags win over the config file
	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if !*verbose && *logfile == "" {
		if err := logger.Init(logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level}); err != nil {
			zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
		}
	}

	switch command {
	case migrateCmd.FullCommand():
		err = migrate(cfg)
	case importCmd.FullCommand():
		err = importLibrary(cfg, *importFile)
	default:
		// Run server (defer ensures shutdown hook is called)
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	backends, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer backends.close()

	sessionMgr, err := session.NewManager(cfg, backends.store, backends.cache, backends.catalog)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	if err := sessionMgr.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover session: %w", err)
	}

	authority := auth.NewAuthority(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.TokenTTL())
	gateway := ws.NewGateway(sessionMgr, cfg)
	router := rest.NewServer(sessionMgr, cfg, authority, gateway).Router()

	// HTTP/2 cleartext alongside HTTP/1.1 for the websocket upgrades
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Execute startup hook if configured (after server is listening)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// Drop subscribers first so that no event is pushed during shutdown
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// backends holds the storage the session runs on.
type backends struct {
	store   store.Store
	cache   cache.Cache
	catalog library.Catalog
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends picks PostgreSQL and Redis when configured, in-memory
// implementations otherwise.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.Database.DSN != "" {
		pool, err := postgres.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		if !cfg.Database.SkipMigrations {
			if err := postgres.Migrate(ctx, pool); err != nil {
				b.close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		b.store = postgres.NewStore(pool)
		b.catalog = postgres.NewCatalog(pool)
	} else {
		zlog.Warn().Msg("No database configured, the playlist is kept in memory")
		b.store = store.NewMemory()
		songs, err := loadSongFile(cfg.Library.File)
		if err != nil {
			return nil, err
		}
		b.catalog = songs
	}

	if cfg.Redis.URL != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.cache = redis.New(rdb, cfg.Redis.Prefix, cfg.LockTTL())
	} else {
		zlog.Warn().Msg("No redis configured, the player state is kept in memory")
		b.cache = cache.NewMemory()
	}

	return b, nil
}

func loadSongFile(path string) (*songfile.Catalog, error) {
	if path == "" {
		zlog.Warn().Msg("No song library configured, the catalog is empty")
		return songfile.New(), nil
	}
	songs, err := songfile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load song library: %w", err)
	}
	zlog.Info().Msgf("Song library loaded: file=%s songs=%d", path, len(songs.Songs()))
	return songs, nil
}

// migrate creates the database tables.
func migrate(cfg *config.Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is not configured")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	zlog.Info().Msg("Database migrated")
	return nil
}

// importLibrary upserts every song of a library file into the database.
func importLibrary(cfg *config.Config, path string) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is not configured")
	}
	songs, err := songfile.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load song library: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	catalog := postgres.NewCatalog(pool)
	for _, s := range songs.Songs() {
		if err := catalog.UpsertSong(ctx, s); err != nil {
			return err
		}
	}
	zlog.Info().Msgf("Song library imported: file=%s songs=%d", path, len(songs.Songs()))
	return nil
}

// printFilters prints available filters.
func printFilters() {
	names := make([]string, 0)
	registry := filter.GetRegistered()
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		builtin := ""
		if filter.IsBuiltin(name) {
			builtin = " (built-in)"
		}
		fmt.Printf("  %-30s - %s%s [codes: %s]\n", f.Name(), f.Description(), builtin, codes)
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
