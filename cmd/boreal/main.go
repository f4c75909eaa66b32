// Package main is the CLI entrypoint for Boreal. It provides subcommands for
// running the server (serve), managing database migrations (migrate),
// managing user accounts (admin), and printing version information
// (version). The serve command loads configuration, connects to
// PostgreSQL, runs pending migrations, constructs every collaborator named
// in the server's dependency graph, starts the HTTP API server and
// WebSocket gateway, and handles graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/boreal-chat/boreal/internal/api"
	"github.com/boreal-chat/boreal/internal/auth"
	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/database"
	"github.com/boreal-chat/boreal/internal/federation"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/media"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/presence"
	"github.com/boreal-chat/boreal/internal/session"
	"github.com/boreal-chat/boreal/internal/snowflake"
	"github.com/boreal-chat/boreal/internal/store"
	"github.com/boreal-chat/boreal/internal/voice"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "admin":
		if err := runAdmin(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// printUsage prints the CLI usage information.
func printUsage() {
	fmt.Println("Boreal — Federated Chat and Voice Platform")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  boreal <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the Boreal server")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  admin     Manage user accounts")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  boreal.toml (or set BOREAL_CONFIG_PATH)")
	fmt.Println("  Env prefix:   BOREAL_ (e.g. BOREAL_DATABASE_URL)")
}

// runServe starts the full Boreal server: loads config, connects to
// PostgreSQL, runs migrations, constructs the store, federation verifier,
// auth service, session and presence registries, voice SFU, media store,
// and gateway, starts the HTTP API server, and handles graceful shutdown
// on SIGINT/SIGTERM.
func runServe() error {
	logger := setupLogger("info", "json")

	logger.Info("starting Boreal",
		slog.String("version", version),
		slog.String("commit", commit),
	)

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reconfigure logger with loaded settings.
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath), slog.String("mode", string(cfg.Mode)))

	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.Database.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	st := store.New(db.Pool)

	// The token verifier is mode-aware: Auth Hub and Standalone sign with a
	// local RSA keypair, Community Servers fetch the hub's public key
	// lazily on first verify.
	verifier, err := federation.New(cfg)
	if err != nil {
		return fmt.Errorf("constructing federation verifier: %w", err)
	}

	// Auth is nil on Community Servers: they never accept local
	// registration or login, only tokens minted by the named Auth Hub.
	var authSvc *auth.Service
	if !cfg.IsCommunity() {
		authSvc = auth.New(st, verifier, cfg.Auth.BreachCheck)
	}

	sessions := session.New(func(serverID models.ULID) []models.ULID {
		members, err := st.MembersForServer(context.Background(), serverID)
		if err != nil {
			logger.Error("resolving server members for broadcast", slog.String("error", err.Error()))
			return nil
		}
		ids := make([]models.ULID, len(members))
		for i, m := range members {
			ids[i] = m.UserID
		}
		return ids
	})

	// presenceReg is the §9 multi-instance extension point: InProcess by
	// default, RedisBacked when cache.url is set. Nothing in this build
	// wires cross-instance session fan-out, so an empty cache URL is the
	// expected common case.
	var presenceReg presence.Registry
	if cfg.Cache.URL != "" {
		redisBacked, err := presence.NewRedisBacked(cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connecting to presence cache: %w", err)
		}
		presenceReg = redisBacked
		logger.Info("presence backed by external cache", slog.String("url", cfg.Cache.URL))
	} else {
		inProcess := presence.New()
		defer inProcess.Close()
		presenceReg = inProcess
	}

	sfu, err := voice.New(logger)
	if err != nil {
		return fmt.Errorf("constructing voice SFU: %w", err)
	}

	mediaStore, err := media.New(ctx, cfg.Media, logger)
	if err != nil {
		return fmt.Errorf("constructing media store: %w", err)
	}

	gen := snowflake.New(workerID())

	gw := gateway.New(verifier, sessions, presenceReg, sfu, st, logger)

	srv := api.NewServer(db, cfg, st, verifier, authSvc, sessions, presenceReg, sfu, mediaStore, gw, gen, version, logger)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	logger.Info("Boreal ready", slog.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("Boreal stopped")
	return nil
}

// workerID returns this process's snowflake worker id, read from
// BOREAL_WORKER_ID. Single-process deployments never need to set it; the
// default of 0 only collides with another generator if two processes share
// a clock tick and a worker id, which matters only once a deployment runs
// more than one Boreal process against the same database.
func workerID() int {
	v := os.Getenv("BOREAL_WORKER_ID")
	if v == "" {
		return 0
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return id
}

// runMigrate handles the migrate subcommand with up/down/status operations.
func runMigrate() error {
	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	switch action {
	case "up":
		return database.MigrateUp(cfg.Database.URL, logger)
	case "down":
		return database.MigrateDown(cfg.Database.URL, logger)
	case "status":
		v, dirty, err := database.MigrateStatus(cfg.Database.URL)
		if err != nil {
			return err
		}
		fmt.Printf("Migration version: %d\n", v)
		fmt.Printf("Dirty: %v\n", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %s (use: up, down, status)", action)
	}
}

// runAdmin handles admin subcommands for user account management. There is
// no suspend/admin-flag pair here: the users table carries no such column,
// account moderation is a server-level ban (see internal/store bans), and
// instance-wide admin is not yet a modeled concept.
func runAdmin() error {
	if len(os.Args) < 3 {
		fmt.Println("Usage: boreal admin <action>")
		fmt.Println()
		fmt.Println("Actions:")
		fmt.Println("  create-user  Create a new user account")
		fmt.Println("  list-users   List all user accounts")
		return nil
	}

	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	st := store.New(db.Pool)

	switch os.Args[2] {
	case "create-user":
		if len(os.Args) < 5 {
			return fmt.Errorf("usage: boreal admin create-user <username> <password>")
		}
		username, password := os.Args[3], os.Args[4]

		hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		user, err := st.CreateUser(ctx, username, hash)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		fmt.Printf("Created user %s (ID: %s)\n", user.Username, user.ID)

	case "list-users":
		rows, err := db.Pool.Query(ctx,
			`SELECT id, username, display_name, created_at FROM users ORDER BY created_at`)
		if err != nil {
			return fmt.Errorf("listing users: %w", err)
		}
		defer rows.Close()

		fmt.Printf("%-28s %-20s %-20s %s\n", "ID", "Username", "DisplayName", "Created")
		fmt.Println(strings.Repeat("-", 90))
		for rows.Next() {
			var id, username, displayName string
			var createdAt time.Time
			if err := rows.Scan(&id, &username, &displayName, &createdAt); err != nil {
				return fmt.Errorf("scanning user: %w", err)
			}
			fmt.Printf("%-28s %-20s %-20s %s\n", id, username, displayName, createdAt.Format(time.RFC3339))
		}

	default:
		return fmt.Errorf("unknown admin action: %s", os.Args[2])
	}

	return nil
}

// runVersion prints version information and exits.
func runVersion() {
	fmt.Printf("Boreal %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
}

// configPath returns the config file path from BOREAL_CONFIG_PATH env var
// or the default "boreal.toml".
func configPath() string {
	if p := os.Getenv("BOREAL_CONFIG_PATH"); p != "" {
		return p
	}
	return "boreal.toml"
}

// setupLogger creates a slog.Logger with the given level and format.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
