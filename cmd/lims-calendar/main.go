package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/lims-calendar/internal/application"
	"github.com/example/lims-calendar/internal/config"
	httptransport "github.com/example/lims-calendar/internal/http"
	"github.com/example/lims-calendar/internal/notify"
	"github.com/example/lims-calendar/internal/persistence"
	"github.com/example/lims-calendar/internal/persistence/memory"
	"github.com/example/lims-calendar/internal/persistence/sqlite"
	"github.com/example/lims-calendar/internal/persistence/sqlite/migration"
	"github.com/example/lims-calendar/internal/timeslot"
)

const usage = `usage: lims-calendar [command] [flags]

commands:
  serve      run the HTTP API (default)
  add-user   register a user and print their access key
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	switch command {
	case "serve":
		flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
		flagSet.SetOutput(stderr)
		flagSet.IntVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "HTTP listen port")
		flagSet.StringVar((*string)(&cfg.Storage), "storage", string(cfg.Storage), "storage backend: sqlite or memory")
		if err := flagSet.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
		return serve(ctx, cfg, logger)
	case "add-user":
		var params application.IssueAccessKeyParams
		var role string
		flagSet := pflag.NewFlagSet("add-user", pflag.ContinueOnError)
		flagSet.SetOutput(stderr)
		flagSet.StringVar(&params.UserID, "id", "", "user id (required)")
		flagSet.StringVar(&params.DisplayName, "name", "", "display name (defaults to the id)")
		flagSet.StringVar(&role, "role", string(application.RoleMember), "role: member, operator or admin")
		if err := flagSet.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
		params.Role = application.Role(strings.ToLower(strings.TrimSpace(role)))
		return addUser(ctx, cfg, params, stdout, logger)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

// storage is what every persistence backend offers the process.
type storage interface {
	persistence.EventRepository
	persistence.UserRepository
	Migrate(ctx context.Context) error
	Close() error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	var store storage
	switch cfg.Storage {
	case config.StorageMemory:
		store = memory.New()
	default:
		opened, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = opened
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

// services bundles the wired application layer.
type services struct {
	events   *application.EventService
	identity *application.IdentityService
	hub      *notify.Hub
}

func newServices(store storage, logger *slog.Logger) services {
	hub := notify.NewHub()
	notifier := notify.Multi{hub, notify.LogDispatcher{Logger: logger}}
	secretGenerator := func() string { return randomHex(24) }
	now := time.Now

	return services{
		events:   application.NewEventServiceWithLogger(newEventRepositoryAdapter(store), notifier, timeslot.NewID, now, logger),
		identity: application.NewIdentityServiceWithLogger(newUserStoreAdapter(store), secretGenerator, now, application.DefaultArgon2idParams, logger),
		hub:      hub,
	}
}

func newHandler(svc services, notifyBuffer int, logger *slog.Logger) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Events:        httptransport.NewEventHandler(svc.events, logger),
		Notifications: httptransport.NewNotificationHandler(svc.hub, notifyBuffer, logger),
		Authenticate:  httptransport.RequireSession(svc.identity, logger),
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	svc := newServices(store, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(svc, cfg.NotifyBuffer, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: notification streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		svc.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("lims calendar API listening", "addr", server.Addr, "storage", string(cfg.Storage))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

func addUser(ctx context.Context, cfg config.Config, params application.IssueAccessKeyParams, stdout io.Writer, logger *slog.Logger) error {
	if cfg.Storage == config.StorageMemory {
		return errors.New("add-user needs persistent storage")
	}
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	token, err := newServices(store, logger).identity.IssueAccessKey(ctx, params)
	if err != nil {
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			return fmt.Errorf("%w: %v", err, vErr.FieldErrors)
		}
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
