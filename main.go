package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/billbatista/casal-ledger/api"
	"github.com/billbatista/casal-ledger/config"
	"github.com/billbatista/casal-ledger/couple"
	"github.com/billbatista/casal-ledger/database"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/memstore"
	"github.com/billbatista/casal-ledger/recurring"
	"github.com/billbatista/casal-ledger/session"
	"github.com/billbatista/casal-ledger/user"
	"github.com/billbatista/casal-ledger/view"
)

func main() {
	cfg, err := config.Load(os.Getenv("CASAL_ENV_FILE"))
	if err != nil {
		printErrorAndExit("loading config", err)
	}
	setupLogger(cfg.Log)

	ctx := context.Background()
	stores, db, err := openStores(ctx, cfg)
	if err != nil {
		printErrorAndExit("opening storage", err)
	}
	if db != nil {
		defer db.Close()
	}

	srv := api.NewServer(stores,
		api.WithCronSecret(cfg.Cron.Secret),
		api.WithCaches(view.NewCaches(cfg.Cache.TTL, cfg.Cache.Idle)),
		api.WithOrphanGrace(cfg.Recurring.OrphanGrace),
		api.WithSecureCookies(cfg.Server.SecureCookies),
	)
	if cfg.Cron.Secret == "" {
		slog.Warn("cron.secret is empty, scheduled recurring sweeps are disabled")
	}

	slog.Info("server starting", "address", cfg.Server.Address, "storage", cfg.Storage.Driver)
	if err := http.ListenAndServe(cfg.Server.Address, srv.Routes()); err != nil {
		printErrorAndExit("server stopped", err)
	}
}

func openStores(ctx context.Context, cfg config.Config) (api.Stores, *sql.DB, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		store := memstore.New()
		ident := memstore.NewIdentity()
		return api.Stores{
			Users:    ident.Users(),
			Sessions: ident.Sessions(),
			Entries:  store.Entries(),
			Rules:    store.Rules(),
			Couples:  store.Couples(),
		}, nil, nil
	}

	db, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		return api.Stores{}, nil, err
	}
	if cfg.Database.Migrate {
		if err := database.Migrate(db); err != nil {
			db.Close()
			return api.Stores{}, nil, err
		}
	}
	return api.Stores{
		Users:    user.NewRepository(db),
		Sessions: session.NewRepository(db),
		Entries:  ledger.NewRepository(db),
		Rules:    recurring.NewRepository(db),
		Couples:  couple.NewRepository(db),
	}, db, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
