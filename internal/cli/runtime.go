package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/mintline/edition_layer/internal/app"
	"github.com/mintline/edition_layer/internal/app/storage/postgres"
	"github.com/mintline/edition_layer/internal/app/storage/postgres/migrations"
	"github.com/mintline/edition_layer/internal/app/storage/redisstore"
	"github.com/mintline/edition_layer/internal/config"
	"github.com/mintline/edition_layer/pkg/logger"
)

// runtime holds the opened backends and releases them on close.
type runtime struct {
	stores  app.Stores
	db      *sqlx.DB
	closers []func() error
}

func (r *runtime) close(log *logger.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.WithError(err).Warn("close backend")
		}
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// openRuntime wires postgres and redis when configured. Stores left nil
// fall back to memory inside app.New.
func openRuntime(ctx context.Context, cfg *config.Config, log *logger.Logger) (*runtime, error) {
	rt := &runtime{}

	if cfg.UsePostgres() {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.closers = append(rt.closers, db.Close)

		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(db.DB); err != nil {
				rt.close(log)
				return nil, err
			}
			log.Info("database migrations applied")
		}

		store := postgres.New(db)
		rt.stores = app.Stores{
			Collections:  store,
			Editions:     store,
			Transfers:    store,
			Boxes:        store,
			Trades:       store,
			Reservations: store,
		}
		log.Info("using postgres store")
	} else {
		log.Warn("using in-memory store; state is lost on exit")
	}

	if cfg.Redis.Addr != "" {
		rs, err := redisstore.New(ctx, redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			rt.close(log)
			return nil, err
		}
		rt.stores.Reservations = rs
		rt.closers = append(rt.closers, rs.Close)
		log.WithField("addr", cfg.Redis.Addr).Info("using redis reservation store")
	}
	return rt, nil
}

func appOptions(cfg *config.Config) app.Options {
	return app.Options{
		ReservationTTL: cfg.Ledger.ReservationTTL,
		SweepSchedule:  cfg.Ledger.SweepSchedule,
		AllocatorSeed:  cfg.Ledger.AllocatorSeed,
	}
}
