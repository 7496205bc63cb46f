// Package app wires configuration, storage and services into one process.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/analytics"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/config"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/db"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/labels"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/migrate"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/notify"
)

type App struct {
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Auth      auth.Service
	Analytics analytics.Aggregator
	Hub       *notify.Hub
	Labels    labels.Store
	Log       *zap.SugaredLogger

	closers []func() error
}

// Build opens and migrates the database and assembles the services.
// Relays configured in realtime are attached to the hub's event stream.
func Build(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: conn, Log: log}
	a.closers = append(a.closers, conn.Close)

	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.Infow("applied migrations", "count", applied)
	}

	a.Hub = notify.NewHub(cfg.Realtime.SendBuffer, log.Named("hub"))
	a.closers = append(a.closers, func() error { a.Hub.Close(); return nil })
	fanout := events.Fanout{a.Hub}
	if cfg.Realtime.NATSURL != "" {
		relay, err := notify.DialNATS(cfg.Realtime.NATSURL, cfg.Realtime.NATSSubject, log.Named("nats"))
		if err != nil {
			a.Close()
			return nil, err
		}
		fanout = append(fanout, relay)
		a.closers = append(a.closers, relay.Close)
	}
	if hooks := notify.NewWebhookRelay(cfg.Realtime.Webhooks, log.Named("webhooks")); hooks != nil {
		fanout = append(fanout, hooks)
		a.closers = append(a.closers, hooks.Close)
	}

	a.Labels = labels.Store{Dir: cfg.Labels.Dir, Encoder: labels.PNGEncoder{Size: cfg.Labels.Size}}
	a.Engine = engine.New(conn, fanout, log.Named("engine"))
	a.Engine.Labels = a.Labels
	a.Auth = auth.Service{
		Users:  a.Engine.Repo,
		Tokens: auth.NewIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)),
	}
	a.Analytics = analytics.Aggregator{Store: a.Engine.Repo}
	return a, nil
}

// SeedAdmin creates the configured manager account on an empty store.
func (a *App) SeedAdmin(ctx context.Context) error {
	seed := a.Config.Admin
	if seed.Matricule == "" {
		return nil
	}
	_, err := a.Engine.EnsureDefaultAdmin(ctx, engine.AdminSeed{
		UserID:    seed.UserID,
		Matricule: seed.Matricule,
		Name:      seed.Name,
		Email:     seed.Email,
		Password:  seed.Password,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
