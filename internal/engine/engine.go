package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

// LabelWriter produces the printable label artifact for a machine.
type LabelWriter interface {
	WriteLabel(ctx context.Context, machineID string) (string, error)
}

// Engine owns every state mutation. Each mutation runs in one transaction
// and publishes its lifecycle event only after commit.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Publisher
	Labels LabelWriter
	Log    *zap.SugaredLogger
	Now    func() time.Time
}

func New(db *sql.DB, pub events.Publisher, log *zap.SugaredLogger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: pub,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.SugaredLogger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop().Sugar()
}

func (e Engine) publish(ctx context.Context, t events.Type, data any) {
	if e.Events == nil {
		return
	}
	evt := events.Event{Type: t, Data: data, TS: e.now()}
	if err := e.Events.Publish(ctx, evt); err != nil {
		e.log().Warnw("publish event failed", "event", t, "error", err)
	}
}

// inTx runs fn in a transaction that commits only when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
