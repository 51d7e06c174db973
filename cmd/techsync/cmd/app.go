package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/techsync/fetch"
	"github.com/jmcleod/techsync/internal/config"
	"github.com/jmcleod/techsync/internal/util"
	"github.com/jmcleod/techsync/session"
	"github.com/jmcleod/techsync/storage"
	bboltstorage "github.com/jmcleod/techsync/storage/bbolt"
	"github.com/jmcleod/techsync/workorder"
)

var errNotLoggedIn = errors.New("not logged in; run `techsync login` first")

// app is the wired client for one CLI invocation.
type app struct {
	db      *bboltstorage.Store
	session *session.Store
	orders  *workorder.Client
	logger  *slog.Logger
}

func openApp(cfg *config.Config, clock clockwork.Clock) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}

	db, err := bboltstorage.NewRepositoryFromFile(cfg.SessionPath(), &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	var repo storage.Repository = db

	secret, err := cfg.StoreSecret()
	if err != nil {
		db.Close()
		return nil, err
	}
	if secret != nil {
		sealed, err := storage.NewSealed(db, secret)
		util.WipeBytes(secret)
		if err != nil {
			db.Close()
			return nil, err
		}
		repo = sealed
	}

	logger := slog.Default()
	fetcher := fetch.New(
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithClock(clock),
		fetch.WithLogger(logger),
	)
	sess := session.New(base, fetcher, repo, session.WithLogger(logger))

	return &app{
		db:      db,
		session: sess,
		orders:  workorder.NewClient(base, fetcher, sess, workorder.WithLogger(logger)),
		logger:  logger,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// requireSession restores the persisted session and fails unless a token is
// present. A token whose profile could not be loaded for transport reasons
// is still usable.
func (a *app) requireSession(ctx context.Context) error {
	err := a.session.Restore(ctx)
	switch {
	case errors.Is(err, session.ErrExpired):
		return err
	case !a.session.Authenticated():
		if err != nil {
			return err
		}
		return errNotLoggedIn
	case err != nil:
		a.logger.WarnContext(ctx, "could not verify session", "error", err)
	}
	return nil
}

// withApp opens the app for the duration of fn.
func (o *options) withApp(fn func(*app) error) error {
	a, err := openApp(o.cfg, o.clock)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
