package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"findiff/internal/platform/config"
	"findiff/internal/platform/logger"
	"findiff/internal/platform/postgres"
	"findiff/internal/userprofile/catalog"
	upsvc "findiff/internal/userprofile/service"
	rolestore "findiff/internal/userprofile/store/role"
	userstore "findiff/internal/userprofile/store/user"
	"findiff/pkg/platform/tx"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

// commandContext lazily loads config and opens the database once per
// invocation.
type commandContext struct {
	logLevel *string

	once   sync.Once
	cfg    config.Config
	logger *slog.Logger

	db *sql.DB
}

func newCommandContext(logLevel *string) *commandContext {
	return &commandContext{logLevel: logLevel}
}

func (c *commandContext) load() {
	c.once.Do(func() {
		c.cfg = config.FromEnv()
		level := c.cfg.Logging.Level
		if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
			level = *c.logLevel
		}
		c.logger = logger.New(level, "text")
	})
}

func (c *commandContext) settings() config.Config {
	c.load()
	return c.cfg
}

func (c *commandContext) log() *slog.Logger {
	c.load()
	return c.logger
}

func (c *commandContext) database(ctx context.Context) (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg := c.settings().Postgres
	if !cfg.Enabled() {
		return nil, errNoDatabase
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

func (c *commandContext) users(ctx context.Context) (*upsvc.Service, error) {
	db, err := c.database(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	return upsvc.New(userstore.NewPostgres(db), rolestore.NewPostgres(db), cat,
		upsvc.WithLogger(c.log()),
		upsvc.WithTxRunner(tx.NewSQLRunner(db, c.settings().Postgres.TxTimeout)),
	), nil
}

func (c *commandContext) close() {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}
