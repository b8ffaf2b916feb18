// Package app opens a workspace: database, migrations, config and logger.
package app

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/db"
	"github.com/jhonnyo88/devteam-sub003/internal/logging"
	"github.com/jhonnyo88/devteam-sub003/internal/migrate"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
)

// Context is everything a command needs to operate on a workspace.
type Context struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Cfg       *config.Config
	Log       *zap.Logger
}

// Open resolves the workspace: loads devteam.yml when present (falling back
// to defaults), opens the SQLite database and applies pending migrations.
func Open(workspace string) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = config.Default("devteam")
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Context{
		Workspace: workspace,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Cfg:       cfg,
		Log:       log,
	}, nil
}

// Close releases the workspace resources.
func (c *Context) Close() error {
	if c.Log != nil {
		_ = c.Log.Sync()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
