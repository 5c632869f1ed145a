package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"asbuilt/internal/config"
	"asbuilt/internal/db"
	"asbuilt/internal/engine"
	"asbuilt/internal/events"
	"asbuilt/internal/logger"
	"asbuilt/internal/migrate"
	"asbuilt/internal/repo"
)

// Workspace bundles the run archive and config found in a workspace directory.
type Workspace struct {
	Path   string
	DB     *sql.DB
	Config *config.Config
}

// OpenWorkspace loads asbuilt.yml (falling back to defaults when absent) and opens the
// migrated run archive under .asbuilt/.
func OpenWorkspace(ctx context.Context, workspace string) (*Workspace, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{Path: workspace, DB: conn, Config: cfg}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Service wires an engine over the workspace archive.
func (w *Workspace) Service(log *logger.Logger) Service {
	return Service{
		Engine: engine.New(w.Config, log),
		Repo:   repo.Repo{DB: w.DB},
		Events: events.Writer{DB: w.DB, Now: time.Now},
		Log:    log,
	}
}
