package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"shelfrate/internal/config"
	"shelfrate/internal/services"
)

// Open builds the Store selected by cfg.Ledger.Backend.
func Open(ctx context.Context, cfg config.Ledger, logger *slog.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.LedgerBackendMemory:
		store = NewMemoryStore()
	case config.LedgerBackendJSON, "":
		store, err = OpenJSON(cfg.Path, logger)
	case config.LedgerBackendSQLite:
		store, err = OpenSQLite(ctx, cfg.Path)
	case config.LedgerBackendPostgres:
		store, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "open", fmt.Sprintf("unsupported backend %q", cfg.Backend), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "open "+cfg.Backend, "", err)
	}
	return store, nil
}
