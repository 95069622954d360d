package app

import (
	"context"
	"errors"
	"fmt"

	"sheetdash/internal/storage"
)

// Migrate applies pending SQL migrations from database.migrations_path.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to migrate")
	}
	if closeStore != nil {
		defer closeStore()
	}

	migrations, err := storage.LoadMigrations(a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}

	applied, err := store.Migrate(ctx, migrations)
	for _, name := range applied {
		fmt.Fprintf(a.Out, "applied %s\n", name)
	}
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		fmt.Fprintln(a.Out, "schema up to date")
	}
	a.Logger.Info().Int("applied", len(applied)).Int("known", len(migrations)).Msg("migrations complete")
	return nil
}
