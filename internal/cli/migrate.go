package cli

import (
	"database/sql"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mintline/edition_layer/internal/app/storage/postgres/migrations"
)

// NewMigrateCommand manages the postgres schema.
func NewMigrateCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, root, func(p *Printer, db *sql.DB) error {
				if err := migrations.Up(db); err != nil {
					return err
				}
				p.Success("schema is up to date")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, root, func(p *Printer, db *sql.DB) error {
				if err := migrations.Down(db); err != nil {
					return err
				}
				p.Warning("schema rolled back")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, root, func(p *Printer, db *sql.DB) error {
				v, dirty, err := migrations.Version(db)
				if err != nil {
					return err
				}
				if dirty {
					p.Warning("schema version %d (dirty)", v)
					return nil
				}
				p.Info("schema version %d", v)
				return nil
			})
		},
	})
	return cmd
}

func withMigrationDB(cmd *cobra.Command, root *RootOptions, fn func(p *Printer, db *sql.DB) error) error {
	cfg, _, err := root.load()
	if err != nil {
		return err
	}
	if !cfg.UsePostgres() {
		return errors.New("migrations need DATABASE_DRIVER=postgres and DATABASE_URL")
	}
	db, err := openDB(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(NewPrinter(cmd.OutOrStdout()), db.DB)
}
