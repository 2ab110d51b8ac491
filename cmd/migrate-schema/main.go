package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/archive-editor/internal/db"
	"github.com/debemdeboas/archive-editor/internal/logger"
)

func main() {
	var dbPath string

	cmd := &cobra.Command{
		Use:          "migrate-schema",
		Short:        "Add the description, slides and published columns to an older database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger.New("info")
			db.SetLogger(l)

			database := db.NewSQLiteAt(dbPath)
			if err := database.InitDB(); err != nil {
				return err
			}
			defer database.Close()

			added, err := db.MigrateSchema(database)
			if err != nil {
				l.Error().Err(err).Strs("added", added).Msg("Schema migration failed")
				return err
			}
			l.Info().Strs("added", added).Msg("Schema migration complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", db.DefaultPath, "SQLite database file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
