package cmd

import (
	"database/sql"

	"github.com/vibast-solutions/ms-go-accounts/config"
	"github.com/vibast-solutions/ms-go-accounts/migrations"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Apply the embedded goose migrations to the configured MySQL database.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	if err := goose.UpContext(cmd.Context(), db, "."); err != nil {
		return err
	}

	logrus.Info("Migrations applied")
	return nil
}
