package cmd

import (
	"github.com/spf13/cobra"

	"github.com/DefiantLabs/token-relayer/config"
)

var migrateConfig = &config.MigrateConfig{}

func init() {
	config.SetupLogFlags(&migrateConfig.Log, migrateCmd)
	config.SetupDatabaseFlags(&migrateConfig.Database, migrateCmd)
	config.SetupMongoFlags(&migrateConfig.Mongo, migrateCmd)

	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates or updates the database schema and the outcome history indexes.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd, viperConf)

		if err := migrateConfig.Validate(); err != nil {
			return err
		}

		ignoredKeys := config.CheckSuperfluousMigrateKeys(viperConf.AllKeys())
		if len(ignoredKeys) > 0 {
			config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
		}

		setupLogger(migrateConfig.Log.Level, migrateConfig.Log.Path, migrateConfig.Log.Pretty)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := connectToDBAndMigrate(migrateConfig.Database)
		if err != nil {
			return err
		}
		if sqldb, err := database.DB(); err == nil {
			defer sqldb.Close()
		}
		config.Log.Info("Database schema is up to date")

		if migrateConfig.Mongo.URI == "" {
			return nil
		}
		if err := migrateHistory(cmd.Context(), migrateConfig.Mongo); err != nil {
			return err
		}
		config.Log.Info("Outcome history indexes are up to date")
		return nil
	},
}
