package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/db"
)

var enqueueConfig = &config.EnqueueConfig{}

func init() {
	config.SetupLogFlags(&enqueueConfig.Log, enqueueCmd)
	config.SetupDatabaseFlags(&enqueueConfig.Database, enqueueCmd)
	config.SetupEnqueueSpecificFlags(enqueueConfig, enqueueCmd)

	rootCmd.AddCommand(enqueueCmd)
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queues a token request for the next relay cycle.",
	Long: `Validates the payload against the request kind and stores it as a pending request.
	The request is picked up by the next relay cycle.`,
	PreRunE: setupEnqueue,
	RunE:    enqueue,
}

func setupEnqueue(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, viperConf)

	if err := enqueueConfig.Validate(); err != nil {
		return err
	}

	ignoredKeys := config.CheckSuperfluousEnqueueKeys(viperConf.AllKeys())
	if len(ignoredKeys) > 0 {
		config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
	}

	setupLogger(enqueueConfig.Log.Level, enqueueConfig.Log.Path, enqueueConfig.Log.Pretty)
	return nil
}

func enqueue(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(enqueueConfig.Request.Payload, enqueueConfig.Request.PayloadFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	kind := core.Kind(strings.ToUpper(enqueueConfig.Request.Kind))

	database, err := connectToDBAndMigrate(enqueueConfig.Database)
	if err != nil {
		return err
	}
	if sqldb, err := database.DB(); err == nil {
		defer sqldb.Close()
	}

	id, err := db.NewStore(database).Enqueue(cmd.Context(), enqueueConfig.Request.Username, kind, payload)
	if err != nil {
		return err
	}

	config.Log.Infof("Queued %s request %d for %s", kind, id, enqueueConfig.Request.Username)
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func readPayload(inline, file string, stdin io.Reader) (json.RawMessage, error) {
	if inline != "" {
		return json.RawMessage(inline), nil
	}

	var (
		raw []byte
		err error
	)
	if file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return json.RawMessage(raw), nil
}
