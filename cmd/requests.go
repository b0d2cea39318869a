package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/db"
	"github.com/DefiantLabs/token-relayer/pkg/repository"
	"github.com/DefiantLabs/token-relayer/pkg/service"
)

var requestsConfig = &config.RequestsConfig{}

func init() {
	config.SetupLogFlags(&requestsConfig.Log, requestsCmd)
	config.SetupDatabaseFlags(&requestsConfig.Database, requestsCmd)
	config.SetupRedisFlags(&requestsConfig.Redis, requestsCmd)
	config.SetupMongoFlags(&requestsConfig.Mongo, requestsCmd)
	config.SetupRequestsSpecificFlags(requestsConfig, requestsCmd)

	requestsCmd.AddCommand(requestShowCmd, requestCycleCmd, requestRecentCmd, requestWatchCmd)
	rootCmd.AddCommand(requestsCmd)
}

var requestsCmd = &cobra.Command{
	Use:               "requests",
	Short:             "Looks up queued requests and the outcomes the relay recorded for them.",
	PersistentPreRunE: setupRequests,
}

var requestShowCmd = &cobra.Command{
	Use:   "show [request id]",
	Short: "Shows a request, its registered token and, when mongo is configured, its outcome history.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id %q: %w", args[0], err)
		}
		if err := requestsConfig.ValidateDatabase(); err != nil {
			return err
		}

		database, err := connectToDBAndMigrate(requestsConfig.Database)
		if err != nil {
			return err
		}
		if sqldb, err := database.DB(); err == nil {
			defer sqldb.Close()
		}

		return withRequests(cmd.Context(), db.NewStore(database), func(ctx context.Context, svc service.Requests) (interface{}, error) {
			return svc.Show(ctx, id)
		})
	},
}

var requestCycleCmd = &cobra.Command{
	Use:   "cycle [cycle id]",
	Short: "Lists the outcomes one relay cycle committed, from the mongo history.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRequests(cmd.Context(), nil, func(ctx context.Context, svc service.Requests) (interface{}, error) {
			return svc.Cycle(ctx, args[0])
		})
	},
}

var requestRecentCmd = &cobra.Command{
	Use:   "recent [count]",
	Short: "Lists the latest outcomes from the redis feed, newest first.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var n int64
		if len(args) == 1 {
			var err error
			if n, err = strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid count %q: %w", args[0], err)
			}
		}
		return withRequests(cmd.Context(), nil, func(ctx context.Context, svc service.Requests) (interface{}, error) {
			return svc.Recent(ctx, n)
		})
	},
}

var requestWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Streams outcomes as the relay commits them, one JSON object per line, until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withRequests(ctx, nil, func(ctx context.Context, svc service.Requests) (interface{}, error) {
			events, err := svc.Watch(ctx)
			if err != nil {
				return nil, err
			}
			config.Log.Info("Watching relay outcomes")
			enc := json.NewEncoder(os.Stdout)
			for event := range events {
				if err := enc.Encode(event); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	},
}

func setupRequests(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, viperConf)

	if err := requestsConfig.Validate(); err != nil {
		return err
	}

	ignoredKeys := config.CheckSuperfluousRequestsKeys(viperConf.AllKeys())
	if len(ignoredKeys) > 0 {
		config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
	}

	setupLogger(requestsConfig.Log.Level, requestsConfig.Log.Path, requestsConfig.Log.Pretty)
	return nil
}

// withRequests connects the configured outcome backends, runs fn and prints what it returns.
// store is nil for the lookups that never read postgres.
func withRequests(ctx context.Context, store service.RequestReader, fn func(context.Context, service.Requests) (interface{}, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var history repository.History
	client, database, err := connectToMongo(ctx, requestsConfig.Mongo)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	if client != nil {
		defer client.Disconnect(context.Background())
		history = repository.NewHistory(database)
	}

	var feed repository.OutcomesCache
	rdb, err := connectToRedis(ctx, requestsConfig.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		feed = repository.NewCache(rdb)
	}

	out, err := fn(ctx, service.NewRequests(store, history, feed))
	if err != nil || out == nil {
		return err
	}
	return printResult(os.Stdout, requestsConfig.Output.Format, out)
}
