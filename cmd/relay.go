package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/db"
	"github.com/DefiantLabs/token-relayer/evm"
	"github.com/DefiantLabs/token-relayer/metrics"
	"github.com/DefiantLabs/token-relayer/pkg/repository"
)

const statusCountInterval = 30 * time.Second

type Relayer struct {
	cfg       *config.RelayConfig
	db        *gorm.DB
	chain     *evm.Client
	engine    *core.Engine
	metrics   *metrics.Relay
	scheduler *gocron.Scheduler
	rdb       *redis.Client
	mongo     *mongo.Client

	// halt stops the relay after a cycle hit a configuration error, recorded in halted
	halt   context.CancelFunc
	halted error
}

var relayer Relayer

func init() {
	relayer.cfg = &config.RelayConfig{}
	config.SetupLogFlags(&relayer.cfg.Log, relayCmd)
	config.SetupDatabaseFlags(&relayer.cfg.Database, relayCmd)
	config.SetupChainFlags(&relayer.cfg.Chain, relayCmd)
	config.SetupServerFlags(&relayer.cfg.Server, relayCmd)
	config.SetupRedisFlags(&relayer.cfg.Redis, relayCmd)
	config.SetupMongoFlags(&relayer.cfg.Mongo, relayCmd)
	config.SetupRelaySpecificFlags(relayer.cfg, relayCmd)

	rootCmd.AddCommand(relayCmd)
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relays pending token requests to the chain on a schedule.",
	Long: `Runs relay cycles on the configured cron schedule. Every cycle claims the pending requests,
	submits each one to the EVM chain and commits a confirmed or failed status per request.
	The signing key is read from the RELAY_PRIVATE_KEY environment variable.`,
	PreRunE: setupRelay,
	Run:     relay,
}

func setupRelay(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, viperConf)

	err := relayer.cfg.Validate()
	if err != nil {
		return err
	}

	ignoredKeys := config.CheckSuperfluousRelayKeys(viperConf.AllKeys())

	if len(ignoredKeys) > 0 {
		config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
	}

	setupLogger(relayer.cfg.Log.Level, relayer.cfg.Log.Path, relayer.cfg.Log.Pretty)

	database, err := connectToDBAndMigrate(relayer.cfg.Database)
	if err != nil {
		config.Log.Fatal("Could not establish connection to the database", err)
	}

	relayer.db = database
	relayer.scheduler = gocron.NewScheduler(time.UTC)

	return nil
}

// setupEngine builds the chain client, the outcome sinks and the engine. Any failure here is fatal.
func (r *Relayer) setupEngine(ctx context.Context) {
	signer, err := evm.StaticKeyResolverFromEnv()
	if err != nil {
		config.Log.Fatal("Could not load the relay signing key", err)
	}
	config.Log.Infof("Relaying as %s", signer.Address())

	artifacts := evm.NewArtifactStore(r.cfg.Chain.ArtifactsDir)
	if err := artifacts.Preload(r.cfg.Chain.AccessManagerArtifact, r.cfg.Chain.TokenArtifact); err != nil {
		config.Log.Fatal("Could not load contract artifacts", err)
	}

	r.chain, err = evm.Dial(ctx, r.cfg.Chain, artifacts, signer)
	if err != nil {
		config.Log.Fatal("Could not connect to the chain", err)
	}
	config.Log.Infof("Connected to chain %s at %s", r.chain.ChainID(), r.cfg.Chain.RPC)

	var sinks []core.OutcomeSink

	r.rdb, err = connectToRedis(ctx, r.cfg.Redis)
	if err != nil {
		config.Log.Fatal("Could not connect to redis", err)
	}
	if r.rdb != nil {
		sinks = append(sinks, repository.NewCache(r.rdb))
	}

	client, database, err := connectToMongo(ctx, r.cfg.Mongo)
	if err != nil {
		config.Log.Fatal("Could not connect to mongo", err)
	}
	if client != nil {
		r.mongo = client
		if err := repository.MigrateHistory(ctx, database); err != nil {
			config.Log.Fatal("Could not migrate the outcome history", err)
		}
		sinks = append(sinks, repository.NewHistory(database))
	}

	r.metrics = metrics.NewRelay(prometheus.DefaultRegisterer)

	handlers := core.NewHandlers(r.chain, core.Artifacts{
		AccessManager: r.cfg.Chain.AccessManagerArtifact,
		Token:         r.cfg.Chain.TokenArtifact,
	})
	r.engine = core.NewEngine(db.NewStore(r.db), r.chain, handlers, core.EngineConfig{
		BatchSize:    r.cfg.Relay.BatchSize,
		Workers:      r.cfg.Relay.Workers,
		LeaseTimeout: r.cfg.Relay.LeaseTimeout,
	}, core.WithSinks(sinks...), core.WithObserver(r.metrics))
}

func relay(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	relayer.halt = stop

	relayer.setupEngine(ctx)
	defer relayer.close()

	// cycles keep their own context so a shutdown lets in-flight transactions be awaited and committed
	cycleCtx, cancelCycles := context.WithCancel(context.Background())
	defer cancelCycles()

	pool, err := connectToPool(ctx, relayer.cfg.Database)
	if err != nil {
		config.Log.Warn("Could not open the read pool, request status gauges are disabled", err)
	} else {
		defer pool.Close()
		go relayer.metrics.PollStatusCounts(ctx, repository.NewRequests(pool), statusCountInterval)
	}

	metricsServer := startMetricsServer(relayer.cfg.Server.MetricsPort)
	healthServer, grpcServer := startHealthServer(relayer.cfg.Server.Port)

	if relayer.cfg.Relay.RunOnStart {
		relayer.runCycle(cycleCtx)
	}

	relayer.scheduler.SingletonModeAll()
	if relayer.cfg.Relay.CronHasSeconds() {
		_, err = relayer.scheduler.CronWithSeconds(relayer.cfg.Relay.Cron).Do(relayer.runCycle, cycleCtx)
	} else {
		_, err = relayer.scheduler.Cron(relayer.cfg.Relay.Cron).Do(relayer.runCycle, cycleCtx)
	}
	if err != nil {
		config.Log.Fatal(fmt.Sprintf("Error scheduling relay cycles with %q", relayer.cfg.Relay.Cron), err)
	}
	relayer.scheduler.StartAsync()
	config.Log.Infof("Relay scheduled with %q", relayer.cfg.Relay.Cron)

	<-ctx.Done()
	config.Log.Info("Shutting down, waiting for the running cycle to finish")

	if healthServer != nil {
		healthServer.Shutdown()
	}
	// Stop waits for a running cycle before returning
	relayer.scheduler.Stop()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			config.Log.Warn("Metrics server shutdown failed", err)
		}
	}

	if relayer.halted != nil {
		relayer.close()
		config.Log.Fatal("Relay stopped on a configuration error", relayer.halted)
	}
}

func (r *Relayer) runCycle(ctx context.Context) {
	_, err := r.engine.RunOnce(ctx)
	switch {
	case errors.Is(err, core.ErrCycleInProgress):
		config.Log.Warn("Skipping tick, the previous relay cycle is still running")
	case errors.Is(err, core.ErrConfiguration):
		// every later cycle would hit the same problem
		config.Log.Error("Relay cycle halted, shutting down", err)
		r.halted = err
		if r.halt != nil {
			r.halt()
		}
	case err != nil:
		config.Log.Error("Relay cycle aborted", err)
	}
}

func (r *Relayer) close() {
	if r.chain != nil {
		r.chain.Close()
	}
	if r.rdb != nil {
		r.rdb.Close()
	}
	if r.mongo != nil {
		_ = r.mongo.Disconnect(context.Background())
	}
	if r.db != nil {
		if sqldb, err := r.db.DB(); err == nil {
			sqldb.Close()
		}
	}
}

func startMetricsServer(port int) *http.Server {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.Log.Error("Metrics server stopped", err)
		}
	}()
	config.Log.Infof("Serving metrics on :%d/metrics", port)
	return server
}

func startHealthServer(port int) (*health.Server, *grpc.Server) {
	if port == 0 {
		return nil, nil
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		config.Log.Fatal(fmt.Sprintf("Could not listen on :%d", port), err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			config.Log.Error("Health server stopped", err)
		}
	}()
	config.Log.Infof("Serving grpc health on :%d", port)
	return healthServer, grpcServer
}
