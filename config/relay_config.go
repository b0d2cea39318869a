package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type RelayConfig struct {
	Database Database
	Log      log
	Chain    Chain
	Relay    relayBase
	Redis    RedisConf
	Mongo    Mongo
	Server   Server
}

type relayBase struct {
	Cron         string        `mapstructure:"cron"`
	BatchSize    int           `mapstructure:"batch-size"`
	Workers      int           `mapstructure:"workers"`
	LeaseTimeout time.Duration `mapstructure:"lease-timeout"`
	RunOnStart   bool          `mapstructure:"run-on-start"`
}

// CronHasSeconds reports whether the schedule uses the six field form with a leading seconds field.
func (b relayBase) CronHasSeconds() bool {
	return len(strings.Fields(b.Cron)) == 6
}

func SetupRelaySpecificFlags(conf *RelayConfig, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&conf.Relay.Cron, "relay.cron", "*/45 * * * * *", "cron schedule of relay cycles, five fields or six with leading seconds")
	cmd.PersistentFlags().IntVar(&conf.Relay.BatchSize, "relay.batch-size", 0, "max requests claimed per cycle (0 claims every pending request)")
	cmd.PersistentFlags().IntVar(&conf.Relay.Workers, "relay.workers", 1, "how many token lanes are processed in parallel")
	cmd.PersistentFlags().DurationVar(&conf.Relay.LeaseTimeout, "relay.lease-timeout", 0, "reclaim in-progress requests whose claim is older than this (0 disables reclaim)")
	cmd.PersistentFlags().BoolVar(&conf.Relay.RunOnStart, "relay.run-on-start", true, "run a cycle immediately instead of waiting for the first tick")
}

func (conf *RelayConfig) Validate() error {
	err := validateDatabaseConf(conf.Database)
	if err != nil {
		return err
	}

	if err := validateChainConf(conf.Chain); err != nil {
		return err
	}

	if err := validateArtifactConf(conf.Chain); err != nil {
		return err
	}

	if err := validateMongoConf(conf.Mongo); err != nil {
		return err
	}

	fields := len(strings.Fields(conf.Relay.Cron))
	if fields != 5 && fields != 6 {
		return fmt.Errorf("relay.cron %q must have 5 fields, or 6 with seconds", conf.Relay.Cron)
	}
	if conf.Relay.BatchSize < 0 {
		return errors.New("relay.batch-size must be 0 or positive")
	}
	if conf.Relay.Workers < 1 {
		return errors.New("relay.workers must be at least 1")
	}
	if conf.Relay.LeaseTimeout < 0 {
		return errors.New("relay.lease-timeout must be 0 or positive")
	}
	// the lease is renewed per request, so it only has to outlive one dispatch
	if conf.Relay.LeaseTimeout > 0 && conf.Relay.LeaseTimeout <= conf.Chain.LongestDispatch() {
		return fmt.Errorf("relay.lease-timeout (%s) must be longer than two chain.confirmation-timeout plus chain.read-timeout (%s)",
			conf.Relay.LeaseTimeout, conf.Chain.LongestDispatch())
	}
	if conf.Server.Port < 0 || conf.Server.MetricsPort < 0 {
		return errors.New("server ports must be 0 or positive")
	}

	return nil
}

func CheckSuperfluousRelayKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addDatabaseConfigKeys(validKeys)
	addLogConfigKeys(validKeys)
	addChainConfigKeys(validKeys)
	addMongoConfigKeys(validKeys)
	addRedisConfigKeys(validKeys)

	for _, key := range getValidConfigKeys(relayBase{}, "relay") {
		validKeys[key] = struct{}{}
	}
	for _, key := range getValidConfigKeys(Server{}, "") {
		validKeys[key] = struct{}{}
	}

	return unknownKeys(keys, validKeys)
}
