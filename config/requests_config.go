package config

import (
	"github.com/spf13/cobra"
)

// RequestsConfig serves the read-only request lookups. Show reads postgres, cycle reads the mongo
// history, recent and watch read the redis feed.
type RequestsConfig struct {
	Database Database
	Log      log
	Redis    RedisConf
	Mongo    Mongo
	Output   output
}

func SetupRequestsSpecificFlags(conf *RequestsConfig, cmd *cobra.Command) {
	SetupOutputFlags(&conf.Output, cmd)
}

func (conf *RequestsConfig) Validate() error {
	if err := validateOutputConf(conf.Output); err != nil {
		return err
	}
	return validateMongoConf(conf.Mongo)
}

func (conf *RequestsConfig) ValidateDatabase() error {
	return validateDatabaseConf(conf.Database)
}

func CheckSuperfluousRequestsKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addDatabaseConfigKeys(validKeys)
	addLogConfigKeys(validKeys)
	addRedisConfigKeys(validKeys)
	addMongoConfigKeys(validKeys)
	addOutputConfigKeys(validKeys)

	return unknownKeys(keys, validKeys)
}
