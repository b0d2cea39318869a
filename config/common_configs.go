package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/DefiantLabs/token-relayer/util"
	"github.com/spf13/cobra"
)

// These configs are used across multiple commands, and are not specific to a single command
type log struct {
	Level  string
	Path   string
	Pretty bool
}

type Database struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	LogLevel string `mapstructure:"log-level"`
}

type Chain struct {
	RPC                   string
	ChainID               int64         `mapstructure:"chain-id"`
	ArtifactsDir          string        `mapstructure:"artifacts-dir"`
	AccessManagerArtifact string        `mapstructure:"access-manager-artifact"`
	TokenArtifact         string        `mapstructure:"token-artifact"`
	ConfirmationTimeout   time.Duration `mapstructure:"confirmation-timeout"`
	ReadTimeout           time.Duration `mapstructure:"read-timeout"`
	GasLimit              uint64        `mapstructure:"gas-limit"`
}

// LongestDispatch bounds the time one request can spend on chain. Token creation waits for two deployments.
func (chainConf Chain) LongestDispatch() time.Duration {
	return 2*chainConf.ConfirmationTimeout + chainConf.ReadTimeout
}

type Server struct {
	Port        int
	MetricsPort int `mapstructure:"metrics-port"`
}

type RedisConf struct {
	Addr string
	Psw  string
}

type Mongo struct {
	URI      string
	Database string
}

type output struct {
	Format string `mapstructure:"format"`
}

func SetupLogFlags(logConf *log, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&logConf.Level, "log.level", "info", "log level")
	cmd.PersistentFlags().BoolVar(&logConf.Pretty, "log.pretty", false, "pretty logs")
	cmd.PersistentFlags().StringVar(&logConf.Path, "log.path", "", "log path (default is stdout only)")
}

func SetupDatabaseFlags(databaseConf *Database, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&databaseConf.Host, "database.host", "", "database host")
	cmd.PersistentFlags().StringVar(&databaseConf.Port, "database.port", "5432", "database port")
	cmd.PersistentFlags().StringVar(&databaseConf.Database, "database.database", "", "database name")
	cmd.PersistentFlags().StringVar(&databaseConf.User, "database.user", "", "database user")
	cmd.PersistentFlags().StringVar(&databaseConf.Password, "database.password", "", "database password")
	cmd.PersistentFlags().StringVar(&databaseConf.LogLevel, "database.log-level", "", "database loglevel")
}

func SetupChainFlags(chainConf *Chain, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&chainConf.RPC, "chain.rpc", "", "EVM json-rpc endpoint")
	cmd.PersistentFlags().Int64Var(&chainConf.ChainID, "chain.chain-id", 0, "expected chain id, 0 accepts whatever the endpoint reports")
	cmd.PersistentFlags().StringVar(&chainConf.ArtifactsDir, "chain.artifacts-dir", "./artifacts", "directory holding <Name>.json contract build artifacts")
	cmd.PersistentFlags().StringVar(&chainConf.AccessManagerArtifact, "chain.access-manager-artifact", "BaseAccessManager", "artifact deployed as a token's access manager")
	cmd.PersistentFlags().StringVar(&chainConf.TokenArtifact, "chain.token-artifact", "BaseERC20", "artifact deployed as the token and used for mint/burn/transfer")
	cmd.PersistentFlags().DurationVar(&chainConf.ConfirmationTimeout, "chain.confirmation-timeout", 2*time.Minute, "how long to wait for a submitted transaction to be mined")
	cmd.PersistentFlags().DurationVar(&chainConf.ReadTimeout, "chain.read-timeout", 30*time.Second, "timeout for read-only rpc calls")
	cmd.PersistentFlags().Uint64Var(&chainConf.GasLimit, "chain.gas-limit", 0, "fixed gas limit for submitted transactions, 0 estimates each one")
}

func SetupServerFlags(serverConf *Server, cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&serverConf.Port, "server.port", 9002, "inbound grpc health port")
	cmd.PersistentFlags().IntVar(&serverConf.MetricsPort, "server.metrics-port", 9090, "prometheus metrics port, 0 disables it")
}

func SetupOutputFlags(outputConf *output, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&outputConf.Format, "output.format", "text", "output format, text or json")
}

func SetupRedisFlags(redisConf *RedisConf, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&redisConf.Addr, "redis.addr", "", "redis address, empty disables outcome publishing")
	cmd.PersistentFlags().StringVar(&redisConf.Psw, "redis.psw", "", "redis password")
}

func SetupMongoFlags(mongoConf *Mongo, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&mongoConf.URI, "mongo.uri", "", "mongo connection uri, empty disables transition history")
	cmd.PersistentFlags().StringVar(&mongoConf.Database, "mongo.database", "token_relayer", "mongo database")
}

func validateDatabaseConf(dbConf Database) error {
	if util.StrNotSet(dbConf.Host) {
		return errors.New("database host must be set")
	}
	if util.StrNotSet(dbConf.Port) {
		return errors.New("database port must be set")
	}
	if util.StrNotSet(dbConf.Database) {
		return errors.New("database name (i.e. database) must be set")
	}
	if util.StrNotSet(dbConf.User) {
		return errors.New("database user must be set")
	}
	if util.StrNotSet(dbConf.Password) {
		return errors.New("database password must be set")
	}

	return nil
}

func validateChainConf(chainConf Chain) error {
	if util.StrNotSet(chainConf.RPC) {
		return errors.New("chain rpc must be set")
	}
	if !strings.HasPrefix(chainConf.RPC, "http://") && !strings.HasPrefix(chainConf.RPC, "https://") &&
		!strings.HasPrefix(chainConf.RPC, "ws://") && !strings.HasPrefix(chainConf.RPC, "wss://") {
		return fmt.Errorf("chain rpc %q must be an http(s) or ws(s) url", chainConf.RPC)
	}
	if chainConf.ChainID < 0 {
		return errors.New("chain chain-id must be 0 or positive")
	}
	if chainConf.ConfirmationTimeout <= 0 {
		return errors.New("chain confirmation-timeout must be positive")
	}
	if chainConf.ReadTimeout <= 0 {
		return errors.New("chain read-timeout must be positive")
	}
	return nil
}

func validateArtifactConf(chainConf Chain) error {
	if util.StrNotSet(chainConf.ArtifactsDir) {
		return errors.New("chain artifacts-dir must be set")
	}
	if util.StrNotSet(chainConf.AccessManagerArtifact) || util.StrNotSet(chainConf.TokenArtifact) {
		return errors.New("chain access-manager-artifact and token-artifact must be set")
	}
	return nil
}

func validateOutputConf(outputConf output) error {
	if outputConf.Format != "text" && outputConf.Format != "json" {
		return errors.New("output.format must be text or json")
	}
	return nil
}

func validateMongoConf(mongoConf Mongo) error {
	if mongoConf.URI != "" && util.StrNotSet(mongoConf.Database) {
		return errors.New("mongo database must be set when mongo uri is set")
	}
	return nil
}

// Reads the Viper mapstructure tag to get the valid keys for a given config struct
func getValidConfigKeys(section any, baseName string) (keys []string) {
	v := reflect.ValueOf(section)
	typeOfS := v.Type()

	if baseName == "" {
		baseName = strings.ToLower(typeOfS.Name())
	}

	for i := 0; i < v.NumField(); i++ {
		field := typeOfS.Field(i)

		// Hack to get around the fact that we have embedded struct inside a struct in some of our definitions
		if !strings.HasPrefix(field.Type.String(), "config.") {
			name := field.Tag.Get("mapstructure")
			if name == "" {
				name = field.Name
			}

			key := fmt.Sprintf("%v.%v", baseName, strings.ReplaceAll(strings.ToLower(name), " ", ""))
			keys = append(keys, key)
		}
	}
	return
}

func addDatabaseConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(Database{}, "") {
		validKeys[key] = struct{}{}
	}
}

func addLogConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(log{}, "") {
		validKeys[key] = struct{}{}
	}
}

func addChainConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(Chain{}, "") {
		validKeys[key] = struct{}{}
	}
}

func addOutputConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(output{}, "output") {
		validKeys[key] = struct{}{}
	}
}

func addRedisConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(RedisConf{}, "redis") {
		validKeys[key] = struct{}{}
	}
}

func addMongoConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(Mongo{}, "") {
		validKeys[key] = struct{}{}
	}
}

func unknownKeys(keys []string, validKeys map[string]struct{}) []string {
	ignoredKeys := make([]string, 0)
	for _, key := range keys {
		if _, ok := validKeys[key]; !ok {
			ignoredKeys = append(ignoredKeys, key)
		}
	}
	return ignoredKeys
}
