package config

import (
	"github.com/spf13/cobra"
)

type TokensConfig struct {
	Database Database
	Log      log
	Chain    Chain
	Output   output
}

func SetupTokensSpecificFlags(conf *TokensConfig, cmd *cobra.Command) {
	SetupOutputFlags(&conf.Output, cmd)
}

// Validate checks what every tokens subcommand needs. Subcommands then call ValidateChain or
// ValidateDatabase for the backends they use.
func (conf *TokensConfig) Validate() error {
	return validateOutputConf(conf.Output)
}

func (conf *TokensConfig) ValidateChain() error {
	return validateChainConf(conf.Chain)
}

func (conf *TokensConfig) ValidateDatabase() error {
	return validateDatabaseConf(conf.Database)
}

func CheckSuperfluousTokensKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addDatabaseConfigKeys(validKeys)
	addLogConfigKeys(validKeys)
	addChainConfigKeys(validKeys)
	addOutputConfigKeys(validKeys)

	return unknownKeys(keys, validKeys)
}
