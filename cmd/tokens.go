package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/evm"
	"github.com/DefiantLabs/token-relayer/pkg/repository"
	"github.com/DefiantLabs/token-relayer/pkg/service"
)

var tokensConfig = &config.TokensConfig{}

func init() {
	config.SetupLogFlags(&tokensConfig.Log, tokensCmd)
	config.SetupDatabaseFlags(&tokensConfig.Database, tokensCmd)
	config.SetupChainFlags(&tokensConfig.Chain, tokensCmd)
	config.SetupTokensSpecificFlags(tokensConfig, tokensCmd)

	tokensCmd.AddCommand(tokenDetailsCmd, tokenBalanceCmd, tokenListCmd)
	rootCmd.AddCommand(tokensCmd)
}

var tokensCmd = &cobra.Command{
	Use:               "tokens",
	Short:             "Looks up relayed tokens on chain and in the registry.",
	PersistentPreRunE: setupTokens,
}

var tokenDetailsCmd = &cobra.Command{
	Use:   "details [token address]",
	Short: "Reads name, symbol, decimals, total supply and owner from the token contract, plus its registry row when the database is configured.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokens(cmd.Context(), true, optionalRegistry, func(ctx context.Context, svc service.Tokens) (interface{}, error) {
			return svc.Details(ctx, args[0])
		})
	},
}

var tokenBalanceCmd = &cobra.Command{
	Use:   "balance [token address] [wallet address]",
	Short: "Reads a wallet's balance of the token, in whole units.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokens(cmd.Context(), true, noRegistry, func(ctx context.Context, svc service.Tokens) (interface{}, error) {
			return svc.Balance(ctx, args[0], args[1])
		})
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list [username]",
	Short: "Lists the tokens registered for a user.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokens(cmd.Context(), false, requiredRegistry, func(ctx context.Context, svc service.Tokens) (interface{}, error) {
			return svc.List(ctx, args[0])
		})
	},
}

type registryUse int

const (
	noRegistry registryUse = iota
	optionalRegistry
	requiredRegistry
)

func setupTokens(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, viperConf)

	err := tokensConfig.Validate()
	if err != nil {
		return err
	}

	ignoredKeys := config.CheckSuperfluousTokensKeys(viperConf.AllKeys())

	if len(ignoredKeys) > 0 {
		config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
	}

	setupLogger(tokensConfig.Log.Level, tokensConfig.Log.Path, tokensConfig.Log.Pretty)
	return nil
}

// withTokens builds a read-only service over the backends a subcommand uses, runs fn and prints what it returns.
func withTokens(ctx context.Context, needsChain bool, registry registryUse, fn func(context.Context, service.Tokens) (interface{}, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var chain service.ChainReader
	if needsChain {
		if err := tokensConfig.ValidateChain(); err != nil {
			return err
		}
		client, err := evm.Dial(ctx, tokensConfig.Chain, nil, nil)
		if err != nil {
			return err
		}
		defer client.Close()
		chain = client
	}

	var repo repository.Tokens
	switch registry {
	case requiredRegistry:
		if err := tokensConfig.ValidateDatabase(); err != nil {
			return err
		}
		pool, err := connectToPool(ctx, tokensConfig.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		repo = repository.NewTokens(pool)
	case optionalRegistry:
		if tokensConfig.ValidateDatabase() != nil {
			break
		}
		pool, err := connectToPool(ctx, tokensConfig.Database)
		if err != nil {
			config.Log.Warn("Token registry unavailable, showing on-chain data only", err)
			break
		}
		defer pool.Close()
		repo = repository.NewTokens(pool)
	}

	out, err := fn(ctx, service.NewTokens(chain, repo))
	if err != nil {
		return err
	}
	return printResult(os.Stdout, tokensConfig.Output.Format, out)
}
