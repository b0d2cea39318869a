package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/pkg/model"
	"github.com/DefiantLabs/token-relayer/pkg/repository"
)

const tokenReadABI = `[
	{"inputs":[],"name":"name","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"tokenOwner","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ChainReader is the read-only part of core.ChainClient.
type ChainReader interface {
	Read(ctx context.Context, contract string, abiFragment string, method string, args ...interface{}) ([]interface{}, error)
}

type Tokens interface {
	Details(ctx context.Context, tokenAddress string) (*model.TokenDetails, error)
	Balance(ctx context.Context, tokenAddress, wallet string) (*model.TokenBalance, error)
	List(ctx context.Context, username string) ([]*model.TokenInfo, error)
}

type tokens struct {
	chain ChainReader
	repo  repository.Tokens
}

// NewTokens builds the lookup service. chain may be nil when only the registry is read,
// repo may be nil when only on-chain lookups are needed.
func NewTokens(chain ChainReader, repo repository.Tokens) Tokens {
	return &tokens{chain: chain, repo: repo}
}

func (s *tokens) Details(ctx context.Context, tokenAddress string) (*model.TokenDetails, error) {
	if err := checkAddress("token", tokenAddress); err != nil {
		return nil, err
	}
	if err := s.needChain(); err != nil {
		return nil, err
	}

	name, err := readOne[string](ctx, s.chain, tokenAddress, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := readOne[string](ctx, s.chain, tokenAddress, "symbol")
	if err != nil {
		return nil, err
	}
	decimals, err := readOne[uint8](ctx, s.chain, tokenAddress, "decimals")
	if err != nil {
		return nil, err
	}
	supply, err := readOne[*big.Int](ctx, s.chain, tokenAddress, "totalSupply")
	if err != nil {
		return nil, err
	}
	owner, err := readOne[common.Address](ctx, s.chain, tokenAddress, "tokenOwner")
	if err != nil {
		return nil, err
	}

	details := &model.TokenDetails{
		Address:     common.HexToAddress(tokenAddress).Hex(),
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: core.FormatUnits(supply, decimals),
		TokenOwner:  owner.Hex(),
	}
	if s.repo == nil {
		return details, nil
	}

	registered, err := s.repo.ByAddress(ctx, tokenAddress)
	switch {
	case errors.Is(err, repository.ErrTokenNotFound):
	case err != nil:
		return nil, err
	default:
		details.Registry = registered
	}
	return details, nil
}

func (s *tokens) Balance(ctx context.Context, tokenAddress, wallet string) (*model.TokenBalance, error) {
	if err := checkAddress("token", tokenAddress); err != nil {
		return nil, err
	}
	if err := checkAddress("wallet", wallet); err != nil {
		return nil, err
	}
	if err := s.needChain(); err != nil {
		return nil, err
	}

	decimals, err := readOne[uint8](ctx, s.chain, tokenAddress, "decimals")
	if err != nil {
		return nil, err
	}
	balance, err := readOne[*big.Int](ctx, s.chain, tokenAddress, "balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}

	return &model.TokenBalance{
		Address: common.HexToAddress(tokenAddress).Hex(),
		Wallet:  common.HexToAddress(wallet).Hex(),
		Balance: core.FormatUnits(balance, decimals),
	}, nil
}

func (s *tokens) List(ctx context.Context, username string) ([]*model.TokenInfo, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: token registry is not configured", core.ErrConfiguration)
	}
	return s.repo.ByUsername(ctx, username)
}

func (s *tokens) needChain() error {
	if s.chain == nil {
		return fmt.Errorf("%w: chain rpc is not configured", core.ErrConfiguration)
	}
	return nil
}

func readOne[T any](ctx context.Context, chain ChainReader, contract, method string, args ...interface{}) (T, error) {
	var zero T
	out, err := chain.Read(ctx, contract, tokenReadABI, method, args...)
	if err != nil {
		return zero, err
	}
	if len(out) != 1 {
		return zero, fmt.Errorf("%w: %s() on %s returned %d values", core.ErrContractCall, method, contract, len(out))
	}
	value, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s() on %s returned %T", core.ErrContractCall, method, contract, out[0])
	}
	return value, nil
}

func checkAddress(what, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: invalid %s address %q", core.ErrMalformedPayload, what, address)
	}
	return nil
}
