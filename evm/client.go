package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/core"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultConfirmationTimeout = 2 * time.Minute
	defaultReadTimeout         = 30 * time.Second
)

// Backend is the part of an Ethereum RPC client the relay uses. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client implements core.ChainClient on go-ethereum.
type Client struct {
	backend   Backend
	closer    func()
	chainID   *big.Int
	artifacts *ArtifactStore
	signers   SignerResolver
	cfg       config.Chain

	noncesMu sync.Mutex
	nonces   map[common.Address]*sync.Mutex

	fragmentsMu sync.Mutex
	fragments   map[string]abi.ABI
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg config.Chain, artifacts *ArtifactStore, signers SignerResolver) (*Client, error) {
	if cfg.RPC == "" {
		return nil, fmt.Errorf("%w: chain rpc url is not set", core.ErrConfiguration)
	}
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", core.ErrNetwork, cfg.RPC, err)
	}
	client, err := NewClient(ctx, rpcClient, cfg, artifacts, signers)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	client.closer = rpcClient.Close
	return client, nil
}

// NewClient wraps an existing backend. The chain id is read once and checked against cfg.ChainID when that is set.
func NewClient(ctx context.Context, backend Backend, cfg config.Chain, artifacts *ArtifactStore, signers SignerResolver) (*Client, error) {
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	readCtx, cancel := context.WithTimeout(ctx, cfg.ReadTimeout)
	defer cancel()
	chainID, err := backend.ChainID(readCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", core.ErrNetwork, err)
	}
	if cfg.ChainID != 0 && chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		return nil, fmt.Errorf("%w: endpoint serves chain %s, configured chain-id is %d", core.ErrConfiguration, chainID, cfg.ChainID)
	}

	return &Client{
		backend:   backend,
		chainID:   chainID,
		artifacts: artifacts,
		signers:   signers,
		cfg:       cfg,
		nonces:    make(map[common.Address]*sync.Mutex),
		fragments: make(map[string]abi.ABI),
	}, nil
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()
	if _, err := c.backend.BlockNumber(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	return nil
}

func (c *Client) Deploy(ctx context.Context, artifact string, signer core.Identity, args ...interface{}) (string, core.Receipt, error) {
	art, err := c.artifacts.Load(artifact)
	if err != nil {
		return "", core.Receipt{}, err
	}

	var tx *types.Transaction
	err = c.submit(ctx, signer, func(opts *bind.TransactOpts) error {
		var err error
		_, tx, _, err = bind.DeployContract(opts, art.ABI, art.Bytecode, c.backend, args...)
		return err
	})
	if err != nil {
		return "", core.Receipt{}, withClass(core.ErrDeployment, "deploy "+artifact, err)
	}
	config.Log.Debugf("Deploying %s in tx %s", artifact, tx.Hash().Hex())

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return "", core.Receipt{}, fmt.Errorf("%w: deploy %s: %w", core.ErrDeployment, artifact, err)
	}
	return receipt.ContractAddress.Hex(), toReceipt(receipt), nil
}

func (c *Client) Invoke(ctx context.Context, contract string, artifact string, method string, signer core.Identity, args ...interface{}) (core.Receipt, error) {
	art, err := c.artifacts.Load(artifact)
	if err != nil {
		return core.Receipt{}, err
	}
	if !common.IsHexAddress(contract) {
		return core.Receipt{}, fmt.Errorf("%w: %s on %q: not an address", core.ErrContractCall, method, contract)
	}
	bound := bind.NewBoundContract(common.HexToAddress(contract), art.ABI, c.backend, c.backend, c.backend)

	var tx *types.Transaction
	err = c.submit(ctx, signer, func(opts *bind.TransactOpts) error {
		var err error
		tx, err = bound.Transact(opts, method, args...)
		return err
	})
	if err != nil {
		return core.Receipt{}, withClass(core.ErrContractCall, method+" on "+contract, err)
	}
	config.Log.Debugf("Submitted %s on %s in tx %s", method, contract, tx.Hash().Hex())

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("%w: %s on %s: %w", core.ErrContractCall, method, contract, err)
	}
	return toReceipt(receipt), nil
}

func (c *Client) Read(ctx context.Context, contract string, abiFragment string, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := c.fragment(abiFragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrContractCall, method, err)
	}
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("%w: %s on %q: not an address", core.ErrContractCall, method, contract)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	bound := bind.NewBoundContract(common.HexToAddress(contract), parsed, c.backend, nil, nil)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", classifyReadError(err), method, contract, err)
	}
	return out, nil
}

// submit builds transact options for the resolved signer and runs send while holding that signer's nonce lock.
// bind fetches the pending nonce inside send, so two submissions for one account never race for it.
func (c *Client) submit(ctx context.Context, signer core.Identity, send func(*bind.TransactOpts) error) error {
	key, err := c.signers.Resolve(ctx, signer)
	if err != nil {
		return err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	opts.Context = ctx
	opts.GasLimit = c.cfg.GasLimit

	lock := c.nonceLock(key)
	lock.Lock()
	defer lock.Unlock()
	return send(opts)
}

func (c *Client) nonceLock(key *ecdsa.PrivateKey) *sync.Mutex {
	from := crypto.PubkeyToAddress(key.PublicKey)
	c.noncesMu.Lock()
	defer c.noncesMu.Unlock()
	lock, ok := c.nonces[from]
	if !ok {
		lock = &sync.Mutex{}
		c.nonces[from] = lock
	}
	return lock
}

// waitMined blocks until tx is mined or the confirmation timeout passes. A timeout does not mean the
// transaction was dropped, it may still be mined later.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmationTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("tx %s not mined within %s", tx.Hash().Hex(), c.cfg.ConfirmationTimeout)
		}
		return nil, fmt.Errorf("wait for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

func (c *Client) fragment(fragment string) (abi.ABI, error) {
	c.fragmentsMu.Lock()
	defer c.fragmentsMu.Unlock()
	if parsed, ok := c.fragments[fragment]; ok {
		return parsed, nil
	}
	parsed, err := abi.JSON(strings.NewReader(fragment))
	if err != nil {
		return abi.ABI{}, err
	}
	c.fragments[fragment] = parsed
	return parsed, nil
}

// classifyReadError separates answers from the contract (no code, revert data, undecodable output) from transport failures.
func classifyReadError(err error) error {
	var dataErr rpc.DataError
	switch {
	case errors.Is(err, bind.ErrNoCode), errors.As(err, &dataErr):
		return core.ErrContractCall
	case strings.Contains(err.Error(), "execution reverted"), strings.Contains(err.Error(), "abi:"):
		return core.ErrContractCall
	}
	return core.ErrNetwork
}

// withClass tags a submission failure with class unless it is already a configuration problem.
func withClass(class error, op string, err error) error {
	if errors.Is(err, core.ErrConfiguration) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", class, op, err)
}

func toReceipt(r *types.Receipt) core.Receipt {
	receipt := core.Receipt{TxHash: r.TxHash.Hex()}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	return receipt
}
