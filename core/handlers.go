package core

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/ethereum/go-ethereum/common"
)

// DecimalsABI is the only fragment needed to learn a token's precision.
const DecimalsABI = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

// Artifacts names the compiled contracts the handlers deploy and call.
type Artifacts struct {
	AccessManager string
	Token         string
}

// Result is what a successful handler produced.
type Result struct {
	Token    *TokenRecord
	Receipts []Receipt
}

func (r Result) txHashes() []string {
	hashes := make([]string, 0, len(r.Receipts))
	for _, receipt := range r.Receipts {
		hashes = append(hashes, receipt.TxHash)
	}
	return hashes
}

// Handlers turns decoded payloads into chain calls. They never touch request status.
type Handlers struct {
	chain     ChainClient
	artifacts Artifacts
}

func NewHandlers(chain ChainClient, artifacts Artifacts) *Handlers {
	return &Handlers{chain: chain, artifacts: artifacts}
}

// Dispatch selects the handler for the payload's concrete type.
func (h *Handlers) Dispatch(ctx context.Context, req Request, payload Payload) (Result, error) {
	switch p := payload.(type) {
	case CreateTokenPayload:
		return h.CreateToken(ctx, req, p)
	case MintTokenPayload:
		return h.MintToken(ctx, req, p)
	case TransferTokenPayload:
		return h.TransferToken(ctx, req, p)
	case BurnTokenPayload:
		return h.BurnToken(ctx, req, p)
	}
	return Result{}, fmt.Errorf("%w: no handler for %T", ErrUnknownKind, payload)
}

// CreateToken deploys an access manager owned by the payload owner, then the token wired to it.
// The initial supply goes to the constructor unscaled; the contract defines its meaning.
func (h *Handlers) CreateToken(ctx context.Context, req Request, p CreateTokenPayload) (Result, error) {
	supply, err := ParseWholeAmount(p.Amount)
	if err != nil {
		return Result{}, err
	}
	owner := common.HexToAddress(p.Owner)

	authority, amReceipt, err := h.chain.Deploy(ctx, h.artifacts.AccessManager, req.Requester, owner)
	if err != nil {
		return Result{}, err
	}
	config.Log.Infof("Request %d: access manager deployed at %s (tx %s)", req.ID, authority, amReceipt.TxHash)

	tokenAddress, tokenReceipt, err := h.chain.Deploy(ctx, h.artifacts.Token, req.Requester, p.Name, p.Symbol, supply, owner, common.HexToAddress(authority))
	if err != nil {
		config.Log.Warnf("Request %d: token deployment failed, access manager %s is left without a token", req.ID, authority)
		return Result{Receipts: []Receipt{amReceipt}}, err
	}
	config.Log.Infof("Request %d: token deployed at %s (tx %s)", req.ID, tokenAddress, tokenReceipt.TxHash)

	return Result{
		Token: &TokenRecord{
			Address:   tokenAddress,
			Name:      p.Name,
			Symbol:    p.Symbol,
			Amount:    p.Amount,
			Owner:     p.Owner,
			Authority: authority,
			Username:  req.Requester.Username,
			RequestID: req.ID,
		},
		Receipts: []Receipt{amReceipt, tokenReceipt},
	}, nil
}

func (h *Handlers) MintToken(ctx context.Context, req Request, p MintTokenPayload) (Result, error) {
	amount, err := h.scaledAmount(ctx, p.TokenAddress, p.Amount)
	if err != nil {
		return Result{}, err
	}
	return h.invoke(ctx, req, p.TokenAddress, "mint", common.HexToAddress(p.RecipientAddress), amount)
}

func (h *Handlers) TransferToken(ctx context.Context, req Request, p TransferTokenPayload) (Result, error) {
	amount, err := h.scaledAmount(ctx, p.TokenAddress, p.Amount)
	if err != nil {
		return Result{}, err
	}
	return h.invoke(ctx, req, p.TokenAddress, "transfer", common.HexToAddress(p.RecipientAddress), amount)
}

func (h *Handlers) BurnToken(ctx context.Context, req Request, p BurnTokenPayload) (Result, error) {
	amount, err := h.scaledAmount(ctx, p.TokenAddress, p.Amount)
	if err != nil {
		return Result{}, err
	}
	return h.invoke(ctx, req, p.TokenAddress, "burn", amount)
}

// DecimalsOf reads the token's on-chain precision.
func (h *Handlers) DecimalsOf(ctx context.Context, tokenAddress string) (uint8, error) {
	out, err := h.chain.Read(ctx, tokenAddress, DecimalsABI, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: decimals() on %s returned %d values", ErrContractCall, tokenAddress, len(out))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals() on %s returned %T", ErrContractCall, tokenAddress, out[0])
	}
	return decimals, nil
}

func (h *Handlers) scaledAmount(ctx context.Context, tokenAddress, amount string) (*big.Int, error) {
	decimals, err := h.DecimalsOf(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}
	return ToBaseUnits(amount, decimals)
}

func (h *Handlers) invoke(ctx context.Context, req Request, tokenAddress, method string, args ...interface{}) (Result, error) {
	receipt, err := h.chain.Invoke(ctx, tokenAddress, h.artifacts.Token, method, req.Requester, args...)
	if err != nil {
		return Result{}, err
	}
	config.Log.Infof("Request %d: %s on %s mined in block %d (tx %s)", req.ID, method, strings.ToLower(tokenAddress), receipt.BlockNumber, receipt.TxHash)
	return Result{Receipts: []Receipt{receipt}}, nil
}
