package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeyEnv holds the hex private key of the relay signer.
const PrivateKeyEnv = "RELAY_PRIVATE_KEY"

// SignerResolver maps the requester of a request to the key its transactions are signed with.
type SignerResolver interface {
	Resolve(ctx context.Context, identity core.Identity) (*ecdsa.PrivateKey, error)
}

// StaticKeyResolver signs every request with the same relay key, whoever submitted it.
// Requests therefore act on-chain as the relay account, not as the requester's wallet.
type StaticKeyResolver struct {
	key *ecdsa.PrivateKey
}

func NewStaticKeyResolver(key *ecdsa.PrivateKey) *StaticKeyResolver {
	return &StaticKeyResolver{key: key}
}

// StaticKeyResolverFromEnv reads the relay key from RELAY_PRIVATE_KEY.
func StaticKeyResolverFromEnv() (*StaticKeyResolver, error) {
	value, ok := os.LookupEnv(PrivateKeyEnv)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%w: %s is not set", core.ErrConfiguration, PrivateKeyEnv)
	}
	key, err := ParsePrivateKey(value)
	if err != nil {
		return nil, err
	}
	return NewStaticKeyResolver(key), nil
}

func (r *StaticKeyResolver) Resolve(context.Context, core.Identity) (*ecdsa.PrivateKey, error) {
	if r == nil || r.key == nil {
		return nil, fmt.Errorf("%w: no signing key loaded", core.ErrConfiguration)
	}
	return r.key, nil
}

// Address is the account the relay key controls.
func (r *StaticKeyResolver) Address() string {
	return crypto.PubkeyToAddress(r.key.PublicKey).Hex()
}

// ParsePrivateKey decodes a secp256k1 key from hex, with or without a 0x prefix. The key itself never appears in errors.
func ParsePrivateKey(value string) (*ecdsa.PrivateKey, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	key, err := crypto.HexToECDSA(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key", core.ErrConfiguration)
	}
	return key, nil
}
