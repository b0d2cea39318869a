package evm

import (
	"context"
	"testing"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/stretchr/testify/suite"
)

// first default hardhat/anvil account
const (
	devKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type SignerTestSuite struct {
	suite.Suite
}

func (suite *SignerTestSuite) TestParsePrivateKey() {
	for _, value := range []string{devKey, "0x" + devKey, "  0x" + devKey + "\n"} {
		key, err := ParsePrivateKey(value)
		suite.Require().NoError(err)
		suite.Equal(devAddress, NewStaticKeyResolver(key).Address())
	}

	_, err := ParsePrivateKey("0x1234")
	suite.Require().ErrorIs(err, core.ErrConfiguration)
	suite.NotContains(err.Error(), "1234")
}

func (suite *SignerTestSuite) TestResolverFromEnv() {
	suite.T().Setenv(PrivateKeyEnv, "0x"+devKey)
	resolver, err := StaticKeyResolverFromEnv()
	suite.Require().NoError(err)

	alice, err := resolver.Resolve(context.Background(), core.Identity{Username: "alice"})
	suite.Require().NoError(err)
	bob, err := resolver.Resolve(context.Background(), core.Identity{Username: "bob", WalletAddress: devAddress})
	suite.Require().NoError(err)
	suite.Same(alice, bob)
}

func (suite *SignerTestSuite) TestResolverFromEnvMissing() {
	suite.T().Setenv(PrivateKeyEnv, "")
	_, err := StaticKeyResolverFromEnv()
	suite.Require().ErrorIs(err, core.ErrConfiguration)

	var empty *StaticKeyResolver
	_, err = empty.Resolve(context.Background(), core.Identity{})
	suite.Require().ErrorIs(err, core.ErrConfiguration)
}

func TestSignerTestSuite(t *testing.T) {
	suite.Run(t, new(SignerTestSuite))
}
