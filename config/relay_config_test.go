package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RelayConfigTestSuite struct {
	suite.Suite
	conf RelayConfig
}

func (suite *RelayConfigTestSuite) SetupTest() {
	suite.conf = RelayConfig{
		Database: Database{Host: "localhost", Port: "5432", Database: "relay", User: "relay", Password: "relay"},
		Chain: Chain{
			RPC:                   "http://localhost:8545",
			ArtifactsDir:          "./artifacts",
			AccessManagerArtifact: "BaseAccessManager",
			TokenArtifact:         "BaseERC20",
			ConfirmationTimeout:   2 * time.Minute,
			ReadTimeout:           30 * time.Second,
		},
		Relay:  relayBase{Cron: "*/45 * * * * *", Workers: 1, RunOnStart: true},
		Server: Server{Port: 9002, MetricsPort: 9090},
	}
}

func (suite *RelayConfigTestSuite) TestValidDefaults() {
	suite.Require().NoError(suite.conf.Validate())
	suite.True(suite.conf.Relay.CronHasSeconds())
}

func (suite *RelayConfigTestSuite) TestCron() {
	suite.conf.Relay.Cron = "*/5 * * * *"
	suite.Require().NoError(suite.conf.Validate())
	suite.False(suite.conf.Relay.CronHasSeconds())

	for _, cron := range []string{"", "* * *", "0 0 0 * * * *"} {
		suite.conf.Relay.Cron = cron
		suite.Require().Error(suite.conf.Validate(), cron)
	}
}

func (suite *RelayConfigTestSuite) TestWorkersAndBatch() {
	suite.conf.Relay.Workers = 0
	suite.Require().Error(suite.conf.Validate())

	suite.conf.Relay.Workers = 4
	suite.conf.Relay.BatchSize = -1
	suite.Require().Error(suite.conf.Validate())

	suite.conf.Relay.BatchSize = 50
	suite.Require().NoError(suite.conf.Validate())
}

func (suite *RelayConfigTestSuite) TestLeaseMustOutliveConfirmationWait() {
	suite.conf.Relay.LeaseTimeout = time.Minute
	suite.Require().Error(suite.conf.Validate())

	// one confirmation wait is not enough, token creation waits for two
	suite.conf.Relay.LeaseTimeout = 4 * time.Minute
	suite.Require().Error(suite.conf.Validate())
	suite.Equal(4*time.Minute+30*time.Second, suite.conf.Chain.LongestDispatch())

	suite.conf.Relay.LeaseTimeout = 5 * time.Minute
	suite.Require().NoError(suite.conf.Validate())

	suite.conf.Relay.LeaseTimeout = 10 * time.Minute
	suite.Require().NoError(suite.conf.Validate())

	suite.conf.Relay.LeaseTimeout = -time.Second
	suite.Require().Error(suite.conf.Validate())
}

func (suite *RelayConfigTestSuite) TestMissingSections() {
	suite.conf.Chain.RPC = ""
	suite.Require().Error(suite.conf.Validate())

	suite.SetupTest()
	suite.conf.Database.Password = ""
	suite.Require().Error(suite.conf.Validate())

	suite.SetupTest()
	suite.conf.Chain.TokenArtifact = ""
	suite.Require().Error(suite.conf.Validate())
}

func (suite *RelayConfigTestSuite) TestCheckSuperfluousRelayKeys() {
	ignored := CheckSuperfluousRelayKeys([]string{
		"database.host",
		"chain.rpc",
		"relay.cron",
		"relay.lease-timeout",
		"redis.addr",
		"mongo.uri",
		"server.metrics-port",
		"log.pretty",
		"base.rpc-workers",
		"relay.poll",
	})
	suite.Equal([]string{"base.rpc-workers", "relay.poll"}, ignored)
}

func TestRelayConfigTestSuite(t *testing.T) {
	suite.Run(t, new(RelayConfigTestSuite))
}
