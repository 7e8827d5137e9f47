package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (suite *ConfigTestSuite) TestValidateChainConf() {
	conf := Chain{}

	_, err := validateChainConf(conf)
	suite.Require().Error(err)

	conf.RPC = "http://localhost:26657/"
	_, err = validateChainConf(conf)
	suite.Require().Error(err)

	conf.API = "https://api.warden.example"
	_, err = validateChainConf(conf)
	suite.Require().Error(err)

	conf.AccountPrefix = "warden"
	conf, err = validateChainConf(conf)
	suite.Require().NoError(err)
	suite.Equal("http://localhost:26657", conf.RPC)
	suite.Equal("https://api.warden.example:443", conf.API)
}

func (suite *ConfigTestSuite) TestValidateServerConf() {
	suite.Require().Error(validateServerConf(Server{Port: 0}))
	suite.Require().Error(validateServerConf(Server{Port: 70000}))
	suite.Require().NoError(validateServerConf(Server{Port: 9002}))
}

func (suite *ConfigTestSuite) TestValidateRetryConf() {
	suite.Require().Error(validateRetryConf(retryBase{RequestRetryAttempts: -2}))
	suite.Require().NoError(validateRetryConf(retryBase{RequestRetryAttempts: -1}))
	suite.Require().NoError(validateRetryConf(retryBase{RequestRetryAttempts: 3}))

	suite.Equal(30*time.Second, retryBase{RequestRetryMaxWait: 30}.RetryMaxWait())
}

func (suite *ConfigTestSuite) TestParsePollInterval() {
	d, err := ParsePollInterval("auto")
	suite.Require().NoError(err)
	suite.Zero(d)

	d, err = ParsePollInterval("")
	suite.Require().NoError(err)
	suite.Zero(d)

	d, err = ParsePollInterval("6s")
	suite.Require().NoError(err)
	suite.Equal(6*time.Second, d)

	_, err = ParsePollInterval("500ms")
	suite.Require().Error(err)

	_, err = ParsePollInterval("2m")
	suite.Require().Error(err)

	_, err = ParsePollInterval("often")
	suite.Require().Error(err)
}

func (suite *ConfigTestSuite) TestValidateUptimeConfig() {
	conf := UptimeConfig{
		Chain: Chain{RPC: "http://localhost:26657", API: "http://localhost:1317", AccountPrefix: "warden"},
		Uptime: uptimeBase{
			retryBase:        retryBase{RequestRetryAttempts: 3, RequestRetryMaxWait: 30},
			WindowSize:       100,
			MaxWindowSize:    10000,
			WarmupBlocks:     10,
			MaxCatchUp:       50,
			FetchWorkers:     4,
			CacheSize:        200,
			PollInterval:     AutoPollInterval,
			RegistryInterval: 5 * time.Minute,
		},
		Server: Server{Port: 9002},
	}
	suite.Require().NoError(conf.Validate())

	conf.Uptime.WindowSize = 0
	suite.Require().Error(conf.Validate())
	conf.Uptime.WindowSize = 20000
	suite.Require().ErrorContains(conf.Validate(), "max-window-size")
	conf.Uptime.WindowSize = 100

	conf.Uptime.MaxWindowSize = 0
	suite.Require().Error(conf.Validate())
	conf.Uptime.MaxWindowSize = 10000

	conf.Uptime.MaxCatchUp = 0
	suite.Require().Error(conf.Validate())
	conf.Uptime.MaxCatchUp = 50

	conf.Uptime.PollInterval = "100ms"
	suite.Require().Error(conf.Validate())
	conf.Uptime.PollInterval = "3s"

	every, err := conf.Uptime.PollEvery()
	suite.Require().NoError(err)
	suite.Equal(3*time.Second, every)
}

func (suite *ConfigTestSuite) TestValidateSnapshotConfig() {
	conf := SnapshotConfig{
		Chain:  Chain{RPC: "http://localhost:26657", API: "http://localhost:1317", AccountPrefix: "warden"},
		Uptime: uptimeBase{WindowSize: 100, MaxWindowSize: 10000, FetchWorkers: 4, CacheSize: 200},
		Output: snapshotOutput{Format: "csv"},
	}
	suite.Require().Error(conf.Validate())

	conf.Output.Format = "json"
	suite.Require().NoError(conf.Validate())
}

func (suite *ConfigTestSuite) TestCheckSuperfluousUptimeKeys() {
	ignored := CheckSuperfluousUptimeKeys([]string{
		"log.level",
		"chain.rpc",
		"chain.account-prefix",
		"server.port",
		"redis.addr",
		"uptime.window-size",
		"uptime.request-retry-attempts",
		"uptime.unknown",
		"database.host",
	})
	suite.ElementsMatch([]string{"uptime.unknown", "database.host"}, ignored)
}

func (suite *ConfigTestSuite) TestCheckSuperfluousSnapshotKeys() {
	ignored := CheckSuperfluousSnapshotKeys([]string{"output.format", "uptime.window-size", "server.port"})
	suite.Equal([]string{"server.port"}, ignored)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
