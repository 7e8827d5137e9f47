package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/DefiantLabs/warden-explorer/util"
	"github.com/spf13/cobra"
)

// These configs are used across multiple commands, and are not specific to a single command
type log struct {
	Level  string
	Path   string
	Pretty bool
}

type Chain struct {
	RPC           string
	API           string
	AccountPrefix string `mapstructure:"account-prefix"`
	ChainID       string `mapstructure:"chain-id"`
	WaitForChain  bool   `mapstructure:"wait-for-chain"`
}

type Server struct {
	Port int
}

type RedisConf struct {
	Addr string
	Psw  string
}

type retryBase struct {
	RequestRetryAttempts int64  `mapstructure:"request-retry-attempts"`
	RequestRetryMaxWait  uint64 `mapstructure:"request-retry-max-wait"`
}

func SetupLogFlags(logConf *log, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&logConf.Level, "log.level", "info", "log level")
	cmd.PersistentFlags().BoolVar(&logConf.Pretty, "log.pretty", false, "pretty logs")
	cmd.PersistentFlags().StringVar(&logConf.Path, "log.path", "", "log path (default is $HOME/.warden-explorer/logs.txt")
}

func SetupChainFlags(chainConf *Chain, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&chainConf.RPC, "chain.rpc", "", "CometBFT rpc endpoint")
	cmd.PersistentFlags().StringVar(&chainConf.API, "chain.api", "", "Cosmos SDK rest endpoint")
	cmd.PersistentFlags().StringVar(&chainConf.AccountPrefix, "chain.account-prefix", "warden", "bech32 account prefix")
	cmd.PersistentFlags().StringVar(&chainConf.ChainID, "chain.chain-id", "", "chain ID, only used for logging")
	cmd.PersistentFlags().BoolVar(&chainConf.WaitForChain, "chain.wait-for-chain", false, "skip polling while the node reports it is catching up")
}

func SetupServerFlags(serverConf *Server, cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&serverConf.Port, "server.port", 9002, "http port")
}

func SetupRedisFlags(redisConf *RedisConf, cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&redisConf.Addr, "redis.addr", "", "redis address, leave empty to disable redis")
	cmd.PersistentFlags().StringVar(&redisConf.Psw, "redis.psw", "", "redis password")
}

func SetupRetryFlags(retryConf *retryBase, prefix string, cmd *cobra.Command) {
	cmd.PersistentFlags().Int64Var(&retryConf.RequestRetryAttempts, prefix+".request-retry-attempts", 3, "number of RPC query retries to make (-1 retries forever)")
	cmd.PersistentFlags().Uint64Var(&retryConf.RequestRetryMaxWait, prefix+".request-retry-max-wait", 30, "max retry incremental backoff wait time in seconds")
}

func validateChainConf(chainConf Chain) (Chain, error) {
	if util.StrNotSet(chainConf.RPC) {
		return chainConf, errors.New("chain rpc must be set")
	}
	if util.StrNotSet(chainConf.API) {
		return chainConf, errors.New("chain api must be set")
	}
	if util.StrNotSet(chainConf.AccountPrefix) {
		return chainConf, errors.New("chain account-prefix must be set")
	}

	// add port if not set
	chainConf.RPC = withDefaultPort(strings.TrimSuffix(chainConf.RPC, "/"))
	chainConf.API = withDefaultPort(strings.TrimSuffix(chainConf.API, "/"))

	return chainConf, nil
}

func withDefaultPort(endpoint string) string {
	if strings.Count(endpoint, ":") != 2 {
		if strings.HasPrefix(endpoint, "https:") {
			return fmt.Sprintf("%s:443", endpoint)
		} else if strings.HasPrefix(endpoint, "http:") {
			return fmt.Sprintf("%s:80", endpoint)
		}
	}
	return endpoint
}

func validateServerConf(serverConf Server) error {
	if serverConf.Port <= 0 || serverConf.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", serverConf.Port)
	}
	return nil
}

func validateRetryConf(retryConf retryBase) error {
	if retryConf.RequestRetryAttempts < -1 {
		return errors.New("request-retry-attempts must be -1, 0 or a positive number")
	}
	return nil
}

// RetryMaxWait is the backoff cap as a duration.
func (r retryBase) RetryMaxWait() time.Duration {
	return time.Duration(r.RequestRetryMaxWait) * time.Second
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

func addServerConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(Server{}, "") {
		validKeys[key] = struct{}{}
	}
}

func addRedisConfigKeys(validKeys map[string]struct{}) {
	for _, key := range getValidConfigKeys(RedisConf{}, "redis") {
		validKeys[key] = struct{}{}
	}
}

func ignoredKeys(keys []string, validKeys map[string]struct{}) []string {
	ignored := make([]string, 0)
	for _, key := range keys {
		if _, ok := validKeys[key]; !ok {
			ignored = append(ignored, key)
		}
	}
	return ignored
}
