package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const AutoPollInterval = "auto"

type UptimeConfig struct {
	ConfigFileLocation string
	Chain              Chain
	Uptime             uptimeBase
	Server             Server
	Redis              RedisConf
	Log                log
}

type uptimeBase struct {
	retryBase
	WindowSize       int           `mapstructure:"window-size"`
	MaxWindowSize    int           `mapstructure:"max-window-size"`
	WarmupBlocks     int64         `mapstructure:"warmup-blocks"`
	MaxCatchUp       int64         `mapstructure:"max-catch-up"`
	FetchWorkers     int           `mapstructure:"fetch-workers"`
	CacheSize        int           `mapstructure:"cache-size"`
	PollInterval     string        `mapstructure:"poll-interval"`
	PollingEnabled   bool          `mapstructure:"polling-enabled"`
	RegistryInterval time.Duration `mapstructure:"registry-interval"`
}

func SetupUptimeSpecificFlags(conf *UptimeConfig, cmd *cobra.Command) {
	setupWindowFlags(&conf.Uptime, cmd)
	cmd.PersistentFlags().Int64Var(&conf.Uptime.WarmupBlocks, "uptime.warmup-blocks", 10, "most recent blocks ingested before the background backfill")
	cmd.PersistentFlags().Int64Var(&conf.Uptime.MaxCatchUp, "uptime.max-catch-up", 50, "max blocks fetched in a single polling tick")
	cmd.PersistentFlags().StringVar(&conf.Uptime.PollInterval, "uptime.poll-interval", AutoPollInterval, "polling interval (e.g. 6s), or auto to follow the chain block time")
	cmd.PersistentFlags().BoolVar(&conf.Uptime.PollingEnabled, "uptime.polling-enabled", true, "poll for new blocks on the configured cadence")
	cmd.PersistentFlags().DurationVar(&conf.Uptime.RegistryInterval, "uptime.registry-interval", 5*time.Minute, "how often the validator set is refreshed")
	SetupRetryFlags(&conf.Uptime.retryBase, "uptime", cmd)
}

func setupWindowFlags(base *uptimeBase, cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&base.WindowSize, "uptime.window-size", 100, "number of trailing blocks tracked per validator")
	cmd.PersistentFlags().IntVar(&base.MaxWindowSize, "uptime.max-window-size", 10000, "largest window size accepted at startup or at runtime")
	cmd.PersistentFlags().IntVar(&base.FetchWorkers, "uptime.fetch-workers", 4, "concurrent block fetches within a catch-up range")
	cmd.PersistentFlags().IntVar(&base.CacheSize, "uptime.cache-size", 200, "number of blocks kept in the block cache")
}

// PollEvery returns the fixed polling interval, or zero when the interval follows the block time.
func (b uptimeBase) PollEvery() (time.Duration, error) {
	d, err := ParsePollInterval(b.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid uptime.poll-interval: %w", err)
	}
	return d, nil
}

// ParsePollInterval accepts a duration between 1s and 60s, or "auto" which yields zero.
func ParsePollInterval(s string) (time.Duration, error) {
	if strings.EqualFold(s, AutoPollInterval) || s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < time.Second || d > time.Minute {
		return 0, fmt.Errorf("poll interval %s must be between 1s and 1m0s", d)
	}
	return d, nil
}

func validateWindowConf(base uptimeBase) error {
	if base.WindowSize <= 0 {
		return errors.New("uptime.window-size must be greater than 0")
	}
	if base.MaxWindowSize <= 0 {
		return errors.New("uptime.max-window-size must be greater than 0")
	}
	if base.WindowSize > base.MaxWindowSize {
		return fmt.Errorf("uptime.window-size %d exceeds uptime.max-window-size %d", base.WindowSize, base.MaxWindowSize)
	}
	if base.FetchWorkers <= 0 {
		return errors.New("uptime.fetch-workers must be greater than 0")
	}
	if base.CacheSize <= 0 {
		return errors.New("uptime.cache-size must be greater than 0")
	}
	return validateRetryConf(base.retryBase)
}

func (conf *UptimeConfig) Validate() error {
	chainConf, err := validateChainConf(conf.Chain)
	if err != nil {
		return err
	}
	conf.Chain = chainConf

	err = validateServerConf(conf.Server)
	if err != nil {
		return err
	}

	err = validateWindowConf(conf.Uptime)
	if err != nil {
		return err
	}

	if conf.Uptime.WarmupBlocks < 0 {
		return errors.New("uptime.warmup-blocks must be 0 or greater")
	}
	if conf.Uptime.MaxCatchUp <= 0 {
		return errors.New("uptime.max-catch-up must be greater than 0")
	}
	if conf.Uptime.RegistryInterval < time.Second {
		return errors.New("uptime.registry-interval must be at least 1s")
	}

	_, err = conf.Uptime.PollEvery()
	return err
}

func CheckSuperfluousUptimeKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addLogConfigKeys(validKeys)
	addChainConfigKeys(validKeys)
	addServerConfigKeys(validKeys)
	addRedisConfigKeys(validKeys)

	for _, key := range getValidConfigKeys(uptimeBase{}, "uptime") {
		validKeys[key] = struct{}{}
	}

	for _, key := range getValidConfigKeys(retryBase{}, "uptime") {
		validKeys[key] = struct{}{}
	}

	return ignoredKeys(keys, validKeys)
}
