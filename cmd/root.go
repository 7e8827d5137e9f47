package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/pkg/repository"
	"github.com/DefiantLabs/warden-explorer/rest"
	"github.com/DefiantLabs/warden-explorer/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const requestTimeout = 30 * time.Second

var (
	cfgFile string // config file location to load
	rootCmd = &cobra.Command{
		Use:   "warden-explorer",
		Short: "Explorer back end for the Warden Protocol chain",
		Long: `warden-explorer tracks validator uptime over a sliding window of recent blocks
		and serves it to the explorer front end.`,
	}
	viperConf = viper.New()
)

func GetRootCmd() *cobra.Command {
	return rootCmd
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(getViperConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file location (default is <CWD>/config.toml)")
}

func getViperConfig() {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("toml")
	} else {
		// Check in current working dir
		pwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("Could not determine current working dir. Err: %v", err)
		}
		if _, err := os.Stat(fmt.Sprintf("%v/config.toml", pwd)); err == nil {
			cfgFile = pwd
		} else {
			// file not in current working dir. Check home dir instead
			// Find home directory.
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("Failed to find user home dir. Err: %v", err)
			}
			cfgFile = fmt.Sprintf("%s/.warden-explorer", home)
		}
		v.AddConfigPath(cfgFile)
		v.SetConfigType("toml")
		v.SetConfigName("config")
	}

	// Load defaults into a file at $HOME?
	var noConfig bool
	err := v.ReadInConfig()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "Config File \"config\" Not Found"):
			noConfig = true
		case strings.Contains(err.Error(), "incomplete number"):
			log.Fatalf("Failed to read config file %v. This usually means you forgot to wrap a string in quotes.", err)
		default:
			log.Fatalf("Failed to read config file. Err: %v", err)
		}
	}

	if !noConfig {
		log.Println("CFG successfully read from: ", cfgFile)
	}

	viperConf = v
}

// Set config vars from cpnfig file not already specified on command line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		configName := f.Name

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(configName) {
			val := v.Get(configName)
			err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			if err != nil {
				log.Fatalf("Failed to bind config file value %v. Err: %v", configName, err)
			}
		}
	})
}

func setupLogger(logLevel string, logPath string, prettyLogging bool) {
	config.DoConfigureLogger(logPath, logLevel, prettyLogging)
}

// newChainClients builds the block source (reading through blocksCache) and the validator registry.
func newChainClients(chain config.Chain, retryAttempts int64, retryMaxWait time.Duration, blocksCache repository.BlocksCache) (*rpc.BlockSource, *rest.Registry) {
	source := rpc.NewBlockSource(rpc.NewURIClient(chain.RPC, requestTimeout), blocksCache, rpc.SourceOpts{
		RetryMaxAttempts: retryAttempts,
		RetryMaxWait:     retryMaxWait,
		WaitForChain:     chain.WaitForChain,
	})
	registry := rest.NewRegistry(chain.API, requestTimeout, retryAttempts, retryMaxWait)

	return source, registry
}
