package config

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotFormats = []string{"table", "json"}

type SnapshotConfig struct {
	Chain  Chain
	Uptime uptimeBase
	Output snapshotOutput
	Log    log
}

type snapshotOutput struct {
	Format string
	Filter string
}

func SetupSnapshotSpecificFlags(conf *SnapshotConfig, cmd *cobra.Command) {
	setupWindowFlags(&conf.Uptime, cmd)
	SetupRetryFlags(&conf.Uptime.retryBase, "uptime", cmd)
	cmd.PersistentFlags().StringVar(&conf.Output.Format, "output.format", "table", "output format (table or json)")
	cmd.PersistentFlags().StringVar(&conf.Output.Filter, "output.filter", "", "only print validators whose moniker or operator address contains this value")
}

func (conf *SnapshotConfig) Validate() error {
	chainConf, err := validateChainConf(conf.Chain)
	if err != nil {
		return err
	}
	conf.Chain = chainConf

	err = validateWindowConf(conf.Uptime)
	if err != nil {
		return err
	}

	for _, f := range snapshotFormats {
		if conf.Output.Format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported output.format %q, supported values are %v", conf.Output.Format, snapshotFormats)
}

func CheckSuperfluousSnapshotKeys(keys []string) []string {
	validKeys := make(map[string]struct{})

	addLogConfigKeys(validKeys)
	addChainConfigKeys(validKeys)

	for _, key := range getValidConfigKeys(uptimeBase{}, "uptime") {
		validKeys[key] = struct{}{}
	}

	for _, key := range getValidConfigKeys(retryBase{}, "uptime") {
		validKeys[key] = struct{}{}
	}

	for _, key := range getValidConfigKeys(snapshotOutput{}, "output") {
		validKeys[key] = struct{}{}
	}

	return ignoredKeys(keys, validKeys)
}
