package kv

import (
	"fmt"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/common"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var (
	log = logger.GetLogger("cli")

	kvFactory util.Factory
	kvStore   *store.Handle
	kvConfig  *common.StoreConfig

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(lenCmd)
	KeyValueCommands.AddCommand(dropCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupStore creates the datastore and the store handle
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	kvConfig = util.GetStoreConfig()
	if err := kvConfig.Validate(); err != nil {
		return err
	}
	if err := common.InitLoggers(kvConfig.LogLevel); err != nil {
		return err
	}
	log.Debugf("configuration:%s", kvConfig)

	f, err := util.GetFactory(kvConfig)
	if err != nil {
		return err
	}
	kvFactory = f
	kvStore = util.GetStore(kvConfig, f)

	if !kvStore.Supports() {
		return fmt.Errorf("engine %s is not available", kvConfig.Engine)
	}
	return nil
}

// closeStore closes the store handle and the datastore
func closeStore(_ *cobra.Command, _ []string) error {
	if kvStore != nil {
		kvStore.Close()
	}
	if kvFactory != nil {
		return kvFactory.Close()
	}
	return nil
}
