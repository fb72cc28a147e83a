package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/common"
	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/ValentinKolb/sKV/lib/datastore/bolt"
	"github.com/ValentinKolb/sKV/lib/datastore/memory"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the datastore and store handle flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, string(common.EngineMemory), WrapString("The datastore engine (memory, bolt). The memory engine forgets everything when the command exits"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, "./skv-data", WrapString("Directory for the database files of the bolt engine"))

	key = "name"
	cmd.PersistentFlags().String(key, store.DefaultName, WrapString("Name of the database"))

	key = "store"
	cmd.PersistentFlags().String(key, store.DefaultStoreName, WrapString("Name of the object store inside the database"))

	key = "schema-version"
	cmd.PersistentFlags().Uint64(key, store.DefaultVersion, WrapString("Schema version the database is opened with. A higher version upgrades the database"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 10*time.Second, WrapString("Timeout for opening and deleting the database (0 = no timeout)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() *common.StoreConfig {
	return &common.StoreConfig{
		Engine:    common.Engine(viper.GetString("engine")),
		DataDir:   viper.GetString("data-dir"),
		Name:      viper.GetString("name"),
		StoreName: viper.GetString("store"),
		Version:   viper.GetUint64("schema-version"),
		Timeout:   viper.GetDuration("timeout"),
		LogLevel:  viper.GetString("log-level"),
	}
}

// Factory is a datastore that has to be closed after use
type Factory interface {
	datastore.Factory
	Close() error
}

// GetFactory creates the datastore based on configuration
func GetFactory(conf *common.StoreConfig) (Factory, error) {
	switch conf.Engine {
	case common.EngineMemory:
		return memory.NewFactory(), nil
	case common.EngineBolt:
		f, err := bolt.NewFactory(&bolt.Options{Dir: conf.DataDir})
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("invalid engine %s", conf.Engine)
	}
}

// GetStore creates a store handle based on configuration
func GetStore(conf *common.StoreConfig, factory datastore.Factory) *store.Handle {
	return store.New(factory, &store.Options{
		Name:      conf.Name,
		StoreName: conf.StoreName,
		Version:   conf.Version,
		Timeout:   conf.Timeout,
	})
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
