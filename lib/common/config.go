package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// Engine selects the datastore implementation
type Engine string

const (
	EngineMemory Engine = "memory"
	EngineBolt   Engine = "bolt"
)

// StoreConfig holds all configuration parameters for a store handle and its datastore
type StoreConfig struct {
	// datastore
	Engine  Engine
	DataDir string // only used by the bolt engine

	// store handle
	Name      string
	StoreName string
	Version   uint64
	Timeout   time.Duration

	// Logging configuration
	LogLevel string
}

// Validate checks the configuration for invalid values
func (c *StoreConfig) Validate() error {
	switch c.Engine {
	case EngineMemory:
	case EngineBolt:
		if c.DataDir == "" {
			return fmt.Errorf("engine %s requires a data directory", c.Engine)
		}
	default:
		return fmt.Errorf("invalid engine: %q. must be one of %s, %s", c.Engine, EngineMemory, EngineBolt)
	}
	if c.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if c.StoreName == "" {
		return fmt.Errorf("store name must not be empty")
	}
	if c.Version == 0 {
		return fmt.Errorf("schema version must be greater than 0")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Datastore")
	addField("Engine", string(c.Engine))
	if c.Engine == EngineBolt {
		addField("Data Directory", c.DataDir)
	}

	addSection("Store")
	addField("Name", c.Name)
	addField("Object Store", c.StoreName)
	addField("Schema Version", fmt.Sprintf("%d", c.Version))
	if c.Timeout > 0 {
		addField("Timeout", c.Timeout.String())
	} else {
		addField("Timeout", "none")
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
