// Package nodeconfig loads the node's configuration: command-line flags
// layered with an optional YAML file and environment overrides, the same
// viper-based split the corpus's pkg/config and cmd/config packages use.
package nodeconfig

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the unified node configuration.
type Config struct {
	IsAuthority   bool   `mapstructure:"is_authority"`
	DBPath        string `mapstructure:"db_path"`
	Bootstrap     bool   `mapstructure:"bootstrap"`
	RPCPort       int    `mapstructure:"rpc_port"`
	P2PPort       int    `mapstructure:"p2p_port"`
	BootstrapNode string `mapstructure:"bootstrap_node"`
	LogLevel      string `mapstructure:"log_level"`
	ConfigFile    string `mapstructure:"-"`
}

// Defaults mirror the reference values from the CLI flag table.
const (
	DefaultDBPath   = "./database"
	DefaultRPCPort  = 8080
	DefaultP2PPort  = 50000
	DefaultLogLevel = "info"
)

// RegisterFlags attaches the node's flags to cmd, with their defaults.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("is-authority", false, "enable the authority block-production loop")
	flags.String("db-path", DefaultDBPath, "state store directory")
	flags.Bool("bootstrap", false, "generate genesis-funded and voter accounts, print their keys, and exit")
	flags.Int("rpc-port", DefaultRPCPort, "HTTP RPC port")
	flags.Int("p2p-port", DefaultP2PPort, "libp2p TCP listen port")
	flags.String("bootstrap-node", "", "bootstrap peer multiaddr, including /p2p/<peer-id>")
	flags.String("config", "", "optional YAML config file layered under the flags above")
	flags.String("log-level", DefaultLogLevel, "logrus log level")
}

// Load binds cmd's flags into viper, layers an optional YAML file named
// by --config over them, applies environment variable overrides, and
// unmarshals the result into a Config.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("nodeconfig: bind flags: %w", err)
	}

	configFile := v.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("nodeconfig: read config file %s: %w", configFile, err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		IsAuthority:   v.GetBool("is-authority"),
		DBPath:        v.GetString("db-path"),
		Bootstrap:     v.GetBool("bootstrap"),
		RPCPort:       v.GetInt("rpc-port"),
		P2PPort:       v.GetInt("p2p-port"),
		BootstrapNode: v.GetString("bootstrap-node"),
		LogLevel:      v.GetString("log-level"),
		ConfigFile:    configFile,
	}
	return cfg, nil
}
