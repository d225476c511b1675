package commands

import (
	"github.com/puffscoin/puffsd/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Puffsd config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Puffsd: *config.NewDefaultConfig(),
	}
}
