package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for puffsd
var RootCmd = &cobra.Command{
	Use:              "puffsd",
	Short:            "puffs full and light protocol node",
	TraverseChildren: true,
}
