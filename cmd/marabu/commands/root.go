package commands

import (
	"github.com/marabunet/marabu/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for Marabu
var RootCmd = &cobra.Command{
	Use:              "marabu",
	Short:            "marabu full node",
	TraverseChildren: true,
}
