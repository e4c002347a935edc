package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the coxswain version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("coxswain " + Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
